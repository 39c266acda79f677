package messaging

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Runnable is anything with a Start/Shutdown lifecycle.
type Runnable interface {
	Start(ctx context.Context) error
	Shutdown() error
}

// ConsumerGroup runs consumers sharing one subscriber and owns that
// subscriber: it is closed after the last consumer stops.
type ConsumerGroup struct {
	subscriber message.Subscriber
	logger     *zap.Logger

	consumers []Runnable
	running   []Runnable
}

// NewConsumerGroup creates an empty group over subscriber.
func NewConsumerGroup(subscriber message.Subscriber, logger *zap.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		subscriber: subscriber,
		logger:     logger,
	}
}

// Add registers a consumer. It takes effect on the next Start.
func (g *ConsumerGroup) Add(consumer Runnable) {
	g.consumers = append(g.consumers, consumer)
}

// Len returns the number of registered consumers.
func (g *ConsumerGroup) Len() int {
	return len(g.consumers)
}

// Start starts the consumers in order. If one fails, those already running
// are stopped again and the group is left idle.
func (g *ConsumerGroup) Start(ctx context.Context) error {
	if len(g.running) > 0 {
		return errors.New("consumer group already started")
	}

	for i, consumer := range g.consumers {
		if err := consumer.Start(ctx); err != nil {
			stopErr := g.stopRunning()

			return errors.Join(fmt.Errorf("start consumer %d: %w", i, err), stopErr)
		}

		g.running = append(g.running, consumer)
	}

	g.logger.Info("consumer group started", zap.Int("consumers", len(g.running)))

	return nil
}

// Shutdown stops the running consumers in reverse start order, then closes
// the subscriber. Every error is returned.
func (g *ConsumerGroup) Shutdown() error {
	g.logger.Info("stopping consumer group", zap.Int("consumers", len(g.running)))

	return errors.Join(g.stopRunning(), g.subscriber.Close())
}

func (g *ConsumerGroup) stopRunning() error {
	var errs []error

	for _, consumer := range slices.Backward(g.running) {
		errs = append(errs, consumer.Shutdown())
	}

	g.running = nil

	return errors.Join(errs...)
}
