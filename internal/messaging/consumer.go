package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Event outcomes reported to an EventObserver.
const (
	EventHandled     = "handled"
	EventFailed      = "failed"
	EventUndecodable = "undecodable"
	EventSkipped     = "skipped"
)

// Handler processes a single event.
type Handler[T any] func(ctx context.Context, event *T) error

// EventObserver receives the outcome of every delivered message.
type EventObserver interface {
	ObserveEvent(topic, outcome string)
}

type nopEventObserver struct{}

func (nopEventObserver) ObserveEvent(string, string) {}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*consumerConfig)

type consumerConfig struct {
	eventType      string
	handlerTimeout time.Duration
	observer       EventObserver
}

// WithEventType accepts only messages whose MetadataEventType equals
// eventType. It defaults to the topic, which is what NewPublishFunc stamps.
// Messages without the metadata are always accepted.
func WithEventType(eventType string) ConsumerOption {
	return func(c *consumerConfig) {
		c.eventType = eventType
	}
}

// WithHandlerTimeout bounds each handler call. Zero means no bound.
func WithHandlerTimeout(d time.Duration) ConsumerOption {
	return func(c *consumerConfig) {
		c.handlerTimeout = d
	}
}

// WithEventObserver reports every message outcome to observer.
func WithEventObserver(observer EventObserver) ConsumerOption {
	return func(c *consumerConfig) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// Consumer decodes the messages of one topic into T and hands them to a
// Handler. Handled, skipped and undecodable messages are acked; only a
// failing handler nacks, because redelivery cannot repair a bad payload.
type Consumer[T any] struct {
	subscriber message.Subscriber
	topic      string
	handler    Handler[T]
	cfg        consumerConfig
	logger     *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer creates a consumer of topic.
func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handler Handler[T],
	logger *zap.Logger,
	opts ...ConsumerOption,
) *Consumer[T] {
	cfg := consumerConfig{eventType: topic, observer: nopEventObserver{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Consumer[T]{
		subscriber: subscriber,
		topic:      topic,
		handler:    handler,
		cfg:        cfg,
		logger:     logger.With(zap.String("topic", topic)),
		done:       make(chan struct{}),
	}
}

// Topic returns the topic this consumer subscribes to.
func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Start subscribes and processes messages in the background until ctx is
// cancelled, the subscription closes or Shutdown is called.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		c.cancel()
		close(c.done)

		return err
	}

	go func() {
		defer close(c.done)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				c.settle(msg, c.process(ctx, msg))
			}
		}
	}()

	return nil
}

// process runs one message through the handler and reports its outcome.
func (c *Consumer[T]) process(ctx context.Context, msg *message.Message) string {
	log := c.logger.With(zap.String("message_id", msg.UUID))

	if eventType := msg.Metadata.Get(MetadataEventType); eventType != "" && eventType != c.cfg.eventType {
		log.Debug("skipping foreign event", zap.String("event_type", eventType))

		return EventSkipped
	}

	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		log.Error("dropping undecodable event", zap.Error(err))

		return EventUndecodable
	}

	if c.cfg.handlerTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.cfg.handlerTimeout)
		defer cancel()
	}

	if err := c.handler(ctx, &event); err != nil {
		log.Error("failed to handle event", zap.Error(err))

		return EventFailed
	}

	log.Debug("processed event")

	return EventHandled
}

func (c *Consumer[T]) settle(msg *message.Message, outcome string) {
	c.cfg.observer.ObserveEvent(c.topic, outcome)

	if outcome == EventFailed {
		msg.Nack()

		return
	}

	msg.Ack()
}

// Shutdown stops the consumer and waits for the in-flight message.
func (c *Consumer[T]) Shutdown() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}

	return nil
}
