package container

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/samber/do"
	"github.com/serroba/credit-limiter/internal/audit"
	auditstore "github.com/serroba/credit-limiter/internal/audit/store"
	"github.com/serroba/credit-limiter/internal/messaging"
	"github.com/serroba/credit-limiter/internal/metrics"
	"go.uber.org/zap"
)

const (
	auditConsumerGroup = "credit-audit"
	auditSaveTimeout   = 10 * time.Second
)

// PublisherGroupPackage provides the Redis Streams publisher.
func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		client := do.MustInvoke[*RedisClient](i)
		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client:     client.Client,
			Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
		}, messaging.NewZapLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("create publisher: %w", err)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})
}

// AuditPackage provides the decision recorder. With auditing disabled it
// discards decisions and never touches Redis.
func AuditPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*audit.Recorder, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if !opts.Audit {
			return audit.NewRecorder(messaging.NopPublish[audit.Decision](), logger), nil
		}

		group, err := do.Invoke[*messaging.PublisherGroup](i)
		if err != nil {
			return nil, err
		}

		publish := messaging.NewPublishFunc[audit.Decision](group.Publisher(), audit.TopicDecisions)

		return audit.NewRecorder(publish, logger), nil
	})
}

// AuditStorePackage provides the store the audit consumer persists to.
func AuditStorePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (audit.Store, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		switch opts.AuditStore {
		case AuditStorePostgres:
			pool := do.MustInvoke[*PostgresPool](i)
			s := auditstore.NewPostgres(pool.Pool)

			if err := s.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("ensure decision schema: %w", err)
			}

			return s, nil
		case AuditStoreSQLite:
			s, err := auditstore.OpenSQLite(opts.SQLitePath)
			if err != nil {
				return nil, err
			}

			if err := s.EnsureSchema(ctx); err != nil {
				_ = s.Shutdown()

				return nil, fmt.Errorf("ensure decision schema: %w", err)
			}

			return s, nil
		default:
			return auditstore.NewLog(logger), nil
		}
	})
}

// ConsumerGroupPackage provides the consumer group persisting decisions.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		client := do.MustInvoke[*RedisClient](i)
		logger := do.MustInvoke[*zap.Logger](i)

		subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        client.Client,
			Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
			ConsumerGroup: auditConsumerGroup,
		}, messaging.NewZapLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("create subscriber: %w", err)
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(messaging.NewConsumer(
			subscriber,
			audit.TopicDecisions,
			audit.NewHandler(do.MustInvoke[audit.Store](i)),
			logger,
			messaging.WithHandlerTimeout(auditSaveTimeout),
			messaging.WithEventObserver(do.MustInvoke[*metrics.Metrics](i)),
		))

		return group, nil
	})
}
