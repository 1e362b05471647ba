package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/go-redemption-api/internal/application/bulk"
	"github.com/go-redemption-api/internal/application/catalog"
	"github.com/go-redemption-api/internal/application/delivery"
	"github.com/go-redemption-api/internal/application/redemption"
	"github.com/go-redemption-api/internal/application/voucher"
	"github.com/go-redemption-api/internal/config"
	"github.com/go-redemption-api/internal/domain"
	"github.com/go-redemption-api/internal/infrastructure/amqpqueue"
	"github.com/go-redemption-api/internal/infrastructure/dynamo"
	"github.com/go-redemption-api/internal/infrastructure/memstore"
	"github.com/go-redemption-api/internal/infrastructure/metrics"
	"github.com/go-redemption-api/internal/infrastructure/notify"
	"github.com/go-redemption-api/internal/infrastructure/redisqueue"
	"github.com/go-redemption-api/internal/infrastructure/sns"
	"github.com/go-redemption-api/internal/infrastructure/twilio"
)

// repoSet carries the storage half of every service's dependencies for one backend.
type repoSet struct {
	Redemption redemption.ServiceDeps
	Voucher    voucher.ServiceDeps
	Bulk       bulk.ServiceDeps
	Delivery   delivery.ServiceDeps
	Catalog    catalog.Service
}

func buildRepos(ctx context.Context, cfg *config.Config) (*repoSet, error) {
	switch cfg.StoreBackend {
	case "memory":
		log.Println("WARN: using in-memory store, data is lost on restart")
		st := memstore.New()
		return &repoSet{
			Redemption: redemption.ServiceDeps{
				EventRepo:      st.Events,
				LinkRepo:       st.Links,
				SlotRepo:       st.LinkSlots,
				AllocationRepo: st.Allocations,
				IdentityRepo:   st.Identities,
				AttemptRepo:    st.Attempts,
			},
			Voucher: voucher.ServiceDeps{VoucherRepo: st.Vouchers},
			Bulk: bulk.ServiceDeps{
				EventRepo:      st.Events,
				LinkRepo:       st.Links,
				AllocationRepo: st.Allocations,
				IdentityRepo:   st.Identities,
				ReportRepo:     st.Reports,
			},
			Delivery: delivery.ServiceDeps{Store: st.Deliveries},
			Catalog:  catalog.NewService(st.Events, st.Vouchers),
		}, nil
	case "dynamo":
		client := dynamo.NewClient(cfg)
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		t := cfg.DynamoTables
		events := dynamo.NewEventRepo(client, t.Events)
		links := dynamo.NewLinkRepo(client, t.Links)
		allocations := dynamo.NewAllocationRepo(client, t.Allocations)
		identities := dynamo.NewIdentityRepo(client, t.Identities)
		vouchers := dynamo.NewVoucherRepo(client, t.Vouchers)
		return &repoSet{
			Redemption: redemption.ServiceDeps{
				EventRepo:      events,
				LinkRepo:       links,
				SlotRepo:       dynamo.NewLinkSlotRepo(client, t.LinkSlots),
				AllocationRepo: allocations,
				IdentityRepo:   identities,
				AttemptRepo:    dynamo.NewAttemptRepo(client, t.CommitAttempts),
			},
			Voucher: voucher.ServiceDeps{VoucherRepo: vouchers},
			Bulk: bulk.ServiceDeps{
				EventRepo:      events,
				LinkRepo:       links,
				AllocationRepo: allocations,
				IdentityRepo:   identities,
				ReportRepo:     dynamo.NewReportRepo(client, t.Reports),
			},
			Delivery: delivery.ServiceDeps{Store: dynamo.NewDeliveryRepo(client, t.Deliveries)},
			Catalog:  catalog.NewService(events, vouchers),
		}, nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

// taskQueue is a delivery queue whose depth can be observed.
type taskQueue interface {
	delivery.Queue
	Len(ctx context.Context) (int64, error)
}

// buildQueue returns the delivery queue and a func releasing its connection.
func buildQueue(ctx context.Context, cfg *config.Config) (taskQueue, func(), error) {
	switch cfg.QueueBackend {
	case "memory":
		return memstore.NewQueue(1024), func() {}, nil
	case "redis":
		rdb, err := redisqueue.NewClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		q := redisqueue.New(rdb, cfg.RedisQueueKey)
		// Tasks a previous process took but never acknowledged go back on the queue.
		if n, err := q.Requeue(ctx); err != nil {
			slog.Warn("could not requeue in-flight tasks", "err", err)
		} else if n > 0 {
			slog.Info("requeued in-flight tasks", "count", n)
		}
		return q, func() { _ = rdb.Close() }, nil
	case "amqp":
		q, err := amqpqueue.Dial(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, nil, err
		}
		return q, func() { _ = q.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}
}

type sender interface {
	Send(ctx context.Context, msg domain.OutboundMessage) error
}

func buildNotifier(cfg *config.Config) (sender, error) {
	switch cfg.NotifierBackend {
	case "sns":
		return sns.NewNotifier(cfg)
	case "twilio":
		return twilio.NewNotifier(cfg)
	case "log":
		return notify.NewLogNotifier(slog.New(slog.NewJSONHandler(os.Stdout, nil))), nil
	default:
		return nil, fmt.Errorf("unknown NOTIFIER %q", cfg.NotifierBackend)
	}
}

func recorder(cfg *config.Config) interface {
	LinkIssued(string)
	CommitOutcome(string)
	VoucherOperation(string, string)
	BulkRows(string, int)
	Delivery(string, string)
} {
	if cfg.EnableMetrics {
		return metrics.NewRecorder()
	}
	return metrics.Nop{}
}
