package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/event-ticketing/internal/adapters/crdb"
	"github.com/robertarktes/event-ticketing/internal/config"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
)

const expiryBatchSize = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	payments := ticketing.NewPaymentService(repo, nil, ticketing.NopAuditor{}, logger)

	worker := NewExpiryWorker(repo, payments, cfg.PaymentTTL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

// ExpiryWorker cancels payments still pending past the payment TTL, which
// releases the tickets they were holding. Payments in processing are left
// alone; offline approval has no deadline.
type ExpiryWorker struct {
	repo     *crdb.Repository
	payments *ticketing.PaymentService
	ttl      time.Duration
	logger   observability.Logger
}

func NewExpiryWorker(repo *crdb.Repository, payments *ticketing.PaymentService, ttl time.Duration, logger observability.Logger) *ExpiryWorker {
	return &ExpiryWorker{repo: repo, payments: payments, ttl: ttl, logger: logger}
}

func (w *ExpiryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			cutoff := now.Add(-w.ttl)
			ids, err := w.repo.ExpiredPendingPayments(ctx, cutoff, expiryBatchSize)
			if err != nil {
				w.logger.Error("failed to list expired payments: ", err)
				continue
			}
			for _, id := range ids {
				if err := w.cancelWithRetry(ctx, id); err != nil {
					w.logger.WithField("payment_id", id.String()).Error("failed to cancel expired payment: ", err)
				}
			}
		}
	}
}

func (w *ExpiryWorker) cancelWithRetry(ctx context.Context, id uuid.UUID) error {
	const maxRetries = 3
	var err error
	for i := 0; i < maxRetries; i++ {
		err = w.payments.CancelExpired(ctx, id)
		if err == nil || errors.Is(err, domain.ErrAlreadyProcessed) {
			return nil
		}
		if !errors.Is(err, domain.ErrSerializationFailure) {
			return err
		}
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
