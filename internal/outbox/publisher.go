package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-ticketing/internal/adapters/crdb"
	"github.com/robertarktes/event-ticketing/internal/adapters/rabbit"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

const (
	pollInterval = 5 * time.Second
	batchSize    = 50
	maxPublish   = 3
)

// Publisher drains NEW outbox rows and forwards them to the broker. Rows are
// marked PUBLISHED only after the broker accepts them; at-least-once delivery,
// consumers dedupe on MessageId.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, batchSize)
	if err != nil {
		p.logger.Error("outbox fetch failed: ", err)
		return
	}

	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Timestamp:   rec.CreatedAt,
			Body:        rec.Payload,
		}
		if err := p.publishWithRetry(ctx, rec.EventType, msg); err != nil {
			p.logger.WithField("outbox_id", rec.ID.String()).Error("outbox publish failed: ", err)
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
			p.logger.WithField("outbox_id", rec.ID.String()).Error("outbox mark published failed: ", err)
		}
	}

	age, err := p.repo.OldestUnpublishedAge(ctx, time.Now())
	if err == nil {
		observability.OutboxLag.Set(age.Seconds())
	}
}

func (p *Publisher) publishWithRetry(ctx context.Context, key string, msg amqp.Publishing) error {
	var err error
	for attempt := 0; attempt < maxPublish; attempt++ {
		if attempt > 0 {
			observability.RabbitPublishRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
		if err = p.rabbitPub.Publish(ctx, key, msg); err == nil {
			return nil
		}
	}
	return err
}
