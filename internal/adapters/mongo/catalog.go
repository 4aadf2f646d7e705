package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogRepository holds the public-facing event display documents. The
// transactional source of truth for events and ticket types stays in SQL;
// this collection only feeds listing and detail pages.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("event_catalog"),
		logger: logger,
	}
}

type EventDoc struct {
	ID          uuid.UUID       `bson:"_id"`
	Name        string          `bson:"name"`
	Description string          `bson:"description"`
	Venue       string          `bson:"venue"`
	StartsAt    time.Time       `bson:"starts_at"`
	Status      string          `bson:"status"`
	TicketTypes []TicketTypeDoc `bson:"ticket_types"`
	CreatedAt   time.Time       `bson:"created_at"`
	UpdatedAt   time.Time       `bson:"updated_at"`
}

type TicketTypeDoc struct {
	ID       uuid.UUID `bson:"id"`
	Name     string    `bson:"name"`
	Price    string    `bson:"price"`
	Capacity int       `bson:"capacity"`
}

func (c *CatalogRepository) GetEvent(ctx context.Context, id uuid.UUID) (*EventDoc, error) {
	var event EventDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&event)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *CatalogRepository) UpsertEvent(ctx context.Context, event EventDoc) error {
	event.UpdatedAt = time.Now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = event.UpdatedAt
	}
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": event.ID}, event, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.Error("failed to upsert event catalog doc", err)
		return err
	}
	return nil
}

func (c *CatalogRepository) SetEventStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := c.coll.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now()}},
	)
	if err != nil {
		c.logger.Error("failed to update event catalog status", err)
		return err
	}
	return nil
}
