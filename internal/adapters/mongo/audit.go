package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger records payment transitions, checkouts and check-ins for
// after-the-fact review. Best effort: the domain transaction never waits on
// or fails because of it.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

var _ ticketing.Auditor = (*AuditLogger)(nil)

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    uuid.UUID `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) logEvent(ctx context.Context, action string, userID uuid.UUID, data map[string]interface{}) error {
	entry := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, entry)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func (a *AuditLogger) PaymentTransition(ctx context.Context, p *domain.Payment, from, to domain.PaymentStatus) error {
	data := map[string]interface{}{
		"payment_id": p.ID.String(),
		"from":       string(from),
		"to":         string(to),
		"amount":     p.Amount.StringFixed(2),
		"method":     string(p.Method),
	}
	if p.ApprovedBy != nil {
		data["approved_by"] = p.ApprovedBy.String()
	}
	return a.logEvent(ctx, "payment."+string(to), p.UserID, data)
}

func (a *AuditLogger) CheckIn(ctx context.Context, res *ticketing.CheckInResult) error {
	return a.logEvent(ctx, "ticket.checked_in", res.AttendeeID, map[string]interface{}{
		"ticket_code":     res.TicketCode.String(),
		"ticket_type":     res.TicketType,
		"event":           res.Event,
		"checked_in_time": res.CheckedInTime.Format(time.RFC3339),
	})
}

func (a *AuditLogger) Checkout(ctx context.Context, p *domain.Payment, ticketCount int) error {
	return a.logEvent(ctx, "checkout.committed", p.UserID, map[string]interface{}{
		"payment_id": p.ID.String(),
		"amount":     p.Amount.StringFixed(2),
		"tickets":    ticketCount,
		"method":     string(p.Method),
	})
}
