package ticketing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
)

// Store is the persistence port for the ticketing services. WithTx runs fn
// inside a single serializable transaction; everything the services do in
// fn either commits as a whole or rolls back.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error

	Payment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	PaymentByRef(ctx context.Context, ref string) (*domain.Payment, error)
	TicketByCode(ctx context.Context, code uuid.UUID) (*domain.Ticket, error)
	TicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error)
	ActiveTicketCount(ctx context.Context, ticketTypeID uuid.UUID) (int, error)
	ExpiredPendingPayments(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
}

// Tx is the set of statements available inside a Store transaction.
type Tx interface {
	// LockTicketType reads the ticket type row under an exclusive row lock.
	// The lock scopes the count-then-insert sequence so concurrent
	// reservations against the same type serialize.
	LockTicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error)
	CountActiveTickets(ctx context.Context, ticketTypeID uuid.UUID) (int, error)

	InsertPayment(ctx context.Context, p *domain.Payment) error
	InsertTickets(ctx context.Context, paymentID uuid.UUID, tickets []*domain.Ticket) error

	PaymentForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	PaymentByRefForUpdate(ctx context.Context, ref string) (*domain.Payment, error)
	// SetPaymentStatus performs a conditional update and reports whether the
	// row matched the expected current status.
	SetPaymentStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus) (bool, error)
	RecordOfflineApproval(ctx context.Context, id, approverID uuid.UUID, at time.Time) error
	// CascadeTickets bulk-updates every ticket associated with the payment.
	CascadeTickets(ctx context.Context, paymentID uuid.UUID, to domain.TicketStatus) (int64, error)

	TicketByCodeForUpdate(ctx context.Context, code uuid.UUID) (*domain.Ticket, error)
	// CheckInTicket conditionally marks a confirmed, not-yet-checked-in
	// ticket as used. Returns false when the guard predicate matched no row.
	CheckInTicket(ctx context.Context, code uuid.UUID, at time.Time) (bool, error)
	TicketContext(ctx context.Context, code uuid.UUID) (*TicketContext, error)
	SetTicketOwner(ctx context.Context, ticketID, newUserID uuid.UUID) error

	SetEventStatus(ctx context.Context, eventID uuid.UUID, status domain.EventStatus) error
	CancelEventTickets(ctx context.Context, eventID uuid.UUID) (int64, error)
	// UnresolvedEventPayments lists pending and processing payments whose
	// ticket set touches the event, in id order. Cancelling each goes
	// through the payment transition path so the cascade covers the
	// payment's full ticket set, not only this event's tickets.
	UnresolvedEventPayments(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error)

	InsertOutbox(ctx context.Context, ev OutboxEvent) error
}

// TicketContext is a ticket joined with its type and event names, used to
// build staff-facing check-in responses.
type TicketContext struct {
	Ticket         domain.Ticket
	TicketTypeName string
	EventID        uuid.UUID
	EventName      string
}

// OutboxEvent is written in the same transaction as the state change it
// describes and published asynchronously by the outbox publisher.
type OutboxEvent struct {
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	DedupeKey     string
}

// Gateway is the external payment collaborator. The core only asks it for a
// redirect handle; everything else arrives back through webhook outcomes.
type Gateway interface {
	CreateSession(ctx context.Context, p *domain.Payment, successURL, cancelURL string) (redirectURL string, err error)
}

// Auditor records domain activity out of band. Failures are logged, never
// propagated.
type Auditor interface {
	PaymentTransition(ctx context.Context, p *domain.Payment, from, to domain.PaymentStatus) error
	CheckIn(ctx context.Context, res *CheckInResult) error
	Checkout(ctx context.Context, p *domain.Payment, ticketCount int) error
}

// NopAuditor satisfies Auditor for wiring paths that do not audit.
type NopAuditor struct{}

func (NopAuditor) PaymentTransition(context.Context, *domain.Payment, domain.PaymentStatus, domain.PaymentStatus) error {
	return nil
}
func (NopAuditor) CheckIn(context.Context, *CheckInResult) error { return nil }
func (NopAuditor) Checkout(context.Context, *domain.Payment, int) error { return nil }
