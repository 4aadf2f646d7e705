package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
	EventEnded     EventStatus = "ended"
)

type Event struct {
	ID          uuid.UUID
	Name        string
	Venue       string
	StartsAt    time.Time
	Status      EventStatus
	OrganizerID uuid.UUID
}

// TicketType is a priced admission category for one event. Capacity 0 means
// unlimited; otherwise the count of tickets in non-cancelled states must
// never exceed it.
type TicketType struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	Capacity    int
}

func (tt TicketType) Unlimited() bool {
	return tt.Capacity == 0
}

type TicketStatus string

const (
	TicketPending   TicketStatus = "pending"
	TicketConfirmed TicketStatus = "confirmed"
	TicketCancelled TicketStatus = "cancelled"
	TicketUsed      TicketStatus = "used"
)

type Ticket struct {
	ID            uuid.UUID
	Code          uuid.UUID // opaque external identifier, immutable
	TicketTypeID  uuid.UUID
	UserID        uuid.UUID
	Status        TicketStatus
	CheckedIn     bool
	CheckedInTime *time.Time
	PurchasedAt   time.Time
}

func NewTicket(ticketTypeID, userID uuid.UUID) *Ticket {
	return &Ticket{
		ID:           uuid.New(),
		Code:         uuid.New(),
		TicketTypeID: ticketTypeID,
		UserID:       userID,
		Status:       TicketPending,
		PurchasedAt:  time.Now().UTC(),
	}
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentCancelled  PaymentStatus = "cancelled"
)

type PaymentMethod string

const (
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodPayPal       PaymentMethod = "paypal"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodOffline      PaymentMethod = "offline"
)

func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case MethodCreditCard, MethodPayPal, MethodBankTransfer, MethodOffline:
		return true
	}
	return false
}

// Payment covers a fixed set of tickets. Amount is a snapshot of the ticket
// type prices at creation time and is never recomputed, even if a price
// changes later.
type Payment struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Amount          decimal.Decimal
	Status          PaymentStatus
	Method          PaymentMethod
	TransactionRef  string
	OfflineApproved bool
	ApprovedBy      *uuid.UUID
	ApprovalTime    *time.Time
	CreatedAt       time.Time
	TicketIDs       []uuid.UUID
}

func NewPayment(userID uuid.UUID, amount decimal.Decimal, method PaymentMethod) *Payment {
	return &Payment{
		ID:             uuid.New(),
		UserID:         userID,
		Amount:         amount,
		Status:         PaymentPending,
		Method:         method,
		TransactionRef: uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
	}
}
