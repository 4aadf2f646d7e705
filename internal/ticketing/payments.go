package ticketing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

// PaymentService owns the payment state machine. Every status write and its
// ticket cascade happen inside one transaction, so a payment can never be
// observed completed while its tickets are still pending.
type PaymentService struct {
	store   Store
	gateway Gateway
	audit   Auditor
	logger  observability.Logger
}

func NewPaymentService(store Store, gateway Gateway, audit Auditor, logger observability.Logger) *PaymentService {
	return &PaymentService{store: store, gateway: gateway, audit: audit, logger: logger}
}

// HandleGatewayEvent applies a gateway notification to the payment holding
// the given external reference. Notifications may be retried or arrive out
// of order; any payment no longer pending rejects the transition with
// ErrAlreadyProcessed, which callers treat as a safe no-op.
func (s *PaymentService) HandleGatewayEvent(ctx context.Context, externalRef string, outcome domain.GatewayOutcome) (*domain.Payment, error) {
	target, ok := domain.StatusForOutcome(outcome)
	if !ok {
		return nil, domain.ErrInvalidInput
	}

	var payment *domain.Payment
	err := s.store.WithTx(ctx, func(tx Tx) error {
		p, err := tx.PaymentByRefForUpdate(ctx, externalRef)
		if err != nil {
			return err
		}
		if p.Status != domain.PaymentPending {
			return domain.ErrAlreadyProcessed
		}
		payment = p
		return s.transition(ctx, tx, p, target)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ApproveOffline completes an offline payment and records who approved it.
// Valid from pending or processing; a second approval fails with
// ErrAlreadyApproved without re-cascading ticket status.
func (s *PaymentService) ApproveOffline(ctx context.Context, paymentID, approverID uuid.UUID) (*domain.Payment, error) {
	var payment *domain.Payment
	err := s.store.WithTx(ctx, func(tx Tx) error {
		p, err := tx.PaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := p.CanApproveOffline(); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.RecordOfflineApproval(ctx, p.ID, approverID, now); err != nil {
			return err
		}
		p.OfflineApproved = true
		p.ApprovedBy = &approverID
		p.ApprovalTime = &now
		payment = p
		return s.transition(ctx, tx, p, domain.PaymentCompleted)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// StartProcessing moves a pending offline payment into processing while it
// awaits staff approval. Tickets stay pending; no cascade happens.
func (s *PaymentService) StartProcessing(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	var payment *domain.Payment
	err := s.store.WithTx(ctx, func(tx Tx) error {
		p, err := tx.PaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != domain.PaymentPending {
			return domain.ErrAlreadyProcessed
		}
		payment = p
		return s.transition(ctx, tx, p, domain.PaymentProcessing)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// Refund cancels the tickets of a completed payment. The gateway refund
// itself is the caller's concern; this owns only the state transition.
func (s *PaymentService) Refund(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	var payment *domain.Payment
	err := s.store.WithTx(ctx, func(tx Tx) error {
		p, err := tx.PaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != domain.PaymentCompleted {
			return domain.ErrAlreadyProcessed
		}
		payment = p
		return s.transition(ctx, tx, p, domain.PaymentRefunded)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// CancelExpired cancels a pending payment that outlived its TTL. Used by the
// expiry worker; processing payments are deliberately exempt, staff resolve
// those by approving or refusing them.
func (s *PaymentService) CancelExpired(ctx context.Context, paymentID uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx Tx) error {
		p, err := tx.PaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != domain.PaymentPending {
			return domain.ErrAlreadyProcessed
		}
		return s.transition(ctx, tx, p, domain.PaymentCancelled)
	})
}

// CreateGatewaySession asks the external gateway for a redirect handle for a
// pending online payment.
func (s *PaymentService) CreateGatewaySession(ctx context.Context, paymentID uuid.UUID, successURL, cancelURL string) (string, error) {
	p, err := s.store.Payment(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if p.Status != domain.PaymentPending {
		return "", domain.ErrAlreadyProcessed
	}
	if p.Method == domain.MethodOffline {
		return "", domain.ErrInvalidInput
	}
	return s.gateway.CreateSession(ctx, p, successURL, cancelURL)
}

// Payment returns a payment with its ticket set.
func (s *PaymentService) Payment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.store.Payment(ctx, id)
}

// transition writes the new payment status, cascades it to the payment's
// tickets per the cascade table, and records an outbox event, all on the
// caller's transaction. The caller has already validated the transition.
func (s *PaymentService) transition(ctx context.Context, tx Tx, p *domain.Payment, to domain.PaymentStatus) error {
	from := p.Status
	matched, err := tx.SetPaymentStatus(ctx, p.ID, from, to)
	if err != nil {
		return err
	}
	if !matched {
		return domain.ErrAlreadyProcessed
	}
	p.Status = to

	if ticketStatus, ok := domain.CascadeTicketStatus(to); ok {
		n, err := tx.CascadeTickets(ctx, p.ID, ticketStatus)
		if err != nil {
			return err
		}
		s.logger.WithField("payment_id", p.ID.String()).
			WithField("cascaded", n).
			Info("payment ", from, " -> ", to)
	}

	observability.PaymentTransitions.WithLabelValues(string(from), string(to)).Inc()
	if err := s.audit.PaymentTransition(ctx, p, from, to); err != nil {
		s.logger.WithField("payment_id", p.ID.String()).Error("audit payment transition failed: ", err)
	}

	payload, _ := json.Marshal(map[string]any{
		"payment_id": p.ID,
		"from":       from,
		"to":         to,
	})
	return tx.InsertOutbox(ctx, OutboxEvent{
		AggregateType: "payment",
		AggregateID:   p.ID,
		EventType:     "payment." + string(to),
		Payload:       payload,
		DedupeKey:     uuid.NewString(),
	})
}
