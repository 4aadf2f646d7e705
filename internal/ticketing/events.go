package ticketing

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

// EventService covers the organizer-side operations that feed back into the
// ticket lifecycle.
type EventService struct {
	store  Store
	logger observability.Logger
}

func NewEventService(store Store, logger observability.Logger) *EventService {
	return &EventService{store: store, logger: logger}
}

// CancelEvent marks the event cancelled and cancels its non-terminal
// tickets along with their unresolved payments, all in one transaction.
// Completed payments are left alone; refunds for those go through the
// payment refund path per ticket holder.
func (s *EventService) CancelEvent(ctx context.Context, eventID uuid.UUID) error {
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.SetEventStatus(ctx, eventID, domain.EventCancelled); err != nil {
			return err
		}
		paymentIDs, err := tx.UnresolvedEventPayments(ctx, eventID)
		if err != nil {
			return err
		}
		for _, id := range paymentIDs {
			if err := s.cancelPayment(ctx, tx, id); err != nil {
				return err
			}
		}
		tickets, err := tx.CancelEventTickets(ctx, eventID)
		if err != nil {
			return err
		}
		s.logger.WithField("event_id", eventID.String()).
			WithField("tickets_cancelled", tickets).
			WithField("payments_cancelled", len(paymentIDs)).
			Info("event cancelled")

		payload, _ := json.Marshal(map[string]any{
			"event_id": eventID,
			"tickets":  tickets,
		})
		return tx.InsertOutbox(ctx, OutboxEvent{
			AggregateType: "event",
			AggregateID:   eventID,
			EventType:     "event.cancelled",
			Payload:       payload,
			DedupeKey:     uuid.NewString(),
		})
	})
	if err != nil {
		return err
	}
	observability.EventCancellations.Inc()
	return nil
}

// cancelPayment cancels one unresolved payment the same way the payment
// service does: conditional status write, then a cascade over the payment's
// entire ticket set. A payment whose selections spanned several events
// releases every ticket it holds, not only the cancelled event's.
func (s *EventService) cancelPayment(ctx context.Context, tx Tx, paymentID uuid.UUID) error {
	p, err := tx.PaymentForUpdate(ctx, paymentID)
	if err != nil {
		return err
	}
	from := p.Status
	matched, err := tx.SetPaymentStatus(ctx, p.ID, from, domain.PaymentCancelled)
	if err != nil {
		return err
	}
	if !matched {
		return domain.ErrConflict
	}
	if ticketStatus, ok := domain.CascadeTicketStatus(domain.PaymentCancelled); ok {
		if _, err := tx.CascadeTickets(ctx, p.ID, ticketStatus); err != nil {
			return err
		}
	}
	observability.PaymentTransitions.WithLabelValues(string(from), string(domain.PaymentCancelled)).Inc()

	payload, _ := json.Marshal(map[string]any{
		"payment_id": p.ID,
		"from":       from,
		"to":         domain.PaymentCancelled,
	})
	return tx.InsertOutbox(ctx, OutboxEvent{
		AggregateType: "payment",
		AggregateID:   p.ID,
		EventType:     "payment." + string(domain.PaymentCancelled),
		Payload:       payload,
		DedupeKey:     uuid.NewString(),
	})
}
