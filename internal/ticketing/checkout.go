package ticketing

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/shopspring/decimal"
)

// CheckoutService composes inventory reservation, ticket creation and
// payment creation into one atomic purchase transaction.
type CheckoutService struct {
	store  Store
	audit  Auditor
	logger observability.Logger
}

func NewCheckoutService(store Store, audit Auditor, logger observability.Logger) *CheckoutService {
	return &CheckoutService{store: store, audit: audit, logger: logger}
}

// Checkout reserves capacity for every selected ticket type, creates the
// pending tickets and the pending payment covering them, all in one
// transaction. Any shortfall aborts the whole purchase; partial purchases
// are never created.
func (s *CheckoutService) Checkout(ctx context.Context, userID uuid.UUID, selections map[uuid.UUID]int, method domain.PaymentMethod) (*domain.Payment, error) {
	if !domain.ValidPaymentMethod(method) {
		return nil, domain.ErrInvalidInput
	}

	wanted := make(map[uuid.UUID]int, len(selections))
	for id, qty := range selections {
		if qty > 0 {
			wanted[id] = qty
		}
	}
	if len(wanted) == 0 {
		return nil, domain.ErrEmptySelection
	}

	// Lock ticket type rows in a stable order so concurrent checkouts that
	// overlap on types cannot deadlock.
	typeIDs := make([]uuid.UUID, 0, len(wanted))
	for id := range wanted {
		typeIDs = append(typeIDs, id)
	}
	sort.Slice(typeIDs, func(i, j int) bool { return typeIDs[i].String() < typeIDs[j].String() })

	start := time.Now()
	var payment *domain.Payment
	var tickets []*domain.Ticket

	err := s.store.WithTx(ctx, func(tx Tx) error {
		tickets = tickets[:0]
		total := decimal.Zero

		for _, typeID := range typeIDs {
			qty := wanted[typeID]

			tt, err := tx.LockTicketType(ctx, typeID)
			if err != nil {
				return err
			}
			if !tt.Unlimited() {
				sold, err := tx.CountActiveTickets(ctx, tt.ID)
				if err != nil {
					return err
				}
				if remaining := tt.Capacity - sold; qty > remaining {
					observability.OversellRejections.Inc()
					return &domain.AvailabilityError{
						TicketTypeID:   tt.ID,
						TicketTypeName: tt.Name,
						Requested:      qty,
						Remaining:      remaining,
					}
				}
			}

			total = total.Add(tt.Price.Mul(decimal.NewFromInt(int64(qty))))
			for i := 0; i < qty; i++ {
				tickets = append(tickets, domain.NewTicket(tt.ID, userID))
			}
		}

		payment = domain.NewPayment(userID, total, method)
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		if err := tx.InsertTickets(ctx, payment.ID, tickets); err != nil {
			return err
		}
		for _, tk := range tickets {
			payment.TicketIDs = append(payment.TicketIDs, tk.ID)
		}

		payload, _ := json.Marshal(map[string]any{
			"payment_id": payment.ID,
			"user_id":    userID,
			"amount":     payment.Amount.StringFixed(2),
			"tickets":    len(tickets),
		})
		return tx.InsertOutbox(ctx, OutboxEvent{
			AggregateType: "payment",
			AggregateID:   payment.ID,
			EventType:     "payment.created",
			Payload:       payload,
			DedupeKey:     uuid.NewString(),
		})
	})
	if err != nil {
		return nil, err
	}

	observability.CheckoutsTotal.WithLabelValues(string(method)).Inc()
	observability.DBTxDuration.Observe(time.Since(start).Seconds())

	if err := s.audit.Checkout(ctx, payment, len(tickets)); err != nil {
		s.logger.WithField("payment_id", payment.ID.String()).Error("audit checkout failed: ", err)
	}
	s.logger.WithField("payment_id", payment.ID.String()).
		WithField("tickets", len(tickets)).
		Info("checkout committed")

	return payment, nil
}

// Availability reports remaining capacity for a ticket type outside any
// purchase. The number is advisory; only check_and_reserve inside a
// transaction is authoritative.
func (s *CheckoutService) Availability(ctx context.Context, ticketTypeID uuid.UUID) (*Availability, error) {
	tt, err := s.store.TicketType(ctx, ticketTypeID)
	if err != nil {
		return nil, err
	}
	av := &Availability{TicketTypeID: tt.ID, Capacity: tt.Capacity, Unlimited: tt.Unlimited()}
	if av.Unlimited {
		return av, nil
	}
	sold, err := s.store.ActiveTicketCount(ctx, tt.ID)
	if err != nil {
		return nil, err
	}
	av.Sold = sold
	av.Remaining = tt.Capacity - sold
	if av.Remaining < 0 {
		av.Remaining = 0
	}
	return av, nil
}

type Availability struct {
	TicketTypeID uuid.UUID `json:"ticket_type_id"`
	Capacity     int       `json:"capacity"`
	Sold         int       `json:"sold"`
	Remaining    int       `json:"remaining"`
	Unlimited    bool      `json:"unlimited"`
}
