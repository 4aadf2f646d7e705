package ticketing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

// CheckInService redeems confirmed tickets at the door. Check-in is one-way
// and idempotent: of two simultaneous scans exactly one transitions the
// ticket, the other reports the prior check-in.
type CheckInService struct {
	store  Store
	audit  Auditor
	logger observability.Logger
}

func NewCheckInService(store Store, audit Auditor, logger observability.Logger) *CheckInService {
	return &CheckInService{store: store, audit: audit, logger: logger}
}

type CheckInResult struct {
	TicketCode    uuid.UUID `json:"ticket_code"`
	AttendeeID    uuid.UUID `json:"attendee_id"`
	TicketType    string    `json:"ticket_type"`
	Event         string    `json:"event"`
	CheckedInTime time.Time `json:"checked_in_time"`
}

// CheckIn validates the code and atomically marks the ticket used. The code
// is opaque: anything that does not resolve to a ticket is ErrNotFound.
func (s *CheckInService) CheckIn(ctx context.Context, code string) (*CheckInResult, error) {
	ticketCode, err := uuid.Parse(code)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	var result *CheckInResult
	err = s.store.WithTx(ctx, func(tx Tx) error {
		// The row lock serializes concurrent scans of the same code: the
		// loser blocks here and then observes the post-transition state.
		tk, err := tx.TicketByCodeForUpdate(ctx, ticketCode)
		if err != nil {
			return err
		}
		if tk.CheckedIn {
			at := tk.PurchasedAt
			if tk.CheckedInTime != nil {
				at = *tk.CheckedInTime
			}
			return &domain.AlreadyUsedError{CheckedInTime: at}
		}
		if tk.Status != domain.TicketConfirmed {
			return &domain.InvalidStatusError{Status: tk.Status}
		}

		now := time.Now().UTC()
		ok, err := tx.CheckInTicket(ctx, ticketCode, now)
		if err != nil {
			return err
		}
		if !ok {
			// Unreachable under the row lock, kept as a hard guard.
			return domain.ErrConflict
		}

		tctx, err := tx.TicketContext(ctx, ticketCode)
		if err != nil {
			return err
		}
		result = &CheckInResult{
			TicketCode:    ticketCode,
			AttendeeID:    tk.UserID,
			TicketType:    tctx.TicketTypeName,
			Event:         tctx.EventName,
			CheckedInTime: now,
		}

		payload, _ := json.Marshal(map[string]any{
			"ticket_id":   tk.ID,
			"ticket_code": ticketCode,
			"attendee_id": tk.UserID,
		})
		return tx.InsertOutbox(ctx, OutboxEvent{
			AggregateType: "ticket",
			AggregateID:   tk.ID,
			EventType:     "ticket.checked_in",
			Payload:       payload,
			DedupeKey:     uuid.NewString(),
		})
	})
	if err != nil {
		return nil, err
	}

	observability.CheckInsTotal.Inc()
	if err := s.audit.CheckIn(ctx, result); err != nil {
		s.logger.WithField("ticket_code", code).Error("audit check-in failed: ", err)
	}
	return result, nil
}

// Ticket looks up a ticket by its opaque code.
func (s *CheckInService) Ticket(ctx context.Context, code string) (*domain.Ticket, error) {
	ticketCode, err := uuid.Parse(code)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	return s.store.TicketByCode(ctx, ticketCode)
}
