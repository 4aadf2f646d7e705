package ticketing

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

// TransferService reassigns ticket ownership. The payment association stays
// with the original purchase; only the holder changes.
type TransferService struct {
	store  Store
	logger observability.Logger
}

func NewTransferService(store Store, logger observability.Logger) *TransferService {
	return &TransferService{store: store, logger: logger}
}

// Transfer moves the ticket with the given code to newUserID. Permitted only
// for confirmed, not-checked-in tickets; the calling layer has already
// established that the requester may act on this ticket.
func (s *TransferService) Transfer(ctx context.Context, code string, newUserID uuid.UUID) (*domain.Ticket, error) {
	ticketCode, err := uuid.Parse(code)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	var ticket *domain.Ticket
	err = s.store.WithTx(ctx, func(tx Tx) error {
		tk, err := tx.TicketByCodeForUpdate(ctx, ticketCode)
		if err != nil {
			return err
		}
		if err := tk.CanTransferTo(newUserID); err != nil {
			return err
		}
		if err := tx.SetTicketOwner(ctx, tk.ID, newUserID); err != nil {
			return err
		}
		previous := tk.UserID
		tk.UserID = newUserID
		ticket = tk

		payload, _ := json.Marshal(map[string]any{
			"ticket_id": tk.ID,
			"from_user": previous,
			"to_user":   newUserID,
		})
		return tx.InsertOutbox(ctx, OutboxEvent{
			AggregateType: "ticket",
			AggregateID:   tk.ID,
			EventType:     "ticket.transferred",
			Payload:       payload,
			DedupeKey:     uuid.NewString(),
		})
	})
	if err != nil {
		return nil, err
	}

	observability.TransfersTotal.Inc()
	s.logger.WithField("ticket_code", code).Info("ticket transferred")
	return ticket, nil
}
