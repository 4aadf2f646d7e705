package domain

import "github.com/google/uuid"

// ticketTransitions is the ticket state machine. Cancelled and used are
// terminal.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketPending:   {TicketConfirmed, TicketCancelled},
	TicketConfirmed: {TicketCancelled, TicketUsed},
	TicketCancelled: {},
	TicketUsed:      {},
}

func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, allowed := range ticketTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s TicketStatus) Terminal() bool {
	return len(ticketTransitions[s]) == 0
}

// Active reports whether the ticket occupies capacity. Only cancelled
// tickets release their slot.
func (s TicketStatus) Active() bool {
	return s == TicketPending || s == TicketConfirmed || s == TicketUsed
}

// CanTransferTo checks the transfer preconditions: the ticket must be
// confirmed, not checked in, and the recipient must differ from the current
// holder. Self-transfer is rejected explicitly to surface user error.
func (t *Ticket) CanTransferTo(newUserID uuid.UUID) error {
	if t.Status != TicketConfirmed {
		return &TransferError{Reason: "status is " + string(t.Status)}
	}
	if t.CheckedIn {
		return &TransferError{Reason: "ticket is already checked in"}
	}
	if t.UserID == newUserID {
		return &TransferError{Reason: "cannot transfer a ticket to yourself"}
	}
	return nil
}
