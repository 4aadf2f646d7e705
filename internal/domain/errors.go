package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	// ErrEmptySelection is returned when a checkout carries no positive
	// ticket quantities.
	ErrEmptySelection = errors.New("no tickets selected")

	// ErrAlreadyProcessed guards payment transitions out of a non-pending
	// status. Callers replaying a gateway notification should treat it as a
	// success-equivalent no-op.
	ErrAlreadyProcessed = errors.New("payment already processed")

	ErrAlreadyApproved  = errors.New("payment already approved")
	ErrNotOfflineMethod = errors.New("only offline payments can be approved")
)

// AvailabilityError reports insufficient inventory for one ticket type. The
// whole checkout is aborted when any selected type is short.
type AvailabilityError struct {
	TicketTypeID   uuid.UUID
	TicketTypeName string
	Requested      int
	Remaining      int
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("only %d tickets available for %s (requested %d)", e.Remaining, e.TicketTypeName, e.Requested)
}

// AlreadyUsedError reports a scan of a ticket that was already checked in.
// It carries the original check-in time so staff can see prior state.
type AlreadyUsedError struct {
	CheckedInTime time.Time
}

func (e *AlreadyUsedError) Error() string {
	return fmt.Sprintf("ticket already checked in at %s", e.CheckedInTime.Format(time.RFC3339))
}

// InvalidStatusError reports a check-in attempt on a ticket that is not
// confirmed (still pending, or cancelled).
type InvalidStatusError struct {
	Status TicketStatus
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("cannot check in ticket with status: %s", e.Status)
}

// TransferError reports a failed transfer precondition.
type TransferError struct {
	Reason string
}

func (e *TransferError) Error() string {
	return "ticket cannot be transferred: " + e.Reason
}
