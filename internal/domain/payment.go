package domain

// paymentTransitions is the payment state machine. Gateway-driven
// transitions leave pending; completed payments can still be refunded, and
// the offline approval path moves processing to completed.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentCancelled},
	PaymentProcessing: {PaymentCompleted, PaymentCancelled},
	PaymentCompleted:  {PaymentRefunded},
	PaymentFailed:     {},
	PaymentRefunded:   {},
	PaymentCancelled:  {},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PaymentStatus) Terminal() bool {
	return len(paymentTransitions[s]) == 0
}

// CascadeTicketStatus maps a new payment status to the ticket status that
// must be written to every associated ticket in the same transaction.
// Processing cascades nothing: tickets stay pending until the payment
// resolves.
func CascadeTicketStatus(s PaymentStatus) (TicketStatus, bool) {
	switch s {
	case PaymentCompleted:
		return TicketConfirmed, true
	case PaymentFailed, PaymentRefunded, PaymentCancelled:
		return TicketCancelled, true
	default:
		return "", false
	}
}

// GatewayOutcome is the narrow contract with the external payment gateway:
// its notifications collapse to one of three outcomes.
type GatewayOutcome string

const (
	OutcomePaid    GatewayOutcome = "paid"
	OutcomeFailed  GatewayOutcome = "failed"
	OutcomeExpired GatewayOutcome = "expired"
)

// StatusForOutcome maps a gateway outcome to the payment status it drives.
func StatusForOutcome(o GatewayOutcome) (PaymentStatus, bool) {
	switch o {
	case OutcomePaid:
		return PaymentCompleted, true
	case OutcomeFailed:
		return PaymentFailed, true
	case OutcomeExpired:
		return PaymentCancelled, true
	default:
		return "", false
	}
}

// CanApproveOffline checks the offline approval preconditions.
func (p *Payment) CanApproveOffline() error {
	if p.Method != MethodOffline {
		return ErrNotOfflineMethod
	}
	if p.OfflineApproved {
		return ErrAlreadyApproved
	}
	if p.Status != PaymentPending && p.Status != PaymentProcessing {
		return ErrAlreadyProcessed
	}
	return nil
}
