package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentStatusTransitions(t *testing.T) {
	assert.True(t, domain.PaymentPending.CanTransitionTo(domain.PaymentProcessing))
	assert.True(t, domain.PaymentPending.CanTransitionTo(domain.PaymentCompleted))
	assert.True(t, domain.PaymentPending.CanTransitionTo(domain.PaymentFailed))
	assert.True(t, domain.PaymentPending.CanTransitionTo(domain.PaymentCancelled))
	assert.True(t, domain.PaymentProcessing.CanTransitionTo(domain.PaymentCompleted))
	assert.True(t, domain.PaymentCompleted.CanTransitionTo(domain.PaymentRefunded))

	assert.False(t, domain.PaymentPending.CanTransitionTo(domain.PaymentRefunded))
	assert.False(t, domain.PaymentCompleted.CanTransitionTo(domain.PaymentFailed))
	assert.False(t, domain.PaymentFailed.CanTransitionTo(domain.PaymentCompleted))
	assert.False(t, domain.PaymentRefunded.CanTransitionTo(domain.PaymentPending))
}

func TestCascadeTicketStatus(t *testing.T) {
	cases := []struct {
		payment domain.PaymentStatus
		ticket  domain.TicketStatus
		cascade bool
	}{
		{domain.PaymentCompleted, domain.TicketConfirmed, true},
		{domain.PaymentRefunded, domain.TicketCancelled, true},
		{domain.PaymentFailed, domain.TicketCancelled, true},
		{domain.PaymentCancelled, domain.TicketCancelled, true},
		{domain.PaymentProcessing, "", false},
		{domain.PaymentPending, "", false},
	}
	for _, c := range cases {
		got, ok := domain.CascadeTicketStatus(c.payment)
		assert.Equal(t, c.cascade, ok, "cascade flag for %s", c.payment)
		if c.cascade {
			assert.Equal(t, c.ticket, got, "cascade target for %s", c.payment)
		}
	}
}

func TestStatusForOutcome(t *testing.T) {
	st, ok := domain.StatusForOutcome(domain.OutcomePaid)
	require.True(t, ok)
	assert.Equal(t, domain.PaymentCompleted, st)

	st, ok = domain.StatusForOutcome(domain.OutcomeFailed)
	require.True(t, ok)
	assert.Equal(t, domain.PaymentFailed, st)

	st, ok = domain.StatusForOutcome(domain.OutcomeExpired)
	require.True(t, ok)
	assert.Equal(t, domain.PaymentCancelled, st)

	_, ok = domain.StatusForOutcome("refunded")
	assert.False(t, ok)
}

func TestCanApproveOffline(t *testing.T) {
	p := domain.NewPayment(uuid.New(), decimal.NewFromInt(100), domain.MethodOffline)
	require.NoError(t, p.CanApproveOffline())

	p.Status = domain.PaymentProcessing
	require.NoError(t, p.CanApproveOffline())

	p.OfflineApproved = true
	assert.ErrorIs(t, p.CanApproveOffline(), domain.ErrAlreadyApproved)

	card := domain.NewPayment(uuid.New(), decimal.NewFromInt(50), domain.MethodCreditCard)
	assert.ErrorIs(t, card.CanApproveOffline(), domain.ErrNotOfflineMethod)

	done := domain.NewPayment(uuid.New(), decimal.NewFromInt(50), domain.MethodOffline)
	done.Status = domain.PaymentCompleted
	assert.ErrorIs(t, done.CanApproveOffline(), domain.ErrAlreadyProcessed)
}

func TestNewPaymentDefaults(t *testing.T) {
	amount := decimal.RequireFromString("99.50")
	p := domain.NewPayment(uuid.New(), amount, domain.MethodPayPal)
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.True(t, p.Amount.Equal(amount))
	assert.NotEmpty(t, p.TransactionRef)
	assert.False(t, p.OfflineApproved)
}
