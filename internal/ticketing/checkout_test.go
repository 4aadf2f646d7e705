package ticketing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEvent(s *fakeStore) domain.Event {
	ev := domain.Event{ID: uuid.New(), Name: "Go Conf", Status: domain.EventPublished}
	s.addEvent(ev)
	return ev
}

func seedTicketType(s *fakeStore, eventID uuid.UUID, price string, capacity int) domain.TicketType {
	tt := domain.TicketType{
		ID:       uuid.New(),
		EventID:  eventID,
		Name:     "General",
		Price:    decimal.RequireFromString(price),
		Capacity: capacity,
	}
	s.addTicketType(tt)
	return tt
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending payment and tickets", func(t *testing.T) {
		store := newFakeStore()
		ev := seedEvent(store)
		tt := seedTicketType(store, ev.ID, "25.00", 100)
		svc := NewCheckoutService(store, NopAuditor{}, testLogger())
		userID := uuid.New()

		payment, err := svc.Checkout(ctx, userID, map[uuid.UUID]int{tt.ID: 3}, domain.MethodCreditCard)
		require.NoError(t, err)

		assert.Equal(t, domain.PaymentPending, payment.Status)
		assert.Equal(t, "75.00", payment.Amount.StringFixed(2))
		assert.Len(t, payment.TicketIDs, 3)
		assert.NotEmpty(t, payment.TransactionRef)

		for _, id := range payment.TicketIDs {
			tk := store.tickets[id]
			assert.Equal(t, domain.TicketPending, tk.Status)
			assert.Equal(t, userID, tk.UserID)
			assert.Equal(t, tt.ID, tk.TicketTypeID)
		}
		require.Len(t, store.outbox, 1)
		assert.Equal(t, "payment.created", store.outbox[0].EventType)
	})

	t.Run("rejects unknown payment method", func(t *testing.T) {
		store := newFakeStore()
		ev := seedEvent(store)
		tt := seedTicketType(store, ev.ID, "25.00", 100)
		svc := NewCheckoutService(store, NopAuditor{}, testLogger())

		_, err := svc.Checkout(ctx, uuid.New(), map[uuid.UUID]int{tt.ID: 1}, "bitcoin")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("rejects empty selection", func(t *testing.T) {
		store := newFakeStore()
		svc := NewCheckoutService(store, NopAuditor{}, testLogger())

		_, err := svc.Checkout(ctx, uuid.New(), nil, domain.MethodPayPal)
		assert.ErrorIs(t, err, domain.ErrEmptySelection)

		_, err = svc.Checkout(ctx, uuid.New(), map[uuid.UUID]int{uuid.New(): 0}, domain.MethodPayPal)
		assert.ErrorIs(t, err, domain.ErrEmptySelection)
	})

	t.Run("rejects oversell", func(t *testing.T) {
		store := newFakeStore()
		ev := seedEvent(store)
		tt := seedTicketType(store, ev.ID, "10.00", 2)
		svc := NewCheckoutService(store, NopAuditor{}, testLogger())

		_, err := svc.Checkout(ctx, uuid.New(), map[uuid.UUID]int{tt.ID: 3}, domain.MethodCreditCard)
		var availErr *domain.AvailabilityError
		require.ErrorAs(t, err, &availErr)
		assert.Equal(t, tt.ID, availErr.TicketTypeID)
		assert.Equal(t, 3, availErr.Requested)
		assert.Equal(t, 2, availErr.Remaining)
		assert.Empty(t, store.payments)
		assert.Empty(t, store.tickets)
	})

	t.Run("counts used tickets against capacity", func(t *testing.T) {
		store := newFakeStore()
		ev := seedEvent(store)
		tt := seedTicketType(store, ev.ID, "10.00", 2)
		used := domain.NewTicket(tt.ID, uuid.New())
		used.Status = domain.TicketUsed
		store.addTicket(*used, uuid.Nil)
		svc := NewCheckoutService(store, NopAuditor{}, testLogger())

		_, err := svc.Checkout(ctx, uuid.New(), map[uuid.UUID]int{tt.ID: 2}, domain.MethodCreditCard)
		var availErr *domain.AvailabilityError
		require.ErrorAs(t, err, &availErr)
		assert.Equal(t, 1, availErr.Remaining)
	})

	t.Run("ignores cancelled tickets for capacity", func(t *testing.T) {
		store := newFakeStore()
		ev := seedEvent(store)
		tt := seedTicketType(store, ev.ID, "10.00", 1)
		cancelled := domain.NewTicket(tt.ID, uuid.New())
		cancelled.Status = domain.TicketCancelled
		store.addTicket(*cancelled, uuid.Nil)
		svc := NewCheckoutService(store, NopAuditor{}, testLogger())

		_, err := svc.Checkout(ctx, uuid.New(), map[uuid.UUID]int{tt.ID: 1}, domain.MethodCreditCard)
		assert.NoError(t, err)
	})

	t.Run("shortfall on one type aborts the whole purchase", func(t *testing.T) {
		store := newFakeStore()
		ev := seedEvent(store)
		plenty := seedTicketType(store, ev.ID, "10.00", 100)
		scarce := seedTicketType(store, ev.ID, "50.00", 1)
		svc := NewCheckoutService(store, NopAuditor{}, testLogger())

		_, err := svc.Checkout(ctx, uuid.New(), map[uuid.UUID]int{
			plenty.ID: 5,
			scarce.ID: 2,
		}, domain.MethodCreditCard)

		var availErr *domain.AvailabilityError
		require.ErrorAs(t, err, &availErr)
		assert.Equal(t, scarce.ID, availErr.TicketTypeID)
		assert.Empty(t, store.payments, "no payment row may survive a failed checkout")
		assert.Empty(t, store.tickets, "no ticket rows may survive a failed checkout")
		assert.Empty(t, store.outbox)
	})

	t.Run("unlimited capacity never rejects", func(t *testing.T) {
		store := newFakeStore()
		ev := seedEvent(store)
		tt := seedTicketType(store, ev.ID, "5.00", 0)
		svc := NewCheckoutService(store, NopAuditor{}, testLogger())

		payment, err := svc.Checkout(ctx, uuid.New(), map[uuid.UUID]int{tt.ID: 500}, domain.MethodBankTransfer)
		require.NoError(t, err)
		assert.Len(t, payment.TicketIDs, 500)
		assert.Equal(t, "2500.00", payment.Amount.StringFixed(2))
	})

	t.Run("amount snapshots current prices across types", func(t *testing.T) {
		store := newFakeStore()
		ev := seedEvent(store)
		general := seedTicketType(store, ev.ID, "25.50", 10)
		vip := seedTicketType(store, ev.ID, "99.99", 10)
		svc := NewCheckoutService(store, NopAuditor{}, testLogger())

		payment, err := svc.Checkout(ctx, uuid.New(), map[uuid.UUID]int{
			general.ID: 2,
			vip.ID:     1,
		}, domain.MethodCreditCard)
		require.NoError(t, err)
		assert.Equal(t, "150.99", payment.Amount.StringFixed(2))
	})
}

func TestAvailability(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	ev := seedEvent(store)
	tt := seedTicketType(store, ev.ID, "10.00", 5)
	svc := NewCheckoutService(store, NopAuditor{}, testLogger())

	_, err := svc.Checkout(ctx, uuid.New(), map[uuid.UUID]int{tt.ID: 2}, domain.MethodCreditCard)
	require.NoError(t, err)

	av, err := svc.Availability(ctx, tt.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, av.Capacity)
	assert.Equal(t, 2, av.Sold)
	assert.Equal(t, 3, av.Remaining)
	assert.False(t, av.Unlimited)

	unlimited := seedTicketType(store, ev.ID, "10.00", 0)
	av, err = svc.Availability(ctx, unlimited.ID)
	require.NoError(t, err)
	assert.True(t, av.Unlimited)

	_, err = svc.Availability(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
