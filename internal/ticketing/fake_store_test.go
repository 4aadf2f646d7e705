package ticketing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

func testLogger() observability.Logger {
	return observability.NewLogger()
}

// fakeStore is an in-memory Store with transactional rollback: WithTx
// snapshots all state and restores it when fn fails, so the all-or-nothing
// behavior of the services is observable in tests.
type fakeStore struct {
	mu sync.Mutex

	events         map[uuid.UUID]domain.Event
	ticketTypes    map[uuid.UUID]domain.TicketType
	tickets        map[uuid.UUID]domain.Ticket
	codeIndex      map[uuid.UUID]uuid.UUID
	payments       map[uuid.UUID]domain.Payment
	paymentTickets map[uuid.UUID][]uuid.UUID
	outbox         []OutboxEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:         make(map[uuid.UUID]domain.Event),
		ticketTypes:    make(map[uuid.UUID]domain.TicketType),
		tickets:        make(map[uuid.UUID]domain.Ticket),
		codeIndex:      make(map[uuid.UUID]uuid.UUID),
		payments:       make(map[uuid.UUID]domain.Payment),
		paymentTickets: make(map[uuid.UUID][]uuid.UUID),
	}
}

var _ Store = (*fakeStore)(nil)

func (s *fakeStore) addEvent(e domain.Event) { s.events[e.ID] = e }

func (s *fakeStore) addTicketType(tt domain.TicketType) { s.ticketTypes[tt.ID] = tt }

func (s *fakeStore) addTicket(tk domain.Ticket, paymentID uuid.UUID) {
	s.tickets[tk.ID] = tk
	s.codeIndex[tk.Code] = tk.ID
	if paymentID != uuid.Nil {
		s.paymentTickets[paymentID] = append(s.paymentTickets[paymentID], tk.ID)
	}
}

func (s *fakeStore) addPayment(p domain.Payment) { s.payments[p.ID] = p }

type snapshot struct {
	events         map[uuid.UUID]domain.Event
	ticketTypes    map[uuid.UUID]domain.TicketType
	tickets        map[uuid.UUID]domain.Ticket
	codeIndex      map[uuid.UUID]uuid.UUID
	payments       map[uuid.UUID]domain.Payment
	paymentTickets map[uuid.UUID][]uuid.UUID
	outboxLen      int
}

func (s *fakeStore) snapshot() snapshot {
	snap := snapshot{
		events:         make(map[uuid.UUID]domain.Event, len(s.events)),
		ticketTypes:    make(map[uuid.UUID]domain.TicketType, len(s.ticketTypes)),
		tickets:        make(map[uuid.UUID]domain.Ticket, len(s.tickets)),
		codeIndex:      make(map[uuid.UUID]uuid.UUID, len(s.codeIndex)),
		payments:       make(map[uuid.UUID]domain.Payment, len(s.payments)),
		paymentTickets: make(map[uuid.UUID][]uuid.UUID, len(s.paymentTickets)),
		outboxLen:      len(s.outbox),
	}
	for k, v := range s.events {
		snap.events[k] = v
	}
	for k, v := range s.ticketTypes {
		snap.ticketTypes[k] = v
	}
	for k, v := range s.tickets {
		snap.tickets[k] = v
	}
	for k, v := range s.codeIndex {
		snap.codeIndex[k] = v
	}
	for k, v := range s.payments {
		snap.payments[k] = v
	}
	for k, v := range s.paymentTickets {
		ids := make([]uuid.UUID, len(v))
		copy(ids, v)
		snap.paymentTickets[k] = ids
	}
	return snap
}

func (s *fakeStore) restore(snap snapshot) {
	s.events = snap.events
	s.ticketTypes = snap.ticketTypes
	s.tickets = snap.tickets
	s.codeIndex = snap.codeIndex
	s.payments = snap.payments
	s.paymentTickets = snap.paymentTickets
	s.outbox = s.outbox[:snap.outboxLen]
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(&fakeTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *fakeStore) Payment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paymentLocked(id)
}

func (s *fakeStore) paymentLocked(id uuid.UUID) (*domain.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p.TicketIDs = append([]uuid.UUID(nil), s.paymentTickets[id]...)
	return &p, nil
}

func (s *fakeStore) PaymentByRef(ctx context.Context, ref string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paymentByRefLocked(ref)
}

func (s *fakeStore) paymentByRefLocked(ref string) (*domain.Payment, error) {
	for id, p := range s.payments {
		if p.TransactionRef == ref {
			return s.paymentLocked(id)
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) TicketByCode(ctx context.Context, code uuid.UUID) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticketByCodeLocked(code)
}

func (s *fakeStore) ticketByCodeLocked(code uuid.UUID) (*domain.Ticket, error) {
	id, ok := s.codeIndex[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	tk := s.tickets[id]
	return &tk, nil
}

func (s *fakeStore) TicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.ticketTypes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &tt, nil
}

func (s *fakeStore) ActiveTicketCount(ctx context.Context, ticketTypeID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCountLocked(ticketTypeID), nil
}

func (s *fakeStore) activeCountLocked(ticketTypeID uuid.UUID) int {
	n := 0
	for _, tk := range s.tickets {
		if tk.TicketTypeID == ticketTypeID && tk.Status != domain.TicketCancelled {
			n++
		}
	}
	return n
}

func (s *fakeStore) ExpiredPendingPayments(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, p := range s.payments {
		if p.Status == domain.PaymentPending && !p.CreatedAt.After(before) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

type fakeTx struct {
	s *fakeStore
}

var _ Tx = (*fakeTx)(nil)

func (t *fakeTx) LockTicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error) {
	tt, ok := t.s.ticketTypes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &tt, nil
}

func (t *fakeTx) CountActiveTickets(ctx context.Context, ticketTypeID uuid.UUID) (int, error) {
	return t.s.activeCountLocked(ticketTypeID), nil
}

func (t *fakeTx) InsertPayment(ctx context.Context, p *domain.Payment) error {
	t.s.payments[p.ID] = *p
	return nil
}

func (t *fakeTx) InsertTickets(ctx context.Context, paymentID uuid.UUID, tickets []*domain.Ticket) error {
	for _, tk := range tickets {
		t.s.tickets[tk.ID] = *tk
		t.s.codeIndex[tk.Code] = tk.ID
		t.s.paymentTickets[paymentID] = append(t.s.paymentTickets[paymentID], tk.ID)
	}
	return nil
}

func (t *fakeTx) PaymentForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return t.s.paymentLocked(id)
}

func (t *fakeTx) PaymentByRefForUpdate(ctx context.Context, ref string) (*domain.Payment, error) {
	return t.s.paymentByRefLocked(ref)
}

func (t *fakeTx) SetPaymentStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus) (bool, error) {
	p, ok := t.s.payments[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	t.s.payments[id] = p
	return true, nil
}

func (t *fakeTx) RecordOfflineApproval(ctx context.Context, id, approverID uuid.UUID, at time.Time) error {
	p, ok := t.s.payments[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.OfflineApproved {
		return domain.ErrAlreadyApproved
	}
	p.OfflineApproved = true
	p.ApprovedBy = &approverID
	p.ApprovalTime = &at
	t.s.payments[id] = p
	return nil
}

func (t *fakeTx) CascadeTickets(ctx context.Context, paymentID uuid.UUID, to domain.TicketStatus) (int64, error) {
	var n int64
	for _, id := range t.s.paymentTickets[paymentID] {
		tk := t.s.tickets[id]
		if tk.Status != domain.TicketPending && tk.Status != domain.TicketConfirmed {
			continue
		}
		tk.Status = to
		t.s.tickets[id] = tk
		n++
	}
	return n, nil
}

func (t *fakeTx) TicketByCodeForUpdate(ctx context.Context, code uuid.UUID) (*domain.Ticket, error) {
	return t.s.ticketByCodeLocked(code)
}

func (t *fakeTx) CheckInTicket(ctx context.Context, code uuid.UUID, at time.Time) (bool, error) {
	id, ok := t.s.codeIndex[code]
	if !ok {
		return false, nil
	}
	tk := t.s.tickets[id]
	if tk.Status != domain.TicketConfirmed || tk.CheckedIn {
		return false, nil
	}
	tk.Status = domain.TicketUsed
	tk.CheckedIn = true
	tk.CheckedInTime = &at
	t.s.tickets[id] = tk
	return true, nil
}

func (t *fakeTx) TicketContext(ctx context.Context, code uuid.UUID) (*TicketContext, error) {
	tk, err := t.s.ticketByCodeLocked(code)
	if err != nil {
		return nil, err
	}
	tt := t.s.ticketTypes[tk.TicketTypeID]
	ev := t.s.events[tt.EventID]
	return &TicketContext{
		Ticket:         *tk,
		TicketTypeName: tt.Name,
		EventID:        ev.ID,
		EventName:      ev.Name,
	}, nil
}

func (t *fakeTx) SetTicketOwner(ctx context.Context, ticketID, newUserID uuid.UUID) error {
	tk, ok := t.s.tickets[ticketID]
	if !ok {
		return domain.ErrNotFound
	}
	tk.UserID = newUserID
	t.s.tickets[ticketID] = tk
	return nil
}

func (t *fakeTx) SetEventStatus(ctx context.Context, eventID uuid.UUID, status domain.EventStatus) error {
	ev, ok := t.s.events[eventID]
	if !ok {
		return domain.ErrNotFound
	}
	ev.Status = status
	t.s.events[eventID] = ev
	return nil
}

func (t *fakeTx) CancelEventTickets(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var n int64
	for id, tk := range t.s.tickets {
		tt := t.s.ticketTypes[tk.TicketTypeID]
		if tt.EventID != eventID {
			continue
		}
		if tk.Status != domain.TicketPending && tk.Status != domain.TicketConfirmed {
			continue
		}
		tk.Status = domain.TicketCancelled
		t.s.tickets[id] = tk
		n++
	}
	return n, nil
}

func (t *fakeTx) UnresolvedEventPayments(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for pid, ticketIDs := range t.s.paymentTickets {
		p := t.s.payments[pid]
		if p.Status != domain.PaymentPending && p.Status != domain.PaymentProcessing {
			continue
		}
		for _, tid := range ticketIDs {
			tt := t.s.ticketTypes[t.s.tickets[tid].TicketTypeID]
			if tt.EventID == eventID {
				ids = append(ids, pid)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (t *fakeTx) InsertOutbox(ctx context.Context, ev OutboxEvent) error {
	t.s.outbox = append(t.s.outbox, ev)
	return nil
}
