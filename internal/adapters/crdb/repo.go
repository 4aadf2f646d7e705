package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
	"github.com/shopspring/decimal"
)

const (
	SerializationFailureCode = "40001"
)

// Repository implements ticketing.Store over a PostgreSQL-wire pool. All
// multi-step sequences run under WithTx with serializable isolation;
// write skew between concurrent reservations surfaces as SQLSTATE 40001 and
// is mapped to domain.ErrSerializationFailure for callers to retry.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ ticketing.Store = (*Repository)(nil)

func (r *Repository) WithTx(ctx context.Context, fn func(ticketing.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(&txRunner{tx: tx})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}
	return nil
}

// txRunner is the per-transaction statement set handed to service closures.
type txRunner struct {
	tx pgx.Tx
}

var _ ticketing.Tx = (*txRunner)(nil)

func (t *txRunner) LockTicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, event_id, name, description, price::text, capacity
		FROM ticket_types WHERE id = $1
		FOR UPDATE
	`, id)
	return scanTicketType(row)
}

func (t *txRunner) CountActiveTickets(ctx context.Context, ticketTypeID uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT count(*) FROM tickets
		WHERE ticket_type_id = $1 AND status IN ('pending', 'confirmed', 'used')
	`, ticketTypeID).Scan(&n)
	return n, err
}

func (t *txRunner) InsertPayment(ctx context.Context, p *domain.Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments (id, user_id, amount, status, method, transaction_ref, offline_approved, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, FALSE, $7)
	`, p.ID, p.UserID, p.Amount.StringFixed(2), p.Status, p.Method, p.TransactionRef, p.CreatedAt)
	return err
}

func (t *txRunner) InsertTickets(ctx context.Context, paymentID uuid.UUID, tickets []*domain.Ticket) error {
	batch := &pgx.Batch{}
	for _, tk := range tickets {
		batch.Queue(`
			INSERT INTO tickets (id, ticket_code, ticket_type_id, user_id, status, checked_in, purchased_at)
			VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		`, tk.ID, tk.Code, tk.TicketTypeID, tk.UserID, tk.Status, tk.PurchasedAt)
		batch.Queue(`
			INSERT INTO payment_tickets (payment_id, ticket_id) VALUES ($1, $2)
		`, paymentID, tk.ID)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRunner) PaymentForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := t.tx.QueryRow(ctx, paymentSelect+` WHERE id = $1 FOR UPDATE`, id)
	p, err := scanPayment(row)
	if err != nil {
		return nil, err
	}
	p.TicketIDs, err = paymentTicketIDs(ctx, t.tx, p.ID)
	return p, err
}

func (t *txRunner) PaymentByRefForUpdate(ctx context.Context, ref string) (*domain.Payment, error) {
	row := t.tx.QueryRow(ctx, paymentSelect+` WHERE transaction_ref = $1 FOR UPDATE`, ref)
	p, err := scanPayment(row)
	if err != nil {
		return nil, err
	}
	p.TicketIDs, err = paymentTicketIDs(ctx, t.tx, p.ID)
	return p, err
}

func (t *txRunner) SetPaymentStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus) (bool, error) {
	result, err := t.tx.Exec(ctx, `
		UPDATE payments SET status = $3 WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (t *txRunner) RecordOfflineApproval(ctx context.Context, id, approverID uuid.UUID, at time.Time) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE payments SET offline_approved = TRUE, approved_by = $2, approval_time = $3
		WHERE id = $1 AND NOT offline_approved
	`, id, approverID, at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrAlreadyApproved
	}
	return nil
}

func (t *txRunner) CascadeTickets(ctx context.Context, paymentID uuid.UUID, to domain.TicketStatus) (int64, error) {
	// Terminal tickets are left alone: a refund must not resurrect a used or
	// already cancelled ticket.
	result, err := t.tx.Exec(ctx, `
		UPDATE tickets SET status = $2
		WHERE id IN (SELECT ticket_id FROM payment_tickets WHERE payment_id = $1)
		  AND status IN ('pending', 'confirmed')
	`, paymentID, to)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (t *txRunner) TicketByCodeForUpdate(ctx context.Context, code uuid.UUID) (*domain.Ticket, error) {
	row := t.tx.QueryRow(ctx, ticketSelect+` WHERE ticket_code = $1 FOR UPDATE`, code)
	return scanTicket(row)
}

func (t *txRunner) CheckInTicket(ctx context.Context, code uuid.UUID, at time.Time) (bool, error) {
	result, err := t.tx.Exec(ctx, `
		UPDATE tickets SET status = 'used', checked_in = TRUE, checked_in_time = $2
		WHERE ticket_code = $1 AND status = 'confirmed' AND NOT checked_in
	`, code, at)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (t *txRunner) TicketContext(ctx context.Context, code uuid.UUID) (*ticketing.TicketContext, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT t.id, t.ticket_code, t.ticket_type_id, t.user_id, t.status, t.checked_in, t.checked_in_time, t.purchased_at,
		       tt.name, e.id, e.name
		FROM tickets t
		JOIN ticket_types tt ON tt.id = t.ticket_type_id
		JOIN events e ON e.id = tt.event_id
		WHERE t.ticket_code = $1
	`, code)

	var tc ticketing.TicketContext
	err := row.Scan(
		&tc.Ticket.ID, &tc.Ticket.Code, &tc.Ticket.TicketTypeID, &tc.Ticket.UserID,
		&tc.Ticket.Status, &tc.Ticket.CheckedIn, &tc.Ticket.CheckedInTime, &tc.Ticket.PurchasedAt,
		&tc.TicketTypeName, &tc.EventID, &tc.EventName,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tc, nil
}

func (t *txRunner) SetTicketOwner(ctx context.Context, ticketID, newUserID uuid.UUID) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE tickets SET user_id = $2 WHERE id = $1
	`, ticketID, newUserID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *txRunner) SetEventStatus(ctx context.Context, eventID uuid.UUID, status domain.EventStatus) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE events SET status = $2 WHERE id = $1
	`, eventID, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *txRunner) CancelEventTickets(ctx context.Context, eventID uuid.UUID) (int64, error) {
	result, err := t.tx.Exec(ctx, `
		UPDATE tickets SET status = 'cancelled'
		WHERE status IN ('pending', 'confirmed')
		  AND ticket_type_id IN (SELECT id FROM ticket_types WHERE event_id = $1)
	`, eventID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (t *txRunner) UnresolvedEventPayments(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT DISTINCT p.id
		FROM payments p
		JOIN payment_tickets pt ON pt.payment_id = p.id
		JOIN tickets tk ON tk.id = pt.ticket_id
		JOIN ticket_types tt ON tt.id = tk.ticket_type_id
		WHERE p.status IN ('pending', 'processing')
		  AND tt.event_id = $1
		ORDER BY p.id
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *txRunner) InsertOutbox(ctx context.Context, ev ticketing.OutboxEvent) error {
	return insertOutbox(ctx, t.tx, OutboxRecord{
		ID:            uuid.New(),
		AggregateType: ev.AggregateType,
		AggregateID:   ev.AggregateID,
		EventType:     ev.EventType,
		Payload:       ev.Payload,
		DedupeKey:     ev.DedupeKey,
	})
}

// Pool-level reads.

func (r *Repository) Payment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := r.pool.QueryRow(ctx, paymentSelect+` WHERE id = $1`, id)
	p, err := scanPayment(row)
	if err != nil {
		return nil, err
	}
	p.TicketIDs, err = paymentTicketIDs(ctx, r.pool, p.ID)
	return p, err
}

func (r *Repository) PaymentByRef(ctx context.Context, ref string) (*domain.Payment, error) {
	row := r.pool.QueryRow(ctx, paymentSelect+` WHERE transaction_ref = $1`, ref)
	p, err := scanPayment(row)
	if err != nil {
		return nil, err
	}
	p.TicketIDs, err = paymentTicketIDs(ctx, r.pool, p.ID)
	return p, err
}

func (r *Repository) TicketByCode(ctx context.Context, code uuid.UUID) (*domain.Ticket, error) {
	row := r.pool.QueryRow(ctx, ticketSelect+` WHERE ticket_code = $1`, code)
	return scanTicket(row)
}

func (r *Repository) TicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, event_id, name, description, price::text, capacity
		FROM ticket_types WHERE id = $1
	`, id)
	return scanTicketType(row)
}

func (r *Repository) ActiveTicketCount(ctx context.Context, ticketTypeID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM tickets
		WHERE ticket_type_id = $1 AND status IN ('pending', 'confirmed', 'used')
	`, ticketTypeID).Scan(&n)
	return n, err
}

func (r *Repository) ExpiredPendingPayments(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM payments
		WHERE status = 'pending' AND created_at <= $1
		ORDER BY created_at ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Scan helpers.

const paymentSelect = `
	SELECT id, user_id, amount::text, status, method, transaction_ref, offline_approved, approved_by, approval_time, created_at
	FROM payments`

const ticketSelect = `
	SELECT id, ticket_code, ticket_type_id, user_id, status, checked_in, checked_in_time, purchased_at
	FROM tickets`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	var amount string
	err := row.Scan(
		&p.ID, &p.UserID, &amount, &p.Status, &p.Method, &p.TransactionRef,
		&p.OfflineApproved, &p.ApprovedBy, &p.ApprovalTime, &p.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, errors.Wrap(err, "parse payment amount")
	}
	return &p, nil
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var tk domain.Ticket
	err := row.Scan(
		&tk.ID, &tk.Code, &tk.TicketTypeID, &tk.UserID,
		&tk.Status, &tk.CheckedIn, &tk.CheckedInTime, &tk.PurchasedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tk, nil
}

func scanTicketType(row rowScanner) (*domain.TicketType, error) {
	var tt domain.TicketType
	var price string
	err := row.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.Description, &price, &tt.Capacity)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tt.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, errors.Wrap(err, "parse ticket type price")
	}
	return &tt, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func paymentTicketIDs(ctx context.Context, q querier, paymentID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `
		SELECT ticket_id FROM payment_tickets WHERE payment_id = $1
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
