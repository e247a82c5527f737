package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no order row exists for the identifier.
	ErrNotFound = errors.New("order: not found")
	// ErrAlreadyActive signals the client already holds a non-terminal order.
	ErrAlreadyActive = errors.New("order: client already has an active order")
	// ErrAlreadyClaimed signals the order left the created status before the
	// claim committed.
	ErrAlreadyClaimed = errors.New("order: already claimed")
	// ErrContractorBusy signals the contractor already holds an in-work order.
	ErrContractorBusy = errors.New("order: contractor already has an order in work")
	// ErrInvalidStatus signals a transition from a status that does not allow it.
	ErrInvalidStatus = errors.New("order: invalid status for transition")
)

const orderColumns = `
	id, task, client_id, contractor_id, creds, estimated_hours,
	created_at, assigned_at, closed_at, status,
	not_in_work_informed, late_work_informed, in_work_client_informed, closed_client_informed`

// Repository provides pgx-backed access to the order store. Every mutation
// is a single conditional statement; the partial unique indexes on the
// orders table turn races into unique violations the repository maps to
// domain errors.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.Task,
		&o.ClientID,
		&o.ContractorID,
		&o.Creds,
		&o.EstimatedHours,
		&o.CreatedAt,
		&o.AssignedAt,
		&o.ClosedAt,
		&o.Status,
		&o.NotInWorkInformed,
		&o.LateWorkInformed,
		&o.InWorkClientInformed,
		&o.ClosedClientInformed,
	)
	return o, err
}

// Insert stores a fresh created order. The partial unique index on active
// client orders rejects a second non-terminal order as ErrAlreadyActive.
func (r *Repository) Insert(ctx context.Context, id, clientID, task, creds string, createdAt time.Time) (Order, error) {
	query := fmt.Sprintf(`
		INSERT INTO orders (id, task, client_id, creds, created_at, status)
		VALUES ($1, $2, $3, $4, $5, 'created')
		RETURNING %s
	`, orderColumns)

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id, task, clientID, creds, createdAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Order{}, ErrAlreadyActive
		}
		return Order{}, fmt.Errorf("order: insert: %w", err)
	}
	return o, nil
}

// GetByID fetches one order.
func (r *Repository) GetByID(ctx context.Context, id string) (Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)
	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("order: query by id: %w", err)
	}
	return o, nil
}

// Claim atomically moves a created order to in_work for the contractor. The
// status predicate closes the two-contractors race: whoever commits second
// matches zero rows and observes ErrAlreadyClaimed. The partial unique index
// on in-work contractor orders rejects a double claim by one contractor as
// ErrContractorBusy.
func (r *Repository) Claim(ctx context.Context, orderID, contractorID string, estimatedHours int, assignedAt time.Time) (Order, error) {
	query := fmt.Sprintf(`
		UPDATE orders
		SET contractor_id = $1,
		    estimated_hours = $2,
		    assigned_at = $3,
		    status = 'in_work'
		WHERE id = $4 AND status = 'created'
		RETURNING %s
	`, orderColumns)

	o, err := scanOrder(r.pool.QueryRow(ctx, query, contractorID, estimatedHours, assignedAt, orderID))
	if err == nil {
		return o, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Order{}, ErrContractorBusy
	}
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return Order{}, fmt.Errorf("order: claim existence check: %w", err)
		}
		if exists {
			return Order{}, ErrAlreadyClaimed
		}
		return Order{}, ErrNotFound
	}
	return Order{}, fmt.Errorf("order: claim: %w", err)
}

// Close finishes an in-work order and clears the credentials blob.
func (r *Repository) Close(ctx context.Context, orderID string, closedAt time.Time) (Order, error) {
	query := fmt.Sprintf(`
		UPDATE orders
		SET status = 'closed', closed_at = $1, creds = ''
		WHERE id = $2 AND status = 'in_work'
		RETURNING %s
	`, orderColumns)

	o, err := scanOrder(r.pool.QueryRow(ctx, query, closedAt, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, r.transitionFailure(ctx, orderID)
		}
		return Order{}, fmt.Errorf("order: close: %w", err)
	}
	return o, nil
}

// Cancel terminates a non-terminal order and clears the credentials blob.
func (r *Repository) Cancel(ctx context.Context, orderID string, closedAt time.Time) (Order, error) {
	query := fmt.Sprintf(`
		UPDATE orders
		SET status = 'cancelled', closed_at = $1, creds = ''
		WHERE id = $2 AND status IN ('created', 'in_work')
		RETURNING %s
	`, orderColumns)

	o, err := scanOrder(r.pool.QueryRow(ctx, query, closedAt, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, r.transitionFailure(ctx, orderID)
		}
		return Order{}, fmt.Errorf("order: cancel: %w", err)
	}
	return o, nil
}

func (r *Repository) transitionFailure(ctx context.Context, orderID string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return fmt.Errorf("order: existence check: %w", err)
	}
	if exists {
		return ErrInvalidStatus
	}
	return ErrNotFound
}

// ReleaseFromContractor resets every in-work order of the contractor to
// created, clearing assignment data and all informed flags so the SLA clock
// restarts. Returns the affected orders so callers can notify clients.
func (r *Repository) ReleaseFromContractor(ctx context.Context, contractorID string) ([]Order, error) {
	query := fmt.Sprintf(`
		UPDATE orders
		SET status = 'created',
		    contractor_id = NULL,
		    assigned_at = NULL,
		    estimated_hours = NULL,
		    not_in_work_informed = FALSE,
		    late_work_informed = FALSE,
		    in_work_client_informed = FALSE,
		    closed_client_informed = FALSE
		WHERE contractor_id = $1 AND status = 'in_work'
		RETURNING %s
	`, orderColumns)

	rows, err := r.pool.Query(ctx, query, contractorID)
	if err != nil {
		return nil, fmt.Errorf("order: release from contractor: %w", err)
	}
	defer rows.Close()

	released := make([]Order, 0, 1)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("order: scan released: %w", err)
		}
		released = append(released, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order: iterate released: %w", err)
	}
	return released, nil
}

// ListAvailable returns created orders oldest first.
func (r *Repository) ListAvailable(ctx context.Context) ([]Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE status = 'created' ORDER BY created_at ASC`, orderColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("order: list available: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0, 8)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("order: scan available: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order: iterate available: %w", err)
	}
	return orders, nil
}

// InWorkByContractor returns the contractor's single in-work order.
func (r *Repository) InWorkByContractor(ctx context.Context, contractorID string) (Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE contractor_id = $1 AND status = 'in_work'`, orderColumns)
	o, err := scanOrder(r.pool.QueryRow(ctx, query, contractorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("order: in-work by contractor: %w", err)
	}
	return o, nil
}

// ActiveByClient returns the client's single non-terminal order.
func (r *Repository) ActiveByClient(ctx context.Context, clientID string) (Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE client_id = $1 AND status IN ('created', 'in_work')`, orderColumns)
	o, err := scanOrder(r.pool.QueryRow(ctx, query, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("order: active by client: %w", err)
	}
	return o, nil
}

// BusyContractorIDs returns the ids of contractors currently holding an
// in-work order.
func (r *Repository) BusyContractorIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT contractor_id FROM orders WHERE status = 'in_work' AND contractor_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("order: busy contractors: %w", err)
	}
	defer rows.Close()

	busy := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("order: scan busy contractor: %w", err)
		}
		busy[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order: iterate busy contractors: %w", err)
	}
	return busy, nil
}

// ListNotTakenCandidates returns created orders whose not-taken flag is
// still unset, with the tariff reaction budget the threshold test needs.
func (r *Repository) ListNotTakenCandidates(ctx context.Context) ([]NotTakenCandidate, error) {
	const query = `
		SELECT o.id, o.task, u.nickname, o.created_at, t.reaction_time_minutes
		FROM orders o
		JOIN bot_users u ON u.id = o.client_id
		JOIN tariffs t ON t.id = u.tariff_id
		WHERE o.status = 'created' AND o.not_in_work_informed = FALSE
		ORDER BY o.created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("order: not-taken candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]NotTakenCandidate, 0, 8)
	for rows.Next() {
		var c NotTakenCandidate
		if err := rows.Scan(&c.OrderID, &c.Task, &c.ClientNickname, &c.CreatedAt, &c.ReactionMinutes); err != nil {
			return nil, fmt.Errorf("order: scan not-taken candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order: iterate not-taken candidates: %w", err)
	}
	return candidates, nil
}

// ListNotClosedCandidates returns in-work orders whose late-work flag is
// still unset.
func (r *Repository) ListNotClosedCandidates(ctx context.Context) ([]NotClosedCandidate, error) {
	const query = `
		SELECT o.id, o.task, cl.nickname, co.nickname, o.assigned_at
		FROM orders o
		JOIN bot_users cl ON cl.id = o.client_id
		JOIN bot_users co ON co.id = o.contractor_id
		WHERE o.status = 'in_work' AND o.late_work_informed = FALSE
		ORDER BY o.assigned_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("order: not-closed candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]NotClosedCandidate, 0, 8)
	for rows.Next() {
		var c NotClosedCandidate
		if err := rows.Scan(&c.OrderID, &c.Task, &c.ClientNickname, &c.ContractorNickname, &c.AssignedAt); err != nil {
			return nil, fmt.Errorf("order: scan not-closed candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order: iterate not-closed candidates: %w", err)
	}
	return candidates, nil
}

func (r *Repository) markFlag(ctx context.Context, column string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE orders SET %s = TRUE WHERE id = ANY($1)`, column)
	if _, err := r.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("order: mark %s: %w", column, err)
	}
	return nil
}

// MarkNotInWorkInformed batch-sets the not-taken escalation flag.
func (r *Repository) MarkNotInWorkInformed(ctx context.Context, ids []string) error {
	return r.markFlag(ctx, "not_in_work_informed", ids)
}

// MarkLateWorkInformed batch-sets the late-work escalation flag.
func (r *Repository) MarkLateWorkInformed(ctx context.Context, ids []string) error {
	return r.markFlag(ctx, "late_work_informed", ids)
}

// MarkInWorkClientInformed records that the client heard about the claim.
func (r *Repository) MarkInWorkClientInformed(ctx context.Context, id string) error {
	return r.markFlag(ctx, "in_work_client_informed", []string{id})
}

// MarkClosedClientInformed records that the client heard about the close.
func (r *Repository) MarkClosedClientInformed(ctx context.Context, id string) error {
	return r.markFlag(ctx, "closed_client_informed", []string{id})
}
