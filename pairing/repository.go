package pairing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoContractors signals the client has no completed orders yet.
var ErrNoContractors = errors.New("pairing: no completed-order contractors")

// Repository provides pgx-backed access to sticky pairings and the
// completed-order contractor directory derived from closed orders.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert records the pairing once; re-reserving reports created=false
// instead of duplicating.
func (r *Repository) Upsert(ctx context.Context, id, clientID, contractorID string) (created bool, err error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO assigned_contractors (id, client_id, contractor_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_id, contractor_id) DO NOTHING
	`, id, clientID, contractorID)
	if err != nil {
		return false, fmt.Errorf("pairing: upsert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ContractorsOf lists, deduplicated, the contractors the client has had a
// completed order with.
func (r *Repository) ContractorsOf(ctx context.Context, clientID string) ([]Contractor, error) {
	const query = `
		SELECT DISTINCT u.id, u.nickname
		FROM orders o
		JOIN bot_users u ON u.id = o.contractor_id
		WHERE o.client_id = $1 AND o.status = 'closed'
		ORDER BY u.nickname ASC
	`
	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("pairing: contractors of client: %w", err)
	}
	defer rows.Close()

	contractors := make([]Contractor, 0, 4)
	for rows.Next() {
		var c Contractor
		if err := rows.Scan(&c.ID, &c.Nickname); err != nil {
			return nil, fmt.Errorf("pairing: scan contractor: %w", err)
		}
		contractors = append(contractors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pairing: iterate contractors: %w", err)
	}
	return contractors, nil
}

// LastContractor returns the contractor of the client's most recently
// closed order.
func (r *Repository) LastContractor(ctx context.Context, clientID string) (Contractor, error) {
	const query = `
		SELECT u.id, u.nickname
		FROM orders o
		JOIN bot_users u ON u.id = o.contractor_id
		WHERE o.client_id = $1 AND o.status = 'closed'
		ORDER BY o.closed_at DESC
		LIMIT 1
	`
	var c Contractor
	if err := r.pool.QueryRow(ctx, query, clientID).Scan(&c.ID, &c.Nickname); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contractor{}, ErrNoContractors
		}
		return Contractor{}, fmt.Errorf("pairing: last contractor: %w", err)
	}
	return c, nil
}
