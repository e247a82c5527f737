package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrTariffNotFound is returned when no tariff row exists for the id.
	ErrTariffNotFound = errors.New("billing: tariff not found")
	// ErrNoOrders signals the store holds no billable orders at all.
	ErrNoOrders = errors.New("billing: no orders recorded")
)

// Repository provides read access to tariffs and billing aggregates.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TariffByID fetches one tariff.
func (r *Repository) TariffByID(ctx context.Context, id string) (Tariff, error) {
	const query = `
		SELECT id, name, orders_limit, reaction_time_minutes,
		       can_reserve_contractor, can_see_contractor_contacts, price
		FROM tariffs
		WHERE id = $1
	`
	var t Tariff
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.Name,
		&t.OrdersLimit,
		&t.ReactionTimeMinutes,
		&t.CanReserveContractor,
		&t.CanSeeContractorContacts,
		&t.Price,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tariff{}, ErrTariffNotFound
		}
		return Tariff{}, fmt.Errorf("billing: query tariff: %w", err)
	}
	return t, nil
}

// CheapestTariff returns the lowest-priced tariff, used as the default for
// participants added through the owner dialogue.
func (r *Repository) CheapestTariff(ctx context.Context) (Tariff, error) {
	const query = `
		SELECT id, name, orders_limit, reaction_time_minutes,
		       can_reserve_contractor, can_see_contractor_contacts, price
		FROM tariffs
		ORDER BY price ASC
		LIMIT 1
	`
	var t Tariff
	err := r.pool.QueryRow(ctx, query).Scan(
		&t.ID,
		&t.Name,
		&t.OrdersLimit,
		&t.ReactionTimeMinutes,
		&t.CanReserveContractor,
		&t.CanSeeContractorContacts,
		&t.Price,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tariff{}, ErrTariffNotFound
		}
		return Tariff{}, fmt.Errorf("billing: query cheapest tariff: %w", err)
	}
	return t, nil
}

// CountOrdersSince counts a client's orders created on or after the cutoff.
func (r *Repository) CountOrdersSince(ctx context.Context, clientID string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE client_id = $1 AND created_at >= $2`,
		clientID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("billing: count orders: %w", err)
	}
	return count, nil
}

// EarliestOrderAt returns the creation time of the oldest non-cancelled order.
func (r *Repository) EarliestOrderAt(ctx context.Context) (time.Time, error) {
	var earliest *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT min(created_at) FROM orders WHERE status <> 'cancelled'`,
	).Scan(&earliest)
	if err != nil {
		return time.Time{}, fmt.Errorf("billing: earliest order: %w", err)
	}
	if earliest == nil {
		return time.Time{}, ErrNoOrders
	}
	return *earliest, nil
}

// ClientCountsBetween aggregates non-cancelled orders per client nickname
// created inside [start, end).
func (r *Repository) ClientCountsBetween(ctx context.Context, start, end time.Time) (map[string]int, error) {
	const query = `
		SELECT u.nickname, count(*)
		FROM orders o
		JOIN bot_users u ON u.id = o.client_id
		WHERE o.status <> 'cancelled' AND o.created_at >= $1 AND o.created_at < $2
		GROUP BY u.nickname
	`
	rows, err := r.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("billing: client counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var nickname string
		var count int
		if err := rows.Scan(&nickname, &count); err != nil {
			return nil, fmt.Errorf("billing: scan client count: %w", err)
		}
		counts[nickname] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("billing: iterate client counts: %w", err)
	}
	return counts, nil
}

// ContractorClosedBetween aggregates closed orders per contractor nickname
// with closed_at inside [start, end).
func (r *Repository) ContractorClosedBetween(ctx context.Context, start, end time.Time) ([]ContractorLine, error) {
	const query = `
		SELECT u.nickname, count(*)
		FROM orders o
		JOIN bot_users u ON u.id = o.contractor_id
		WHERE o.status = 'closed' AND o.closed_at >= $1 AND o.closed_at < $2
		GROUP BY u.nickname
		ORDER BY count(*) DESC, u.nickname ASC
	`
	rows, err := r.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("billing: contractor closed counts: %w", err)
	}
	defer rows.Close()

	lines := make([]ContractorLine, 0, 8)
	for rows.Next() {
		var line ContractorLine
		if err := rows.Scan(&line.Contractor, &line.Count); err != nil {
			return nil, fmt.Errorf("billing: scan contractor line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("billing: iterate contractor lines: %w", err)
	}
	return lines, nil
}

// ClosedCountForContractorSince counts one contractor's closed orders with
// closed_at on or after the cutoff.
func (r *Repository) ClosedCountForContractorSince(ctx context.Context, contractorID string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE contractor_id = $1 AND status = 'closed' AND closed_at >= $2`,
		contractorID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("billing: contractor closed count: %w", err)
	}
	return count, nil
}
