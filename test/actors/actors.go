// Package actors holds the concurrent workload generators of the stress
// test. Each actor loops a single marketplace action against the database
// until stopped, tolerating exactly the conflicts the schema is supposed to
// produce under contention.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

func expectedConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// tolerable covers expected contention plus the connection faults the chaos
// goroutine injects: unique violations, admin-terminated backends and plain
// broken connections. Anything else is a real failure.
func tolerable(err error) bool {
	if err == nil || expectedConflict(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "57P01", "57P02", "57P03", "08006", "08003":
			return true
		}
		return false
	}
	// Non-Postgres errors here are broken connections from the chaos kills.
	return true
}

func pause() {
	time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
}

// Creator spams order creation for one client. The partial unique index on
// active orders per client must reject all but one at a time.
func Creator(ctx context.Context, pool *pgxpool.Pool, clientID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO orders (id, client_id, task, creds, status)
			VALUES ($1, $2, $3, 'login: stress', 'created')`,
			uuid.NewString(), clientID, fmt.Sprintf("stress task %d", rand.Int63()))
		if !tolerable(err) {
			return fmt.Errorf("creator insert: %w", err)
		}
		pause()
	}
}

// Claimer races to take any created order for one contractor. Losing either
// race (order already taken, contractor already busy) is the expected
// outcome under contention.
func Claimer(ctx context.Context, pool *pgxpool.Pool, contractorID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var orderID string
		err := pool.QueryRow(ctx, `SELECT id FROM orders WHERE status = 'created' LIMIT 1`).Scan(&orderID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) && !tolerable(err) {
				return fmt.Errorf("claimer pick: %w", err)
			}
			pause()
			continue
		}

		_, err = pool.Exec(ctx, `
			UPDATE orders
			SET contractor_id = $1, estimated_hours = $2, assigned_at = now(), status = 'in_work'
			WHERE id = $3 AND status = 'created'`,
			contractorID, 1+rand.Intn(24), orderID)
		if !tolerable(err) {
			return fmt.Errorf("claimer update: %w", err)
		}
		pause()
	}
}

// Closer finishes whatever the contractor currently works on, clearing the
// credentials the way the application does on any terminal transition.
func Closer(ctx context.Context, pool *pgxpool.Pool, contractorID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `
			UPDATE orders
			SET status = 'closed', closed_at = now(), creds = ''
			WHERE contractor_id = $1 AND status = 'in_work'`,
			contractorID)
		if !tolerable(err) {
			return fmt.Errorf("closer update: %w", err)
		}
		pause()
	}
}

// Releaser simulates contractor removal: in-work orders go back to created
// with cleared assignment data and escalation flags.
func Releaser(ctx context.Context, pool *pgxpool.Pool, contractorID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if rand.Intn(4) == 0 {
			_, err := pool.Exec(ctx, `
				UPDATE orders
				SET contractor_id = NULL, estimated_hours = NULL, assigned_at = NULL,
				    status = 'created',
				    not_in_work_informed = FALSE, late_work_informed = FALSE,
				    in_work_client_informed = FALSE, closed_client_informed = FALSE
				WHERE contractor_id = $1 AND status = 'in_work'`,
				contractorID)
			if !tolerable(err) {
				return fmt.Errorf("releaser update: %w", err)
			}
		}
		pause()
	}
}

// FlagWriter plays the escalation scanner: it stamps informed flags on
// overdue-looking orders. Flags only ever go from false to true here, which
// the monotonicity oracle depends on.
func FlagWriter(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `
			UPDATE orders SET not_in_work_informed = TRUE
			WHERE status = 'created' AND not_in_work_informed = FALSE`)
		if !tolerable(err) {
			return fmt.Errorf("flag not-in-work: %w", err)
		}
		_, err = pool.Exec(ctx, `
			UPDATE orders SET late_work_informed = TRUE
			WHERE status = 'in_work' AND late_work_informed = FALSE`)
		if !tolerable(err) {
			return fmt.Errorf("flag late-work: %w", err)
		}
		pause()
	}
}
