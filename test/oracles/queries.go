// Package oracles declares SQL invariant checks run repeatedly against the
// stressed database. Any returned row is an invariant violation.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_in_work_per_contractor",
			SQL: `SELECT contractor_id, COUNT(*) FROM orders
                  WHERE status = 'in_work'
                  GROUP BY contractor_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_one_active_per_client",
			SQL: `SELECT client_id, COUNT(*) FROM orders
                  WHERE status IN ('created','in_work')
                  GROUP BY client_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_in_work_has_assignment",
			SQL: `SELECT id FROM orders
                  WHERE status = 'in_work'
                    AND (contractor_id IS NULL OR assigned_at IS NULL OR estimated_hours IS NULL)`,
		},
		{
			Name: "O4_created_has_no_assignment",
			SQL: `SELECT id FROM orders
                  WHERE status = 'created'
                    AND (contractor_id IS NOT NULL OR assigned_at IS NOT NULL OR estimated_hours IS NOT NULL)`,
		},
		{
			Name: "O5_terminal_has_closed_at",
			SQL: `SELECT id FROM orders
                  WHERE status IN ('closed','cancelled') AND closed_at IS NULL`,
		},
		{
			Name: "O6_terminal_creds_cleared",
			SQL: `SELECT id FROM orders
                  WHERE status IN ('closed','cancelled') AND creds <> ''`,
		},
		{
			Name: "O7_closed_kept_contractor",
			SQL: `SELECT id FROM orders
                  WHERE status = 'closed' AND contractor_id IS NULL`,
		},
		{
			Name: "O8_estimate_in_bounds",
			SQL: `SELECT id FROM orders
                  WHERE estimated_hours IS NOT NULL AND estimated_hours NOT BETWEEN 1 AND 24`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
