// Package chaos injects connection-level faults while the actors run, so
// the invariants get checked under dropped sessions and retried statements.
package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// One victim per strike: any backend of the test database except the one
// issuing the kill.
const terminatePeer = `
	SELECT pg_terminate_backend(pid)
	FROM pg_stat_activity
	WHERE datname = current_database() AND pid <> pg_backend_pid()
	ORDER BY random()
	LIMIT 1
`

// DropBackends kills one random database backend at jittered intervals
// until the context is cancelled or stop closes, simulating connection loss
// mid-statement. Kill failures are ignored; the next strike retries.
func DropBackends(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	for {
		timer := time.NewTimer(strikeDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
			_, _ = pool.Exec(ctx, terminatePeer)
		}
	}
}

func strikeDelay() time.Duration {
	return 2*time.Second + time.Duration(rand.Int63n(int64(8*time.Second)))
}
