package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"supportflow/config"
	"supportflow/db"
)

// Seeded rows carry this marker in the nickname / task so wipe can find
// them without touching real data.
const seedMarker = "seedtest"

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return db.NewPool(ctx, cfg.DatabaseURL)
}

func newSeedCmd() *cobra.Command {
	var clients, contractors, closedOrders int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert marked test fixtures: tariffs, users and closed orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			return seed(ctx, pool, clients, contractors, closedOrders)
		},
	}
	cmd.Flags().IntVar(&clients, "clients", 3, "number of test clients")
	cmd.Flags().IntVar(&contractors, "contractors", 2, "number of test contractors")
	cmd.Flags().IntVar(&closedOrders, "closed-orders", 5, "closed orders spread over the past two months")
	return cmd
}

func seed(ctx context.Context, pool *pgxpool.Pool, clients, contractors, closedOrders int) error {
	tariffID := uuid.NewString()
	_, err := pool.Exec(ctx, `
		INSERT INTO tariffs (id, name, orders_limit, reaction_time_minutes, price)
		VALUES ($1, $2, 5, 60, 990)`,
		tariffID, seedMarker+" basic")
	if err != nil {
		return fmt.Errorf("seed tariff: %w", err)
	}

	clientIDs := make([]string, 0, clients)
	for i := 0; i < clients; i++ {
		id := uuid.NewString()
		nick := fmt.Sprintf("%s_client_%d", seedMarker, i)
		_, err := pool.Exec(ctx, `
			INSERT INTO bot_users (id, nickname, role, status, tariff_id, paid, created_at)
			VALUES ($1, $2, 'client', 'active', $3, TRUE, now())`,
			id, nick, tariffID)
		if err != nil {
			return fmt.Errorf("seed client %s: %w", nick, err)
		}
		clientIDs = append(clientIDs, id)
	}

	contractorIDs := make([]string, 0, contractors)
	for i := 0; i < contractors; i++ {
		id := uuid.NewString()
		nick := fmt.Sprintf("%s_contractor_%d", seedMarker, i)
		_, err := pool.Exec(ctx, `
			INSERT INTO bot_users (id, nickname, role, status, created_at)
			VALUES ($1, $2, 'contractor', 'active', now())`,
			id, nick)
		if err != nil {
			return fmt.Errorf("seed contractor %s: %w", nick, err)
		}
		contractorIDs = append(contractorIDs, id)
	}

	if len(clientIDs) == 0 || len(contractorIDs) == 0 {
		return nil
	}
	for i := 0; i < closedOrders; i++ {
		closedAt := time.Now().AddDate(0, 0, -(i * 12))
		_, err := pool.Exec(ctx, `
			INSERT INTO orders (id, client_id, contractor_id, task, creds, status,
			                    estimated_hours, created_at, assigned_at, closed_at)
			VALUES ($1, $2, $3, $4, '', 'closed', 4, $5, $5, $6)`,
			uuid.NewString(),
			clientIDs[i%len(clientIDs)],
			contractorIDs[i%len(contractorIDs)],
			fmt.Sprintf("%s task %d", seedMarker, i),
			closedAt.Add(-6*time.Hour),
			closedAt)
		if err != nil {
			return fmt.Errorf("seed order %d: %w", i, err)
		}
	}
	fmt.Printf("seeded %d clients, %d contractors, %d closed orders\n", clients, contractors, closedOrders)
	return nil
}

func newWipeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wipe",
		Short: "Delete every row created by seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			return wipe(ctx, pool)
		},
	}
}

func wipe(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`DELETE FROM orders WHERE task LIKE '` + seedMarker + `%'`,
		`DELETE FROM assigned_contractors WHERE client_id IN
		   (SELECT id FROM bot_users WHERE nickname LIKE '` + seedMarker + `%')`,
		`DELETE FROM bot_users WHERE nickname LIKE '` + seedMarker + `%'`,
		`DELETE FROM tariffs WHERE name LIKE '` + seedMarker + `%'`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("wipe: %w", err)
		}
	}
	fmt.Println("test fixtures removed")
	return nil
}
