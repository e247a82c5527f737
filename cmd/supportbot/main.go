package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"supportflow/billing"
	"supportflow/bot"
	"supportflow/config"
	"supportflow/db"
	"supportflow/order"
	"supportflow/pairing"
	"supportflow/sla"
	"supportflow/user"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "supportbot",
		Short:         "IT-support marketplace bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newScanCmd(), newSeedCmd(), newWipeCmd())
	return root
}

// app bundles the wired services shared by the subcommands.
type app struct {
	cfg       config.Config
	log       *slog.Logger
	users     *user.Service
	orders    *order.Service
	orderRepo *order.Repository
	billing   *billing.Service
	pairs     *pairing.Service
	shutdown  func()
}

func bootstrap(ctx context.Context) (*app, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	billingSvc := billing.NewService(billing.NewRepository(pool), cfg.BillingDay, cfg.OrderRate)
	orderRepo := order.NewRepository(pool)
	return &app{
		cfg:       cfg,
		log:       log,
		users:     user.NewService(user.NewRepository(pool)),
		orders:    order.NewService(orderRepo, billingSvc),
		orderRepo: orderRepo,
		billing:   billingSvc,
		pairs:     pairing.NewService(pairing.NewRepository(pool)),
		shutdown:  pool.Close,
	}, nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot and the SLA escalation scanner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			if a.cfg.TelegramToken == "" {
				return fmt.Errorf("SUPPORTFLOW_TELEGRAM_TOKEN is required")
			}
			api, err := tgbotapi.NewBotAPI(a.cfg.TelegramToken)
			if err != nil {
				return fmt.Errorf("telegram bot init: %w", err)
			}

			transport := bot.NewTelegramTransport(api)
			dispatcher := bot.New(transport, a.users, a.orders, a.billing, a.pairs, a.log)
			front := bot.NewTelegram(api, dispatcher, a.log)

			scanner := sla.NewScanner(a.orderRepo, a.users, transport, a.log)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return front.Run(ctx) })
			g.Go(func() error { return runScannerLoop(ctx, scanner, a.cfg.ScanInterval, a.log) })

			err = g.Wait()
			if ctx.Err() != nil {
				a.log.Info("shutting down")
				return nil
			}
			return err
		},
	}
}

func runScannerLoop(ctx context.Context, scanner *sla.Scanner, interval time.Duration, log *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			scanCtx, cancel := context.WithTimeout(ctx, interval)
			if err := scanner.RunOnce(scanCtx); err != nil {
				log.Error("sla scan", "err", err)
			}
			cancel()
		}
	}
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a single SLA escalation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			if a.cfg.TelegramToken == "" {
				return fmt.Errorf("SUPPORTFLOW_TELEGRAM_TOKEN is required")
			}
			api, err := tgbotapi.NewBotAPI(a.cfg.TelegramToken)
			if err != nil {
				return fmt.Errorf("telegram bot init: %w", err)
			}

			scanner := sla.NewScanner(a.orderRepo, a.users, bot.NewTelegramTransport(api), a.log)
			return scanner.RunOnce(ctx)
		},
	}
}
