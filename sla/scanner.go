// Package sla implements the escalation scanner: a recurring pass that
// finds orders approaching their reaction or completion deadlines and
// notifies managers exactly once per breach per order.
package sla

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"supportflow/order"
	"supportflow/user"
)

// WarnThreshold is the early-warning fraction of the SLA budget. The test
// is strictly greater-than: an order at exactly 95% of budget does not
// qualify yet.
const WarnThreshold = 0.95

// CompletionBudget is the fixed completion-time budget for in-work orders.
// Unlike the reaction budget it is not tariff-driven.
const CompletionBudget = 24 * time.Hour

// OrderScans is the slice of the order store the scanner reads and flags.
type OrderScans interface {
	ListNotTakenCandidates(ctx context.Context) ([]order.NotTakenCandidate, error)
	ListNotClosedCandidates(ctx context.Context) ([]order.NotClosedCandidate, error)
	MarkNotInWorkInformed(ctx context.Context, ids []string) error
	MarkLateWorkInformed(ctx context.Context, ids []string) error
}

// ManagerDirectory lists the recipients of escalation digests.
type ManagerDirectory interface {
	ListActiveByRole(ctx context.Context, role user.Role) ([]user.User, error)
}

// Notifier is the outbound messaging capability, fire-and-forget.
type Notifier interface {
	SendText(chatID int64, text string) error
}

// Scanner runs the two independent overdue scans. Each is idempotent per
// order through its informed flag: qualifying orders are bundled into one
// digest, sent to every active manager, and only then flagged in one batch.
type Scanner struct {
	orders   OrderScans
	users    ManagerDirectory
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

func NewScanner(orders OrderScans, users ManagerDirectory, notifier Notifier, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{
		orders:   orders,
		users:    users,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Overdue applies the early-warning test: elapsed time strictly above
// WarnThreshold of the budget.
func Overdue(elapsed, budget time.Duration) bool {
	if budget <= 0 {
		return false
	}
	return elapsed.Seconds()/budget.Seconds() > WarnThreshold
}

// RunOnce performs both sub-scans. They are independent and run
// concurrently; a failure in one does not stop the other.
func (s *Scanner) RunOnce(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.scanNotTaken(ctx) })
	g.Go(func() error { return s.scanNotClosed(ctx) })
	return g.Wait()
}

func (s *Scanner) scanNotTaken(ctx context.Context) error {
	candidates, err := s.orders.ListNotTakenCandidates(ctx)
	if err != nil {
		return fmt.Errorf("sla: list not-taken: %w", err)
	}

	now := s.now()
	var lines []string
	var ids []string
	for _, c := range candidates {
		budget := time.Duration(c.ReactionMinutes) * time.Minute
		if !Overdue(now.Sub(c.CreatedAt), budget) {
			continue
		}
		lines = append(lines, fmt.Sprintf("@%s: %s", c.ClientNickname, oneLine(c.Task)))
		ids = append(ids, c.OrderID)
	}
	if len(ids) == 0 {
		return nil
	}

	digest := "Orders about to miss their reaction deadline:\n" + strings.Join(lines, "\n")
	if err := s.broadcast(ctx, digest); err != nil {
		return err
	}

	// Flags are set after the send phase completes for all managers
	// attempted in this pass; partial delivery is not retried.
	if err := s.orders.MarkNotInWorkInformed(ctx, ids); err != nil {
		return err
	}
	s.log.Info("sla not-taken digest sent", "orders", len(ids))
	return nil
}

func (s *Scanner) scanNotClosed(ctx context.Context) error {
	candidates, err := s.orders.ListNotClosedCandidates(ctx)
	if err != nil {
		return fmt.Errorf("sla: list not-closed: %w", err)
	}

	now := s.now()
	var lines []string
	var ids []string
	for _, c := range candidates {
		if !Overdue(now.Sub(c.AssignedAt), CompletionBudget) {
			continue
		}
		lines = append(lines, fmt.Sprintf("@%s / @%s: %s", c.ClientNickname, c.ContractorNickname, oneLine(c.Task)))
		ids = append(ids, c.OrderID)
	}
	if len(ids) == 0 {
		return nil
	}

	digest := "Orders in work past their completion deadline:\n" + strings.Join(lines, "\n")
	if err := s.broadcast(ctx, digest); err != nil {
		return err
	}

	if err := s.orders.MarkLateWorkInformed(ctx, ids); err != nil {
		return err
	}
	s.log.Info("sla not-closed digest sent", "orders", len(ids))
	return nil
}

// broadcast sends the digest to every active manager with a bound chat.
// A failed recipient listing reaches nobody, so it aborts the sub-scan
// before any flag is set; a failed delivery to one manager does not.
func (s *Scanner) broadcast(ctx context.Context, digest string) error {
	managers, err := s.users.ListActiveByRole(ctx, user.RoleManager)
	if err != nil {
		return fmt.Errorf("sla: list managers: %w", err)
	}
	for _, m := range managers {
		if m.ChatID == nil {
			continue
		}
		if err := s.notifier.SendText(*m.ChatID, digest); err != nil {
			s.log.Error("sla digest delivery", "manager", m.Nickname, "err", err)
		}
	}
	return nil
}

func oneLine(task string) string {
	task = strings.Join(strings.Fields(task), " ")
	if runes := []rune(task); len(runes) > 120 {
		task = string(runes[:117]) + "..."
	}
	return task
}
