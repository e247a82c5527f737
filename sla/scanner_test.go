package sla

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"supportflow/order"
	"supportflow/user"
)

type fakeOrderScans struct {
	notTaken  []order.NotTakenCandidate
	notClosed []order.NotClosedCandidate
	listErr   error

	notInWorkMarked []string
	lateWorkMarked  []string
	markErr         error
}

func (f *fakeOrderScans) ListNotTakenCandidates(ctx context.Context) ([]order.NotTakenCandidate, error) {
	return f.notTaken, f.listErr
}

func (f *fakeOrderScans) ListNotClosedCandidates(ctx context.Context) ([]order.NotClosedCandidate, error) {
	return f.notClosed, f.listErr
}

func (f *fakeOrderScans) MarkNotInWorkInformed(ctx context.Context, ids []string) error {
	f.notInWorkMarked = append(f.notInWorkMarked, ids...)
	return f.markErr
}

func (f *fakeOrderScans) MarkLateWorkInformed(ctx context.Context, ids []string) error {
	f.lateWorkMarked = append(f.lateWorkMarked, ids...)
	return f.markErr
}

type fakeDirectory struct {
	managers []user.User
	err      error
}

func (f *fakeDirectory) ListActiveByRole(ctx context.Context, role user.Role) ([]user.User, error) {
	if role != user.RoleManager {
		return nil, nil
	}
	return f.managers, f.err
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	sent    []sentMessage
	failFor map[int64]error
}

func (f *fakeNotifier) SendText(chatID int64, text string) error {
	if err, ok := f.failFor[chatID]; ok {
		return err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func chatID(v int64) *int64 { return &v }

func managerUsers(ids ...int64) []user.User {
	out := make([]user.User, 0, len(ids))
	for i, id := range ids {
		out = append(out, user.User{
			ID:       string(rune('a' + i)),
			Nickname: "manager" + string(rune('0'+i)),
			Role:     user.RoleManager,
			ChatID:   chatID(id),
		})
	}
	return out
}

func TestOverdue_Boundary(t *testing.T) {
	budget := 100 * time.Minute

	if Overdue(95*time.Minute, budget) {
		t.Errorf("expected exactly 95%% of budget to not qualify")
	}
	if !Overdue(95*time.Minute+time.Second, budget) {
		t.Errorf("expected just past 95%% of budget to qualify")
	}
	if Overdue(time.Hour, 0) {
		t.Errorf("expected zero budget to never qualify")
	}
}

func TestRunOnce_NotTakenDigest(t *testing.T) {
	now := time.Date(2026, time.March, 17, 12, 0, 0, 0, time.UTC)
	orders := &fakeOrderScans{
		notTaken: []order.NotTakenCandidate{
			// 96 of 100 minutes elapsed: qualifies.
			{OrderID: "o1", Task: "fix the printer", ClientNickname: "acme_client", CreatedAt: now.Add(-96 * time.Minute), ReactionMinutes: 100},
			// 50 of 100: does not.
			{OrderID: "o2", Task: "reset passwords", ClientNickname: "other_client", CreatedAt: now.Add(-50 * time.Minute), ReactionMinutes: 100},
		},
	}
	notifier := &fakeNotifier{}
	scanner := NewScanner(orders, &fakeDirectory{managers: managerUsers(10, 20)}, notifier, nil).
		WithClock(func() time.Time { return now })

	if err := scanner.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if len(notifier.sent) != 2 {
		t.Fatalf("expected one digest per manager, got %d messages", len(notifier.sent))
	}
	for _, msg := range notifier.sent {
		if !strings.Contains(msg.text, "@acme_client: fix the printer") {
			t.Errorf("expected digest to include the overdue order, got %q", msg.text)
		}
		if strings.Contains(msg.text, "other_client") {
			t.Errorf("expected digest to exclude the on-time order, got %q", msg.text)
		}
	}

	if len(orders.notInWorkMarked) != 1 || orders.notInWorkMarked[0] != "o1" {
		t.Fatalf("expected only the digested order to be flagged, got %v", orders.notInWorkMarked)
	}
}

func TestRunOnce_NotClosedDigest(t *testing.T) {
	now := time.Date(2026, time.March, 17, 12, 0, 0, 0, time.UTC)
	orders := &fakeOrderScans{
		notClosed: []order.NotClosedCandidate{
			// 23 of 24 hours: qualifies (> 95%).
			{OrderID: "w1", Task: "migrate the mail server", ClientNickname: "acme_client", ContractorNickname: "fixer1", AssignedAt: now.Add(-23 * time.Hour)},
			// 12 of 24: does not.
			{OrderID: "w2", Task: "vpn setup", ClientNickname: "other_client", ContractorNickname: "fixer2", AssignedAt: now.Add(-12 * time.Hour)},
		},
	}
	notifier := &fakeNotifier{}
	scanner := NewScanner(orders, &fakeDirectory{managers: managerUsers(10)}, notifier, nil).
		WithClock(func() time.Time { return now })

	if err := scanner.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected one digest message, got %d", len(notifier.sent))
	}
	if !strings.Contains(notifier.sent[0].text, "@acme_client / @fixer1: migrate the mail server") {
		t.Errorf("expected digest line with both parties, got %q", notifier.sent[0].text)
	}
	if len(orders.lateWorkMarked) != 1 || orders.lateWorkMarked[0] != "w1" {
		t.Fatalf("expected only w1 flagged, got %v", orders.lateWorkMarked)
	}
}

func TestRunOnce_NothingOverdue(t *testing.T) {
	now := time.Date(2026, time.March, 17, 12, 0, 0, 0, time.UTC)
	orders := &fakeOrderScans{
		notTaken: []order.NotTakenCandidate{
			{OrderID: "o1", Task: "t", ClientNickname: "acme_client", CreatedAt: now.Add(-10 * time.Minute), ReactionMinutes: 100},
		},
	}
	notifier := &fakeNotifier{}
	scanner := NewScanner(orders, &fakeDirectory{managers: managerUsers(10)}, notifier, nil).
		WithClock(func() time.Time { return now })

	if err := scanner.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("expected no digest, got %v", notifier.sent)
	}
	if len(orders.notInWorkMarked) != 0 {
		t.Fatalf("expected no flags set, got %v", orders.notInWorkMarked)
	}
}

func TestRunOnce_PartialDeliveryStillFlags(t *testing.T) {
	now := time.Date(2026, time.March, 17, 12, 0, 0, 0, time.UTC)
	orders := &fakeOrderScans{
		notTaken: []order.NotTakenCandidate{
			{OrderID: "o1", Task: "t", ClientNickname: "acme_client", CreatedAt: now.Add(-99 * time.Minute), ReactionMinutes: 100},
		},
	}
	notifier := &fakeNotifier{failFor: map[int64]error{10: errors.New("blocked")}}
	scanner := NewScanner(orders, &fakeDirectory{managers: managerUsers(10, 20)}, notifier, nil).
		WithClock(func() time.Time { return now })

	if err := scanner.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if len(notifier.sent) != 1 || notifier.sent[0].chatID != 20 {
		t.Fatalf("expected delivery to the reachable manager only, got %v", notifier.sent)
	}
	if len(orders.notInWorkMarked) != 1 {
		t.Fatalf("expected the order flagged despite one failed delivery, got %v", orders.notInWorkMarked)
	}
}

func TestRunOnce_DirectoryErrorLeavesFlagsUnset(t *testing.T) {
	now := time.Date(2026, time.March, 17, 12, 0, 0, 0, time.UTC)
	wantErr := errors.New("db down")
	orders := &fakeOrderScans{
		notTaken: []order.NotTakenCandidate{
			{OrderID: "o1", Task: "t", ClientNickname: "acme_client", CreatedAt: now.Add(-99 * time.Minute), ReactionMinutes: 100},
		},
		notClosed: []order.NotClosedCandidate{
			{OrderID: "w1", Task: "t", ClientNickname: "acme_client", ContractorNickname: "fixer1", AssignedAt: now.Add(-23 * time.Hour)},
		},
	}
	notifier := &fakeNotifier{}
	scanner := NewScanner(orders, &fakeDirectory{err: wantErr}, notifier, nil).
		WithClock(func() time.Time { return now })

	if err := scanner.RunOnce(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected directory error to propagate, got %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("expected no deliveries, got %v", notifier.sent)
	}
	if len(orders.notInWorkMarked) != 0 || len(orders.lateWorkMarked) != 0 {
		t.Fatalf("expected no flags set when nobody was reached, got %v / %v",
			orders.notInWorkMarked, orders.lateWorkMarked)
	}
}

func TestRunOnce_ManagerWithoutChatSkipped(t *testing.T) {
	now := time.Date(2026, time.March, 17, 12, 0, 0, 0, time.UTC)
	managers := managerUsers(10)
	managers = append(managers, user.User{ID: "z", Nickname: "never_started", Role: user.RoleManager})
	orders := &fakeOrderScans{
		notTaken: []order.NotTakenCandidate{
			{OrderID: "o1", Task: "t", ClientNickname: "acme_client", CreatedAt: now.Add(-99 * time.Minute), ReactionMinutes: 100},
		},
	}
	notifier := &fakeNotifier{}
	scanner := NewScanner(orders, &fakeDirectory{managers: managers}, notifier, nil).
		WithClock(func() time.Time { return now })

	if err := scanner.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected only the manager with a chat to receive a digest, got %v", notifier.sent)
	}
}

func TestRunOnce_ListErrorSurfaces(t *testing.T) {
	wantErr := errors.New("db down")
	orders := &fakeOrderScans{listErr: wantErr}
	scanner := NewScanner(orders, &fakeDirectory{}, &fakeNotifier{}, nil)

	if err := scanner.RunOnce(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected list error to propagate, got %v", err)
	}
}

func TestOneLine_Truncates(t *testing.T) {
	task := "line one\nline two\t" + strings.Repeat("x", 200)
	got := oneLine(task)

	if strings.ContainsAny(got, "\n\t") {
		t.Errorf("expected whitespace collapsed, got %q", got)
	}
	if len(got) != 120 {
		t.Errorf("expected truncation to 120 characters, got %d", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis suffix, got %q", got)
	}
}

func TestOneLine_TruncatesOnRuneBoundary(t *testing.T) {
	task := strings.Repeat("ы", 200)
	got := oneLine(task)

	if !utf8.ValidString(got) {
		t.Fatalf("expected valid UTF-8 after truncation, got %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 120 {
		t.Errorf("expected truncation to 120 runes, got %d", n)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis suffix, got %q", got)
	}
}
