package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"supportflow/billing"
	"supportflow/order"
	"supportflow/pairing"
	"supportflow/user"
)

// serialDir wraps the in-memory directory with a turn-overlap detector. A
// turn spans the chat lookup through the state write; two turns of one chat
// inside that span at once means the dispatcher's per-chat lock is broken.
type serialDir struct {
	mu      sync.Mutex
	inner   *memUserDir
	inTurn  bool
	overlap bool
}

func (d *serialDir) GetActiveByChatID(ctx context.Context, chatID int64) (user.User, error) {
	d.mu.Lock()
	if d.inTurn {
		d.overlap = true
	}
	d.inTurn = true
	u, err := d.inner.GetActiveByChatID(ctx, chatID)
	d.mu.Unlock()
	// Widen the window so an unlocked dispatcher actually interleaves.
	time.Sleep(time.Millisecond)
	return u, err
}

func (d *serialDir) SetBotState(ctx context.Context, id, state string) error {
	time.Sleep(time.Millisecond)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inTurn = false
	return d.inner.SetBotState(ctx, id, state)
}

func (d *serialDir) GetByID(ctx context.Context, id string) (user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inner.GetByID(ctx, id)
}

func (d *serialDir) GetActiveByNickname(ctx context.Context, nickname string) (user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inner.GetActiveByNickname(ctx, nickname)
}

func (d *serialDir) ListActiveByRole(ctx context.Context, role user.Role) ([]user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inner.ListActiveByRole(ctx, role)
}

func (d *serialDir) Create(ctx context.Context, params user.CreateParams) (user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inner.Create(ctx, params)
}

func (d *serialDir) Deactivate(ctx context.Context, nickname string, role user.Role) (user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inner.Deactivate(ctx, nickname, role)
}

func (d *serialDir) UpdateNickname(ctx context.Context, id, nickname string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inner.UpdateNickname(ctx, id, nickname)
}

func (d *serialDir) UpdateChatID(ctx context.Context, id string, chatID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inner.UpdateChatID(ctx, id, chatID)
}

type countingTransport struct {
	mu      sync.Mutex
	texts   int
	buttons int
}

func (f *countingTransport) SendText(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts++
	return nil
}

func (f *countingTransport) SendButtons(chatID int64, text string, buttons []Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buttons++
	return nil
}

func TestDispatch_SerializesTurnsPerChat(t *testing.T) {
	inner := newMemUserDir()
	inner.put(user.User{
		ID:       "m1",
		Nickname: "shift_manager",
		Role:     user.RoleManager,
		Status:   user.StatusActive,
		ChatID:   ptrInt64(77),
		BotState: ptrString(string(StateManagerMenu)),
	})
	dir := &serialDir{inner: inner}
	transport := &countingTransport{}

	orderStore := newMemOrderStore()
	billingStore := newMemBillingStore(orderStore)
	pairStore := newMemPairStore(orderStore, inner)
	billingSvc := billing.NewService(billingStore, 1, 500)
	b := New(transport, user.NewService(dir), order.NewService(orderStore, billingSvc), billingSvc, pairing.NewService(pairStore), nil)

	const turns = 8
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Dispatch(context.Background(), Inbound{ChatID: 77, Nickname: "shift_manager", Choice: "bogus"})
		}()
	}
	wg.Wait()

	if dir.overlap {
		t.Fatalf("expected turns of one chat to run strictly one at a time")
	}
	if transport.texts != turns || transport.buttons != turns {
		t.Fatalf("expected %d replies and %d menus, got %d and %d",
			turns, turns, transport.texts, transport.buttons)
	}
	if got := inner.states["m1"]; got != string(StateManagerMenu) {
		t.Fatalf("expected the menu state after all turns, got %q", got)
	}
}
