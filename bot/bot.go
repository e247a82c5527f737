// Package bot drives the multi-turn support dialogues: it resolves inbound
// senders to participants, routes each event to the handler registered for
// the participant's role and persisted state, and stores the returned next
// state.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"supportflow/billing"
	"supportflow/order"
	"supportflow/pairing"
	"supportflow/user"
)

// Inbound is one normalized event from the messaging channel: either free
// text or a button choice.
type Inbound struct {
	ChatID   int64
	Nickname string
	Text     string
	HasText  bool
	Choice   string
}

// Turn is the working context of one handled event.
type Turn struct {
	User    user.User
	ChatID  int64
	Text    string
	HasText bool
	Choice  string
	Session *session
}

type handlerFunc func(ctx context.Context, t *Turn) (State, error)

// Bot is the conversation dispatcher. Turns for distinct participants run
// concurrently; successive turns of one participant are serialized by a
// per-chat lock so the persisted state read-modify-write cannot interleave.
type Bot struct {
	transport Transport
	users     *user.Service
	orders    *order.Service
	billing   *billing.Service
	pairs     *pairing.Service
	log       *slog.Logger

	handlers map[user.Role]map[State]handlerFunc
	sessions *sessionStore

	mu        sync.Mutex
	chatLocks map[int64]*sync.Mutex
}

func New(transport Transport, users *user.Service, orders *order.Service, bill *billing.Service, pairs *pairing.Service, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	b := &Bot{
		transport: transport,
		users:     users,
		orders:    orders,
		billing:   bill,
		pairs:     pairs,
		log:       log,
		sessions:  newSessionStore(),
		chatLocks: make(map[int64]*sync.Mutex),
	}
	b.handlers = map[user.Role]map[State]handlerFunc{
		user.RoleClient: {
			StateStart:              b.startClient,
			StateClientMenu:         b.handleClientMenu,
			StateClientAwaitTask:    b.clientAwaitTask,
			StateClientAwaitCreds:   b.clientAwaitCreds,
			StateClientAwaitMessage: b.clientAwaitMessage,
		},
		user.RoleContractor: {
			StateStart:                   b.startContractor,
			StateContractorMenu:          b.handleContractorMenu,
			StateContractorAwaitEstimate: b.contractorAwaitEstimate,
			StateContractorAwaitMessage:  b.contractorAwaitMessage,
		},
		user.RoleManager: {
			StateStart:       b.startManager,
			StateManagerMenu: b.handleManagerMenu,
		},
		user.RoleOwner: {
			StateStart:                      b.startOwner,
			StateOwnerMenu:                  b.handleOwnerMenu,
			StateOwnerAwaitClientAdd:        b.ownerAwaitAdd(user.RoleClient),
			StateOwnerAwaitContractorAdd:    b.ownerAwaitAdd(user.RoleContractor),
			StateOwnerAwaitManagerAdd:       b.ownerAwaitAdd(user.RoleManager),
			StateOwnerAwaitOwnerAdd:         b.ownerAwaitAdd(user.RoleOwner),
			StateOwnerAwaitClientDelete:     b.ownerAwaitDelete(user.RoleClient),
			StateOwnerAwaitContractorDelete: b.ownerAwaitDelete(user.RoleContractor),
			StateOwnerAwaitManagerDelete:    b.ownerAwaitDelete(user.RoleManager),
			StateOwnerAwaitOwnerDelete:      b.ownerAwaitDelete(user.RoleOwner),
		},
	}
	return b
}

func (b *Bot) chatLock(chatID int64) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.chatLocks[chatID]
	if !ok {
		l = &sync.Mutex{}
		b.chatLocks[chatID] = l
	}
	return l
}

// Dispatch handles one inbound event end to end. On handler or transport
// failure no state is persisted, so the participant's next attempt re-enters
// the same state cleanly.
func (b *Bot) Dispatch(ctx context.Context, ev Inbound) {
	lock := b.chatLock(ev.ChatID)
	lock.Lock()
	defer lock.Unlock()

	u, err := b.users.Identify(ctx, ev.ChatID, ev.Nickname)
	if err != nil {
		if errors.Is(err, user.ErrUnknown) {
			// Strangers are stateless: one canned reply, nothing persisted.
			if err := b.startUnknown(ev.ChatID); err != nil {
				b.log.Error("unknown reply", "chat", ev.ChatID, "err", err)
			}
			return
		}
		b.log.Error("identify sender", "chat", ev.ChatID, "err", err)
		return
	}

	state := State(u.StateLabel())
	if ev.HasText && ev.Text == "/start" {
		state = StateStart
	}
	if state == "" {
		state = StateStart
	}

	roleHandlers, ok := b.handlers[u.Role]
	if !ok {
		b.log.Error("no handler set for role", "role", u.Role)
		return
	}
	handler, ok := roleHandlers[state]
	if !ok {
		// A stale or renamed label in the store; restart the dialogue.
		b.log.Warn("unknown state label, restarting", "role", u.Role, "state", state)
		handler = roleHandlers[StateStart]
	}

	turn := &Turn{
		User:    u,
		ChatID:  ev.ChatID,
		Text:    ev.Text,
		HasText: ev.HasText,
		Choice:  ev.Choice,
		Session: b.sessions.get(ev.ChatID),
	}

	next, err := handler(ctx, turn)
	if err != nil {
		b.log.Error("turn aborted", "role", u.Role, "state", state, "err", err)
		return
	}

	if err := b.users.SetBotState(ctx, u.ID, string(next)); err != nil {
		b.log.Error("persist state", "user", u.Nickname, "err", err)
	}
}

func (b *Bot) startUnknown(chatID int64) error {
	return b.transport.SendText(chatID, "You are not registered with our support service. Please contact a manager to get connected.")
}

// tariffOf resolves the turn's client tariff.
func (b *Bot) tariffOf(ctx context.Context, u user.User) (billing.Tariff, error) {
	if u.TariffID == nil {
		return billing.Tariff{}, billing.ErrTariffNotFound
	}
	return b.billing.TariffByID(ctx, *u.TariffID)
}
