package bot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"supportflow/billing"
	"supportflow/order"
	"supportflow/pairing"
	"supportflow/user"
)

// The fakes below are small in-memory stands-in for the pgx repositories,
// faithful to their documented error contracts so the dialogue handlers can
// be exercised end to end.

type sentText struct {
	chatID int64
	text   string
}

type sentButtons struct {
	chatID  int64
	text    string
	buttons []Button
}

type fakeTransport struct {
	texts   []sentText
	buttons []sentButtons
	fail    bool
}

func (f *fakeTransport) SendText(chatID int64, text string) error {
	if f.fail {
		return fmt.Errorf("transport down")
	}
	f.texts = append(f.texts, sentText{chatID: chatID, text: text})
	return nil
}

func (f *fakeTransport) SendButtons(chatID int64, text string, buttons []Button) error {
	if f.fail {
		return fmt.Errorf("transport down")
	}
	f.buttons = append(f.buttons, sentButtons{chatID: chatID, text: text, buttons: buttons})
	return nil
}

func (f *fakeTransport) textsTo(chatID int64) []string {
	var out []string
	for _, m := range f.texts {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

type memUserDir struct {
	users  map[string]user.User
	states map[string]string
}

func newMemUserDir() *memUserDir {
	return &memUserDir{users: map[string]user.User{}, states: map[string]string{}}
}

func (d *memUserDir) put(u user.User) { d.users[u.ID] = u }

func (d *memUserDir) GetByID(ctx context.Context, id string) (user.User, error) {
	u, ok := d.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (d *memUserDir) GetActiveByChatID(ctx context.Context, chatID int64) (user.User, error) {
	for _, u := range d.users {
		if u.Status == user.StatusActive && u.ChatID != nil && *u.ChatID == chatID {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (d *memUserDir) GetActiveByNickname(ctx context.Context, nickname string) (user.User, error) {
	for _, u := range d.users {
		if u.Status == user.StatusActive && u.Nickname == nickname {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (d *memUserDir) ListActiveByRole(ctx context.Context, role user.Role) ([]user.User, error) {
	var out []user.User
	for _, u := range d.users {
		if u.Status == user.StatusActive && u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memUserDir) Create(ctx context.Context, params user.CreateParams) (user.User, error) {
	for _, u := range d.users {
		if u.Status == user.StatusActive && u.Nickname == params.Nickname {
			return user.User{}, user.ErrNicknameTaken
		}
	}
	u := user.User{
		ID:       params.ID,
		Nickname: params.Nickname,
		Role:     params.Role,
		Status:   user.StatusActive,
		TariffID: params.TariffID,
		Paid:     params.Paid,
	}
	d.users[u.ID] = u
	return u, nil
}

func (d *memUserDir) Deactivate(ctx context.Context, nickname string, role user.Role) (user.User, error) {
	for id, u := range d.users {
		if u.Status == user.StatusActive && u.Nickname == nickname && u.Role == role {
			u.Status = user.StatusInactive
			d.users[id] = u
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (d *memUserDir) UpdateNickname(ctx context.Context, id, nickname string) error {
	u := d.users[id]
	u.Nickname = nickname
	d.users[id] = u
	return nil
}

func (d *memUserDir) UpdateChatID(ctx context.Context, id string, chatID int64) error {
	u := d.users[id]
	u.ChatID = &chatID
	d.users[id] = u
	return nil
}

func (d *memUserDir) SetBotState(ctx context.Context, id, state string) error {
	d.states[id] = state
	u := d.users[id]
	u.BotState = &state
	d.users[id] = u
	return nil
}

type memOrderStore struct {
	orders map[string]order.Order
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: map[string]order.Order{}}
}

func (s *memOrderStore) put(o order.Order) { s.orders[o.ID] = o }

func (s *memOrderStore) Insert(ctx context.Context, id, clientID, task, creds string, createdAt time.Time) (order.Order, error) {
	for _, o := range s.orders {
		if o.ClientID == clientID && !o.Terminal() {
			return order.Order{}, order.ErrAlreadyActive
		}
	}
	o := order.Order{ID: id, ClientID: clientID, Task: task, Creds: creds, Status: order.StatusCreated, CreatedAt: createdAt}
	s.orders[id] = o
	return o, nil
}

func (s *memOrderStore) GetByID(ctx context.Context, id string) (order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (s *memOrderStore) Claim(ctx context.Context, orderID, contractorID string, estimatedHours int, assignedAt time.Time) (order.Order, error) {
	for _, o := range s.orders {
		if o.Status == order.StatusInWork && o.ContractorID != nil && *o.ContractorID == contractorID {
			return order.Order{}, order.ErrContractorBusy
		}
	}
	o, ok := s.orders[orderID]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	if o.Status != order.StatusCreated {
		return order.Order{}, order.ErrAlreadyClaimed
	}
	o.ContractorID = &contractorID
	o.EstimatedHours = &estimatedHours
	o.AssignedAt = &assignedAt
	o.Status = order.StatusInWork
	s.orders[orderID] = o
	return o, nil
}

func (s *memOrderStore) Close(ctx context.Context, orderID string, closedAt time.Time) (order.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	if o.Status != order.StatusInWork {
		return order.Order{}, order.ErrInvalidStatus
	}
	o.Status = order.StatusClosed
	o.ClosedAt = &closedAt
	o.Creds = ""
	s.orders[orderID] = o
	return o, nil
}

func (s *memOrderStore) Cancel(ctx context.Context, orderID string, closedAt time.Time) (order.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	if o.Terminal() {
		return order.Order{}, order.ErrInvalidStatus
	}
	o.Status = order.StatusCancelled
	o.ClosedAt = &closedAt
	o.Creds = ""
	s.orders[orderID] = o
	return o, nil
}

func (s *memOrderStore) ReleaseFromContractor(ctx context.Context, contractorID string) ([]order.Order, error) {
	var released []order.Order
	for id, o := range s.orders {
		if o.Status == order.StatusInWork && o.ContractorID != nil && *o.ContractorID == contractorID {
			o.ContractorID = nil
			o.EstimatedHours = nil
			o.AssignedAt = nil
			o.Status = order.StatusCreated
			o.NotInWorkInformed = false
			o.LateWorkInformed = false
			o.InWorkClientInformed = false
			o.ClosedClientInformed = false
			s.orders[id] = o
			released = append(released, o)
		}
	}
	return released, nil
}

func (s *memOrderStore) ListAvailable(ctx context.Context) ([]order.Order, error) {
	var out []order.Order
	for _, o := range s.orders {
		if o.Status == order.StatusCreated {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memOrderStore) InWorkByContractor(ctx context.Context, contractorID string) (order.Order, error) {
	for _, o := range s.orders {
		if o.Status == order.StatusInWork && o.ContractorID != nil && *o.ContractorID == contractorID {
			return o, nil
		}
	}
	return order.Order{}, order.ErrNotFound
}

func (s *memOrderStore) ActiveByClient(ctx context.Context, clientID string) (order.Order, error) {
	for _, o := range s.orders {
		if o.ClientID == clientID && !o.Terminal() {
			return o, nil
		}
	}
	return order.Order{}, order.ErrNotFound
}

func (s *memOrderStore) BusyContractorIDs(ctx context.Context) (map[string]bool, error) {
	busy := map[string]bool{}
	for _, o := range s.orders {
		if o.Status == order.StatusInWork && o.ContractorID != nil {
			busy[*o.ContractorID] = true
		}
	}
	return busy, nil
}

func (s *memOrderStore) MarkInWorkClientInformed(ctx context.Context, id string) error {
	o := s.orders[id]
	o.InWorkClientInformed = true
	s.orders[id] = o
	return nil
}

func (s *memOrderStore) MarkClosedClientInformed(ctx context.Context, id string) error {
	o := s.orders[id]
	o.ClosedClientInformed = true
	s.orders[id] = o
	return nil
}

type memBillingStore struct {
	tariffs map[string]billing.Tariff
	orders  *memOrderStore
}

func newMemBillingStore(orders *memOrderStore) *memBillingStore {
	return &memBillingStore{tariffs: map[string]billing.Tariff{}, orders: orders}
}

func (s *memBillingStore) TariffByID(ctx context.Context, id string) (billing.Tariff, error) {
	t, ok := s.tariffs[id]
	if !ok {
		return billing.Tariff{}, billing.ErrTariffNotFound
	}
	return t, nil
}

func (s *memBillingStore) CheapestTariff(ctx context.Context) (billing.Tariff, error) {
	var cheapest *billing.Tariff
	for id := range s.tariffs {
		t := s.tariffs[id]
		if cheapest == nil || t.Price < cheapest.Price {
			cheapest = &t
		}
	}
	if cheapest == nil {
		return billing.Tariff{}, billing.ErrTariffNotFound
	}
	return *cheapest, nil
}

func (s *memBillingStore) CountOrdersSince(ctx context.Context, clientID string, since time.Time) (int, error) {
	n := 0
	for _, o := range s.orders.orders {
		if o.ClientID == clientID && o.Status != order.StatusCancelled && !o.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *memBillingStore) EarliestOrderAt(ctx context.Context) (time.Time, error) {
	var earliest time.Time
	for _, o := range s.orders.orders {
		if o.Status == order.StatusCancelled {
			continue
		}
		if earliest.IsZero() || o.CreatedAt.Before(earliest) {
			earliest = o.CreatedAt
		}
	}
	if earliest.IsZero() {
		return time.Time{}, billing.ErrNoOrders
	}
	return earliest, nil
}

func (s *memBillingStore) ClientCountsBetween(ctx context.Context, start, end time.Time) (map[string]int, error) {
	return map[string]int{}, nil
}

func (s *memBillingStore) ContractorClosedBetween(ctx context.Context, start, end time.Time) ([]billing.ContractorLine, error) {
	return nil, nil
}

func (s *memBillingStore) ClosedCountForContractorSince(ctx context.Context, contractorID string, since time.Time) (int, error) {
	n := 0
	for _, o := range s.orders.orders {
		if o.Status == order.StatusClosed && o.ContractorID != nil && *o.ContractorID == contractorID &&
			o.ClosedAt != nil && !o.ClosedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type memPairStore struct {
	pairs  map[string]bool // client|contractor
	orders *memOrderStore
	dir    *memUserDir
}

func newMemPairStore(orders *memOrderStore, dir *memUserDir) *memPairStore {
	return &memPairStore{pairs: map[string]bool{}, orders: orders, dir: dir}
}

func (s *memPairStore) Upsert(ctx context.Context, id, clientID, contractorID string) (bool, error) {
	key := clientID + "|" + contractorID
	if s.pairs[key] {
		return false, nil
	}
	s.pairs[key] = true
	return true, nil
}

func (s *memPairStore) ContractorsOf(ctx context.Context, clientID string) ([]pairing.Contractor, error) {
	seen := map[string]bool{}
	var out []pairing.Contractor
	for _, o := range s.orders.orders {
		if o.ClientID != clientID || o.Status != order.StatusClosed || o.ContractorID == nil || seen[*o.ContractorID] {
			continue
		}
		seen[*o.ContractorID] = true
		c := s.dir.users[*o.ContractorID]
		out = append(out, pairing.Contractor{ID: c.ID, Nickname: c.Nickname})
	}
	return out, nil
}

func (s *memPairStore) LastContractor(ctx context.Context, clientID string) (pairing.Contractor, error) {
	var last *order.Order
	for id := range s.orders.orders {
		o := s.orders.orders[id]
		if o.ClientID != clientID || o.Status != order.StatusClosed || o.ContractorID == nil {
			continue
		}
		if last == nil || (o.ClosedAt != nil && last.ClosedAt != nil && o.ClosedAt.After(*last.ClosedAt)) {
			last = &o
		}
	}
	if last == nil {
		return pairing.Contractor{}, pairing.ErrNoContractors
	}
	c := s.dir.users[*last.ContractorID]
	return pairing.Contractor{ID: c.ID, Nickname: c.Nickname}, nil
}

// testBot wires a Bot over the in-memory fakes with deterministic ids.
type testBot struct {
	bot       *Bot
	transport *fakeTransport
	dir       *memUserDir
	orders    *memOrderStore
	billing   *memBillingStore
}

func newTestBot() *testBot {
	transport := &fakeTransport{}
	dir := newMemUserDir()
	orderStore := newMemOrderStore()
	billingStore := newMemBillingStore(orderStore)
	pairStore := newMemPairStore(orderStore, dir)

	seq := 0
	nextID := func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}

	users := user.NewService(dir).WithIDGenerator(nextID)
	billingSvc := billing.NewService(billingStore, 1, 500)
	orders := order.NewService(orderStore, billingSvc).WithIDGenerator(nextID)
	pairs := pairing.NewService(pairStore).WithIDGenerator(nextID)

	return &testBot{
		bot:       New(transport, users, orders, billingSvc, pairs, nil),
		transport: transport,
		dir:       dir,
		orders:    orderStore,
		billing:   billingStore,
	}
}

func ptrInt64(v int64) *int64    { return &v }
func ptrString(v string) *string { return &v }

func orderFixture(id, clientID, task string) order.Order {
	return order.Order{
		ID:        id,
		ClientID:  clientID,
		Task:      task,
		Creds:     "login: admin\npassword: qwerty",
		Status:    order.StatusCreated,
		CreatedAt: time.Now().Add(-time.Minute),
	}
}

func (tb *testBot) addTariff(t billing.Tariff) { tb.billing.tariffs[t.ID] = t }

func (tb *testBot) addUser(u user.User) {
	if u.Status == "" {
		u.Status = user.StatusActive
	}
	tb.dir.put(u)
}

func (tb *testBot) stateOf(userID string) string { return tb.dir.states[userID] }

func (tb *testBot) text(chatID int64, nickname, text string) Inbound {
	return Inbound{ChatID: chatID, Nickname: nickname, Text: text, HasText: true}
}

func (tb *testBot) choice(chatID int64, nickname, data string) Inbound {
	return Inbound{ChatID: chatID, Nickname: nickname, Choice: data}
}
