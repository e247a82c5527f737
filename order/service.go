package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQuotaExceeded signals the client spent the tariff's monthly order quota.
	ErrQuotaExceeded = errors.New("order: tariff quota exceeded for this period")
	// ErrEmptyTask rejects an order draft with no task text.
	ErrEmptyTask = errors.New("order: task text required")
	// ErrBadEstimate rejects a completion estimate outside 1..24 hours.
	ErrBadEstimate = errors.New("order: estimate must be between 1 and 24 hours")
)

// Hour-estimate bounds accepted from contractors.
const (
	MinEstimateHours = 1
	MaxEstimateHours = 24
)

// Store abstracts repository operations for the service.
type Store interface {
	Insert(ctx context.Context, id, clientID, task, creds string, createdAt time.Time) (Order, error)
	GetByID(ctx context.Context, id string) (Order, error)
	Claim(ctx context.Context, orderID, contractorID string, estimatedHours int, assignedAt time.Time) (Order, error)
	Close(ctx context.Context, orderID string, closedAt time.Time) (Order, error)
	Cancel(ctx context.Context, orderID string, closedAt time.Time) (Order, error)
	ReleaseFromContractor(ctx context.Context, contractorID string) ([]Order, error)
	ListAvailable(ctx context.Context) ([]Order, error)
	InWorkByContractor(ctx context.Context, contractorID string) (Order, error)
	ActiveByClient(ctx context.Context, clientID string) (Order, error)
	BusyContractorIDs(ctx context.Context) (map[string]bool, error)
	MarkInWorkClientInformed(ctx context.Context, id string) error
	MarkClosedClientInformed(ctx context.Context, id string) error
}

// QuotaSource answers how many orders the client created in the current
// billing period and what the tariff allows.
type QuotaSource interface {
	OrdersThisPeriod(ctx context.Context, clientID string) (int, error)
}

// Service enforces the order lifecycle on top of the store's atomic
// conditional updates.
type Service struct {
	repo        Store
	quota       QuotaSource
	idGenerator func() string
	now         func() time.Time
}

func NewService(repo Store, quota QuotaSource) *Service {
	return &Service{
		repo:        repo,
		quota:       quota,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateParams carries a client's order draft.
type CreateParams struct {
	ClientID    string
	Task        string
	Creds       string
	OrdersLimit int
}

// Create validates the period quota and inserts a created order. The
// active-order invariant is enforced by the store, so a concurrent second
// draft still surfaces ErrAlreadyActive.
func (s *Service) Create(ctx context.Context, params CreateParams) (Order, error) {
	if strings.TrimSpace(params.Task) == "" {
		return Order{}, ErrEmptyTask
	}
	if params.ClientID == "" {
		return Order{}, fmt.Errorf("order: missing client id")
	}

	used, err := s.quota.OrdersThisPeriod(ctx, params.ClientID)
	if err != nil {
		return Order{}, err
	}
	if used >= params.OrdersLimit {
		return Order{}, ErrQuotaExceeded
	}

	return s.repo.Insert(ctx, s.idGenerator(), params.ClientID, params.Task, params.Creds, s.now())
}

// Claim validates the estimate and commits the created -> in_work
// transition. The busy re-check happens inside the store at commit time, so
// the menu-level gate cannot mask the race.
func (s *Service) Claim(ctx context.Context, orderID, contractorID string, estimatedHours int) (Order, error) {
	if estimatedHours < MinEstimateHours || estimatedHours > MaxEstimateHours {
		return Order{}, ErrBadEstimate
	}
	return s.repo.Claim(ctx, orderID, contractorID, estimatedHours, s.now())
}

// Close finishes an in-work order. Notifying the client and freeing the
// contractor for new claims are the caller's reactions, not the store's.
func (s *Service) Close(ctx context.Context, orderID string) (Order, error) {
	return s.repo.Close(ctx, orderID, s.now())
}

// Cancel terminates any non-terminal order.
func (s *Service) Cancel(ctx context.Context, orderID string) (Order, error) {
	return s.repo.Cancel(ctx, orderID, s.now())
}

// ReleaseFromContractor resets a deactivated contractor's in-work orders to
// created with a fresh SLA clock.
func (s *Service) ReleaseFromContractor(ctx context.Context, contractorID string) ([]Order, error) {
	return s.repo.ReleaseFromContractor(ctx, contractorID)
}

// ListAvailable returns claimable orders oldest first.
func (s *Service) ListAvailable(ctx context.Context) ([]Order, error) {
	return s.repo.ListAvailable(ctx)
}

// GetByID fetches one order.
func (s *Service) GetByID(ctx context.Context, id string) (Order, error) {
	return s.repo.GetByID(ctx, id)
}

// InWorkByContractor returns the contractor's current order, if any.
func (s *Service) InWorkByContractor(ctx context.Context, contractorID string) (Order, error) {
	return s.repo.InWorkByContractor(ctx, contractorID)
}

// ActiveByClient returns the client's pending order, if any.
func (s *Service) ActiveByClient(ctx context.Context, clientID string) (Order, error) {
	return s.repo.ActiveByClient(ctx, clientID)
}

// ContractorBusy reports whether the contractor holds an in-work order.
func (s *Service) ContractorBusy(ctx context.Context, contractorID string) (bool, error) {
	_, err := s.repo.InWorkByContractor(ctx, contractorID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// BusyContractorIDs backs the manager's available-contractors listing.
func (s *Service) BusyContractorIDs(ctx context.Context) (map[string]bool, error) {
	return s.repo.BusyContractorIDs(ctx)
}

// MarkInWorkClientInformed records that the client heard about the claim.
func (s *Service) MarkInWorkClientInformed(ctx context.Context, id string) error {
	return s.repo.MarkInWorkClientInformed(ctx, id)
}

// MarkClosedClientInformed records that the client heard about the close.
func (s *Service) MarkClosedClientInformed(ctx context.Context, id string) error {
	return s.repo.MarkClosedClientInformed(ctx, id)
}
