package billing

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Store abstracts repository operations for the service.
type Store interface {
	TariffByID(ctx context.Context, id string) (Tariff, error)
	CheapestTariff(ctx context.Context) (Tariff, error)
	CountOrdersSince(ctx context.Context, clientID string, since time.Time) (int, error)
	EarliestOrderAt(ctx context.Context) (time.Time, error)
	ClientCountsBetween(ctx context.Context, start, end time.Time) (map[string]int, error)
	ContractorClosedBetween(ctx context.Context, start, end time.Time) ([]ContractorLine, error)
	ClosedCountForContractorSince(ctx context.Context, contractorID string, since time.Time) (int, error)
}

// Service computes billing-period aggregates. BillingDay anchors every
// period; orderRate is the per-order payroll rate.
type Service struct {
	repo       Store
	billingDay int
	orderRate  int
	now        func() time.Time
}

func NewService(repo Store, billingDay, orderRate int) *Service {
	return &Service{
		repo:       repo,
		billingDay: billingDay,
		orderRate:  orderRate,
		now:        time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// TariffByID resolves a client's tariff.
func (s *Service) TariffByID(ctx context.Context, id string) (Tariff, error) {
	return s.repo.TariffByID(ctx, id)
}

// CheapestTariff is the default tariff for owner-added clients.
func (s *Service) CheapestTariff(ctx context.Context) (Tariff, error) {
	return s.repo.CheapestTariff(ctx)
}

// OrdersThisPeriod counts the client's orders created since the current
// billing-period start. Backs the tariff quota check.
func (s *Service) OrdersThisPeriod(ctx context.Context, clientID string) (int, error) {
	return s.repo.CountOrdersSince(ctx, clientID, PeriodStart(s.now(), s.billingDay))
}

// MonthlyOrderStats walks billing periods backward from the present to the
// earliest non-cancelled order and reports per-client counts plus a period
// total. The walk stops once a period both precedes the earliest order and
// contains nothing.
func (s *Service) MonthlyOrderStats(ctx context.Context) ([]PeriodStat, error) {
	earliest, err := s.repo.EarliestOrderAt(ctx)
	if err != nil {
		if errors.Is(err, ErrNoOrders) {
			return nil, nil
		}
		return nil, err
	}

	now := s.now()
	stats := make([]PeriodStat, 0, 16)
	for back := 0; ; back++ {
		start, end := PeriodBounds(now, s.billingDay, back)
		counts, err := s.repo.ClientCountsBetween(ctx, start, end)
		if err != nil {
			return nil, err
		}
		if start.Before(earliest) && len(counts) == 0 {
			break
		}

		clients := make([]string, 0, len(counts))
		for client := range counts {
			clients = append(clients, client)
		}
		sort.Strings(clients)

		total := 0
		for _, client := range clients {
			stats = append(stats, PeriodStat{PeriodStart: start, Client: client, Count: counts[client]})
			total += counts[client]
		}
		stats = append(stats, PeriodStat{PeriodStart: start, Client: "total", Count: total})

		if start.Before(earliest) {
			break
		}
	}
	return stats, nil
}

// ContractorBilling reports closed orders per contractor for the
// immediately preceding billing period, for payroll.
func (s *Service) ContractorBilling(ctx context.Context) ([]ContractorLine, error) {
	start, end := PeriodBounds(s.now(), s.billingDay, 1)
	return s.repo.ContractorClosedBetween(ctx, start, end)
}

// ContractorEarnings is the contractor's current-period closed-order count
// and the resulting payout at the configured per-order rate.
func (s *Service) ContractorEarnings(ctx context.Context, contractorID string) (closed int, payout int, err error) {
	closed, err = s.repo.ClosedCountForContractorSince(ctx, contractorID, PeriodStart(s.now(), s.billingDay))
	if err != nil {
		return 0, 0, err
	}
	return closed, closed * s.orderRate, nil
}
