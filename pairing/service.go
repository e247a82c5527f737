package pairing

import (
	"context"

	"github.com/google/uuid"
)

// Store abstracts repository operations for the service.
type Store interface {
	Upsert(ctx context.Context, id, clientID, contractorID string) (bool, error)
	ContractorsOf(ctx context.Context, clientID string) ([]Contractor, error)
	LastContractor(ctx context.Context, clientID string) (Contractor, error)
}

// Service owns the sticky-contractor reservation feature. Capability gating
// by tariff is the caller's concern; the service only guarantees the
// completed-order precondition and idempotence.
type Service struct {
	repo        Store
	idGenerator func() string
}

func NewService(repo Store) *Service {
	return &Service{
		repo:        repo,
		idGenerator: func() string { return uuid.NewString() },
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// ReserveLast pins the contractor of the client's most recent completed
// order. Returns the contractor and whether this call created the pairing;
// a repeated reservation reports created=false.
func (s *Service) ReserveLast(ctx context.Context, clientID string) (Contractor, bool, error) {
	contractor, err := s.repo.LastContractor(ctx, clientID)
	if err != nil {
		return Contractor{}, false, err
	}
	created, err := s.repo.Upsert(ctx, s.idGenerator(), clientID, contractor.ID)
	if err != nil {
		return Contractor{}, false, err
	}
	return contractor, created, nil
}

// ContractorsOf lists the client's completed-order contractors.
func (s *Service) ContractorsOf(ctx context.Context, clientID string) ([]Contractor, error) {
	return s.repo.ContractorsOf(ctx, clientID)
}
