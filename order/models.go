package order

import "time"

// Status is the order lifecycle: created -> in_work -> closed or cancelled.
// in_work -> created happens only when a contractor is removed from service
// while holding the order.
type Status string

const (
	StatusCreated   Status = "created"
	StatusInWork    Status = "in_work"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

// Order mirrors the orders table. Creds is cleared on any terminal
// transition. The informed flags are monotone per breach: the scanner only
// sets them; they reset solely when a release restarts the SLA clock.
type Order struct {
	ID             string
	Task           string
	ClientID       string
	ContractorID   *string
	Creds          string
	EstimatedHours *int
	CreatedAt      time.Time
	AssignedAt     *time.Time
	ClosedAt       *time.Time
	Status         Status

	NotInWorkInformed    bool
	LateWorkInformed     bool
	InWorkClientInformed bool
	ClosedClientInformed bool
}

// Terminal reports whether the order reached a final status.
func (o Order) Terminal() bool {
	return o.Status == StatusClosed || o.Status == StatusCancelled
}

// NotTakenCandidate is a created order awaiting the not-taken-in-time scan,
// carrying what the threshold test and the digest line need.
type NotTakenCandidate struct {
	OrderID         string
	Task            string
	ClientNickname  string
	CreatedAt       time.Time
	ReactionMinutes int
}

// NotClosedCandidate is an in-work order awaiting the not-closed-in-time scan.
type NotClosedCandidate struct {
	OrderID            string
	Task               string
	ClientNickname     string
	ContractorNickname string
	AssignedAt         time.Time
}
