package pairing

import "time"

// Pair records a sticky client/contractor preference created through the
// reservation feature after a completed order.
type Pair struct {
	ID           string
	ClientID     string
	ContractorID string
	CreatedAt    time.Time
}

// Contractor is a directory entry of someone who completed an order for the
// client.
type Contractor struct {
	ID       string
	Nickname string
}
