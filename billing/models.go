package billing

import "time"

// Tariff is immutable reference data resolved per client.
type Tariff struct {
	ID                       string
	Name                     string
	OrdersLimit              int
	ReactionTimeMinutes      int
	CanReserveContractor     bool
	CanSeeContractorContacts bool
	Price                    float64
}

// ReactionBudget is the tariff's response-time budget as a duration.
func (t Tariff) ReactionBudget() time.Duration {
	return time.Duration(t.ReactionTimeMinutes) * time.Minute
}

// PeriodStat is one client's order count inside one billing period.
type PeriodStat struct {
	PeriodStart time.Time
	Client      string
	Count       int
}

// ContractorLine is one payable row of the previous-period billing report.
type ContractorLine struct {
	Contractor string
	Count      int
}
