package domain

// Dashboard aggregate field names.
const (
	CounterPendingAccounts  = "pendingAccounts"
	CounterPendingArrival   = "pendingArrival"
	CounterPendingDeparture = "pendingDeparture"
)

// DashboardCounters is the denormalized aggregate kept by the counter maintainer.
type DashboardCounters struct {
	PendingAccounts  int64 `json:"pendingAccounts"`
	PendingArrival   int64 `json:"pendingArrival"`
	PendingDeparture int64 `json:"pendingDeparture"`
}

// Fields returns the aggregate as a field map.
func (c DashboardCounters) Fields() map[string]int64 {
	return map[string]int64{
		CounterPendingAccounts:  c.PendingAccounts,
		CounterPendingArrival:   c.PendingArrival,
		CounterPendingDeparture: c.PendingDeparture,
	}
}

// DashboardStats is the officer dashboard view.
type DashboardStats struct {
	PendingAccounts  int64 `json:"pendingAccounts"`
	ApprovedToday    int64 `json:"approvedToday"`
	RejectedToday    int64 `json:"rejectedToday"`
	PendingArrival   int64 `json:"pendingArrival"`
	PendingDeparture int64 `json:"pendingDeparture"`
}

// ApplicationCounterField names the pending counter for an application type.
func ApplicationCounterField(t ApplicationType) string {
	if t == ApplicationDeparture {
		return CounterPendingDeparture
	}
	return CounterPendingArrival
}
