package domain

import "time"

// ApplicationType distinguishes arrival and departure submissions.
type ApplicationType string

const (
	ApplicationArrival   ApplicationType = "arrival"
	ApplicationDeparture ApplicationType = "departure"
)

// Valid reports whether t is a known application type.
func (t ApplicationType) Valid() bool {
	return t == ApplicationArrival || t == ApplicationDeparture
}

// ApplicationStatus enumerates application review states.
type ApplicationStatus string

const (
	ApplicationWaiting  ApplicationStatus = "waiting"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationDeclined ApplicationStatus = "declined"
)

// Valid reports whether s is a known application status.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationWaiting, ApplicationApproved, ApplicationDeclined:
		return true
	}
	return false
}

// Application is an arrival or departure submission owned by an agent profile.
type Application struct {
	ID                   string
	AgentUID             string
	Type                 ApplicationType
	Status               ApplicationStatus
	VesselName           string
	PortOfCall           string
	ScheduledAt          *time.Time
	Metadata             map[string]any
	DecidedBy            string
	ClearanceDocumentURL string
	ClearanceDocumentKey string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Clone returns a copy with its own metadata map.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Metadata != nil {
		cp.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			cp.Metadata[k] = v
		}
	}
	if a.ScheduledAt != nil {
		at := *a.ScheduledAt
		cp.ScheduledAt = &at
	}
	return &cp
}
