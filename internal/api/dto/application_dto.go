package dto

import "time"

// ApplicationRequest creates or edits an application. Omitted fields are left unchanged
// on edit; a null metadata value removes the key.
type ApplicationRequest struct {
	Type        string         `json:"type"`
	VesselName  *string        `json:"vesselName"`
	PortOfCall  *string        `json:"portOfCall"`
	ScheduledAt *time.Time     `json:"scheduledAt"`
	Metadata    map[string]any `json:"metadata"`
}

// ApplicationDecisionRequest approves or declines an application.
type ApplicationDecisionRequest struct {
	Status string `json:"status"`
}

// ApplicationResponse is the API view of an application.
type ApplicationResponse struct {
	ID                   string         `json:"id"`
	AgentUID             string         `json:"agentUid"`
	Type                 string         `json:"type"`
	Status               string         `json:"status"`
	VesselName           string         `json:"vesselName,omitempty"`
	PortOfCall           string         `json:"portOfCall,omitempty"`
	ScheduledAt          *time.Time     `json:"scheduledAt,omitempty"`
	Metadata             map[string]any `json:"metadata"`
	DecidedBy            string         `json:"decidedBy,omitempty"`
	ClearanceDocumentURL string         `json:"clearanceDocumentUrl,omitempty"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}
