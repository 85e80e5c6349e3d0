package dto

import (
	"time"

	"github.com/spec-kit/clearance-service/internal/domain"
)

// DecisionRequest approves or rejects a profile awaiting approval.
type DecisionRequest struct {
	Decision      string `json:"decision"`
	Note          string `json:"note"`
	ApplicationID string `json:"applicationId"`
}

// AssignRoleRequest sets a principal's role claim.
type AssignRoleRequest struct {
	Role string `json:"role"`
}

// ReviewItemResponse is one entry of the review queue.
type ReviewItemResponse struct {
	ID          string    `json:"id"`
	ProfileID   string    `json:"profileId"`
	Email       string    `json:"email"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ReconcileResponse reports the recounted aggregate.
type ReconcileResponse struct {
	Success  bool                     `json:"success"`
	Counters domain.DashboardCounters `json:"counters"`
}
