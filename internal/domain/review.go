package domain

import (
	"fmt"
	"time"
)

// ReviewItem is an officer work item for a profile submission.
type ReviewItem struct {
	ID          string
	ProfileID   string
	Email       string
	SubmittedAt time.Time
}

// ReviewItemID derives the deterministic key for a submission bucket.
func ReviewItemID(profileID, bucket string) string {
	return fmt.Sprintf("%s_%s", profileID, bucket)
}

// NotificationItem is an append-only message owned by a profile.
type NotificationItem struct {
	ID        string
	ProfileID string
	Type      Decision
	Message   string
	CreatedAt time.Time
}

// NotificationID derives the deterministic key for a decision notification.
func NotificationID(kind Decision, bucket string) string {
	return fmt.Sprintf("%s_%s", kind, bucket)
}

// DecisionMessage returns the user-facing text for a decision.
func DecisionMessage(kind Decision) string {
	if kind == DecisionApproved {
		return "Your account has been approved."
	}
	return "Your account has been rejected."
}
