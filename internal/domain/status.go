package domain

import "fmt"

// ProfileStatus enumerates the verification/approval workflow states of a profile.
type ProfileStatus string

const (
	StatusPendingEmailVerification ProfileStatus = "pending_email_verification"
	StatusPendingDocuments         ProfileStatus = "pending_documents"
	StatusPendingApproval          ProfileStatus = "pending_approval"
	StatusApproved                 ProfileStatus = "approved"
	StatusRejected                 ProfileStatus = "rejected"
	StatusEmailVerificationFailed  ProfileStatus = "email_verification_failed"
)

// profileTransitions is the directed workflow graph. Terminal states map to nothing.
var profileTransitions = map[ProfileStatus][]ProfileStatus{
	StatusPendingEmailVerification: {StatusPendingDocuments, StatusEmailVerificationFailed},
	StatusEmailVerificationFailed:  {StatusPendingDocuments, StatusPendingEmailVerification},
	StatusPendingDocuments:         {StatusPendingApproval},
	StatusPendingApproval:          {StatusApproved, StatusRejected},
	StatusApproved:                 {},
	StatusRejected:                 {},
}

// ParseProfileStatus validates a raw status value.
func ParseProfileStatus(raw string) (ProfileStatus, error) {
	status := ProfileStatus(raw)
	if _, ok := profileTransitions[status]; !ok {
		return "", fmt.Errorf("unknown profile status %q", raw)
	}
	return status, nil
}

// OrDefault maps the zero value to pending_email_verification, the initial state.
func (s ProfileStatus) OrDefault() ProfileStatus {
	if s == "" {
		return StatusPendingEmailVerification
	}
	return s
}

// Allowed returns the states reachable from s in one step.
func (s ProfileStatus) Allowed() []ProfileStatus {
	next := profileTransitions[s.OrDefault()]
	out := make([]ProfileStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s ProfileStatus) CanTransition(next ProfileStatus) bool {
	for _, candidate := range profileTransitions[s.OrDefault()] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a terminal decision.
func (s ProfileStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// IllegalTransitionError reports an attempted move that is not an edge of the graph.
type IllegalTransitionError struct {
	From ProfileStatus
	To   ProfileStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s", e.From, e.To)
}

// Decision is an officer's verdict on a profile awaiting approval.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Status returns the terminal state a decision leads to.
func (d Decision) Status() (ProfileStatus, bool) {
	switch d {
	case DecisionApproved:
		return StatusApproved, true
	case DecisionRejected:
		return StatusRejected, true
	default:
		return "", false
	}
}
