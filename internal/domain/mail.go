package domain

import (
	"fmt"
	"time"
)

// MailKind tags outbound email records by purpose.
type MailKind string

const (
	MailKindVerification MailKind = "verification"
)

// DeliveryState is the provider-reported state of an outbound email.
type DeliveryState string

const (
	DeliveryPending    DeliveryState = "pending"
	DeliveryProcessing DeliveryState = "processing"
	DeliverySuccess    DeliveryState = "success"
	DeliveryFailed     DeliveryState = "failed"
	DeliveryBounced    DeliveryState = "bounced"
	DeliveryRejected   DeliveryState = "rejected"
)

// IsTerminalFailure reports whether the provider gave up on the message.
func (s DeliveryState) IsTerminalFailure() bool {
	switch s {
	case DeliveryFailed, DeliveryBounced, DeliveryRejected:
		return true
	}
	return false
}

// MailRecord is an outbound email send request and its delivery status.
type MailRecord struct {
	ID            string
	Kind          MailKind
	ProfileID     string
	To            string
	Template      string
	TemplateData  map[string]any
	State         DeliveryState
	DeliveryError string
	RetryCount    int
	OriginalID    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone returns a copy with its own template data.
func (m *MailRecord) Clone() *MailRecord {
	if m == nil {
		return nil
	}
	cp := *m
	if m.TemplateData != nil {
		cp.TemplateData = make(map[string]any, len(m.TemplateData))
		for k, v := range m.TemplateData {
			cp.TemplateData[k] = v
		}
	}
	return &cp
}

// RetryMailID derives the id of the n-th resend of a message.
func RetryMailID(originalID string, attempt int) string {
	return fmt.Sprintf("%s_retry%d", originalID, attempt)
}
