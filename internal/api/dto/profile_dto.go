package dto

import "time"

// DocumentRef is one document entry on a profile.
type DocumentRef struct {
	DocumentName string     `json:"documentName"`
	StoragePath  string     `json:"storagePath"`
	UploadedAt   *time.Time `json:"uploadedAt,omitempty"`
}

// VerificationSummary exposes an outstanding challenge without its code hash.
type VerificationSummary struct {
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Attempts  int       `json:"attempts"`
}

// ProfileResponse is the owner and staff view of a profile.
type ProfileResponse struct {
	ID                   string               `json:"id"`
	Email                string               `json:"email"`
	Role                 string               `json:"role"`
	Status               string               `json:"status"`
	IsEmailVerified      bool                 `json:"isEmailVerified"`
	HasUploadedDocuments bool                 `json:"hasUploadedDocuments"`
	Documents            []DocumentRef        `json:"documents"`
	Verification         *VerificationSummary `json:"emailVerification,omitempty"`
	DecidedBy            string               `json:"decidedBy,omitempty"`
	DecidedAt            *time.Time           `json:"decidedAt,omitempty"`
	DecisionNote         string               `json:"decisionNote,omitempty"`
	LastError            string               `json:"lastError,omitempty"`
	CreatedAt            time.Time            `json:"createdAt"`
	UpdatedAt            time.Time            `json:"updatedAt"`
}

// ProfilePatchRequest is an owner write on /profiles/me.
type ProfilePatchRequest struct {
	HasUploadedDocuments *bool         `json:"hasUploadedDocuments"`
	Status               *string       `json:"status"`
	Documents            []DocumentRef `json:"documents"`
}

// NotificationResponse is one decision notification.
type NotificationResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidateCodeRequest carries the submitted verification code.
type ValidateCodeRequest struct {
	Code string `json:"code"`
}
