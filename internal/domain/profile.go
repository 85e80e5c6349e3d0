package domain

import "time"

// Profile is the per-principal record tracking the verification and approval workflow.
type Profile struct {
	ID                   string
	Email                string
	Role                 Role
	Status               ProfileStatus
	IsEmailVerified      bool
	HasUploadedDocuments bool
	Documents            []DocumentRef
	Verification         *VerificationChallenge
	DecidedBy            string
	DecidedAt            *time.Time
	DecisionNote         string
	LastError            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// DocumentRef is one uploaded document attached to a profile.
type DocumentRef struct {
	Name        string    `json:"documentName"`
	StoragePath string    `json:"storagePath"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// VerificationChallenge is present only while an email verification code is outstanding.
type VerificationChallenge struct {
	CodeHash      string    `json:"codeHash"`
	IssuedAt      time.Time `json:"issuedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Attempts      int       `json:"attempts"`
	CorrelationID string    `json:"correlationId"`
}

// Clone returns a deep copy suitable for before/after snapshots.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Documents != nil {
		cp.Documents = make([]DocumentRef, len(p.Documents))
		copy(cp.Documents, p.Documents)
	}
	if p.DecidedAt != nil {
		at := *p.DecidedAt
		cp.DecidedAt = &at
	}
	if p.Verification != nil {
		v := *p.Verification
		cp.Verification = &v
	}
	return &cp
}

// Touch bumps UpdatedAt, never moving it backwards.
func (p *Profile) Touch(at time.Time) {
	at = Millis(at)
	if at.After(p.UpdatedAt) {
		p.UpdatedAt = at
		return
	}
	// keep the timestamp strictly increasing so dedupe keys derived from it stay distinct
	p.UpdatedAt = p.UpdatedAt.Add(time.Millisecond)
}

// Transition moves the profile along one edge of the workflow graph and bumps UpdatedAt.
func (p *Profile) Transition(to ProfileStatus, at time.Time) error {
	from := p.Status.OrDefault()
	if !from.CanTransition(to) {
		return &IllegalTransitionError{From: from, To: to}
	}
	p.Status = to
	p.Touch(at)
	return nil
}

// HasDocument reports whether a document with the same locator or name is already recorded.
func (p *Profile) HasDocument(storagePath, name string) bool {
	for _, doc := range p.Documents {
		if storagePath != "" && doc.StoragePath == storagePath {
			return true
		}
		if name != "" && doc.Name == name {
			return true
		}
	}
	return false
}

// AppendDocument adds doc unless an entry with the same locator or name exists.
func (p *Profile) AppendDocument(doc DocumentRef) bool {
	if p.HasDocument(doc.StoragePath, doc.Name) {
		return false
	}
	p.Documents = append(p.Documents, doc)
	return true
}

// Millis truncates t to millisecond precision in UTC, the resolution used for dedupe keys.
func Millis(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Millisecond)
}
