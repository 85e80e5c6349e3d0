package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/spec-kit/clearance-service/internal/domain"
)

// StoreContractSuite holds the behavior every Store implementation must share.
type StoreContractSuite struct {
	suite.Suite
	newStore func(t *testing.T) Store
	store    Store
	ctx      context.Context
}

func TestMemoryStoreContract(t *testing.T) {
	suite.Run(t, &StoreContractSuite{newStore: func(*testing.T) Store { return NewMemoryStore() }})
}

func (s *StoreContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore(s.T())
}

func (s *StoreContractSuite) insertProfile(p *domain.Profile) {
	s.Require().NoError(s.store.RunInTx(s.ctx, func(tx Tx) error {
		return tx.InsertProfile(s.ctx, p)
	}))
}

func (s *StoreContractSuite) newProfile(id string, status domain.ProfileStatus) *domain.Profile {
	now := domain.Millis(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	return &domain.Profile{
		ID: id, Email: id + "@example.com", Role: domain.RoleUser, Status: status,
		Documents: []domain.DocumentRef{}, CreatedAt: now, UpdatedAt: now,
	}
}

func (s *StoreContractSuite) TestProfileRoundTripKeepsShape() {
	s.insertProfile(s.newProfile("u1", domain.StatusPendingDocuments))

	got, err := s.store.Profiles().Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.NotNil(got.Documents)
	s.Empty(got.Documents)
	s.Nil(got.DecidedAt)
	s.Nil(got.Verification)

	uploaded := domain.Millis(time.Date(2024, 6, 1, 9, 5, 0, 0, time.UTC))
	decided := uploaded.Add(time.Minute)
	s.Require().NoError(s.store.RunInTx(s.ctx, func(tx Tx) error {
		p, err := tx.GetProfile(s.ctx, "u1")
		if err != nil {
			return err
		}
		p.Documents = append(p.Documents, domain.DocumentRef{Name: "passport.pdf", StoragePath: "profiles/u1/documents/passport.pdf", UploadedAt: uploaded})
		p.Verification = &domain.VerificationChallenge{CodeHash: "hash", IssuedAt: uploaded, ExpiresAt: decided, Attempts: 2, CorrelationID: "c1"}
		p.Status = domain.StatusApproved
		p.DecidedBy = "officer@example.com"
		p.DecidedAt = &decided
		p.UpdatedAt = decided
		return tx.UpdateProfile(s.ctx, p)
	}))

	got, err = s.store.Profiles().Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(got.Documents, 1)
	s.Equal("passport.pdf", got.Documents[0].Name)
	s.True(got.Documents[0].UploadedAt.Equal(uploaded))
	s.Require().NotNil(got.Verification)
	s.Equal(2, got.Verification.Attempts)
	s.Require().NotNil(got.DecidedAt)
	s.True(got.DecidedAt.Equal(decided))
	s.True(got.UpdatedAt.Equal(decided))
}

func (s *StoreContractSuite) TestMissingRecordsReportNotFound() {
	_, err := s.store.Profiles().Get(s.ctx, "nobody")
	s.ErrorIs(err, ErrNotFound)
	_, err = s.store.Applications().Get(s.ctx, "nothing")
	s.ErrorIs(err, ErrNotFound)
	_, err = s.store.Mail().Get(s.ctx, "nothing")
	s.ErrorIs(err, ErrNotFound)
	_, err = s.store.ReviewQueue().Get(s.ctx, "nothing")
	s.ErrorIs(err, ErrNotFound)
	_, err = s.store.Identities().Get(s.ctx, "nobody")
	s.ErrorIs(err, ErrNotFound)
	s.ErrorIs(s.store.Identities().SetRole(s.ctx, "nobody", domain.RoleOfficer), ErrNotFound)

	err = s.store.RunInTx(s.ctx, func(tx Tx) error {
		_, err := tx.GetProfile(s.ctx, "nobody")
		return err
	})
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreContractSuite) TestRollbackDiscardsWrites() {
	boom := errors.New("boom")
	err := s.store.RunInTx(s.ctx, func(tx Tx) error {
		if err := tx.InsertProfile(s.ctx, s.newProfile("u1", domain.StatusPendingDocuments)); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.Profiles().Get(s.ctx, "u1")
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreContractSuite) TestInsertOnceCreatesOnce() {
	s.insertProfile(s.newProfile("u1", domain.StatusPendingApproval))
	s.insertProfile(s.newProfile("u2", domain.StatusPendingDocuments))
	at := domain.Millis(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))

	item := domain.ReviewItem{ID: domain.ReviewItemID("u1", "1717232400000"), ProfileID: "u1", Email: "u1@example.com", SubmittedAt: at}
	created, err := s.store.ReviewQueue().InsertOnce(s.ctx, item)
	s.Require().NoError(err)
	s.True(created)
	created, err = s.store.ReviewQueue().InsertOnce(s.ctx, item)
	s.Require().NoError(err)
	s.False(created)

	queued, err := s.store.ReviewQueue().List(s.ctx, 10, 0)
	s.Require().NoError(err)
	s.Len(queued, 1)

	// notification keys are scoped per profile
	id := domain.NotificationID(domain.DecisionApproved, "1717232400000")
	for _, profileID := range []string{"u1", "u2", "u1"} {
		_, err := s.store.Notifications().InsertOnce(s.ctx, domain.NotificationItem{
			ID: id, ProfileID: profileID, Type: domain.DecisionApproved, Message: domain.DecisionMessage(domain.DecisionApproved), CreatedAt: at,
		})
		s.Require().NoError(err)
	}
	items, err := s.store.Notifications().ListByProfile(s.ctx, "u1", 10)
	s.Require().NoError(err)
	s.Len(items, 1)
	items, err = s.store.Notifications().ListByProfile(s.ctx, "u2", 10)
	s.Require().NoError(err)
	s.Len(items, 1)

	mail := domain.MailRecord{ID: "verify_c1", Kind: domain.MailKindVerification, ProfileID: "u1", To: "u1@example.com",
		Template: "verification", TemplateData: map[string]any{"code": "1234"}, State: domain.DeliveryPending, CreatedAt: at, UpdatedAt: at}
	created, err = s.store.Mail().InsertOnce(s.ctx, mail)
	s.Require().NoError(err)
	s.True(created)
	mail.To = "other@example.com"
	created, err = s.store.Mail().InsertOnce(s.ctx, mail)
	s.Require().NoError(err)
	s.False(created)
	stored, err := s.store.Mail().Get(s.ctx, "verify_c1")
	s.Require().NoError(err)
	s.Equal("u1@example.com", stored.To)
}

func (s *StoreContractSuite) TestIdentityUpsertKeepsAssignedRole() {
	ids := s.store.Identities()
	s.Require().NoError(ids.Upsert(s.ctx, &domain.Identity{UID: "u1", Email: "u1@example.com"}))
	s.Require().NoError(ids.SetRole(s.ctx, "u1", domain.RoleOfficer))
	s.Require().NoError(ids.MarkEmailVerified(s.ctx, "u1"))

	s.Require().NoError(ids.Upsert(s.ctx, &domain.Identity{UID: "u1", Email: "new@example.com", Role: domain.RoleUser}))

	got, err := ids.Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(domain.RoleOfficer, got.Role)
	s.True(got.EmailVerified)
	s.Equal("new@example.com", got.Email)
}

func (s *StoreContractSuite) TestDecisionCounts() {
	decided := domain.Millis(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	s.insertProfile(s.newProfile("u1", domain.StatusPendingApproval))
	approved := s.newProfile("u2", domain.StatusApproved)
	approved.DecidedAt = &decided
	s.insertProfile(approved)
	// approved before decision stamps were recorded
	s.insertProfile(s.newProfile("u3", domain.StatusApproved))

	n, err := s.store.Profiles().CountByStatus(s.ctx, domain.StatusApproved)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	n, err = s.store.Profiles().CountDecidedSince(s.ctx, domain.StatusApproved, decided.Truncate(24*time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1), n)
	n, err = s.store.Profiles().CountDecidedSince(s.ctx, domain.StatusApproved, decided.Add(time.Hour))
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *StoreContractSuite) TestApplicationsListAndCount() {
	s.insertProfile(s.newProfile("agent-1", domain.StatusApproved))
	at := domain.Millis(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	for i, appType := range []domain.ApplicationType{domain.ApplicationArrival, domain.ApplicationArrival, domain.ApplicationDeparture} {
		app := &domain.Application{
			ID: []string{"a1", "a2", "a3"}[i], AgentUID: "agent-1", Type: appType, Status: domain.ApplicationWaiting,
			Metadata: map[string]any{}, CreatedAt: at, UpdatedAt: at.Add(time.Duration(i) * time.Minute),
		}
		s.Require().NoError(s.store.RunInTx(s.ctx, func(tx Tx) error { return tx.InsertApplication(s.ctx, app) }))
	}

	listed, err := s.store.Applications().ListByAgent(s.ctx, "agent-1", 10, 0)
	s.Require().NoError(err)
	s.Require().Len(listed, 3)
	s.Equal("a3", listed[0].ID)

	n, err := s.store.Applications().CountByTypeStatus(s.ctx, domain.ApplicationArrival, domain.ApplicationWaiting)
	s.Require().NoError(err)
	s.Equal(int64(2), n)
}
