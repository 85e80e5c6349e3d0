package service

import (
	"time"

	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/repository"
)

func (s *WorkflowSuite) TestProvisionCreatesProfileOnce() {
	identity := domain.Identity{UID: "u1", Email: "u1@example.com"}
	s.Require().NoError(s.store.Identities().Upsert(s.ctx, &identity))

	first, err := s.bridge.Provision(s.ctx, identity)
	s.Require().NoError(err)
	s.True(first.Created)
	s.Equal(domain.StatusPendingEmailVerification, first.Profile.Status)
	s.True(first.Role.OK())

	created := s.profile("u1")
	s.clock.Advance(time.Minute)

	second, err := s.bridge.Provision(s.ctx, identity)
	s.Require().NoError(err)
	s.False(second.Created)
	s.False(second.Updated)
	s.True(s.profile("u1").UpdatedAt.Equal(created.UpdatedAt))

	got, err := s.store.Identities().Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(domain.RoleUser, got.Role)
}

func (s *WorkflowSuite) TestProvisionMirrorsExternalVerificationOnce() {
	s.Require().NoError(s.bridge.RecordPrincipal(s.ctx, domain.Identity{UID: "u1", Email: "u1@example.com"}))
	s.Equal(domain.StatusPendingEmailVerification, s.profile("u1").Status)

	s.clock.Advance(time.Minute)
	verified := domain.Identity{UID: "u1", Email: "u1@example.com", EmailVerified: true}
	res, err := s.bridge.Provision(s.ctx, verified)
	s.Require().NoError(err)
	s.True(res.Updated)

	p := s.profile("u1")
	s.Equal(domain.StatusPendingDocuments, p.Status)
	s.True(p.IsEmailVerified)
	updatedAt := p.UpdatedAt

	s.clock.Advance(time.Minute)
	res, err = s.bridge.Provision(s.ctx, verified)
	s.Require().NoError(err)
	s.False(res.Updated)
	s.True(s.profile("u1").UpdatedAt.Equal(updatedAt))
}

func (s *WorkflowSuite) TestProvisionVerifiedPrincipalStartsAtPendingDocuments() {
	s.Require().NoError(s.bridge.RecordPrincipal(s.ctx, domain.Identity{UID: "u2", Email: "u2@example.com", EmailVerified: true}))
	p := s.profile("u2")
	s.Equal(domain.StatusPendingDocuments, p.Status)
	s.True(p.IsEmailVerified)
	s.NotNil(p.Documents)
}

func (s *WorkflowSuite) TestProvisionBackfillsWithoutOverwriting() {
	s.Require().NoError(s.store.RunInTx(s.ctx, func(tx repository.Tx) error {
		return tx.InsertProfile(s.ctx, &domain.Profile{ID: "u3", Email: "custom@example.com", Status: domain.StatusPendingApproval})
	}))
	res, err := s.bridge.Provision(s.ctx, domain.Identity{UID: "u3", Email: "other@example.com"})
	s.Require().NoError(err)
	s.True(res.Updated)

	p := s.profile("u3")
	s.Equal("custom@example.com", p.Email)
	s.Equal(domain.StatusPendingApproval, p.Status)
	s.Equal(domain.RoleUser, p.Role)
	s.False(p.CreatedAt.IsZero())
}

func (s *WorkflowSuite) TestRoleAssignmentFailureDoesNotBlockProvisioning() {
	// no identity record, so the claim cannot be set
	res, err := s.bridge.Provision(s.ctx, domain.Identity{UID: "ghost", Email: "ghost@example.com"})
	s.Require().NoError(err)
	s.False(res.Role.OK())
	s.True(res.Created)
}

func (s *WorkflowSuite) TestRecordPrincipalIgnoresRequestedRole() {
	s.Require().NoError(s.bridge.RecordPrincipal(s.ctx, domain.Identity{UID: "u1", Email: "u1@example.com", Role: domain.RoleAdmin}))

	got, err := s.store.Identities().Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(domain.RoleUser, got.Role)
	s.Equal(domain.RoleUser, s.profile("u1").Role)
}

func (s *WorkflowSuite) TestProvisionAfterReloadWritesNothing() {
	s.Require().NoError(s.bridge.RecordPrincipal(s.ctx, domain.Identity{UID: "u1", Email: "u1@example.com"}))
	stored := s.profile("u1")
	s.NotNil(stored.Documents)
	s.Empty(stored.Documents)

	s.clock.Advance(time.Minute)
	res, err := s.bridge.Provision(s.ctx, domain.Identity{UID: "u1", Email: "u1@example.com"})
	s.Require().NoError(err)
	s.False(res.Updated)
	s.True(s.profile("u1").UpdatedAt.Equal(stored.UpdatedAt))
}
