package service

import (
	"strings"

	"github.com/spec-kit/clearance-service/internal/domain"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

func (s *WorkflowSuite) TestDecideRequiresPendingApproval() {
	s.seedProfile("u1", domain.StatusPendingDocuments)

	for _, decision := range []domain.Decision{domain.DecisionApproved, domain.DecisionRejected} {
		_, err := s.gateway.Decide(s.ctx, officer, DecideInput{TargetID: "u1", Decision: decision})
		s.Require().Error(err)
		s.True(apperrors.HasCode(err, apperrors.CodeFailedPrecondition))
		s.Contains(err.Error(), "pending_documents")
	}
	s.Equal(domain.StatusPendingDocuments, s.profile("u1").Status)
}

func (s *WorkflowSuite) TestDecideValidatesInput() {
	s.submitForReview("u1")

	_, err := s.gateway.Decide(s.ctx, domain.Caller{}, DecideInput{TargetID: "u1", Decision: domain.DecisionApproved})
	s.True(apperrors.HasCode(err, apperrors.CodeUnauthenticated))

	_, err = s.gateway.Decide(s.ctx, userCaller("u2"), DecideInput{TargetID: "u1", Decision: domain.DecisionApproved})
	s.True(apperrors.HasCode(err, apperrors.CodePermissionDenied))

	_, err = s.gateway.Decide(s.ctx, officer, DecideInput{TargetID: "u1", Decision: "maybe"})
	s.True(apperrors.HasCode(err, apperrors.CodeInvalidArgument))

	_, err = s.gateway.Decide(s.ctx, officer, DecideInput{TargetID: "u1", Decision: domain.DecisionApproved, Note: strings.Repeat("x", MaxDecisionNoteLength+1)})
	s.True(apperrors.HasCode(err, apperrors.CodeInvalidArgument))

	_, err = s.gateway.Decide(s.ctx, officer, DecideInput{TargetID: "nobody", Decision: domain.DecisionApproved})
	s.True(apperrors.HasCode(err, apperrors.CodeNotFound))

	s.Equal(domain.StatusPendingApproval, s.profile("u1").Status)
}

func (s *WorkflowSuite) TestApproveGeneratesClearanceDocument() {
	s.submitForReview("u1")
	app, err := s.apps.Create(s.ctx, userCaller("u1"), ApplicationInput{Type: domain.ApplicationArrival})
	s.Require().NoError(err)

	res, err := s.gateway.Decide(s.ctx, officer, DecideInput{TargetID: "u1", Decision: domain.DecisionApproved, ApplicationID: app.ID})
	s.Require().NoError(err)
	s.NotEmpty(res.DocumentURL)

	stored, err := s.store.Applications().Get(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(res.DocumentURL, stored.ClearanceDocumentURL)
	s.NotEmpty(stored.ClearanceDocumentKey)
}

func (s *WorkflowSuite) TestGenerationFailureKeepsDecision() {
	s.submitForReview("u1")

	_, err := s.gateway.Decide(s.ctx, officer, DecideInput{TargetID: "u1", Decision: domain.DecisionApproved, ApplicationID: "missing"})
	s.True(apperrors.HasCode(err, apperrors.CodeInternal))
	s.Equal(domain.StatusApproved, s.profile("u1").Status)
}

func (s *WorkflowSuite) TestAssignRoleIsAdminOnly() {
	s.seedProfile("u1", domain.StatusPendingDocuments)

	_, err := s.gateway.AssignRole(s.ctx, officer, "u1", domain.RoleOfficer)
	s.True(apperrors.HasCode(err, apperrors.CodePermissionDenied))

	_, err = s.gateway.AssignRole(s.ctx, admin, "u1", "superuser")
	s.True(apperrors.HasCode(err, apperrors.CodeInvalidArgument))

	_, err = s.gateway.AssignRole(s.ctx, admin, "", domain.RoleOfficer)
	s.True(apperrors.HasCode(err, apperrors.CodeInvalidArgument))

	res, err := s.gateway.AssignRole(s.ctx, admin, "u1", domain.RoleOfficer)
	s.Require().NoError(err)
	s.True(res.OK)

	identity, err := s.store.Identities().Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(domain.RoleOfficer, identity.Role)
	s.Equal(domain.RoleOfficer, s.profile("u1").Role)
}

func (s *WorkflowSuite) TestReviewQueueIsStaffOnly() {
	s.submitForReview("u1")

	_, err := s.gateway.ReviewQueue(s.ctx, userCaller("u1"), 10, 0)
	s.True(apperrors.HasCode(err, apperrors.CodePermissionDenied))

	items, err := s.gateway.ReviewQueue(s.ctx, officer, 10, 0)
	s.Require().NoError(err)
	s.Len(items, 1)
}
