package service

import (
	"github.com/spec-kit/clearance-service/internal/domain"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

func (s *WorkflowSuite) TestPatchMeRejectsInvalidWrites() {
	s.seedProfile("u1", domain.StatusPendingDocuments)
	no := false
	_, err := s.profiles.PatchMe(s.ctx, userCaller("u1"), ProfilePatch{HasUploadedDocuments: &no})
	s.True(apperrors.HasCode(err, apperrors.CodeInvalidArgument))

	approved := domain.StatusApproved
	_, err = s.profiles.PatchMe(s.ctx, userCaller("u1"), ProfilePatch{Status: &approved})
	s.True(apperrors.HasCode(err, apperrors.CodeInvalidArgument))

	_, err = s.profiles.PatchMe(s.ctx, userCaller("u1"), ProfilePatch{Documents: []domain.DocumentRef{{}}})
	s.True(apperrors.HasCode(err, apperrors.CodeInvalidArgument))

	_, err = s.profiles.PatchMe(s.ctx, userCaller("ghost"), ProfilePatch{})
	s.True(apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = s.profiles.PatchMe(s.ctx, domain.Caller{}, ProfilePatch{})
	s.True(apperrors.HasCode(err, apperrors.CodeUnauthenticated))
}

func (s *WorkflowSuite) TestPatchMeStatusRequiresPendingDocuments() {
	s.newUnverified("u1")
	pending := domain.StatusPendingApproval
	_, err := s.profiles.PatchMe(s.ctx, userCaller("u1"), ProfilePatch{Status: &pending})
	s.True(apperrors.HasCode(err, apperrors.CodeFailedPrecondition))
	s.Equal(domain.StatusPendingEmailVerification, s.profile("u1").Status)
}

func (s *WorkflowSuite) TestPatchMeNoopDoesNotBumpUpdatedAt() {
	s.submitForReview("u1")
	before := s.profile("u1")
	yes := true
	got, err := s.profiles.PatchMe(s.ctx, userCaller("u1"), ProfilePatch{HasUploadedDocuments: &yes})
	s.Require().NoError(err)
	s.True(got.UpdatedAt.Equal(before.UpdatedAt))
	s.Len(s.reviewItems(), 1)
}

func (s *WorkflowSuite) TestPatchMeAttachesDocuments() {
	s.seedProfile("u1", domain.StatusPendingDocuments)
	docs := []domain.DocumentRef{{Name: "passport.pdf", StoragePath: "s3://uploads/profiles/u1/documents/passport.pdf"}}
	got, err := s.profiles.PatchMe(s.ctx, userCaller("u1"), ProfilePatch{Documents: docs})
	s.Require().NoError(err)
	s.Require().Len(got.Documents, 1)
	s.False(got.Documents[0].UploadedAt.IsZero())
	s.Equal(domain.StatusPendingDocuments, got.Status)

	got, err = s.profiles.PatchMe(s.ctx, userCaller("u1"), ProfilePatch{Documents: docs})
	s.Require().NoError(err)
	s.Len(got.Documents, 1)
}

func (s *WorkflowSuite) TestNotificationsListOwnItems() {
	s.submitForReview("u1")
	_, err := s.gateway.Decide(s.ctx, officer, DecideInput{TargetID: "u1", Decision: domain.DecisionRejected, Note: "blurry scan"})
	s.Require().NoError(err)

	items, err := s.profiles.Notifications(s.ctx, userCaller("u1"), 10)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(domain.DecisionRejected, items[0].Type)

	items, err = s.profiles.Notifications(s.ctx, userCaller("u2"), 10)
	s.Require().NoError(err)
	s.Empty(items)
}
