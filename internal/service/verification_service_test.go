package service

import (
	"time"

	"github.com/spec-kit/clearance-service/internal/domain"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

func (s *WorkflowSuite) newUnverified(uid string) domain.Caller {
	s.Require().NoError(s.bridge.RecordPrincipal(s.ctx, domain.Identity{UID: uid, Email: uid + "@example.com", DisplayName: "Ada"}))
	return userCaller(uid)
}

func (s *WorkflowSuite) TestIssueQueuesCodeThroughOutbox() {
	caller := s.newUnverified("u1")

	res, err := s.verification.Issue(s.ctx, caller)
	s.Require().NoError(err)
	s.True(res.OK)
	s.True(res.Queued)
	s.NotEmpty(res.CorrelationID)

	p := s.profile("u1")
	s.Require().NotNil(p.Verification)
	s.Zero(p.Verification.Attempts)
	s.Equal(p.Verification.IssuedAt.Add(10*time.Minute), p.Verification.ExpiresAt)
	s.NotEqual("1234", p.Verification.CodeHash)

	mail, err := s.store.Mail().Get(s.ctx, "verify_"+res.CorrelationID)
	s.Require().NoError(err)
	s.Equal(domain.MailKindVerification, mail.Kind)
	s.Equal("u1@example.com", mail.To)
	s.Equal("1234", mail.TemplateData["code"])
	s.Equal("Ada", mail.TemplateData["name"])
}

func (s *WorkflowSuite) TestIssueWithinCooldownKeepsFirstCode() {
	caller := s.newUnverified("u1")
	_, err := s.verification.Issue(s.ctx, caller)
	s.Require().NoError(err)
	first := s.profile("u1").Verification

	s.clock.Advance(20 * time.Second)
	res, err := s.verification.Issue(s.ctx, caller)
	s.Require().NoError(err)
	s.False(res.OK)
	s.Equal(ReasonCooldown, res.Reason)
	s.Equal(40, res.RetryAfterSec)

	second := s.profile("u1").Verification
	s.Equal(first.CodeHash, second.CodeHash)
	s.Equal(first.CorrelationID, second.CorrelationID)

	s.clock.Advance(41 * time.Second)
	res, err = s.verification.Issue(s.ctx, caller)
	s.Require().NoError(err)
	s.True(res.OK)
	s.NotEqual(first.CorrelationID, s.profile("u1").Verification.CorrelationID)
}

func (s *WorkflowSuite) TestValidateMismatchCountsAttemptsThenExhausts() {
	caller := s.newUnverified("u1")
	_, err := s.verification.Issue(s.ctx, caller)
	s.Require().NoError(err)

	_, err = s.verification.Validate(s.ctx, caller, "9999")
	s.True(apperrors.HasCode(err, apperrors.CodePermissionDenied))
	s.Equal(1, s.profile("u1").Verification.Attempts)

	for i := 0; i < 4; i++ {
		_, err = s.verification.Validate(s.ctx, caller, "9999")
		s.True(apperrors.HasCode(err, apperrors.CodePermissionDenied))
	}
	s.Equal(5, s.profile("u1").Verification.Attempts)

	_, err = s.verification.Validate(s.ctx, caller, "1234")
	s.True(apperrors.HasCode(err, apperrors.CodeResourceExhausted))
	s.Equal(5, s.profile("u1").Verification.Attempts)
	s.False(s.profile("u1").IsEmailVerified)
}

func (s *WorkflowSuite) TestValidateErrorKinds() {
	caller := s.newUnverified("u1")

	_, err := s.verification.Validate(s.ctx, caller, "12a4")
	s.True(apperrors.HasCode(err, apperrors.CodeInvalidArgument))

	_, err = s.verification.Validate(s.ctx, domain.Caller{}, "1234")
	s.True(apperrors.HasCode(err, apperrors.CodeUnauthenticated))

	_, err = s.verification.Validate(s.ctx, userCaller("ghost"), "1234")
	s.True(apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = s.verification.Validate(s.ctx, caller, "1234")
	s.True(apperrors.HasCode(err, apperrors.CodeFailedPrecondition))

	_, err = s.verification.Issue(s.ctx, caller)
	s.Require().NoError(err)
	s.clock.Advance(11 * time.Minute)
	_, err = s.verification.Validate(s.ctx, caller, "1234")
	s.True(apperrors.HasCode(err, apperrors.CodeDeadlineExceeded))
}

func (s *WorkflowSuite) TestValidateSuccessAdvancesAndMirrors() {
	caller := s.newUnverified("u1")
	_, err := s.verification.Issue(s.ctx, caller)
	s.Require().NoError(err)

	res, err := s.verification.Validate(s.ctx, caller, "1234")
	s.Require().NoError(err)
	s.True(res.OK)
	s.Equal(domain.StatusPendingDocuments, res.Status)

	p := s.profile("u1")
	s.Nil(p.Verification)
	s.True(p.IsEmailVerified)

	identity, err := s.store.Identities().Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.True(identity.EmailVerified)

	again, err := s.verification.Issue(s.ctx, caller)
	s.Require().NoError(err)
	s.Equal(ReasonAlreadyVerified, again.Reason)
}

func (s *WorkflowSuite) TestReissueAfterFailureReturnsToPendingVerification() {
	caller := s.newUnverified("u1")
	s.seedProfile("u1", domain.StatusEmailVerificationFailed)

	_, err := s.verification.Issue(s.ctx, caller)
	s.Require().NoError(err)
	s.Equal(domain.StatusPendingEmailVerification, s.profile("u1").Status)
}
