package service

import (
	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/events"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

func (s *WorkflowSuite) issueFor(uid string) string {
	caller := s.newUnverified(uid)
	res, err := s.verification.Issue(s.ctx, caller)
	s.Require().NoError(err)
	return "verify_" + res.CorrelationID
}

func (s *WorkflowSuite) TestBounceMarksFailureAndRetries() {
	mailID := s.issueFor("u1")

	_, err := s.watcher.RecordDelivery(s.ctx, DeliveryReport{MailID: mailID, State: domain.DeliveryBounced, Error: "mailbox unavailable"})
	s.Require().NoError(err)

	p := s.profile("u1")
	s.Equal(domain.StatusEmailVerificationFailed, p.Status)
	s.Equal("mailbox unavailable", p.LastError)

	retry, err := s.store.Mail().Get(s.ctx, domain.RetryMailID(mailID, 1))
	s.Require().NoError(err)
	s.Equal(1, retry.RetryCount)
	s.Equal(mailID, retry.OriginalID)
	s.Equal(domain.DeliveryPending, retry.State)
	s.Equal("u1@example.com", retry.To)

	// same state reported again is a no-op
	_, err = s.watcher.RecordDelivery(s.ctx, DeliveryReport{MailID: mailID, State: domain.DeliveryBounced, Error: "mailbox unavailable"})
	s.Require().NoError(err)
	_, err = s.store.Mail().Get(s.ctx, domain.RetryMailID(mailID, 2))
	s.Error(err)
}

func (s *WorkflowSuite) TestRetriesStopAtLimit() {
	mailID := s.issueFor("u1")
	current := mailID
	for i := 1; i <= 3; i++ {
		_, err := s.watcher.RecordDelivery(s.ctx, DeliveryReport{MailID: current, State: domain.DeliveryFailed})
		s.Require().NoError(err)
		current = domain.RetryMailID(mailID, i)
		_, err = s.store.Mail().Get(s.ctx, current)
		s.Require().NoError(err)
	}
	_, err := s.watcher.RecordDelivery(s.ctx, DeliveryReport{MailID: current, State: domain.DeliveryFailed})
	s.Require().NoError(err)
	_, err = s.store.Mail().Get(s.ctx, domain.RetryMailID(mailID, 4))
	s.Error(err)
}

func (s *WorkflowSuite) TestDeliverySuccessLeavesProfileAlone() {
	mailID := s.issueFor("u1")
	before := s.profile("u1")
	_, err := s.watcher.RecordDelivery(s.ctx, DeliveryReport{MailID: mailID, State: domain.DeliverySuccess})
	s.Require().NoError(err)
	s.Equal(before.Status, s.profile("u1").Status)
	s.True(before.UpdatedAt.Equal(s.profile("u1").UpdatedAt))
}

func (s *WorkflowSuite) TestFailureAfterVerificationKeepsStatus() {
	mailID := s.issueFor("u1")
	_, err := s.verification.Validate(s.ctx, userCaller("u1"), "1234")
	s.Require().NoError(err)

	_, err = s.watcher.RecordDelivery(s.ctx, DeliveryReport{MailID: mailID, State: domain.DeliveryRejected, Error: "spam"})
	s.Require().NoError(err)
	p := s.profile("u1")
	s.Equal(domain.StatusPendingDocuments, p.Status)
	s.Equal("spam", p.LastError)
}

func (s *WorkflowSuite) TestWatcherIgnoresOtherMail() {
	s.seedProfile("u1", domain.StatusPendingEmailVerification)
	other := &domain.MailRecord{ID: "m1", Kind: "newsletter", ProfileID: "u1", State: domain.DeliveryFailed}
	err := s.watcher.HandleEmailRecordUpdated(s.ctx, events.New(events.EventEmailRecordUpdated, "m1", events.SystemActor,
		events.EmailRecordUpdatedPayload{Before: &domain.MailRecord{ID: "m1", Kind: "newsletter"}, After: other}))
	s.Require().NoError(err)
	s.Equal(domain.StatusPendingEmailVerification, s.profile("u1").Status)
}

func (s *WorkflowSuite) TestRecordDeliveryValidates() {
	_, err := s.watcher.RecordDelivery(s.ctx, DeliveryReport{MailID: "", State: domain.DeliveryFailed})
	s.True(apperrors.HasCode(err, apperrors.CodeInvalidArgument))
	_, err = s.watcher.RecordDelivery(s.ctx, DeliveryReport{MailID: "x", State: "lost"})
	s.True(apperrors.HasCode(err, apperrors.CodeInvalidArgument))
	_, err = s.watcher.RecordDelivery(s.ctx, DeliveryReport{MailID: "x", State: domain.DeliveryFailed})
	s.True(apperrors.HasCode(err, apperrors.CodeNotFound))
}
