package service

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/events"
)

func (s *WorkflowSuite) TestUploadMovesToPendingApprovalAndEnqueuesOnce() {
	s.seedProfile("u1", domain.StatusPendingDocuments)
	before := s.profile("u1")

	uploaded := true
	patched, err := s.profiles.PatchMe(s.ctx, userCaller("u1"), ProfilePatch{HasUploadedDocuments: &uploaded})
	s.Require().NoError(err)

	p := s.profile("u1")
	s.Equal(domain.StatusPendingApproval, p.Status)
	s.True(p.UpdatedAt.After(patched.UpdatedAt))

	items := s.reviewItems()
	s.Require().Len(items, 1)
	s.Equal(domain.ReviewItemID("u1", dedupeSuffix(patched.UpdatedAt, "")), items[0].ID)
	s.Equal("u1@example.com", items[0].Email)

	// redeliver the owner's update event
	redelivered := events.New(events.EventProfileUpdated, "u1", events.ActorFor(userCaller("u1")),
		events.ProfileUpdatedPayload{Before: before, After: patched})
	s.Require().NoError(s.workflow.HandleProfileUpdated(s.ctx, redelivered))
	s.Require().NoError(s.workflow.HandleProfileUpdated(s.ctx, redelivered))

	s.Len(s.reviewItems(), 1)
	s.Equal(domain.StatusPendingApproval, s.profile("u1").Status)

	counters, err := s.counters.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), counters[domain.CounterPendingAccounts])
}

func (s *WorkflowSuite) TestRequestedJumpToPendingApprovalEnqueues() {
	s.seedProfile("u1", domain.StatusPendingDocuments)
	status := domain.StatusPendingApproval
	_, err := s.profiles.PatchMe(s.ctx, userCaller("u1"), ProfilePatch{Status: &status})
	s.Require().NoError(err)

	s.Equal(domain.StatusPendingApproval, s.profile("u1").Status)
	s.Len(s.reviewItems(), 1)
}

func (s *WorkflowSuite) TestEnforcementSkippedWhenAlreadyAdvanced() {
	s.seedProfile("u1", domain.StatusPendingDocuments)
	before := s.profile("u1")
	after := before.Clone()
	after.HasUploadedDocuments = true
	after.UpdatedAt = after.UpdatedAt.Add(time.Second)

	// a concurrent decision already moved the stored profile on
	s.seedProfile("u1", domain.StatusApproved)

	err := s.workflow.HandleProfileUpdated(s.ctx, events.New(events.EventProfileUpdated, "u1",
		events.Actor{Type: events.ActorUser, ID: "u1"}, events.ProfileUpdatedPayload{Before: before, After: after}))
	s.Require().NoError(err)
	s.Equal(domain.StatusApproved, s.profile("u1").Status)
}

func (s *WorkflowSuite) TestConcurrentDeliveriesProduceOneReviewEntry() {
	s.seedProfile("u1", domain.StatusPendingDocuments)
	before := s.profile("u1")
	after := before.Clone()
	after.HasUploadedDocuments = true
	after.Status = domain.StatusPendingApproval
	after.UpdatedAt = before.UpdatedAt.Add(5 * time.Millisecond)
	event := events.New(events.EventProfileUpdated, "u1", events.Actor{Type: events.ActorUser, ID: "u1"},
		events.ProfileUpdatedPayload{Before: before, After: after})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.workflow.HandleProfileUpdated(s.ctx, event))
		}()
	}
	wg.Wait()

	s.seedProfile("u1", domain.StatusPendingApproval)
	s.Len(s.reviewItems(), 1)
}

func (s *WorkflowSuite) TestDedupeKeyFallsBackToEventID() {
	before := &domain.Profile{ID: "u9", Status: domain.StatusPendingDocuments}
	after := &domain.Profile{ID: "u9", Status: domain.StatusPendingDocuments, HasUploadedDocuments: true}
	s.seedProfile("u9", domain.StatusPendingApproval)

	event := events.New(events.EventProfileUpdated, "u9", events.Actor{Type: events.ActorUser, ID: "u9"},
		events.ProfileUpdatedPayload{Before: before, After: after})
	s.Require().NoError(s.workflow.HandleProfileUpdated(s.ctx, event))
	s.Require().NoError(s.workflow.HandleProfileUpdated(s.ctx, event))

	items := s.reviewItems()
	s.Require().Len(items, 1)
	s.Equal(domain.ReviewItemID("u9", event.ID), items[0].ID)
}

func (s *WorkflowSuite) TestDecisionCreatesNotificationOnce() {
	s.submitForReview("u1")

	res, err := s.gateway.Decide(s.ctx, officer, DecideInput{TargetID: "u1", Decision: domain.DecisionApproved, Note: "all good"})
	s.Require().NoError(err)
	s.Equal(domain.StatusApproved, res.Status)

	p := s.profile("u1")
	s.Equal("officer@example.com", p.DecidedBy)
	s.Equal("all good", p.DecisionNote)

	items, err := s.profiles.Notifications(s.ctx, userCaller("u1"), 10)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(domain.NotificationID(domain.DecisionApproved, dedupeSuffix(p.UpdatedAt, "")), items[0].ID)
	s.Equal("Your account has been approved.", items[0].Message)

	before := p.Clone()
	before.Status = domain.StatusPendingApproval
	replay := events.New(events.EventProfileUpdated, "u1", events.ActorFor(officer), events.ProfileUpdatedPayload{Before: before, After: p})
	s.Require().NoError(s.workflow.HandleProfileUpdated(s.ctx, replay))

	items, err = s.profiles.Notifications(s.ctx, userCaller("u1"), 10)
	s.Require().NoError(err)
	s.Len(items, 1)
	s.Empty(s.reviewItems())
}

func (s *WorkflowSuite) TestStatusPathStaysOnGraph() {
	var observed []domain.ProfileStatus
	s.dispatcher.Subscribe(events.EventProfileUpdated, func(_ context.Context, e events.Event) error {
		p := e.Payload.(events.ProfileUpdatedPayload)
		if p.Before.Status != p.After.Status {
			s.True(p.Before.Status.CanTransition(p.After.Status), "%s -> %s", p.Before.Status, p.After.Status)
			observed = append(observed, p.After.Status)
		}
		return nil
	})

	s.Require().NoError(s.bridge.RecordPrincipal(s.ctx, domain.Identity{UID: "u1", Email: "u1@example.com"}))
	_, err := s.verification.Issue(s.ctx, userCaller("u1"))
	s.Require().NoError(err)
	_, err = s.verification.Validate(s.ctx, userCaller("u1"), "1234")
	s.Require().NoError(err)
	uploaded := true
	_, err = s.profiles.PatchMe(s.ctx, userCaller("u1"), ProfilePatch{HasUploadedDocuments: &uploaded})
	s.Require().NoError(err)
	_, err = s.gateway.Decide(s.ctx, officer, DecideInput{TargetID: "u1", Decision: domain.DecisionRejected})
	s.Require().NoError(err)

	s.Equal([]domain.ProfileStatus{
		domain.StatusPendingDocuments,
		domain.StatusPendingApproval,
		domain.StatusRejected,
	}, observed)

	// nothing leaves a terminal state
	status := domain.StatusPendingApproval
	_, err = s.profiles.PatchMe(s.ctx, userCaller("u1"), ProfilePatch{Status: &status})
	s.Error(err)
	_, err = s.gateway.Decide(s.ctx, officer, DecideInput{TargetID: "u1", Decision: domain.DecisionApproved})
	s.Error(err)
	s.Equal(domain.StatusRejected, s.profile("u1").Status)
}
