package service

import (
	"bytes"
	"io"
	"time"

	"github.com/spec-kit/clearance-service/internal/domain"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

func strPtr(v string) *string { return &v }

func (s *WorkflowSuite) TestCreateApplicationRequiresProfile() {
	_, err := s.apps.Create(s.ctx, userCaller("ghost"), ApplicationInput{Type: domain.ApplicationArrival})
	s.True(apperrors.HasCode(err, apperrors.CodeFailedPrecondition))

	s.seedProfile("u1", domain.StatusApproved)
	_, err = s.apps.Create(s.ctx, userCaller("u1"), ApplicationInput{Type: "cruise"})
	s.True(apperrors.HasCode(err, apperrors.CodeInvalidArgument))

	scheduled := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	app, err := s.apps.Create(s.ctx, userCaller("u1"), ApplicationInput{
		Type:        domain.ApplicationArrival,
		VesselName:  strPtr("  Northern Star "),
		PortOfCall:  strPtr("Rotterdam"),
		ScheduledAt: &scheduled,
		Metadata:    map[string]any{"crew": 12},
	})
	s.Require().NoError(err)
	s.Equal(domain.ApplicationWaiting, app.Status)
	s.Equal("Northern Star", app.VesselName)
	s.Equal("u1", app.AgentUID)
	s.Equal(12, app.Metadata["crew"])
}

func (s *WorkflowSuite) TestUpdateApplicationOwnerOnlyWhileWaiting() {
	s.seedProfile("u1", domain.StatusApproved)
	app, err := s.apps.Create(s.ctx, userCaller("u1"), ApplicationInput{Type: domain.ApplicationArrival})
	s.Require().NoError(err)

	_, err = s.apps.Update(s.ctx, userCaller("u2"), app.ID, ApplicationInput{VesselName: strPtr("X")})
	s.True(apperrors.HasCode(err, apperrors.CodePermissionDenied))

	updated, err := s.apps.Update(s.ctx, userCaller("u1"), app.ID, ApplicationInput{
		Type:     domain.ApplicationDeparture,
		Metadata: map[string]any{"berth": "7"},
	})
	s.Require().NoError(err)
	s.Equal(domain.ApplicationDeparture, updated.Type)
	s.True(updated.UpdatedAt.After(app.UpdatedAt))

	_, err = s.apps.Decide(s.ctx, officer, app.ID, domain.ApplicationDeclined)
	s.Require().NoError(err)
	_, err = s.apps.Update(s.ctx, userCaller("u1"), app.ID, ApplicationInput{VesselName: strPtr("Y")})
	s.True(apperrors.HasCode(err, apperrors.CodeFailedPrecondition))

	_, err = s.apps.Update(s.ctx, userCaller("u1"), "missing", ApplicationInput{})
	s.True(apperrors.HasCode(err, apperrors.CodeNotFound))
}

func (s *WorkflowSuite) TestDecideApplication() {
	s.seedProfile("u1", domain.StatusApproved)
	app, err := s.apps.Create(s.ctx, userCaller("u1"), ApplicationInput{Type: domain.ApplicationArrival})
	s.Require().NoError(err)

	_, err = s.apps.Decide(s.ctx, userCaller("u1"), app.ID, domain.ApplicationApproved)
	s.True(apperrors.HasCode(err, apperrors.CodePermissionDenied))
	_, err = s.apps.Decide(s.ctx, officer, app.ID, domain.ApplicationWaiting)
	s.True(apperrors.HasCode(err, apperrors.CodeInvalidArgument))

	decided, err := s.apps.Decide(s.ctx, officer, app.ID, domain.ApplicationApproved)
	s.Require().NoError(err)
	s.Equal(domain.ApplicationApproved, decided.Status)
	s.Equal(officer.Actor(), decided.DecidedBy)
	s.NotEmpty(decided.ClearanceDocumentURL)

	rc, err := s.blobs.Get(s.ctx, decided.ClearanceDocumentKey)
	s.Require().NoError(err)
	pdf, err := io.ReadAll(rc)
	s.Require().NoError(rc.Close())
	s.Require().NoError(err)
	s.True(bytes.HasPrefix(pdf, []byte("%PDF-")))

	_, err = s.apps.Decide(s.ctx, officer, app.ID, domain.ApplicationDeclined)
	s.True(apperrors.HasCode(err, apperrors.CodeFailedPrecondition))
}

func (s *WorkflowSuite) TestGenerateHistoryDocument() {
	s.seedProfile("u1", domain.StatusApproved)
	app, err := s.apps.Create(s.ctx, userCaller("u1"), ApplicationInput{Type: domain.ApplicationDeparture})
	s.Require().NoError(err)

	_, err = s.apps.GenerateHistoryDocument(s.ctx, userCaller("u1"), "")
	s.True(apperrors.HasCode(err, apperrors.CodeInvalidArgument))
	_, err = s.apps.GenerateHistoryDocument(s.ctx, userCaller("u2"), app.ID)
	s.True(apperrors.HasCode(err, apperrors.CodePermissionDenied))
	_, err = s.apps.GenerateHistoryDocument(s.ctx, officer, "missing")
	s.True(apperrors.HasCode(err, apperrors.CodeNotFound))

	res, err := s.apps.GenerateHistoryDocument(s.ctx, userCaller("u1"), app.ID)
	s.Require().NoError(err)
	s.True(res.Success)
	s.Equal("clearance/u1/"+app.ID+".pdf", res.Key)

	again, err := s.apps.GenerateHistoryDocument(s.ctx, officer, app.ID)
	s.Require().NoError(err)
	s.Equal(res.Key, again.Key)
}

func (s *WorkflowSuite) TestApplicationVisibility() {
	s.seedProfile("u1", domain.StatusApproved)
	app, err := s.apps.Create(s.ctx, userCaller("u1"), ApplicationInput{Type: domain.ApplicationArrival})
	s.Require().NoError(err)

	_, err = s.apps.Get(s.ctx, userCaller("u2"), app.ID)
	s.True(apperrors.HasCode(err, apperrors.CodePermissionDenied))
	got, err := s.apps.Get(s.ctx, officer, app.ID)
	s.Require().NoError(err)
	s.Equal(app.ID, got.ID)

	mine, err := s.apps.ListMine(s.ctx, userCaller("u1"), 0, 0)
	s.Require().NoError(err)
	s.Len(mine, 1)
	others, err := s.apps.ListMine(s.ctx, userCaller("u2"), 0, 0)
	s.Require().NoError(err)
	s.Empty(others)
}
