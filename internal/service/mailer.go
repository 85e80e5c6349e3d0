package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/observability"
	"github.com/spec-kit/clearance-service/internal/repository"
)

// MailRequest is a templated message handed to the email provider.
type MailRequest struct {
	ID        string
	Kind      domain.MailKind
	ProfileID string
	To        string
	Template  string
	Data      map[string]any
}

// MailReceipt reports how the provider accepted a request.
type MailReceipt struct {
	ID    string
	State domain.DeliveryState
}

// Mailer dispatches templated email.
type Mailer interface {
	Send(ctx context.Context, req MailRequest) (MailReceipt, error)
}

// OutboxMailer hands messages to the provider by writing send records to the mail
// outbox. Delivery outcomes arrive later through the delivery callback.
type OutboxMailer struct {
	mail    repository.MailRepository
	from    string
	logger  *zap.Logger
	metrics *observability.Metrics
	clock   Clock
}

func NewOutboxMailer(mail repository.MailRepository, from string, logger *zap.Logger, metrics *observability.Metrics, clock Clock) *OutboxMailer {
	return &OutboxMailer{mail: mail, from: from, logger: orNop(logger), metrics: metrics, clock: clock}
}

func (m *OutboxMailer) Send(ctx context.Context, req MailRequest) (MailReceipt, error) {
	now := domain.Millis(m.clock.now())
	data := make(map[string]any, len(req.Data)+1)
	for k, v := range req.Data {
		data[k] = v
	}
	if m.from != "" {
		data["from"] = m.from
	}
	record := domain.MailRecord{
		ID:           req.ID,
		Kind:         req.Kind,
		ProfileID:    req.ProfileID,
		To:           req.To,
		Template:     req.Template,
		TemplateData: data,
		State:        domain.DeliveryPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := insertOnce(ctx, m.mail, "mail", record.ID, record, m.logger, m.metrics); err != nil {
		return MailReceipt{}, err
	}
	return MailReceipt{ID: record.ID, State: domain.DeliveryPending}, nil
}
