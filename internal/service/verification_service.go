package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/clearance-service/internal/auth"
	"github.com/spec-kit/clearance-service/internal/config"
	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/events"
	"github.com/spec-kit/clearance-service/internal/observability"
	"github.com/spec-kit/clearance-service/internal/repository"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

var codePattern = regexp.MustCompile(`^\d{4}$`)

// Issue outcomes reported to the caller.
const (
	ReasonCooldown        = "cooldown"
	ReasonAlreadyVerified = "already-verified"
	ReasonDeliveryFailed  = "delivery-failed"
)

// VerificationService issues and validates email verification codes.
type VerificationService struct {
	store      repository.Store
	mailer     Mailer
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	clock      Clock
	cfg        config.VerificationConfig
	bcryptCost int
	newCode    func() (string, error)
}

// VerificationDependencies bundles collaborators for the verification service.
type VerificationDependencies struct {
	Store      repository.Store
	Mailer     Mailer
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Clock      Clock
	Config     config.VerificationConfig
	BcryptCost int
	// CodeSource overrides the random code generator.
	CodeSource func() (string, error)
}

func NewVerificationService(deps VerificationDependencies) *VerificationService {
	cfg := deps.Config
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.TemplateName == "" {
		cfg.TemplateName = "verification_code"
	}
	source := deps.CodeSource
	if source == nil {
		source = randomCode
	}
	return &VerificationService{
		store:      deps.Store,
		mailer:     deps.Mailer,
		dispatcher: deps.Dispatcher,
		logger:     orNop(deps.Logger),
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		cfg:        cfg,
		bcryptCost: deps.BcryptCost,
		newCode:    source,
	}
}

// randomCode returns a uniformly random 4-digit code, leading zeros kept.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

// IssueResult is returned by Issue.
type IssueResult struct {
	OK            bool   `json:"ok"`
	Sent          bool   `json:"sent"`
	Queued        bool   `json:"queued"`
	Reason        string `json:"reason,omitempty"`
	RetryAfterSec int    `json:"retryAfterSec,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Issue starts a verification challenge for the caller unless the cooldown window
// since the last issuance is still open.
func (s *VerificationService) Issue(ctx context.Context, caller domain.Caller) (*IssueResult, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("profile_id", caller.UID))

	var (
		result        = &IssueResult{}
		code          string
		before, after *domain.Profile
	)
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		profile, err := tx.GetProfile(ctx, caller.UID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("profile", nil)
		}
		if err != nil {
			return err
		}
		now := s.clock.now()
		if profile.IsEmailVerified {
			result.Reason = ReasonAlreadyVerified
			return nil
		}
		if v := profile.Verification; v != nil {
			if wait := v.IssuedAt.Add(s.cfg.Cooldown).Sub(now); wait > 0 {
				result.Reason = ReasonCooldown
				result.RetryAfterSec = int(math.Ceil(wait.Seconds()))
				return nil
			}
		}

		code, err = s.newCode()
		if err != nil {
			return err
		}
		hash, err := auth.HashCode(code, s.bcryptCost)
		if err != nil {
			return err
		}
		before = profile.Clone()
		issuedAt := domain.Millis(now)
		profile.Verification = &domain.VerificationChallenge{
			CodeHash:      hash,
			IssuedAt:      issuedAt,
			ExpiresAt:     issuedAt.Add(s.cfg.CodeTTL),
			Attempts:      0,
			CorrelationID: uuid.NewString(),
		}
		if profile.Status == domain.StatusEmailVerificationFailed {
			if err := profile.Transition(domain.StatusPendingEmailVerification, now); err != nil {
				return err
			}
		} else {
			profile.Touch(now)
		}
		if err := tx.UpdateProfile(ctx, profile); err != nil {
			return err
		}
		after = profile
		return nil
	})
	if err != nil {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, apperrors.NewInternalError(err)
	}
	if after == nil {
		s.metrics.RecordVerification("issue", result.Reason)
		log.Info("verification code not issued", zap.String("reason", result.Reason), zap.Int("retry_after_sec", result.RetryAfterSec))
		return result, nil
	}

	if before.Status != after.Status {
		s.metrics.RecordTransition(string(before.Status), string(after.Status))
	}
	publish(ctx, s.dispatcher, s.logger, events.New(events.EventProfileUpdated, after.ID, events.ActorFor(caller),
		events.ProfileUpdatedPayload{Before: before, After: after.Clone()}))

	result.OK = true
	result.CorrelationID = after.Verification.CorrelationID
	outcome, receipt := s.dispatch(ctx, caller, after, code)
	outcome.Log(log, zap.String("correlation_id", result.CorrelationID))
	switch {
	case !outcome.OK():
		result.Reason = ReasonDeliveryFailed
	case receipt.State == domain.DeliverySuccess:
		result.Sent = true
	default:
		result.Queued = true
	}
	s.metrics.RecordVerification("issue", "issued")
	return result, nil
}

// dispatch sends the code after the challenge committed. A failure leaves the code valid.
func (s *VerificationService) dispatch(ctx context.Context, caller domain.Caller, profile *domain.Profile, code string) (Outcome, MailReceipt) {
	const effect = "send_verification_email"
	if s.mailer == nil {
		return failed(effect, errors.New("no mailer configured")), MailReceipt{}
	}
	email, name := s.resolveRecipient(ctx, caller, profile)
	if email == "" {
		return failed(effect, errors.New("no recipient address")), MailReceipt{}
	}
	receipt, err := s.mailer.Send(ctx, MailRequest{
		ID:        "verify_" + profile.Verification.CorrelationID,
		Kind:      domain.MailKindVerification,
		ProfileID: profile.ID,
		To:        email,
		Template:  s.cfg.TemplateName,
		Data: map[string]any{
			"code":             code,
			"name":             name,
			"expiresInMinutes": int(s.cfg.CodeTTL.Minutes()),
			"correlationId":    profile.Verification.CorrelationID,
		},
	})
	if err != nil {
		return failed(effect, err), MailReceipt{}
	}
	return succeeded(effect, string(receipt.State)), receipt
}

// resolveRecipient picks the token email, then the identity record, then the profile.
// The display name falls back to the address's local part.
func (s *VerificationService) resolveRecipient(ctx context.Context, caller domain.Caller, profile *domain.Profile) (string, string) {
	email := caller.Email
	name := ""
	identity, err := s.store.Identities().Get(ctx, caller.UID)
	if err == nil {
		if email == "" {
			email = identity.Email
		}
		name = identity.DisplayName
	} else if !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("lookup identity for recipient failed", zap.String("profile_id", caller.UID), zap.Error(err))
	}
	if email == "" {
		email = profile.Email
	}
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	return email, name
}

// ValidateResult is returned by Validate.
type ValidateResult struct {
	OK     bool                 `json:"ok"`
	Status domain.ProfileStatus `json:"status"`
}

// Validate checks a submitted code against the active challenge. A mismatch commits
// the attempt increment before failing.
func (s *VerificationService) Validate(ctx context.Context, caller domain.Caller, submitted string) (*ValidateResult, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !codePattern.MatchString(submitted) {
		return nil, apperrors.NewInvalidArgument("code must be exactly 4 digits", nil)
	}
	log := s.logger.With(zap.String("profile_id", caller.UID))

	var (
		rejection     error
		before, after *domain.Profile
	)
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		profile, err := tx.GetProfile(ctx, caller.UID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("profile", nil)
		}
		if err != nil {
			return err
		}
		v := profile.Verification
		if v == nil {
			return apperrors.NewFailedPrecondition("no active verification code", nil)
		}
		if v.Attempts >= s.cfg.MaxAttempts {
			return apperrors.NewResourceExhausted("too many attempts, request a new code",
				map[string]any{"maxAttempts": s.cfg.MaxAttempts})
		}
		now := s.clock.now()
		if now.After(v.ExpiresAt) {
			return apperrors.NewDeadlineExceeded("verification code expired")
		}

		match, err := auth.CodeMatches(v.CodeHash, submitted)
		if err != nil {
			return err
		}
		before = profile.Clone()
		if !match {
			v.Attempts++
			profile.Touch(now)
			rejection = apperrors.NewPermissionDenied("incorrect verification code")
		} else {
			profile.Verification = nil
			profile.IsEmailVerified = true
			switch profile.Status.OrDefault() {
			case domain.StatusPendingEmailVerification, domain.StatusEmailVerificationFailed:
				if err := profile.Transition(domain.StatusPendingDocuments, now); err != nil {
					return err
				}
			default:
				profile.Touch(now)
			}
		}
		if err := tx.UpdateProfile(ctx, profile); err != nil {
			return err
		}
		after = profile
		return nil
	})
	if err != nil {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			s.metrics.RecordVerification("validate", domainErr.Code)
			return nil, err
		}
		return nil, apperrors.NewInternalError(err)
	}

	publish(ctx, s.dispatcher, s.logger, events.New(events.EventProfileUpdated, after.ID, events.ActorFor(caller),
		events.ProfileUpdatedPayload{Before: before, After: after.Clone()}))
	if rejection != nil {
		s.metrics.RecordVerification("validate", apperrors.CodePermissionDenied)
		log.Info("verification code mismatch", zap.Int("attempts", after.Verification.Attempts))
		return nil, rejection
	}

	if before.Status != after.Status {
		s.metrics.RecordTransition(string(before.Status), string(after.Status))
	}
	s.metrics.RecordVerification("validate", "verified")
	log.Info("email verified", zap.String("status_from", string(before.Status)), zap.String("status_to", string(after.Status)))

	// the provider mirror follows the committed local state
	outcome := s.markProviderVerified(ctx, caller.UID)
	outcome.Log(log)
	return &ValidateResult{OK: true, Status: after.Status}, nil
}

func (s *VerificationService) markProviderVerified(ctx context.Context, uid string) Outcome {
	const effect = "mark_provider_email_verified"
	if err := s.store.Identities().MarkEmailVerified(ctx, uid); err != nil {
		return failed(effect, err)
	}
	return succeeded(effect, "")
}
