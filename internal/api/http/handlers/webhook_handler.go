package handlers

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/clearance-service/internal/api/dto"
	"github.com/spec-kit/clearance-service/internal/domain"
	"github.com/spec-kit/clearance-service/internal/events"
	"github.com/spec-kit/clearance-service/internal/service"
	apperrors "github.com/spec-kit/clearance-service/pkg/util"
)

// WebhookSecretHeader carries the shared secret on ingress calls.
const WebhookSecretHeader = "X-Webhook-Secret"

// RequireWebhookSecret admits requests that present the shared secret. An empty secret
// disables the ingress.
func RequireWebhookSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return apperrors.NewPermissionDenied("webhook ingress disabled")
		}
		got := c.Get(WebhookSecretHeader)
		if got == "" {
			return apperrors.NewUnauthenticated("missing webhook secret")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return apperrors.NewPermissionDenied("invalid webhook secret")
		}
		return c.Next()
	}
}

// WebhooksHandler turns external store callbacks into workflow triggers.
type WebhooksHandler struct {
	bridge     *service.IdentityBridge
	watcher    *service.EmailWatcher
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewWebhooksHandler constructs handler.
func NewWebhooksHandler(bridge *service.IdentityBridge, watcher *service.EmailWatcher, dispatcher events.Dispatcher, logger *zap.Logger) *WebhooksHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhooksHandler{bridge: bridge, watcher: watcher, dispatcher: dispatcher, logger: logger}
}

// PrincipalCreated POST /hooks/auth/principal-created.
func (h *WebhooksHandler) PrincipalCreated(c *fiber.Ctx) error {
	var req dto.PrincipalCreatedRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		return apperrors.NewInvalidArgument("uid is required", nil)
	}
	identity := domain.Identity{
		UID:           uid,
		Email:         strings.TrimSpace(req.Email),
		DisplayName:   req.DisplayName,
		EmailVerified: req.EmailVerified,
	}
	if err := h.bridge.RecordPrincipal(c.UserContext(), identity); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"ok": true})
}

// StorageFinalize POST /hooks/storage/finalize. Accepts S3 event notifications and
// publishes one storage_object_finalized trigger per created object.
func (h *WebhooksHandler) StorageFinalize(c *fiber.Ctx) error {
	var req dto.S3EventNotification
	if err := parseBody(c, &req); err != nil {
		return err
	}
	published := 0
	for _, record := range req.Records {
		if !strings.HasPrefix(record.EventName, "ObjectCreated:") {
			continue
		}
		key, err := url.QueryUnescape(record.S3.Object.Key)
		if err != nil {
			return apperrors.NewInvalidArgument("malformed object key", map[string]any{"key": record.S3.Object.Key})
		}
		payload := events.StorageObjectFinalizedPayload{Bucket: record.S3.Bucket.Name, Name: key}
		if !record.EventTime.IsZero() {
			at := record.EventTime
			payload.TimeCreated = &at
		}
		event := events.New(events.EventStorageObjectFinalized, key, events.SystemActor, payload)
		if err := h.dispatcher.Publish(c.UserContext(), event); err != nil {
			h.logger.Error("publish storage trigger failed", zap.String("object", key), zap.Error(err))
			return apperrors.NewInternalError(err)
		}
		published++
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"ok": true, "published": published})
}

// EmailDelivery POST /hooks/email/delivery.
func (h *WebhooksHandler) EmailDelivery(c *fiber.Ctx) error {
	var req dto.DeliveryCallbackRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	record, err := h.watcher.RecordDelivery(c.UserContext(), service.DeliveryReport{
		MailID: req.MailID,
		State:  domain.DeliveryState(req.State),
		Error:  req.Error,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "mailId": record.ID, "state": record.State})
}
