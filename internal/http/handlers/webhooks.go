package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DrXenon2/BuySell-sub000/internal/http/middleware"
	"github.com/DrXenon2/BuySell-sub000/internal/modules/payments"
	"github.com/DrXenon2/BuySell-sub000/internal/shared/apperr"
)

const maxWebhookBody = 1 << 20

type WebhookService interface {
	Handle(ctx context.Context, provider string, header http.Header, body []byte) (payments.WebhookOutcome, error)
}

type WebhookHandler struct {
	Logger     *slog.Logger
	WebhookSvc WebhookService
}

func NewWebhookHandler(logger *slog.Logger, svc WebhookService) *WebhookHandler {
	return &WebhookHandler{Logger: logger, WebhookSvc: svc}
}

// POST /webhooks/payments/:provider
// The raw body is needed as-is for signature verification.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.Fail(c, apperr.InvalidErr("Corps de requête trop volumineux.", nil))
			return
		}
		middleware.Fail(c, apperr.InvalidErr("Corps de requête illisible.", nil).WithCause(err))
		return
	}

	provider := c.Param("provider")
	outcome, err := h.WebhookSvc.Handle(c.Request.Context(), provider, c.Request.Header, body)
	if err != nil {
		// non-2xx makes the provider redeliver
		middleware.Fail(c, err)
		return
	}

	h.Logger.DebugContext(c.Request.Context(), "webhook handled", "provider", provider, "outcome", outcome)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
