// Package router wires the payment API onto a gin engine.
package router

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/DrXenon2/BuySell-sub000/internal/http/handlers"
	"github.com/DrXenon2/BuySell-sub000/internal/http/middleware"
	"github.com/DrXenon2/BuySell-sub000/internal/shared/validation"
)

type Deps struct {
	Payments handlers.PaymentService
	Refunds  handlers.RefundService
	Methods  handlers.MethodLister
	Webhooks handlers.WebhookService
	Health   map[string]handlers.Pinger
}

func New(logger *slog.Logger, d Deps) *gin.Engine {
	validation.UseJSONNames()

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// ErrorHandler sits outside Recovery so a recovered panic is rendered too
	r.Use(
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.ErrorHandler(logger),
		middleware.Recovery(logger),
	)

	health := &handlers.HealthHandler{Checks: d.Health}
	r.GET("/healthz", health.Get)

	pay := handlers.NewPaymentsHandler(logger, d.Payments, d.Refunds, d.Methods)
	r.GET("/payment-methods", pay.Methods)

	p := r.Group("/payments")
	{
		p.POST("", pay.Create)
		p.GET("/:id/status", pay.Status)
		p.PATCH("/:id/status", pay.UpdateStatus)
		p.POST("/:id/refund", pay.Refund)
	}

	wh := handlers.NewWebhookHandler(logger, d.Webhooks)
	r.POST("/webhooks/payments/:provider", wh.Handle)

	return r
}
