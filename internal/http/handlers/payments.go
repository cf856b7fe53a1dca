package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/DrXenon2/BuySell-sub000/internal/http/middleware"
	"github.com/DrXenon2/BuySell-sub000/internal/modules/payments"
	"github.com/DrXenon2/BuySell-sub000/internal/modules/providers"
	"github.com/DrXenon2/BuySell-sub000/internal/shared/apperr"
	"github.com/DrXenon2/BuySell-sub000/internal/shared/validation"
)

type PaymentService interface {
	ProcessPayment(ctx context.Context, req payments.PaymentRequest) (payments.PaymentResult, error)
	CheckPaymentStatus(ctx context.Context, paymentID string) (payments.Payment, error)
	UpdateStatusManually(ctx context.Context, paymentID, status, note string) (payments.Payment, error)
}

type RefundService interface {
	ProcessRefund(ctx context.Context, in payments.RefundInput) (payments.RefundResult, error)
}

type MethodLister interface {
	ListAvailableMethods(country string, amount int64, currency string) []providers.AvailableMethod
}

type PaymentsHandler struct {
	Logger   *slog.Logger
	Payments PaymentService
	Refunds  RefundService
	Registry MethodLister
}

func NewPaymentsHandler(logger *slog.Logger, pay PaymentService, ref RefundService, methods MethodLister) *PaymentsHandler {
	return &PaymentsHandler{Logger: logger, Payments: pay, Refunds: ref, Registry: methods}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Requête invalide.", validation.FromBindError(err)))
		return false
	}
	return true
}

// POST /payments
func (h *PaymentsHandler) Create(c *gin.Context) {
	var req payments.PaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.Payments.ProcessPayment(c.Request.Context(), req)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":              res.Success,
		"paymentId":            res.PaymentID,
		"orderId":              res.OrderID,
		"status":               res.Status,
		"processorReference":   res.ProcessorReference,
		"nextAction":           res.NextAction,
		"verificationRequired": res.VerificationRequired,
		"message":              res.Message,
	})
}

func paymentJSON(p payments.Payment) gin.H {
	return gin.H{
		"success":            true,
		"paymentId":          p.ID,
		"orderId":            p.OrderID,
		"status":             p.Status,
		"amount":             p.Amount,
		"currency":           p.Currency,
		"paymentMethod":      p.PaymentMethod,
		"refundStatus":       p.RefundStatus,
		"totalRefunded":      p.TotalRefunded,
		"processorReference": p.Reference(),
	}
}

// GET /payments/:id/status
func (h *PaymentsHandler) Status(c *gin.Context) {
	p, err := h.Payments.CheckPaymentStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentJSON(p))
}

type manualStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note" binding:"max=255"`
}

// PATCH /payments/:id/status
func (h *PaymentsHandler) UpdateStatus(c *gin.Context) {
	var req manualStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.Payments.UpdateStatusManually(c.Request.Context(), c.Param("id"), strings.ToLower(req.Status), req.Note)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentJSON(p))
}

type refundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// POST /payments/:id/refund
func (h *PaymentsHandler) Refund(c *gin.Context) {
	var req refundRequest
	// an empty body asks for a full refund
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	res, err := h.Refunds.ProcessRefund(c.Request.Context(), payments.RefundInput{
		PaymentID: c.Param("id"),
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"refundId":      res.RefundID,
		"paymentId":     res.PaymentID,
		"status":        res.Status,
		"amount":        res.Amount,
		"refundStatus":  res.RefundStatus,
		"totalRefunded": res.TotalRefunded,
	})
}

// GET /payment-methods?country=CI&amount=5000&currency=XOF
func (h *PaymentsHandler) Methods(c *gin.Context) {
	country := strings.ToUpper(c.Query("country"))
	currency := strings.ToUpper(c.DefaultQuery("currency", "XOF"))

	var amount int64
	if v := c.Query("amount"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			middleware.Fail(c, apperr.InvalidErr("Requête invalide.", map[string]string{"amount": "Valeur invalide."}))
			return
		}
		amount = n
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"methods":       h.Registry.ListAvailableMethods(country, amount, currency),
		"defaultMethod": providers.DefaultMethod(country),
	})
}
