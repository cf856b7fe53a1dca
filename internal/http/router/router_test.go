package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrXenon2/BuySell-sub000/internal/http/handlers"
	"github.com/DrXenon2/BuySell-sub000/internal/modules/payments"
	"github.com/DrXenon2/BuySell-sub000/internal/modules/providers"
	"github.com/DrXenon2/BuySell-sub000/internal/shared/apperr"
)

type MockPaymentService struct {
	ProcessPaymentFunc       func(ctx context.Context, req payments.PaymentRequest) (payments.PaymentResult, error)
	CheckPaymentStatusFunc   func(ctx context.Context, id string) (payments.Payment, error)
	UpdateStatusManuallyFunc func(ctx context.Context, id, status, note string) (payments.Payment, error)
}

func (m *MockPaymentService) ProcessPayment(ctx context.Context, req payments.PaymentRequest) (payments.PaymentResult, error) {
	if m.ProcessPaymentFunc != nil {
		return m.ProcessPaymentFunc(ctx, req)
	}
	return payments.PaymentResult{}, nil
}

func (m *MockPaymentService) CheckPaymentStatus(ctx context.Context, id string) (payments.Payment, error) {
	if m.CheckPaymentStatusFunc != nil {
		return m.CheckPaymentStatusFunc(ctx, id)
	}
	return payments.Payment{}, apperr.NotFoundErr("Paiement introuvable.")
}

func (m *MockPaymentService) UpdateStatusManually(ctx context.Context, id, status, note string) (payments.Payment, error) {
	if m.UpdateStatusManuallyFunc != nil {
		return m.UpdateStatusManuallyFunc(ctx, id, status, note)
	}
	return payments.Payment{}, nil
}

type MockRefundService struct {
	ProcessRefundFunc func(ctx context.Context, in payments.RefundInput) (payments.RefundResult, error)
}

func (m *MockRefundService) ProcessRefund(ctx context.Context, in payments.RefundInput) (payments.RefundResult, error) {
	if m.ProcessRefundFunc != nil {
		return m.ProcessRefundFunc(ctx, in)
	}
	return payments.RefundResult{}, nil
}

type MockWebhookService struct {
	HandleFunc func(ctx context.Context, provider string, header http.Header, body []byte) (payments.WebhookOutcome, error)
}

func (m *MockWebhookService) Handle(ctx context.Context, provider string, header http.Header, body []byte) (payments.WebhookOutcome, error) {
	if m.HandleFunc != nil {
		return m.HandleFunc(ctx, provider, header, body)
	}
	return payments.OutcomeApplied, nil
}

type MockPinger struct{ Err error }

func (m MockPinger) PingContext(context.Context) error { return m.Err }

type mocks struct {
	pay      *MockPaymentService
	refund   *MockRefundService
	webhooks *MockWebhookService
	health   map[string]handlers.Pinger
}

func newMocks() *mocks {
	return &mocks{
		pay:      &MockPaymentService{},
		refund:   &MockRefundService{},
		webhooks: &MockWebhookService{},
		health:   map[string]handlers.Pinger{"db": MockPinger{}},
	}
}

func (m *mocks) engine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return New(logger, Deps{
		Payments: m.pay,
		Refunds:  m.refund,
		Methods:  providers.NewRegistry(providers.Adapters{}),
		Webhooks: m.webhooks,
		Health:   m.health,
	})
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestCreatePayment(t *testing.T) {
	m := newMocks()
	var got payments.PaymentRequest
	m.pay.ProcessPaymentFunc = func(_ context.Context, req payments.PaymentRequest) (payments.PaymentResult, error) {
		got = req
		return payments.PaymentResult{
			Success:              true,
			PaymentID:            "pay-1",
			OrderID:              req.OrderID,
			Status:               payments.StatusPending,
			ProcessorReference:   "tx1",
			NextAction:           &providers.NextAction{Type: "approve_on_phone"},
			VerificationRequired: true,
			Message:              "Paiement en attente de confirmation.",
		}, nil
	}

	w := do(m.engine(), http.MethodPost, "/payments",
		`{"orderId":"ord-1","amount":5000,"currency":"XOF","paymentMethod":"mtn_money","customerInfo":{"phone":"0707123456"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "pay-1", body["paymentId"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "tx1", body["processorReference"])
	assert.Equal(t, true, body["verificationRequired"])
	assert.Equal(t, "approve_on_phone", body["nextAction"].(map[string]any)["type"])

	assert.Equal(t, "0707123456", got.Customer.Phone)
	assert.EqualValues(t, 5000, got.Amount)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCreatePayment_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		msg    string
	}{
		{"malformed json", `{"amount":`, nil, http.StatusBadRequest, "Requête invalide."},
		{"validation", `{"amount":1}`, apperr.InvalidErr("Requête invalide.", map[string]string{"amount": "Doit être supérieur ou égal à 100."}), http.StatusBadRequest, "Requête invalide."},
		{"declined", `{}`, apperr.DeclinedErr("Solde insuffisant.", "NOT_ENOUGH_FUNDS"), http.StatusPaymentRequired, "Solde insuffisant."},
		{"unavailable", `{}`, apperr.UnavailableErr("Service indisponible.", "TIMEOUT", http.StatusServiceUnavailable), http.StatusServiceUnavailable, "Service indisponible."},
		{"internal", `{}`, apperr.Wrap(errors.New("provider payload: secret stuff")), http.StatusInternalServerError, "Une erreur inattendue est survenue."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMocks()
			m.pay.ProcessPaymentFunc = func(context.Context, payments.PaymentRequest) (payments.PaymentResult, error) {
				return payments.PaymentResult{}, tt.err
			}

			w := do(m.engine(), http.MethodPost, "/payments", tt.body)
			assert.Equal(t, tt.status, w.Code)

			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.msg, body["message"])
			assert.NotEmpty(t, body["request_id"])
			assert.NotContains(t, w.Body.String(), "secret stuff")
		})
	}
}

func TestCreatePayment_FieldErrors(t *testing.T) {
	m := newMocks()
	m.pay.ProcessPaymentFunc = func(context.Context, payments.PaymentRequest) (payments.PaymentResult, error) {
		return payments.PaymentResult{}, apperr.InvalidErr("Requête invalide.", map[string]string{"customerInfo.phone": "Ce champ est obligatoire."})
	}

	w := do(m.engine(), http.MethodPost, "/payments", `{"paymentMethod":"wave"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode(t, w)["fields"].(map[string]any)
	assert.Equal(t, "Ce champ est obligatoire.", fields["customerInfo.phone"])
}

func TestPaymentStatus(t *testing.T) {
	m := newMocks()
	m.pay.CheckPaymentStatusFunc = func(_ context.Context, id string) (payments.Payment, error) {
		ref := "tx1"
		return payments.Payment{
			ID: id, OrderID: "ord-1", Status: payments.StatusSucceeded, Amount: 5000, Currency: "XOF",
			RefundStatus: payments.RefundPartiallyRefunded, TotalRefunded: 1000, ProcessorReference: &ref,
		}, nil
	}
	r := m.engine()

	w := do(r, http.MethodGet, "/payments/pay-1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "pay-1", body["paymentId"])
	assert.Equal(t, "succeeded", body["status"])
	assert.Equal(t, "partially_refunded", body["refundStatus"])
	assert.EqualValues(t, 1000, body["totalRefunded"])
	assert.Equal(t, "tx1", body["processorReference"])

	m.pay.CheckPaymentStatusFunc = nil
	w = do(r, http.MethodGet, "/payments/nope/status", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Paiement introuvable.", decode(t, w)["message"])
}

func TestManualStatusUpdate(t *testing.T) {
	m := newMocks()
	var gotStatus, gotNote string
	m.pay.UpdateStatusManuallyFunc = func(_ context.Context, id, status, note string) (payments.Payment, error) {
		gotStatus, gotNote = status, note
		return payments.Payment{ID: id, Status: status}, nil
	}
	r := m.engine()

	w := do(r, http.MethodPatch, "/payments/cash-1/status", `{"status":"SUCCEEDED","note":"encaissé"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "succeeded", gotStatus)
	assert.Equal(t, "encaissé", gotNote)

	w = do(r, http.MethodPatch, "/payments/cash-1/status", `{"note":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["fields"], "status")
}

func TestRefund(t *testing.T) {
	m := newMocks()
	var got payments.RefundInput
	m.refund.ProcessRefundFunc = func(_ context.Context, in payments.RefundInput) (payments.RefundResult, error) {
		got = in
		return payments.RefundResult{
			RefundID: "ref-1", PaymentID: in.PaymentID, Status: payments.RefundStatusSucceeded,
			Amount: 5000, RefundStatus: payments.RefundFullyRefunded, TotalRefunded: 5000,
		}, nil
	}
	r := m.engine()

	w := do(r, http.MethodPost, "/payments/pay-1/refund", `{"amount":5000,"reason":"retour"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "ref-1", body["refundId"])
	assert.Equal(t, "fully_refunded", body["refundStatus"])
	assert.Equal(t, payments.RefundInput{PaymentID: "pay-1", Amount: 5000, Reason: "retour"}, got)

	// no body: full remaining amount
	w = do(r, http.MethodPost, "/payments/pay-1/refund", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, got.Amount)

	m.refund.ProcessRefundFunc = func(context.Context, payments.RefundInput) (payments.RefundResult, error) {
		return payments.RefundResult{}, apperr.InvalidErr("Ce paiement ne peut pas être remboursé.", nil)
	}
	w = do(r, http.MethodPost, "/payments/pay-1/refund", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentMethods(t *testing.T) {
	r := newMocks().engine()

	w := do(r, http.MethodGet, "/payment-methods?country=sn&amount=5000", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "wave", body["defaultMethod"])
	// nothing configured: cash only
	methods := body["methods"].([]any)
	require.Len(t, methods, 1)
	assert.Equal(t, "cash", methods[0].(map[string]any)["method"])

	w = do(r, http.MethodGet, "/payment-methods?amount=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook(t *testing.T) {
	m := newMocks()
	var gotProvider string
	var gotBody []byte
	var gotSig string
	m.webhooks.HandleFunc = func(_ context.Context, provider string, header http.Header, body []byte) (payments.WebhookOutcome, error) {
		gotProvider, gotBody, gotSig = provider, body, header.Get("Wave-Signature")
		return payments.OutcomeApplied, nil
	}
	r := m.engine()

	raw := `{"id":"EV_1","type":"checkout.session.completed"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/wave", bytes.NewBufferString(raw))
	req.Header.Set("Wave-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
	assert.Equal(t, "wave", gotProvider)
	assert.Equal(t, raw, string(gotBody))
	assert.Equal(t, "t=1,v1=abc", gotSig)
}

func TestWebhook_Errors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperr.UnauthorizedErr("Signature invalide."), http.StatusUnauthorized},
		{apperr.NotFoundErr("Fournisseur inconnu."), http.StatusNotFound},
		{apperr.Wrap(errors.New("db down")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		m := newMocks()
		m.webhooks.HandleFunc = func(context.Context, string, http.Header, []byte) (payments.WebhookOutcome, error) {
			return "", tt.err
		}
		w := do(m.engine(), http.MethodPost, "/webhooks/payments/mtn", `{}`)
		assert.Equal(t, tt.status, w.Code)
		assert.Equal(t, false, decode(t, w)["success"])
	}

	// oversized body never reaches the service
	m := newMocks()
	called := false
	m.webhooks.HandleFunc = func(context.Context, string, http.Header, []byte) (payments.WebhookOutcome, error) {
		called = true
		return payments.OutcomeApplied, nil
	}
	w := do(m.engine(), http.MethodPost, "/webhooks/payments/mtn", `"`+strings.Repeat("a", 2<<20)+`"`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called)
}

func TestHealthz(t *testing.T) {
	m := newMocks()
	w := do(m.engine(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	m.health["redis"] = MockPinger{Err: errors.New("connection refused")}
	w = do(m.engine(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRecovery(t *testing.T) {
	m := newMocks()
	m.pay.CheckPaymentStatusFunc = func(context.Context, string) (payments.Payment, error) {
		panic("boom")
	}
	w := do(m.engine(), http.MethodGet, "/payments/x/status", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}
