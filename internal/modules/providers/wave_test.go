package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeWave(t *testing.T, session map[string]any) (*Wave, *http.Header, *map[string]any) {
	t.Helper()
	var lastHeader http.Header
	var lastBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/checkout/sessions", func(w http.ResponseWriter, r *http.Request) {
		lastHeader = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &lastBody)
		_ = json.NewEncoder(w).Encode(session)
	})
	mux.HandleFunc("GET /v1/checkout/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(session)
	})
	mux.HandleFunc("POST /v1/checkout/sessions/{id}/refund", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	w := NewWave(WaveConfig{BaseURL: srv.URL, APIKey: "wave-key", WebhookSecret: "wsec"}, testOptions(srv))
	return w, &lastHeader, &lastBody
}

func TestWave_Pay(t *testing.T) {
	w, hdr, body := newFakeWave(t, map[string]any{
		"id":              "cos-1",
		"wave_launch_url": "https://pay.wave.com/c/cos-1",
		"checkout_status": "open",
		"payment_status":  "processing",
	})

	res, err := w.Pay(context.Background(), PayRequest{PaymentID: "pay-1", Amount: 1000, Currency: "XOF", Recipient: "+221761234567"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.ProviderStatus)
	assert.Equal(t, "cos-1", res.ProviderReference)
	require.NotNil(t, res.NextAction)
	assert.Equal(t, "https://pay.wave.com/c/cos-1", res.NextAction.URL)

	assert.Equal(t, "Bearer wave-key", hdr.Get("Authorization"))
	assert.Equal(t, "pay-1", (*body)["client_reference"])
	assert.Equal(t, "1000", (*body)["amount"])
	assert.Equal(t, "+221761234567", (*body)["restrict_payer_mobile"])
}

func TestWave_Pay_NationalNumberUsesCountryPlan(t *testing.T) {
	w, _, body := newFakeWave(t, map[string]any{"id": "cos-2", "checkout_status": "open"})

	_, err := w.Pay(context.Background(), PayRequest{PaymentID: "pay-2", Amount: 1000, Currency: "XOF", Recipient: "771234567", Country: "SN"})
	require.NoError(t, err)
	assert.Equal(t, "+221771234567", (*body)["restrict_payer_mobile"])

	// no country: Côte d'Ivoire numbering
	_, err = w.Pay(context.Background(), PayRequest{PaymentID: "pay-3", Amount: 1000, Currency: "XOF", Recipient: "0707123456"})
	require.NoError(t, err)
	assert.Equal(t, "+22507123456", (*body)["restrict_payer_mobile"])
}

func TestWave_Pay_RejectsOutsideCoverage(t *testing.T) {
	w, _, _ := newFakeWave(t, map[string]any{})

	// Cameroon Orange is not served by Wave
	_, err := w.Pay(context.Background(), PayRequest{PaymentID: "p", Amount: 1000, Currency: "XOF", Recipient: "+237691234567"})
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidPhone, pe.Code)
}

func TestWave_StatusFolding(t *testing.T) {
	tests := []struct {
		checkout, payment, want string
	}{
		{"open", "processing", StatusPending},
		{"complete", "succeeded", StatusSucceeded},
		{"expired", "processing", StatusCancelled},
		{"complete", "cancelled", StatusCancelled},
		{"", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, waveStatus(tt.checkout, tt.payment), "%s/%s", tt.checkout, tt.payment)
	}

	w, _, _ := newFakeWave(t, map[string]any{"id": "cos-1", "checkout_status": "complete", "payment_status": "succeeded"})
	res, err := w.CheckStatus(context.Background(), "cos-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.ProviderStatus)
}

func TestWave_Refund_FullOnly(t *testing.T) {
	w, _, _ := newFakeWave(t, map[string]any{})

	_, err := w.Refund(context.Background(), RefundRequest{ProviderReference: "cos-1", Amount: 500, OriginalAmount: 1000, Currency: "XOF"})
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, CodePartialRefundUnsupported, pe.Code)

	res, err := w.Refund(context.Background(), RefundRequest{ProviderReference: "cos-1", Amount: 1000, OriginalAmount: 1000, Currency: "XOF"})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.ProviderStatus)
}

func TestWave_Webhook(t *testing.T) {
	w, _, _ := newFakeWave(t, map[string]any{})
	body := []byte(`{"id":"EV_1","type":"checkout.session.completed","data":{"id":"cos-1","client_reference":"pay-1","checkout_status":"complete","payment_status":"succeeded"}}`)

	h := http.Header{}
	h.Set(HeaderWaveSignature, Sign(KindWave, "wsec", body, time.Now()))
	ev, err := w.VerifyAndParseWebhook(h, body)
	require.NoError(t, err)
	assert.Equal(t, "EV_1", ev.EventID)
	assert.Equal(t, "pay-1", ev.PaymentID)
	assert.Equal(t, "cos-1", ev.ProviderReference)
	assert.Equal(t, StatusSucceeded, ev.ProviderStatus)

	failed := []byte(`{"id":"EV_2","type":"checkout.session.payment_failed","data":{"id":"cos-1","client_reference":"pay-1","checkout_status":"open","payment_status":"processing"}}`)
	h.Set(HeaderWaveSignature, Sign(KindWave, "wsec", failed, time.Now()))
	ev, err = w.VerifyAndParseWebhook(h, failed)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, ev.ProviderStatus)

	h.Set(HeaderWaveSignature, Sign(KindWave, "wsec", body, time.Now().Add(-time.Hour)))
	_, err = w.VerifyAndParseWebhook(h, body)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
