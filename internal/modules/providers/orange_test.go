package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeOrange(t *testing.T, status string) (*Orange, *int32, *map[string]any) {
	t.Helper()
	var calls int32
	var lastPay map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/v3/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "otok", "expires_in": 7776000})
	})
	mux.HandleFunc("POST /orange-money-webpay/ci/v1/webpayment", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &lastPay)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":201,"message":"OK","pay_token":"pt-1","payment_url":"https://webpay.example/pt-1","notif_token":"nt"}`))
	})
	mux.HandleFunc("POST /orange-money-webpay/ci/v1/transactionstatus", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "txnid": "MP1"})
	})
	mux.HandleFunc("POST /orange-money-webpay/ci/v1/refund", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "SUCCESS", "txnid": "RF1"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	og := NewOrange(OrangeConfig{
		BaseURL:        srv.URL,
		ClientID:       "cid",
		ClientSecret:   "csecret",
		MerchantKey:    "mk",
		Country:        "CI",
		CallbackSecret: "ocb",
	}, testOptions(srv))
	return og, &calls, &lastPay
}

func TestOrange_Pay_Redirect(t *testing.T) {
	og, _, lastPay := newFakeOrange(t, "SUCCESS")

	res, err := og.Pay(context.Background(), PayRequest{
		PaymentID: "pay-1", OrderID: "ord-1", Amount: 2500, Currency: "XOF",
		Recipient: "0709999999", CallbackURL: "https://shop.example/cb", ReturnURL: "https://shop.example/done",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.ProviderStatus)
	assert.Equal(t, "pt-1", res.ProviderReference)
	require.NotNil(t, res.NextAction)
	assert.Equal(t, "redirect", res.NextAction.Type)
	assert.Equal(t, "https://webpay.example/pt-1", res.NextAction.URL)

	assert.Equal(t, "pay-1", (*lastPay)["order_id"])
	assert.Equal(t, float64(2500), (*lastPay)["amount"])
	assert.Equal(t, "mk", (*lastPay)["merchant_key"])
	assert.Equal(t, "https://shop.example/cb", (*lastPay)["notif_url"])
}

func TestOrange_Pay_RejectsMTNOnlyPrefix(t *testing.T) {
	og, calls, _ := newFakeOrange(t, "SUCCESS")

	_, err := og.Pay(context.Background(), PayRequest{PaymentID: "p", Amount: 2500, Currency: "XOF", Recipient: "0501020304"})
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidPhone, pe.Code)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestOrange_CheckStatus(t *testing.T) {
	for in, want := range map[string]string{
		"SUCCESS":   StatusSucceeded,
		"INITIATED": StatusPending,
		"FAILED":    StatusFailed,
		"EXPIRED":   StatusCancelled,
	} {
		og, _, _ := newFakeOrange(t, in)
		res, err := og.CheckStatus(context.Background(), "pt-1")
		require.NoError(t, err)
		assert.Equal(t, want, res.ProviderStatus, in)
	}
}

func TestOrange_Refund_FullOnly(t *testing.T) {
	og, _, _ := newFakeOrange(t, "SUCCESS")

	_, err := og.Refund(context.Background(), RefundRequest{ProviderReference: "pt-1", Amount: 1000, OriginalAmount: 2500, Currency: "XOF"})
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, CodePartialRefundUnsupported, pe.Code)
	assert.Equal(t, http.StatusBadRequest, pe.HTTPStatusHint)

	res, err := og.Refund(context.Background(), RefundRequest{ProviderReference: "pt-1", Amount: 2500, OriginalAmount: 2500, Currency: "XOF"})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.ProviderStatus)
	assert.Equal(t, "RF1", res.ProviderReference)
}

func TestOrange_Webhook(t *testing.T) {
	og, _, _ := newFakeOrange(t, "SUCCESS")
	body := []byte(`{"status":"SUCCESS","notif_token":"nt","txnid":"MP1","order_id":"pay-1"}`)

	h := http.Header{}
	h.Set(HeaderOrangeSignature, Sign(KindOrange, "ocb", body, time.Now()))
	ev, err := og.VerifyAndParseWebhook(h, body)
	require.NoError(t, err)
	assert.Equal(t, "pay-1", ev.PaymentID)
	assert.Equal(t, StatusSucceeded, ev.ProviderStatus)

	h.Del(HeaderOrangeSignature)
	_, err = og.VerifyAndParseWebhook(h, body)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
