package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DrXenon2/BuySell-sub000/internal/shared/money"
)

type WaveConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
}

// Wave talks to the Wave Checkout API.
type Wave struct {
	cfg    WaveConfig
	client *httpClient
	now    func() time.Time
}

func NewWave(cfg WaveConfig, o Options) *Wave {
	o = o.withDefaults()
	return &Wave{
		cfg:    cfg,
		client: newHTTPClient(KindWave, cfg.BaseURL, waveErrors, jsonCode("code"), o),
		now:    o.Now,
	}
}

func (w *Wave) Kind() Kind { return KindWave }

func (w *Wave) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+w.cfg.APIKey)
	return h
}

type waveSessionBody struct {
	Amount              string `json:"amount"`
	Currency            string `json:"currency"`
	ClientReference     string `json:"client_reference"`
	RestrictPayerMobile string `json:"restrict_payer_mobile,omitempty"`
	SuccessURL          string `json:"success_url,omitempty"`
	ErrorURL            string `json:"error_url,omitempty"`
}

type waveSession struct {
	ID              string `json:"id"`
	WaveLaunchURL   string `json:"wave_launch_url"`
	ClientReference string `json:"client_reference"`
	PaymentStatus   string `json:"payment_status"`
	CheckoutStatus  string `json:"checkout_status"`
	TransactionID   string `json:"transaction_id"`
}

func (w *Wave) Pay(ctx context.Context, req PayRequest) (PayResult, error) {
	phone := FormatPhoneNumber(req.Recipient, PlanFor(req.Country))
	if !IsValidWaveNumber(phone) {
		return PayResult{}, w.client.fail(CodeInvalidPhone, fmt.Errorf("rejected %q", phone))
	}
	amount, err := money.WholeMajor(req.Amount, req.Currency)
	if err != nil {
		return PayResult{}, w.client.fail(CodeInvalidAmount, err)
	}

	body := waveSessionBody{
		Amount:              amount,
		Currency:            strings.ToUpper(req.Currency),
		ClientReference:     req.PaymentID,
		RestrictPayerMobile: phone,
		SuccessURL:          req.ReturnURL,
		ErrorURL:            req.ReturnURL,
	}
	var s waveSession
	resp, err := w.client.doJSON(ctx, http.MethodPost, "/v1/checkout/sessions", w.headers(), body, &s)
	if err != nil {
		return PayResult{}, err
	}
	if s.ID == "" {
		return PayResult{}, w.client.fail(CodeUnknown, fmt.Errorf("missing session id"))
	}

	status := waveStatus(s.CheckoutStatus, s.PaymentStatus)
	return PayResult{
		Success:              status != StatusFailed,
		ProviderStatus:       status,
		ProviderReference:    s.ID,
		RawResponse:          rawOrEmpty(resp.body),
		VerificationRequired: true,
		NextAction:           &NextAction{Type: "redirect", URL: s.WaveLaunchURL},
		Message:              "Ouvrez Wave pour confirmer le paiement.",
	}, nil
}

func (w *Wave) CheckStatus(ctx context.Context, providerReference string) (StatusResult, error) {
	var s waveSession
	resp, err := w.client.doJSON(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(providerReference), w.headers(), nil, &s)
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{ProviderStatus: waveStatus(s.CheckoutStatus, s.PaymentStatus), RawResponse: rawOrEmpty(resp.body)}, nil
}

func (w *Wave) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if req.Amount != req.OriginalAmount {
		return RefundResult{}, w.client.fail(CodePartialRefundUnsupported, nil)
	}
	path := "/v1/checkout/sessions/" + url.PathEscape(req.ProviderReference) + "/refund"
	resp, err := w.client.doJSON(ctx, http.MethodPost, path, w.headers(), nil, nil)
	if err != nil {
		return RefundResult{}, err
	}
	// a 2xx means the refund went through
	return RefundResult{
		Success:           true,
		ProviderStatus:    StatusSucceeded,
		ProviderReference: req.ProviderReference,
		RawResponse:       rawOrEmpty(resp.body),
	}, nil
}

type waveEvent struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data waveSession `json:"data"`
}

func (w *Wave) VerifyAndParseWebhook(header http.Header, body []byte) (WebhookEvent, error) {
	if err := verifyTimestampedSignature(w.cfg.WebhookSecret, body, header.Get(HeaderWaveSignature), "", w.now()); err != nil {
		return WebhookEvent{}, err
	}
	var ev waveEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if ev.Data.ClientReference == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing client_reference", ErrMalformedPayload)
	}

	status := waveStatus(ev.Data.CheckoutStatus, ev.Data.PaymentStatus)
	if ev.Type == "checkout.session.payment_failed" {
		status = StatusFailed
	}
	return WebhookEvent{
		EventID:           firstNonEmpty(ev.ID, eventDigest(body)),
		PaymentID:         ev.Data.ClientReference,
		ProviderReference: ev.Data.ID,
		ProviderStatus:    status,
		Raw:               json.RawMessage(body),
	}, nil
}

// waveStatus folds Wave's two status fields into one.
func waveStatus(checkout, payment string) string {
	switch strings.ToLower(payment) {
	case "succeeded":
		return StatusSucceeded
	case "cancelled":
		return StatusCancelled
	case "failed":
		return StatusFailed
	}
	switch strings.ToLower(checkout) {
	case "open":
		return StatusPending
	case "expired":
		return StatusCancelled
	case "complete":
		return StatusProcessing
	}
	if payment == "processing" {
		return StatusProcessing
	}
	return firstNonEmpty(payment, checkout)
}
