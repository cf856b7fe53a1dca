package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type StripeConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
}

// Stripe talks to the PaymentIntents API. Amounts go out in minor units.
type Stripe struct {
	cfg    StripeConfig
	client *httpClient
	now    func() time.Time
}

func NewStripe(cfg StripeConfig, o Options) *Stripe {
	o = o.withDefaults()
	return &Stripe{
		cfg:    cfg,
		client: newHTTPClient(KindCard, cfg.BaseURL, stripeErrors, stripeCode, o),
		now:    o.Now,
	}
}

func (s *Stripe) Kind() Kind { return KindCard }

func (s *Stripe) headers(idempotencyKey string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.cfg.SecretKey)
	if idempotencyKey != "" {
		h.Set("Idempotency-Key", idempotencyKey)
	}
	return h
}

type stripeIntent struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	Metadata   map[string]string `json:"metadata"`
	NextAction *struct {
		Type          string `json:"type"`
		RedirectToURL *struct {
			URL string `json:"url"`
		} `json:"redirect_to_url"`
	} `json:"next_action"`
	LastPaymentError *struct {
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"last_payment_error"`
}

func (s *Stripe) Pay(ctx context.Context, req PayRequest) (PayResult, error) {
	if req.Amount <= 0 {
		return PayResult{}, s.client.fail(CodeInvalidAmount, nil)
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("payment_method", req.Recipient)
	form.Set("confirm", "true")
	form.Set("metadata[payment_id]", req.PaymentID)
	form.Set("metadata[order_id]", req.OrderID)
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}
	if req.ReturnURL != "" {
		form.Set("return_url", req.ReturnURL)
	}

	var pi stripeIntent
	resp, err := s.client.doForm(ctx, http.MethodPost, "/v1/payment_intents", s.headers(req.PaymentID), form, &pi)
	if err != nil {
		return PayResult{}, err
	}

	status := stripeStatus(pi.Status)
	out := PayResult{
		Success:           status != StatusFailed,
		ProviderStatus:    status,
		ProviderReference: pi.ID,
		RawResponse:       rawOrEmpty(resp.body),
	}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		out.VerificationRequired = true
		out.NextAction = &NextAction{Type: "redirect", URL: pi.NextAction.RedirectToURL.URL}
		out.Message = "Authentification 3-D Secure requise."
	}
	if pi.LastPaymentError != nil && status == StatusFailed {
		code := firstNonEmpty(pi.LastPaymentError.DeclineCode, pi.LastPaymentError.Code)
		if info, ok := stripeErrors.lookup(code); ok {
			out.Message = info.Message
		}
	}
	return out, nil
}

func (s *Stripe) CheckStatus(ctx context.Context, providerReference string) (StatusResult, error) {
	var pi stripeIntent
	resp, err := s.client.doForm(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(providerReference), s.headers(""), nil, &pi)
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{ProviderStatus: stripeStatus(pi.Status), RawResponse: rawOrEmpty(resp.body)}, nil
}

func (s *Stripe) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	form := url.Values{}
	form.Set("payment_intent", req.ProviderReference)
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("reason", "requested_by_customer")
	form.Set("metadata[refund_id]", req.RefundID)
	if req.Reason != "" {
		form.Set("metadata[reason]", req.Reason)
	}

	var rf struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	resp, err := s.client.doForm(ctx, http.MethodPost, "/v1/refunds", s.headers(req.RefundID), form, &rf)
	if err != nil {
		return RefundResult{}, err
	}
	status := stripeStatus(rf.Status)
	return RefundResult{
		Success:           status != StatusFailed,
		ProviderStatus:    status,
		ProviderReference: rf.ID,
		RawResponse:       rawOrEmpty(resp.body),
	}, nil
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object stripeIntent `json:"object"`
	} `json:"data"`
}

func (s *Stripe) VerifyAndParseWebhook(header http.Header, body []byte) (WebhookEvent, error) {
	if err := verifyTimestampedSignature(s.cfg.WebhookSecret, body, header.Get(HeaderStripeSignature), ".", s.now()); err != nil {
		return WebhookEvent{}, err
	}
	var ev stripeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	paymentID := ev.Data.Object.Metadata["payment_id"]
	if ev.ID == "" || paymentID == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing event id or metadata.payment_id", ErrMalformedPayload)
	}

	status := stripeStatus(ev.Data.Object.Status)
	switch ev.Type {
	case "payment_intent.payment_failed":
		status = StatusFailed
	case "payment_intent.canceled":
		status = StatusCancelled
	case "payment_intent.succeeded":
		status = StatusSucceeded
	}
	return WebhookEvent{
		EventID:           ev.ID,
		PaymentID:         paymentID,
		ProviderReference: ev.Data.Object.ID,
		ProviderStatus:    status,
		Raw:               json.RawMessage(body),
	}, nil
}

func stripeStatus(s string) string {
	switch s {
	case "requires_payment_method":
		return StatusFailed
	case "canceled":
		return StatusCancelled
	case "requires_capture":
		return StatusProcessing
	}
	// succeeded, processing, requires_action, requires_confirmation, pending, failed
	// already use our vocabulary
	return s
}

// stripeCode prefers the decline code so that issuer reasons map precisely.
func stripeCode(body []byte) string {
	var e struct {
		Error struct {
			Type        string `json:"type"`
			Code        string `json:"code"`
			DeclineCode string `json:"decline_code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	if _, ok := stripeErrors[e.Error.DeclineCode]; ok {
		return e.Error.DeclineCode
	}
	if e.Error.Code != "" {
		return e.Error.Code
	}
	if e.Error.Type == "card_error" {
		return "card_declined"
	}
	return e.Error.Type
}
