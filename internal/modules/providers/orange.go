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

type OrangeConfig struct {
	BaseURL        string
	ClientID       string
	ClientSecret   string
	MerchantKey    string
	Country        string // ci|sn|cm|ml|bf
	CallbackSecret string
}

// Orange talks to the Orange Money WebPay API. The customer is redirected
// to payment_url and approves there.
type Orange struct {
	cfg    OrangeConfig
	plan   PhonePlan
	client *httpClient
	tokens *tokenSource
}

func NewOrange(cfg OrangeConfig, o Options) *Orange {
	o = o.withDefaults()
	cfg.Country = strings.ToLower(firstNonEmpty(cfg.Country, "ci"))
	og := &Orange{
		cfg:    cfg,
		plan:   PlanFor(cfg.Country),
		client: newHTTPClient(KindOrange, cfg.BaseURL, orangeErrors, jsonCode("code", "error"), o),
	}
	og.tokens = &tokenSource{now: o.Now, fetch: og.fetchToken}
	return og
}

func (og *Orange) Kind() Kind { return KindOrange }

func (og *Orange) fetchToken(ctx context.Context) (string, time.Duration, error) {
	h := http.Header{}
	h.Set("Authorization", basicAuth(og.cfg.ClientID, og.cfg.ClientSecret))

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	form := url.Values{"grant_type": {"client_credentials"}}
	if _, err := og.client.doForm(ctx, http.MethodPost, "/oauth/v3/token", h, form, &tok); err != nil {
		return "", 0, err
	}
	if tok.AccessToken == "" {
		return "", 0, og.client.fail("INVALID_TOKEN", fmt.Errorf("empty access token"))
	}
	return tok.AccessToken, time.Duration(tok.ExpiresIn) * time.Second, nil
}

func (og *Orange) headers(ctx context.Context) (http.Header, error) {
	tok, err := og.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	return h, nil
}

func (og *Orange) path(op string) string {
	return "/orange-money-webpay/" + og.cfg.Country + "/v1/" + op
}

type orangePayBody struct {
	MerchantKey string      `json:"merchant_key"`
	Currency    string      `json:"currency"`
	OrderID     string      `json:"order_id"`
	Amount      json.Number `json:"amount"`
	ReturnURL   string      `json:"return_url"`
	CancelURL   string      `json:"cancel_url"`
	NotifURL    string      `json:"notif_url"`
	Lang        string      `json:"lang"`
	Reference   string      `json:"reference"`
}

type orangePayResp struct {
	PayToken   string `json:"pay_token"`
	PaymentURL string `json:"payment_url"`
	NotifToken string `json:"notif_token"`
}

func (og *Orange) Pay(ctx context.Context, req PayRequest) (PayResult, error) {
	phone := FormatPhoneNumber(req.Recipient, og.plan)
	if !IsValidOrangeNumber(phone) {
		return PayResult{}, og.client.fail(CodeInvalidPhone, fmt.Errorf("rejected %q", phone))
	}
	amount, err := money.WholeMajor(req.Amount, req.Currency)
	if err != nil {
		return PayResult{}, og.client.fail(CodeInvalidAmount, err)
	}

	h, err := og.headers(ctx)
	if err != nil {
		return PayResult{}, err
	}
	body := orangePayBody{
		MerchantKey: og.cfg.MerchantKey,
		Currency:    strings.ToUpper(req.Currency),
		OrderID:     req.PaymentID,
		Amount:      json.Number(amount),
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.ReturnURL,
		NotifURL:    req.CallbackURL,
		Lang:        "fr",
		Reference:   req.OrderID,
	}

	var out orangePayResp
	resp, err := og.client.doJSON(ctx, http.MethodPost, og.path("webpayment"), h, body, &out)
	if err != nil {
		return PayResult{}, err
	}
	if out.PayToken == "" {
		return PayResult{}, og.client.fail(CodeUnknown, fmt.Errorf("missing pay_token"))
	}

	return PayResult{
		Success:              true,
		ProviderStatus:       StatusPending,
		ProviderReference:    out.PayToken,
		RawResponse:          rawOrEmpty(resp.body),
		VerificationRequired: true,
		NextAction:           &NextAction{Type: "redirect", URL: out.PaymentURL},
		Message:              "Vous allez être redirigé vers Orange Money pour confirmer le paiement.",
	}, nil
}

type orangeStatusResp struct {
	Status  string `json:"status"`
	TxnID   string `json:"txnid"`
	OrderID string `json:"order_id"`
}

func (og *Orange) CheckStatus(ctx context.Context, providerReference string) (StatusResult, error) {
	h, err := og.headers(ctx)
	if err != nil {
		return StatusResult{}, err
	}
	var out orangeStatusResp
	body := map[string]string{"pay_token": providerReference}
	resp, err := og.client.doJSON(ctx, http.MethodPost, og.path("transactionstatus"), h, body, &out)
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{ProviderStatus: orangeStatus(out.Status), RawResponse: rawOrEmpty(resp.body)}, nil
}

func (og *Orange) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if req.Amount != req.OriginalAmount {
		return RefundResult{}, og.client.fail(CodePartialRefundUnsupported, nil)
	}
	amount, err := money.WholeMajor(req.Amount, req.Currency)
	if err != nil {
		return RefundResult{}, og.client.fail(CodeInvalidAmount, err)
	}
	h, err := og.headers(ctx)
	if err != nil {
		return RefundResult{}, err
	}
	body := map[string]any{
		"merchant_key": og.cfg.MerchantKey,
		"pay_token":    req.ProviderReference,
		"amount":       json.Number(amount),
		"reason":       req.Reason,
	}
	var out orangeStatusResp
	resp, err := og.client.doJSON(ctx, http.MethodPost, og.path("refund"), h, body, &out)
	if err != nil {
		return RefundResult{}, err
	}
	status := orangeStatus(firstNonEmpty(out.Status, "PENDING"))
	return RefundResult{
		Success:           status != StatusFailed,
		ProviderStatus:    status,
		ProviderReference: firstNonEmpty(out.TxnID, req.ProviderReference),
		RawResponse:       rawOrEmpty(resp.body),
	}, nil
}

type orangeNotification struct {
	Status     string `json:"status"`
	NotifToken string `json:"notif_token"`
	TxnID      string `json:"txnid"`
	OrderID    string `json:"order_id"`
	PayToken   string `json:"pay_token"`
}

func (og *Orange) VerifyAndParseWebhook(header http.Header, body []byte) (WebhookEvent, error) {
	if err := verifyBodySignature(og.cfg.CallbackSecret, body, header.Get(HeaderOrangeSignature)); err != nil {
		return WebhookEvent{}, err
	}
	var n orangeNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if n.OrderID == "" || n.Status == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing order_id or status", ErrMalformedPayload)
	}
	return WebhookEvent{
		EventID:           eventDigest(body),
		PaymentID:         n.OrderID,
		ProviderReference: firstNonEmpty(n.PayToken, n.TxnID),
		ProviderStatus:    orangeStatus(n.Status),
		Raw:               json.RawMessage(body),
	}, nil
}

func orangeStatus(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INITIATED", "PENDING":
		return StatusPending
	case "SUCCESS", "SUCCESSFUL":
		return StatusSucceeded
	case "FAILED":
		return StatusFailed
	case "EXPIRED", "CANCELLED":
		return StatusCancelled
	}
	return s
}
