package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DrXenon2/BuySell-sub000/internal/shared/money"
)

type MTNConfig struct {
	BaseURL         string
	SubscriptionKey string
	APIUser         string
	APIKey          string
	TargetEnv       string
	CallbackSecret  string
}

// MTN talks to the MTN MoMo Collections API.
type MTN struct {
	cfg    MTNConfig
	client *httpClient
	tokens *tokenSource
}

func NewMTN(cfg MTNConfig, o Options) *MTN {
	o = o.withDefaults()
	if cfg.TargetEnv == "" {
		cfg.TargetEnv = "sandbox"
	}
	m := &MTN{
		cfg:    cfg,
		client: newHTTPClient(KindMTN, cfg.BaseURL, mtnErrors, jsonCode("code"), o),
	}
	m.tokens = &tokenSource{now: o.Now, fetch: m.fetchToken}
	return m
}

func (m *MTN) Kind() Kind { return KindMTN }

type mtnToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (m *MTN) fetchToken(ctx context.Context) (string, time.Duration, error) {
	h := http.Header{}
	h.Set("Ocp-Apim-Subscription-Key", m.cfg.SubscriptionKey)
	h.Set("Authorization", basicAuth(m.cfg.APIUser, m.cfg.APIKey))

	var tok mtnToken
	if _, err := m.client.doJSON(ctx, http.MethodPost, "/collection/token/", h, nil, &tok); err != nil {
		return "", 0, err
	}
	if tok.AccessToken == "" {
		return "", 0, m.client.fail(CodeUnknown, fmt.Errorf("empty access token"))
	}
	return tok.AccessToken, time.Duration(tok.ExpiresIn) * time.Second, nil
}

func (m *MTN) headers(ctx context.Context) (http.Header, error) {
	tok, err := m.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	h.Set("Ocp-Apim-Subscription-Key", m.cfg.SubscriptionKey)
	h.Set("X-Target-Environment", m.cfg.TargetEnv)
	return h, nil
}

type mtnParty struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type mtnPayBody struct {
	Amount       string   `json:"amount"`
	Currency     string   `json:"currency"`
	ExternalID   string   `json:"externalId"`
	Payer        mtnParty `json:"payer"`
	PayerMessage string   `json:"payerMessage"`
	PayeeNote    string   `json:"payeeNote"`
}

type mtnTxn struct {
	Status                 string `json:"status"`
	TransactionID          string `json:"transaction_id"`
	FinancialTransactionID string `json:"financialTransactionId"`
	ExternalID             string `json:"externalId"`
	ReferenceID            string `json:"referenceId"`
	Reason                 any    `json:"reason"`
}

// NewReferenceID mints the X-Reference-Id a request-to-pay is tracked by.
func (m *MTN) NewReferenceID() string { return uuid.NewString() }

func (m *MTN) Pay(ctx context.Context, req PayRequest) (PayResult, error) {
	phone := FormatPhoneNumber(req.Recipient, PlanCI)
	if !IsValidMTNNumber(phone) {
		return PayResult{}, m.client.fail(CodeInvalidPhone, fmt.Errorf("rejected %q", phone))
	}
	amount, err := money.WholeMajor(req.Amount, req.Currency)
	if err != nil {
		return PayResult{}, m.client.fail(CodeInvalidAmount, err)
	}

	h, err := m.headers(ctx)
	if err != nil {
		return PayResult{}, err
	}
	refID := firstNonEmpty(req.ReferenceID, m.NewReferenceID())
	h.Set("X-Reference-Id", refID)
	if req.CallbackURL != "" {
		h.Set("X-Callback-Url", req.CallbackURL)
	}

	body := mtnPayBody{
		Amount:       amount,
		Currency:     strings.ToUpper(req.Currency),
		ExternalID:   req.PaymentID,
		Payer:        mtnParty{PartyIDType: "MSISDN", PartyID: strings.TrimPrefix(phone, "+")},
		PayerMessage: "Paiement commande " + req.OrderID,
		PayeeNote:    req.OrderID,
	}

	// 202 Accepted usually has an empty body
	var txn mtnTxn
	resp, err := m.client.doJSON(ctx, http.MethodPost, "/collection/v1_0/requesttopay", h, body, &txn)
	if err != nil {
		return PayResult{}, err
	}

	ref := firstNonEmpty(txn.TransactionID, txn.FinancialTransactionID, refID)
	status := mtnStatus(firstNonEmpty(txn.Status, "PENDING"))

	return PayResult{
		Success:              status != StatusFailed,
		ProviderStatus:       status,
		ProviderReference:    ref,
		RawResponse:          rawOrEmpty(resp.body),
		VerificationRequired: true,
		NextAction:           &NextAction{Type: "approve_on_phone"},
		Message:              "Veuillez confirmer le paiement sur votre téléphone MTN.",
	}, nil
}

func (m *MTN) CheckStatus(ctx context.Context, providerReference string) (StatusResult, error) {
	h, err := m.headers(ctx)
	if err != nil {
		return StatusResult{}, err
	}
	var txn mtnTxn
	resp, err := m.client.doJSON(ctx, http.MethodGet, "/collection/v1_0/requesttopay/"+url.PathEscape(providerReference), h, nil, &txn)
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{ProviderStatus: mtnStatus(txn.Status), RawResponse: rawOrEmpty(resp.body)}, nil
}

type mtnRefundBody struct {
	Amount              string `json:"amount"`
	Currency            string `json:"currency"`
	ExternalID          string `json:"externalId"`
	PayerMessage        string `json:"payerMessage"`
	PayeeNote           string `json:"payeeNote"`
	ReferenceIDToRefund string `json:"referenceIdToRefund"`
}

func (m *MTN) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	amount, err := money.WholeMajor(req.Amount, req.Currency)
	if err != nil {
		return RefundResult{}, m.client.fail(CodeInvalidAmount, err)
	}
	h, err := m.headers(ctx)
	if err != nil {
		return RefundResult{}, err
	}
	refID := uuid.NewString()
	h.Set("X-Reference-Id", refID)

	body := mtnRefundBody{
		Amount:              amount,
		Currency:            strings.ToUpper(req.Currency),
		ExternalID:          req.RefundID,
		PayerMessage:        "Remboursement",
		PayeeNote:           req.Reason,
		ReferenceIDToRefund: req.ProviderReference,
	}
	var txn mtnTxn
	resp, err := m.client.doJSON(ctx, http.MethodPost, "/collection/v1_0/refund", h, body, &txn)
	if err != nil {
		return RefundResult{}, err
	}
	status := mtnStatus(firstNonEmpty(txn.Status, "PENDING"))
	return RefundResult{
		Success:           status != StatusFailed,
		ProviderStatus:    status,
		ProviderReference: firstNonEmpty(txn.FinancialTransactionID, refID),
		RawResponse:       rawOrEmpty(resp.body),
	}, nil
}

func (m *MTN) VerifyAndParseWebhook(header http.Header, body []byte) (WebhookEvent, error) {
	if err := verifyBodySignature(m.cfg.CallbackSecret, body, header.Get(HeaderMTNSignature)); err != nil {
		return WebhookEvent{}, err
	}
	var txn mtnTxn
	if err := json.Unmarshal(body, &txn); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if txn.ExternalID == "" || txn.Status == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing externalId or status", ErrMalformedPayload)
	}
	return WebhookEvent{
		EventID:           eventDigest(body),
		PaymentID:         txn.ExternalID,
		ProviderReference: firstNonEmpty(txn.FinancialTransactionID, txn.ReferenceID),
		ProviderStatus:    mtnStatus(txn.Status),
		Raw:               json.RawMessage(body),
	}, nil
}

func mtnStatus(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING":
		return StatusPending
	case "SUCCESSFUL":
		return StatusSucceeded
	case "FAILED", "REJECTED":
		return StatusFailed
	case "TIMEOUT", "EXPIRED":
		return StatusCancelled
	}
	return s
}
