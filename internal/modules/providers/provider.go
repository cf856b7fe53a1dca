// Package providers holds one adapter per external payment API (MTN MoMo,
// Orange Money, Wave, Stripe) and the registry that picks among them.
//
// Adapters translate a canonical request into the provider's HTTP call and
// the provider's answer back into the canonical status vocabulary
// (pending, processing, succeeded, failed, cancelled, requires_action,
// requires_confirmation). Statuses an adapter does not recognise are passed
// through untouched so that the caller's canonical table fails them closed.
package providers

import (
	"context"
	"encoding/json"
	"net/http"
)

// Kind is the closed set of provider integrations.
type Kind string

const (
	KindMTN    Kind = "mtn"
	KindOrange Kind = "orange"
	KindWave   Kind = "wave"
	KindCard   Kind = "stripe"
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindMTN, KindOrange, KindWave, KindCard:
		return Kind(s), true
	}
	return "", false
}

// provider status vocabulary shared with the orchestrator
const (
	StatusPending              = "pending"
	StatusProcessing           = "processing"
	StatusSucceeded            = "succeeded"
	StatusFailed               = "failed"
	StatusCancelled            = "cancelled"
	StatusRequiresAction       = "requires_action"
	StatusRequiresConfirmation = "requires_confirmation"
)

type NextAction struct {
	Type string `json:"type"` // redirect|approve_on_phone
	URL  string `json:"url,omitempty"`
}

type PayRequest struct {
	PaymentID   string
	OrderID     string
	Amount      int64 // minor units
	Currency    string
	Recipient   string // phone number (mobile money) or payment-method token (card)
	CallbackURL string
	ReturnURL   string
	Metadata    map[string]string
	Country     string // ISO-3166 alpha-2, picks the phone numbering plan
	// ReferenceID is a caller-assigned transaction key, set for adapters that
	// implement ReferenceAssigner.
	ReferenceID string
}

type PayResult struct {
	Success              bool
	ProviderStatus       string
	ProviderReference    string
	RawResponse          json.RawMessage
	VerificationRequired bool
	NextAction           *NextAction
	Message              string
}

type StatusResult struct {
	ProviderStatus string
	RawResponse    json.RawMessage
}

type RefundRequest struct {
	RefundID          string
	ProviderReference string
	Amount            int64
	OriginalAmount    int64
	Currency          string
	Reason            string
}

type RefundResult struct {
	Success           bool
	ProviderStatus    string
	ProviderReference string
	RawResponse       json.RawMessage
}

// WebhookEvent is what an adapter extracts from a verified provider callback.
type WebhookEvent struct {
	EventID           string // provider event id, or a digest of the body when the provider sends none
	PaymentID         string // our payment id, echoed back by the provider
	ProviderReference string
	ProviderStatus    string
	Raw               json.RawMessage
}

// ReferenceAssigner is implemented by adapters whose transactions are keyed
// by an id the caller picks before Pay. Storing it up front lets a payment
// whose Pay call timed out still be polled with CheckStatus.
type ReferenceAssigner interface {
	NewReferenceID() string
}

type Adapter interface {
	Kind() Kind
	Pay(ctx context.Context, req PayRequest) (PayResult, error)
	// CheckStatus must be free of local side effects; it may be called any number of times.
	CheckStatus(ctx context.Context, providerReference string) (StatusResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)

	// Webhook: verify signature + parse event
	VerifyAndParseWebhook(header http.Header, body []byte) (WebhookEvent, error)
}
