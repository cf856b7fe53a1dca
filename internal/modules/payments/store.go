package payments

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
)

// Store is everything the payment services need from persistence.
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	// GetPayment returns ErrPaymentNotFound for an unknown id.
	GetPayment(ctx context.Context, id string) (Payment, error)
	UpdatePayment(ctx context.Context, id string, patch PaymentPatch) error

	CreateRefund(ctx context.Context, r *Refund) error
	UpdateRefund(ctx context.Context, id string, patch RefundPatch) error

	UpdateOrderPaymentStatus(ctx context.Context, orderID, status string) error

	// RecordWebhookEvent inserts ev into the ledger. When (provider,
	// event_id) already exists it returns the stored row and created=false.
	RecordWebhookEvent(ctx context.Context, ev *ProviderEvent) (stored ProviderEvent, created bool, err error)
	// MarkWebhookEventProcessed stamps processed_at, or records processErr
	// and leaves the event unprocessed so a redelivery is applied again.
	MarkWebhookEventProcessed(ctx context.Context, id string, processErr error) error
}

// PaymentPatch holds the columns to change; nil fields are left alone.
type PaymentPatch struct {
	Status             *string
	ProcessorReference *string
	ProcessorResponse  datatypes.JSON
	TotalRefunded      *int64
	RefundStatus       *string
	ErrorMessage       *string
	ClearError         bool
}

func (p PaymentPatch) columns() map[string]any {
	m := map[string]any{}
	if p.Status != nil {
		m["status"] = *p.Status
	}
	if p.ProcessorReference != nil {
		m["processor_reference"] = *p.ProcessorReference
	}
	if len(p.ProcessorResponse) > 0 {
		m["processor_response"] = p.ProcessorResponse
	}
	if p.TotalRefunded != nil {
		m["total_refunded"] = *p.TotalRefunded
	}
	if p.RefundStatus != nil {
		m["refund_status"] = *p.RefundStatus
	}
	if p.ErrorMessage != nil {
		m["error_message"] = truncate(*p.ErrorMessage, 255)
	} else if p.ClearError {
		m["error_message"] = nil
	}
	return m
}

// apply mirrors columns() onto an in-memory record.
func (p PaymentPatch) apply(pay *Payment) {
	if p.Status != nil {
		pay.Status = *p.Status
	}
	if p.ProcessorReference != nil {
		pay.ProcessorReference = ptr(*p.ProcessorReference)
	}
	if len(p.ProcessorResponse) > 0 {
		pay.ProcessorResponse = p.ProcessorResponse
	}
	if p.TotalRefunded != nil {
		pay.TotalRefunded = *p.TotalRefunded
	}
	if p.RefundStatus != nil {
		pay.RefundStatus = *p.RefundStatus
	}
	if p.ErrorMessage != nil {
		pay.ErrorMessage = ptr(truncate(*p.ErrorMessage, 255))
	} else if p.ClearError {
		pay.ErrorMessage = nil
	}
}

type RefundPatch struct {
	Status             *string
	ProcessorReference *string
	ProcessorResponse  datatypes.JSON
	ErrorMessage       *string
	ProcessedAt        *time.Time
}

func (p RefundPatch) columns() map[string]any {
	m := map[string]any{}
	if p.Status != nil {
		m["status"] = *p.Status
	}
	if p.ProcessorReference != nil {
		m["processor_reference"] = *p.ProcessorReference
	}
	if len(p.ProcessorResponse) > 0 {
		m["processor_response"] = p.ProcessorResponse
	}
	if p.ErrorMessage != nil {
		m["error_message"] = truncate(*p.ErrorMessage, 255)
	}
	if p.ProcessedAt != nil {
		m["processed_at"] = *p.ProcessedAt
	}
	return m
}

func (p RefundPatch) apply(r *Refund) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.ProcessorReference != nil {
		r.ProcessorReference = ptr(*p.ProcessorReference)
	}
	if len(p.ProcessorResponse) > 0 {
		r.ProcessorResponse = p.ProcessorResponse
	}
	if p.ErrorMessage != nil {
		r.ErrorMessage = ptr(truncate(*p.ErrorMessage, 255))
	}
	if p.ProcessedAt != nil {
		t := *p.ProcessedAt
		r.ProcessedAt = &t
	}
}

func ptr[T any](v T) *T { return &v }

// truncate keeps at most n characters (varchar lengths count characters)
// and drops invalid UTF-8, which strict utf8mb4 columns reject.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
