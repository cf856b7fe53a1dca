package payments

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/DrXenon2/BuySell-sub000/internal/modules/providers"
)

type orderUpdate struct {
	OrderID string
	Status  string
}

// memStore is an in-memory Store that records order mirror calls.
type memStore struct {
	mu       sync.Mutex
	payments map[string]Payment
	refunds  map[string]Refund
	events   map[string]ProviderEvent // provider|event_id
	orders   []orderUpdate

	OrderErr  error
	UpdateErr error
}

func newMemStore() *memStore {
	return &memStore{
		payments: map[string]Payment{},
		refunds:  map[string]Refund{},
		events:   map[string]ProviderEvent{},
	}
}

func (m *memStore) CreatePayment(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.RefundStatus == "" {
		p.RefundStatus = RefundNone
	}
	m.payments[p.ID] = *p
	return nil
}

func (m *memStore) GetPayment(_ context.Context, id string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (m *memStore) UpdatePayment(_ context.Context, id string, patch PaymentPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	p, ok := m.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	patch.apply(&p)
	m.payments[id] = p
	return nil
}

func (m *memStore) CreateRefund(_ context.Context, r *Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds[r.ID] = *r
	return nil
}

func (m *memStore) UpdateRefund(_ context.Context, id string, patch RefundPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[id]
	if !ok {
		return ErrRefundNotFound
	}
	patch.apply(&r)
	m.refunds[id] = r
	return nil
}

func (m *memStore) UpdateOrderPaymentStatus(_ context.Context, orderID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OrderErr != nil {
		return m.OrderErr
	}
	m.orders = append(m.orders, orderUpdate{orderID, status})
	return nil
}

func (m *memStore) RecordWebhookEvent(_ context.Context, ev *ProviderEvent) (ProviderEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := ev.Provider + "|" + ev.EventID
	if existing, ok := m.events[k]; ok {
		return existing, false, nil
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	m.events[k] = *ev
	return *ev, true, nil
}

func (m *memStore) MarkWebhookEventProcessed(_ context.Context, id string, processErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, ev := range m.events {
		if ev.ID != id {
			continue
		}
		if processErr != nil {
			ev.ProcessError = ptr(processErr.Error())
		} else {
			ev.ProcessedAt = ptr(time.Now())
			ev.ProcessError = nil
		}
		m.events[k] = ev
		return nil
	}
	return errors.New("event not found")
}

func (m *memStore) payment(id string) Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id]
}

func (m *memStore) refundList() []Refund {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Refund, 0, len(m.refunds))
	for _, r := range m.refunds {
		out = append(out, r)
	}
	return out
}

func (m *memStore) orderUpdates() []orderUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]orderUpdate(nil), m.orders...)
}

func (m *memStore) seed(p Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.RefundStatus == "" {
		p.RefundStatus = RefundNone
	}
	m.payments[p.ID] = p
}

// MockAdapter is a providers.Adapter driven by per-call hooks.
type MockAdapter struct {
	KindValue         providers.Kind
	PayFunc           func(ctx context.Context, req providers.PayRequest) (providers.PayResult, error)
	CheckStatusFunc   func(ctx context.Context, ref string) (providers.StatusResult, error)
	RefundFunc        func(ctx context.Context, req providers.RefundRequest) (providers.RefundResult, error)
	VerifyWebhookFunc func(header http.Header, body []byte) (providers.WebhookEvent, error)

	mu          sync.Mutex
	PayCalls    int
	CheckCalls  int
	RefundCalls int
	LastPay     providers.PayRequest
	LastRefund  providers.RefundRequest
}

func (m *MockAdapter) Kind() providers.Kind { return m.KindValue }

func (m *MockAdapter) Pay(ctx context.Context, req providers.PayRequest) (providers.PayResult, error) {
	m.mu.Lock()
	m.PayCalls++
	m.LastPay = req
	m.mu.Unlock()
	if m.PayFunc != nil {
		return m.PayFunc(ctx, req)
	}
	return providers.PayResult{Success: true, ProviderStatus: providers.StatusPending}, nil
}

func (m *MockAdapter) CheckStatus(ctx context.Context, ref string) (providers.StatusResult, error) {
	m.mu.Lock()
	m.CheckCalls++
	m.mu.Unlock()
	if m.CheckStatusFunc != nil {
		return m.CheckStatusFunc(ctx, ref)
	}
	return providers.StatusResult{ProviderStatus: providers.StatusPending}, nil
}

func (m *MockAdapter) Refund(ctx context.Context, req providers.RefundRequest) (providers.RefundResult, error) {
	m.mu.Lock()
	m.RefundCalls++
	m.LastRefund = req
	m.mu.Unlock()
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, req)
	}
	return providers.RefundResult{Success: true, ProviderStatus: providers.StatusSucceeded, ProviderReference: "rf-" + req.RefundID}, nil
}

func (m *MockAdapter) VerifyAndParseWebhook(header http.Header, body []byte) (providers.WebhookEvent, error) {
	if m.VerifyWebhookFunc != nil {
		return m.VerifyWebhookFunc(header, body)
	}
	return providers.WebhookEvent{}, providers.ErrMalformedPayload
}

func newTestRegistry(adapters ...*MockAdapter) *providers.Registry {
	var a providers.Adapters
	for _, m := range adapters {
		switch m.KindValue {
		case providers.KindMTN:
			a.MTN = m
		case providers.KindOrange:
			a.Orange = m
		case providers.KindWave:
			a.Wave = m
		case providers.KindCard:
			a.Card = m
		}
	}
	return providers.NewRegistry(a)
}
