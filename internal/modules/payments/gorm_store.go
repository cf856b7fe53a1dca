package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/DrXenon2/BuySell-sub000/internal/modules/orders"
)

// GormStore persists payments, refunds and the webhook ledger in MySQL and
// mirrors payment status onto orders through the orders repository.
type GormStore struct {
	db     *gorm.DB
	orders *orders.Repo
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, orders: orders.NewRepo(db)}
}

// Models lists every table the store reads or writes, in migration order.
func Models() []any {
	return []any{
		&orders.Order{},
		&orders.OrderEvent{},
		&Payment{},
		&Refund{},
		&ProviderEvent{},
	}
}

func (s *GormStore) CreatePayment(ctx context.Context, p *Payment) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.RefundStatus == "" {
		p.RefundStatus = RefundNone
	}
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *GormStore) GetPayment(ctx context.Context, id string) (Payment, error) {
	var p Payment
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

func (s *GormStore) UpdatePayment(ctx context.Context, id string, patch PaymentPatch) error {
	upd := patch.columns()
	upd["updated_at"] = time.Now()
	return s.db.WithContext(ctx).
		Model(&Payment{}).
		Where("id = ?", id).
		Updates(upd).Error
}

func (s *GormStore) CreateRefund(ctx context.Context, r *Refund) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *GormStore) UpdateRefund(ctx context.Context, id string, patch RefundPatch) error {
	upd := patch.columns()
	upd["updated_at"] = time.Now()
	return s.db.WithContext(ctx).
		Model(&Refund{}).
		Where("id = ?", id).
		Updates(upd).Error
}

func (s *GormStore) UpdateOrderPaymentStatus(ctx context.Context, orderID, status string) error {
	return s.orders.UpdatePaymentStatus(ctx, orderID, status)
}

func (s *GormStore) RecordWebhookEvent(ctx context.Context, ev *ProviderEvent) (ProviderEvent, bool, error) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	err := s.db.WithContext(ctx).Create(ev).Error
	if err == nil {
		return *ev, true, nil
	}
	if !isDup(err) {
		return ProviderEvent{}, false, err
	}

	var existing ProviderEvent
	if err := s.db.WithContext(ctx).
		First(&existing, "provider = ? AND event_id = ?", ev.Provider, ev.EventID).Error; err != nil {
		return ProviderEvent{}, false, err
	}
	return existing, false, nil
}

func (s *GormStore) MarkWebhookEventProcessed(ctx context.Context, id string, processErr error) error {
	upd := map[string]any{}
	if processErr != nil {
		upd["process_error"] = truncate(processErr.Error(), 250)
	} else {
		upd["processed_at"] = time.Now()
		upd["process_error"] = nil
	}
	return s.db.WithContext(ctx).
		Model(&ProviderEvent{}).
		Where("id = ?", id).
		Updates(upd).Error
}

func isDup(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// sqlite, used by the tests
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
