package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	StatusCreated = "created"
	StatusPaid    = "paid"

	actionPaymentStatus = "payment_status"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	var o Order
	if err := r.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	return o, nil
}

// UpdatePaymentStatus mirrors a payment's canonical status onto its order.
// Writing the status the order already carries is a no-op, so replays leave
// no extra audit rows.
func (r *Repo) UpdatePaymentStatus(ctx context.Context, orderID, paymentStatus string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o Order
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&o, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		from := o.PaymentStatus
		if from == paymentStatus {
			return nil
		}

		now := time.Now()
		updates := map[string]any{
			"payment_status": paymentStatus,
			"updated_at":     now,
		}
		// a settled payment moves a fresh order to paid
		if paymentStatus == "succeeded" && o.Status == StatusCreated {
			updates["status"] = StatusPaid
			if o.PaidAt == nil {
				updates["paid_at"] = now
			}
		}

		if err := tx.WithContext(ctx).
			Model(&Order{}).
			Where("id = ? AND payment_status = ?", o.ID, from). // optimistic guard
			Updates(updates).Error; err != nil {
			return err
		}

		ev := OrderEvent{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			Action:     actionPaymentStatus,
			FromStatus: from,
			ToStatus:   paymentStatus,
			CreatedAt:  now,
		}
		return tx.WithContext(ctx).Create(&ev).Error
	})
}

func (r *Repo) ListEvents(ctx context.Context, orderID string) ([]OrderEvent, error) {
	var out []OrderEvent
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&out, "order_id = ?", orderID).Error
	return out, err
}
