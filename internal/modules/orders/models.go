package orders

import "time"

type Order struct {
	ID            string     `gorm:"type:char(36);primaryKey"`
	UserID        *string    `gorm:"type:char(36);index:ix_orders_user_id"`
	Status        string     `gorm:"type:varchar(32);not null"`
	PaymentStatus string     `gorm:"type:varchar(32);not null;default:'unpaid'"`
	TotalAmount   int64      `gorm:"not null"`
	Currency      string     `gorm:"type:char(3);not null"`
	PaidAt        *time.Time `gorm:"precision:3"`
	CreatedAt     time.Time  `gorm:"precision:3;not null"`
	UpdatedAt     time.Time  `gorm:"precision:3;not null"`
}

func (Order) TableName() string { return "orders" }

// OrderEvent is the audit trail of payment-status changes mirrored onto an order.
type OrderEvent struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	OrderID    string    `gorm:"type:char(36);not null;index:ix_order_events_order_id"`
	Action     string    `gorm:"type:varchar(32);not null"`
	FromStatus string    `gorm:"type:varchar(32);not null"`
	ToStatus   string    `gorm:"type:varchar(32);not null"`
	Note       *string   `gorm:"type:varchar(255)"`
	CreatedAt  time.Time `gorm:"precision:3;not null"`
}

func (OrderEvent) TableName() string { return "order_events" }
