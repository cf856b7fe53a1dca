package payments

import (
	"time"

	"gorm.io/datatypes"
)

type Payment struct {
	ID                 string         `gorm:"type:char(36);primaryKey"`
	OrderID            string         `gorm:"type:char(36);not null;index:ix_payments_order_id"`
	Amount             int64          `gorm:"not null"`
	Currency           string         `gorm:"type:char(3);not null"`
	PaymentMethod      string         `gorm:"type:varchar(32);not null"`
	Provider           string         `gorm:"type:varchar(32);not null"`
	Status             string         `gorm:"type:varchar(32);not null;index:ix_payments_status"`
	ProcessorReference *string        `gorm:"type:varchar(128);index:ix_payments_processor_reference"`
	ProcessorResponse  datatypes.JSON `gorm:"type:json"`
	TotalRefunded      int64          `gorm:"not null;default:0"`
	RefundStatus       string         `gorm:"type:varchar(32);not null;default:'none'"`
	ErrorMessage       *string        `gorm:"type:varchar(255)"`
	Metadata           datatypes.JSON `gorm:"type:json"`
	CreatedAt          time.Time      `gorm:"precision:3;not null"`
	UpdatedAt          time.Time      `gorm:"precision:3;not null"`
}

func (Payment) TableName() string { return "payments" }

func (p Payment) Reference() string {
	if p.ProcessorReference == nil {
		return ""
	}
	return *p.ProcessorReference
}

func (p Payment) IsCash() bool { return p.PaymentMethod == "cash" }

type Refund struct {
	ID        string `gorm:"type:char(36);primaryKey"`
	PaymentID string `gorm:"type:char(36);not null;index:ix_payment_refunds_payment_id"`
	OrderID   string `gorm:"type:char(36);not null;index:ix_payment_refunds_order_id"`

	Amount   int64   `gorm:"not null"`
	Currency string  `gorm:"type:char(3);not null"`
	Reason   *string `gorm:"type:varchar(255)"`
	Status   string  `gorm:"type:varchar(32);not null"`

	ProcessorReference *string        `gorm:"type:varchar(128)"`
	ProcessorResponse  datatypes.JSON `gorm:"type:json"`
	ErrorMessage       *string        `gorm:"type:varchar(255)"`
	ProcessedAt        *time.Time     `gorm:"precision:3"`

	CreatedAt time.Time `gorm:"precision:3;not null"`
	UpdatedAt time.Time `gorm:"precision:3;not null"`
}

func (Refund) TableName() string { return "payment_refunds" }

// ProviderEvent is the webhook ledger. (provider, event_id) is unique so a
// redelivered event is recognized before it is applied twice.
type ProviderEvent struct {
	ID             string         `gorm:"type:char(36);primaryKey"`
	Provider       string         `gorm:"type:varchar(32);not null;uniqueIndex:ux_provider_events_provider_event,priority:1"`
	EventID        string         `gorm:"type:varchar(128);not null;uniqueIndex:ux_provider_events_provider_event,priority:2"`
	PaymentID      string         `gorm:"type:varchar(64);not null;index:ix_provider_events_payment_id"`
	ProviderStatus string         `gorm:"type:varchar(64);not null"`
	PayloadJSON    datatypes.JSON `gorm:"type:json;not null"`

	ReceivedAt   time.Time  `gorm:"precision:3;not null"`
	ProcessedAt  *time.Time `gorm:"precision:3"`
	ProcessError *string    `gorm:"type:varchar(255)"`
}

func (ProviderEvent) TableName() string { return "provider_events" }
