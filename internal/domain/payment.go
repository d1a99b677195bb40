package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payment status values. Rejected is terminal for the row; the organization
// submits a fresh pending row after a rejection.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusRejected = "rejected"
)

// Payment methods accepted by the portal.
const (
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCard         = "card"
	PaymentMethodGateway      = "gateway"
)

// Payment is one membership-fee submission. Status is authoritative on the row
// (the one place status is stored directly rather than projected).
type Payment struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrgID           uuid.UUID      `gorm:"column:org_id;type:uuid;not null;index" json:"org_id"`
	AmountCents     int            `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Currency        string         `gorm:"column:currency;not null;default:'USD'" json:"currency"`
	Method          string         `gorm:"column:method;not null" json:"method"`
	ReceiptRef      *string        `gorm:"column:receipt_ref" json:"receipt_ref"`
	Status          string         `gorm:"column:status;not null;default:'pending'" json:"status"`
	ApprovedAt      *time.Time     `gorm:"column:approved_at" json:"approved_at"`
	RejectedAt      *time.Time     `gorm:"column:rejected_at" json:"rejected_at"`
	RejectionReason *string        `gorm:"column:rejection_reason" json:"rejection_reason"`
	GatewayEventID  *string        `gorm:"column:gateway_event_id;uniqueIndex" json:"gateway_event_id"`
	RawPayload      datatypes.JSON `gorm:"column:raw_payload;type:jsonb" json:"raw_payload"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func (Payment) TableName() string {
	return "Payments"
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
