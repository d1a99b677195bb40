package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Email kinds sent by the dispatcher.
const (
	EmailDocumentRejected      = "document_rejected"
	EmailPaymentApproved       = "payment_approved"
	EmailPaymentRejected       = "payment_rejected"
	EmailOrganizationActivated = "organization_activated"
)

// Email delivery outcomes.
const (
	EmailOutcomeSent   = "sent"
	EmailOutcomeFailed = "failed"
)

// Outbox row statuses.
const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

// EmailOutbox is the durable intent-to-notify, written in the same transaction
// as the state change it announces. The dispatcher drains it after commit;
// failed rows stay for manual resend.
type EmailOutbox struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrgID        uuid.UUID      `gorm:"column:org_id;type:uuid;not null;index" json:"org_id"`
	Kind         string         `gorm:"column:kind;not null" json:"kind"`
	Recipient    string         `gorm:"column:recipient;not null" json:"recipient"`
	TemplateData datatypes.JSON `gorm:"column:template_data;type:jsonb" json:"template_data"`
	Status       string         `gorm:"column:status;not null;default:'pending';index" json:"status"`
	Attempts     int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError    *string        `gorm:"column:last_error" json:"last_error"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func (EmailOutbox) TableName() string {
	return "EmailOutbox"
}

func (o *EmailOutbox) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// EmailLog is one row per delivery attempt, never mutated after insert.
// Retries of the same logical email add further rows.
type EmailLog struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrgID     uuid.UUID      `gorm:"column:org_id;type:uuid;not null;index" json:"org_id"`
	Kind      string         `gorm:"column:kind;not null" json:"kind"`
	Recipient string         `gorm:"column:recipient;not null" json:"recipient"`
	Outcome   string         `gorm:"column:outcome;not null" json:"outcome"`
	Error     *string        `gorm:"column:error" json:"error"`
	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (EmailLog) TableName() string {
	return "EmailLogs"
}

func (l *EmailLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
