package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification event kinds.
const (
	EventDocumentApproved      = "document_approved"
	EventDocumentRejected      = "document_rejected"
	EventDocumentReuploaded    = "document_reuploaded"
	EventPaymentApproved       = "payment_approved"
	EventPaymentRejected       = "payment_rejected"
	EventOrganizationActivated = "organization_activated"
	EventInfo                  = "info"
)

// Notification audiences.
const (
	AudienceOrganization = "organization"
	AudienceStaff        = "staff"
)

// NotificationEvent is the append-only event log, the source of truth for
// status history. Rows are immutable after insert except for the read flag.
// Correlation is by explicit slot_key / payment_id references; titles are
// human text only.
type NotificationEvent struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrgID        uuid.UUID  `gorm:"column:org_id;type:uuid;not null;index" json:"org_id"`
	Kind         string     `gorm:"column:kind;not null;index" json:"kind"`
	SlotKey      *string    `gorm:"column:slot_key" json:"slot_key"`
	PaymentID    *uuid.UUID `gorm:"column:payment_id;type:uuid" json:"payment_id"`
	Title        string     `gorm:"column:title;not null" json:"title"`
	Message      string     `gorm:"column:message" json:"message"`
	Audience     string     `gorm:"column:audience;not null;default:'organization'" json:"audience"`
	IsRead       bool       `gorm:"column:is_read;not null;default:false" json:"is_read"`
	ScheduledFor *time.Time `gorm:"column:scheduled_for" json:"scheduled_for"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func (NotificationEvent) TableName() string {
	return "NotificationEvents"
}

func (n *NotificationEvent) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
