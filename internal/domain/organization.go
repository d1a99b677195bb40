package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization status values. Approved is only ever set by the payment-approval
// cascade in the review service, never directly.
const (
	OrgStatusNone     = "none"
	OrgStatusPending  = "pending"
	OrgStatusApproved = "approved"
	OrgStatusRejected = "rejected"
)

// Organization is one registrant. Document and payment state live in their own
// tables; the status column here only tracks the activation lifecycle.
type Organization struct {
	OrgID          uuid.UUID      `gorm:"column:org_id;type:uuid;primaryKey" json:"org_id"`
	OrgName        string         `gorm:"column:org_name;not null;uniqueIndex" json:"org_name"`
	RegistrationNo *string        `gorm:"column:registration_no" json:"registration_no"`
	ContactEmail   string         `gorm:"column:contact_email;not null" json:"contact_email"`
	ContactPhone   *string        `gorm:"column:contact_phone" json:"contact_phone"`
	Address        *string        `gorm:"column:address" json:"address"`
	CountryCode    string         `gorm:"column:country_code;type:char(2);not null" json:"country_code"`
	Status         string         `gorm:"column:status;not null;default:'pending'" json:"status"`
	ActivatedAt    *time.Time     `gorm:"column:activated_at" json:"activated_at"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Organization) TableName() string {
	return "Organizations"
}

// BeforeCreate ensures org_id is set for DBs without default uuid.
func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.OrgID == uuid.Nil {
		o.OrgID = uuid.New()
	}
	return nil
}
