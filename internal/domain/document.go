package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document status values. The stored column is a cache maintained in the same
// transaction as each event write; the event log remains the audit trail and
// the projector can re-derive the same value from it.
const (
	DocStatusNotUploaded = "not_uploaded"
	DocStatusPending     = "pending"
	DocStatusApproved    = "approved"
	DocStatusRejected    = "rejected"
)

// Document is one slot of one organization: (org_id, slot_key) is unique.
type Document struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrgID           uuid.UUID  `gorm:"column:org_id;type:uuid;not null;uniqueIndex:idx_documents_org_slot" json:"org_id"`
	SlotKey         string     `gorm:"column:slot_key;not null;uniqueIndex:idx_documents_org_slot" json:"slot_key"`
	ArtifactRef     *string    `gorm:"column:artifact_ref" json:"artifact_ref"`
	Status          string     `gorm:"column:status;not null;default:'not_uploaded'" json:"status"`
	RejectionReason *string    `gorm:"column:rejection_reason" json:"rejection_reason"`
	ReuploadCount   int        `gorm:"column:reupload_count;not null;default:0" json:"reupload_count"`
	ReviewedBy      *string    `gorm:"column:reviewed_by" json:"reviewed_by"`
	ReviewedAt      *time.Time `gorm:"column:reviewed_at" json:"reviewed_at"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (Document) TableName() string {
	return "Documents"
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Populated reports whether an artifact has ever been attached to the slot.
func (d *Document) Populated() bool {
	return d.ArtifactRef != nil && *d.ArtifactRef != ""
}
