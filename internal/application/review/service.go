package review

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"assohub-backend/internal/application/events"
	"assohub-backend/internal/application/gate"
	"assohub-backend/internal/application/notify"
	"assohub-backend/internal/application/projector"
	"assohub-backend/internal/domain"
	"assohub-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EmailWarning is surfaced to the initiating admin when a state change
// committed but its email could not be delivered.
const EmailWarning = "State change saved, but the notification email failed to send; it is logged for resend"

// Service is the transition executor: the only component that mutates
// document, payment and organization state. Each command runs as one
// transaction that re-checks the gate, updates the cached status columns,
// appends the notification events and records the email outbox rows; emails
// are dispatched after commit and never fail the command.
type Service struct {
	DB     *gorm.DB
	Notify *notify.Dispatcher // nil = no outbound email (events still recorded)
}

// ApprovePaymentResult reports what the approval did.
type ApprovePaymentResult struct {
	Payment   *domain.Payment `json:"payment"`
	Activated bool            `json:"activated"`
	Warning   string          `json:"warning,omitempty"`
}

// RejectPaymentResult reports the rejection plus any delivery warning.
type RejectPaymentResult struct {
	Payment *domain.Payment `json:"payment"`
	Warning string          `json:"warning,omitempty"`
}

// RejectDocumentResult reports the rejection plus any delivery warning.
type RejectDocumentResult struct {
	Document *domain.Document `json:"document"`
	Warning  string           `json:"warning,omitempty"`
}

func loadOrg(tx *gorm.DB, orgID uuid.UUID) (*domain.Organization, error) {
	var org domain.Organization
	if err := tx.Where("org_id = ?", orgID).First(&org).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

func loadDoc(tx *gorm.DB, orgID uuid.UUID, slotKey string) (*domain.Document, error) {
	var doc domain.Document
	if err := tx.Where("org_id = ? AND slot_key = ?", orgID, slotKey).First(&doc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// projectSlots re-derives every slot's status from the event log through the
// transaction handle, so the gate sees exactly what this transaction sees.
func projectSlots(tx *gorm.DB, orgID uuid.UUID) ([]projector.SlotProjection, error) {
	var evs []domain.NotificationEvent
	if err := tx.Where("org_id = ?", orgID).Order("created_at ASC").Find(&evs).Error; err != nil {
		return nil, err
	}
	var docs []domain.Document
	if err := tx.Where("org_id = ?", orgID).Find(&docs).Error; err != nil {
		return nil, err
	}
	return projector.ProjectSlots(evs, docs), nil
}

// queueEmail writes a durable outbox row inside the transaction and returns
// its id for post-commit dispatch.
func queueEmail(tx *gorm.DB, org *domain.Organization, kind string, data map[string]interface{}) (uuid.UUID, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return uuid.Nil, err
	}
	row := &domain.EmailOutbox{
		OrgID:        org.OrgID,
		Kind:         kind,
		Recipient:    org.ContactEmail,
		TemplateData: datatypes.JSON(payload),
		Status:       domain.OutboxStatusPending,
	}
	if err := tx.Create(row).Error; err != nil {
		return uuid.Nil, err
	}
	return row.ID, nil
}

// dispatchQueued sends the outbox rows created by a committed command.
// Failures are logged and reduced to a warning string; they never surface as
// command errors.
func (s *Service) dispatchQueued(ctx context.Context, outboxIDs []uuid.UUID) string {
	if s.Notify == nil || len(outboxIDs) == 0 {
		return ""
	}
	warning := ""
	for _, id := range outboxIDs {
		if err := s.Notify.DispatchByID(ctx, id); err != nil {
			log.Warn().Err(err).Str("outbox_id", id.String()).Msg("notification email delivery failed")
			warning = EmailWarning
		}
	}
	return warning
}

// ApproveDocument clears the slot's rejection reason and appends a
// document_approved event. No precondition beyond the slot existing; approving
// an already-approved slot appends a fresh event without changing the observed
// status. No email is sent for document approvals.
func (s *Service) ApproveDocument(ctx context.Context, orgID uuid.UUID, slotKey, reviewer string) (*domain.Document, error) {
	slot, ok := domain.SlotByKey(slotKey)
	if !ok {
		return nil, ErrUnknownSlot
	}

	var doc *domain.Document
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadOrg(tx, orgID); err != nil {
			return err
		}
		var err error
		doc, err = loadDoc(tx, orgID, slotKey)
		if err != nil {
			return err
		}

		now := time.Now()
		doc.Status = domain.DocStatusApproved
		doc.RejectionReason = nil
		doc.ReviewedBy = &reviewer
		doc.ReviewedAt = &now
		if err := tx.Save(doc).Error; err != nil {
			return err
		}

		return events.Append(tx, &domain.NotificationEvent{
			OrgID:    orgID,
			Kind:     domain.EventDocumentApproved,
			SlotKey:  &doc.SlotKey,
			Title:    fmt.Sprintf("%s approved", slot.DisplayName),
			Message:  fmt.Sprintf("Your %s has been reviewed and approved.", slot.DisplayName),
			Audience: domain.AudienceOrganization,
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// RejectDocument stores the required reason, appends a document_rejected event
// for the organization plus a staff-facing audit copy, and queues the
// rejection email.
func (s *Service) RejectDocument(ctx context.Context, orgID uuid.UUID, slotKey, reason, reviewer string) (*RejectDocumentResult, error) {
	slot, ok := domain.SlotByKey(slotKey)
	if !ok {
		return nil, ErrUnknownSlot
	}
	if !validation.IsNonEmptyReason(reason) {
		return nil, &ValidationError{Msg: "Rejection reason is required"}
	}

	var doc *domain.Document
	var outboxIDs []uuid.UUID
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := loadOrg(tx, orgID)
		if err != nil {
			return err
		}
		doc, err = loadDoc(tx, orgID, slotKey)
		if err != nil {
			return err
		}

		now := time.Now()
		doc.Status = domain.DocStatusRejected
		doc.RejectionReason = &reason
		doc.ReviewedBy = &reviewer
		doc.ReviewedAt = &now
		if err := tx.Save(doc).Error; err != nil {
			return err
		}

		title := fmt.Sprintf("%s rejected", slot.DisplayName)
		msg := fmt.Sprintf("Your %s was rejected: %s. Please upload a corrected file.", slot.DisplayName, reason)
		if err := events.Append(tx, &domain.NotificationEvent{
			OrgID:    orgID,
			Kind:     domain.EventDocumentRejected,
			SlotKey:  &doc.SlotKey,
			Title:    title,
			Message:  msg,
			Audience: domain.AudienceOrganization,
		}); err != nil {
			return err
		}
		// Staff audit copy of the same event
		if err := events.Append(tx, &domain.NotificationEvent{
			OrgID:    orgID,
			Kind:     domain.EventDocumentRejected,
			SlotKey:  &doc.SlotKey,
			Title:    title,
			Message:  fmt.Sprintf("%s rejected for %s by %s: %s", slot.DisplayName, org.OrgName, reviewer, reason),
			Audience: domain.AudienceStaff,
		}); err != nil {
			return err
		}

		id, err := queueEmail(tx, org, domain.EmailDocumentRejected, map[string]interface{}{
			"org_name":  org.OrgName,
			"slot_name": slot.DisplayName,
			"reason":    reason,
		})
		if err != nil {
			return err
		}
		outboxIDs = append(outboxIDs, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &RejectDocumentResult{
		Document: doc,
		Warning:  s.dispatchQueued(ctx, outboxIDs),
	}, nil
}

// ApprovePayment approves a pending payment if every populated document slot
// is approved, then activates the organization in the same transaction when
// this is its governing payment and it is not already approved. Activation
// appends exactly one organization_activated event.
func (s *Service) ApprovePayment(ctx context.Context, orgID, paymentID uuid.UUID, reviewer string) (*ApprovePaymentResult, error) {
	var payment *domain.Payment
	var activated bool
	var outboxIDs []uuid.UUID

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := loadOrg(tx, orgID)
		if err != nil {
			return err
		}

		var p domain.Payment
		if err := tx.Where("id = ? AND org_id = ?", paymentID, orgID).First(&p).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrPaymentNotFound
			}
			return err
		}
		if p.Status != domain.PaymentStatusPending {
			return ErrPaymentNotPending
		}

		// Gate check against the log as this transaction sees it
		slots, err := projectSlots(tx, orgID)
		if err != nil {
			return err
		}
		if ok, blocking := gate.CanApprovePayment(slots); !ok {
			return &GateViolationError{Blocking: blocking}
		}

		now := time.Now()
		p.Status = domain.PaymentStatusApproved
		p.ApprovedAt = &now
		if err := tx.Save(&p).Error; err != nil {
			return err
		}
		payment = &p

		if err := events.Append(tx, &domain.NotificationEvent{
			OrgID:     orgID,
			Kind:      domain.EventPaymentApproved,
			PaymentID: &p.ID,
			Title:     "Payment approved",
			Message:   "Your membership payment has been verified and approved.",
			Audience:  domain.AudienceOrganization,
		}); err != nil {
			return err
		}

		id, err := queueEmail(tx, org, domain.EmailPaymentApproved, map[string]interface{}{
			"org_name":     org.OrgName,
			"amount_cents": p.AmountCents,
			"currency":     p.Currency,
		})
		if err != nil {
			return err
		}
		outboxIDs = append(outboxIDs, id)

		// Cascade: activation is part of this transition, not a separate action
		var latest domain.Payment
		if err := tx.Where("org_id = ?", orgID).Order("created_at DESC").First(&latest).Error; err != nil {
			return err
		}
		if !gate.CanActivateOrganization(org, p.ID, latest.ID) {
			return nil
		}

		org.Status = domain.OrgStatusApproved
		org.ActivatedAt = &now
		if err := tx.Save(org).Error; err != nil {
			return err
		}
		activated = true

		if err := events.Append(tx, &domain.NotificationEvent{
			OrgID:    orgID,
			Kind:     domain.EventOrganizationActivated,
			Title:    "Membership activated",
			Message:  fmt.Sprintf("%s is now an active member. Welcome aboard!", org.OrgName),
			Audience: domain.AudienceOrganization,
		}); err != nil {
			return err
		}

		id, err = queueEmail(tx, org, domain.EmailOrganizationActivated, map[string]interface{}{
			"org_name": org.OrgName,
		})
		if err != nil {
			return err
		}
		outboxIDs = append(outboxIDs, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ApprovePaymentResult{
		Payment:   payment,
		Activated: activated,
		Warning:   s.dispatchQueued(ctx, outboxIDs),
	}, nil
}

// RejectPayment marks a pending payment rejected with the required reason.
// Rejection never touches document statuses or the organization status; the
// email is opt-in via notifyByEmail.
func (s *Service) RejectPayment(ctx context.Context, orgID, paymentID uuid.UUID, reason string, notifyByEmail bool) (*RejectPaymentResult, error) {
	if !validation.IsNonEmptyReason(reason) {
		return nil, &ValidationError{Msg: "Rejection reason is required"}
	}

	var payment *domain.Payment
	var outboxIDs []uuid.UUID
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := loadOrg(tx, orgID)
		if err != nil {
			return err
		}

		var p domain.Payment
		if err := tx.Where("id = ? AND org_id = ?", paymentID, orgID).First(&p).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrPaymentNotFound
			}
			return err
		}
		if p.Status != domain.PaymentStatusPending {
			return ErrPaymentNotPending
		}

		now := time.Now()
		p.Status = domain.PaymentStatusRejected
		p.RejectedAt = &now
		p.RejectionReason = &reason
		if err := tx.Save(&p).Error; err != nil {
			return err
		}
		payment = &p

		if err := events.Append(tx, &domain.NotificationEvent{
			OrgID:     orgID,
			Kind:      domain.EventPaymentRejected,
			PaymentID: &p.ID,
			Title:     "Payment rejected",
			Message:   fmt.Sprintf("Your membership payment was rejected: %s. Please submit a new payment.", reason),
			Audience:  domain.AudienceOrganization,
		}); err != nil {
			return err
		}

		if notifyByEmail {
			id, err := queueEmail(tx, org, domain.EmailPaymentRejected, map[string]interface{}{
				"org_name": org.OrgName,
				"reason":   reason,
			})
			if err != nil {
				return err
			}
			outboxIDs = append(outboxIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &RejectPaymentResult{
		Payment: payment,
		Warning: s.dispatchQueued(ctx, outboxIDs),
	}, nil
}

// MarkDocumentReuploaded replaces the slot's artifact after a rejection,
// resets the cached status to pending (not approved) and appends a
// document_reuploaded event for staff re-review.
func (s *Service) MarkDocumentReuploaded(ctx context.Context, orgID uuid.UUID, slotKey, artifactRef string) (*domain.Document, error) {
	slot, ok := domain.SlotByKey(slotKey)
	if !ok {
		return nil, ErrUnknownSlot
	}
	if artifactRef == "" {
		return nil, &ValidationError{Msg: "Artifact reference is required"}
	}

	var doc *domain.Document
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := loadOrg(tx, orgID)
		if err != nil {
			return err
		}
		doc, err = loadDoc(tx, orgID, slotKey)
		if err != nil {
			return err
		}

		doc.ArtifactRef = &artifactRef
		doc.Status = domain.DocStatusPending
		doc.RejectionReason = nil
		doc.ReuploadCount++
		if err := tx.Save(doc).Error; err != nil {
			return err
		}

		return events.Append(tx, &domain.NotificationEvent{
			OrgID:    orgID,
			Kind:     domain.EventDocumentReuploaded,
			SlotKey:  &doc.SlotKey,
			Title:    fmt.Sprintf("%s re-uploaded", slot.DisplayName),
			Message:  fmt.Sprintf("%s uploaded a new %s for review.", org.OrgName, slot.DisplayName),
			Audience: domain.AudienceStaff,
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}
