package registry

import (
	"context"
	"errors"
	"strings"

	"assohub-backend/internal/application/events"
	"assohub-backend/internal/application/projector"
	"assohub-backend/internal/application/review"
	"assohub-backend/internal/domain"
	"assohub-backend/internal/pkg/constants"
	"assohub-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrOrganizationNotFound = errors.New("Organization not found")
	ErrUnknownSlot          = errors.New("Unknown document slot")
	ErrPendingPaymentExists = errors.New("A payment is already pending review")
)

// Service handles organization onboarding: registration, document submission
// and payment submission. Review decisions live in the review service; this
// side only ever moves slots to pending.
type Service struct {
	DB     *gorm.DB
	Review *review.Service
}

// CreateOrganizationInput is the registration payload.
type CreateOrganizationInput struct {
	OrgName        string  `json:"org_name"`
	CountryCode    string  `json:"country_code"`
	ContactEmail   string  `json:"contact_email"`
	ContactPhone   *string `json:"contact_phone"`
	Address        *string `json:"address"`
	RegistrationNo *string `json:"registration_no"`
}

// CreateOrganization registers an organization in pending status, creates its
// eight empty document slots, attaches the creating user as the organization's
// member contact and records a welcome event.
func (s *Service) CreateOrganization(ctx context.Context, in CreateOrganizationInput, userID uuid.UUID) (*domain.Organization, error) {
	if strings.TrimSpace(in.OrgName) == "" || in.CountryCode == "" || in.ContactEmail == "" {
		return nil, errors.New("org_name, country_code and contact_email are required")
	}
	if !validation.IsValidCountryCode(in.CountryCode) {
		return nil, errors.New("Invalid country code")
	}
	if !validation.IsValidEmail(in.ContactEmail) {
		return nil, errors.New("Invalid contact email")
	}

	org := &domain.Organization{
		OrgID:          uuid.New(),
		OrgName:        strings.TrimSpace(in.OrgName),
		CountryCode:    strings.ToUpper(in.CountryCode),
		ContactEmail:   strings.TrimSpace(strings.ToLower(in.ContactEmail)),
		ContactPhone:   in.ContactPhone,
		Address:        in.Address,
		RegistrationNo: in.RegistrationNo,
		Status:         domain.OrgStatusPending,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			return err
		}
		for _, slot := range domain.Slots {
			if err := tx.Create(&domain.Document{
				OrgID:   org.OrgID,
				SlotKey: slot.Key,
				Status:  domain.DocStatusNotUploaded,
			}).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&domain.User{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"org_id": org.OrgID,
				"role":   constants.Member,
			}).Error; err != nil {
			return err
		}
		return events.Append(tx, &domain.NotificationEvent{
			OrgID:    org.OrgID,
			Kind:     domain.EventInfo,
			Title:    "Registration started",
			Message:  "Welcome! Upload your registration documents and submit your membership payment to complete registration.",
			Audience: domain.AudienceOrganization,
		})
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// OrganizationView is the read-path shape: the organization plus its slot
// projections (re-derived from the event log), derived status and payments.
type OrganizationView struct {
	Organization  *domain.Organization       `json:"organization"`
	DerivedStatus string                     `json:"derived_status"`
	Slots         []projector.SlotProjection `json:"slots"`
	Payments      []domain.Payment           `json:"payments"`
}

// GetOrganization loads the organization and projects current slot statuses
// from the event log (rather than trusting the cached columns).
func (s *Service) GetOrganization(ctx context.Context, orgID uuid.UUID) (*OrganizationView, error) {
	if orgID == uuid.Nil {
		return nil, errors.New("Missing org_id")
	}
	var org domain.Organization
	if err := s.DB.WithContext(ctx).Where("org_id = ?", orgID).First(&org).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrOrganizationNotFound
		}
		return nil, err
	}

	var evs []domain.NotificationEvent
	if err := s.DB.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&evs).Error; err != nil {
		return nil, err
	}
	var docs []domain.Document
	if err := s.DB.WithContext(ctx).Where("org_id = ?", orgID).Find(&docs).Error; err != nil {
		return nil, err
	}
	var payments []domain.Payment
	if err := s.DB.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Find(&payments).Error; err != nil {
		return nil, err
	}

	slots := projector.ProjectSlots(evs, docs)
	var latest *domain.Payment
	if len(payments) > 0 {
		latest = &payments[0]
	}
	return &OrganizationView{
		Organization:  &org,
		DerivedStatus: projector.ProjectOrganization(&org, slots, latest),
		Slots:         slots,
		Payments:      payments,
	}, nil
}

// UpdateOrganization updates allowed contact fields.
func (s *Service) UpdateOrganization(ctx context.Context, orgID uuid.UUID, fields map[string]interface{}) (*domain.Organization, error) {
	if orgID == uuid.Nil {
		return nil, errors.New("Missing org_id")
	}
	if len(fields) == 0 {
		return nil, errors.New("No update fields provided")
	}

	allowed := map[string]bool{
		"org_name":        true,
		"country_code":    true,
		"contact_email":   true,
		"contact_phone":   true,
		"address":         true,
		"registration_no": true,
	}
	valid := make(map[string]interface{})
	for k, v := range fields {
		if allowed[k] {
			valid[k] = v
		}
	}
	if len(valid) == 0 {
		return nil, errors.New("No valid fields to update")
	}
	if e, ok := valid["contact_email"].(string); ok {
		if !validation.IsValidEmail(e) {
			return nil, errors.New("Invalid contact email")
		}
		valid["contact_email"] = strings.TrimSpace(strings.ToLower(e))
	}

	result := s.DB.WithContext(ctx).Model(&domain.Organization{}).
		Where("org_id = ?", orgID).
		Updates(valid)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrOrganizationNotFound
	}

	var org domain.Organization
	if err := s.DB.WithContext(ctx).Where("org_id = ?", orgID).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

// SubmitDocument attaches an artifact to a slot. A fresh upload moves the slot
// to pending directly; replacing a rejected artifact goes through the review
// service so the reupload event and counter are recorded.
func (s *Service) SubmitDocument(ctx context.Context, orgID uuid.UUID, slotKey, artifactRef string) (*domain.Document, error) {
	if _, ok := domain.SlotByKey(slotKey); !ok {
		return nil, ErrUnknownSlot
	}
	if artifactRef == "" {
		return nil, errors.New("artifact_ref is required")
	}

	var doc domain.Document
	if err := s.DB.WithContext(ctx).
		Where("org_id = ? AND slot_key = ?", orgID, slotKey).
		First(&doc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrOrganizationNotFound
		}
		return nil, err
	}

	if doc.Status == domain.DocStatusRejected {
		return s.Review.MarkDocumentReuploaded(ctx, orgID, slotKey, artifactRef)
	}

	doc.ArtifactRef = &artifactRef
	if doc.Status == domain.DocStatusNotUploaded {
		doc.Status = domain.DocStatusPending
	}
	if err := s.DB.WithContext(ctx).Save(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// SubmitPaymentInput is the payment submission payload.
type SubmitPaymentInput struct {
	AmountCents int     `json:"amount_cents"`
	Currency    string  `json:"currency"`
	Method      string  `json:"method"`
	ReceiptRef  *string `json:"receipt_ref"`
}

// SubmitPayment records a new pending payment. Only one payment may be
// pending at a time; a rejected payment is terminal and a fresh row is
// created here after it.
func (s *Service) SubmitPayment(ctx context.Context, orgID uuid.UUID, in SubmitPaymentInput) (*domain.Payment, error) {
	if orgID == uuid.Nil {
		return nil, errors.New("Missing org_id")
	}
	if in.AmountCents <= 0 {
		return nil, errors.New("amount_cents must be positive")
	}
	switch in.Method {
	case domain.PaymentMethodBankTransfer, domain.PaymentMethodCard, domain.PaymentMethodGateway:
	default:
		return nil, errors.New("Invalid payment method")
	}
	if in.Currency == "" {
		in.Currency = "USD"
	}

	var payment *domain.Payment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var org domain.Organization
		if err := tx.Where("org_id = ?", orgID).First(&org).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrOrganizationNotFound
			}
			return err
		}

		var pending int64
		if err := tx.Model(&domain.Payment{}).
			Where("org_id = ? AND status = ?", orgID, domain.PaymentStatusPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return ErrPendingPaymentExists
		}

		payment = &domain.Payment{
			OrgID:       orgID,
			AmountCents: in.AmountCents,
			Currency:    in.Currency,
			Method:      in.Method,
			ReceiptRef:  in.ReceiptRef,
			Status:      domain.PaymentStatusPending,
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		return events.Append(tx, &domain.NotificationEvent{
			OrgID:     orgID,
			Kind:      domain.EventInfo,
			PaymentID: &payment.ID,
			Title:     "Payment submitted",
			Message:   "Membership payment from " + org.OrgName + " is ready for review.",
			Audience:  domain.AudienceStaff,
		})
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// QueueEntry is one organization in the staff review queue.
type QueueEntry struct {
	OrgID           uuid.UUID `json:"org_id"`
	OrgName         string    `json:"org_name"`
	Status          string    `json:"status"`
	PendingDocs     int64     `json:"pending_docs"`
	RejectedDocs    int64     `json:"rejected_docs"`
	PendingPayments int64     `json:"pending_payments"`
}

// ListReviewQueue returns organizations with outstanding documents or
// payments, oldest registration first.
func (s *Service) ListReviewQueue(ctx context.Context) ([]QueueEntry, error) {
	var orgs []domain.Organization
	if err := s.DB.WithContext(ctx).
		Where("status <> ?", domain.OrgStatusApproved).
		Order("created_at ASC").
		Find(&orgs).Error; err != nil {
		return nil, err
	}

	out := make([]QueueEntry, 0, len(orgs))
	for i := range orgs {
		org := &orgs[i]
		entry := QueueEntry{OrgID: org.OrgID, OrgName: org.OrgName, Status: org.Status}
		if err := s.DB.WithContext(ctx).Model(&domain.Document{}).
			Where("org_id = ? AND status = ?", org.OrgID, domain.DocStatusPending).
			Count(&entry.PendingDocs).Error; err != nil {
			return nil, err
		}
		if err := s.DB.WithContext(ctx).Model(&domain.Document{}).
			Where("org_id = ? AND status = ?", org.OrgID, domain.DocStatusRejected).
			Count(&entry.RejectedDocs).Error; err != nil {
			return nil, err
		}
		if err := s.DB.WithContext(ctx).Model(&domain.Payment{}).
			Where("org_id = ? AND status = ?", org.OrgID, domain.PaymentStatusPending).
			Count(&entry.PendingPayments).Error; err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}
