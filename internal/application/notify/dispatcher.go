// Package notify drains the email outbox. Every dispatch attempt writes
// exactly one EmailLog row; send failures mark the outbox row failed and are
// reported as DeliveryError, which callers treat as a warning, never as a
// command failure.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"assohub-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrOutboxRowNotFound = errors.New("Outbox row not found")

// DeliveryError wraps a send failure. It is non-fatal by contract.
type DeliveryError struct {
	Kind      string
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("email %q to %s failed: %v", e.Kind, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// TemplateData is the free-form payload stored on the outbox row.
type TemplateData struct {
	OrgName     string `json:"org_name"`
	SlotName    string `json:"slot_name"`
	Reason      string `json:"reason"`
	AmountCents int    `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// Sender sends one transactional email per review outcome. A nil Sender (or
// one with no API key) is a no-op that still reports success, matching the
// dev-environment behavior.
type Sender interface {
	SendDocumentRejected(ctx context.Context, to, orgName, slotName, reason string) error
	SendPaymentApproved(ctx context.Context, to, orgName string, amountCents int, currency string) error
	SendPaymentRejected(ctx context.Context, to, orgName, reason string) error
	SendOrganizationActivated(ctx context.Context, to, orgName string) error
}

// Dispatcher turns outbox rows into outbound email and records every attempt.
type Dispatcher struct {
	DB     *gorm.DB
	Sender Sender
}

// DispatchByID processes one outbox row regardless of its current status
// (resends add another EmailLog row).
func (d *Dispatcher) DispatchByID(ctx context.Context, id uuid.UUID) error {
	var row domain.EmailOutbox
	if err := d.DB.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrOutboxRowNotFound
		}
		return err
	}
	return d.Dispatch(ctx, &row)
}

// Dispatch sends the email for one outbox row. Always writes exactly one
// EmailLog row and updates the outbox status; returns a DeliveryError on send
// failure.
func (d *Dispatcher) Dispatch(ctx context.Context, row *domain.EmailOutbox) error {
	var data TemplateData
	if len(row.TemplateData) > 0 {
		// Malformed template data still produces a (failed) attempt log below.
		_ = json.Unmarshal(row.TemplateData, &data)
	}

	sendErr := d.send(ctx, row, data)

	outcome := domain.EmailOutcomeSent
	var errText *string
	if sendErr != nil {
		outcome = domain.EmailOutcomeFailed
		t := sendErr.Error()
		errText = &t
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"outbox_id": row.ID.String(),
		"attempt":   row.Attempts + 1,
	})
	logRow := &domain.EmailLog{
		OrgID:     row.OrgID,
		Kind:      row.Kind,
		Recipient: row.Recipient,
		Outcome:   outcome,
		Error:     errText,
		Metadata:  datatypes.JSON(meta),
	}
	if err := d.DB.WithContext(ctx).Create(logRow).Error; err != nil {
		log.Error().Err(err).Str("kind", row.Kind).Msg("email log write failed")
	}

	row.Attempts++
	row.LastError = errText
	if sendErr != nil {
		row.Status = domain.OutboxStatusFailed
	} else {
		row.Status = domain.OutboxStatusSent
	}
	if err := d.DB.WithContext(ctx).Save(row).Error; err != nil {
		log.Error().Err(err).Str("kind", row.Kind).Msg("outbox status update failed")
	}

	if sendErr != nil {
		return &DeliveryError{Kind: row.Kind, Recipient: row.Recipient, Err: sendErr}
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, row *domain.EmailOutbox, data TemplateData) error {
	if d.Sender == nil {
		return nil
	}
	switch row.Kind {
	case domain.EmailDocumentRejected:
		return d.Sender.SendDocumentRejected(ctx, row.Recipient, data.OrgName, data.SlotName, data.Reason)
	case domain.EmailPaymentApproved:
		return d.Sender.SendPaymentApproved(ctx, row.Recipient, data.OrgName, data.AmountCents, data.Currency)
	case domain.EmailPaymentRejected:
		return d.Sender.SendPaymentRejected(ctx, row.Recipient, data.OrgName, data.Reason)
	case domain.EmailOrganizationActivated:
		return d.Sender.SendOrganizationActivated(ctx, row.Recipient, data.OrgName)
	default:
		return fmt.Errorf("unknown email kind %q", row.Kind)
	}
}

// DrainPending retries pending and failed outbox rows for an organization
// (orgID uuid.Nil = all organizations). Each retry appends a fresh EmailLog
// row. Returns sent/failed counts.
func (d *Dispatcher) DrainPending(ctx context.Context, orgID uuid.UUID) (sent, failed int, err error) {
	q := d.DB.WithContext(ctx).
		Where("status IN ?", []string{domain.OutboxStatusPending, domain.OutboxStatusFailed})
	if orgID != uuid.Nil {
		q = q.Where("org_id = ?", orgID)
	}
	var rows []domain.EmailOutbox
	if err := q.Order("created_at ASC").Find(&rows).Error; err != nil {
		return 0, 0, err
	}
	for i := range rows {
		if derr := d.Dispatch(ctx, &rows[i]); derr != nil {
			failed++
		} else {
			sent++
		}
	}
	return sent, failed, nil
}
