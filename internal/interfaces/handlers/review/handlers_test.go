package review

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	registrysvc "assohub-backend/internal/application/registry"
	reviewsvc "assohub-backend/internal/application/review"
	"assohub-backend/internal/domain"
	"assohub-backend/internal/pkg/constants"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupReviewHandlers(t *testing.T) (*fiber.App, *gorm.DB, uuid.UUID) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Organization{}, &domain.Document{}, &domain.Payment{},
		&domain.NotificationEvent{}, &domain.EmailOutbox{}, &domain.EmailLog{},
	))

	orgID := uuid.New()
	require.NoError(t, db.Create(&domain.Organization{
		OrgID:        orgID,
		OrgName:      "Handler Org",
		ContactEmail: "contact@handler.org",
		CountryCode:  "KE",
		Status:       domain.OrgStatusPending,
	}).Error)
	for _, slot := range domain.Slots {
		require.NoError(t, db.Create(&domain.Document{
			OrgID:   orgID,
			SlotKey: slot.Key,
			Status:  domain.DocStatusNotUploaded,
		}).Error)
	}

	rvs := &reviewsvc.Service{DB: db}
	h := &Handlers{
		Review:   rvs,
		Registry: &registrysvc.Service{DB: db, Review: rvs},
	}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id":  uuid.New().String(),
			"fullname": "Rita Reviewer",
			"email":    "rita@staff.test",
			"role":     constants.Reviewer,
		})
		return c.Next()
	})
	app.Get("/api/v1/review/queue", h.Queue)
	app.Post("/api/v1/review/orgs/:orgId/documents/:slotKey/approve", h.ApproveDocument)
	app.Post("/api/v1/review/orgs/:orgId/documents/:slotKey/reject", h.RejectDocument)
	app.Post("/api/v1/review/orgs/:orgId/payments/:paymentId/approve", h.ApprovePayment)
	app.Post("/api/v1/review/orgs/:orgId/payments/:paymentId/reject", h.RejectPayment)
	return app, db, orgID
}

func uploadSlotRow(t *testing.T, db *gorm.DB, orgID uuid.UUID, slotKey string) {
	t.Helper()
	ref := slotKey + ".pdf"
	require.NoError(t, db.Model(&domain.Document{}).
		Where("org_id = ? AND slot_key = ?", orgID, slotKey).
		Updates(map[string]interface{}{"artifact_ref": ref, "status": domain.DocStatusPending}).Error)
}

func pendingPayment(t *testing.T, db *gorm.DB, orgID uuid.UUID) uuid.UUID {
	t.Helper()
	p := &domain.Payment{
		OrgID:       orgID,
		AmountCents: 50000,
		Currency:    "USD",
		Method:      domain.PaymentMethodBankTransfer,
		Status:      domain.PaymentStatusPending,
	}
	require.NoError(t, db.Create(p).Error)
	return p.ID
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader([]byte("{}"))
	}
	req := httptest.NewRequest("POST", path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestQueue(t *testing.T) {
	app, db, orgID := setupReviewHandlers(t)
	uploadSlotRow(t, db, orgID, domain.SlotCoverLetter)

	req := httptest.NewRequest("GET", "/api/v1/review/queue", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	var out struct {
		Data struct {
			Queue []struct {
				OrgID       string `json:"org_id"`
				PendingDocs int64  `json:"pending_docs"`
			} `json:"queue"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Data.Queue, 1)
	assert.Equal(t, orgID.String(), out.Data.Queue[0].OrgID)
	assert.Equal(t, int64(1), out.Data.Queue[0].PendingDocs)
}

func TestApproveDocumentHandler(t *testing.T) {
	app, db, orgID := setupReviewHandlers(t)
	uploadSlotRow(t, db, orgID, domain.SlotCoverLetter)

	code, _ := postJSON(t, app, "/api/v1/review/orgs/"+orgID.String()+"/documents/"+domain.SlotCoverLetter+"/approve", nil)
	assert.Equal(t, fiber.StatusOK, code)

	var doc domain.Document
	require.NoError(t, db.Where("org_id = ? AND slot_key = ?", orgID, domain.SlotCoverLetter).First(&doc).Error)
	assert.Equal(t, domain.DocStatusApproved, doc.Status)
	require.NotNil(t, doc.ReviewedBy)
	assert.Equal(t, "Rita Reviewer", *doc.ReviewedBy)
}

func TestApproveDocumentHandler_UnknownSlot(t *testing.T) {
	app, _, orgID := setupReviewHandlers(t)
	code, _ := postJSON(t, app, "/api/v1/review/orgs/"+orgID.String()+"/documents/tax_certificate/approve", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestApproveDocumentHandler_BadOrgID(t *testing.T) {
	app, _, _ := setupReviewHandlers(t)
	code, _ := postJSON(t, app, "/api/v1/review/orgs/not-a-uuid/documents/"+domain.SlotLogo+"/approve", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestRejectDocumentHandler_RequiresReason(t *testing.T) {
	app, db, orgID := setupReviewHandlers(t)
	uploadSlotRow(t, db, orgID, domain.SlotLogo)

	code, out := postJSON(t, app, "/api/v1/review/orgs/"+orgID.String()+"/documents/"+domain.SlotLogo+"/reject", map[string]string{"reason": ""})
	assert.Equal(t, fiber.StatusBadRequest, code)
	errObj, _ := out["error"].(map[string]interface{})
	require.NotNil(t, errObj)
	assert.Equal(t, "Rejection reason is required", errObj["message"])
}

func TestRejectDocumentHandler(t *testing.T) {
	app, db, orgID := setupReviewHandlers(t)
	uploadSlotRow(t, db, orgID, domain.SlotLogo)

	code, _ := postJSON(t, app, "/api/v1/review/orgs/"+orgID.String()+"/documents/"+domain.SlotLogo+"/reject", map[string]string{"reason": "low resolution"})
	assert.Equal(t, fiber.StatusOK, code)

	var doc domain.Document
	require.NoError(t, db.Where("org_id = ? AND slot_key = ?", orgID, domain.SlotLogo).First(&doc).Error)
	assert.Equal(t, domain.DocStatusRejected, doc.Status)
}

// TestApprovePaymentHandler_GateViolation surfaces 409 with the blocking slots.
func TestApprovePaymentHandler_GateViolation(t *testing.T) {
	app, db, orgID := setupReviewHandlers(t)
	uploadSlotRow(t, db, orgID, domain.SlotMemorandum)
	paymentID := pendingPayment(t, db, orgID)

	code, out := postJSON(t, app, "/api/v1/review/orgs/"+orgID.String()+"/payments/"+paymentID.String()+"/approve", nil)
	assert.Equal(t, fiber.StatusConflict, code)

	errObj, _ := out["error"].(map[string]interface{})
	require.NotNil(t, errObj)
	details, _ := errObj["details"].(map[string]interface{})
	require.NotNil(t, details)
	blocking, _ := details["blocking_slots"].([]interface{})
	require.Len(t, blocking, 1)
	first, _ := blocking[0].(map[string]interface{})
	assert.Equal(t, domain.SlotMemorandum, first["slot_key"])
	assert.Equal(t, domain.DocStatusPending, first["status"])
}

func TestApprovePaymentHandler_ActivatesOrganization(t *testing.T) {
	app, db, orgID := setupReviewHandlers(t)
	paymentID := pendingPayment(t, db, orgID)

	code, out := postJSON(t, app, "/api/v1/review/orgs/"+orgID.String()+"/payments/"+paymentID.String()+"/approve", nil)
	assert.Equal(t, fiber.StatusOK, code)

	data, _ := out["data"].(map[string]interface{})
	require.NotNil(t, data)
	assert.Equal(t, true, data["activated"])

	var org domain.Organization
	require.NoError(t, db.Where("org_id = ?", orgID).First(&org).Error)
	assert.Equal(t, domain.OrgStatusApproved, org.Status)

	// Re-approving the settled payment conflicts
	code, _ = postJSON(t, app, "/api/v1/review/orgs/"+orgID.String()+"/payments/"+paymentID.String()+"/approve", nil)
	assert.Equal(t, fiber.StatusConflict, code)
}

func TestApprovePaymentHandler_UnknownPayment(t *testing.T) {
	app, _, orgID := setupReviewHandlers(t)
	code, _ := postJSON(t, app, "/api/v1/review/orgs/"+orgID.String()+"/payments/"+uuid.New().String()+"/approve", nil)
	assert.Equal(t, fiber.StatusNotFound, code)
}

// TestRejectPaymentHandler_EmailDefaultsOff rejects with no notify_email
// field; the rejection email must not be queued unless explicitly requested.
func TestRejectPaymentHandler_EmailDefaultsOff(t *testing.T) {
	app, db, orgID := setupReviewHandlers(t)
	paymentID := pendingPayment(t, db, orgID)

	code, _ := postJSON(t, app, "/api/v1/review/orgs/"+orgID.String()+"/payments/"+paymentID.String()+"/reject", map[string]interface{}{
		"reason": "amount mismatch",
	})
	assert.Equal(t, fiber.StatusOK, code)

	var p domain.Payment
	require.NoError(t, db.Where("id = ?", paymentID).First(&p).Error)
	assert.Equal(t, domain.PaymentStatusRejected, p.Status)

	var outbox int64
	require.NoError(t, db.Model(&domain.EmailOutbox{}).Count(&outbox).Error)
	assert.Equal(t, int64(0), outbox)
}

func TestRejectPaymentHandler_EmailOptIn(t *testing.T) {
	app, db, orgID := setupReviewHandlers(t)
	paymentID := pendingPayment(t, db, orgID)

	code, _ := postJSON(t, app, "/api/v1/review/orgs/"+orgID.String()+"/payments/"+paymentID.String()+"/reject", map[string]interface{}{
		"reason":       "amount mismatch",
		"notify_email": true,
	})
	assert.Equal(t, fiber.StatusOK, code)

	var rows []domain.EmailOutbox
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.EmailPaymentRejected, rows[0].Kind)
	assert.Equal(t, "contact@handler.org", rows[0].Recipient)
}

func TestRejectPaymentHandler_EmailOptOut(t *testing.T) {
	app, db, orgID := setupReviewHandlers(t)
	paymentID := pendingPayment(t, db, orgID)

	code, _ := postJSON(t, app, "/api/v1/review/orgs/"+orgID.String()+"/payments/"+paymentID.String()+"/reject", map[string]interface{}{
		"reason":       "receipt unreadable",
		"notify_email": false,
	})
	assert.Equal(t, fiber.StatusOK, code)

	var p domain.Payment
	require.NoError(t, db.Where("id = ?", paymentID).First(&p).Error)
	assert.Equal(t, domain.PaymentStatusRejected, p.Status)

	var outbox int64
	require.NoError(t, db.Model(&domain.EmailOutbox{}).Count(&outbox).Error)
	assert.Equal(t, int64(0), outbox)
}
