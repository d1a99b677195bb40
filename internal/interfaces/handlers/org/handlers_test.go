package org

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	registrysvc "assohub-backend/internal/application/registry"
	reviewsvc "assohub-backend/internal/application/review"
	"assohub-backend/internal/domain"
	"assohub-backend/internal/middleware"
	"assohub-backend/internal/pkg/constants"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupOrgTest(t *testing.T) (*Handlers, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Organization{}, &domain.Document{}, &domain.Payment{},
		&domain.NotificationEvent{}, &domain.EmailOutbox{}, &domain.EmailLog{},
		&domain.User{},
	))

	service := &registrysvc.Service{
		DB:     db,
		Review: &reviewsvc.Service{DB: db},
	}
	handlers := &Handlers{
		Service: service,
		Config: middleware.SessionConfig{
			AllowCrossSiteDev: false,
			IsProduction:      false,
		},
	}
	return handlers, db
}

func withSessionUser(app *fiber.App, userID string, orgID string) {
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id":  userID,
			"fullname": "Test User",
			"email":    "test@example.com",
			"role":     constants.Member,
			"org_id":   orgID,
		})
		return c.Next()
	})
}

// seedOrg creates an organization with its eight slots through the service.
func seedOrg(t *testing.T, h *Handlers, db *gorm.DB) (uuid.UUID, uuid.UUID) {
	userID := uuid.New()
	require.NoError(t, db.Create(&domain.User{
		UserID: userID, Fullname: "Seed User", Email: "seed-" + userID.String() + "@test.com",
		PasswordHash: "x", Role: constants.Member,
	}).Error)
	org, err := h.Service.CreateOrganization(context.Background(), registrysvc.CreateOrganizationInput{
		OrgName:      "Seed Org " + userID.String(),
		CountryCode:  "DE",
		ContactEmail: "contact@seed.org",
	}, userID)
	require.NoError(t, err)
	return org.OrgID, userID
}

// TestCreateOrg_MissingFields returns 400.
func TestCreateOrg_MissingFields(t *testing.T) {
	h, _ := setupOrgTest(t)
	app := fiber.New()
	withSessionUser(app, uuid.New().String(), "")
	app.Post("/api/v1/orgs/create-org", h.CreateOrg)

	body, _ := json.Marshal(map[string]string{
		"org_name": "Acme Inc",
		// missing country_code and contact_email
	})
	req := httptest.NewRequest("POST", "/api/v1/orgs/create-org", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

// TestCreateOrg_SeedsSlots registers an organization and checks the eight
// empty document slots, the pending status and the welcome event.
func TestCreateOrg_SeedsSlots(t *testing.T) {
	h, db := setupOrgTest(t)
	userID := uuid.New()
	require.NoError(t, db.Create(&domain.User{
		UserID: userID, Fullname: "New User", Email: "new@test.com",
		PasswordHash: "x", Role: constants.Member,
	}).Error)

	app := fiber.New()
	withSessionUser(app, userID.String(), "")
	app.Post("/api/v1/orgs/create-org", h.CreateOrg)

	body, _ := json.Marshal(map[string]string{
		"org_name":      "Acme Inc",
		"country_code":  "us",
		"contact_email": "Contact@Acme.com",
	})
	req := httptest.NewRequest("POST", "/api/v1/orgs/create-org", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var org domain.Organization
	require.NoError(t, db.Where("org_name = ?", "Acme Inc").First(&org).Error)
	assert.Equal(t, domain.OrgStatusPending, org.Status)
	assert.Equal(t, "US", org.CountryCode)
	assert.Equal(t, "contact@acme.com", org.ContactEmail)

	var docs int64
	require.NoError(t, db.Model(&domain.Document{}).
		Where("org_id = ? AND status = ?", org.OrgID, domain.DocStatusNotUploaded).
		Count(&docs).Error)
	assert.Equal(t, int64(len(domain.Slots)), docs)

	var user domain.User
	require.NoError(t, db.Where("user_id = ?", userID).First(&user).Error)
	require.NotNil(t, user.OrgID)
	assert.Equal(t, org.OrgID, *user.OrgID)

	var welcome int64
	require.NoError(t, db.Model(&domain.NotificationEvent{}).
		Where("org_id = ? AND kind = ?", org.OrgID, domain.EventInfo).
		Count(&welcome).Error)
	assert.Equal(t, int64(1), welcome)

	// Session cookie is rotated on registration
	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == "assohub.sid" {
			found = true
		}
	}
	assert.True(t, found)
}

// TestViewOrg_NoOrgOnUser returns 403.
func TestViewOrg_NoOrgOnUser(t *testing.T) {
	h, _ := setupOrgTest(t)
	app := fiber.New()
	withSessionUser(app, uuid.New().String(), "")
	app.Get("/api/v1/orgs/view-org", h.ViewOrg)

	req := httptest.NewRequest("GET", "/api/v1/orgs/view-org", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

// TestViewOrg_ProjectsSlots returns organization, derived status and all slots.
func TestViewOrg_ProjectsSlots(t *testing.T) {
	h, db := setupOrgTest(t)
	orgID, userID := seedOrg(t, h, db)

	app := fiber.New()
	withSessionUser(app, userID.String(), orgID.String())
	app.Get("/api/v1/orgs/view-org", h.ViewOrg)

	req := httptest.NewRequest("GET", "/api/v1/orgs/view-org", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	var out struct {
		Data struct {
			DerivedStatus string `json:"derived_status"`
			Slots         []struct {
				SlotKey string `json:"slot_key"`
				Status  string `json:"status"`
			} `json:"slots"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Len(t, out.Data.Slots, len(domain.Slots))
	for _, s := range out.Data.Slots {
		assert.Equal(t, domain.DocStatusNotUploaded, s.Status)
	}
	assert.Equal(t, domain.OrgStatusNone, out.Data.DerivedStatus)
}

// TestUpdateOrg_NotFound returns 404 for an unknown organization id.
func TestUpdateOrg_NotFound(t *testing.T) {
	h, _ := setupOrgTest(t)
	app := fiber.New()
	app.Patch("/api/v1/orgs/update-org/:id", h.UpdateOrg)

	body, _ := json.Marshal(map[string]string{"org_name": "New Name"})
	req := httptest.NewRequest("PATCH", "/api/v1/orgs/update-org/"+uuid.New().String(), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

// TestSubmitDocument_UnknownSlot returns 400.
func TestSubmitDocument_UnknownSlot(t *testing.T) {
	h, db := setupOrgTest(t)
	orgID, userID := seedOrg(t, h, db)

	app := fiber.New()
	withSessionUser(app, userID.String(), orgID.String())
	app.Post("/api/v1/orgs/documents/:slotKey", h.SubmitDocument)

	body, _ := json.Marshal(map[string]string{"artifact_ref": "org-documents/x.pdf"})
	req := httptest.NewRequest("POST", "/api/v1/orgs/documents/tax_certificate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

// TestSubmitDocument_FreshUpload moves a slot from not_uploaded to pending.
func TestSubmitDocument_FreshUpload(t *testing.T) {
	h, db := setupOrgTest(t)
	orgID, userID := seedOrg(t, h, db)

	app := fiber.New()
	withSessionUser(app, userID.String(), orgID.String())
	app.Post("/api/v1/orgs/documents/:slotKey", h.SubmitDocument)

	body, _ := json.Marshal(map[string]string{"artifact_ref": "org-documents/cover.pdf"})
	req := httptest.NewRequest("POST", "/api/v1/orgs/documents/"+domain.SlotCoverLetter, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var doc domain.Document
	require.NoError(t, db.Where("org_id = ? AND slot_key = ?", orgID, domain.SlotCoverLetter).First(&doc).Error)
	assert.Equal(t, domain.DocStatusPending, doc.Status)
	require.NotNil(t, doc.ArtifactRef)
	assert.Equal(t, "org-documents/cover.pdf", *doc.ArtifactRef)
}

// TestSubmitPayment_SecondPendingRejected returns 409 while one is pending.
func TestSubmitPayment_SecondPendingRejected(t *testing.T) {
	h, db := setupOrgTest(t)
	orgID, userID := seedOrg(t, h, db)

	app := fiber.New()
	withSessionUser(app, userID.String(), orgID.String())
	app.Post("/api/v1/orgs/payments", h.SubmitPayment)

	body, _ := json.Marshal(map[string]interface{}{
		"amount_cents": 50000,
		"method":       domain.PaymentMethodBankTransfer,
	})
	req := httptest.NewRequest("POST", "/api/v1/orgs/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	req = httptest.NewRequest("POST", "/api/v1/orgs/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	var pending int64
	require.NoError(t, db.Model(&domain.Payment{}).
		Where("org_id = ? AND status = ?", orgID, domain.PaymentStatusPending).
		Count(&pending).Error)
	assert.Equal(t, int64(1), pending)
}
