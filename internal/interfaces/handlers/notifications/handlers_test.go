package notifications

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	eventsvc "assohub-backend/internal/application/events"
	"assohub-backend/internal/application/notify"
	"assohub-backend/internal/domain"
	"assohub-backend/internal/pkg/constants"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupNotificationsTest(t *testing.T) (*Handlers, *gorm.DB, uuid.UUID) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.NotificationEvent{}, &domain.EmailOutbox{}, &domain.EmailLog{},
	))

	orgID := uuid.New()
	require.NoError(t, db.Create(&domain.NotificationEvent{
		OrgID: orgID, Kind: domain.EventInfo, Title: "Registration started",
	}).Error)
	require.NoError(t, db.Create(&domain.NotificationEvent{
		OrgID: orgID, Kind: domain.EventDocumentRejected, Title: "Logo rejected",
		Audience: domain.AudienceStaff,
	}).Error)

	h := &Handlers{
		Events:     &eventsvc.Service{DB: db},
		Dispatcher: &notify.Dispatcher{DB: db},
	}
	return h, db, orgID
}

func appWithUser(role string, orgID interface{}) (*fiber.App, func(h fiber.Handler, method, path string)) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id":  uuid.New().String(),
			"fullname": "Feed User",
			"email":    "feed@test.com",
			"role":     role,
			"org_id":   orgID,
		})
		return c.Next()
	})
	register := func(h fiber.Handler, method, path string) {
		app.Add(method, path, h)
	}
	return app, register
}

func TestList_OrgUserPinnedToOwnFeed(t *testing.T) {
	h, _, orgID := setupNotificationsTest(t)
	app, register := appWithUser(constants.Member, orgID.String())
	register(h.List, "GET", "/api/v1/notifications")

	// Staff-only query params are ignored for org users
	req := httptest.NewRequest("GET", "/api/v1/notifications?audience=staff&org_id="+uuid.New().String(), nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	var out struct {
		Data struct {
			Notifications []domain.NotificationEvent `json:"notifications"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Data.Notifications, 1)
	assert.Equal(t, "Registration started", out.Data.Notifications[0].Title)
}

func TestList_NoOrgOnUser(t *testing.T) {
	h, _, _ := setupNotificationsTest(t)
	app, register := appWithUser(constants.Member, nil)
	register(h.List, "GET", "/api/v1/notifications")

	req := httptest.NewRequest("GET", "/api/v1/notifications", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestList_StaffRequiresOrgID(t *testing.T) {
	h, _, orgID := setupNotificationsTest(t)
	app, register := appWithUser(constants.Reviewer, nil)
	register(h.List, "GET", "/api/v1/notifications")

	req := httptest.NewRequest("GET", "/api/v1/notifications", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// With org_id plus audience=staff the staff copy is visible
	req = httptest.NewRequest("GET", "/api/v1/notifications?org_id="+orgID.String()+"&audience=staff", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	var out struct {
		Data struct {
			Notifications []domain.NotificationEvent `json:"notifications"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Data.Notifications, 1)
	assert.Equal(t, "Logo rejected", out.Data.Notifications[0].Title)
}

func TestUnreadCount(t *testing.T) {
	h, _, orgID := setupNotificationsTest(t)
	app, register := appWithUser(constants.Member, orgID.String())
	register(h.UnreadCount, "GET", "/api/v1/notifications/unread-count")

	req := httptest.NewRequest("GET", "/api/v1/notifications/unread-count", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	var out struct {
		Data struct {
			Unread int64 `json:"unread"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, int64(1), out.Data.Unread)
}

func TestMarkRead_EmptyMeansAll(t *testing.T) {
	h, db, orgID := setupNotificationsTest(t)
	app, register := appWithUser(constants.Member, orgID.String())
	register(h.MarkRead, "PATCH", "/api/v1/notifications/mark-read")

	req := httptest.NewRequest("PATCH", "/api/v1/notifications/mark-read", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var unread int64
	require.NoError(t, db.Model(&domain.NotificationEvent{}).
		Where("org_id = ? AND audience = ? AND is_read = ?", orgID, domain.AudienceOrganization, false).
		Count(&unread).Error)
	assert.Equal(t, int64(0), unread)
}

func TestMarkRead_InvalidID(t *testing.T) {
	h, _, orgID := setupNotificationsTest(t)
	app, register := appWithUser(constants.Member, orgID.String())
	register(h.MarkRead, "PATCH", "/api/v1/notifications/mark-read")

	body, _ := json.Marshal(map[string]interface{}{"event_ids": []string{"nope"}})
	req := httptest.NewRequest("PATCH", "/api/v1/notifications/mark-read", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestResend_DrainsOutbox(t *testing.T) {
	h, db, orgID := setupNotificationsTest(t)
	require.NoError(t, db.Create(&domain.EmailOutbox{
		OrgID: orgID, Kind: domain.EmailPaymentApproved,
		Recipient: "contact@feed.org", Status: domain.OutboxStatusFailed,
	}).Error)

	app, register := appWithUser(constants.Admin, nil)
	register(h.Resend, "POST", "/api/v1/notifications/resend")

	req := httptest.NewRequest("POST", "/api/v1/notifications/resend?org_id="+orgID.String(), nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	var out struct {
		Data struct {
			Sent   int `json:"sent"`
			Failed int `json:"failed"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 1, out.Data.Sent)
	assert.Equal(t, 0, out.Data.Failed)

	var logs int64
	require.NoError(t, db.Model(&domain.EmailLog{}).Count(&logs).Error)
	assert.Equal(t, int64(1), logs)
}

func TestResend_NotConfigured(t *testing.T) {
	h, _, _ := setupNotificationsTest(t)
	h.Dispatcher = nil
	app, register := appWithUser(constants.Admin, nil)
	register(h.Resend, "POST", "/api/v1/notifications/resend")

	req := httptest.NewRequest("POST", "/api/v1/notifications/resend", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
