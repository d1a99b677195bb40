package user

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	usersvc "assohub-backend/internal/application/user"
	"assohub-backend/internal/domain"
	"assohub-backend/internal/middleware"
	"assohub-backend/internal/pkg/constants"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupUserTest(t *testing.T) (*Handlers, *redis.Client, *gorm.DB) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}))
	svc := &usersvc.Service{DB: db, Rdb: rdb}
	handlers := &Handlers{
		Service: svc,
		Config:  middleware.SessionConfig{AllowCrossSiteDev: false, IsProduction: false},
	}
	return handlers, rdb, db
}

func injectSession(app *fiber.App, userID, role string, orgID interface{}) {
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id":  userID,
			"fullname": "Test User",
			"email":    "test@test.com",
			"role":     role,
			"org_id":   orgID,
		})
		return c.Next()
	})
}

// TestCreateUser_MissingFields returns 400.
func TestCreateUser_MissingFields(t *testing.T) {
	h, _, _ := setupUserTest(t)
	app := fiber.New()
	app.Post("/create-user", h.CreateUser)

	body, _ := json.Marshal(map[string]string{
		"email": "u1@test.com",
		// missing password and fullname
	})
	req := httptest.NewRequest("POST", "/create-user", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

// TestCreateUser_StartsSession creates the account as member, sets the
// session cookie and tracks the new session for invalidation.
func TestCreateUser_StartsSession(t *testing.T) {
	h, rdb, db := setupUserTest(t)
	app := fiber.New()
	app.Post("/create-user", h.CreateUser)

	body, _ := json.Marshal(map[string]string{
		"email":    "U1@Test.com",
		"password": "Pass1!word",
		"fullname": "user one",
	})
	req := httptest.NewRequest("POST", "/create-user", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var u domain.User
	require.NoError(t, db.Where("email = ?", "u1@test.com").First(&u).Error)
	assert.Equal(t, constants.Member, u.Role)
	assert.Equal(t, "User One", u.Fullname)
	assert.Nil(t, u.OrgID)
	assert.NotEqual(t, "Pass1!word", u.PasswordHash)

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == "assohub.sid" && c.Value != "" {
			found = true
		}
	}
	assert.True(t, found)

	tracked, err := rdb.SCard(context.Background(), "user_sessions:"+u.UserID.String()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), tracked)
}

// TestCreateUser_DuplicateEmail returns 409.
func TestCreateUser_DuplicateEmail(t *testing.T) {
	h, _, db := setupUserTest(t)
	require.NoError(t, db.Create(&domain.User{
		UserID: uuid.New(), Fullname: "Existing", Email: "dup@test.com",
		PasswordHash: "x", Role: constants.Member,
	}).Error)

	app := fiber.New()
	app.Post("/create-user", h.CreateUser)

	body, _ := json.Marshal(map[string]string{
		"email": "dup@test.com", "password": "Pass1!word", "fullname": "Dup User",
	})
	req := httptest.NewRequest("POST", "/create-user", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

// TestViewUser_ReturnsSessionUser reads the account behind the session.
func TestViewUser_ReturnsSessionUser(t *testing.T) {
	h, _, db := setupUserTest(t)
	uid := uuid.New()
	require.NoError(t, db.Create(&domain.User{
		UserID: uid, Fullname: "Viewer", Email: "view@test.com",
		PasswordHash: "x", Role: constants.Member,
	}).Error)

	app := fiber.New()
	injectSession(app, uid.String(), constants.Member, nil)
	app.Get("/view-user", h.ViewUser)

	req := httptest.NewRequest("GET", "/view-user", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

// TestUpdateRole_ForbiddenForMember: manage_users is admin-only.
func TestUpdateRole_ForbiddenForMember(t *testing.T) {
	h, _, db := setupUserTest(t)
	uid := uuid.New()
	target := uuid.New()
	require.NoError(t, db.Create(&domain.User{
		UserID: target, Fullname: "Target", Email: "target@test.com",
		PasswordHash: "x", Role: constants.Member,
	}).Error)

	app := fiber.New()
	injectSession(app, uid.String(), constants.Member, nil)
	app.Use(middleware.AuthorizePermission(constants.ManageUsers))
	app.Patch("/update-role", h.UpdateRole)

	body, _ := json.Marshal(map[string]string{"user_id": target.String(), "role": constants.Reviewer})
	req := httptest.NewRequest("PATCH", "/update-role", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	var u domain.User
	require.NoError(t, db.Where("user_id = ?", target).First(&u).Error)
	assert.Equal(t, constants.Member, u.Role)
}

// TestUpdateRole_DestroysTargetSessions promotes a member to reviewer and
// invalidates the target's tracked sessions.
func TestUpdateRole_DestroysTargetSessions(t *testing.T) {
	h, rdb, db := setupUserTest(t)
	admin := uuid.New()
	target := uuid.New()
	require.NoError(t, db.Create(&domain.User{
		UserID: target, Fullname: "Target", Email: "t2@test.com",
		PasswordHash: "x", Role: constants.Member,
	}).Error)

	// Simulate an open session for the target
	ctx := context.Background()
	sid := uuid.New().String()
	require.NoError(t, rdb.Set(ctx, "session:"+sid, `{"user":{}}`, 0).Err())
	require.NoError(t, rdb.SAdd(ctx, "user_sessions:"+target.String(), sid).Err())

	app := fiber.New()
	injectSession(app, admin.String(), constants.Admin, nil)
	app.Use(middleware.AuthorizePermission(constants.ManageUsers))
	app.Patch("/update-role", h.UpdateRole)

	body, _ := json.Marshal(map[string]string{"user_id": target.String(), "role": constants.Reviewer})
	req := httptest.NewRequest("PATCH", "/update-role", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var u domain.User
	require.NoError(t, db.Where("user_id = ?", target).First(&u).Error)
	assert.Equal(t, constants.Reviewer, u.Role)

	exists, err := rdb.Exists(ctx, "session:"+sid).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
	exists, err = rdb.Exists(ctx, "user_sessions:"+target.String()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}

// TestUpdateRole_InvalidRole returns 400.
func TestUpdateRole_InvalidRole(t *testing.T) {
	h, _, db := setupUserTest(t)
	target := uuid.New()
	require.NoError(t, db.Create(&domain.User{
		UserID: target, Fullname: "Target", Email: "t3@test.com",
		PasswordHash: "x", Role: constants.Member,
	}).Error)

	app := fiber.New()
	injectSession(app, uuid.New().String(), constants.Admin, nil)
	app.Use(middleware.AuthorizePermission(constants.ManageUsers))
	app.Patch("/update-role", h.UpdateRole)

	body, _ := json.Marshal(map[string]string{"user_id": target.String(), "role": "owner"})
	req := httptest.NewRequest("PATCH", "/update-role", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

// TestUpdateRole_UnknownUser returns 404.
func TestUpdateRole_UnknownUser(t *testing.T) {
	h, _, _ := setupUserTest(t)
	app := fiber.New()
	injectSession(app, uuid.New().String(), constants.Admin, nil)
	app.Use(middleware.AuthorizePermission(constants.ManageUsers))
	app.Patch("/update-role", h.UpdateRole)

	body, _ := json.Marshal(map[string]string{"user_id": uuid.New().String(), "role": constants.Reviewer})
	req := httptest.NewRequest("PATCH", "/update-role", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

// TestRemoveUser_DetachesAndDemotes clears org_id and resets the role.
func TestRemoveUser_DetachesAndDemotes(t *testing.T) {
	h, _, db := setupUserTest(t)
	orgID := uuid.New()
	target := uuid.New()
	require.NoError(t, db.Create(&domain.User{
		UserID: target, Fullname: "Target", Email: "t4@test.com",
		PasswordHash: "x", Role: constants.Reviewer, OrgID: &orgID,
	}).Error)

	app := fiber.New()
	injectSession(app, uuid.New().String(), constants.Admin, nil)
	app.Use(middleware.AuthorizePermission(constants.ManageUsers))
	app.Delete("/remove-user", h.RemoveUser)

	body, _ := json.Marshal(map[string]string{"user_id": target.String()})
	req := httptest.NewRequest("DELETE", "/remove-user", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var u domain.User
	require.NoError(t, db.Where("user_id = ?", target).First(&u).Error)
	assert.Nil(t, u.OrgID)
	assert.Equal(t, constants.Member, u.Role)
}

// TestRemoveUser_NotAttached returns 400 when the user has no organization.
func TestRemoveUser_NotAttached(t *testing.T) {
	h, _, db := setupUserTest(t)
	target := uuid.New()
	require.NoError(t, db.Create(&domain.User{
		UserID: target, Fullname: "Target", Email: "t5@test.com",
		PasswordHash: "x", Role: constants.Member,
	}).Error)

	app := fiber.New()
	injectSession(app, uuid.New().String(), constants.Admin, nil)
	app.Use(middleware.AuthorizePermission(constants.ManageUsers))
	app.Delete("/remove-user", h.RemoveUser)

	body, _ := json.Marshal(map[string]string{"user_id": target.String()})
	req := httptest.NewRequest("DELETE", "/remove-user", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
