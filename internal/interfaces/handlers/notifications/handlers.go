package notifications

import (
	"errors"
	"strconv"

	eventsvc "assohub-backend/internal/application/events"
	"assohub-backend/internal/application/notify"
	"assohub-backend/internal/domain"
	"assohub-backend/internal/middleware"
	"assohub-backend/internal/pkg/constants"
	"assohub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers serves the notification feed and the email resend path. Org users
// see their organization's feed; staff may read any organization including
// the staff audience.
type Handlers struct {
	Events     *eventsvc.Service
	Dispatcher *notify.Dispatcher
}

// List GET /api/v1/notifications lists the feed newest-first. Query params:
// org_id (staff only), audience (staff only), unread, include_scheduled,
// limit.
func (h *Handlers) List(c *fiber.Ctx) error {
	orgID, audience, ok := h.resolveScope(c)
	if !ok {
		return nil
	}

	in := eventsvc.ListInput{
		Audience:         audience,
		UnreadOnly:       c.Query("unread") == "true",
		IncludeScheduled: c.Query("include_scheduled") == "true",
	}
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			in.Limit = n
		}
	}

	evs, err := h.Events.ListForOrg(c.Context(), orgID, in)
	if err != nil {
		if errors.Is(err, eventsvc.ErrOrgRequired) {
			return response.Error(c, err.Error(), 400, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Notifications fetched", fiber.Map{"notifications": evs}, nil)
}

// UnreadCount GET /api/v1/notifications/unread-count
func (h *Handlers) UnreadCount(c *fiber.Ctx) error {
	orgID, audience, ok := h.resolveScope(c)
	if !ok {
		return nil
	}

	count, err := h.Events.UnreadCount(c.Context(), orgID, audience)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Unread count fetched", fiber.Map{"unread": count}, nil)
}

// MarkReadRequest carries the event ids to mark; empty means mark all.
type MarkReadRequest struct {
	EventIDs []string `json:"event_ids"`
}

// MarkRead PATCH /api/v1/notifications/mark-read
func (h *Handlers) MarkRead(c *fiber.Ctx) error {
	orgID, audience, ok := h.resolveScope(c)
	if !ok {
		return nil
	}

	var req MarkReadRequest
	_ = c.BodyParser(&req)

	var updated int64
	var err error
	if len(req.EventIDs) == 0 {
		updated, err = h.Events.MarkAllRead(c.Context(), orgID, audience)
	} else {
		ids := make([]uuid.UUID, 0, len(req.EventIDs))
		for _, s := range req.EventIDs {
			id, parseErr := uuid.Parse(s)
			if parseErr != nil {
				return response.Error(c, "Invalid event id: "+s, 400, nil)
			}
			ids = append(ids, id)
		}
		updated, err = h.Events.MarkRead(c.Context(), orgID, ids)
	}
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Notifications marked as read", fiber.Map{"updated": updated}, nil)
}

// Resend POST /api/v1/notifications/resend drains pending and failed email
// outbox rows. Staff only (resend_notifications permission on the route).
// Query param org_id limits the drain to one organization.
func (h *Handlers) Resend(c *fiber.Ctx) error {
	if h.Dispatcher == nil {
		return response.Error(c, "Email delivery is not configured", 503, nil)
	}

	orgID := uuid.Nil
	if q := c.Query("org_id"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			return response.Error(c, "Invalid org_id", 400, nil)
		}
		orgID = id
	}

	sent, failed, err := h.Dispatcher.DrainPending(c.Context(), orgID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Resend completed", fiber.Map{"sent": sent, "failed": failed}, nil)
}

// resolveScope determines which organization and audience the caller may
// read. Staff pass org_id (and optionally audience=staff) as query params;
// org users are pinned to their own organization feed. On failure the error
// response is already written and ok is false.
func (h *Handlers) resolveScope(c *fiber.Ctx) (uuid.UUID, string, bool) {
	u := middleware.GetUser(c)
	if u == nil {
		_ = response.Unauthorized(c, "Unauthorized")
		return uuid.Nil, "", false
	}
	m, isMap := u.(map[string]interface{})
	if !isMap {
		_ = response.Error(c, "Authorization error", 500, nil)
		return uuid.Nil, "", false
	}
	role, _ := m["role"].(string)

	if role == constants.Admin || role == constants.Reviewer {
		q := c.Query("org_id")
		if q == "" {
			_ = response.Error(c, "org_id query parameter is required", 400, nil)
			return uuid.Nil, "", false
		}
		orgID, err := uuid.Parse(q)
		if err != nil {
			_ = response.Error(c, "Invalid org_id", 400, nil)
			return uuid.Nil, "", false
		}
		audience := domain.AudienceOrganization
		if c.Query("audience") == domain.AudienceStaff {
			audience = domain.AudienceStaff
		}
		return orgID, audience, true
	}

	orgIDStr, _ := m["org_id"].(string)
	if orgIDStr == "" {
		_ = response.Error(c, "User is not associated with any organization", 403, nil)
		return uuid.Nil, "", false
	}
	orgID, err := uuid.Parse(orgIDStr)
	if err != nil {
		_ = response.Error(c, "User is not associated with any organization", 403, nil)
		return uuid.Nil, "", false
	}
	return orgID, domain.AudienceOrganization, true
}
