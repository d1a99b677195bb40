package org

import (
	"encoding/json"
	"errors"

	registrysvc "assohub-backend/internal/application/registry"
	"assohub-backend/internal/middleware"
	"assohub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles organization onboarding handlers with dependencies.
type Handlers struct {
	Service *registrysvc.Service
	Config  middleware.SessionConfig
}

// CreateOrg POST /api/v1/orgs/create-org
func (h *Handlers) CreateOrg(c *fiber.Ctx) error {
	var in registrysvc.CreateOrganizationInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "org_name, country_code and contact_email are required", 400, nil)
	}

	actor := middleware.GetUser(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	m, ok := actor.(map[string]interface{})
	if !ok {
		return response.Error(c, "Authorization error", 500, nil)
	}
	actorIDStr, _ := m["user_id"].(string)
	if actorIDStr == "" {
		return response.Unauthorized(c, "Unauthorized")
	}
	actorID, err := uuid.Parse(actorIDStr)
	if err != nil {
		return response.Error(c, "Authorization error", 500, nil)
	}

	org, err := h.Service.CreateOrganization(c.Context(), in, actorID)
	if err != nil {
		switch err.Error() {
		case "org_name, country_code and contact_email are required",
			"Invalid country code", "Invalid contact email":
			return response.Error(c, err.Error(), 400, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}

	// Refresh session because the actor now belongs to the organization
	sessionID := middleware.RegenerateSessionID(c)
	orgIDStr := org.OrgID.String()
	fullname, _ := m["fullname"].(string)
	email, _ := m["email"].(string)
	role, _ := m["role"].(string)
	middleware.SetSessionUser(c, middleware.SessionUser{
		UserID:   actorIDStr,
		Fullname: fullname,
		Email:    email,
		Role:     role,
		OrgID:    &orgIDStr,
	})

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = "s:" + sessionID
	c.Cookie(&cookie)

	return response.SuccessCreated(c, "Organization registered successfully", org, nil)
}

// ViewOrg GET /api/v1/orgs/view-org returns the organization plus projected
// slot statuses and payments.
func (h *Handlers) ViewOrg(c *fiber.Ctx) error {
	orgID, errResp := sessionOrg(c)
	if errResp != nil {
		return errResp(c)
	}

	view, err := h.Service.GetOrganization(c.Context(), orgID)
	if err != nil {
		if errors.Is(err, registrysvc.ErrOrganizationNotFound) {
			return response.Error(c, err.Error(), 404, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Organization fetched successfully", view, nil)
}

// UpdateOrg PATCH /api/v1/orgs/update-org/:id
func (h *Handlers) UpdateOrg(c *fiber.Ctx) error {
	idStr := c.Params("id")
	if idStr == "" {
		return response.Error(c, "Missing org_id", 400, nil)
	}
	orgID, err := uuid.Parse(idStr)
	if err != nil {
		return response.Error(c, "Missing org_id", 400, nil)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return response.Error(c, "No update fields provided", 400, nil)
	}

	org, err := h.Service.UpdateOrganization(c.Context(), orgID, body)
	if err != nil {
		if errors.Is(err, registrysvc.ErrOrganizationNotFound) {
			return response.Error(c, err.Error(), 404, nil)
		}
		switch err.Error() {
		case "Missing org_id", "No update fields provided", "No valid fields to update", "Invalid contact email":
			return response.Error(c, err.Error(), 400, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Organization updated successfully", org, nil)
}

// SubmitDocumentRequest body.
type SubmitDocumentRequest struct {
	ArtifactRef string `json:"artifact_ref"`
}

// SubmitDocument POST /api/v1/orgs/documents/:slotKey attaches an uploaded
// artifact to the slot. Re-submission of a rejected slot is recorded as a
// reupload.
func (h *Handlers) SubmitDocument(c *fiber.Ctx) error {
	slotKey := c.Params("slotKey")
	var req SubmitDocumentRequest
	if err := c.BodyParser(&req); err != nil || req.ArtifactRef == "" {
		return response.Error(c, "artifact_ref is required", 400, nil)
	}

	orgID, errResp := sessionOrg(c)
	if errResp != nil {
		return errResp(c)
	}

	doc, err := h.Service.SubmitDocument(c.Context(), orgID, slotKey, req.ArtifactRef)
	if err != nil {
		switch {
		case errors.Is(err, registrysvc.ErrUnknownSlot):
			return response.Error(c, err.Error(), 400, nil)
		case errors.Is(err, registrysvc.ErrOrganizationNotFound):
			return response.Error(c, err.Error(), 404, nil)
		case err.Error() == "artifact_ref is required":
			return response.Error(c, err.Error(), 400, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Document submitted successfully", doc, nil)
}

// SubmitPayment POST /api/v1/orgs/payments submits a membership-fee payment
// for review.
func (h *Handlers) SubmitPayment(c *fiber.Ctx) error {
	var in registrysvc.SubmitPaymentInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "amount_cents and method are required", 400, nil)
	}

	orgID, errResp := sessionOrg(c)
	if errResp != nil {
		return errResp(c)
	}

	payment, err := h.Service.SubmitPayment(c.Context(), orgID, in)
	if err != nil {
		switch {
		case errors.Is(err, registrysvc.ErrPendingPaymentExists):
			return response.Error(c, err.Error(), 409, nil)
		case errors.Is(err, registrysvc.ErrOrganizationNotFound):
			return response.Error(c, err.Error(), 404, nil)
		case err.Error() == "amount_cents must be positive", err.Error() == "Invalid payment method", err.Error() == "Missing org_id":
			return response.Error(c, err.Error(), 400, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.SuccessCreated(c, "Payment submitted successfully", payment, nil)
}

// sessionOrg resolves the actor's organization from the session. The second
// return value, when non-nil, writes the error response.
func sessionOrg(c *fiber.Ctx) (uuid.UUID, func(*fiber.Ctx) error) {
	actor := middleware.GetUser(c)
	if actor == nil {
		return uuid.Nil, func(c *fiber.Ctx) error { return response.Unauthorized(c, "Unauthorized") }
	}
	m, ok := actor.(map[string]interface{})
	if !ok {
		return uuid.Nil, func(c *fiber.Ctx) error { return response.Error(c, "Authorization error", 500, nil) }
	}
	orgIDStr, _ := m["org_id"].(string)
	if orgIDStr == "" {
		return uuid.Nil, func(c *fiber.Ctx) error {
			return response.Error(c, "User is not associated with any organization", 403, nil)
		}
	}
	orgID, err := uuid.Parse(orgIDStr)
	if err != nil {
		return uuid.Nil, func(c *fiber.Ctx) error {
			return response.Error(c, "User is not associated with any organization", 403, nil)
		}
	}
	return orgID, nil
}
