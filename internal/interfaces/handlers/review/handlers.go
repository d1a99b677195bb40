package review

import (
	"errors"

	registrysvc "assohub-backend/internal/application/registry"
	reviewsvc "assohub-backend/internal/application/review"
	"assohub-backend/internal/middleware"
	"assohub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles the staff review endpoints. Every state change goes
// through the review service; warnings about failed notification emails are
// surfaced in metadata without affecting the outcome.
type Handlers struct {
	Review   *reviewsvc.Service
	Registry *registrysvc.Service
}

// Queue GET /api/v1/review/queue lists organizations with outstanding
// documents or payments.
func (h *Handlers) Queue(c *fiber.Ctx) error {
	entries, err := h.Registry.ListReviewQueue(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Review queue fetched", fiber.Map{"queue": entries}, nil)
}

// ApproveDocument POST /api/v1/review/orgs/:orgId/documents/:slotKey/approve
func (h *Handlers) ApproveDocument(c *fiber.Ctx) error {
	orgID, ok := parseOrgID(c)
	if !ok {
		return response.Error(c, "Invalid org_id", 400, nil)
	}
	slotKey := c.Params("slotKey")

	doc, err := h.Review.ApproveDocument(c.Context(), orgID, slotKey, reviewerName(c))
	if err != nil {
		return mapReviewError(c, err)
	}
	return response.Success(c, "Document approved", fiber.Map{"document": doc}, nil)
}

// ReasonRequest carries the rejection reason.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// RejectDocument POST /api/v1/review/orgs/:orgId/documents/:slotKey/reject
func (h *Handlers) RejectDocument(c *fiber.Ctx) error {
	orgID, ok := parseOrgID(c)
	if !ok {
		return response.Error(c, "Invalid org_id", 400, nil)
	}
	slotKey := c.Params("slotKey")

	var req ReasonRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "reason is required", 400, nil)
	}

	res, err := h.Review.RejectDocument(c.Context(), orgID, slotKey, req.Reason, reviewerName(c))
	if err != nil {
		return mapReviewError(c, err)
	}
	if res.Warning != "" {
		return response.SuccessWithWarning(c, "Document rejected", fiber.Map{"document": res.Document}, res.Warning)
	}
	return response.Success(c, "Document rejected", fiber.Map{"document": res.Document}, nil)
}

// ApprovePayment POST /api/v1/review/orgs/:orgId/payments/:paymentId/approve
func (h *Handlers) ApprovePayment(c *fiber.Ctx) error {
	orgID, ok := parseOrgID(c)
	if !ok {
		return response.Error(c, "Invalid org_id", 400, nil)
	}
	paymentID, err := uuid.Parse(c.Params("paymentId"))
	if err != nil {
		return response.Error(c, "Invalid payment_id", 400, nil)
	}

	res, err := h.Review.ApprovePayment(c.Context(), orgID, paymentID, reviewerName(c))
	if err != nil {
		return mapReviewError(c, err)
	}
	data := fiber.Map{"payment": res.Payment, "activated": res.Activated}
	if res.Warning != "" {
		return response.SuccessWithWarning(c, "Payment approved", data, res.Warning)
	}
	return response.Success(c, "Payment approved", data, nil)
}

// RejectPaymentRequest carries the reason and the email opt-in. The rejection
// email is only queued when notify_email is explicitly true.
type RejectPaymentRequest struct {
	Reason      string `json:"reason"`
	NotifyEmail bool   `json:"notify_email"`
}

// RejectPayment POST /api/v1/review/orgs/:orgId/payments/:paymentId/reject
func (h *Handlers) RejectPayment(c *fiber.Ctx) error {
	orgID, ok := parseOrgID(c)
	if !ok {
		return response.Error(c, "Invalid org_id", 400, nil)
	}
	paymentID, err := uuid.Parse(c.Params("paymentId"))
	if err != nil {
		return response.Error(c, "Invalid payment_id", 400, nil)
	}

	var req RejectPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "reason is required", 400, nil)
	}
	res, err := h.Review.RejectPayment(c.Context(), orgID, paymentID, req.Reason, req.NotifyEmail)
	if err != nil {
		return mapReviewError(c, err)
	}
	if res.Warning != "" {
		return response.SuccessWithWarning(c, "Payment rejected", fiber.Map{"payment": res.Payment}, res.Warning)
	}
	return response.Success(c, "Payment rejected", fiber.Map{"payment": res.Payment}, nil)
}

func parseOrgID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("orgId"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func reviewerName(c *fiber.Ctx) string {
	u := middleware.GetUser(c)
	if u == nil {
		return ""
	}
	m, ok := u.(map[string]interface{})
	if !ok {
		return ""
	}
	if name, _ := m["fullname"].(string); name != "" {
		return name
	}
	email, _ := m["email"].(string)
	return email
}

func mapReviewError(c *fiber.Ctx, err error) error {
	var gateErr *reviewsvc.GateViolationError
	if errors.As(err, &gateErr) {
		return response.Error(c, gateErr.Error(), 409, fiber.Map{"blocking_slots": gateErr.Blocking})
	}
	var valErr *reviewsvc.ValidationError
	if errors.As(err, &valErr) {
		return response.Error(c, valErr.Error(), 400, nil)
	}
	switch {
	case errors.Is(err, reviewsvc.ErrOrganizationNotFound),
		errors.Is(err, reviewsvc.ErrDocumentNotFound),
		errors.Is(err, reviewsvc.ErrPaymentNotFound):
		return response.Error(c, err.Error(), 404, nil)
	case errors.Is(err, reviewsvc.ErrUnknownSlot):
		return response.Error(c, err.Error(), 400, nil)
	case errors.Is(err, reviewsvc.ErrPaymentNotPending):
		return response.Error(c, err.Error(), 409, nil)
	default:
		return response.Error(c, "Internal Server Error", 500, nil)
	}
}
