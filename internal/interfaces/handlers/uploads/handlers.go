package uploads

import (
	uploadsvc "assohub-backend/internal/application/uploads"
	"assohub-backend/internal/domain"
	"assohub-backend/internal/middleware"
	"assohub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Handlers bundles upload handlers with the service.
type Handlers struct {
	Service *uploadsvc.Service
}

type documentUploadRequest struct {
	SlotKey  string `json:"slot_key"`
	FileName string `json:"file_name"`
}

// SignDocument POST /api/v1/uploads/document issues a signed upload URL for a
// document slot artifact.
func (h *Handlers) SignDocument(c *fiber.Ctx) error {
	var req documentUploadRequest
	if err := c.BodyParser(&req); err != nil || req.FileName == "" || req.SlotKey == "" {
		return response.Error(c, "slot_key and file_name are required", 400, nil)
	}
	if _, ok := domain.SlotByKey(req.SlotKey); !ok {
		return response.Error(c, "Unknown document slot", 400, nil)
	}

	orgID := sessionOrgID(c)
	if orgID == "" {
		return response.Error(c, "User is not associated with any organization", 403, nil)
	}

	res, err := h.Service.SignDocumentUpload(c.Context(), orgID, req.SlotKey, req.FileName)
	if err != nil {
		log.Error().Err(err).Str("slot_key", req.SlotKey).Msg("upload: failed to generate signed URL")
		return response.Error(c, "Failed to generate upload URL", 500, nil)
	}
	return response.Success(c, "Upload URL generated", res, nil)
}

type receiptUploadRequest struct {
	FileName string `json:"file_name"`
}

// SignReceipt POST /api/v1/uploads/receipt issues a signed upload URL for a
// payment receipt.
func (h *Handlers) SignReceipt(c *fiber.Ctx) error {
	var req receiptUploadRequest
	if err := c.BodyParser(&req); err != nil || req.FileName == "" {
		return response.Error(c, "file_name is required", 400, nil)
	}

	orgID := sessionOrgID(c)
	if orgID == "" {
		return response.Error(c, "User is not associated with any organization", 403, nil)
	}

	res, err := h.Service.SignReceiptUpload(c.Context(), orgID, req.FileName)
	if err != nil {
		log.Error().Err(err).Msg("upload: failed to generate signed URL")
		return response.Error(c, "Failed to generate upload URL", 500, nil)
	}
	return response.Success(c, "Upload URL generated", res, nil)
}

func sessionOrgID(c *fiber.Ctx) string {
	u := middleware.GetUser(c)
	if u == nil {
		return ""
	}
	m, ok := u.(map[string]interface{})
	if !ok {
		return ""
	}
	orgID, _ := m["org_id"].(string)
	return orgID
}
