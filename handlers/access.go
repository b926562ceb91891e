package handlers

import (
	"github.com/gofiber/fiber/v2"

	"shareguard/models"
	"shareguard/services"
	"shareguard/system"
)

// ViewShare serves a shared file's metadata through the guard's access
// chain. Every attempt, allowed or denied, is recorded.
func (h *Handler) ViewShare(c *fiber.Ctx) error {
	return h.accessShare(c, services.AccessView)
}

// DownloadShare serves the shared file bytes; requires download permission.
func (h *Handler) DownloadShare(c *fiber.Ctx) error {
	return h.accessShare(c, services.AccessDownload)
}

func (h *Handler) accessShare(c *fiber.Ctx, accessType services.AccessType) error {
	token := c.Params("token")
	ip := c.IP()
	userAgent := c.Get("User-Agent")

	decision := h.Guard.ValidateShareAccess(token, ip, userAgent, accessType)
	if !decision.Allowed {
		if err := h.Guard.RecordShareAccess(token, ip, userAgent, accessType, false, string(decision.Kind)); err != nil {
			system.Warn("Failed to record denied access for %s: %v", ip, err)
		}
		return denialResponse(c, decision)
	}

	share := decision.Share

	var file models.StoredFile
	if err := h.DB.First(&file, share.FileID).Error; err != nil {
		system.Error("Shared file %d missing for share %s: %v", share.FileID, share.Token, err)
		return c.Status(500).JSON(fiber.Map{"error": "Shared file unavailable"})
	}

	if err := h.Guard.RecordShareAccess(token, ip, userAgent, accessType, true, ""); err != nil {
		system.Warn("Failed to record access for %s: %v", ip, err)
	}

	if accessType == services.AccessDownload {
		return c.Download(file.StoragePath, file.Name)
	}

	return c.JSON(fiber.Map{
		"name":         file.Name,
		"content_type": file.ContentType,
		"size_bytes":   file.SizeBytes,
		"permission":   share.Permission,
		"expires_at":   share.ExpiresAt,
	})
}
