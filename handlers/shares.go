package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"shareguard/models"
	"shareguard/services"
	"shareguard/system"
)

// CreateShare issues a tokenized link to one of the caller's files. The
// request passes through the guard's creation chain first; denials map to
// 429 (rate limited) or 403.
func (h *Handler) CreateShare(c *fiber.Ctx) error {
	userID := CurrentUserID(c)
	ip := c.IP()

	var input struct {
		FileID         uint   `json:"file_id"`
		Permission     string `json:"permission"`
		ExpiresInHours int    `json:"expires_in_hours"`
		MaxAccess      *int   `json:"max_access"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid input"})
	}
	if input.Permission == "" {
		input.Permission = models.PermissionViewOnly
	}
	if input.Permission != models.PermissionViewOnly && input.Permission != models.PermissionDownload {
		return c.Status(400).JSON(fiber.Map{"error": "Unknown permission"})
	}

	decision := h.Guard.ValidateShareCreation(userID, ip, c.Get("User-Agent"))
	if !decision.Allowed {
		return denialResponse(c, decision)
	}

	// The file must exist and belong to the caller
	var file models.StoredFile
	if err := h.DB.First(&file, input.FileID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "File not found"})
	}
	if file.OwnerID != userID {
		return c.Status(403).JSON(fiber.Map{"error": "Not your file"})
	}

	share := models.ShareToken{
		Token:      uuid.NewString(),
		FileID:     file.ID,
		OwnerID:    userID,
		Permission: input.Permission,
		MaxAccess:  input.MaxAccess,
		Active:     true,
	}
	if input.ExpiresInHours > 0 {
		expires := time.Now().Add(time.Duration(input.ExpiresInHours) * time.Hour)
		share.ExpiresAt = &expires
	}

	if err := h.DB.Create(&share).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	h.Guard.RecordShareCreation(userID, ip)
	system.Info("Share %s created by user %d for file %d", share.Token, userID, file.ID)

	return c.Status(201).JSON(share)
}

// ListShares returns the caller's shares, newest first.
func (h *Handler) ListShares(c *fiber.Ctx) error {
	userID := CurrentUserID(c)

	var shares []models.ShareToken
	if err := h.DB.Where("owner_id = ?", userID).Order("created_at desc").Find(&shares).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(shares)
}

// RevokeShare deactivates one of the caller's shares.
func (h *Handler) RevokeShare(c *fiber.Ctx) error {
	userID := CurrentUserID(c)
	id := c.Params("id")

	var share models.ShareToken
	if err := h.DB.First(&share, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "Share not found"})
	}
	if share.OwnerID != userID {
		return c.Status(403).JSON(fiber.Map{"error": "Not your share"})
	}

	share.Active = false
	if err := h.DB.Save(&share).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}

	system.Info("Share %s revoked by user %d", share.Token, userID)
	return c.JSON(fiber.Map{"message": "Share revoked"})
}

// denialResponse maps a guard denial onto an HTTP response. Rate-limit
// denials carry Retry-After so well-behaved clients back off correctly.
func denialResponse(c *fiber.Ctx, decision services.GuardDecision) error {
	status := http.StatusForbidden
	switch decision.Kind {
	case services.DenyInvalidToken:
		status = http.StatusNotFound
	case services.DenySystemError:
		status = http.StatusServiceUnavailable
	case services.DenyIPBlacklisted, services.DenyGeoRestricted, services.DenySuspicious, services.DenyPermission:
		status = http.StatusForbidden
	default:
		// Rate-limit kinds
		status = http.StatusTooManyRequests
	}

	body := fiber.Map{"error": decision.Reason, "kind": decision.Kind}
	if decision.ResetAt != nil {
		body["reset_at"] = decision.ResetAt
		c.Set("Retry-After", decision.ResetAt.UTC().Format(http.TimeFormat))
	}
	return c.Status(status).JSON(body)
}
