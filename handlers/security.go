package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"shareguard/models"
	"shareguard/system"
)

// GetGuardSettings returns the current guard tunables (ID=1 single row).
func (h *Handler) GetGuardSettings(c *fiber.Ctx) error {
	var settings models.GuardSettings
	if err := h.DB.First(&settings, 1).Error; err != nil {
		settings = models.GuardSettings{ID: 1}
		h.DB.Create(&settings)
	}
	return c.JSON(settings)
}

// UpdateGuardSettings persists new tunables. Webhook changes apply live;
// limit and threshold changes take effect on restart.
func (h *Handler) UpdateGuardSettings(c *fiber.Ctx) error {
	var settings models.GuardSettings
	if err := h.DB.First(&settings, 1).Error; err != nil {
		settings = models.GuardSettings{ID: 1}
	}

	// Parse over the stored row so explicit false/empty values land in the
	// database; Save persists zero values where a struct Updates would not.
	if err := c.BodyParser(&settings); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input"})
	}
	settings.ID = 1

	if err := h.DB.Save(&settings).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save settings"})
	}

	if h.Webhook != nil {
		h.Webhook.SetWebhookURL(settings.DiscordWebhookURL)
	}

	system.Info("Guard settings updated")
	return c.JSON(fiber.Map{"message": "Settings saved", "settings": settings})
}

// TestWebhook sends a test notification to the configured Discord webhook
func (h *Handler) TestWebhook(c *fiber.Ctx) error {
	if h.Webhook == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "Webhook service not available"})
	}

	var settings models.GuardSettings
	if err := h.DB.First(&settings, 1).Error; err == nil && settings.DiscordWebhookURL != "" {
		h.Webhook.SetWebhookURL(settings.DiscordWebhookURL)
	}

	if !h.Webhook.IsEnabled() {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Discord webhook URL not configured"})
	}

	if err := h.Webhook.SendTestAlert(); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"message": "Test notification sent successfully"})
}

// GetBlacklist returns all persisted blacklist entries, newest first.
func (h *Handler) GetBlacklist(c *fiber.Ctx) error {
	var blocked []models.BlacklistEntry
	h.DB.Order("created_at desc").Find(&blocked)
	return c.JSON(fiber.Map{"blocked": blocked})
}

// AddBlacklistIP manually blacklists an IP.
func (h *Handler) AddBlacklistIP(c *fiber.Ctx) error {
	var input struct {
		IP            string `json:"ip"`
		DurationHours int    `json:"duration_hours"`
		Reason        string `json:"reason"`
	}
	if err := c.BodyParser(&input); err != nil || input.IP == "" {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid input"})
	}
	if input.DurationHours <= 0 {
		input.DurationHours = 24
	}
	if input.Reason == "" {
		input.Reason = "Manually blacklisted"
	}

	h.Guard.BlacklistIP(input.IP, time.Duration(input.DurationHours)*time.Hour, input.Reason)
	return c.JSON(fiber.Map{"message": "IP blacklisted", "ip": input.IP})
}

// RemoveBlacklistIP lifts a blacklist entry.
func (h *Handler) RemoveBlacklistIP(c *fiber.Ctx) error {
	ip := c.Params("ip")
	if ip == "" {
		return c.Status(400).JSON(fiber.Map{"error": "Missing IP"})
	}
	h.Guard.UnblacklistIP(ip)
	return c.JSON(fiber.Map{"message": "IP removed from blacklist", "ip": ip})
}

// CheckIPStatus reports an IP's blacklist state and threat level.
func (h *Handler) CheckIPStatus(c *fiber.Ctx) error {
	ip := c.Params("ip")

	status := "neutral"
	reason := "Not in any blacklist"
	if h.Guard.IsBlacklisted(ip) {
		status = "blocked"
		var entry models.BlacklistEntry
		if err := h.DB.Where("ip = ?", ip).First(&entry).Error; err == nil {
			reason = "Blacklisted: " + entry.Reason
		} else {
			reason = "Blacklisted"
		}
	}

	return c.JSON(fiber.Map{
		"ip":           ip,
		"status":       status,
		"reason":       reason,
		"threat_level": h.Guard.GetThreatLevel(ip).String(),
	})
}

// ClearSecurityState resets counters, threat levels, and automated bans.
func (h *Handler) ClearSecurityState(c *fiber.Ctx) error {
	h.Guard.ClearSecurityState()
	return c.JSON(fiber.Map{"message": "Security state cleared"})
}
