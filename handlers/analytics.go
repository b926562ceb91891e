package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"shareguard/models"
)

func windowHoursParam(c *fiber.Ctx) int {
	hours, err := strconv.Atoi(c.Query("window_hours", "24"))
	if err != nil || hours <= 0 || hours > 24*30 {
		return 24
	}
	return hours
}

// GetAnalytics returns aggregate access and security stats for a window.
func (h *Handler) GetAnalytics(c *fiber.Ctx) error {
	return c.JSON(h.Analytics.GetAnalytics(windowHoursParam(c)))
}

// GetDashboard returns the full security dashboard: analytics, anomalies,
// access patterns, top events, and the computed security score.
func (h *Handler) GetDashboard(c *fiber.Ctx) error {
	return c.JSON(h.Analytics.GenerateDashboard(windowHoursParam(c)))
}

// GetSecurityEvents returns the security event log with paging
func (h *Handler) GetSecurityEvents(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := h.DB.Model(&models.SecurityEvent{})
	if severity := c.Query("severity"); severity != "" {
		query = query.Where("severity = ?", severity)
	}
	if ip := c.Query("ip"); ip != "" {
		query = query.Where("source_ip = ?", ip)
	}

	var total int64
	query.Count(&total)

	var events []models.SecurityEvent
	query.Order("timestamp desc").Offset((page - 1) * limit).Limit(limit).Find(&events)

	return c.JSON(fiber.Map{
		"events": events,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

// GetAccessLogs returns recent access-log rows for a share or IP with paging.
func (h *Handler) GetAccessLogs(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := h.DB.Model(&models.AccessLog{})
	if shareID := c.Query("share_id"); shareID != "" {
		query = query.Where("share_id = ?", shareID)
	}
	if ip := c.Query("ip"); ip != "" {
		query = query.Where("ip = ?", ip)
	}
	if c.Query("denied") == "true" {
		query = query.Where("success = ?", false)
	}

	var total int64
	query.Count(&total)

	var logs []models.AccessLog
	query.Order("timestamp desc").Offset((page - 1) * limit).Limit(limit).Find(&logs)

	return c.JSON(fiber.Map{
		"logs":  logs,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}
