package handlers

import (
	"gorm.io/gorm"

	"shareguard/services"
)

type Handler struct {
	DB        *gorm.DB
	Guard     *services.AccessGuard
	Analytics *services.Analytics
	Webhook   *services.WebhookService
}

func NewHandler(db *gorm.DB, guard *services.AccessGuard, analytics *services.Analytics, webhook *services.WebhookService) *Handler {
	return &Handler{DB: db, Guard: guard, Analytics: analytics, Webhook: webhook}
}
