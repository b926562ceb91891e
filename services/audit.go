package services

import (
	"gorm.io/gorm"

	"shareguard/models"
	"shareguard/system"
)

// DBAuditSink persists security events and mirrors the severe ones to the
// webhook alerter. Emit never fails loudly: the guard's decision path is
// already done by the time events land here, so failures are only logged.
type DBAuditSink struct {
	db      *gorm.DB
	geoip   *GeoIPService
	webhook *WebhookService
}

func NewDBAuditSink(db *gorm.DB, geoip *GeoIPService, webhook *WebhookService) *DBAuditSink {
	return &DBAuditSink{db: db, geoip: geoip, webhook: webhook}
}

// Emit annotates the event with the source country, stores it, and alerts
// on HIGH and CRITICAL severities.
func (s *DBAuditSink) Emit(event models.SecurityEvent) {
	if s.geoip != nil && event.SourceIP != "" {
		event.CountryName, event.CountryCode = s.geoip.GetCountry(event.SourceIP)
	}

	if s.db != nil {
		if err := s.db.Create(&event).Error; err != nil {
			system.Warn("Failed to store security event: %v", err)
		}
	}

	if s.webhook != nil && s.webhook.IsEnabled() &&
		(event.Severity == ThreatHigh.String() || event.Severity == ThreatCritical.String()) {
		if event.Type == "blacklist" {
			if err := s.webhook.SendBlacklistAlert(event.SourceIP, event.CountryName, event.Description); err != nil {
				system.Warn("Failed to send blacklist alert: %v", err)
			}
		}
	}
}
