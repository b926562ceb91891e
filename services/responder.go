package services

import (
	"fmt"
	"sync"
	"time"

	"shareguard/models"
	"shareguard/system"
)

// Blacklister is the slice of the guard the responder needs.
type Blacklister interface {
	AutoBlacklistIP(ip string, duration time.Duration, reason string)
}

// Responder converts a threat level into a mitigation action. CRITICAL and
// HIGH threats blacklist the offending IP; MEDIUM raises the monitoring
// sensitivity marker; LOW is logged only.
type Responder struct {
	cfg       GuardConfig
	blacklist Blacklister
	alerts    *WebhookService
	audit     AuditSink

	mu          sync.Mutex
	sensitivity int // bumped on MEDIUM, cleared by ResetSensitivity
}

func NewResponder(cfg GuardConfig, blacklist Blacklister, alerts *WebhookService, audit AuditSink) *Responder {
	return &Responder{cfg: cfg, blacklist: blacklist, alerts: alerts, audit: audit}
}

// RespondToThreat applies the mitigation for the given level. Blacklisting
// is idempotent: a repeat offender gets its expiry extended, not stacked.
func (r *Responder) RespondToThreat(level ThreatLevel, ip string) {
	switch level {
	case ThreatCritical:
		duration := time.Duration(r.cfg.CriticalBlacklistHours) * time.Hour
		r.blacklist.AutoBlacklistIP(ip, duration, fmt.Sprintf("Critical threat level (auto-response, %dh)", r.cfg.CriticalBlacklistHours))
		r.escalate(level, ip, duration)
	case ThreatHigh:
		duration := time.Duration(r.cfg.HighBlacklistHours) * time.Hour
		r.blacklist.AutoBlacklistIP(ip, duration, fmt.Sprintf("High threat level (auto-response, %dh)", r.cfg.HighBlacklistHours))
	case ThreatMedium:
		r.mu.Lock()
		r.sensitivity++
		r.mu.Unlock()
		system.Info("Monitoring sensitivity raised for medium threat from %s", ip)
	default:
		system.Info("Low threat level recorded for %s", ip)
	}
}

// escalate alerts operators about a critical automated response.
func (r *Responder) escalate(level ThreatLevel, ip string, duration time.Duration) {
	system.Error("CRITICAL threat from %s, blacklisted for %s", ip, duration)

	if r.audit != nil {
		r.audit.Emit(models.SecurityEvent{
			Timestamp:   time.Now(),
			Type:        "auto_response",
			Description: fmt.Sprintf("Automated blacklist of %s for %s after %s threat assessment", ip, duration, level),
			SourceIP:    ip,
			Severity:    level.String(),
		})
	}

	if r.alerts != nil && r.alerts.IsEnabled() {
		if err := r.alerts.SendThreatAlert(ip, level.String(), fmt.Sprintf("Blacklisted for %s", duration)); err != nil {
			system.Warn("Failed to send threat alert for %s: %v", ip, err)
		}
	}
}

// Sensitivity reports the current monitoring sensitivity marker.
func (r *Responder) Sensitivity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sensitivity
}

// ResetSensitivity clears the marker, typically on the daily rollover.
func (r *Responder) ResetSensitivity() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensitivity = 0
}
