package services

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"shareguard/models"
	"shareguard/system"
)

// Scheduler owns the background maintenance loops. The guard core stays a
// pure request/response component; everything periodic lives here. Loops
// take per-call locks only, so maintenance never stalls foreground checks.
type Scheduler struct {
	db        *gorm.DB
	guard     *AccessGuard
	limiter   *RateLimiter
	analytics *Analytics
	webhook   *WebhookService
	responder *Responder
	retention time.Duration

	maintenance *time.Ticker
	hourly      *time.Ticker
	stopChan    chan struct{}
}

func NewScheduler(db *gorm.DB, guard *AccessGuard, limiter *RateLimiter, analytics *Analytics, webhook *WebhookService, responder *Responder, retentionDays int) *Scheduler {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Scheduler{
		db:        db,
		guard:     guard,
		limiter:   limiter,
		analytics: analytics,
		webhook:   webhook,
		responder: responder,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		stopChan:  make(chan struct{}),
	}
}

// Start launches the maintenance loops: counter purge and blacklist pruning
// every 10 minutes, share cleanup hourly, and the security report at
// midnight. Maintenance failures are logged and never abort the next run.
func (s *Scheduler) Start() {
	s.maintenance = time.NewTicker(10 * time.Minute)
	s.hourly = time.NewTicker(1 * time.Hour)

	go s.run()
	go s.dailyReportLoop()
	system.Info("Maintenance scheduler started")
}

func (s *Scheduler) run() {
	for {
		select {
		case <-s.stopChan:
			return
		case <-s.maintenance.C:
			s.limiter.Purge()
			s.guard.PruneBlacklist()
		case <-s.hourly.C:
			s.CleanupExpiredShares()
			s.pruneAccessLogs()
		}
	}
}

// CleanupExpiredShares deactivates shares that have expired or exhausted
// their access budget. Returns how many were deactivated.
func (s *Scheduler) CleanupExpiredShares() int {
	now := time.Now()
	result := s.db.Model(&models.ShareToken{}).
		Where("active = ?", true).
		Where("(expires_at IS NOT NULL AND expires_at <= ?) OR (max_access IS NOT NULL AND access_count >= max_access)", now).
		Update("active", false)
	if result.Error != nil {
		system.Error("Share cleanup failed: %v", result.Error)
		return 0
	}
	if result.RowsAffected > 0 {
		system.Info("Deactivated %d expired or exhausted shares", result.RowsAffected)
	}
	return int(result.RowsAffected)
}

// pruneAccessLogs enforces the retention window on access logs and
// security events.
func (s *Scheduler) pruneAccessLogs() {
	cutoff := time.Now().Add(-s.retention)

	if err := s.db.Where("timestamp < ?", cutoff).Delete(&models.AccessLog{}).Error; err != nil {
		system.Warn("Access log pruning failed: %v", err)
	}
	if err := s.db.Where("timestamp < ?", cutoff).Delete(&models.SecurityEvent{}).Error; err != nil {
		system.Warn("Security event pruning failed: %v", err)
	}
}

// dailyReportLoop sends the daily security report at midnight and resets
// the responder's monitoring sensitivity for the new day.
func (s *Scheduler) dailyReportLoop() {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())

		select {
		case <-s.stopChan:
			return
		case <-time.After(next.Sub(now)):
		}

		s.SendDailyReport()
		if s.responder != nil {
			s.responder.ResetSensitivity()
		}

		// Avoid double firing if execution is fast
		time.Sleep(60 * time.Second)
	}
}

// SendDailyReport posts the trailing 24h security summary to the webhook.
func (s *Scheduler) SendDailyReport() {
	if s.webhook == nil || !s.webhook.IsEnabled() {
		return
	}

	system.Info("Generating daily security report...")
	dash := s.analytics.GenerateDashboard(24)

	yesterday := time.Now().Add(-24 * time.Hour)
	title := fmt.Sprintf("📊 Daily Security Report (%s)", yesterday.Format("2006-01-02"))
	desc := fmt.Sprintf("**Access Summary**\n"+
		"• Total Accesses: `%d`\n"+
		"• Views: `%d` / Downloads: `%d`\n\n"+
		"**Security Summary**\n"+
		"• Denied Attempts: `%d`\n"+
		"• Blacklisted IPs: `%d`\n"+
		"• Anomalies: `%d`\n"+
		"• Security Score: `%d/100`",
		dash.Analytics.TotalAccesses,
		dash.Analytics.ViewAccesses, dash.Analytics.DownloadAccesses,
		dash.Analytics.SuspiciousPatternCount,
		dash.Analytics.BlacklistedCount,
		len(dash.Anomalies),
		dash.SecurityScore)

	if err := s.webhook.SendSystemAlert(title, desc, ColorBlue); err != nil {
		system.Warn("Failed to send daily report: %v", err)
	}
}

// Stop halts all loops.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	if s.maintenance != nil {
		s.maintenance.Stop()
	}
	if s.hourly != nil {
		s.hourly.Stop()
	}
}
