package services

import (
	"time"

	"gorm.io/gorm"

	"shareguard/models"
	"shareguard/system"
)

// Analytics status markers. Analytics runs on a schedule as well as on
// demand, so a failed run degrades to StatusError instead of aborting.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// SecurityAnalytics aggregates guard activity over a trailing window.
type SecurityAnalytics struct {
	Status                 string `json:"status"`
	WindowHours            int    `json:"window_hours"`
	TotalAccesses          int64  `json:"total_accesses"`
	ViewAccesses           int64  `json:"view_accesses"`
	DownloadAccesses       int64  `json:"download_accesses"`
	SuspiciousPatternCount int64  `json:"suspicious_pattern_count"`
	BlacklistedCount       int    `json:"blacklisted_count"`
	HighThreatCount        int    `json:"high_threat_count"`
}

// RateLimitAnalytics exposes the limiter's live footprint.
type RateLimitAnalytics struct {
	TrackedKeys      int `json:"tracked_keys"`
	WindowHours      int `json:"window_hours"`
	MaxSharesPerHour int `json:"max_shares_per_hour"`
	MaxAccessPerHour int `json:"max_access_per_hour"`
}

// Dashboard is the full security overview for operators.
type Dashboard struct {
	Status         string                 `json:"status"`
	GeneratedAt    time.Time              `json:"generated_at"`
	Analytics      SecurityAnalytics      `json:"analytics"`
	RateLimit      RateLimitAnalytics     `json:"rate_limit"`
	Anomalies      []Anomaly              `json:"anomalies"`
	TopEvents      []models.SecurityEvent `json:"top_events"`
	AccessPatterns map[int]int64          `json:"access_patterns"` // hour of day -> accesses
	SecurityScore  int                    `json:"security_score"`
}

// Analytics builds security summaries and the operator dashboard from the
// access log, the guard's live state, and the anomaly detector.
type Analytics struct {
	cfg       GuardConfig
	db        *gorm.DB
	logs      AccessLogStore
	guard     *AccessGuard
	limiter   *RateLimiter
	threats   *ThreatAssessor
	anomalies *AnomalyDetector
	nowFn     func() time.Time
}

func NewAnalytics(cfg GuardConfig, db *gorm.DB, logs AccessLogStore, guard *AccessGuard, limiter *RateLimiter, threats *ThreatAssessor, anomalies *AnomalyDetector) *Analytics {
	return &Analytics{
		cfg:       cfg,
		db:        db,
		logs:      logs,
		guard:     guard,
		limiter:   limiter,
		threats:   threats,
		anomalies: anomalies,
		nowFn:     time.Now,
	}
}

// GetAnalytics summarizes the trailing windowHours of guard activity. A
// storage failure yields a degraded result with Status ERROR rather than an
// error: analytics feed dashboards and scheduled reports, and one failed
// run must not abort the next.
func (a *Analytics) GetAnalytics(windowHours int) SecurityAnalytics {
	if windowHours <= 0 {
		windowHours = 24
	}
	now := a.nowFn()
	since := now.Add(-time.Duration(windowHours) * time.Hour)

	out := SecurityAnalytics{
		Status:           StatusOK,
		WindowHours:      windowHours,
		BlacklistedCount: a.guard.BlacklistedCount(),
		HighThreatCount:  a.threats.HighThreatCount(),
	}

	total, err := a.logs.CountAccessesBetween(since, now)
	if err != nil {
		system.Error("Analytics aggregation failed: %v", err)
		out.Status = StatusError
		return out
	}
	out.TotalAccesses = total

	if out.ViewAccesses, err = a.logs.CountByTypeBetween(AccessView, since, now); err != nil {
		system.Error("Analytics aggregation failed: %v", err)
		out.Status = StatusError
		return out
	}
	if out.DownloadAccesses, err = a.logs.CountByTypeBetween(AccessDownload, since, now); err != nil {
		system.Error("Analytics aggregation failed: %v", err)
		out.Status = StatusError
		return out
	}
	if out.SuspiciousPatternCount, err = a.logs.CountDenialsBetween(since, now); err != nil {
		system.Error("Analytics aggregation failed: %v", err)
		out.Status = StatusError
		return out
	}

	return out
}

// GenerateDashboard builds the full operator overview for the trailing
// windowHours. Partial failures degrade the affected section and mark the
// dashboard ERROR; whatever could be computed is still returned.
func (a *Analytics) GenerateDashboard(windowHours int) Dashboard {
	if windowHours <= 0 {
		windowHours = 24
	}
	now := a.nowFn()
	since := now.Add(-time.Duration(windowHours) * time.Hour)

	dash := Dashboard{
		Status:      StatusOK,
		GeneratedAt: now,
		Analytics:   a.GetAnalytics(windowHours),
		RateLimit: RateLimitAnalytics{
			TrackedKeys:      a.limiter.TrackedKeys(),
			WindowHours:      a.cfg.RateLimitWindowHours,
			MaxSharesPerHour: a.cfg.MaxSharesPerHour,
			MaxAccessPerHour: a.cfg.MaxAccessPerIPPerHour,
		},
	}
	if dash.Analytics.Status != StatusOK {
		dash.Status = StatusError
	}

	anomalies, err := a.anomalies.DetectAnomalies(since, now)
	if err != nil {
		system.Error("Anomaly detection failed: %v", err)
		dash.Status = StatusError
	}
	dash.Anomalies = anomalies

	patterns, err := a.logs.AccessCountsByHour(since, now)
	if err != nil {
		system.Error("Access pattern aggregation failed: %v", err)
		dash.Status = StatusError
	}
	dash.AccessPatterns = patterns

	if a.db != nil {
		var events []models.SecurityEvent
		err := a.db.Where("timestamp >= ?", since).
			Order("timestamp DESC").
			Limit(20).
			Find(&events).Error
		if err != nil {
			system.Error("Security event lookup failed: %v", err)
			dash.Status = StatusError
		}
		dash.TopEvents = events
	}

	dash.SecurityScore = a.securityScore(dash)
	return dash
}

// securityScore condenses the dashboard into a 0-100 health score. Each
// penalty is capped so one noisy signal cannot zero the score alone.
func (a *Analytics) securityScore(dash Dashboard) int {
	score := 100

	score -= capped(dash.Analytics.BlacklistedCount*5, 30)
	score -= capped(dash.Analytics.HighThreatCount*10, 30)
	score -= capped(len(dash.Anomalies)*5, 20)
	if dash.Analytics.TotalAccesses > 0 {
		ratio := float64(dash.Analytics.SuspiciousPatternCount) / float64(dash.Analytics.TotalAccesses)
		score -= capped(int(ratio*40), 20)
	}

	if score < 0 {
		score = 0
	}
	return score
}

func capped(value, cap int) int {
	if value > cap {
		return cap
	}
	return value
}
