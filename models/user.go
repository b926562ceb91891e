package models

import "time"

// User is an account that can create shares and sign in to the API.
type User struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Username          string     `gorm:"unique;not null" json:"username"`
	Password          string     `gorm:"not null" json:"-"` // Stored hashed
	IsAdmin           bool       `gorm:"default:false" json:"is_admin"`
	CreatedAt         time.Time  `json:"created_at"`
	FailedAttempts    int        `gorm:"default:0" json:"-"`
	LastFailedAttempt *time.Time `json:"-"`
	LockedUntil       *time.Time `json:"-"`
}

// GuardSettings is the single-row tunables record for the access guard.
// Defaults mirror services.DefaultGuardConfig; the row keeps operator
// overrides across restarts.
type GuardSettings struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Rate limiting
	MaxSharesPerHour              int     `gorm:"default:10" json:"max_shares_per_hour"`
	MaxAccessPerIPPerHour         int     `gorm:"default:100" json:"max_access_per_ip_per_hour"`
	MaxAccessPerShareIPPerHour    int     `gorm:"default:30" json:"max_access_per_share_ip_per_hour"`
	RateLimitWindowHours          int     `gorm:"default:1" json:"rate_limit_window_hours"`
	BurstAllowance                int     `gorm:"default:5" json:"burst_allowance"`
	TrustedUserMultiplier         float64 `gorm:"default:2" json:"trusted_user_multiplier"`

	// Threat assessment / anomaly detection
	SuspiciousActivityThreshold int     `gorm:"default:50" json:"suspicious_activity_threshold"`
	AnomalyThreshold            float64 `gorm:"default:2" json:"anomaly_threshold"`
	AlertThreshold              int     `gorm:"default:100" json:"alert_threshold"`
	BaselineDays                int     `gorm:"default:7" json:"baseline_days"`

	// Automated response
	CriticalBlacklistHours int `gorm:"default:24" json:"critical_blacklist_hours"`
	HighBlacklistHours     int `gorm:"default:4" json:"high_blacklist_hours"`

	// Alerting
	DiscordWebhookURL string `json:"discord_webhook_url,omitempty"`
	AlertOnBlacklist  bool   `gorm:"default:true" json:"alert_on_blacklist"`

	// Data retention
	AccessLogRetentionDays int `gorm:"default:30" json:"access_log_retention_days"`

	UpdatedAt time.Time `json:"updated_at"`
}
