package services

import "shareguard/models"

// TrustedUserFn decides whether a user gets relaxed share-creation limits.
// A nil predicate means no user is ever trusted.
type TrustedUserFn func(userID uint) bool

// GeoPolicy decides whether an IP's location is acceptable. A nil policy
// allows everything; geolocation-based filtering is deliberately not built in.
type GeoPolicy func(ip string) bool

// GuardConfig carries the tunables for the access guard engine. All fields
// have working defaults from DefaultGuardConfig; operators override them via
// the persisted GuardSettings row.
type GuardConfig struct {
	// Rate limiting
	MaxSharesPerHour           int     // shares one user or IP may create per window
	MaxAccessPerIPPerHour      int     // total share accesses per IP per window
	MaxAccessPerShareIPPerHour int     // accesses to one share per IP per window
	RateLimitWindowHours       int     // sliding window size
	BurstAllowance             int     // headroom above the nominal limit before the hard cap
	TrustedUserMultiplier      float64 // limit scale factor for trusted users

	// Threat assessment
	SuspiciousActivityThreshold int // accesses/hour from one IP before HIGH

	// Anomaly detection
	AnomalyThreshold float64 // multiplier over baseline before flagging
	AlertThreshold   int     // per-IP access count scale for suspicious-IP anomalies
	BaselineDays     int     // history window backing the frequency baseline

	// Automated response
	CriticalBlacklistHours int
	HighBlacklistHours     int
}

// DefaultGuardConfig returns the documented defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxSharesPerHour:            10,
		MaxAccessPerIPPerHour:       100,
		MaxAccessPerShareIPPerHour:  30,
		RateLimitWindowHours:        1,
		BurstAllowance:              5,
		TrustedUserMultiplier:       2,
		SuspiciousActivityThreshold: 50,
		AnomalyThreshold:            2,
		AlertThreshold:              100,
		BaselineDays:                7,
		CriticalBlacklistHours:      24,
		HighBlacklistHours:          4,
	}
}

// ConfigFromSettings maps the persisted settings row onto a GuardConfig,
// falling back to defaults for unset values.
func ConfigFromSettings(s *models.GuardSettings) GuardConfig {
	cfg := DefaultGuardConfig()
	if s == nil {
		return cfg
	}
	if s.MaxSharesPerHour > 0 {
		cfg.MaxSharesPerHour = s.MaxSharesPerHour
	}
	if s.MaxAccessPerIPPerHour > 0 {
		cfg.MaxAccessPerIPPerHour = s.MaxAccessPerIPPerHour
	}
	if s.MaxAccessPerShareIPPerHour > 0 {
		cfg.MaxAccessPerShareIPPerHour = s.MaxAccessPerShareIPPerHour
	}
	if s.RateLimitWindowHours > 0 {
		cfg.RateLimitWindowHours = s.RateLimitWindowHours
	}
	if s.BurstAllowance >= 0 {
		cfg.BurstAllowance = s.BurstAllowance
	}
	if s.TrustedUserMultiplier >= 1 {
		cfg.TrustedUserMultiplier = s.TrustedUserMultiplier
	}
	if s.SuspiciousActivityThreshold > 0 {
		cfg.SuspiciousActivityThreshold = s.SuspiciousActivityThreshold
	}
	if s.AnomalyThreshold > 0 {
		cfg.AnomalyThreshold = s.AnomalyThreshold
	}
	if s.AlertThreshold > 0 {
		cfg.AlertThreshold = s.AlertThreshold
	}
	if s.BaselineDays > 0 {
		cfg.BaselineDays = s.BaselineDays
	}
	if s.CriticalBlacklistHours > 0 {
		cfg.CriticalBlacklistHours = s.CriticalBlacklistHours
	}
	if s.HighBlacklistHours > 0 {
		cfg.HighBlacklistHours = s.HighBlacklistHours
	}
	return cfg
}
