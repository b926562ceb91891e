package services

import (
	"time"

	"shareguard/models"
)

// AccessType distinguishes share view from download requests. Downloads are
// costlier to serve, so some limits treat them more strictly.
type AccessType string

const (
	AccessView     AccessType = "view"
	AccessDownload AccessType = "download"
)

// LimitKind identifies which rate-limit tier denied a request.
type LimitKind string

const (
	LimitUserShareCreation LimitKind = "USER_SHARE_CREATION"
	LimitIPShareCreation   LimitKind = "IP_SHARE_CREATION"
	LimitIPGlobalAccess    LimitKind = "IP_GLOBAL_ACCESS"
	LimitIPShareAccess     LimitKind = "IP_SHARE_ACCESS"
	LimitUserAccess        LimitKind = "USER_ACCESS"
	LimitAccessType        LimitKind = "ACCESS_TYPE"
	LimitBurstProtection   LimitKind = "BURST_PROTECTION"
)

// DenialKind identifies why the guard denied a request. Rate-limit denials
// reuse the LimitKind value verbatim.
type DenialKind string

const (
	DenyIPBlacklisted     DenialKind = "IP_BLACKLISTED"
	DenyGeoRestricted     DenialKind = "GEOLOCATION_RESTRICTED"
	DenySuspicious        DenialKind = "SUSPICIOUS_ACTIVITY"
	DenyPermission        DenialKind = "PERMISSION_DENIED"
	DenyInvalidToken      DenialKind = "INVALID_TOKEN"
	DenySystemError       DenialKind = "SYSTEM_ERROR"
)

// ThreatLevel classifies how suspicious an IP's recent behavior is.
// The ordering is load-bearing: comparisons use the numeric value.
type ThreatLevel int

const (
	ThreatLow ThreatLevel = iota
	ThreatMedium
	ThreatHigh
	ThreatCritical
)

func (t ThreatLevel) String() string {
	switch t {
	case ThreatLow:
		return "LOW"
	case ThreatMedium:
		return "MEDIUM"
	case ThreatHigh:
		return "HIGH"
	case ThreatCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// RateLimitDecision is the immutable outcome of a rate-limit check.
// Allowed=false always carries the tier that denied in Kind.
type RateLimitDecision struct {
	Allowed bool      `json:"allowed"`
	Kind    LimitKind `json:"kind,omitempty"`
	Current int       `json:"current"`
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
}

// GuardDecision is the outcome of a full guard validation.
type GuardDecision struct {
	Allowed bool               `json:"allowed"`
	Kind    DenialKind         `json:"kind,omitempty"`
	Reason  string             `json:"reason,omitempty"`
	ResetAt *time.Time         `json:"reset_at,omitempty"` // set on rate-limit denials
	Share   *models.ShareToken `json:"-"`                  // resolved share on allowed access
}

// Anomaly is a statistically flagged deviation from the historical baseline,
// distinct from a hard rate-limit breach. Produced, never mutated.
type Anomaly struct {
	Type        string      `json:"type"` // "frequency_spike", "suspicious_ip", "off_hours_activity"
	Description string      `json:"description"`
	Severity    ThreatLevel `json:"severity"`
	DetectedAt  time.Time   `json:"detected_at"`
}

func allowDecision() GuardDecision {
	return GuardDecision{Allowed: true}
}

func denyDecision(kind DenialKind, reason string) GuardDecision {
	return GuardDecision{Kind: kind, Reason: reason}
}
