package models

import "time"

// AccessLog records every share access attempt, successful or denied.
// It is the authoritative historical signal behind threat assessment and
// anomaly detection, independent of the in-memory rate-limit counters.
type AccessLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ShareID      uint      `gorm:"index" json:"share_id"`
	UserID       *uint     `json:"user_id"`
	IP           string    `gorm:"index" json:"ip"`
	UserAgent    string    `json:"user_agent"`
	AccessType   string    `json:"access_type"` // "view", "download", "create"
	Success      bool      `json:"success"`
	DenialReason string    `json:"denial_reason,omitempty"`
	Timestamp    time.Time `gorm:"index" json:"timestamp"`
}

// SecurityEvent records guard decisions and automated responses for audit.
type SecurityEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Timestamp   time.Time `gorm:"index" json:"timestamp"`
	Type        string    `gorm:"index" json:"type"` // "rate_limit", "blacklist", "suspicious_activity", ...
	Description string    `json:"description"`
	SourceIP    string    `gorm:"index" json:"source_ip"`
	CountryCode string    `json:"country_code"`
	CountryName string    `json:"country_name"`
	Severity    string    `json:"severity"` // "LOW", "MEDIUM", "HIGH", "CRITICAL"
}

// BlacklistEntry is the persisted mirror of a blacklisted IP. The in-memory
// set inside the guard is authoritative at request time; these rows keep
// manual bans across restarts and feed the admin UI.
type BlacklistEntry struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	IP        string     `gorm:"unique;not null" json:"ip"`
	Reason    string     `json:"reason"`
	IsAuto    bool       `gorm:"default:false" json:"is_auto"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Expired reports whether the entry's expiry has passed. Entries with no
// expiry never expire.
func (b *BlacklistEntry) Expired() bool {
	return b.ExpiresAt != nil && time.Now().After(*b.ExpiresAt)
}
