package models

import "time"

// Share permission levels
const (
	PermissionViewOnly = "view_only"
	PermissionDownload = "download"
)

// StoredFile holds metadata for an uploaded file. The file bytes themselves
// live on disk under the configured storage root; this service only needs
// enough metadata to validate and serve share links.
type StoredFile struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OwnerID     uint      `gorm:"not null;index" json:"owner_id"`
	Name        string    `gorm:"not null" json:"name"`
	StoragePath string    `gorm:"not null" json:"-"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// ShareToken is a time-limited, tokenized link to a stored file.
type ShareToken struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Token       string     `gorm:"unique;not null;index" json:"token"`
	FileID      uint       `gorm:"not null;index" json:"file_id"`
	File        StoredFile `json:"-"`
	OwnerID     uint       `gorm:"not null;index" json:"owner_id"`
	Permission  string     `gorm:"default:'view_only'" json:"permission"`
	ExpiresAt   *time.Time `json:"expires_at"`          // nil = never expires
	MaxAccess   *int       `json:"max_access"`          // nil = unlimited
	AccessCount int        `gorm:"default:0" json:"access_count"`
	Active      bool       `gorm:"default:true" json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Valid reports whether the share can still be accessed: it must be active,
// not expired, and not have exhausted its access budget.
func (s *ShareToken) Valid() bool {
	if !s.Active {
		return false
	}
	if s.ExpiresAt != nil && !time.Now().Before(*s.ExpiresAt) {
		return false
	}
	if s.MaxAccess != nil && s.AccessCount >= *s.MaxAccess {
		return false
	}
	return true
}

// Expired reports whether the share's expiry time has passed.
func (s *ShareToken) Expired() bool {
	return s.ExpiresAt != nil && !time.Now().Before(*s.ExpiresAt)
}

// Exhausted reports whether the access budget has been used up.
func (s *ShareToken) Exhausted() bool {
	return s.MaxAccess != nil && s.AccessCount >= *s.MaxAccess
}

// AllowsDownload reports whether the share permits downloading the file
// rather than only viewing its metadata.
func (s *ShareToken) AllowsDownload() bool {
	return s.Permission == PermissionDownload
}
