package services

import (
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"shareguard/models"
)

// ShareStore is the persistence boundary for share tokens. The guard only
// reads and bumps counters; the store owns the rows.
type ShareStore interface {
	ResolveShareToken(token string) (*models.ShareToken, error)
	SaveShareToken(share *models.ShareToken) error
	IncrementAccessCount(shareID uint) error
}

// AccessLogStore is the persistence boundary for the access log. Its counts
// back threat assessment and anomaly detection as a signal independent of
// the in-memory rate-limit counters.
type AccessLogStore interface {
	RecordAccess(entry *models.AccessLog) error
	CountAccessesSince(ip string, since time.Time) (int64, error)
	CountAccessesBetween(since, until time.Time) (int64, error)
	AccessCountsByIP(since, until time.Time) (map[string]int64, error)
	AccessCountsByHour(since, until time.Time) (map[int]int64, error)
	CountByTypeBetween(accessType AccessType, since, until time.Time) (int64, error)
	CountDenialsBetween(since, until time.Time) (int64, error)
}

// GormStore implements the storage collaborators on a gorm database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// ResolveShareToken looks up a share by its token string. A missing share is
// (nil, nil); only genuine storage failures return an error.
func (s *GormStore) ResolveShareToken(token string) (*models.ShareToken, error) {
	var share models.ShareToken
	err := s.db.Where("token = ?", token).First(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &share, nil
}

func (s *GormStore) SaveShareToken(share *models.ShareToken) error {
	return s.db.Save(share).Error
}

func (s *GormStore) IncrementAccessCount(shareID uint) error {
	return s.db.Model(&models.ShareToken{}).
		Where("id = ?", shareID).
		UpdateColumn("access_count", gorm.Expr("access_count + 1")).Error
}

func (s *GormStore) RecordAccess(entry *models.AccessLog) error {
	return s.db.Create(entry).Error
}

func (s *GormStore) CountAccessesSince(ip string, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.AccessLog{}).
		Where("ip = ? AND timestamp >= ?", ip, since).
		Count(&count).Error
	return count, err
}

func (s *GormStore) CountAccessesBetween(since, until time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.AccessLog{}).
		Where("timestamp >= ? AND timestamp < ?", since, until).
		Count(&count).Error
	return count, err
}

func (s *GormStore) AccessCountsByIP(since, until time.Time) (map[string]int64, error) {
	var rows []struct {
		IP    string
		Count int64
	}
	err := s.db.Model(&models.AccessLog{}).
		Select("ip, COUNT(*) as count").
		Where("timestamp >= ? AND timestamp < ?", since, until).
		Group("ip").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.IP] = row.Count
	}
	return counts, nil
}

func (s *GormStore) AccessCountsByHour(since, until time.Time) (map[int]int64, error) {
	var rows []struct {
		Hour  string
		Count int64
	}
	// SQLite strftime; hour of day 00-23.
	err := s.db.Model(&models.AccessLog{}).
		Select("strftime('%H', timestamp) as hour, COUNT(*) as count").
		Where("timestamp >= ? AND timestamp < ?", since, until).
		Group("hour").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[int]int64, len(rows))
	for _, row := range rows {
		hour, err := strconv.Atoi(row.Hour)
		if err != nil || hour < 0 || hour > 23 {
			continue
		}
		counts[hour] = row.Count
	}
	return counts, nil
}

func (s *GormStore) CountByTypeBetween(accessType AccessType, since, until time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.AccessLog{}).
		Where("access_type = ? AND timestamp >= ? AND timestamp < ?", string(accessType), since, until).
		Count(&count).Error
	return count, err
}

func (s *GormStore) CountDenialsBetween(since, until time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.AccessLog{}).
		Where("success = ? AND timestamp >= ? AND timestamp < ?", false, since, until).
		Count(&count).Error
	return count, err
}
