package services

import (
	"sync"
	"time"

	"shareguard/models"
)

// stubLogStore is a hand-rolled AccessLogStore whose answers the tests set
// directly. Any method can be forced to fail via err.
type stubLogStore struct {
	mu sync.Mutex

	err error

	countSince   int64
	countBetween func(since, until time.Time) int64
	byIP         map[string]int64
	byHour       map[int]int64
	byType       map[AccessType]int64
	denials      int64

	recorded []models.AccessLog
}

func (s *stubLogStore) RecordAccess(entry *models.AccessLog) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, *entry)
	return nil
}

func (s *stubLogStore) CountAccessesSince(ip string, since time.Time) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.countSince, nil
}

func (s *stubLogStore) CountAccessesBetween(since, until time.Time) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.countBetween != nil {
		return s.countBetween(since, until), nil
	}
	return 0, nil
}

func (s *stubLogStore) AccessCountsByIP(since, until time.Time) (map[string]int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byIP, nil
}

func (s *stubLogStore) AccessCountsByHour(since, until time.Time) (map[int]int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byHour, nil
}

func (s *stubLogStore) CountByTypeBetween(accessType AccessType, since, until time.Time) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.byType[accessType], nil
}

func (s *stubLogStore) CountDenialsBetween(since, until time.Time) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.denials, nil
}

// failingShareStore errors on every call, for fail-closed tests.
type failingShareStore struct{ err error }

func (f *failingShareStore) ResolveShareToken(token string) (*models.ShareToken, error) {
	return nil, f.err
}

func (f *failingShareStore) SaveShareToken(share *models.ShareToken) error {
	return f.err
}

func (f *failingShareStore) IncrementAccessCount(shareID uint) error {
	return f.err
}
