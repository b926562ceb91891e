package services

import (
	"sync"
	"time"

	"shareguard/system"
)

// ThreatAssessor converts recent access frequency into a discrete threat
// level per IP. It reads the access log rather than the rate limiter's own
// counters so the two signals stay independent.
type ThreatAssessor struct {
	cfg   GuardConfig
	logs  AccessLogStore
	mu    sync.RWMutex
	level map[string]ThreatLevel
	nowFn func() time.Time
}

func NewThreatAssessor(cfg GuardConfig, logs AccessLogStore) *ThreatAssessor {
	return &ThreatAssessor{
		cfg:   cfg,
		logs:  logs,
		level: make(map[string]ThreatLevel),
		nowFn: time.Now,
	}
}

// AssessThreat computes the threat level for an IP from its access count in
// the trailing hour. With threshold T: >2T is CRITICAL, >T is HIGH, >T/2 is
// MEDIUM, otherwise LOW. A failing store reads as LOW; callers that need a
// fail-closed posture check the error.
func (t *ThreatAssessor) AssessThreat(ip string) (ThreatLevel, error) {
	since := t.nowFn().Add(-1 * time.Hour)
	count, err := t.logs.CountAccessesSince(ip, since)
	if err != nil {
		return ThreatLow, err
	}

	threshold := int64(t.cfg.SuspiciousActivityThreshold)
	switch {
	case count > 2*threshold:
		return ThreatCritical, nil
	case count > threshold:
		return ThreatHigh, nil
	case count > threshold/2:
		return ThreatMedium, nil
	default:
		return ThreatLow, nil
	}
}

// GetThreatLevel returns the last-computed level without recomputation.
// Unseen IPs are LOW.
func (t *ThreatAssessor) GetThreatLevel(ip string) ThreatLevel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.level[ip]
}

// UpdateThreatLevel recomputes and caches the level for an IP. This is the
// only recomputation point; it runs as a side effect of access recording.
func (t *ThreatAssessor) UpdateThreatLevel(ip string) ThreatLevel {
	level, err := t.AssessThreat(ip)
	if err != nil {
		system.Warn("Threat assessment failed for %s: %v", ip, err)
		return t.GetThreatLevel(ip)
	}

	t.mu.Lock()
	prev := t.level[ip]
	t.level[ip] = level
	t.mu.Unlock()

	if level > prev && level >= ThreatHigh {
		system.Warn("Threat level for %s escalated %s -> %s", ip, prev, level)
	}
	return level
}

// HighThreatCount reports how many IPs sit at HIGH or above.
func (t *ThreatAssessor) HighThreatCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	count := 0
	for _, level := range t.level {
		if level >= ThreatHigh {
			count++
		}
	}
	return count
}

// Clear forgets all cached levels.
func (t *ThreatAssessor) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.level = make(map[string]ThreatLevel)
}
