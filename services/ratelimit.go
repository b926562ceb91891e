package services

import (
	"fmt"
	"time"

	"shareguard/system"
)

// Counter key prefixes. One WindowCounter backs every tier; tiers are
// separated by key namespace.
const (
	keyCreationUser  = "cu"
	keyCreationIP    = "ci"
	keyAccessIP      = "ai"
	keyAccessShareIP = "as"
	keyAccessUser    = "au"
	keyAccessType    = "at"
)

// RateLimiter evaluates the multi-tier rate limits for share creation and
// share access. Checks and records are decoupled: callers check, act, then
// record exactly once per attempted operation.
type RateLimiter struct {
	cfg     GuardConfig
	counter *WindowCounter
	trusted TrustedUserFn
	nowFn   func() time.Time
}

// NewRateLimiter creates a limiter with the given tunables. trusted may be
// nil, in which case no user ever gets relaxed limits.
func NewRateLimiter(cfg GuardConfig, trusted TrustedUserFn) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		counter: NewWindowCounter(cfg.RateLimitWindowHours),
		trusted: trusted,
		nowFn:   time.Now,
	}
}

// CheckShareCreation evaluates the share-creation tiers in order: per-user,
// per-IP, then the burst hard cap. The first tier to breach determines the
// decision; later tiers are not evaluated.
//
// Trusted users get both nominal limits scaled by TrustedUserMultiplier, but
// the burst cap stays anchored to the nominal limit: no principal may exceed
// limit+burstAllowance regardless of trust.
func (rl *RateLimiter) CheckShareCreation(userID uint, ip string) RateLimitDecision {
	window := rl.cfg.RateLimitWindowHours
	nominal := rl.cfg.MaxSharesPerHour
	limit := nominal
	if rl.trusted != nil && rl.trusted(userID) {
		limit = int(float64(nominal) * rl.cfg.TrustedUserMultiplier)
	}

	userCount := rl.counter.CountInWindow(userKey(keyCreationUser, userID), window)
	if userCount >= limit {
		return rl.denied(LimitUserShareCreation, userCount, limit)
	}

	ipCount := rl.counter.CountInWindow(ipKey(keyCreationIP, ip), window)
	if ipCount >= limit {
		return rl.denied(LimitIPShareCreation, ipCount, limit)
	}

	burstCap := nominal + rl.cfg.BurstAllowance
	if userCount >= burstCap || ipCount >= burstCap {
		count := userCount
		if ipCount > count {
			count = ipCount
		}
		return rl.denied(LimitBurstProtection, count, burstCap)
	}

	return rl.allowed(userCount, limit)
}

// RecordShareCreation increments the creation counters. Call exactly once
// per attempted creation, independent of the check.
func (rl *RateLimiter) RecordShareCreation(userID uint, ip string) {
	rl.counter.Increment(userKey(keyCreationUser, userID))
	rl.counter.Increment(ipKey(keyCreationIP, ip))
}

// CheckShareAccess evaluates the share-access tiers in order: global per-IP,
// per-share-per-IP, per-user (when known), then per-access-type with
// downloads capped at half the view limit. Short-circuits on first breach.
func (rl *RateLimiter) CheckShareAccess(shareID uint, ip string, accessType AccessType, userID *uint) RateLimitDecision {
	window := rl.cfg.RateLimitWindowHours

	ipCount := rl.counter.CountInWindow(ipKey(keyAccessIP, ip), window)
	if ipCount >= rl.cfg.MaxAccessPerIPPerHour {
		return rl.denied(LimitIPGlobalAccess, ipCount, rl.cfg.MaxAccessPerIPPerHour)
	}

	shareIPCount := rl.counter.CountInWindow(shareIPKey(shareID, ip), window)
	if shareIPCount >= rl.cfg.MaxAccessPerShareIPPerHour {
		return rl.denied(LimitIPShareAccess, shareIPCount, rl.cfg.MaxAccessPerShareIPPerHour)
	}

	if userID != nil {
		userCount := rl.counter.CountInWindow(userKey(keyAccessUser, *userID), window)
		if userCount >= rl.cfg.MaxAccessPerIPPerHour {
			return rl.denied(LimitUserAccess, userCount, rl.cfg.MaxAccessPerIPPerHour)
		}
	}

	typeLimit := rl.cfg.MaxAccessPerIPPerHour
	if accessType == AccessDownload {
		// Downloads cost more to serve than views.
		typeLimit /= 2
	}
	typeCount := rl.counter.CountInWindow(typeKey(ip, accessType), window)
	if typeCount >= typeLimit {
		return rl.denied(LimitAccessType, typeCount, typeLimit)
	}

	return rl.allowed(ipCount, rl.cfg.MaxAccessPerIPPerHour)
}

// RecordShareAccess increments the access counters. Call exactly once per
// attempted access, independent of the check.
func (rl *RateLimiter) RecordShareAccess(shareID uint, ip string, accessType AccessType, userID *uint) {
	rl.counter.Increment(ipKey(keyAccessIP, ip))
	rl.counter.Increment(shareIPKey(shareID, ip))
	rl.counter.Increment(typeKey(ip, accessType))
	if userID != nil {
		rl.counter.Increment(userKey(keyAccessUser, *userID))
	}
}

// Purge drops stale counter buckets.
func (rl *RateLimiter) Purge() {
	rl.counter.Purge()
}

// Reset discards all counters.
func (rl *RateLimiter) Reset() {
	rl.counter.Reset()
	system.Info("Rate limiter counters cleared")
}

// TrackedKeys reports how many counter keys are live, for analytics.
func (rl *RateLimiter) TrackedKeys() int {
	return rl.counter.TrackedKeys()
}

// resetTime is the top of the next hour, when the oldest bucket in a
// one-hour window ages out.
func (rl *RateLimiter) resetTime() time.Time {
	return rl.nowFn().Truncate(time.Hour).Add(time.Hour)
}

func (rl *RateLimiter) allowed(current, limit int) RateLimitDecision {
	return RateLimitDecision{Allowed: true, Current: current, Limit: limit, ResetAt: rl.resetTime()}
}

func (rl *RateLimiter) denied(kind LimitKind, current, limit int) RateLimitDecision {
	return RateLimitDecision{Kind: kind, Current: current, Limit: limit, ResetAt: rl.resetTime()}
}

func userKey(prefix string, userID uint) string {
	return fmt.Sprintf("%s:%d", prefix, userID)
}

func ipKey(prefix, ip string) string {
	return prefix + ":" + ip
}

func shareIPKey(shareID uint, ip string) string {
	return fmt.Sprintf("%s:%d:%s", keyAccessShareIP, shareID, ip)
}

func typeKey(ip string, accessType AccessType) string {
	return fmt.Sprintf("%s:%s:%s", keyAccessType, ip, accessType)
}
