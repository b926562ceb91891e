package services

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"shareguard/models"
	"shareguard/system"
)

// AuditSink receives structured security events. The guard emits to it from
// goroutines and never blocks a decision on it.
type AuditSink interface {
	Emit(event models.SecurityEvent)
}

type blacklistedIP struct {
	ExpiresAt time.Time
	Reason    string
}

// AccessGuard runs the validation state machine for share-creation and
// share-access requests. It owns the in-memory blacklist set and, through
// the ThreatAssessor, the threat-level map, for the life of the process.
// Every check is an in-memory lookup; the only storage call on the hot path
// is the share token resolve, and a failing store fails closed.
type AccessGuard struct {
	cfg     GuardConfig
	limiter *RateLimiter
	threats *ThreatAssessor
	shares  ShareStore
	logs    AccessLogStore

	audit     AuditSink
	geo       GeoPolicy
	responder *Responder
	db        *gorm.DB // optional persisted blacklist mirror

	mu        sync.RWMutex
	blacklist map[string]blacklistedIP
}

func NewAccessGuard(cfg GuardConfig, limiter *RateLimiter, threats *ThreatAssessor, shares ShareStore, logs AccessLogStore) *AccessGuard {
	return &AccessGuard{
		cfg:       cfg,
		limiter:   limiter,
		threats:   threats,
		shares:    shares,
		logs:      logs,
		blacklist: make(map[string]blacklistedIP),
	}
}

// SetServices connects the optional collaborators: the audit sink, the
// automated responder, the geolocation policy, and the database used to
// mirror blacklist entries across restarts.
func (g *AccessGuard) SetServices(audit AuditSink, responder *Responder, geo GeoPolicy, db *gorm.DB) {
	g.audit = audit
	g.responder = responder
	g.geo = geo
	g.db = db
}

// LoadBlacklist restores persisted, unexpired blacklist entries into the
// in-memory active set. Called once at startup.
func (g *AccessGuard) LoadBlacklist() error {
	if g.db == nil {
		return nil
	}
	var entries []models.BlacklistEntry
	if err := g.db.Find(&entries).Error; err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	loaded := 0
	for _, entry := range entries {
		if entry.Expired() {
			continue
		}
		expires := time.Now().Add(100 * 365 * 24 * time.Hour) // no expiry recorded
		if entry.ExpiresAt != nil {
			expires = *entry.ExpiresAt
		}
		g.blacklist[entry.IP] = blacklistedIP{ExpiresAt: expires, Reason: entry.Reason}
		loaded++
	}
	if loaded > 0 {
		system.Info("Restored %d blacklisted IPs", loaded)
	}
	return nil
}

// ValidateShareCreation runs the creation chain: blacklist, geolocation,
// rate limit, threat. The first failing check is terminal.
func (g *AccessGuard) ValidateShareCreation(userID uint, ip, userAgent string) GuardDecision {
	if g.isBlacklisted(ip) {
		g.emitEvent("blacklist", fmt.Sprintf("Share creation from blacklisted IP %s", ip), ip, ThreatHigh)
		return denyDecision(DenyIPBlacklisted, "Your IP address is blocked")
	}

	if g.geo != nil && !g.geo(ip) {
		g.emitEvent("geolocation", fmt.Sprintf("Share creation from restricted location %s", ip), ip, ThreatMedium)
		return denyDecision(DenyGeoRestricted, "Access is not available from your location")
	}

	if dec := g.limiter.CheckShareCreation(userID, ip); !dec.Allowed {
		g.emitEvent("rate_limit", fmt.Sprintf("Share creation rate limited for user %d from %s (%s)", userID, ip, dec.Kind), ip, ThreatMedium)
		return g.rateLimited(dec)
	}

	if level := g.threats.GetThreatLevel(ip); level >= ThreatHigh {
		g.emitEvent("suspicious_activity", fmt.Sprintf("Share creation denied for %s at threat level %s", ip, level), ip, level)
		return denyDecision(DenySuspicious, "Suspicious activity detected from your address")
	}

	return allowDecision()
}

// RecordShareCreation records an attempted share creation: bumps the
// limiter counters, appends to the access log, and refreshes the creator
// IP's threat level. Call exactly once per attempt.
func (g *AccessGuard) RecordShareCreation(userID uint, ip string) {
	g.limiter.RecordShareCreation(userID, ip)

	uid := userID
	if err := g.logs.RecordAccess(&models.AccessLog{
		UserID:     &uid,
		IP:         ip,
		AccessType: "create",
		Success:    true,
		Timestamp:  time.Now(),
	}); err != nil {
		system.Warn("Failed to record share creation for %s: %v", ip, err)
	}

	g.afterRecord(ip)
}

// ValidateShareAccess runs the access chain: blacklist, token validity,
// permission, rate limit, threat. The first failing check is terminal; an
// allowed decision carries the resolved share. The caller is responsible
// for RecordShareAccess afterwards.
func (g *AccessGuard) ValidateShareAccess(token, ip, userAgent string, accessType AccessType) GuardDecision {
	if g.isBlacklisted(ip) {
		g.emitEvent("blacklist", fmt.Sprintf("Share access from blacklisted IP %s", ip), ip, ThreatHigh)
		return denyDecision(DenyIPBlacklisted, "Your IP address is blocked")
	}

	share, err := g.shares.ResolveShareToken(token)
	if err != nil {
		// Fail closed: an unreachable store denies rather than allows.
		system.Error("Share lookup failed for token access from %s: %v", ip, err)
		g.emitEvent("system_error", "Share lookup failed during access validation", ip, ThreatMedium)
		return denyDecision(DenySystemError, "Share validation is temporarily unavailable")
	}
	if share == nil || !share.Valid() {
		return denyDecision(DenyInvalidToken, "This share link is invalid or has expired")
	}

	if accessType == AccessDownload && !share.AllowsDownload() {
		return GuardDecision{Kind: DenyPermission, Reason: "This share does not permit downloads", Share: share}
	}

	if dec := g.limiter.CheckShareAccess(share.ID, ip, accessType, nil); !dec.Allowed {
		g.emitEvent("rate_limit", fmt.Sprintf("Share access rate limited for %s on share %d (%s)", ip, share.ID, dec.Kind), ip, ThreatMedium)
		out := g.rateLimited(dec)
		out.Share = share
		return out
	}

	if level := g.threats.GetThreatLevel(ip); level >= ThreatHigh {
		g.emitEvent("suspicious_activity", fmt.Sprintf("Share access denied for %s at threat level %s", ip, level), ip, level)
		return GuardDecision{Kind: DenySuspicious, Reason: "Suspicious activity detected from your address", Share: share}
	}

	out := allowDecision()
	out.Share = share
	return out
}

// RecordShareAccess records an attempted share access. On success it bumps
// the share's access count; in all cases it appends to the access log,
// bumps the limiter counters, and refreshes the IP's threat level. Call
// exactly once per attempt.
func (g *AccessGuard) RecordShareAccess(token, ip, userAgent string, accessType AccessType, success bool, denialReason string) error {
	share, err := g.shares.ResolveShareToken(token)
	if err != nil {
		return err
	}

	var shareID uint
	if share != nil {
		shareID = share.ID
		if success {
			if err := g.shares.IncrementAccessCount(share.ID); err != nil {
				return err
			}
		}
	}

	// Counted even when the token does not resolve (share 0), so an
	// invalid-token flood from one IP still burns its access budget.
	g.limiter.RecordShareAccess(shareID, ip, accessType, nil)

	if err := g.logs.RecordAccess(&models.AccessLog{
		ShareID:      shareID,
		IP:           ip,
		UserAgent:    userAgent,
		AccessType:   string(accessType),
		Success:      success,
		DenialReason: denialReason,
		Timestamp:    time.Now(),
	}); err != nil {
		system.Warn("Failed to record share access for %s: %v", ip, err)
	}

	g.afterRecord(ip)
	return nil
}

// afterRecord recomputes the IP's threat level and hands the result to the
// responder. Mitigation runs off the request path.
func (g *AccessGuard) afterRecord(ip string) {
	level := g.threats.UpdateThreatLevel(ip)
	if g.responder != nil {
		go g.responder.RespondToThreat(level, ip)
	}
}

// GetThreatLevel returns the cached threat level for an IP.
func (g *AccessGuard) GetThreatLevel(ip string) ThreatLevel {
	return g.threats.GetThreatLevel(ip)
}

// isBlacklisted checks the active set with lazy expiry: an expired entry is
// treated as absent and removed as a side effect of the lookup.
func (g *AccessGuard) isBlacklisted(ip string) bool {
	g.mu.RLock()
	entry, ok := g.blacklist[ip]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	if time.Now().Before(entry.ExpiresAt) {
		return true
	}

	g.mu.Lock()
	// Re-check under the write lock; a concurrent re-blacklist may have
	// extended the expiry.
	if entry, ok := g.blacklist[ip]; ok && !time.Now().Before(entry.ExpiresAt) {
		delete(g.blacklist, ip)
		g.deleteBlacklistRow(ip)
	}
	g.mu.Unlock()
	return false
}

// BlacklistIP adds an IP to the active blacklist. Re-blacklisting an
// already-listed IP overwrites its expiry and reason.
func (g *AccessGuard) BlacklistIP(ip string, duration time.Duration, reason string) {
	g.addToBlacklist(ip, duration, reason, false)
}

// AutoBlacklistIP is the responder's entry point; entries are flagged as
// automated so the admin UI can tell them apart from manual bans.
func (g *AccessGuard) AutoBlacklistIP(ip string, duration time.Duration, reason string) {
	g.addToBlacklist(ip, duration, reason, true)
}

func (g *AccessGuard) addToBlacklist(ip string, duration time.Duration, reason string, auto bool) {
	expires := time.Now().Add(duration)

	g.mu.Lock()
	g.blacklist[ip] = blacklistedIP{ExpiresAt: expires, Reason: reason}
	g.mu.Unlock()

	system.Warn("IP %s blacklisted until %s: %s", ip, expires.Format(time.RFC3339), reason)
	g.emitEvent("blacklist", fmt.Sprintf("IP %s blacklisted for %s: %s", ip, duration, reason), ip, ThreatHigh)

	if g.db != nil {
		entry := models.BlacklistEntry{IP: ip, Reason: reason, IsAuto: auto, ExpiresAt: &expires}
		err := g.db.Where("ip = ?", ip).
			Assign(map[string]any{"reason": reason, "is_auto": auto, "expires_at": expires}).
			FirstOrCreate(&entry).Error
		if err != nil {
			system.Warn("Failed to persist blacklist entry for %s: %v", ip, err)
		}
	}
}

// UnblacklistIP removes an IP from the active set and its persisted mirror.
func (g *AccessGuard) UnblacklistIP(ip string) {
	g.mu.Lock()
	delete(g.blacklist, ip)
	g.mu.Unlock()

	g.deleteBlacklistRow(ip)
	system.Info("IP %s removed from blacklist", ip)
}

func (g *AccessGuard) deleteBlacklistRow(ip string) {
	if g.db == nil {
		return
	}
	if err := g.db.Where("ip = ?", ip).Delete(&models.BlacklistEntry{}).Error; err != nil {
		system.Warn("Failed to delete blacklist row for %s: %v", ip, err)
	}
}

// IsBlacklisted reports whether an IP is actively blacklisted.
func (g *AccessGuard) IsBlacklisted(ip string) bool {
	return g.isBlacklisted(ip)
}

// BlacklistedCount reports the number of unexpired entries.
func (g *AccessGuard) BlacklistedCount() int {
	now := time.Now()
	g.mu.RLock()
	defer g.mu.RUnlock()
	count := 0
	for _, entry := range g.blacklist {
		if now.Before(entry.ExpiresAt) {
			count++
		}
	}
	return count
}

// PruneBlacklist drops expired entries from the active set and the
// persisted mirror. Run from the maintenance scheduler; correctness does
// not depend on it, only memory bounding does.
func (g *AccessGuard) PruneBlacklist() {
	now := time.Now()
	var expired []string

	g.mu.Lock()
	for ip, entry := range g.blacklist {
		if !now.Before(entry.ExpiresAt) {
			delete(g.blacklist, ip)
			expired = append(expired, ip)
		}
	}
	g.mu.Unlock()

	for _, ip := range expired {
		g.deleteBlacklistRow(ip)
	}
	if g.db != nil {
		if err := g.db.Where("expires_at IS NOT NULL AND expires_at < ?", now).
			Delete(&models.BlacklistEntry{}).Error; err != nil {
			system.Warn("Failed to prune expired blacklist rows: %v", err)
		}
	}
	if len(expired) > 0 {
		system.Info("Pruned %d expired blacklist entries", len(expired))
	}
}

// ClearSecurityState resets all in-process guard state: counters, threat
// levels, and the blacklist, including automated persisted entries. Manual
// bans stay on record.
func (g *AccessGuard) ClearSecurityState() {
	g.mu.Lock()
	g.blacklist = make(map[string]blacklistedIP)
	g.mu.Unlock()

	g.threats.Clear()
	g.limiter.Reset()

	if g.db != nil {
		if err := g.db.Where("is_auto = ?", true).Delete(&models.BlacklistEntry{}).Error; err != nil {
			system.Warn("Failed to clear automated blacklist rows: %v", err)
		}
	}
	system.Info("Security state cleared")
}

func (g *AccessGuard) rateLimited(dec RateLimitDecision) GuardDecision {
	reset := dec.ResetAt
	return GuardDecision{
		Kind:    DenialKind(dec.Kind),
		Reason:  fmt.Sprintf("Rate limit exceeded (%d/%d), try again after %s", dec.Current, dec.Limit, reset.Format("15:04")),
		ResetAt: &reset,
	}
}

// emitEvent hands a security event to the audit sink without blocking the
// decision path.
func (g *AccessGuard) emitEvent(eventType, description, ip string, severity ThreatLevel) {
	if g.audit == nil {
		return
	}
	event := models.SecurityEvent{
		Timestamp:   time.Now(),
		Type:        eventType,
		Description: description,
		SourceIP:    ip,
		Severity:    severity.String(),
	}
	go g.audit.Emit(event)
}
