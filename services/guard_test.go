package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"shareguard/models"
)

// captureSink records emitted events; Emit runs on guard goroutines.
type captureSink struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (c *captureSink) Emit(event models.SecurityEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type guardHarness struct {
	db      *gorm.DB
	store   *GormStore
	guard   *AccessGuard
	threats *ThreatAssessor
	limiter *RateLimiter
	sink    *captureSink
	cfg     GuardConfig
}

func newGuardHarness(t *testing.T, cfg GuardConfig) *guardHarness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ShareToken{},
		&models.AccessLog{},
		&models.SecurityEvent{},
		&models.BlacklistEntry{},
	))

	store := NewGormStore(db)
	limiter := NewRateLimiter(cfg, nil)
	threats := NewThreatAssessor(cfg, store)
	guard := NewAccessGuard(cfg, limiter, threats, store, store)
	sink := &captureSink{}
	guard.SetServices(sink, nil, nil, db)

	return &guardHarness{db: db, store: store, guard: guard, threats: threats, limiter: limiter, sink: sink, cfg: cfg}
}

func (h *guardHarness) createShare(t *testing.T, share models.ShareToken) models.ShareToken {
	t.Helper()
	if share.Token == "" {
		share.Token = fmt.Sprintf("tok-%d", time.Now().UnixNano())
	}
	share.Active = true
	require.NoError(t, h.db.Create(&share).Error)
	return share
}

func TestAccessAllowedCarriesShare(t *testing.T) {
	h := newGuardHarness(t, DefaultGuardConfig())
	share := h.createShare(t, models.ShareToken{FileID: 1, OwnerID: 1, Permission: models.PermissionDownload})

	dec := h.guard.ValidateShareAccess(share.Token, "10.0.0.1", "test-agent", AccessDownload)
	require.True(t, dec.Allowed)
	require.NotNil(t, dec.Share)
	assert.Equal(t, share.ID, dec.Share.ID)
}

func TestUnknownTokenDenied(t *testing.T) {
	h := newGuardHarness(t, DefaultGuardConfig())

	dec := h.guard.ValidateShareAccess("no-such-token", "10.0.0.1", "", AccessView)
	assert.False(t, dec.Allowed)
	assert.Equal(t, DenyInvalidToken, dec.Kind)
}

func TestShareBecomesInvalidAfterBudgetExhausted(t *testing.T) {
	h := newGuardHarness(t, DefaultGuardConfig())
	maxAccess := 3
	share := h.createShare(t, models.ShareToken{FileID: 1, OwnerID: 1, Permission: models.PermissionViewOnly, MaxAccess: &maxAccess})

	for i := 0; i < 3; i++ {
		dec := h.guard.ValidateShareAccess(share.Token, "10.0.0.2", "", AccessView)
		require.True(t, dec.Allowed, "access %d should be allowed", i+1)
		require.NoError(t, h.guard.RecordShareAccess(share.Token, "10.0.0.2", "", AccessView, true, ""))
	}

	dec := h.guard.ValidateShareAccess(share.Token, "10.0.0.2", "", AccessView)
	assert.False(t, dec.Allowed)
	assert.Equal(t, DenyInvalidToken, dec.Kind)

	var persisted models.ShareToken
	require.NoError(t, h.db.First(&persisted, share.ID).Error)
	assert.Equal(t, 3, persisted.AccessCount)
}

func TestExpiredShareDenied(t *testing.T) {
	h := newGuardHarness(t, DefaultGuardConfig())
	past := time.Now().Add(-1 * time.Minute)
	share := h.createShare(t, models.ShareToken{FileID: 1, OwnerID: 1, ExpiresAt: &past})

	dec := h.guard.ValidateShareAccess(share.Token, "10.0.0.3", "", AccessView)
	assert.False(t, dec.Allowed)
	assert.Equal(t, DenyInvalidToken, dec.Kind)
}

func TestViewOnlyShareRefusesDownload(t *testing.T) {
	h := newGuardHarness(t, DefaultGuardConfig())
	share := h.createShare(t, models.ShareToken{FileID: 1, OwnerID: 1, Permission: models.PermissionViewOnly})

	dec := h.guard.ValidateShareAccess(share.Token, "10.0.0.4", "", AccessDownload)
	assert.False(t, dec.Allowed)
	assert.Equal(t, DenyPermission, dec.Kind)

	view := h.guard.ValidateShareAccess(share.Token, "10.0.0.4", "", AccessView)
	assert.True(t, view.Allowed)
}

func TestBlacklistBlocksBothChains(t *testing.T) {
	h := newGuardHarness(t, DefaultGuardConfig())
	share := h.createShare(t, models.ShareToken{FileID: 1, OwnerID: 1})

	h.guard.BlacklistIP("10.0.0.5", time.Hour, "manual test ban")
	require.True(t, h.guard.IsBlacklisted("10.0.0.5"))

	creation := h.guard.ValidateShareCreation(1, "10.0.0.5", "")
	assert.Equal(t, DenyIPBlacklisted, creation.Kind)

	access := h.guard.ValidateShareAccess(share.Token, "10.0.0.5", "", AccessView)
	assert.Equal(t, DenyIPBlacklisted, access.Kind)

	// The entry is mirrored to the database.
	var entry models.BlacklistEntry
	require.NoError(t, h.db.Where("ip = ?", "10.0.0.5").First(&entry).Error)
	assert.False(t, entry.IsAuto)

	h.guard.UnblacklistIP("10.0.0.5")
	assert.False(t, h.guard.IsBlacklisted("10.0.0.5"))
	assert.True(t, h.guard.ValidateShareCreation(1, "10.0.0.5", "").Allowed)
}

func TestBlacklistLazyExpiry(t *testing.T) {
	h := newGuardHarness(t, DefaultGuardConfig())

	h.guard.BlacklistIP("10.0.0.6", -time.Minute, "already expired")
	assert.False(t, h.guard.IsBlacklisted("10.0.0.6"))
	assert.Equal(t, 0, h.guard.BlacklistedCount())
}

func TestReBlacklistOverwritesExpiry(t *testing.T) {
	h := newGuardHarness(t, DefaultGuardConfig())

	h.guard.BlacklistIP("10.0.0.7", time.Minute, "first")
	h.guard.BlacklistIP("10.0.0.7", 24*time.Hour, "second")

	assert.Equal(t, 1, h.guard.BlacklistedCount())
	var entry models.BlacklistEntry
	require.NoError(t, h.db.Where("ip = ?", "10.0.0.7").First(&entry).Error)
	assert.Equal(t, "second", entry.Reason)
}

func TestCreationRateLimitMapsToGuardDecision(t *testing.T) {
	h := newGuardHarness(t, DefaultGuardConfig())

	for i := 0; i < 10; i++ {
		dec := h.guard.ValidateShareCreation(1, "10.0.0.8", "")
		require.True(t, dec.Allowed)
		h.guard.RecordShareCreation(1, "10.0.0.8")
	}

	dec := h.guard.ValidateShareCreation(1, "10.0.0.8", "")
	assert.False(t, dec.Allowed)
	assert.Equal(t, DenialKind(LimitUserShareCreation), dec.Kind)
	require.NotNil(t, dec.ResetAt)
	assert.True(t, dec.ResetAt.After(time.Now()))
}

func TestHighThreatDeniesNewActivity(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.SuspiciousActivityThreshold = 2
	h := newGuardHarness(t, cfg)
	share := h.createShare(t, models.ShareToken{FileID: 1, OwnerID: 1})

	// Three logged accesses in the last hour pushes past the threshold.
	for i := 0; i < 3; i++ {
		require.NoError(t, h.store.RecordAccess(&models.AccessLog{IP: "10.0.0.9", AccessType: "view", Success: true, Timestamp: time.Now()}))
	}
	require.Equal(t, ThreatHigh, h.threats.UpdateThreatLevel("10.0.0.9"))

	dec := h.guard.ValidateShareAccess(share.Token, "10.0.0.9", "", AccessView)
	assert.False(t, dec.Allowed)
	assert.Equal(t, DenySuspicious, dec.Kind)

	creation := h.guard.ValidateShareCreation(1, "10.0.0.9", "")
	assert.Equal(t, DenySuspicious, creation.Kind)
}

func TestCriticalThreatAutoBlacklists(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.SuspiciousActivityThreshold = 1
	h := newGuardHarness(t, cfg)
	responder := NewResponder(cfg, h.guard, nil, nil)
	h.guard.SetServices(h.sink, responder, nil, h.db)
	share := h.createShare(t, models.ShareToken{FileID: 1, OwnerID: 1})

	// Past accesses put the IP over 2x the threshold; recording one more
	// triggers the automated response.
	for i := 0; i < 3; i++ {
		require.NoError(t, h.store.RecordAccess(&models.AccessLog{IP: "10.0.1.1", AccessType: "view", Success: true, Timestamp: time.Now()}))
	}
	require.NoError(t, h.guard.RecordShareAccess(share.Token, "10.0.1.1", "", AccessView, true, ""))

	assert.Eventually(t, func() bool {
		return h.guard.IsBlacklisted("10.0.1.1")
	}, 2*time.Second, 10*time.Millisecond, "critical threat should auto-blacklist")

	var entry models.BlacklistEntry
	require.NoError(t, h.db.Where("ip = ?", "10.0.1.1").First(&entry).Error)
	assert.True(t, entry.IsAuto)

	// Everything from that IP is now refused at the door.
	access := h.guard.ValidateShareAccess(share.Token, "10.0.1.1", "", AccessView)
	assert.Equal(t, DenyIPBlacklisted, access.Kind)
	creation := h.guard.ValidateShareCreation(1, "10.0.1.1", "")
	assert.Equal(t, DenyIPBlacklisted, creation.Kind)
}

func TestInvalidTokenFloodConsumesIPBudget(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.MaxAccessPerIPPerHour = 3
	h := newGuardHarness(t, cfg)
	share := h.createShare(t, models.ShareToken{FileID: 1, OwnerID: 1})

	// Guessing tokens is still an access attempt against the IP budget.
	for i := 0; i < 3; i++ {
		dec := h.guard.ValidateShareAccess("guessed-token", "10.0.3.1", "", AccessView)
		require.Equal(t, DenyInvalidToken, dec.Kind)
		require.NoError(t, h.guard.RecordShareAccess("guessed-token", "10.0.3.1", "", AccessView, false, string(dec.Kind)))
	}

	dec := h.guard.ValidateShareAccess(share.Token, "10.0.3.1", "", AccessView)
	assert.False(t, dec.Allowed)
	assert.Equal(t, DenialKind(LimitIPGlobalAccess), dec.Kind)
}

func TestFailClosedOnStoreError(t *testing.T) {
	cfg := DefaultGuardConfig()
	limiter := NewRateLimiter(cfg, nil)
	logs := &stubLogStore{}
	threats := NewThreatAssessor(cfg, logs)
	guard := NewAccessGuard(cfg, limiter, threats, &failingShareStore{err: errors.New("db gone")}, logs)

	dec := guard.ValidateShareAccess("any-token", "10.0.1.2", "", AccessView)
	assert.False(t, dec.Allowed)
	assert.Equal(t, DenySystemError, dec.Kind)
}

func TestClearSecurityStateKeepsManualBans(t *testing.T) {
	h := newGuardHarness(t, DefaultGuardConfig())

	h.guard.BlacklistIP("10.0.1.3", time.Hour, "manual")
	h.guard.AutoBlacklistIP("10.0.1.4", time.Hour, "automated")
	for i := 0; i < 5; i++ {
		h.guard.RecordShareCreation(1, "10.0.1.5")
	}

	h.guard.ClearSecurityState()

	// In-memory state is gone entirely.
	assert.Equal(t, 0, h.guard.BlacklistedCount())
	assert.Equal(t, 0, h.limiter.TrackedKeys())
	assert.Equal(t, ThreatLow, h.guard.GetThreatLevel("10.0.1.5"))

	// Manual rows survive for the next LoadBlacklist; automated rows do not.
	var manual, auto int64
	h.db.Model(&models.BlacklistEntry{}).Where("is_auto = ?", false).Count(&manual)
	h.db.Model(&models.BlacklistEntry{}).Where("is_auto = ?", true).Count(&auto)
	assert.EqualValues(t, 1, manual)
	assert.EqualValues(t, 0, auto)
}

func TestLoadBlacklistRestoresUnexpiredEntries(t *testing.T) {
	h := newGuardHarness(t, DefaultGuardConfig())

	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, h.db.Create(&models.BlacklistEntry{IP: "10.0.1.6", Reason: "live", ExpiresAt: &future}).Error)
	require.NoError(t, h.db.Create(&models.BlacklistEntry{IP: "10.0.1.7", Reason: "stale", ExpiresAt: &past}).Error)

	fresh := NewAccessGuard(h.cfg, NewRateLimiter(h.cfg, nil), NewThreatAssessor(h.cfg, h.store), h.store, h.store)
	fresh.SetServices(nil, nil, nil, h.db)
	require.NoError(t, fresh.LoadBlacklist())

	assert.True(t, fresh.IsBlacklisted("10.0.1.6"))
	assert.False(t, fresh.IsBlacklisted("10.0.1.7"))
}

func TestGeoPolicyDeniesRestrictedLocation(t *testing.T) {
	h := newGuardHarness(t, DefaultGuardConfig())
	h.guard.SetServices(h.sink, nil, func(ip string) bool { return ip != "10.0.1.8" }, h.db)

	dec := h.guard.ValidateShareCreation(1, "10.0.1.8", "")
	assert.Equal(t, DenyGeoRestricted, dec.Kind)

	assert.True(t, h.guard.ValidateShareCreation(1, "10.0.1.9", "").Allowed)
}

func TestDeniedAccessEmitsAuditEvent(t *testing.T) {
	h := newGuardHarness(t, DefaultGuardConfig())
	h.guard.BlacklistIP("10.0.2.1", time.Hour, "manual")

	before := h.sink.count()
	h.guard.ValidateShareCreation(1, "10.0.2.1", "")

	assert.Eventually(t, func() bool {
		return h.sink.count() > before
	}, time.Second, 10*time.Millisecond)
}

func TestPruneBlacklistDropsExpiredRows(t *testing.T) {
	h := newGuardHarness(t, DefaultGuardConfig())

	h.guard.BlacklistIP("10.0.2.2", -time.Minute, "expired")
	h.guard.BlacklistIP("10.0.2.3", time.Hour, "live")

	h.guard.PruneBlacklist()

	assert.Equal(t, 1, h.guard.BlacklistedCount())
	var rows int64
	h.db.Model(&models.BlacklistEntry{}).Count(&rows)
	assert.EqualValues(t, 1, rows)
}
