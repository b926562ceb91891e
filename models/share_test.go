package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShareTokenValid(t *testing.T) {
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)
	budget := 5

	cases := []struct {
		name  string
		share ShareToken
		want  bool
	}{
		{"active without limits", ShareToken{Active: true}, true},
		{"inactive", ShareToken{Active: false}, false},
		{"expired", ShareToken{Active: true, ExpiresAt: &past}, false},
		{"not yet expired", ShareToken{Active: true, ExpiresAt: &future}, true},
		{"budget left", ShareToken{Active: true, MaxAccess: &budget, AccessCount: 4}, true},
		{"budget exhausted", ShareToken{Active: true, MaxAccess: &budget, AccessCount: 5}, false},
		{"budget overshot", ShareToken{Active: true, MaxAccess: &budget, AccessCount: 9}, false},
		{"expired and exhausted", ShareToken{Active: true, ExpiresAt: &past, MaxAccess: &budget, AccessCount: 5}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.share.Valid())
		})
	}
}

func TestShareTokenExpiredAndExhausted(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	budget := 1

	s := ShareToken{Active: true, ExpiresAt: &past}
	assert.True(t, s.Expired())
	assert.False(t, s.Exhausted())

	s = ShareToken{Active: true, MaxAccess: &budget, AccessCount: 1}
	assert.False(t, s.Expired())
	assert.True(t, s.Exhausted())

	s = ShareToken{Active: true}
	assert.False(t, s.Expired())
	assert.False(t, s.Exhausted())
}

func TestShareTokenAllowsDownload(t *testing.T) {
	assert.True(t, (&ShareToken{Permission: PermissionDownload}).AllowsDownload())
	assert.False(t, (&ShareToken{Permission: PermissionViewOnly}).AllowsDownload())
	assert.False(t, (&ShareToken{}).AllowsDownload())
}

func TestBlacklistEntryExpired(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Minute)

	assert.True(t, (&BlacklistEntry{ExpiresAt: &past}).Expired())
	assert.False(t, (&BlacklistEntry{ExpiresAt: &future}).Expired())
	assert.False(t, (&BlacklistEntry{}).Expired())
}
