package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shareguard/models"
	"shareguard/services"
)

func TestUpdateGuardSettingsPersistsZeroValues(t *testing.T) {
	app, h, db := newTestApp(t, services.DefaultGuardConfig())
	app.Put("/api/security/settings", h.UpdateGuardSettings)

	require.NoError(t, db.Create(&models.GuardSettings{
		ID:                1,
		MaxSharesPerHour:  42,
		AlertOnBlacklist:  true,
		DiscordWebhookURL: "https://discord.example/old",
	}).Error)

	body := `{"alert_on_blacklist": false, "discord_webhook_url": ""}`
	req := httptest.NewRequest(http.MethodPut, "/api/security/settings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Switching alerts off and clearing the webhook URL must round-trip to
	// the database, and untouched fields must keep their stored values.
	var settings models.GuardSettings
	require.NoError(t, db.First(&settings, 1).Error)
	assert.False(t, settings.AlertOnBlacklist)
	assert.Empty(t, settings.DiscordWebhookURL)
	assert.Equal(t, 42, settings.MaxSharesPerHour)
}

func TestUpdateGuardSettingsCreatesRowOnFirstWrite(t *testing.T) {
	app, h, db := newTestApp(t, services.DefaultGuardConfig())
	app.Put("/api/security/settings", h.UpdateGuardSettings)

	body := `{"max_shares_per_hour": 7}`
	req := httptest.NewRequest(http.MethodPut, "/api/security/settings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var settings models.GuardSettings
	require.NoError(t, db.First(&settings, 1).Error)
	assert.Equal(t, 7, settings.MaxSharesPerHour)
}

func TestGetGuardSettingsReturnsRow(t *testing.T) {
	app, h, db := newTestApp(t, services.DefaultGuardConfig())
	app.Get("/api/security/settings", h.GetGuardSettings)

	require.NoError(t, db.Create(&models.GuardSettings{ID: 1, MaxSharesPerHour: 11}).Error)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/security/settings", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.EqualValues(t, 11, body["max_shares_per_hour"])
}
