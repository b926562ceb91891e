package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anomalyWindow() (time.Time, time.Time) {
	until := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return until.Add(-1 * time.Hour), until
}

func TestDetectFrequencySpike(t *testing.T) {
	cfg := DefaultGuardConfig() // anomaly threshold 2, baseline 7 days
	since, until := anomalyWindow()

	store := &stubLogStore{
		countBetween: func(s, u time.Time) int64 {
			if s.Equal(since) && u.Equal(until) {
				return 50 // 50/h in the current period
			}
			return 168 // 1/h over the 7-day baseline
		},
	}
	d := NewAnomalyDetector(cfg, store)

	anomalies, err := d.DetectFrequencySpike(since, until)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "frequency_spike", anomalies[0].Type)
	assert.Equal(t, ThreatMedium, anomalies[0].Severity)
}

func TestNoSpikeWithinThreshold(t *testing.T) {
	since, until := anomalyWindow()

	store := &stubLogStore{
		countBetween: func(s, u time.Time) int64 {
			if s.Equal(since) && u.Equal(until) {
				return 2 // 2/h, exactly at 2x baseline: not over it
			}
			return 168
		},
	}
	d := NewAnomalyDetector(DefaultGuardConfig(), store)

	anomalies, err := d.DetectFrequencySpike(since, until)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestNoSpikeWithoutBaseline(t *testing.T) {
	since, until := anomalyWindow()

	// A cold system has no baseline to compare against.
	store := &stubLogStore{
		countBetween: func(s, u time.Time) int64 {
			if s.Equal(since) && u.Equal(until) {
				return 1000
			}
			return 0
		},
	}
	d := NewAnomalyDetector(DefaultGuardConfig(), store)

	anomalies, err := d.DetectFrequencySpike(since, until)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestDetectSuspiciousIPs(t *testing.T) {
	cfg := DefaultGuardConfig() // alert threshold 100 x anomaly threshold 2 = 200
	since, until := anomalyWindow()

	store := &stubLogStore{byIP: map[string]int64{
		"10.0.0.1": 201,
		"10.0.0.2": 150,
		"10.0.0.3": 5000,
	}}
	d := NewAnomalyDetector(cfg, store)

	anomalies, err := d.DetectSuspiciousIPs(since, until)
	require.NoError(t, err)
	require.Len(t, anomalies, 2)
	for _, a := range anomalies {
		assert.Equal(t, "suspicious_ip", a.Type)
		assert.Equal(t, ThreatHigh, a.Severity)
	}
}

func TestDetectOffHoursActivity(t *testing.T) {
	since, until := anomalyWindow()

	// Hour 3 carries all the off-hours traffic: mean over the nine off
	// hours is 10, so 90 accesses at 3am is flagged.
	store := &stubLogStore{byHour: map[int]int64{
		3:  90,
		14: 500, // business hours, never flagged
	}}
	d := NewAnomalyDetector(DefaultGuardConfig(), store)

	anomalies, err := d.DetectOffHoursActivity(since, until)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "off_hours_activity", anomalies[0].Type)
	assert.Contains(t, anomalies[0].Description, "03")
}

func TestDetectOffHoursQuietNight(t *testing.T) {
	since, until := anomalyWindow()

	store := &stubLogStore{byHour: map[int]int64{14: 500}}
	d := NewAnomalyDetector(DefaultGuardConfig(), store)

	anomalies, err := d.DetectOffHoursActivity(since, until)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestDetectAnomaliesConcatenates(t *testing.T) {
	since, until := anomalyWindow()

	store := &stubLogStore{
		countBetween: func(s, u time.Time) int64 {
			if s.Equal(since) && u.Equal(until) {
				return 50
			}
			return 168
		},
		byIP:   map[string]int64{"10.0.0.1": 300},
		byHour: map[int]int64{2: 90},
	}
	d := NewAnomalyDetector(DefaultGuardConfig(), store)

	anomalies, err := d.DetectAnomalies(since, until)
	require.NoError(t, err)
	assert.Len(t, anomalies, 3)
}

func TestDetectAnomaliesPropagatesStoreFailure(t *testing.T) {
	since, until := anomalyWindow()

	store := &stubLogStore{err: errors.New("db gone")}
	d := NewAnomalyDetector(DefaultGuardConfig(), store)

	_, err := d.DetectAnomalies(since, until)
	assert.Error(t, err)
}

func TestIsOffHour(t *testing.T) {
	for _, hour := range []int{0, 3, 6, 22, 23} {
		assert.True(t, isOffHour(hour), "hour %d", hour)
	}
	for _, hour := range []int{7, 12, 21} {
		assert.False(t, isOffHour(hour), "hour %d", hour)
	}
}
