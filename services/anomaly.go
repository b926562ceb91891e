package services

import (
	"fmt"
	"time"
)

// Off-hours are local hours with little legitimate traffic: 00-06 and 22-23.
func isOffHour(hour int) bool {
	return hour <= 6 || hour >= 22
}

// AnomalyDetector compares current-period access metrics against a rolling
// baseline and flags statistical outliers. Every sub-detector is independent
// and side-effect-free; consuming an anomaly (alerting, responding) is the
// caller's job.
type AnomalyDetector struct {
	cfg   GuardConfig
	logs  AccessLogStore
	nowFn func() time.Time
}

func NewAnomalyDetector(cfg GuardConfig, logs AccessLogStore) *AnomalyDetector {
	return &AnomalyDetector{cfg: cfg, logs: logs, nowFn: time.Now}
}

// DetectAnomalies runs all detectors over [since, until) and concatenates
// their findings.
func (d *AnomalyDetector) DetectAnomalies(since, until time.Time) ([]Anomaly, error) {
	var anomalies []Anomaly

	spike, err := d.DetectFrequencySpike(since, until)
	if err != nil {
		return nil, err
	}
	anomalies = append(anomalies, spike...)

	suspicious, err := d.DetectSuspiciousIPs(since, until)
	if err != nil {
		return nil, err
	}
	anomalies = append(anomalies, suspicious...)

	offHours, err := d.DetectOffHoursActivity(since, until)
	if err != nil {
		return nil, err
	}
	anomalies = append(anomalies, offHours...)

	return anomalies, nil
}

// DetectFrequencySpike flags the period when its hourly access rate exceeds
// the baseline rate (over the trailing BaselineDays before the period) times
// AnomalyThreshold.
func (d *AnomalyDetector) DetectFrequencySpike(since, until time.Time) ([]Anomaly, error) {
	hours := until.Sub(since).Hours()
	if hours <= 0 {
		return nil, nil
	}

	current, err := d.logs.CountAccessesBetween(since, until)
	if err != nil {
		return nil, err
	}
	currentRate := float64(current) / hours

	baselineStart := since.AddDate(0, 0, -d.cfg.BaselineDays)
	baselineCount, err := d.logs.CountAccessesBetween(baselineStart, since)
	if err != nil {
		return nil, err
	}
	baselineHours := since.Sub(baselineStart).Hours()
	if baselineHours <= 0 {
		return nil, nil
	}
	baselineRate := float64(baselineCount) / baselineHours

	if baselineRate > 0 && currentRate > baselineRate*d.cfg.AnomalyThreshold {
		return []Anomaly{{
			Type: "frequency_spike",
			Description: fmt.Sprintf("Access rate %.1f/h exceeds baseline %.1f/h by more than %.1fx",
				currentRate, baselineRate, d.cfg.AnomalyThreshold),
			Severity:   ThreatMedium,
			DetectedAt: d.nowFn(),
		}}, nil
	}
	return nil, nil
}

// DetectSuspiciousIPs flags each IP whose access count in the period exceeds
// AlertThreshold times AnomalyThreshold, one anomaly per IP.
func (d *AnomalyDetector) DetectSuspiciousIPs(since, until time.Time) ([]Anomaly, error) {
	counts, err := d.logs.AccessCountsByIP(since, until)
	if err != nil {
		return nil, err
	}

	cutoff := float64(d.cfg.AlertThreshold) * d.cfg.AnomalyThreshold
	var anomalies []Anomaly
	for ip, count := range counts {
		if float64(count) > cutoff {
			anomalies = append(anomalies, Anomaly{
				Type:        "suspicious_ip",
				Description: fmt.Sprintf("IP %s made %d accesses in the period (cutoff %.0f)", ip, count, cutoff),
				Severity:    ThreatHigh,
				DetectedAt:  d.nowFn(),
			})
		}
	}
	return anomalies, nil
}

// DetectOffHoursActivity flags off-hours (00-06, 22-23) whose access count
// exceeds the mean off-hour count times AnomalyThreshold.
func (d *AnomalyDetector) DetectOffHoursActivity(since, until time.Time) ([]Anomaly, error) {
	byHour, err := d.logs.AccessCountsByHour(since, until)
	if err != nil {
		return nil, err
	}

	var total int64
	var offHours int
	for hour := 0; hour < 24; hour++ {
		if isOffHour(hour) {
			total += byHour[hour]
			offHours++
		}
	}
	if offHours == 0 || total == 0 {
		return nil, nil
	}
	mean := float64(total) / float64(offHours)

	var anomalies []Anomaly
	for hour := 0; hour < 24; hour++ {
		if !isOffHour(hour) {
			continue
		}
		if count := byHour[hour]; mean > 0 && float64(count) > mean*d.cfg.AnomalyThreshold {
			anomalies = append(anomalies, Anomaly{
				Type:        "off_hours_activity",
				Description: fmt.Sprintf("Hour %02d saw %d accesses against an off-hour mean of %.1f", hour, count, mean),
				Severity:    ThreatMedium,
				DetectedAt:  d.nowFn(),
			})
		}
	}
	return anomalies, nil
}
