package trace

import (
	"fmt"
	"math"
	"time"
)

type AnomalyKind string

const (
	AnomalyTemperature    AnomalyKind = "temperature"
	AnomalyHumidity       AnomalyKind = "humidity"
	AnomalyShock          AnomalyKind = "shock"
	AnomalyReadingQuality AnomalyKind = "reading_quality"
)

type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

const (
	mediumDeviationSigmas = 2.0
	highDeviationSigmas   = 3.0
	minStdDev             = 1e-12

	// MinReadingQuality is the reading quality below which a reading is flagged.
	MinReadingQuality = 0.8
)

type ChannelStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

type Anomaly struct {
	Kind        AnomalyKind `json:"kind"`
	Severity    Severity    `json:"severity"`
	TelemetryID uint64      `json:"telemetry_id"`
	EventID     uint64      `json:"event_id"`
	SensorID    uint64      `json:"sensor_id"`
	Value       float64     `json:"value"`
	Deviation   float64     `json:"deviation"`
	RecordedAt  time.Time   `json:"recorded_at"`
	Message     string      `json:"message"`
}

type AnomalyReport struct {
	TotalReadings int          `json:"total_readings"`
	Temperature   ChannelStats `json:"temperature"`
	Humidity      ChannelStats `json:"humidity"`
	Anomalies     []Anomaly    `json:"anomalies"`
}

func (r AnomalyReport) CountBySeverity(severity Severity) int {
	count := 0
	for _, anomaly := range r.Anomalies {
		if anomaly.Severity == severity {
			count++
		}
	}
	return count
}

// DetectAnomalies flags z-score outliers on temperature and humidity plus
// shock and low reading quality. Anomalies are reported in record order.
func DetectAnomalies(records []Telemetry) AnomalyReport {
	report := AnomalyReport{
		TotalReadings: len(records),
		Temperature:   channelStats(records, func(t Telemetry) *float64 { return t.Temperature }),
		Humidity:      channelStats(records, func(t Telemetry) *float64 { return t.Humidity }),
		Anomalies:     make([]Anomaly, 0),
	}

	for _, record := range records {
		if anomaly, ok := deviationAnomaly(record, record.Temperature, report.Temperature, AnomalyTemperature); ok {
			report.Anomalies = append(report.Anomalies, anomaly)
		}
		if anomaly, ok := deviationAnomaly(record, record.Humidity, report.Humidity, AnomalyHumidity); ok {
			report.Anomalies = append(report.Anomalies, anomaly)
		}
		if record.ShockDetected {
			report.Anomalies = append(report.Anomalies, Anomaly{
				Kind:        AnomalyShock,
				Severity:    SeverityHigh,
				TelemetryID: record.TelemetryID,
				EventID:     record.EventID,
				SensorID:    record.SensorID,
				Value:       1,
				RecordedAt:  record.RecordedAt,
				Message:     "shock detected",
			})
		}
		if record.ReadingQuality < MinReadingQuality {
			report.Anomalies = append(report.Anomalies, Anomaly{
				Kind:        AnomalyReadingQuality,
				Severity:    SeverityMedium,
				TelemetryID: record.TelemetryID,
				EventID:     record.EventID,
				SensorID:    record.SensorID,
				Value:       record.ReadingQuality,
				RecordedAt:  record.RecordedAt,
				Message:     fmt.Sprintf("reading quality %.2f below %.2f", record.ReadingQuality, MinReadingQuality),
			})
		}
	}
	return report
}

func deviationAnomaly(record Telemetry, value *float64, stats ChannelStats, kind AnomalyKind) (Anomaly, bool) {
	if value == nil || stats.StdDev < minStdDev {
		return Anomaly{}, false
	}

	z := math.Abs(*value-stats.Mean) / stats.StdDev
	var severity Severity
	switch {
	case z > highDeviationSigmas:
		severity = SeverityHigh
	case z > mediumDeviationSigmas:
		severity = SeverityMedium
	default:
		return Anomaly{}, false
	}

	return Anomaly{
		Kind:        kind,
		Severity:    severity,
		TelemetryID: record.TelemetryID,
		EventID:     record.EventID,
		SensorID:    record.SensorID,
		Value:       *value,
		Deviation:   z,
		RecordedAt:  record.RecordedAt,
		Message:     fmt.Sprintf("%s %.2f deviates %.2fσ from mean %.2f", kind, *value, z, stats.Mean),
	}, true
}

// channelStats uses the population standard deviation over non-null values.
func channelStats(records []Telemetry, pick func(Telemetry) *float64) ChannelStats {
	values := collect(records, pick)
	if len(values) == 0 {
		return ChannelStats{}
	}

	avg := mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - avg) * (v - avg)
	}
	variance /= float64(len(values))

	return ChannelStats{
		Count:  len(values),
		Mean:   avg,
		StdDev: math.Sqrt(variance),
	}
}
