package trace

import (
	"fmt"
	"strconv"
	"time"
)

const (
	DefaultMinTemperature = 0.0
	DefaultMaxTemperature = 40.0

	DefaultPolicyKey = "default"
)

type TemperatureBand struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

var DefaultTemperatureBand = TemperatureBand{Min: DefaultMinTemperature, Max: DefaultMaxTemperature}

func (b TemperatureBand) Validate() error {
	if b.Min > b.Max {
		return fmt.Errorf("%w: min=%g max=%g", ErrInvalidThresholds, b.Min, b.Max)
	}
	return nil
}

// PolicyKey names an ad hoc band when no named policy is in play.
func (b TemperatureBand) PolicyKey() string {
	return "range:" + strconv.FormatFloat(b.Min, 'g', -1, 64) + ":" + strconv.FormatFloat(b.Max, 'g', -1, 64)
}

type ViolationType string

const (
	ViolationTooLow  ViolationType = "too_low"
	ViolationTooHigh ViolationType = "too_high"
)

// Classify returns the violation type for a temperature outside the inclusive band.
func (b TemperatureBand) Classify(temperature float64) (ViolationType, bool) {
	switch {
	case temperature < b.Min:
		return ViolationTooLow, true
	case temperature > b.Max:
		return ViolationTooHigh, true
	default:
		return "", false
	}
}

type TemperatureViolation struct {
	TelemetryID   uint64        `json:"telemetry_id"`
	EventID       uint64        `json:"event_id"`
	SensorID      uint64        `json:"sensor_id"`
	Temperature   float64       `json:"temperature"`
	ViolationType ViolationType `json:"violation_type"`
	RecordedAt    time.Time     `json:"recorded_at"`
}

func FindTemperatureViolations(records []Telemetry, band TemperatureBand) []TemperatureViolation {
	out := make([]TemperatureViolation, 0)
	for _, record := range records {
		if record.Temperature == nil {
			continue
		}
		kind, violated := band.Classify(*record.Temperature)
		if !violated {
			continue
		}
		out = append(out, TemperatureViolation{
			TelemetryID:   record.TelemetryID,
			EventID:       record.EventID,
			SensorID:      record.SensorID,
			Temperature:   *record.Temperature,
			ViolationType: kind,
			RecordedAt:    record.RecordedAt,
		})
	}
	return out
}

func CountTemperatureViolations(records []Telemetry, band TemperatureBand) int {
	return len(FindTemperatureViolations(records, band))
}
