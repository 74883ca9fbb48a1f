package traceability

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"foodtrace/internal/domain/trace"
	"foodtrace/internal/ports"
)

func ingestTemperatures(t *testing.T, env testEnv, firstID uint64, temps ...float64) {
	t.Helper()
	for i, temp := range temps {
		seedReading(t, env, ports.SensorReading{
			ReadingID:      firstID + uint64(i),
			SensorID:       11,
			Temperature:    floatPtr(temp),
			Humidity:       floatPtr(55),
			ReadingQuality: 0.9,
			RecordedAt:     baseTime.Add(-time.Duration(len(temps)-i) * time.Minute),
		})
	}
	if _, err := env.svc.IngestRecentTelemetry(context.Background(), 10); err != nil {
		t.Fatalf("IngestRecentTelemetry() error = %v", err)
	}
}

func TestTemperatureViolationsFollowTelemetry(t *testing.T) {
	env := setupService(t)
	createChain(t, env, 10, 7)
	seedSensor(t, env, 7, 11)

	ingestTemperatures(t, env, 1, 18, 20, 22, 19)
	summary, err := env.svc.GetSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if summary.Chain.TemperatureViolations != 0 {
		t.Fatalf("TemperatureViolations = %d, want 0", summary.Chain.TemperatureViolations)
	}

	ingestTemperatures(t, env, 10, 50)
	summary, err = env.svc.GetSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if summary.Chain.TemperatureViolations != 1 {
		t.Fatalf("TemperatureViolations = %d, want 1", summary.Chain.TemperatureViolations)
	}

	result, err := env.svc.MonitorTemperatureViolations(context.Background(), MonitorInput{
		ProductID: 10,
		Band:      &trace.TemperatureBand{Min: 0, Max: 40},
	})
	if err != nil {
		t.Fatalf("MonitorTemperatureViolations() error = %v", err)
	}
	if result.Count != 1 || len(result.Violations) != 1 {
		t.Fatalf("result = %+v, want one violation", result)
	}
	if result.Violations[0].ViolationType != trace.ViolationTooHigh || result.Violations[0].Temperature != 50 {
		t.Fatalf("violation = %+v, want too_high at 50", result.Violations[0])
	}
	if result.PolicyKey != "range:0:40" || result.Readings != 5 {
		t.Fatalf("PolicyKey = %q Readings = %d", result.PolicyKey, result.Readings)
	}

	summary, err = env.svc.GetSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if len(summary.ViolationCounts) != 1 || summary.ViolationCounts[0].Violations != 1 {
		t.Fatalf("ViolationCounts = %+v, want stored count of 1", summary.ViolationCounts)
	}
}

func TestMonitorWithNamedPolicy(t *testing.T) {
	policies, err := ParseTemperaturePolicies([]byte(`
version = 1

[policies.cold_chain]
min = 2
max = 8
description = "refrigerated produce"
`))
	if err != nil {
		t.Fatalf("ParseTemperaturePolicies() error = %v", err)
	}
	env := setupServiceWithOptions(t, Options{Policies: policies})
	createChain(t, env, 10, 7)
	seedSensor(t, env, 7, 11)
	ingestTemperatures(t, env, 1, 1, 5, 9)

	result, err := env.svc.MonitorTemperatureViolations(context.Background(), MonitorInput{ProductID: 10, Policy: "cold_chain"})
	if err != nil {
		t.Fatalf("MonitorTemperatureViolations() error = %v", err)
	}
	if result.PolicyKey != "cold_chain" || result.Count != 2 {
		t.Fatalf("result = %+v, want 2 violations under cold_chain", result)
	}
	if result.Violations[0].ViolationType != trace.ViolationTooLow || result.Violations[1].ViolationType != trace.ViolationTooHigh {
		t.Fatalf("violations = %+v", result.Violations)
	}

	defaultResult, err := env.svc.MonitorTemperatureViolations(context.Background(), MonitorInput{ProductID: 10})
	if err != nil {
		t.Fatalf("MonitorTemperatureViolations(default) error = %v", err)
	}
	if defaultResult.Count != 0 || defaultResult.PolicyKey != "range:0:40" {
		t.Fatalf("default result = %+v", defaultResult)
	}

	summary, err := env.svc.GetSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if len(summary.ViolationCounts) != 2 {
		t.Fatalf("ViolationCounts = %+v, want one row per policy", summary.ViolationCounts)
	}
}

func TestMonitorRejectsBadInput(t *testing.T) {
	env := setupService(t)
	createChain(t, env, 10, 7)

	testCases := []struct {
		name  string
		input MonitorInput
	}{
		{name: "inverted band", input: MonitorInput{ProductID: 10, Band: &trace.TemperatureBand{Min: 10, Max: 0}}},
		{name: "unknown policy", input: MonitorInput{ProductID: 10, Policy: "arctic"}},
		{name: "missing product", input: MonitorInput{}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := env.svc.MonitorTemperatureViolations(context.Background(), testCase.input); !errors.Is(err, trace.ErrValidation) {
				t.Fatalf("MonitorTemperatureViolations() error = %v, want validation error", err)
			}
		})
	}

	if _, err := env.svc.MonitorTemperatureViolations(context.Background(), MonitorInput{ProductID: 11}); !errors.Is(err, trace.ErrNotFound) {
		t.Fatalf("MonitorTemperatureViolations(unknown chain) error = %v", err)
	}
}

func TestComputeSensorDerivedQuality(t *testing.T) {
	env := setupService(t)
	createChain(t, env, 10, 7)

	empty, err := env.svc.ComputeSensorDerivedQuality(context.Background(), 10)
	if err != nil {
		t.Fatalf("ComputeSensorDerivedQuality() error = %v", err)
	}
	if empty.Available || empty.CombinedQuality != 1.0 {
		t.Fatalf("result without telemetry = %+v", empty)
	}

	seedSensor(t, env, 7, 11)
	ingestTemperatures(t, env, 1, 18, 18)

	result, err := env.svc.ComputeSensorDerivedQuality(context.Background(), 10)
	if err != nil {
		t.Fatalf("ComputeSensorDerivedQuality() error = %v", err)
	}
	if !result.Available {
		t.Fatalf("Available = false with telemetry present")
	}
	want := (1.0 + result.Quality.Score) / 2
	if math.Abs(result.CombinedQuality-want) > 1e-9 {
		t.Fatalf("CombinedQuality = %v, want %v", result.CombinedQuality, want)
	}

	summary, err := env.svc.GetSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if summary.Chain.SensorQualityScore == nil || *summary.Chain.SensorQualityScore != result.Quality.Score {
		t.Fatalf("stored SensorQualityScore = %v, want %v", summary.Chain.SensorQualityScore, result.Quality.Score)
	}
	if summary.Chain.InspectionQualityScore != 1.0 {
		t.Fatalf("InspectionQualityScore = %v, want untouched 1.0", summary.Chain.InspectionQualityScore)
	}
}

func TestDetectAnomaliesFlagsShock(t *testing.T) {
	env := setupService(t)
	createChain(t, env, 10, 7)
	seedSensor(t, env, 7, 11)

	seedReading(t, env, ports.SensorReading{ReadingID: 1, SensorID: 11, Temperature: floatPtr(18), ReadingQuality: 0.95, RecordedAt: baseTime.Add(-2 * time.Hour)})
	seedReading(t, env, ports.SensorReading{ReadingID: 2, SensorID: 11, Temperature: floatPtr(18), ShockDetected: true, ReadingQuality: 0.95, RecordedAt: baseTime.Add(-time.Hour)})
	if _, err := env.svc.IngestRecentTelemetry(context.Background(), 10); err != nil {
		t.Fatalf("IngestRecentTelemetry() error = %v", err)
	}

	report, err := env.svc.DetectAnomalies(context.Background(), 10)
	if err != nil {
		t.Fatalf("DetectAnomalies() error = %v", err)
	}
	if report.TotalReadings != 2 {
		t.Fatalf("TotalReadings = %d, want 2", report.TotalReadings)
	}
	found := false
	for _, anomaly := range report.Anomalies {
		if anomaly.Kind == trace.AnomalyShock {
			found = true
		}
	}
	if !found {
		t.Fatalf("anomalies = %+v, want a shock anomaly", report.Anomalies)
	}
}
