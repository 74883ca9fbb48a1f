package traceability

import (
	"context"
	"errors"
	"testing"
	"time"

	"foodtrace/internal/domain/trace"
	"foodtrace/internal/ports"
)

func buildFullChain(t *testing.T, env testEnv) {
	t.Helper()
	ctx := context.Background()
	createChain(t, env, 10, 7)
	seedSensor(t, env, 7, 11)

	if _, err := env.svc.RecordHarvest(ctx, HarvestInput{ProductID: 10, ProducerID: 7, QuantityKG: 120}); err != nil {
		t.Fatalf("RecordHarvest() error = %v", err)
	}
	seedReading(t, env, ports.SensorReading{ReadingID: 1, SensorID: 11, Temperature: floatPtr(18), ReadingQuality: 0.95, RecordedAt: baseTime.Add(-time.Hour)})
	if _, err := env.svc.IngestRecentTelemetry(ctx, 10); err != nil {
		t.Fatalf("IngestRecentTelemetry() error = %v", err)
	}
	if _, err := env.svc.RecordInspection(ctx, InspectionInput{ProductID: 10, InspectorID: 40, Passed: true, Score: 90}); err != nil {
		t.Fatalf("RecordInspection() error = %v", err)
	}
	appendEvent(t, env, 10, trace.EventSaleProducerRetailer)
	appendEvent(t, env, 10, trace.EventSaleRetailerConsumer)
}

func TestVerifyAuthenticChain(t *testing.T) {
	env := setupService(t)
	buildFullChain(t, env)

	result, err := env.svc.Verify(context.Background(), 10)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if result.Score != 1.0 || !result.Authentic {
		t.Fatalf("Score = %v Authentic = %v, want 1.0 and true", result.Score, result.Authentic)
	}
	if len(result.Issues) != 0 || len(result.TamperedEventIDs) != 0 {
		t.Fatalf("Issues = %v Tampered = %v, want none", result.Issues, result.TamperedEventIDs)
	}

	summary, err := env.svc.GetSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if !summary.Chain.IsVerified || summary.Chain.VerifiedAt == nil {
		t.Fatalf("chain = %+v, want verified", summary.Chain)
	}
	for _, event := range summary.Events {
		if !event.Verified {
			t.Fatalf("event %d not marked verified", event.EventID)
		}
	}

	cached, ok := env.svc.LastVerification(context.Background(), 10)
	if !ok {
		t.Fatalf("LastVerification() found = false")
	}
	if cached.Score != result.Score || cached.Details != result.Details {
		t.Fatalf("cached = %+v, want %+v", cached, result)
	}
}

func TestVerifyIncompleteChain(t *testing.T) {
	env := setupService(t)
	createChain(t, env, 10, 7)

	result, err := env.svc.Verify(context.Background(), 10)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if result.Authentic {
		t.Fatalf("Authentic = true for a chain without telemetry or sales")
	}
	if !result.Details.BlockchainVerified || result.Details.ChainComplete {
		t.Fatalf("Details = %+v", result.Details)
	}

	summary, err := env.svc.GetSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if summary.Chain.IsVerified {
		t.Fatalf("IsVerified = true, want false for failed verification")
	}
}

func TestVerifyDetectsTamperedEvent(t *testing.T) {
	env := setupService(t)
	buildFullChain(t, env)

	summary, err := env.svc.GetSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	var harvestID uint64
	for _, event := range summary.Events {
		if event.Type == trace.EventHarvest {
			harvestID = event.EventID
		}
	}
	if err := env.db.Exec("UPDATE trace_events SET payload = ? WHERE event_id = ?", `{"quantity_kg":9000}`, harvestID).Error; err != nil {
		t.Fatalf("tamper payload: %v", err)
	}

	result, err := env.svc.Verify(context.Background(), 10)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(result.TamperedEventIDs) != 1 || result.TamperedEventIDs[0] != harvestID {
		t.Fatalf("TamperedEventIDs = %v, want [%d]", result.TamperedEventIDs, harvestID)
	}
	if result.Details.BlockchainVerified {
		t.Fatalf("BlockchainVerified = true, want false for a tampered event")
	}
	if result.Authentic || result.Score != 0.6 {
		t.Fatalf("authentic = %v score = %v, want not authentic with score 0.6", result.Authentic, result.Score)
	}

	summary, err = env.svc.GetSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if summary.Chain.IsVerified {
		t.Fatalf("chain IsVerified = true after tampering")
	}
	for _, event := range summary.Events {
		if event.EventID == harvestID && event.Verified {
			t.Fatalf("tampered event still marked verified")
		}
		if event.EventID != harvestID && !event.Verified {
			t.Fatalf("event %d lost its verified flag", event.EventID)
		}
	}
}

func TestLastVerificationRequiresLiveContext(t *testing.T) {
	env := setupService(t)
	buildFullChain(t, env)
	if _, err := env.svc.Verify(context.Background(), 10); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := env.svc.LastVerification(ctx, 10); ok {
		t.Fatalf("LastVerification() with canceled context found a result")
	}
	if _, ok := env.svc.LastVerification(context.Background(), 10); !ok {
		t.Fatalf("LastVerification() found = false after Verify")
	}
}

func TestVerifyUnknownChain(t *testing.T) {
	env := setupService(t)
	if _, err := env.svc.Verify(context.Background(), 10); !errors.Is(err, trace.ErrChainNotFound) {
		t.Fatalf("Verify() error = %v, want ErrChainNotFound", err)
	}
	if _, ok := env.svc.LastVerification(context.Background(), 10); ok {
		t.Fatalf("LastVerification() found a result for an unknown chain")
	}
}
