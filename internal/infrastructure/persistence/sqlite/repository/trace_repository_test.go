package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"foodtrace/internal/domain/trace"
	"foodtrace/internal/infrastructure/persistence/sqlite/model"
	"foodtrace/internal/ports"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "trace.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func setupTraceRepository(t *testing.T) *TraceRepository {
	t.Helper()
	return NewTraceRepository(setupDB(t))
}

func floatPtr(v float64) *float64 { return &v }

var baseTime = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func createTestChain(t *testing.T, repo *TraceRepository, productID uint64) trace.Chain {
	t.Helper()
	chain, err := repo.CreateChain(context.Background(), trace.Chain{
		ProductID: productID,
		Producer: trace.ProducerSnapshot{
			ID:       7,
			Name:     "Green Acres",
			Location: &trace.Location{Lat: 48.1, Lon: 11.5, Description: "farm"},
		},
		InspectionQualityScore: 1,
		CreatedAt:              baseTime,
	})
	if err != nil {
		t.Fatalf("CreateChain() error = %v", err)
	}
	return chain
}

func TestCreateChainRejectsDuplicateProduct(t *testing.T) {
	repo := setupTraceRepository(t)
	ctx := context.Background()

	chain := createTestChain(t, repo, 100)
	if chain.ChainID == 0 {
		t.Fatalf("CreateChain() chain_id = 0")
	}
	if chain.Producer.Location == nil || chain.Producer.Location.Description != "farm" {
		t.Fatalf("producer snapshot = %+v", chain.Producer)
	}

	_, err := repo.CreateChain(ctx, trace.Chain{ProductID: 100, CreatedAt: baseTime})
	if !errors.Is(err, ports.ErrChainExists) || !errors.Is(err, trace.ErrAlreadyExists) {
		t.Fatalf("CreateChain(duplicate) error = %v, want ErrChainExists", err)
	}
}

func TestGetChainByProductNotFound(t *testing.T) {
	repo := setupTraceRepository(t)

	_, err := repo.GetChainByProduct(context.Background(), 404)
	if !errors.Is(err, trace.ErrChainNotFound) || !errors.Is(err, trace.ErrNotFound) {
		t.Fatalf("GetChainByProduct() error = %v, want ErrChainNotFound", err)
	}
}

func TestInsertEventRoundTripPreservesHash(t *testing.T) {
	repo := setupTraceRepository(t)
	ctx := context.Background()
	createTestChain(t, repo, 1)

	event := trace.Event{
		ProductID: 1,
		Type:      trace.EventHarvest,
		Timestamp: baseTime.Add(90 * time.Minute).Add(123 * time.Microsecond),
		Location:  &trace.Location{Lat: 48.137154, Lon: 11.576124, Description: "field 3"},
		Actor:     &trace.Actor{ID: 7, Role: trace.RoleProducer},
		Payload: map[string]any{
			"yield_kg": 1250.5,
			"crop":     "tomato",
			"batch":    map[string]any{"z": 1, "a": []any{"x", 2}},
		},
	}
	hash, err := trace.ComputeHash(event)
	if err != nil {
		t.Fatalf("ComputeHash() error = %v", err)
	}
	event.Hash = hash

	result, err := repo.InsertEvent(ctx, event)
	if err != nil {
		t.Fatalf("InsertEvent() error = %v", err)
	}
	if result.Duplicate || result.Event.EventID == 0 {
		t.Fatalf("InsertEvent() result = %+v", result)
	}

	events, err := repo.ListEvents(ctx, 1)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("ListEvents() len = %d", len(events))
	}
	stored := events[0]
	if stored.Hash != hash {
		t.Fatalf("stored hash = %q, want %q", stored.Hash, hash)
	}
	if !trace.HashMatches(stored) {
		t.Fatalf("hash of stored event no longer matches its content")
	}
	if !stored.Timestamp.Equal(event.Timestamp) {
		t.Fatalf("timestamp = %s, want %s", stored.Timestamp, event.Timestamp)
	}
}

func TestInsertEventIdempotencyKey(t *testing.T) {
	repo := setupTraceRepository(t)
	ctx := context.Background()
	createTestChain(t, repo, 1)

	event := trace.Event{
		ProductID:      1,
		Type:           trace.EventStorage,
		Timestamp:      baseTime,
		Hash:           "h1",
		IdempotencyKey: "storage-1",
	}
	first, err := repo.InsertEvent(ctx, event)
	if err != nil {
		t.Fatalf("InsertEvent(first) error = %v", err)
	}

	event.Hash = "h2"
	second, err := repo.InsertEvent(ctx, event)
	if err != nil {
		t.Fatalf("InsertEvent(second) error = %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("InsertEvent(second) duplicate = false")
	}
	if second.Event.EventID != first.Event.EventID || second.Event.Hash != "h1" {
		t.Fatalf("duplicate returned %+v, want original event %d", second.Event, first.Event.EventID)
	}

	other := trace.Event{ProductID: 1, Type: trace.EventStorage, Timestamp: baseTime, Hash: "h3"}
	for i := 0; i < 2; i++ {
		if _, err := repo.InsertEvent(ctx, other); err != nil {
			t.Fatalf("InsertEvent(no key) error = %v", err)
		}
	}

	events, err := repo.ListEvents(ctx, 1)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("ListEvents() len = %d, want 3", len(events))
	}
}

func TestInsertEventIdempotencyKeyScopedToProduct(t *testing.T) {
	repo := setupTraceRepository(t)
	ctx := context.Background()
	createTestChain(t, repo, 1)
	createTestChain(t, repo, 2)

	for _, productID := range []uint64{1, 2} {
		result, err := repo.InsertEvent(ctx, trace.Event{
			ProductID:      productID,
			Type:           trace.EventSensorReading,
			Timestamp:      baseTime,
			Hash:           "h",
			IdempotencyKey: "sensor-reading:1",
		})
		if err != nil {
			t.Fatalf("InsertEvent(product %d) error = %v", productID, err)
		}
		if result.Duplicate {
			t.Fatalf("InsertEvent(product %d) duplicate = true, want new row", productID)
		}
		if result.Event.ProductID != productID {
			t.Fatalf("InsertEvent(product %d) stored product %d", productID, result.Event.ProductID)
		}
	}

	again, err := repo.InsertEvent(ctx, trace.Event{
		ProductID:      2,
		Type:           trace.EventSensorReading,
		Timestamp:      baseTime,
		Hash:           "other",
		IdempotencyKey: "sensor-reading:1",
	})
	if err != nil {
		t.Fatalf("InsertEvent(repeat) error = %v", err)
	}
	if !again.Duplicate || again.Event.ProductID != 2 {
		t.Fatalf("InsertEvent(repeat) = %+v, want duplicate of product 2", again)
	}
}

func TestSaveChainAggregatesAndVerification(t *testing.T) {
	repo := setupTraceRepository(t)
	ctx := context.Background()
	chain := createTestChain(t, repo, 5)

	completedAt := baseTime.Add(48 * time.Hour)
	chain.TotalDistanceKM = 504.2
	chain.TotalTimeHours = 48
	chain.TemperatureViolations = 2
	chain.InspectionQualityScore = 0.85
	chain.IsComplete = true
	chain.CompletedAt = &completedAt
	if err := repo.SaveChainAggregates(ctx, chain); err != nil {
		t.Fatalf("SaveChainAggregates() error = %v", err)
	}
	if err := repo.SetSensorQualityScore(ctx, 5, 0.72); err != nil {
		t.Fatalf("SetSensorQualityScore() error = %v", err)
	}
	if err := repo.MarkChainVerified(ctx, 5, true, completedAt); err != nil {
		t.Fatalf("MarkChainVerified() error = %v", err)
	}

	got, err := repo.GetChainByProduct(ctx, 5)
	if err != nil {
		t.Fatalf("GetChainByProduct() error = %v", err)
	}
	if got.TotalDistanceKM != 504.2 || got.TemperatureViolations != 2 || got.InspectionQualityScore != 0.85 {
		t.Fatalf("aggregates = %+v", got)
	}
	if !got.IsComplete || got.CompletedAt == nil || !got.CompletedAt.Equal(completedAt) {
		t.Fatalf("completion = %v %v", got.IsComplete, got.CompletedAt)
	}
	if got.SensorQualityScore == nil || *got.SensorQualityScore != 0.72 {
		t.Fatalf("sensor quality = %v", got.SensorQualityScore)
	}
	if !got.IsVerified || got.VerifiedAt == nil {
		t.Fatalf("verification = %v %v", got.IsVerified, got.VerifiedAt)
	}

	if err := repo.SaveChainAggregates(ctx, trace.Chain{ProductID: 999}); !errors.Is(err, ports.ErrChainNotFound) {
		t.Fatalf("SaveChainAggregates(missing) error = %v", err)
	}
}

func TestSetEventsVerified(t *testing.T) {
	repo := setupTraceRepository(t)
	ctx := context.Background()
	createTestChain(t, repo, 1)

	ids := make([]uint64, 0, 3)
	for i := 0; i < 3; i++ {
		result, err := repo.InsertEvent(ctx, trace.Event{
			ProductID: 1,
			Type:      trace.EventStorage,
			Timestamp: baseTime.Add(time.Duration(i) * time.Hour),
			Hash:      "h",
			Verified:  true,
		})
		if err != nil {
			t.Fatalf("InsertEvent() error = %v", err)
		}
		ids = append(ids, result.Event.EventID)
	}

	if err := repo.SetEventsVerified(ctx, 1, []uint64{ids[0], ids[2]}); err != nil {
		t.Fatalf("SetEventsVerified() error = %v", err)
	}

	events, err := repo.ListEvents(ctx, 1)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	want := []bool{true, false, true}
	for i, event := range events {
		if event.Verified != want[i] {
			t.Fatalf("event %d verified = %v, want %v", event.EventID, event.Verified, want[i])
		}
	}
}

func TestTelemetrySegmentsInspections(t *testing.T) {
	repo := setupTraceRepository(t)
	ctx := context.Background()
	createTestChain(t, repo, 1)

	for i, temp := range []float64{4.5, -2, 41} {
		if _, err := repo.InsertTelemetry(ctx, trace.Telemetry{
			EventID:        uint64(10 + i),
			ProductID:      1,
			SensorID:       3,
			Temperature:    floatPtr(temp),
			ReadingQuality: 0.9,
			ExtraData:      map[string]any{"firmware": "1.2"},
			RecordedAt:     baseTime.Add(time.Duration(2-i) * time.Hour),
		}); err != nil {
			t.Fatalf("InsertTelemetry() error = %v", err)
		}
	}

	records, err := repo.ListTelemetry(ctx, 1)
	if err != nil {
		t.Fatalf("ListTelemetry() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("ListTelemetry() len = %d", len(records))
	}
	if *records[0].Temperature != 41 {
		t.Fatalf("ListTelemetry() first temperature = %v, want oldest reading 41", *records[0].Temperature)
	}
	if records[0].ExtraData["firmware"] != "1.2" {
		t.Fatalf("extra data = %v", records[0].ExtraData)
	}

	segment, err := repo.InsertSegment(ctx, trace.TransportSegment{
		EventID:          20,
		ProductID:        1,
		Start:            trace.Location{Lat: 48.1, Lon: 11.5},
		End:              trace.Location{Lat: 52.5, Lon: 13.4},
		ActualDistanceKM: floatPtr(150.5),
	})
	if err != nil {
		t.Fatalf("InsertSegment() error = %v", err)
	}
	segments, err := repo.ListSegments(ctx, 1)
	if err != nil {
		t.Fatalf("ListSegments() error = %v", err)
	}
	if len(segments) != 1 || segments[0].SegmentID != segment.SegmentID || segments[0].DistanceKM() != 150.5 {
		t.Fatalf("ListSegments() = %+v", segments)
	}

	if _, err := repo.InsertInspection(ctx, trace.Inspection{
		EventID:     30,
		ProductID:   1,
		InspectorID: 9,
		Passed:      true,
		Score:       85,
		Findings:    map[string]any{"notes": "ok"},
		InspectedAt: baseTime,
	}); err != nil {
		t.Fatalf("InsertInspection() error = %v", err)
	}
	inspections, err := repo.ListInspections(ctx, 1)
	if err != nil {
		t.Fatalf("ListInspections() error = %v", err)
	}
	if len(inspections) != 1 || inspections[0].Score != 85 || inspections[0].Findings["notes"] != "ok" {
		t.Fatalf("ListInspections() = %+v", inspections)
	}
}

func TestUpsertViolationCountKeepsLatestPerPolicy(t *testing.T) {
	repo := setupTraceRepository(t)
	ctx := context.Background()

	testCases := []ports.ViolationCount{
		{ProductID: 1, PolicyKey: "range:0:8", MinTemp: 0, MaxTemp: 8, Violations: 3, Readings: 10, CheckedAt: baseTime},
		{ProductID: 1, PolicyKey: "range:0:8", MinTemp: 0, MaxTemp: 8, Violations: 4, Readings: 12, CheckedAt: baseTime.Add(time.Hour)},
		{ProductID: 1, PolicyKey: "cold_chain", MinTemp: 2, MaxTemp: 6, Violations: 5, Readings: 12, CheckedAt: baseTime.Add(time.Hour)},
	}
	for _, testCase := range testCases {
		if err := repo.UpsertViolationCount(ctx, testCase); err != nil {
			t.Fatalf("UpsertViolationCount(%s) error = %v", testCase.PolicyKey, err)
		}
	}

	counts, err := repo.ListViolationCounts(ctx, 1)
	if err != nil {
		t.Fatalf("ListViolationCounts() error = %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("ListViolationCounts() len = %d, want 2", len(counts))
	}
	if counts[0].PolicyKey != "cold_chain" || counts[1].Violations != 4 || counts[1].Readings != 12 {
		t.Fatalf("ListViolationCounts() = %+v", counts)
	}
}

func TestListChainsFilter(t *testing.T) {
	repo := setupTraceRepository(t)
	ctx := context.Background()

	createTestChain(t, repo, 2)
	chain := createTestChain(t, repo, 1)
	chain.IsComplete = true
	if err := repo.SaveChainAggregates(ctx, chain); err != nil {
		t.Fatalf("SaveChainAggregates() error = %v", err)
	}

	all, err := repo.ListChains(ctx, ports.ChainFilter{})
	if err != nil {
		t.Fatalf("ListChains() error = %v", err)
	}
	if len(all) != 2 || all[0].ProductID != 1 {
		t.Fatalf("ListChains() = %+v", all)
	}

	complete, err := repo.ListChains(ctx, ports.ChainFilter{OnlyComplete: true})
	if err != nil {
		t.Fatalf("ListChains(complete) error = %v", err)
	}
	if len(complete) != 1 || complete[0].ProductID != 1 {
		t.Fatalf("ListChains(complete) = %+v", complete)
	}
}
