package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"foodtrace/internal/domain/trace"
	"foodtrace/internal/errs"
	"foodtrace/internal/infrastructure/persistence/sqlite/model"
	"foodtrace/internal/ports"
)

type TraceRepository struct {
	db *gorm.DB
}

var _ ports.TraceRepository = (*TraceRepository)(nil)

func NewTraceRepository(db *gorm.DB) *TraceRepository {
	return &TraceRepository{db: db}
}

func (r *TraceRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	return dbFromContext(ctx, r.db)
}

func (r *TraceRepository) CreateChain(ctx context.Context, chain trace.Chain) (trace.Chain, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return trace.Chain{}, err
	}

	row := model.TraceChain{
		ProductID:              chain.ProductID,
		ProducerID:             chain.Producer.ID,
		ProducerName:           chain.Producer.Name,
		TotalDistanceKM:        chain.TotalDistanceKM,
		TotalTimeHours:         chain.TotalTimeHours,
		TemperatureViolations:  chain.TemperatureViolations,
		InspectionQualityScore: chain.InspectionQualityScore,
		SensorQualityScore:     chain.SensorQualityScore,
		IsComplete:             chain.IsComplete,
		IsVerified:             chain.IsVerified,
		CreatedAt:              formatTime(chain.CreatedAt),
		CompletedAt:            formatOptionalTime(chain.CompletedAt),
		VerifiedAt:             formatOptionalTime(chain.VerifiedAt),
	}
	if loc := chain.Producer.Location; loc != nil {
		row.ProducerLat = &loc.Lat
		row.ProducerLon = &loc.Lon
		row.ProducerLocation = loc.Description
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		return trace.Chain{}, persistenceError(result.Error, "insert trace chain")
	}
	if result.RowsAffected == 0 {
		return trace.Chain{}, ports.ErrChainExists
	}
	return mapChain(row)
}

func (r *TraceRepository) GetChainByProduct(ctx context.Context, productID uint64) (trace.Chain, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return trace.Chain{}, err
	}

	var row model.TraceChain
	if err := db.Where("product_id = ?", productID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return trace.Chain{}, ports.ErrChainNotFound
		}
		return trace.Chain{}, persistenceError(err, "query trace chain")
	}
	return mapChain(row)
}

func (r *TraceRepository) ListChains(ctx context.Context, filter ports.ChainFilter) ([]trace.Chain, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.TraceChain{})
	if filter.OnlyComplete {
		query = query.Where("is_complete = ?", true)
	}
	if filter.OnlyVerified {
		query = query.Where("is_verified = ?", true)
	}
	if filter.ProducerID != 0 {
		query = query.Where("producer_id = ?", filter.ProducerID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []model.TraceChain
	if err := query.Order("product_id asc").Find(&rows).Error; err != nil {
		return nil, persistenceError(err, "query trace chains")
	}

	items := make([]trace.Chain, 0, len(rows))
	for _, row := range rows {
		chain, err := mapChain(row)
		if err != nil {
			return nil, err
		}
		items = append(items, chain)
	}
	return items, nil
}

func (r *TraceRepository) SaveChainAggregates(ctx context.Context, chain trace.Chain) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&model.TraceChain{}).
		Where("product_id = ?", chain.ProductID).
		Updates(map[string]any{
			"total_distance_km":        chain.TotalDistanceKM,
			"total_time_hours":         chain.TotalTimeHours,
			"temperature_violations":   chain.TemperatureViolations,
			"inspection_quality_score": chain.InspectionQualityScore,
			"is_complete":              chain.IsComplete,
			"completed_at":             formatOptionalTime(chain.CompletedAt),
		})
	if result.Error != nil {
		return persistenceError(result.Error, "update chain aggregates")
	}
	if result.RowsAffected == 0 {
		return ports.ErrChainNotFound
	}
	return nil
}

func (r *TraceRepository) SetSensorQualityScore(ctx context.Context, productID uint64, score float64) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&model.TraceChain{}).
		Where("product_id = ?", productID).
		Update("sensor_quality_score", score)
	if result.Error != nil {
		return persistenceError(result.Error, "update sensor quality score")
	}
	if result.RowsAffected == 0 {
		return ports.ErrChainNotFound
	}
	return nil
}

func (r *TraceRepository) MarkChainVerified(ctx context.Context, productID uint64, verified bool, verifiedAt time.Time) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	updates := map[string]any{"is_verified": verified}
	if verified {
		updates["verified_at"] = formatTime(verifiedAt)
	}

	result := db.Model(&model.TraceChain{}).
		Where("product_id = ?", productID).
		Updates(updates)
	if result.Error != nil {
		return persistenceError(result.Error, "update chain verification")
	}
	if result.RowsAffected == 0 {
		return ports.ErrChainNotFound
	}
	return nil
}

func (r *TraceRepository) InsertEvent(ctx context.Context, event trace.Event) (ports.EventInsertResult, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.EventInsertResult{}, err
	}

	payload, err := trace.CanonicalPayload(event.Payload)
	if err != nil {
		return ports.EventInsertResult{}, err
	}

	row := model.TraceEvent{
		ProductID: event.ProductID,
		EventType: string(event.Type),
		Timestamp: formatTime(event.Timestamp),
		Payload:   datatypes.JSON(payload),
		Hash:      event.Hash,
		Verified:  event.Verified,
	}
	if loc := event.Location; loc != nil {
		lat, lon, desc := loc.Lat, loc.Lon, loc.Description
		row.Lat = &lat
		row.Lon = &lon
		row.LocationDescription = &desc
	}
	if actor := event.Actor; actor != nil {
		id, role := actor.ID, string(actor.Role)
		row.ActorID = &id
		row.ActorRole = &role
	}

	key := strings.TrimSpace(event.IdempotencyKey)
	if key == "" {
		if err := db.Create(&row).Error; err != nil {
			return ports.EventInsertResult{}, persistenceError(err, "insert trace event")
		}
		stored, err := mapEvent(row)
		return ports.EventInsertResult{Event: stored}, err
	}

	row.IdempotencyKey = &key
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		return ports.EventInsertResult{}, persistenceError(result.Error, "insert trace event")
	}
	if result.RowsAffected > 0 {
		stored, err := mapEvent(row)
		return ports.EventInsertResult{Event: stored}, err
	}

	var existing model.TraceEvent
	if err := db.Where("product_id = ? AND idempotency_key = ?", event.ProductID, key).Take(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.EventInsertResult{}, ports.ErrEventNotFound
		}
		return ports.EventInsertResult{}, persistenceError(err, "query event by idempotency key")
	}
	stored, err := mapEvent(existing)
	return ports.EventInsertResult{Event: stored, Duplicate: true}, err
}

func (r *TraceRepository) ListEvents(ctx context.Context, productID uint64) ([]trace.Event, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	// Insertion order; callers re-sort by timestamp with a stable sort.
	var rows []model.TraceEvent
	if err := db.Where("product_id = ?", productID).Order("event_id asc").Find(&rows).Error; err != nil {
		return nil, persistenceError(err, "query trace events")
	}

	items := make([]trace.Event, 0, len(rows))
	for _, row := range rows {
		event, err := mapEvent(row)
		if err != nil {
			return nil, err
		}
		items = append(items, event)
	}
	return items, nil
}

func (r *TraceRepository) SetEventsVerified(ctx context.Context, productID uint64, verifiedIDs []uint64) error {
	if ports.TxFromContext(ctx) != nil {
		db, err := r.dbFromContext(ctx)
		if err != nil {
			return err
		}

		if err := db.Model(&model.TraceEvent{}).
			Where("product_id = ?", productID).
			Update("verified", false).Error; err != nil {
			return persistenceError(err, "reset event verification")
		}
		if len(verifiedIDs) == 0 {
			return nil
		}
		if err := db.Model(&model.TraceEvent{}).
			Where("product_id = ? AND event_id IN ?", productID, verifiedIDs).
			Update("verified", true).Error; err != nil {
			return persistenceError(err, "mark events verified")
		}
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := ports.WithTxContext(ctx, tx)
		return r.SetEventsVerified(txCtx, productID, verifiedIDs)
	})
}

func (r *TraceRepository) InsertTelemetry(ctx context.Context, record trace.Telemetry) (trace.Telemetry, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return trace.Telemetry{}, err
	}

	extra, err := encodeJSONMap(record.ExtraData)
	if err != nil {
		return trace.Telemetry{}, err
	}

	row := model.TelemetryRecord{
		EventID:        record.EventID,
		ProductID:      record.ProductID,
		SensorID:       record.SensorID,
		Temperature:    record.Temperature,
		Humidity:       record.Humidity,
		GasLevel:       record.GasLevel,
		LightLevel:     record.LightLevel,
		ShockDetected:  record.ShockDetected,
		SoilMoisture:   record.SoilMoisture,
		PH:             record.PH,
		ReadingQuality: record.ReadingQuality,
		Processed:      record.Processed,
		ExtraData:      extra,
		RecordedAt:     formatTime(record.RecordedAt),
	}
	if err := db.Create(&row).Error; err != nil {
		return trace.Telemetry{}, persistenceError(err, "insert telemetry record")
	}
	return mapTelemetry(row)
}

func (r *TraceRepository) ListTelemetry(ctx context.Context, productID uint64) ([]trace.Telemetry, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.TelemetryRecord
	if err := db.Where("product_id = ?", productID).
		Order("recorded_at asc").
		Order("telemetry_id asc").
		Find(&rows).Error; err != nil {
		return nil, persistenceError(err, "query telemetry records")
	}

	items := make([]trace.Telemetry, 0, len(rows))
	for _, row := range rows {
		record, err := mapTelemetry(row)
		if err != nil {
			return nil, err
		}
		items = append(items, record)
	}
	return items, nil
}

func (r *TraceRepository) InsertSegment(ctx context.Context, segment trace.TransportSegment) (trace.TransportSegment, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return trace.TransportSegment{}, err
	}

	row := model.TransportSegment{
		EventID:              segment.EventID,
		ProductID:            segment.ProductID,
		StartLat:             segment.Start.Lat,
		StartLon:             segment.Start.Lon,
		StartDescription:     segment.Start.Description,
		EndLat:               segment.End.Lat,
		EndLon:               segment.End.Lon,
		EndDescription:       segment.End.Description,
		PlannedDistanceKM:    segment.PlannedDistanceKM,
		ActualDistanceKM:     segment.ActualDistanceKM,
		PlannedDurationHours: segment.PlannedDurationHours,
		ActualDurationHours:  segment.ActualDurationHours,
		TemperatureMin:       segment.TemperatureMin,
		TemperatureMax:       segment.TemperatureMax,
		HumidityMin:          segment.HumidityMin,
		HumidityMax:          segment.HumidityMax,
	}
	if err := db.Create(&row).Error; err != nil {
		return trace.TransportSegment{}, persistenceError(err, "insert transport segment")
	}
	return mapSegment(row), nil
}

func (r *TraceRepository) ListSegments(ctx context.Context, productID uint64) ([]trace.TransportSegment, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.TransportSegment
	if err := db.Where("product_id = ?", productID).Order("segment_id asc").Find(&rows).Error; err != nil {
		return nil, persistenceError(err, "query transport segments")
	}

	items := make([]trace.TransportSegment, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapSegment(row))
	}
	return items, nil
}

func (r *TraceRepository) InsertInspection(ctx context.Context, inspection trace.Inspection) (trace.Inspection, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return trace.Inspection{}, err
	}

	findings, err := encodeJSONMap(inspection.Findings)
	if err != nil {
		return trace.Inspection{}, err
	}

	row := model.QualityInspection{
		EventID:     inspection.EventID,
		ProductID:   inspection.ProductID,
		InspectorID: inspection.InspectorID,
		Passed:      inspection.Passed,
		Score:       inspection.Score,
		Findings:    findings,
		InspectedAt: formatTime(inspection.InspectedAt),
	}
	if err := db.Create(&row).Error; err != nil {
		return trace.Inspection{}, persistenceError(err, "insert quality inspection")
	}
	return mapInspection(row)
}

func (r *TraceRepository) ListInspections(ctx context.Context, productID uint64) ([]trace.Inspection, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.QualityInspection
	if err := db.Where("product_id = ?", productID).Order("inspection_id asc").Find(&rows).Error; err != nil {
		return nil, persistenceError(err, "query quality inspections")
	}

	items := make([]trace.Inspection, 0, len(rows))
	for _, row := range rows {
		inspection, err := mapInspection(row)
		if err != nil {
			return nil, err
		}
		items = append(items, inspection)
	}
	return items, nil
}

func (r *TraceRepository) UpsertViolationCount(ctx context.Context, count ports.ViolationCount) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.TemperatureViolationCount{
		ProductID:  count.ProductID,
		PolicyKey:  count.PolicyKey,
		MinTemp:    count.MinTemp,
		MaxTemp:    count.MaxTemp,
		Violations: count.Violations,
		Readings:   count.Readings,
		CheckedAt:  formatTime(count.CheckedAt),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_id"}, {Name: "policy_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"min_temp":   row.MinTemp,
			"max_temp":   row.MaxTemp,
			"violations": row.Violations,
			"readings":   row.Readings,
			"checked_at": row.CheckedAt,
		}),
	}).Create(&row).Error; err != nil {
		return persistenceError(err, "upsert temperature violation count")
	}
	return nil
}

func (r *TraceRepository) ListViolationCounts(ctx context.Context, productID uint64) ([]ports.ViolationCount, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.TemperatureViolationCount
	if err := db.Where("product_id = ?", productID).Order("policy_key asc").Find(&rows).Error; err != nil {
		return nil, persistenceError(err, "query temperature violation counts")
	}

	items := make([]ports.ViolationCount, 0, len(rows))
	for _, row := range rows {
		checkedAt, err := parseTime(row.CheckedAt)
		if err != nil {
			return nil, err
		}
		items = append(items, ports.ViolationCount{
			ProductID:  row.ProductID,
			PolicyKey:  row.PolicyKey,
			MinTemp:    row.MinTemp,
			MaxTemp:    row.MaxTemp,
			Violations: row.Violations,
			Readings:   row.Readings,
			CheckedAt:  checkedAt,
		})
	}
	return items, nil
}

func mapChain(row model.TraceChain) (trace.Chain, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return trace.Chain{}, err
	}
	completedAt, err := parseOptionalTime(row.CompletedAt)
	if err != nil {
		return trace.Chain{}, err
	}
	verifiedAt, err := parseOptionalTime(row.VerifiedAt)
	if err != nil {
		return trace.Chain{}, err
	}

	chain := trace.Chain{
		ChainID:   row.ChainID,
		ProductID: row.ProductID,
		Producer: trace.ProducerSnapshot{
			ID:   row.ProducerID,
			Name: row.ProducerName,
		},
		TotalDistanceKM:        row.TotalDistanceKM,
		TotalTimeHours:         row.TotalTimeHours,
		TemperatureViolations:  row.TemperatureViolations,
		InspectionQualityScore: row.InspectionQualityScore,
		SensorQualityScore:     row.SensorQualityScore,
		IsComplete:             row.IsComplete,
		IsVerified:             row.IsVerified,
		CreatedAt:              createdAt,
		CompletedAt:            completedAt,
		VerifiedAt:             verifiedAt,
	}
	if row.ProducerLat != nil && row.ProducerLon != nil {
		chain.Producer.Location = &trace.Location{
			Lat:         *row.ProducerLat,
			Lon:         *row.ProducerLon,
			Description: row.ProducerLocation,
		}
	}
	return chain, nil
}

func mapEvent(row model.TraceEvent) (trace.Event, error) {
	timestamp, err := parseTime(row.Timestamp)
	if err != nil {
		return trace.Event{}, err
	}
	payload, err := trace.DecodePayload(row.Payload)
	if err != nil {
		return trace.Event{}, errs.Wrapf(err, "decode payload of event %d", row.EventID)
	}

	event := trace.Event{
		EventID:   row.EventID,
		ProductID: row.ProductID,
		Type:      trace.EventType(row.EventType),
		Timestamp: timestamp,
		Payload:   payload,
		Hash:      row.Hash,
		Verified:  row.Verified,
	}
	if row.Lat != nil && row.Lon != nil {
		location := trace.Location{Lat: *row.Lat, Lon: *row.Lon}
		if row.LocationDescription != nil {
			location.Description = *row.LocationDescription
		}
		event.Location = &location
	}
	if row.ActorID != nil && row.ActorRole != nil {
		event.Actor = &trace.Actor{ID: *row.ActorID, Role: trace.ActorRole(*row.ActorRole)}
	}
	if row.IdempotencyKey != nil {
		event.IdempotencyKey = *row.IdempotencyKey
	}
	return event, nil
}

func mapTelemetry(row model.TelemetryRecord) (trace.Telemetry, error) {
	recordedAt, err := parseTime(row.RecordedAt)
	if err != nil {
		return trace.Telemetry{}, err
	}
	extra, err := decodeJSONMap(row.ExtraData)
	if err != nil {
		return trace.Telemetry{}, errs.Wrapf(err, "decode extra data of telemetry %d", row.TelemetryID)
	}

	return trace.Telemetry{
		TelemetryID:    row.TelemetryID,
		EventID:        row.EventID,
		ProductID:      row.ProductID,
		SensorID:       row.SensorID,
		Temperature:    row.Temperature,
		Humidity:       row.Humidity,
		GasLevel:       row.GasLevel,
		LightLevel:     row.LightLevel,
		ShockDetected:  row.ShockDetected,
		SoilMoisture:   row.SoilMoisture,
		PH:             row.PH,
		ReadingQuality: row.ReadingQuality,
		Processed:      row.Processed,
		ExtraData:      extra,
		RecordedAt:     recordedAt,
	}, nil
}

func mapSegment(row model.TransportSegment) trace.TransportSegment {
	return trace.TransportSegment{
		SegmentID:            row.SegmentID,
		EventID:              row.EventID,
		ProductID:            row.ProductID,
		Start:                trace.Location{Lat: row.StartLat, Lon: row.StartLon, Description: row.StartDescription},
		End:                  trace.Location{Lat: row.EndLat, Lon: row.EndLon, Description: row.EndDescription},
		PlannedDistanceKM:    row.PlannedDistanceKM,
		ActualDistanceKM:     row.ActualDistanceKM,
		PlannedDurationHours: row.PlannedDurationHours,
		ActualDurationHours:  row.ActualDurationHours,
		TemperatureMin:       row.TemperatureMin,
		TemperatureMax:       row.TemperatureMax,
		HumidityMin:          row.HumidityMin,
		HumidityMax:          row.HumidityMax,
	}
}

func mapInspection(row model.QualityInspection) (trace.Inspection, error) {
	inspectedAt, err := parseTime(row.InspectedAt)
	if err != nil {
		return trace.Inspection{}, err
	}
	findings, err := decodeJSONMap(row.Findings)
	if err != nil {
		return trace.Inspection{}, errs.Wrapf(err, "decode findings of inspection %d", row.InspectionID)
	}

	return trace.Inspection{
		InspectionID: row.InspectionID,
		EventID:      row.EventID,
		ProductID:    row.ProductID,
		InspectorID:  row.InspectorID,
		Passed:       row.Passed,
		Score:        row.Score,
		Findings:     findings,
		InspectedAt:  inspectedAt,
	}, nil
}
