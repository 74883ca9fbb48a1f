package traceability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"foodtrace/internal/bootstrap/logging"
	"foodtrace/internal/domain/trace"
	"foodtrace/internal/errs"
	"foodtrace/internal/ports"
)

const (
	IngestMessageNoZone    = "no sensor zone for producer"
	IngestMessageNoSensors = "no active sensors in zone"

	skipReasonDuplicate = "already ingested"
)

type SkippedReading struct {
	SensorID  uint64 `json:"sensor_id"`
	ReadingID uint64 `json:"reading_id,omitempty"`
	Reason    string `json:"reason"`
}

type IngestResult struct {
	BatchID      string           `json:"batch_id"`
	ProductID    uint64           `json:"product_id"`
	Success      bool             `json:"success"`
	ZoneID       uint64           `json:"zone_id,omitempty"`
	SensorCount  int              `json:"sensor_count"`
	CreatedCount int              `json:"created_count"`
	Skipped      []SkippedReading `json:"skipped"`
	Message      string           `json:"message,omitempty"`
}

type sensorBatch struct {
	sensor   ports.Sensor
	readings []ports.SensorReading
	err      error
}

// IngestRecentTelemetry pulls the latest readings of every sensor in the
// product producer's zone and appends one sensor_reading event plus one
// telemetry record per reading. Each reading commits on its own; a failing
// reading is reported in Skipped and the batch continues.
func (s *Service) IngestRecentTelemetry(ctx context.Context, productID uint64) (IngestResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return IngestResult{}, err
	}
	if s.products == nil || s.sensors == nil {
		return IngestResult{}, errDirectoryRequired
	}
	if productID == 0 {
		return IngestResult{}, trace.ErrProductRequired
	}

	batchID := uuid.NewString()
	logCtx := logging.WithBatch(
		logging.WithProduct(logging.WithAttrs(ctx, slog.String("component", "usecase.sensor_ingest")), productID),
		batchID,
	)
	out := IngestResult{
		BatchID:   batchID,
		ProductID: productID,
		Skipped:   []SkippedReading{},
	}

	if _, err := s.repo.GetChainByProduct(ctx, productID); err != nil {
		return IngestResult{}, err
	}
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, trace.ErrNotFound) {
			return IngestResult{}, errs.Wrapf(trace.ErrProductNotFound, "product %d", productID)
		}
		return IngestResult{}, errs.Wrap(err, "resolve product")
	}

	zone, err := s.sensors.GetZoneForProducer(ctx, product.ProducerID)
	if err != nil {
		if errors.Is(err, ports.ErrZoneNotFound) {
			out.Message = IngestMessageNoZone
			logging.Info(logCtx, "telemetry ingest skipped", slog.String("reason", out.Message))
			return out, nil
		}
		return IngestResult{}, errs.Wrap(err, "resolve sensor zone")
	}
	out.ZoneID = zone.ZoneID

	sensors, err := s.sensors.ListSensors(ctx, zone.ZoneID)
	if err != nil {
		return IngestResult{}, errs.Wrap(err, "list sensors")
	}
	out.SensorCount = len(sensors)
	if len(sensors) == 0 {
		out.Message = IngestMessageNoSensors
		logging.Info(logCtx, "telemetry ingest skipped", slog.String("reason", out.Message), slog.Uint64("zone_id", zone.ZoneID))
		return out, nil
	}
	out.Success = true

	batches, err := s.fetchReadings(ctx, sensors)
	if err != nil {
		return IngestResult{}, err
	}

	for _, batch := range batches {
		if batch.err != nil {
			out.Skipped = append(out.Skipped, SkippedReading{
				SensorID: batch.sensor.SensorID,
				Reason:   batch.err.Error(),
			})
			logging.Warn(logCtx, "sensor readings fetch failed",
				slog.Uint64("sensor_id", batch.sensor.SensorID),
				slog.Any("err", errs.Loggable(batch.err)),
			)
			continue
		}

		for _, reading := range batch.readings {
			if err := ctx.Err(); err != nil {
				return out, errs.Wrap(err, "check context")
			}

			created, ingestErr := s.ingestReading(ctx, productID, batch.sensor, reading)
			if ingestErr != nil {
				out.Skipped = append(out.Skipped, SkippedReading{
					SensorID:  batch.sensor.SensorID,
					ReadingID: reading.ReadingID,
					Reason:    ingestErr.Error(),
				})
				logging.Warn(logCtx, "sensor reading skipped",
					slog.Uint64("sensor_id", batch.sensor.SensorID),
					slog.Uint64("reading_id", reading.ReadingID),
					slog.Any("err", errs.Loggable(ingestErr)),
				)
				continue
			}
			if !created {
				out.Skipped = append(out.Skipped, SkippedReading{
					SensorID:  batch.sensor.SensorID,
					ReadingID: reading.ReadingID,
					Reason:    skipReasonDuplicate,
				})
				continue
			}
			out.CreatedCount++
		}
	}

	logging.Info(logCtx, "telemetry ingest completed",
		slog.Uint64("zone_id", zone.ZoneID),
		slog.Int("sensors", out.SensorCount),
		slog.Int("created", out.CreatedCount),
		slog.Int("skipped", len(out.Skipped)),
	)
	return out, nil
}

// fetchReadings queries sensors concurrently. Per-sensor failures stay on
// the batch; only cancellation aborts the whole fetch.
func (s *Service) fetchReadings(ctx context.Context, sensors []ports.Sensor) ([]sensorBatch, error) {
	since := s.nowUTC().Add(-s.opts.SensorLookback)
	batches := make([]sensorBatch, len(sensors))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.opts.FetchConcurrency)
	for i, sensor := range sensors {
		group.Go(func() error {
			readings, err := s.sensors.ListRecentReadings(groupCtx, sensor.SensorID, since, s.opts.SensorReadingLimit)
			if ctxErr := groupCtx.Err(); ctxErr != nil {
				return ctxErr
			}
			// Oldest first so events land in the order they were measured.
			sort.SliceStable(readings, func(a, b int) bool {
				return readings[a].RecordedAt.Before(readings[b].RecordedAt)
			})
			batches[i] = sensorBatch{sensor: sensor, readings: readings, err: err}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, errs.Wrap(err, "fetch sensor readings")
	}
	return batches, nil
}

func (s *Service) ingestReading(ctx context.Context, productID uint64, sensor ports.Sensor, reading ports.SensorReading) (bool, error) {
	if reading.ReadingQuality < 0 || reading.ReadingQuality > 1 {
		return false, fmt.Errorf("%w: reading quality %g outside [0,1]", trace.ErrValidation, reading.ReadingQuality)
	}

	payload := map[string]any{
		"sensor_id":       sensor.SensorID,
		"sensor_kind":     sensor.Kind,
		"reading_id":      reading.ReadingID,
		"recorded_at":     trace.CanonicalTimestamp(reading.RecordedAt),
		"reading_quality": reading.ReadingQuality,
	}

	result, err := s.appendEvent(ctx, AppendEventInput{
		ProductID:      productID,
		Type:           trace.EventSensorReading,
		Actor:          &trace.SystemActor,
		Location:       reading.Location,
		Payload:        payload,
		IdempotencyKey: fmt.Sprintf("sensor-reading:%d", reading.ReadingID),
	}, func(txCtx context.Context, event trace.Event) error {
		_, insertErr := s.repo.InsertTelemetry(txCtx, trace.Telemetry{
			EventID:        event.EventID,
			ProductID:      productID,
			SensorID:       sensor.SensorID,
			Temperature:    reading.Temperature,
			Humidity:       reading.Humidity,
			GasLevel:       reading.GasLevel,
			LightLevel:     reading.LightLevel,
			ShockDetected:  reading.ShockDetected,
			SoilMoisture:   reading.SoilMoisture,
			PH:             reading.PH,
			ReadingQuality: reading.ReadingQuality,
			ExtraData:      reading.ExtraData,
			RecordedAt:     reading.RecordedAt,
		})
		return insertErr
	})
	if err != nil {
		return false, err
	}
	return !result.Duplicate, nil
}
