package traceability

import (
	"context"
	"log/slog"
	"strings"

	"foodtrace/internal/bootstrap/logging"
	"foodtrace/internal/domain/trace"
	"foodtrace/internal/errs"
	"foodtrace/internal/ports"
)

type MonitorInput struct {
	ProductID uint64
	// Band wins over Policy when both are set.
	Band   *trace.TemperatureBand
	Policy string
}

type MonitorResult struct {
	ProductID  uint64                       `json:"product_id"`
	PolicyKey  string                       `json:"policy_key"`
	Band       trace.TemperatureBand        `json:"band"`
	Readings   int                          `json:"readings"`
	Count      int                          `json:"violation_count"`
	Violations []trace.TemperatureViolation `json:"violations"`
}

type SensorQualityResult struct {
	ProductID       uint64              `json:"product_id"`
	Available       bool                `json:"available"`
	Quality         trace.SensorQuality `json:"quality"`
	CombinedQuality float64             `json:"combined_quality"`
}

// ResolveBand picks the thresholds for a monitor run and the key its result
// is stored under.
func (s *Service) ResolveBand(input MonitorInput) (trace.TemperatureBand, string, error) {
	if input.Band != nil {
		if err := input.Band.Validate(); err != nil {
			return trace.TemperatureBand{}, "", err
		}
		return *input.Band, input.Band.PolicyKey(), nil
	}

	if name := strings.TrimSpace(input.Policy); name != "" {
		policy, ok := s.opts.Policies.Lookup(name)
		if !ok {
			return trace.TemperatureBand{}, "", errs.Wrapf(trace.ErrValidation, "unknown temperature policy %q", name)
		}
		return policy.Band, policy.Name, nil
	}

	return s.opts.DefaultBand, s.opts.DefaultBand.PolicyKey(), nil
}

func (s *Service) MonitorTemperatureViolations(ctx context.Context, input MonitorInput) (MonitorResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return MonitorResult{}, err
	}
	if input.ProductID == 0 {
		return MonitorResult{}, trace.ErrProductRequired
	}

	band, policyKey, err := s.ResolveBand(input)
	if err != nil {
		return MonitorResult{}, err
	}

	logCtx := logging.WithProduct(logging.WithAttrs(ctx, slog.String("component", "usecase.temperature_monitor")), input.ProductID)

	unlock, err := s.locker.Lock(ctx, productLockKey(input.ProductID))
	if err != nil {
		return MonitorResult{}, errs.Wrap(err, "lock product")
	}
	defer unlock()

	var out MonitorResult
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		if _, getErr := s.repo.GetChainByProduct(txCtx, input.ProductID); getErr != nil {
			return getErr
		}
		telemetry, listErr := s.repo.ListTelemetry(txCtx, input.ProductID)
		if listErr != nil {
			return listErr
		}

		violations := trace.FindTemperatureViolations(telemetry, band)
		readings := 0
		for _, record := range telemetry {
			if record.Temperature != nil {
				readings++
			}
		}

		if err := s.repo.UpsertViolationCount(txCtx, ports.ViolationCount{
			ProductID:  input.ProductID,
			PolicyKey:  policyKey,
			MinTemp:    band.Min,
			MaxTemp:    band.Max,
			Violations: len(violations),
			Readings:   readings,
			CheckedAt:  s.nowUTC(),
		}); err != nil {
			return err
		}

		out = MonitorResult{
			ProductID:  input.ProductID,
			PolicyKey:  policyKey,
			Band:       band,
			Readings:   readings,
			Count:      len(violations),
			Violations: violations,
		}
		return nil
	}); err != nil {
		return MonitorResult{}, err
	}

	s.invalidateCache(logCtx, input.ProductID)
	logging.Info(logCtx, "temperature monitor completed",
		slog.String("policy_key", policyKey),
		slog.Int("violations", out.Count),
		slog.Int("readings", out.Readings),
	)
	return out, nil
}

func (s *Service) ComputeSensorDerivedQuality(ctx context.Context, productID uint64) (SensorQualityResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return SensorQualityResult{}, err
	}
	if productID == 0 {
		return SensorQualityResult{}, trace.ErrProductRequired
	}

	logCtx := logging.WithProduct(logging.WithAttrs(ctx, slog.String("component", "usecase.sensor_quality")), productID)

	unlock, err := s.locker.Lock(ctx, productLockKey(productID))
	if err != nil {
		return SensorQualityResult{}, errs.Wrap(err, "lock product")
	}
	defer unlock()

	var out SensorQualityResult
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		chain, getErr := s.repo.GetChainByProduct(txCtx, productID)
		if getErr != nil {
			return getErr
		}
		telemetry, listErr := s.repo.ListTelemetry(txCtx, productID)
		if listErr != nil {
			return listErr
		}

		quality, ok := trace.ComputeSensorQuality(telemetry)
		out = SensorQualityResult{
			ProductID:       productID,
			Available:       ok,
			Quality:         quality,
			CombinedQuality: chain.CombinedQualityScore(),
		}
		if !ok {
			return nil
		}

		if err := s.repo.SetSensorQualityScore(txCtx, productID, quality.Score); err != nil {
			return err
		}
		score := quality.Score
		chain.SensorQualityScore = &score
		out.CombinedQuality = chain.CombinedQualityScore()
		return nil
	}); err != nil {
		return SensorQualityResult{}, err
	}

	if out.Available {
		s.invalidateCache(logCtx, productID)
	}
	logging.Info(logCtx, "sensor quality computed",
		slog.Bool("available", out.Available),
		slog.Float64("score", out.Quality.Score),
	)
	return out, nil
}

func (s *Service) DetectAnomalies(ctx context.Context, productID uint64) (trace.AnomalyReport, error) {
	if err := s.checkReady(ctx); err != nil {
		return trace.AnomalyReport{}, err
	}
	if productID == 0 {
		return trace.AnomalyReport{}, trace.ErrProductRequired
	}

	if _, err := s.repo.GetChainByProduct(ctx, productID); err != nil {
		return trace.AnomalyReport{}, err
	}
	telemetry, err := s.repo.ListTelemetry(ctx, productID)
	if err != nil {
		return trace.AnomalyReport{}, err
	}

	report := trace.DetectAnomalies(telemetry)
	logging.Info(
		logging.WithProduct(logging.WithAttrs(ctx, slog.String("component", "usecase.anomaly")), productID),
		"anomaly detection completed",
		slog.Int("readings", report.TotalReadings),
		slog.Int("high", report.CountBySeverity(trace.SeverityHigh)),
		slog.Int("medium", report.CountBySeverity(trace.SeverityMedium)),
	)
	return report, nil
}
