package traceability

import (
	"context"
	"log/slog"
	"time"

	"foodtrace/internal/bootstrap/logging"
	"foodtrace/internal/domain/trace"
	"foodtrace/internal/errs"
)

type VerifyResult struct {
	ProductID uint64 `json:"product_id"`
	trace.VerificationResult
	// TamperedEventIDs lists events whose stored hash no longer matches
	// their content. Their verified flag is cleared.
	TamperedEventIDs []uint64  `json:"tampered_event_ids"`
	VerifiedAt       time.Time `json:"verified_at"`
}

func (s *Service) Verify(ctx context.Context, productID uint64) (VerifyResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return VerifyResult{}, err
	}
	if productID == 0 {
		return VerifyResult{}, trace.ErrProductRequired
	}

	logCtx := logging.WithProduct(logging.WithAttrs(ctx, slog.String("component", "usecase.verification")), productID)

	unlock, err := s.locker.Lock(ctx, productLockKey(productID))
	if err != nil {
		return VerifyResult{}, errs.Wrap(err, "lock product")
	}
	defer unlock()

	now := s.nowUTC()
	var out VerifyResult
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		chain, getErr := s.repo.GetChainByProduct(txCtx, productID)
		if getErr != nil {
			return getErr
		}
		events, listErr := s.repo.ListEvents(txCtx, productID)
		if listErr != nil {
			return listErr
		}
		telemetry, listErr := s.repo.ListTelemetry(txCtx, productID)
		if listErr != nil {
			return listErr
		}
		inspections, listErr := s.repo.ListInspections(txCtx, productID)
		if listErr != nil {
			return listErr
		}

		result := trace.Verify(trace.VerificationInput{
			Events:      events,
			Telemetry:   telemetry,
			Inspections: inspections,
			IsComplete:  chain.IsComplete,
		})

		verifiedIDs := make([]uint64, 0, len(events))
		tampered := make([]uint64, 0)
		for _, event := range events {
			if trace.HashMatches(event) {
				verifiedIDs = append(verifiedIDs, event.EventID)
				continue
			}
			tampered = append(tampered, event.EventID)
		}

		if err := s.repo.SetEventsVerified(txCtx, productID, verifiedIDs); err != nil {
			return err
		}
		if err := s.repo.MarkChainVerified(txCtx, productID, result.Authentic, now); err != nil {
			return err
		}

		out = VerifyResult{
			ProductID:          productID,
			VerificationResult: result,
			TamperedEventIDs:   tampered,
			VerifiedAt:         now,
		}
		return nil
	}); err != nil {
		logging.Warn(logCtx, "verification failed", slog.Any("err", errs.Loggable(err)))
		return VerifyResult{}, err
	}

	s.invalidateCache(logCtx, productID)
	s.cacheJSON(logCtx, verifyCacheKey(productID), out)

	logging.Info(logCtx, "chain verified",
		slog.Bool("authentic", out.Authentic),
		slog.Float64("score", out.Score),
		slog.Int("tampered_events", len(out.TamperedEventIDs)),
	)
	return out, nil
}

// LastVerification returns the cached result of the latest Verify call.
func (s *Service) LastVerification(ctx context.Context, productID uint64) (VerifyResult, bool) {
	if err := s.checkReady(ctx); err != nil {
		return VerifyResult{}, false
	}
	var cached VerifyResult
	if !s.readCachedJSON(ctx, verifyCacheKey(productID), &cached) {
		return VerifyResult{}, false
	}
	return cached, true
}
