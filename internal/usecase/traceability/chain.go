package traceability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"foodtrace/internal/bootstrap/logging"
	"foodtrace/internal/domain/trace"
	"foodtrace/internal/errs"
	"foodtrace/internal/ports"
)

type CreateChainInput struct {
	ProductID  uint64
	ProducerID uint64
	// Producer overrides the snapshot taken from the identity directory.
	Producer *trace.ProducerSnapshot
}

type CreateChainResult struct {
	Chain          trace.Chain
	CreatedEventID uint64
	CreatedHash    string
}

type AppendEventInput struct {
	ProductID uint64
	Type      trace.EventType
	Actor     *trace.Actor
	Location  *trace.Location
	Payload   map[string]any
	// Timestamp defaults to the current time.
	Timestamp time.Time
	// IdempotencyKey makes retries safe: a repeated key returns the stored
	// event instead of appending a second one.
	IdempotencyKey string
}

type AppendEventResult struct {
	EventID   uint64
	Hash      string
	Duplicate bool
	Chain     trace.Chain
}

type Summary struct {
	Chain             trace.Chain
	Events            []trace.Event
	Telemetry         []trace.Telemetry
	Segments          []trace.TransportSegment
	Inspections       []trace.Inspection
	ViolationCounts   []ports.ViolationCount
	MissingEventTypes []trace.EventType
	CombinedQuality   float64
}

// ChainStatus is the compact view cached under chain_status:<product>.
type ChainStatus struct {
	ProductID  uint64 `json:"product_id"`
	Events     int    `json:"events"`
	IsComplete bool   `json:"is_complete"`
	IsVerified bool   `json:"is_verified"`
}

func (s *Service) CreateChain(ctx context.Context, input CreateChainInput) (CreateChainResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return CreateChainResult{}, err
	}
	if s.products == nil || s.identities == nil {
		return CreateChainResult{}, errDirectoryRequired
	}
	if input.ProductID == 0 {
		return CreateChainResult{}, trace.ErrProductRequired
	}

	logCtx := logging.WithProduct(logging.WithAttrs(ctx, slog.String("component", "usecase.traceability")), input.ProductID)

	product, err := s.products.GetProduct(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, trace.ErrNotFound) {
			return CreateChainResult{}, errs.Wrapf(trace.ErrProductNotFound, "product %d", input.ProductID)
		}
		return CreateChainResult{}, errs.Wrap(err, "resolve product")
	}
	if product.ProducerID != 0 && input.ProducerID != 0 && product.ProducerID != input.ProducerID {
		return CreateChainResult{}, errs.Wrapf(trace.ErrNotProductOwner, "producer %d, product %d", input.ProducerID, input.ProductID)
	}

	producerID := input.ProducerID
	if producerID == 0 {
		producerID = product.ProducerID
	}
	producer, err := s.identities.GetUser(ctx, producerID)
	if err != nil {
		if errors.Is(err, trace.ErrNotFound) {
			return CreateChainResult{}, errs.Wrapf(trace.ErrProducerNotFound, "producer %d", producerID)
		}
		return CreateChainResult{}, errs.Wrap(err, "resolve producer")
	}

	snapshot := trace.ProducerSnapshot{
		ID:       producer.UserID,
		Name:     producer.Name,
		Location: producer.Location,
	}
	if input.Producer != nil {
		if name := strings.TrimSpace(input.Producer.Name); name != "" {
			snapshot.Name = name
		}
		if input.Producer.Location != nil {
			snapshot.Location = input.Producer.Location
		}
	}
	if snapshot.Location != nil {
		if err := snapshot.Location.Validate(); err != nil {
			return CreateChainResult{}, err
		}
	}

	unlock, err := s.locker.Lock(ctx, productLockKey(input.ProductID))
	if err != nil {
		return CreateChainResult{}, errs.Wrap(err, "lock product")
	}
	defer unlock()

	now := s.nowUTC()
	var out CreateChainResult
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		chain, createErr := s.repo.CreateChain(txCtx, trace.Chain{
			ProductID:              input.ProductID,
			Producer:               snapshot,
			InspectionQualityScore: trace.InspectionQualityScore(nil),
			CreatedAt:              now,
		})
		if createErr != nil {
			return createErr
		}

		created, appendErr := s.appendInTx(txCtx, chain, AppendEventInput{
			ProductID: input.ProductID,
			Type:      trace.EventCreated,
			Actor:     &trace.Actor{ID: snapshot.ID, Role: trace.RoleProducer},
			Location:  snapshot.Location,
			Payload: map[string]any{
				"product_name":  product.Name,
				"producer_name": snapshot.Name,
			},
			Timestamp: now,
		}, nil)
		if appendErr != nil {
			return appendErr
		}

		out = CreateChainResult{
			Chain:          created.Chain,
			CreatedEventID: created.EventID,
			CreatedHash:    created.Hash,
		}
		return nil
	}); err != nil {
		logging.Warn(logCtx, "create chain failed", slog.Any("err", errs.Loggable(err)))
		return CreateChainResult{}, err
	}

	s.invalidateCache(logCtx, input.ProductID)
	logging.Info(logCtx, "trace chain created",
		slog.Uint64("chain_id", out.Chain.ChainID),
		slog.Uint64("producer_id", snapshot.ID),
	)
	return out, nil
}

func (s *Service) AppendEvent(ctx context.Context, input AppendEventInput) (AppendEventResult, error) {
	return s.appendEvent(ctx, input, nil)
}

// appendEvent runs validation, the per-product lock and one transaction
// around the insert, the optional linked-row writer and the recompute.
func (s *Service) appendEvent(ctx context.Context, input AppendEventInput, linked func(context.Context, trace.Event) error) (AppendEventResult, error) {
	if err := s.checkReady(ctx); err != nil {
		return AppendEventResult{}, err
	}
	if err := validateAppendInput(input); err != nil {
		return AppendEventResult{}, err
	}

	logCtx := logging.WithProduct(logging.WithAttrs(ctx, slog.String("component", "usecase.traceability")), input.ProductID)

	unlock, err := s.locker.Lock(ctx, productLockKey(input.ProductID))
	if err != nil {
		return AppendEventResult{}, errs.Wrap(err, "lock product")
	}
	defer unlock()

	var out AppendEventResult
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		chain, getErr := s.repo.GetChainByProduct(txCtx, input.ProductID)
		if getErr != nil {
			return getErr
		}
		result, appendErr := s.appendInTx(txCtx, chain, input, linked)
		if appendErr != nil {
			return appendErr
		}
		out = result
		return nil
	}); err != nil {
		if !errors.Is(err, trace.ErrNotFound) && !errors.Is(err, trace.ErrValidation) {
			logging.Error(logCtx, "append event failed",
				slog.String("event_type", string(input.Type)),
				slog.Any("err", errs.Loggable(err)),
			)
		}
		return AppendEventResult{}, err
	}

	if !out.Duplicate {
		s.invalidateCache(logCtx, input.ProductID)
	}
	logging.Debug(logCtx, "event appended",
		slog.Uint64("event_id", out.EventID),
		slog.String("event_type", string(input.Type)),
		slog.Bool("duplicate", out.Duplicate),
	)
	return out, nil
}

func (s *Service) appendInTx(txCtx context.Context, chain trace.Chain, input AppendEventInput, linked func(context.Context, trace.Event) error) (AppendEventResult, error) {
	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = s.nowUTC()
	}

	event := trace.Event{
		ProductID:      input.ProductID,
		Type:           input.Type,
		Timestamp:      timestamp.UTC(),
		Location:       input.Location,
		Actor:          input.Actor,
		Payload:        input.Payload,
		IdempotencyKey: strings.TrimSpace(input.IdempotencyKey),
	}
	hash, err := trace.ComputeHash(event)
	if err != nil {
		return AppendEventResult{}, err
	}
	event.Hash = hash

	inserted, err := s.repo.InsertEvent(txCtx, event)
	if err != nil {
		return AppendEventResult{}, err
	}
	if inserted.Duplicate {
		return AppendEventResult{
			EventID:   inserted.Event.EventID,
			Hash:      inserted.Event.Hash,
			Duplicate: true,
			Chain:     chain,
		}, nil
	}

	if linked != nil {
		if err := linked(txCtx, inserted.Event); err != nil {
			return AppendEventResult{}, err
		}
	}

	updated, err := s.recompute(txCtx, chain)
	if err != nil {
		return AppendEventResult{}, err
	}

	return AppendEventResult{
		EventID: inserted.Event.EventID,
		Hash:    inserted.Event.Hash,
		Chain:   updated,
	}, nil
}

// recompute reloads everything attached to the chain and persists fresh
// aggregates. Running it twice without new data yields the same chain.
func (s *Service) recompute(txCtx context.Context, chain trace.Chain) (trace.Chain, error) {
	events, err := s.repo.ListEvents(txCtx, chain.ProductID)
	if err != nil {
		return trace.Chain{}, err
	}
	segments, err := s.repo.ListSegments(txCtx, chain.ProductID)
	if err != nil {
		return trace.Chain{}, err
	}
	telemetry, err := s.repo.ListTelemetry(txCtx, chain.ProductID)
	if err != nil {
		return trace.Chain{}, err
	}
	inspections, err := s.repo.ListInspections(txCtx, chain.ProductID)
	if err != nil {
		return trace.Chain{}, err
	}

	now := s.nowUTC()
	metrics := trace.ComputeChainMetrics(trace.MetricsInput{
		Events:      events,
		Segments:    segments,
		Telemetry:   telemetry,
		Inspections: inspections,
		Now:         now,
	})
	updated := trace.ApplyMetrics(chain, metrics, now)
	if err := s.repo.SaveChainAggregates(txCtx, updated); err != nil {
		return trace.Chain{}, err
	}
	return updated, nil
}

// RecomputeChain refreshes the aggregates of one chain on demand.
func (s *Service) RecomputeChain(ctx context.Context, productID uint64) (trace.Chain, error) {
	if err := s.checkReady(ctx); err != nil {
		return trace.Chain{}, err
	}
	if productID == 0 {
		return trace.Chain{}, trace.ErrProductRequired
	}

	unlock, err := s.locker.Lock(ctx, productLockKey(productID))
	if err != nil {
		return trace.Chain{}, errs.Wrap(err, "lock product")
	}
	defer unlock()

	var out trace.Chain
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		chain, getErr := s.repo.GetChainByProduct(txCtx, productID)
		if getErr != nil {
			return getErr
		}
		updated, recomputeErr := s.recompute(txCtx, chain)
		if recomputeErr != nil {
			return recomputeErr
		}
		out = updated
		return nil
	}); err != nil {
		return trace.Chain{}, err
	}
	return out, nil
}

func (s *Service) GetSummary(ctx context.Context, productID uint64) (Summary, error) {
	if err := s.checkReady(ctx); err != nil {
		return Summary{}, err
	}
	if productID == 0 {
		return Summary{}, trace.ErrProductRequired
	}

	chain, err := s.repo.GetChainByProduct(ctx, productID)
	if err != nil {
		return Summary{}, err
	}
	events, err := s.repo.ListEvents(ctx, productID)
	if err != nil {
		return Summary{}, err
	}
	telemetry, err := s.repo.ListTelemetry(ctx, productID)
	if err != nil {
		return Summary{}, err
	}
	segments, err := s.repo.ListSegments(ctx, productID)
	if err != nil {
		return Summary{}, err
	}
	inspections, err := s.repo.ListInspections(ctx, productID)
	if err != nil {
		return Summary{}, err
	}
	counts, err := s.repo.ListViolationCounts(ctx, productID)
	if err != nil {
		return Summary{}, err
	}

	ordered := trace.SortEvents(events)
	summary := Summary{
		Chain:             chain,
		Events:            ordered,
		Telemetry:         telemetry,
		Segments:          segments,
		Inspections:       inspections,
		ViolationCounts:   counts,
		MissingEventTypes: trace.MissingRequiredEventTypes(ordered),
		CombinedQuality:   chain.CombinedQualityScore(),
	}

	s.cacheJSON(ctx, chainStatusCacheKey(productID), ChainStatus{
		ProductID:  productID,
		Events:     len(ordered),
		IsComplete: chain.IsComplete,
		IsVerified: chain.IsVerified,
	})
	return summary, nil
}

// GetChainStatus serves the compact status from cache when possible.
func (s *Service) GetChainStatus(ctx context.Context, productID uint64) (ChainStatus, error) {
	if err := s.checkReady(ctx); err != nil {
		return ChainStatus{}, err
	}

	var cached ChainStatus
	if s.readCachedJSON(ctx, chainStatusCacheKey(productID), &cached) {
		return cached, nil
	}

	summary, err := s.GetSummary(ctx, productID)
	if err != nil {
		return ChainStatus{}, err
	}
	return ChainStatus{
		ProductID:  productID,
		Events:     len(summary.Events),
		IsComplete: summary.Chain.IsComplete,
		IsVerified: summary.Chain.IsVerified,
	}, nil
}

func (s *Service) ListChains(ctx context.Context, filter ports.ChainFilter) ([]trace.Chain, error) {
	if err := s.checkReady(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListChains(ctx, filter)
}

func validateAppendInput(input AppendEventInput) error {
	if input.ProductID == 0 {
		return trace.ErrProductRequired
	}
	if !input.Type.Valid() {
		return errs.Wrapf(trace.ErrInvalidEventType, "event type %q", input.Type)
	}
	if input.Actor != nil {
		if _, err := trace.ParseActorRole(string(input.Actor.Role)); err != nil {
			return err
		}
	}
	if input.Location != nil {
		if err := input.Location.Validate(); err != nil {
			return err
		}
	}
	if _, err := trace.CanonicalPayload(input.Payload); err != nil {
		return err
	}
	return nil
}

func (s *Service) invalidateCache(ctx context.Context, productID uint64) {
	if s.cache == nil {
		return
	}
	for _, key := range []string{verifyCacheKey(productID), chainStatusCacheKey(productID)} {
		if err := s.cache.Delete(ctx, key); err != nil {
			logging.Warn(ctx, "cache invalidation failed", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
		}
	}
}

func (s *Service) cacheJSON(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		logging.Warn(ctx, "cache encode failed", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), cacheTTL); err != nil {
		logging.Warn(ctx, "cache write failed", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
	}
}

func (s *Service) readCachedJSON(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		logging.Warn(ctx, "cache read failed", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		logging.Warn(ctx, "cache decode failed", slog.String("key", key), slog.Any("err", errs.Loggable(err)))
		return false
	}
	return true
}
