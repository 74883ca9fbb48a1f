package ports

import (
	"context"
	"fmt"
	"time"

	"foodtrace/internal/domain/trace"
)

var (
	ErrChainNotFound = fmt.Errorf("trace chain row: %w", trace.ErrChainNotFound)
	ErrChainExists   = fmt.Errorf("trace chain row: %w", trace.ErrChainExists)
	ErrEventNotFound = fmt.Errorf("trace event row: %w", trace.ErrEventNotFound)
)

type ChainFilter struct {
	OnlyComplete bool
	OnlyVerified bool
	ProducerID   uint64
	Limit        int
}

// ViolationCount is the latest temperature monitor result for one policy.
type ViolationCount struct {
	ProductID  uint64
	PolicyKey  string
	MinTemp    float64
	MaxTemp    float64
	Violations int
	Readings   int
	CheckedAt  time.Time
}

// EventInsertResult reports whether a new row was written or an existing
// row of the same product with the same idempotency key was returned.
type EventInsertResult struct {
	Event     trace.Event
	Duplicate bool
}

type TraceReadRepository interface {
	GetChainByProduct(ctx context.Context, productID uint64) (trace.Chain, error)
	ListChains(ctx context.Context, filter ChainFilter) ([]trace.Chain, error)
	ListEvents(ctx context.Context, productID uint64) ([]trace.Event, error)
	ListTelemetry(ctx context.Context, productID uint64) ([]trace.Telemetry, error)
	ListSegments(ctx context.Context, productID uint64) ([]trace.TransportSegment, error)
	ListInspections(ctx context.Context, productID uint64) ([]trace.Inspection, error)
	ListViolationCounts(ctx context.Context, productID uint64) ([]ViolationCount, error)
}

type TraceRepository interface {
	TraceReadRepository
	CreateChain(ctx context.Context, chain trace.Chain) (trace.Chain, error)
	SaveChainAggregates(ctx context.Context, chain trace.Chain) error
	SetSensorQualityScore(ctx context.Context, productID uint64, score float64) error
	MarkChainVerified(ctx context.Context, productID uint64, verified bool, verifiedAt time.Time) error
	InsertEvent(ctx context.Context, event trace.Event) (EventInsertResult, error)
	SetEventsVerified(ctx context.Context, productID uint64, verifiedIDs []uint64) error
	InsertTelemetry(ctx context.Context, record trace.Telemetry) (trace.Telemetry, error)
	InsertSegment(ctx context.Context, segment trace.TransportSegment) (trace.TransportSegment, error)
	InsertInspection(ctx context.Context, inspection trace.Inspection) (trace.Inspection, error)
	UpsertViolationCount(ctx context.Context, count ViolationCount) error
}
