package traceability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"foodtrace/internal/domain/trace"
	"foodtrace/internal/errs"
	"foodtrace/internal/ports"
)

const (
	DefaultSensorReadingLimit = 10
	DefaultSensorLookback     = 7 * 24 * time.Hour

	defaultFetchConcurrency = 4
	cacheTTL                = 10 * time.Minute
)

var (
	errRepositoryRequired = errors.New("trace repository is required")
	errUnitOfWorkRequired = errors.New("unit of work is required")
	errLockerRequired     = errors.New("locker is required")
	errDirectoryRequired  = errors.New("directory is required")
)

type Dependencies struct {
	Repo       ports.TraceRepository
	UoW        ports.UnitOfWork
	Locker     ports.Locker
	Products   ports.ProductDirectory
	Identities ports.IdentityDirectory
	Sensors    ports.SensorDirectory
	// Cache is optional; all cache traffic is best-effort.
	Cache ports.Cache
}

type Options struct {
	SensorReadingLimit int
	SensorLookback     time.Duration
	DefaultBand        trace.TemperatureBand
	Policies           TemperaturePolicies
	FetchConcurrency   int
}

type Service struct {
	repo       ports.TraceRepository
	uow        ports.UnitOfWork
	locker     ports.Locker
	products   ports.ProductDirectory
	identities ports.IdentityDirectory
	sensors    ports.SensorDirectory
	cache      ports.Cache
	opts       Options
	now        func() time.Time
}

// NewService wires the traceability usecases. Zero option values fall back
// to package defaults.
func NewService(deps Dependencies, opts Options) *Service {
	if opts.SensorReadingLimit <= 0 {
		opts.SensorReadingLimit = DefaultSensorReadingLimit
	}
	if opts.SensorLookback <= 0 {
		opts.SensorLookback = DefaultSensorLookback
	}
	if opts.DefaultBand == (trace.TemperatureBand{}) {
		opts.DefaultBand = trace.DefaultTemperatureBand
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = defaultFetchConcurrency
	}

	return &Service{
		repo:       deps.Repo,
		uow:        deps.UoW,
		locker:     deps.Locker,
		products:   deps.Products,
		identities: deps.Identities,
		sensors:    deps.Sensors,
		cache:      deps.Cache,
		opts:       opts,
		now:        time.Now,
	}
}

func (s *Service) checkReady(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return errRepositoryRequired
	}
	if s.uow == nil {
		return errUnitOfWorkRequired
	}
	if s.locker == nil {
		return errLockerRequired
	}
	return nil
}

func (s *Service) nowUTC() time.Time {
	return s.now().UTC()
}

func productLockKey(productID uint64) string {
	return "product:" + strconv.FormatUint(productID, 10)
}

func verifyCacheKey(productID uint64) string {
	return "verify:" + strconv.FormatUint(productID, 10)
}

func chainStatusCacheKey(productID uint64) string {
	return "chain_status:" + strconv.FormatUint(productID, 10)
}
