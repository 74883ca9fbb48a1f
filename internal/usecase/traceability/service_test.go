package traceability

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"foodtrace/internal/domain/trace"
	"foodtrace/internal/infrastructure/lock"
	"foodtrace/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "foodtrace/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "foodtrace/internal/infrastructure/persistence/sqlite/uow"
	"foodtrace/internal/ports"
)

var baseTime = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type testCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newTestCache() *testCache {
	return &testCache{data: make(map[string]string)}
}

func (c *testCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *testCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *testCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// testClock advances one second per reading so successive events get
// distinct, ordered timestamps.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type testEnv struct {
	svc       *Service
	db        *gorm.DB
	repo      *sqliterepo.TraceRepository
	directory *sqliterepo.DirectoryRepository
	cache     *testCache
	clock     *testClock
}

func setupService(t *testing.T) testEnv {
	t.Helper()
	return setupServiceWithOptions(t, Options{})
}

func setupServiceWithOptions(t *testing.T, opts Options) testEnv {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "trace.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	repo := sqliterepo.NewTraceRepository(db)
	directory := sqliterepo.NewDirectoryRepository(db)
	cache := newTestCache()
	clock := &testClock{now: baseTime}

	svc := NewService(Dependencies{
		Repo:       repo,
		UoW:        sqliteuow.NewUnitOfWork(db),
		Locker:     lock.NewKeyedMutex(),
		Products:   directory,
		Identities: directory,
		Sensors:    directory,
		Cache:      cache,
	}, opts)
	svc.now = clock.Now

	env := testEnv{svc: svc, db: db, repo: repo, directory: directory, cache: cache, clock: clock}
	seedDirectory(t, env)
	return env
}

func seedDirectory(t *testing.T, env testEnv) {
	t.Helper()
	ctx := context.Background()

	users := []ports.User{
		{UserID: 7, Name: "Green Acres", Role: "producer", Location: &trace.Location{Lat: 48.137154, Lon: 11.576124, Description: "Munich"}},
		{UserID: 8, Name: "Hill Farm", Role: "producer"},
		{UserID: 20, Name: "FastFreight", Role: "transporter"},
		{UserID: 30, Name: "Corner Market", Role: "retailer"},
		{UserID: 40, Name: "Quality Lab", Role: "inspector"},
	}
	for _, user := range users {
		if err := env.directory.UpsertUser(ctx, user); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	products := []ports.Product{
		{ProductID: 10, Name: "Tomatoes", ProducerID: 7},
		{ProductID: 11, Name: "Lettuce", ProducerID: 8},
		{ProductID: 12, Name: "Apples", ProducerID: 99},
		{ProductID: 13, Name: "Peppers", ProducerID: 7},
	}
	for _, product := range products {
		if err := env.directory.UpsertProduct(ctx, product); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}
}

func seedSensor(t *testing.T, env testEnv, producerID uint64, sensorID uint64) {
	t.Helper()
	ctx := context.Background()
	if err := env.directory.UpsertZone(ctx, ports.SensorZone{ZoneID: producerID * 100, ProducerID: producerID, Name: "greenhouse"}); err != nil {
		t.Fatalf("seed zone: %v", err)
	}
	if err := env.directory.UpsertSensor(ctx, ports.Sensor{SensorID: sensorID, ZoneID: producerID * 100, Kind: "climate", Active: true}); err != nil {
		t.Fatalf("seed sensor: %v", err)
	}
}

func seedReading(t *testing.T, env testEnv, reading ports.SensorReading) {
	t.Helper()
	if reading.RecordedAt.IsZero() {
		reading.RecordedAt = baseTime.Add(-time.Hour)
	}
	if _, err := env.directory.InsertReading(context.Background(), reading); err != nil {
		t.Fatalf("seed reading: %v", err)
	}
}

func createChain(t *testing.T, env testEnv, productID uint64, producerID uint64) CreateChainResult {
	t.Helper()
	result, err := env.svc.CreateChain(context.Background(), CreateChainInput{ProductID: productID, ProducerID: producerID})
	if err != nil {
		t.Fatalf("CreateChain(%d) error = %v", productID, err)
	}
	return result
}

func appendEvent(t *testing.T, env testEnv, productID uint64, eventType trace.EventType) AppendEventResult {
	t.Helper()
	result, err := env.svc.AppendEvent(context.Background(), AppendEventInput{
		ProductID: productID,
		Type:      eventType,
		Actor:     &trace.Actor{ID: 7, Role: trace.RoleProducer},
	})
	if err != nil {
		t.Fatalf("AppendEvent(%s) error = %v", eventType, err)
	}
	return result
}

func floatPtr(v float64) *float64 { return &v }
