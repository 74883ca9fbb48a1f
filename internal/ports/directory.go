package ports

import (
	"context"
	"fmt"
	"time"

	"foodtrace/internal/domain/trace"
)

var (
	ErrDirectoryProductNotFound = fmt.Errorf("directory: %w", trace.ErrProductNotFound)
	ErrUserNotFound             = fmt.Errorf("directory user %w", trace.ErrNotFound)
	ErrZoneNotFound             = fmt.Errorf("sensor zone %w", trace.ErrNotFound)
)

type Product struct {
	ProductID  uint64
	Name       string
	Category   string
	ProducerID uint64
}

type User struct {
	UserID   uint64
	Name     string
	Role     string
	Location *trace.Location
}

type SensorZone struct {
	ZoneID     uint64
	ProducerID uint64
	Name       string
}

type Sensor struct {
	SensorID uint64
	ZoneID   uint64
	Kind     string
	Active   bool
}

type SensorReading struct {
	ReadingID      uint64
	SensorID       uint64
	Temperature    *float64
	Humidity       *float64
	GasLevel       *float64
	LightLevel     *float64
	ShockDetected  bool
	SoilMoisture   *float64
	PH             *float64
	ReadingQuality float64
	Location       *trace.Location
	ExtraData      map[string]any
	RecordedAt     time.Time
}

type ProductDirectory interface {
	GetProduct(ctx context.Context, productID uint64) (Product, error)
}

type IdentityDirectory interface {
	GetUser(ctx context.Context, userID uint64) (User, error)
}

type SensorDirectory interface {
	GetZoneForProducer(ctx context.Context, producerID uint64) (SensorZone, error)
	ListSensors(ctx context.Context, zoneID uint64) ([]Sensor, error)
	// ListRecentReadings returns at most limit readings recorded at or after
	// since, newest first.
	ListRecentReadings(ctx context.Context, sensorID uint64, since time.Time, limit int) ([]SensorReading, error)
}

// DirectoryWriter loads fixture records into the local directory tables.
type DirectoryWriter interface {
	UpsertUser(ctx context.Context, user User) error
	UpsertProduct(ctx context.Context, product Product) error
	UpsertZone(ctx context.Context, zone SensorZone) error
	UpsertSensor(ctx context.Context, sensor Sensor) error
	InsertReading(ctx context.Context, reading SensorReading) (SensorReading, error)
}
