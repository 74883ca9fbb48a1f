package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"foodtrace/internal/domain/trace"
	"foodtrace/internal/infrastructure/persistence/sqlite/model"
	"foodtrace/internal/ports"
)

// DirectoryRepository serves the product, identity and sensor directories
// from local tables.
type DirectoryRepository struct {
	db *gorm.DB
}

var (
	_ ports.ProductDirectory  = (*DirectoryRepository)(nil)
	_ ports.IdentityDirectory = (*DirectoryRepository)(nil)
	_ ports.SensorDirectory   = (*DirectoryRepository)(nil)
	_ ports.DirectoryWriter   = (*DirectoryRepository)(nil)
)

func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

func (r *DirectoryRepository) GetProduct(ctx context.Context, productID uint64) (ports.Product, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.Product{}, err
	}

	var row model.Product
	if err := db.Where("product_id = ?", productID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Product{}, ports.ErrDirectoryProductNotFound
		}
		return ports.Product{}, persistenceError(err, "query product")
	}
	return ports.Product{
		ProductID:  row.ProductID,
		Name:       row.Name,
		Category:   row.Category,
		ProducerID: row.ProducerID,
	}, nil
}

func (r *DirectoryRepository) GetUser(ctx context.Context, userID uint64) (ports.User, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.User{}, err
	}

	var row model.User
	if err := db.Where("user_id = ?", userID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.User{}, ports.ErrUserNotFound
		}
		return ports.User{}, persistenceError(err, "query user")
	}

	user := ports.User{
		UserID: row.UserID,
		Name:   row.Name,
		Role:   row.Role,
	}
	if row.Lat != nil && row.Lon != nil {
		user.Location = &trace.Location{Lat: *row.Lat, Lon: *row.Lon, Description: row.Description}
	}
	return user, nil
}

func (r *DirectoryRepository) GetZoneForProducer(ctx context.Context, producerID uint64) (ports.SensorZone, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.SensorZone{}, err
	}

	var row model.SensorZone
	if err := db.Where("producer_id = ?", producerID).Order("zone_id asc").Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.SensorZone{}, ports.ErrZoneNotFound
		}
		return ports.SensorZone{}, persistenceError(err, "query sensor zone")
	}
	return ports.SensorZone{ZoneID: row.ZoneID, ProducerID: row.ProducerID, Name: row.Name}, nil
}

func (r *DirectoryRepository) ListSensors(ctx context.Context, zoneID uint64) ([]ports.Sensor, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.Sensor
	if err := db.Where("zone_id = ? AND active = ?", zoneID, true).Order("sensor_id asc").Find(&rows).Error; err != nil {
		return nil, persistenceError(err, "query sensors")
	}

	items := make([]ports.Sensor, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.Sensor{
			SensorID: row.SensorID,
			ZoneID:   row.ZoneID,
			Kind:     row.Kind,
			Active:   row.Active,
		})
	}
	return items, nil
}

func (r *DirectoryRepository) ListRecentReadings(ctx context.Context, sensorID uint64, since time.Time, limit int) ([]ports.SensorReading, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Where("sensor_id = ? AND recorded_at >= ?", sensorID, formatTime(since)).
		Order("recorded_at desc").
		Order("reading_id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.SensorReading
	if err := query.Find(&rows).Error; err != nil {
		return nil, persistenceError(err, "query sensor readings")
	}

	items := make([]ports.SensorReading, 0, len(rows))
	for _, row := range rows {
		reading, err := mapReading(row)
		if err != nil {
			return nil, err
		}
		items = append(items, reading)
	}
	return items, nil
}

func (r *DirectoryRepository) UpsertUser(ctx context.Context, user ports.User) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.User{UserID: user.UserID, Name: user.Name, Role: user.Role}
	if user.Location != nil {
		lat, lon := user.Location.Lat, user.Location.Lon
		row.Lat = &lat
		row.Lon = &lon
		row.Description = user.Location.Description
	}
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return persistenceError(err, "upsert user")
	}
	return nil
}

func (r *DirectoryRepository) UpsertProduct(ctx context.Context, product ports.Product) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.Product{
		ProductID:  product.ProductID,
		Name:       product.Name,
		Category:   product.Category,
		ProducerID: product.ProducerID,
	}
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return persistenceError(err, "upsert product")
	}
	return nil
}

func (r *DirectoryRepository) UpsertZone(ctx context.Context, zone ports.SensorZone) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.SensorZone{ZoneID: zone.ZoneID, ProducerID: zone.ProducerID, Name: zone.Name}
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return persistenceError(err, "upsert sensor zone")
	}
	return nil
}

func (r *DirectoryRepository) UpsertSensor(ctx context.Context, sensor ports.Sensor) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.Sensor{SensorID: sensor.SensorID, ZoneID: sensor.ZoneID, Kind: sensor.Kind, Active: sensor.Active}
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return persistenceError(err, "upsert sensor")
	}
	return nil
}

func (r *DirectoryRepository) InsertReading(ctx context.Context, reading ports.SensorReading) (ports.SensorReading, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.SensorReading{}, err
	}

	extra, err := encodeJSONMap(reading.ExtraData)
	if err != nil {
		return ports.SensorReading{}, err
	}

	row := model.SensorReading{
		ReadingID:      reading.ReadingID,
		SensorID:       reading.SensorID,
		Temperature:    reading.Temperature,
		Humidity:       reading.Humidity,
		GasLevel:       reading.GasLevel,
		LightLevel:     reading.LightLevel,
		ShockDetected:  reading.ShockDetected,
		SoilMoisture:   reading.SoilMoisture,
		PH:             reading.PH,
		ReadingQuality: reading.ReadingQuality,
		ExtraData:      extra,
		RecordedAt:     formatTime(reading.RecordedAt),
	}
	if reading.Location != nil {
		lat, lon := reading.Location.Lat, reading.Location.Lon
		row.Lat = &lat
		row.Lon = &lon
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return ports.SensorReading{}, persistenceError(err, "insert sensor reading")
	}
	return mapReading(row)
}

func mapReading(row model.SensorReading) (ports.SensorReading, error) {
	recordedAt, err := parseTime(row.RecordedAt)
	if err != nil {
		return ports.SensorReading{}, err
	}
	extra, err := decodeJSONMap(row.ExtraData)
	if err != nil {
		return ports.SensorReading{}, err
	}

	reading := ports.SensorReading{
		ReadingID:      row.ReadingID,
		SensorID:       row.SensorID,
		Temperature:    row.Temperature,
		Humidity:       row.Humidity,
		GasLevel:       row.GasLevel,
		LightLevel:     row.LightLevel,
		ShockDetected:  row.ShockDetected,
		SoilMoisture:   row.SoilMoisture,
		PH:             row.PH,
		ReadingQuality: row.ReadingQuality,
		ExtraData:      extra,
		RecordedAt:     recordedAt,
	}
	if row.Lat != nil && row.Lon != nil {
		reading.Location = &trace.Location{Lat: *row.Lat, Lon: *row.Lon}
	}
	return reading, nil
}
