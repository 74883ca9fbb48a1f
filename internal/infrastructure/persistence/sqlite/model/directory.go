package model

import "gorm.io/datatypes"

type User struct {
	UserID      uint64   `gorm:"column:user_id;primaryKey"`
	Name        string   `gorm:"column:name;type:text;not null"`
	Role        string   `gorm:"column:role;type:text;not null"`
	Lat         *float64 `gorm:"column:lat"`
	Lon         *float64 `gorm:"column:lon"`
	Description string   `gorm:"column:description;type:text;not null;default:''"`
}

func (User) TableName() string {
	return "users"
}

type Product struct {
	ProductID  uint64 `gorm:"column:product_id;primaryKey"`
	Name       string `gorm:"column:name;type:text;not null"`
	Category   string `gorm:"column:category;type:text;not null;default:''"`
	ProducerID uint64 `gorm:"column:producer_id;not null;index"`
}

func (Product) TableName() string {
	return "products"
}

type SensorZone struct {
	ZoneID     uint64 `gorm:"column:zone_id;primaryKey"`
	ProducerID uint64 `gorm:"column:producer_id;not null;index"`
	Name       string `gorm:"column:name;type:text;not null"`
}

func (SensorZone) TableName() string {
	return "sensor_zones"
}

type Sensor struct {
	SensorID uint64 `gorm:"column:sensor_id;primaryKey"`
	ZoneID   uint64 `gorm:"column:zone_id;not null;index"`
	Kind     string `gorm:"column:kind;type:text;not null"`
	Active   bool   `gorm:"column:active;not null"`
}

func (Sensor) TableName() string {
	return "sensors"
}

type SensorReading struct {
	ReadingID      uint64         `gorm:"column:reading_id;primaryKey;autoIncrement"`
	SensorID       uint64         `gorm:"column:sensor_id;not null;index:idx_sensor_readings_sensor_time,priority:1"`
	Temperature    *float64       `gorm:"column:temperature"`
	Humidity       *float64       `gorm:"column:humidity"`
	GasLevel       *float64       `gorm:"column:gas_level"`
	LightLevel     *float64       `gorm:"column:light_level"`
	ShockDetected  bool           `gorm:"column:shock_detected;not null;default:false"`
	SoilMoisture   *float64       `gorm:"column:soil_moisture"`
	PH             *float64       `gorm:"column:ph"`
	ReadingQuality float64        `gorm:"column:reading_quality;not null"`
	Lat            *float64       `gorm:"column:lat"`
	Lon            *float64       `gorm:"column:lon"`
	ExtraData      datatypes.JSON `gorm:"column:extra_data"`
	RecordedAt     string         `gorm:"column:recorded_at;type:text;not null;index:idx_sensor_readings_sensor_time,priority:2"`
}

func (SensorReading) TableName() string {
	return "sensor_readings"
}
