package model

import "gorm.io/datatypes"

type TelemetryRecord struct {
	TelemetryID    uint64         `gorm:"column:telemetry_id;primaryKey;autoIncrement"`
	EventID        uint64         `gorm:"column:event_id;not null;uniqueIndex"`
	ProductID      uint64         `gorm:"column:product_id;not null;index"`
	SensorID       uint64         `gorm:"column:sensor_id;not null;index"`
	Temperature    *float64       `gorm:"column:temperature"`
	Humidity       *float64       `gorm:"column:humidity"`
	GasLevel       *float64       `gorm:"column:gas_level"`
	LightLevel     *float64       `gorm:"column:light_level"`
	ShockDetected  bool           `gorm:"column:shock_detected;not null;default:false"`
	SoilMoisture   *float64       `gorm:"column:soil_moisture"`
	PH             *float64       `gorm:"column:ph"`
	ReadingQuality float64        `gorm:"column:reading_quality;not null"`
	Processed      bool           `gorm:"column:processed;not null;default:false"`
	ExtraData      datatypes.JSON `gorm:"column:extra_data"`
	RecordedAt     string         `gorm:"column:recorded_at;type:text;not null;index"`
}

func (TelemetryRecord) TableName() string {
	return "telemetry_records"
}
