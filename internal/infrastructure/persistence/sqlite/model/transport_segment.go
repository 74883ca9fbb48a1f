package model

type TransportSegment struct {
	SegmentID            uint64   `gorm:"column:segment_id;primaryKey;autoIncrement"`
	EventID              uint64   `gorm:"column:event_id;not null;index"`
	ProductID            uint64   `gorm:"column:product_id;not null;index"`
	StartLat             float64  `gorm:"column:start_lat;not null"`
	StartLon             float64  `gorm:"column:start_lon;not null"`
	StartDescription     string   `gorm:"column:start_description;type:text;not null;default:''"`
	EndLat               float64  `gorm:"column:end_lat;not null"`
	EndLon               float64  `gorm:"column:end_lon;not null"`
	EndDescription       string   `gorm:"column:end_description;type:text;not null;default:''"`
	PlannedDistanceKM    *float64 `gorm:"column:planned_distance_km"`
	ActualDistanceKM     *float64 `gorm:"column:actual_distance_km"`
	PlannedDurationHours *float64 `gorm:"column:planned_duration_hours"`
	ActualDurationHours  *float64 `gorm:"column:actual_duration_hours"`
	TemperatureMin       *float64 `gorm:"column:temperature_min"`
	TemperatureMax       *float64 `gorm:"column:temperature_max"`
	HumidityMin          *float64 `gorm:"column:humidity_min"`
	HumidityMax          *float64 `gorm:"column:humidity_max"`
}

func (TransportSegment) TableName() string {
	return "transport_segments"
}
