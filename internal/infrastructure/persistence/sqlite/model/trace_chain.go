package model

type TraceChain struct {
	ChainID                uint64   `gorm:"column:chain_id;primaryKey;autoIncrement"`
	ProductID              uint64   `gorm:"column:product_id;not null;uniqueIndex"`
	ProducerID             uint64   `gorm:"column:producer_id;not null;index"`
	ProducerName           string   `gorm:"column:producer_name;type:text;not null"`
	ProducerLat            *float64 `gorm:"column:producer_lat"`
	ProducerLon            *float64 `gorm:"column:producer_lon"`
	ProducerLocation       string   `gorm:"column:producer_location;type:text;not null;default:''"`
	TotalDistanceKM        float64  `gorm:"column:total_distance_km;not null;default:0"`
	TotalTimeHours         float64  `gorm:"column:total_time_hours;not null;default:0"`
	TemperatureViolations  int      `gorm:"column:temperature_violations;not null;default:0"`
	InspectionQualityScore float64  `gorm:"column:inspection_quality_score;not null"`
	SensorQualityScore     *float64 `gorm:"column:sensor_quality_score"`
	IsComplete             bool     `gorm:"column:is_complete;not null;default:false;index"`
	IsVerified             bool     `gorm:"column:is_verified;not null;default:false;index"`
	CreatedAt              string   `gorm:"column:created_at;type:text;not null"`
	CompletedAt            *string  `gorm:"column:completed_at;type:text"`
	VerifiedAt             *string  `gorm:"column:verified_at;type:text"`
}

func (TraceChain) TableName() string {
	return "trace_chains"
}
