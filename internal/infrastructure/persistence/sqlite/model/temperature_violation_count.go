package model

type TemperatureViolationCount struct {
	ProductID  uint64  `gorm:"column:product_id;primaryKey"`
	PolicyKey  string  `gorm:"column:policy_key;type:text;primaryKey"`
	MinTemp    float64 `gorm:"column:min_temp;not null"`
	MaxTemp    float64 `gorm:"column:max_temp;not null"`
	Violations int     `gorm:"column:violations;not null"`
	Readings   int     `gorm:"column:readings;not null"`
	CheckedAt  string  `gorm:"column:checked_at;type:text;not null"`
}

func (TemperatureViolationCount) TableName() string {
	return "temperature_violation_counts"
}
