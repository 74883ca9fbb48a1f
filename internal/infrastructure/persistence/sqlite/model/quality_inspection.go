package model

import "gorm.io/datatypes"

type QualityInspection struct {
	InspectionID uint64         `gorm:"column:inspection_id;primaryKey;autoIncrement"`
	EventID      uint64         `gorm:"column:event_id;not null;uniqueIndex"`
	ProductID    uint64         `gorm:"column:product_id;not null;index"`
	InspectorID  uint64         `gorm:"column:inspector_id;not null"`
	Passed       bool           `gorm:"column:passed;not null"`
	Score        float64        `gorm:"column:score;not null"`
	Findings     datatypes.JSON `gorm:"column:findings"`
	InspectedAt  string         `gorm:"column:inspected_at;type:text;not null"`
}

func (QualityInspection) TableName() string {
	return "quality_inspections"
}
