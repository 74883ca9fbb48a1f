package model

import "gorm.io/datatypes"

type TraceEvent struct {
	EventID             uint64         `gorm:"column:event_id;primaryKey;autoIncrement"`
	ProductID           uint64         `gorm:"column:product_id;not null;index;uniqueIndex:idx_event_idem,priority:1"`
	EventType           string         `gorm:"column:event_type;type:text;not null;index"`
	Timestamp           string         `gorm:"column:timestamp;type:text;not null"`
	Lat                 *float64       `gorm:"column:lat"`
	Lon                 *float64       `gorm:"column:lon"`
	LocationDescription *string        `gorm:"column:location_description;type:text"`
	ActorID             *uint64        `gorm:"column:actor_id"`
	ActorRole           *string        `gorm:"column:actor_role;type:text"`
	Payload             datatypes.JSON `gorm:"column:payload;not null"`
	Hash                string         `gorm:"column:hash;type:text;not null;index"`
	Verified            bool           `gorm:"column:verified;not null;default:false"`
	IdempotencyKey      *string        `gorm:"column:idempotency_key;type:text;uniqueIndex:idx_event_idem,priority:2"`
}

func (TraceEvent) TableName() string {
	return "trace_events"
}
