package trace

import "time"

type Location struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Description string  `json:"description,omitempty"`
}

func (l Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 || l.Lon < -180 || l.Lon > 180 {
		return ErrInvalidLocation
	}
	return nil
}

type Actor struct {
	ID   uint64    `json:"id"`
	Role ActorRole `json:"role"`
}

// SystemActor is used for events the engine records on its own behalf.
var SystemActor = Actor{ID: 0, Role: RoleSystem}

// Event is one entry of a product chain. Everything except Verified is frozen
// once Hash is set.
type Event struct {
	EventID        uint64
	ProductID      uint64
	Type           EventType
	Timestamp      time.Time
	Location       *Location
	Actor          *Actor
	Payload        map[string]any
	Hash           string
	Verified       bool
	IdempotencyKey string
}

type ProducerSnapshot struct {
	ID       uint64
	Name     string
	Location *Location
}

type Chain struct {
	ChainID                uint64
	ProductID              uint64
	Producer               ProducerSnapshot
	TotalDistanceKM        float64
	TotalTimeHours         float64
	TemperatureViolations  int
	InspectionQualityScore float64
	SensorQualityScore     *float64
	IsComplete             bool
	IsVerified             bool
	CreatedAt              time.Time
	CompletedAt            *time.Time
	VerifiedAt             *time.Time
}

// CombinedQualityScore merges the inspection-based and sensor-derived scores.
// Without a sensor score the inspection score stands alone.
func (c Chain) CombinedQualityScore() float64 {
	if c.SensorQualityScore == nil {
		return c.InspectionQualityScore
	}
	return (c.InspectionQualityScore + *c.SensorQualityScore) / 2
}

type Telemetry struct {
	TelemetryID    uint64
	EventID        uint64
	ProductID      uint64
	SensorID       uint64
	Temperature    *float64
	Humidity       *float64
	GasLevel       *float64
	LightLevel     *float64
	ShockDetected  bool
	SoilMoisture   *float64
	PH             *float64
	ReadingQuality float64
	Processed      bool
	ExtraData      map[string]any
	RecordedAt     time.Time
}

type TransportSegment struct {
	SegmentID            uint64
	EventID              uint64
	ProductID            uint64
	Start                Location
	End                  Location
	PlannedDistanceKM    *float64
	ActualDistanceKM     *float64
	PlannedDurationHours *float64
	ActualDurationHours  *float64
	TemperatureMin       *float64
	TemperatureMax       *float64
	HumidityMin          *float64
	HumidityMax          *float64
}

// DistanceKM prefers the measured distance, then the planned one, then the
// great-circle distance between the endpoints.
func (s TransportSegment) DistanceKM() float64 {
	if s.ActualDistanceKM != nil {
		return *s.ActualDistanceKM
	}
	if s.PlannedDistanceKM != nil {
		return *s.PlannedDistanceKM
	}
	return HaversineKM(s.Start, s.End)
}

type Inspection struct {
	InspectionID uint64
	EventID      uint64
	ProductID    uint64
	InspectorID  uint64
	Passed       bool
	Score        float64
	Findings     map[string]any
	InspectedAt  time.Time
}

func ValidateInspectionScore(score float64) error {
	if score < 0 || score > 100 {
		return ErrInvalidScore
	}
	return nil
}
