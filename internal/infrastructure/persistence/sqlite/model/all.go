package model

// All lists every table the schema migration manages.
func All() []any {
	return []any{
		&TraceChain{},
		&TraceEvent{},
		&TelemetryRecord{},
		&TransportSegment{},
		&QualityInspection{},
		&TemperatureViolationCount{},
		&TraceKV{},
		&User{},
		&Product{},
		&SensorZone{},
		&Sensor{},
		&SensorReading{},
	}
}
