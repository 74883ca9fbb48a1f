package trace

import "math"

const (
	weightTemperatureConsistency = 0.25
	weightHumidityOptimality     = 0.20
	weightShockAbsence           = 0.20
	weightSoilCondition          = 0.20
	weightReadingQuality         = 0.15

	temperatureRangeSpan = 20.0

	optimalHumidityMin = 40.0
	optimalHumidityMax = 70.0

	optimalMoistureMin = 20.0
	optimalMoistureMax = 40.0
	optimalPHMin       = 6.0
	optimalPHMax       = 7.0

	// neutralFactor is used for a channel that has no readings at all.
	neutralFactor = 0.5
)

type SensorQuality struct {
	Readings               int     `json:"readings"`
	TemperatureConsistency float64 `json:"temperature_consistency"`
	HumidityOptimality     float64 `json:"humidity_optimality"`
	ShockAbsence           float64 `json:"shock_absence"`
	SoilCondition          float64 `json:"soil_condition"`
	ReadingQuality         float64 `json:"reading_quality"`
	Score                  float64 `json:"score"`
}

// ComputeSensorQuality scores a telemetry history on five weighted factors.
// The second return value is false when there is nothing to score.
func ComputeSensorQuality(records []Telemetry) (SensorQuality, bool) {
	if len(records) == 0 {
		return SensorQuality{}, false
	}

	q := SensorQuality{
		Readings:               len(records),
		TemperatureConsistency: temperatureConsistency(records),
		HumidityOptimality:     humidityOptimality(records),
		ShockAbsence:           shockAbsence(records),
		SoilCondition:          soilCondition(records),
		ReadingQuality:         meanReadingQuality(records),
	}
	q.Score = weightTemperatureConsistency*q.TemperatureConsistency +
		weightHumidityOptimality*q.HumidityOptimality +
		weightShockAbsence*q.ShockAbsence +
		weightSoilCondition*q.SoilCondition +
		weightReadingQuality*q.ReadingQuality
	return q, true
}

func temperatureConsistency(records []Telemetry) float64 {
	values := collect(records, func(t Telemetry) *float64 { return t.Temperature })
	if len(values) == 0 {
		return neutralFactor
	}
	low, high := values[0], values[0]
	for _, v := range values[1:] {
		low = math.Min(low, v)
		high = math.Max(high, v)
	}
	return math.Max(0, 1-(high-low)/temperatureRangeSpan)
}

func humidityOptimality(records []Telemetry) float64 {
	values := collect(records, func(t Telemetry) *float64 { return t.Humidity })
	if len(values) == 0 {
		return neutralFactor
	}
	avg := mean(values)
	switch {
	case avg < optimalHumidityMin:
		return math.Max(0, avg/optimalHumidityMin)
	case avg > optimalHumidityMax:
		return math.Max(0, 1-(avg-optimalHumidityMax)/(100-optimalHumidityMax))
	default:
		return 1
	}
}

func shockAbsence(records []Telemetry) float64 {
	shocks := 0
	for _, record := range records {
		if record.ShockDetected {
			shocks++
		}
	}
	return 1 - float64(shocks)/float64(len(records))
}

// soilCondition gives moisture and pH up to 0.5 each.
func soilCondition(records []Telemetry) float64 {
	moisture := collect(records, func(t Telemetry) *float64 { return t.SoilMoisture })
	ph := collect(records, func(t Telemetry) *float64 { return t.PH })

	score := 0.0
	if len(moisture) == 0 {
		score += 0.5 * neutralFactor
	} else {
		score += 0.5 * bandScore(mean(moisture), optimalMoistureMin, optimalMoistureMax, optimalMoistureMax-optimalMoistureMin)
	}
	if len(ph) == 0 {
		score += 0.5 * neutralFactor
	} else {
		score += 0.5 * bandScore(mean(ph), optimalPHMin, optimalPHMax, optimalPHMax-optimalPHMin)
	}
	return score
}

// bandScore is 1 inside [low, high] and decays linearly to 0 over falloff outside.
func bandScore(value float64, low float64, high float64, falloff float64) float64 {
	switch {
	case value < low:
		return math.Max(0, 1-(low-value)/falloff)
	case value > high:
		return math.Max(0, 1-(value-high)/falloff)
	default:
		return 1
	}
}

func meanReadingQuality(records []Telemetry) float64 {
	values := make([]float64, 0, len(records))
	for _, record := range records {
		values = append(values, record.ReadingQuality)
	}
	return mean(values)
}

func collect(records []Telemetry, pick func(Telemetry) *float64) []float64 {
	values := make([]float64, 0, len(records))
	for _, record := range records {
		if v := pick(record); v != nil {
			values = append(values, *v)
		}
	}
	return values
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
