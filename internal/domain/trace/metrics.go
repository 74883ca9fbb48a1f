package trace

import (
	"sort"
	"time"
)

type MetricsInput struct {
	// Events in insertion order; ComputeChainMetrics orders them by timestamp.
	Events      []Event
	Segments    []TransportSegment
	Telemetry   []Telemetry
	Inspections []Inspection
	Now         time.Time
}

type ChainMetrics struct {
	TotalDistanceKM        float64
	TotalTimeHours         float64
	TemperatureViolations  int
	InspectionQualityScore float64
	IsComplete             bool
	MissingEventTypes      []EventType
}

// SortEvents returns a copy ordered by timestamp. Equal timestamps keep
// their input (insertion) order.
func SortEvents(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func ComputeChainMetrics(in MetricsInput) ChainMetrics {
	ordered := SortEvents(in.Events)
	missing := MissingRequiredEventTypes(ordered)

	return ChainMetrics{
		TotalDistanceKM:        totalDistanceKM(ordered, in.Segments),
		TotalTimeHours:         totalTimeHours(ordered, in.Now),
		TemperatureViolations:  CountTemperatureViolations(in.Telemetry, DefaultTemperatureBand),
		InspectionQualityScore: InspectionQualityScore(in.Inspections),
		IsComplete:             len(missing) == 0,
		MissingEventTypes:      missing,
	}
}

// ApplyMetrics writes recomputed aggregates onto a chain. Completeness is
// monotonic: a chain that was complete stays complete and keeps its
// original completion time.
func ApplyMetrics(chain Chain, metrics ChainMetrics, now time.Time) Chain {
	chain.TotalDistanceKM = metrics.TotalDistanceKM
	chain.TotalTimeHours = metrics.TotalTimeHours
	chain.TemperatureViolations = metrics.TemperatureViolations
	chain.InspectionQualityScore = metrics.InspectionQualityScore

	if metrics.IsComplete && !chain.IsComplete {
		chain.IsComplete = true
	}
	if chain.IsComplete && chain.CompletedAt == nil {
		completedAt := now.UTC()
		chain.CompletedAt = &completedAt
	}
	return chain
}

func totalDistanceKM(ordered []Event, segments []TransportSegment) float64 {
	if len(segments) > 0 {
		total := 0.0
		for _, segment := range segments {
			total += segment.DistanceKM()
		}
		return total
	}

	total := 0.0
	var previous *Location
	for _, event := range ordered {
		if event.Location == nil {
			continue
		}
		if previous != nil {
			total += HaversineKM(*previous, *event.Location)
		}
		previous = event.Location
	}
	return total
}

func totalTimeHours(ordered []Event, now time.Time) float64 {
	switch len(ordered) {
	case 0:
		return 0
	case 1:
		return now.Sub(ordered[0].Timestamp).Hours()
	default:
		return ordered[len(ordered)-1].Timestamp.Sub(ordered[0].Timestamp).Hours()
	}
}

// InspectionQualityScore is mean(score)/100, or 1.0 before any inspection.
func InspectionQualityScore(inspections []Inspection) float64 {
	if len(inspections) == 0 {
		return 1.0
	}
	sum := 0.0
	for _, inspection := range inspections {
		sum += inspection.Score
	}
	return sum / float64(len(inspections)) / 100
}

func MissingRequiredEventTypes(events []Event) []EventType {
	seen := make(map[EventType]struct{}, len(events))
	for _, event := range events {
		seen[event.Type] = struct{}{}
	}

	missing := make([]EventType, 0)
	for _, required := range RequiredEventTypes {
		if _, ok := seen[required]; !ok {
			missing = append(missing, required)
		}
	}
	return missing
}
