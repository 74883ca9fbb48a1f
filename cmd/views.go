package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"foodtrace/internal/domain/trace"
	"foodtrace/internal/errs"
	"foodtrace/internal/ports"
	"foodtrace/internal/usecase/chainconsole"
	"foodtrace/internal/usecase/traceability"
)

type producerView struct {
	ID       uint64          `json:"id"`
	Name     string          `json:"name"`
	Location *trace.Location `json:"location,omitempty"`
}

type chainView struct {
	ChainID                uint64       `json:"chain_id"`
	ProductID              uint64       `json:"product_id"`
	Producer               producerView `json:"producer"`
	TotalDistanceKM        float64      `json:"total_distance_km"`
	TotalTimeHours         float64      `json:"total_time_hours"`
	TemperatureViolations  int          `json:"temperature_violations"`
	InspectionQualityScore float64      `json:"inspection_quality_score"`
	SensorQualityScore     *float64     `json:"sensor_quality_score"`
	CombinedQualityScore   float64      `json:"combined_quality_score"`
	IsComplete             bool         `json:"is_complete"`
	IsVerified             bool         `json:"is_verified"`
	CreatedAt              time.Time    `json:"created_at"`
	CompletedAt            *time.Time   `json:"completed_at,omitempty"`
	VerifiedAt             *time.Time   `json:"verified_at,omitempty"`
}

type eventView struct {
	EventID   uint64          `json:"event_id"`
	ProductID uint64          `json:"product_id"`
	EventType trace.EventType `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	Location  *trace.Location `json:"location"`
	Actor     *trace.Actor    `json:"actor"`
	Payload   map[string]any  `json:"payload"`
	Hash      string          `json:"hash"`
	Verified  bool            `json:"verified"`
}

type telemetryView struct {
	TelemetryID    uint64         `json:"telemetry_id"`
	EventID        uint64         `json:"event_id"`
	SensorID       uint64         `json:"sensor_id"`
	Temperature    *float64       `json:"temperature"`
	Humidity       *float64       `json:"humidity"`
	GasLevel       *float64       `json:"gas_level"`
	LightLevel     *float64       `json:"light_level"`
	ShockDetected  bool           `json:"shock_detected"`
	SoilMoisture   *float64       `json:"soil_moisture"`
	PH             *float64       `json:"ph"`
	ReadingQuality float64        `json:"reading_quality"`
	ExtraData      map[string]any `json:"extra_data,omitempty"`
	RecordedAt     time.Time      `json:"recorded_at"`
}

type segmentView struct {
	SegmentID            uint64         `json:"segment_id"`
	EventID              uint64         `json:"event_id"`
	Start                trace.Location `json:"start"`
	End                  trace.Location `json:"end"`
	PlannedDistanceKM    *float64       `json:"planned_distance_km"`
	ActualDistanceKM     *float64       `json:"actual_distance_km"`
	PlannedDurationHours *float64       `json:"planned_duration_hours"`
	ActualDurationHours  *float64       `json:"actual_duration_hours"`
	DistanceKM           float64        `json:"distance_km"`
}

type inspectionView struct {
	InspectionID uint64         `json:"inspection_id"`
	EventID      uint64         `json:"event_id"`
	InspectorID  uint64         `json:"inspector_id"`
	Passed       bool           `json:"passed"`
	Score        float64        `json:"score"`
	Findings     map[string]any `json:"findings,omitempty"`
	InspectedAt  time.Time      `json:"inspected_at"`
}

type violationCountView struct {
	PolicyKey  string    `json:"policy_key"`
	MinTemp    float64   `json:"min_temp"`
	MaxTemp    float64   `json:"max_temp"`
	Violations int       `json:"violations"`
	Readings   int       `json:"readings"`
	CheckedAt  time.Time `json:"checked_at"`
}

type summaryView struct {
	Chain             chainView            `json:"chain"`
	Events            []eventView          `json:"events"`
	Telemetry         []telemetryView      `json:"telemetry"`
	Segments          []segmentView        `json:"segments"`
	Inspections       []inspectionView     `json:"inspections"`
	ViolationCounts   []violationCountView `json:"violation_counts"`
	MissingEventTypes []trace.EventType    `json:"missing_event_types"`
}

type appendView struct {
	EventID   uint64    `json:"event_id"`
	Hash      string    `json:"hash"`
	Duplicate bool      `json:"duplicate"`
	Chain     chainView `json:"chain"`
}

func newChainView(chain trace.Chain) chainView {
	return chainView{
		ChainID:   chain.ChainID,
		ProductID: chain.ProductID,
		Producer: producerView{
			ID:       chain.Producer.ID,
			Name:     chain.Producer.Name,
			Location: chain.Producer.Location,
		},
		TotalDistanceKM:        chain.TotalDistanceKM,
		TotalTimeHours:         chain.TotalTimeHours,
		TemperatureViolations:  chain.TemperatureViolations,
		InspectionQualityScore: chain.InspectionQualityScore,
		SensorQualityScore:     chain.SensorQualityScore,
		CombinedQualityScore:   chain.CombinedQualityScore(),
		IsComplete:             chain.IsComplete,
		IsVerified:             chain.IsVerified,
		CreatedAt:              chain.CreatedAt,
		CompletedAt:            chain.CompletedAt,
		VerifiedAt:             chain.VerifiedAt,
	}
}

func newChainViews(chains []trace.Chain) []chainView {
	out := make([]chainView, 0, len(chains))
	for _, chain := range chains {
		out = append(out, newChainView(chain))
	}
	return out
}

func newAppendView(result traceability.AppendEventResult) appendView {
	return appendView{
		EventID:   result.EventID,
		Hash:      result.Hash,
		Duplicate: result.Duplicate,
		Chain:     newChainView(result.Chain),
	}
}

func newSummaryView(summary traceability.Summary) summaryView {
	out := summaryView{
		Chain:             newChainView(summary.Chain),
		Events:            make([]eventView, 0, len(summary.Events)),
		Telemetry:         make([]telemetryView, 0, len(summary.Telemetry)),
		Segments:          make([]segmentView, 0, len(summary.Segments)),
		Inspections:       make([]inspectionView, 0, len(summary.Inspections)),
		ViolationCounts:   make([]violationCountView, 0, len(summary.ViolationCounts)),
		MissingEventTypes: summary.MissingEventTypes,
	}
	for _, event := range summary.Events {
		out.Events = append(out.Events, eventView{
			EventID:   event.EventID,
			ProductID: event.ProductID,
			EventType: event.Type,
			Timestamp: trace.CanonicalTimestamp(event.Timestamp),
			Location:  event.Location,
			Actor:     event.Actor,
			Payload:   event.Payload,
			Hash:      event.Hash,
			Verified:  event.Verified,
		})
	}
	for _, record := range summary.Telemetry {
		out.Telemetry = append(out.Telemetry, telemetryView{
			TelemetryID:    record.TelemetryID,
			EventID:        record.EventID,
			SensorID:       record.SensorID,
			Temperature:    record.Temperature,
			Humidity:       record.Humidity,
			GasLevel:       record.GasLevel,
			LightLevel:     record.LightLevel,
			ShockDetected:  record.ShockDetected,
			SoilMoisture:   record.SoilMoisture,
			PH:             record.PH,
			ReadingQuality: record.ReadingQuality,
			ExtraData:      record.ExtraData,
			RecordedAt:     record.RecordedAt,
		})
	}
	for _, segment := range summary.Segments {
		out.Segments = append(out.Segments, segmentView{
			SegmentID:            segment.SegmentID,
			EventID:              segment.EventID,
			Start:                segment.Start,
			End:                  segment.End,
			PlannedDistanceKM:    segment.PlannedDistanceKM,
			ActualDistanceKM:     segment.ActualDistanceKM,
			PlannedDurationHours: segment.PlannedDurationHours,
			ActualDurationHours:  segment.ActualDurationHours,
			DistanceKM:           segment.DistanceKM(),
		})
	}
	for _, inspection := range summary.Inspections {
		out.Inspections = append(out.Inspections, inspectionView{
			InspectionID: inspection.InspectionID,
			EventID:      inspection.EventID,
			InspectorID:  inspection.InspectorID,
			Passed:       inspection.Passed,
			Score:        inspection.Score,
			Findings:     inspection.Findings,
			InspectedAt:  inspection.InspectedAt,
		})
	}
	for _, count := range summary.ViolationCounts {
		out.ViolationCounts = append(out.ViolationCounts, newViolationCountView(count))
	}
	return out
}

func newViolationCountView(count ports.ViolationCount) violationCountView {
	return violationCountView{
		PolicyKey:  count.PolicyKey,
		MinTemp:    count.MinTemp,
		MaxTemp:    count.MaxTemp,
		Violations: count.Violations,
		Readings:   count.Readings,
		CheckedAt:  count.CheckedAt,
	}
}

func writeJSONOutput(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return errs.Wrap(err, "encode json output")
	}
	return nil
}

// printOutput writes value as JSON when --json is set, otherwise runs text.
func printOutput(cmd *cobra.Command, value any, text func(w io.Writer) error) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		return writeJSONOutput(cmd.OutOrStdout(), value)
	}
	if err := text(cmd.OutOrStdout()); err != nil {
		return errs.Wrap(err, "write output")
	}
	return nil
}

func writeChainText(w io.Writer, chain trace.Chain) error {
	sensorQuality := "-"
	if chain.SensorQualityScore != nil {
		sensorQuality = metric(*chain.SensorQualityScore)
	}
	_, err := fmt.Fprintf(w,
		"product=%d chain=%d producer=%s complete=%t verified=%t distance_km=%s time_h=%s temp_violations=%d inspection_quality=%s sensor_quality=%s combined_quality=%s\n",
		chain.ProductID,
		chain.ChainID,
		firstNonEmpty(chain.Producer.Name, "-"),
		chain.IsComplete,
		chain.IsVerified,
		chainconsole.FormatMetric(chain.TotalDistanceKM, 1),
		chainconsole.FormatMetric(chain.TotalTimeHours, 1),
		chain.TemperatureViolations,
		metric(chain.InspectionQualityScore),
		sensorQuality,
		metric(chain.CombinedQualityScore()),
	)
	return err
}

func metric(value float64) string {
	return chainconsole.FormatMetric(value, 2)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func addJSONFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("json", false, "Print JSON instead of text")
}
