package traceability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"foodtrace/internal/domain/trace"
	"foodtrace/internal/errs"
)

type HarvestInput struct {
	ProductID      uint64
	ProducerID     uint64
	Location       *trace.Location
	QuantityKG     float64
	Notes          string
	Timestamp      time.Time
	IdempotencyKey string
}

type TransportStage string

const (
	TransportStart      TransportStage = "start"
	TransportCheckpoint TransportStage = "checkpoint"
	TransportEnd        TransportStage = "end"
)

type TransportInput struct {
	ProductID            uint64
	TransporterID        uint64
	Stage                TransportStage
	Start                trace.Location
	End                  trace.Location
	PlannedDistanceKM    *float64
	ActualDistanceKM     *float64
	PlannedDurationHours *float64
	ActualDurationHours  *float64
	TemperatureMin       *float64
	TemperatureMax       *float64
	HumidityMin          *float64
	HumidityMax          *float64
	Vehicle              string
	Timestamp            time.Time
	IdempotencyKey       string
}

type InspectionInput struct {
	ProductID      uint64
	InspectorID    uint64
	Passed         bool
	Score          float64
	Findings       map[string]any
	Location       *trace.Location
	Timestamp      time.Time
	IdempotencyKey string
}

type SaleStage string

const (
	SaleProducerToRetailer SaleStage = "producer_retailer"
	SaleRetailerToConsumer SaleStage = "retailer_consumer"
)

type SaleInput struct {
	ProductID      uint64
	Stage          SaleStage
	SellerID       uint64
	BuyerID        uint64
	Quantity       float64
	Price          decimal.Decimal
	Currency       string
	Location       *trace.Location
	Timestamp      time.Time
	IdempotencyKey string
}

func (s *Service) RecordHarvest(ctx context.Context, input HarvestInput) (AppendEventResult, error) {
	if input.QuantityKG < 0 {
		return AppendEventResult{}, fmt.Errorf("%w: harvest quantity must not be negative", trace.ErrValidation)
	}

	payload := map[string]any{"quantity_kg": input.QuantityKG}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		payload["notes"] = notes
	}

	return s.AppendEvent(ctx, AppendEventInput{
		ProductID:      input.ProductID,
		Type:           trace.EventHarvest,
		Actor:          &trace.Actor{ID: input.ProducerID, Role: trace.RoleProducer},
		Location:       input.Location,
		Payload:        payload,
		Timestamp:      input.Timestamp,
		IdempotencyKey: input.IdempotencyKey,
	})
}

// RecordTransport appends a transport event and its segment in one
// transaction, so the recompute already sees the segment distance.
func (s *Service) RecordTransport(ctx context.Context, input TransportInput) (AppendEventResult, error) {
	eventType, location, err := transportEvent(input)
	if err != nil {
		return AppendEventResult{}, err
	}
	if err := input.Start.Validate(); err != nil {
		return AppendEventResult{}, errs.Wrap(err, "transport start")
	}
	if err := input.End.Validate(); err != nil {
		return AppendEventResult{}, errs.Wrap(err, "transport end")
	}
	for _, value := range []*float64{input.PlannedDistanceKM, input.ActualDistanceKM, input.PlannedDurationHours, input.ActualDurationHours} {
		if value != nil && *value < 0 {
			return AppendEventResult{}, fmt.Errorf("%w: transport distance and duration must not be negative", trace.ErrValidation)
		}
	}

	payload := map[string]any{
		"stage": string(input.Stage),
		"from":  input.Start,
		"to":    input.End,
	}
	if vehicle := strings.TrimSpace(input.Vehicle); vehicle != "" {
		payload["vehicle"] = vehicle
	}
	putOptional(payload, "planned_distance_km", input.PlannedDistanceKM)
	putOptional(payload, "actual_distance_km", input.ActualDistanceKM)
	putOptional(payload, "planned_duration_hours", input.PlannedDurationHours)
	putOptional(payload, "actual_duration_hours", input.ActualDurationHours)

	return s.appendEvent(ctx, AppendEventInput{
		ProductID:      input.ProductID,
		Type:           eventType,
		Actor:          &trace.Actor{ID: input.TransporterID, Role: trace.RoleTransporter},
		Location:       location,
		Payload:        payload,
		Timestamp:      input.Timestamp,
		IdempotencyKey: input.IdempotencyKey,
	}, func(txCtx context.Context, event trace.Event) error {
		_, insertErr := s.repo.InsertSegment(txCtx, trace.TransportSegment{
			EventID:              event.EventID,
			ProductID:            input.ProductID,
			Start:                input.Start,
			End:                  input.End,
			PlannedDistanceKM:    input.PlannedDistanceKM,
			ActualDistanceKM:     input.ActualDistanceKM,
			PlannedDurationHours: input.PlannedDurationHours,
			ActualDurationHours:  input.ActualDurationHours,
			TemperatureMin:       input.TemperatureMin,
			TemperatureMax:       input.TemperatureMax,
			HumidityMin:          input.HumidityMin,
			HumidityMax:          input.HumidityMax,
		})
		return insertErr
	})
}

// RecordInspection appends a quality_check event and the inspection it
// documents in one transaction.
func (s *Service) RecordInspection(ctx context.Context, input InspectionInput) (AppendEventResult, error) {
	if err := trace.ValidateInspectionScore(input.Score); err != nil {
		return AppendEventResult{}, err
	}

	payload := map[string]any{
		"passed": input.Passed,
		"score":  input.Score,
	}
	if len(input.Findings) > 0 {
		payload["findings"] = input.Findings
	}

	return s.appendEvent(ctx, AppendEventInput{
		ProductID:      input.ProductID,
		Type:           trace.EventQualityCheck,
		Actor:          &trace.Actor{ID: input.InspectorID, Role: trace.RoleInspector},
		Location:       input.Location,
		Payload:        payload,
		Timestamp:      input.Timestamp,
		IdempotencyKey: input.IdempotencyKey,
	}, func(txCtx context.Context, event trace.Event) error {
		_, insertErr := s.repo.InsertInspection(txCtx, trace.Inspection{
			EventID:     event.EventID,
			ProductID:   input.ProductID,
			InspectorID: input.InspectorID,
			Passed:      input.Passed,
			Score:       input.Score,
			Findings:    input.Findings,
			InspectedAt: event.Timestamp,
		})
		return insertErr
	})
}

func (s *Service) RecordSale(ctx context.Context, input SaleInput) (AppendEventResult, error) {
	var (
		eventType  trace.EventType
		sellerRole trace.ActorRole
	)
	switch input.Stage {
	case SaleProducerToRetailer:
		eventType, sellerRole = trace.EventSaleProducerRetailer, trace.RoleProducer
	case SaleRetailerToConsumer:
		eventType, sellerRole = trace.EventSaleRetailerConsumer, trace.RoleRetailer
	default:
		return AppendEventResult{}, fmt.Errorf("%w: unknown sale stage %q", trace.ErrValidation, input.Stage)
	}
	if input.Price.IsNegative() {
		return AppendEventResult{}, fmt.Errorf("%w: sale price must not be negative", trace.ErrValidation)
	}
	if input.Quantity < 0 {
		return AppendEventResult{}, fmt.Errorf("%w: sale quantity must not be negative", trace.ErrValidation)
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "EUR"
	}
	// Money stays a decimal string so the hash never sees float rounding.
	payload := map[string]any{
		"buyer_id": input.BuyerID,
		"quantity": input.Quantity,
		"price":    input.Price.StringFixed(2),
		"currency": currency,
	}

	return s.AppendEvent(ctx, AppendEventInput{
		ProductID:      input.ProductID,
		Type:           eventType,
		Actor:          &trace.Actor{ID: input.SellerID, Role: sellerRole},
		Location:       input.Location,
		Payload:        payload,
		Timestamp:      input.Timestamp,
		IdempotencyKey: input.IdempotencyKey,
	})
}

func transportEvent(input TransportInput) (trace.EventType, *trace.Location, error) {
	switch input.Stage {
	case TransportStart:
		start := input.Start
		return trace.EventTransportStart, &start, nil
	case TransportCheckpoint:
		end := input.End
		return trace.EventTransportCheckpoint, &end, nil
	case TransportEnd:
		end := input.End
		return trace.EventTransportEnd, &end, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown transport stage %q", trace.ErrValidation, input.Stage)
	}
}

func putOptional(payload map[string]any, key string, value *float64) {
	if value != nil {
		payload[key] = *value
	}
}
