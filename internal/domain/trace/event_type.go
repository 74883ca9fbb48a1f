package trace

import (
	"fmt"
	"strings"
)

type EventType string

const (
	EventCreated              EventType = "created"
	EventSensorReading        EventType = "sensor_reading"
	EventHarvest              EventType = "harvest"
	EventPackaging            EventType = "packaging"
	EventTransportStart       EventType = "transport_start"
	EventTransportCheckpoint  EventType = "transport_checkpoint"
	EventTransportEnd         EventType = "transport_end"
	EventStorage              EventType = "storage"
	EventSaleProducerRetailer EventType = "sale_producer_retailer"
	EventSaleRetailerConsumer EventType = "sale_retailer_consumer"
	EventDelivery             EventType = "delivery"
	EventQualityCheck         EventType = "quality_check"
	EventCertification        EventType = "certification"
)

var allEventTypes = []EventType{
	EventCreated,
	EventSensorReading,
	EventHarvest,
	EventPackaging,
	EventTransportStart,
	EventTransportCheckpoint,
	EventTransportEnd,
	EventStorage,
	EventSaleProducerRetailer,
	EventSaleRetailerConsumer,
	EventDelivery,
	EventQualityCheck,
	EventCertification,
}

// RequiredEventTypes must all be present before a chain counts as complete.
var RequiredEventTypes = []EventType{
	EventCreated,
	EventHarvest,
	EventSaleProducerRetailer,
	EventSaleRetailerConsumer,
}

func AllEventTypes() []EventType {
	out := make([]EventType, len(allEventTypes))
	copy(out, allEventTypes)
	return out
}

func ParseEventType(value string) (EventType, error) {
	normalized := EventType(strings.ToLower(strings.TrimSpace(value)))
	if !normalized.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEventType, value)
	}
	return normalized, nil
}

func (t EventType) Valid() bool {
	switch t {
	case EventCreated,
		EventSensorReading,
		EventHarvest,
		EventPackaging,
		EventTransportStart,
		EventTransportCheckpoint,
		EventTransportEnd,
		EventStorage,
		EventSaleProducerRetailer,
		EventSaleRetailerConsumer,
		EventDelivery,
		EventQualityCheck,
		EventCertification:
		return true
	default:
		return false
	}
}

func (t EventType) IsTransport() bool {
	switch t {
	case EventTransportStart, EventTransportCheckpoint, EventTransportEnd:
		return true
	default:
		return false
	}
}

func (t EventType) String() string { return string(t) }

type ActorRole string

const (
	RoleSystem      ActorRole = "system"
	RoleProducer    ActorRole = "producer"
	RoleTransporter ActorRole = "transporter"
	RoleRetailer    ActorRole = "retailer"
	RoleConsumer    ActorRole = "consumer"
	RoleInspector   ActorRole = "inspector"
)

func ParseActorRole(value string) (ActorRole, error) {
	normalized := ActorRole(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case RoleSystem, RoleProducer, RoleTransporter, RoleRetailer, RoleConsumer, RoleInspector:
		return normalized, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidActorRole, value)
	}
}
