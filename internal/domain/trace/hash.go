package trace

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

type canonicalLocation struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Description string  `json:"description"`
}

type canonicalActor struct {
	ID   uint64 `json:"id"`
	Role string `json:"role"`
}

// canonicalEvent fixes the field order of the hashed document. Storage ids,
// the verified flag and idempotency keys are deliberately absent.
type canonicalEvent struct {
	ProductID uint64             `json:"product_id"`
	EventType string             `json:"event_type"`
	Timestamp string             `json:"timestamp"`
	Location  *canonicalLocation `json:"location"`
	Actor     *canonicalActor    `json:"actor"`
	Payload   json.RawMessage    `json:"payload"`
}

// CanonicalTimestamp is the only timestamp representation that is hashed or stored.
func CanonicalTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// CanonicalPayload serializes a payload with lexicographically sorted keys at
// every nesting level. A nil payload is the empty object.
func CanonicalPayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	// Round-trip through a generic value so struct values collapse into
	// sorted-key objects and numbers keep their literal form.
	var generic any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return canonical, nil
}

// DecodePayload parses stored canonical payload bytes.
func DecodePayload(raw []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}

	payload := map[string]any{}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return payload, nil
}

func CanonicalBytes(event Event) ([]byte, error) {
	payload, err := CanonicalPayload(event.Payload)
	if err != nil {
		return nil, err
	}

	doc := canonicalEvent{
		ProductID: event.ProductID,
		EventType: string(event.Type),
		Timestamp: CanonicalTimestamp(event.Timestamp),
		Payload:   payload,
	}
	if event.Location != nil {
		doc.Location = &canonicalLocation{
			Lat:         event.Location.Lat,
			Lon:         event.Location.Lon,
			Description: event.Location.Description,
		}
	}
	if event.Actor != nil {
		doc.Actor = &canonicalActor{
			ID:   event.Actor.ID,
			Role: string(event.Actor.Role),
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return raw, nil
}

// ComputeHash returns the lowercase hex SHA-256 of the event's canonical bytes.
func ComputeHash(event Event) (string, error) {
	raw, err := CanonicalBytes(event)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// HashMatches reports whether the stored hash still equals a fresh computation.
func HashMatches(event Event) bool {
	if event.Hash == "" {
		return false
	}
	recomputed, err := ComputeHash(event)
	if err != nil {
		return false
	}
	return recomputed == event.Hash
}
