package trace

import (
	"errors"
	"fmt"
)

// Error kinds. Callers branch on these with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
	ErrPersistence   = errors.New("persistence failure")
)

var (
	ErrChainNotFound    = fmt.Errorf("traceability chain %w", ErrNotFound)
	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrProducerNotFound = fmt.Errorf("producer %w", ErrNotFound)
	ErrEventNotFound    = fmt.Errorf("traceability event %w", ErrNotFound)

	ErrChainExists = fmt.Errorf("traceability chain %w", ErrAlreadyExists)

	ErrInvalidEventType  = fmt.Errorf("%w: invalid event type", ErrValidation)
	ErrInvalidActorRole  = fmt.Errorf("%w: invalid actor role", ErrValidation)
	ErrInvalidPayload    = fmt.Errorf("%w: payload is not serializable", ErrValidation)
	ErrInvalidLocation   = fmt.Errorf("%w: invalid location", ErrValidation)
	ErrInvalidThresholds = fmt.Errorf("%w: min temperature must not exceed max temperature", ErrValidation)
	ErrInvalidScore      = fmt.Errorf("%w: inspection score must be within [0,100]", ErrValidation)
	ErrProductRequired   = fmt.Errorf("%w: product id is required", ErrValidation)
	ErrNotProductOwner   = fmt.Errorf("%w: producer does not own product", ErrValidation)
)
