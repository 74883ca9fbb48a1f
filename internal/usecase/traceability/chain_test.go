package traceability

import (
	"context"
	"errors"
	"sync"
	"testing"

	"foodtrace/internal/domain/trace"
	"foodtrace/internal/ports"
)

func TestCreateChainStartsIncomplete(t *testing.T) {
	env := setupService(t)

	result := createChain(t, env, 10, 7)
	if result.Chain.IsComplete {
		t.Fatalf("IsComplete = true, want false right after creation")
	}
	if result.Chain.InspectionQualityScore != 1.0 {
		t.Fatalf("InspectionQualityScore = %v, want 1.0", result.Chain.InspectionQualityScore)
	}
	if result.Chain.CombinedQualityScore() != 1.0 {
		t.Fatalf("CombinedQualityScore = %v, want 1.0", result.Chain.CombinedQualityScore())
	}
	if len(result.CreatedHash) != 64 {
		t.Fatalf("CreatedHash = %q, want 64 hex chars", result.CreatedHash)
	}
	if result.Chain.Producer.Name != "Green Acres" || result.Chain.Producer.Location == nil {
		t.Fatalf("Producer = %+v, want snapshot from directory", result.Chain.Producer)
	}

	summary, err := env.svc.GetSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if len(summary.Events) != 1 || summary.Events[0].Type != trace.EventCreated {
		t.Fatalf("events = %+v, want single created event", summary.Events)
	}
	if summary.Events[0].Actor == nil || summary.Events[0].Actor.Role != trace.RoleProducer {
		t.Fatalf("created actor = %+v, want producer", summary.Events[0].Actor)
	}
	if len(summary.MissingEventTypes) != 3 {
		t.Fatalf("MissingEventTypes = %v, want 3 entries", summary.MissingEventTypes)
	}
}

func TestCreateChainErrors(t *testing.T) {
	env := setupService(t)
	createChain(t, env, 10, 7)

	testCases := []struct {
		name  string
		input CreateChainInput
		kind  error
		want  error
	}{
		{name: "duplicate chain", input: CreateChainInput{ProductID: 10, ProducerID: 7}, kind: trace.ErrAlreadyExists, want: trace.ErrChainExists},
		{name: "unknown product", input: CreateChainInput{ProductID: 404, ProducerID: 7}, kind: trace.ErrNotFound, want: trace.ErrProductNotFound},
		{name: "unknown producer", input: CreateChainInput{ProductID: 12}, kind: trace.ErrNotFound, want: trace.ErrProducerNotFound},
		{name: "producer does not own product", input: CreateChainInput{ProductID: 11, ProducerID: 7}, kind: trace.ErrValidation, want: trace.ErrNotProductOwner},
		{name: "missing product id", input: CreateChainInput{ProducerID: 7}, kind: trace.ErrValidation, want: trace.ErrProductRequired},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := env.svc.CreateChain(context.Background(), testCase.input)
			if !errors.Is(err, testCase.kind) || !errors.Is(err, testCase.want) {
				t.Fatalf("CreateChain() error = %v, want %v", err, testCase.want)
			}
		})
	}

	summary, err := env.svc.GetSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if len(summary.Events) != 1 {
		t.Fatalf("events after failed duplicate = %d, want 1", len(summary.Events))
	}
}

func TestAppendEventErrors(t *testing.T) {
	env := setupService(t)
	createChain(t, env, 10, 7)

	testCases := []struct {
		name  string
		input AppendEventInput
		kind  error
	}{
		{name: "unknown chain", input: AppendEventInput{ProductID: 11, Type: trace.EventHarvest}, kind: trace.ErrNotFound},
		{name: "unknown type", input: AppendEventInput{ProductID: 10, Type: "teleport"}, kind: trace.ErrValidation},
		{name: "bad location", input: AppendEventInput{ProductID: 10, Type: trace.EventStorage, Location: &trace.Location{Lat: 120}}, kind: trace.ErrValidation},
		{name: "bad role", input: AppendEventInput{ProductID: 10, Type: trace.EventStorage, Actor: &trace.Actor{ID: 1, Role: "admin"}}, kind: trace.ErrValidation},
		{name: "unserializable payload", input: AppendEventInput{ProductID: 10, Type: trace.EventStorage, Payload: map[string]any{"ch": make(chan int)}}, kind: trace.ErrValidation},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := env.svc.AppendEvent(context.Background(), testCase.input)
			if !errors.Is(err, testCase.kind) {
				t.Fatalf("AppendEvent() error = %v, want %v", err, testCase.kind)
			}
		})
	}

	if _, err := env.svc.AppendEvent(context.Background(), AppendEventInput{ProductID: 11, Type: trace.EventHarvest}); !errors.Is(err, trace.ErrChainNotFound) {
		t.Fatalf("AppendEvent(unknown chain) error = %v, want ErrChainNotFound", err)
	}
}

func TestCompletenessIndependentOfOrder(t *testing.T) {
	orders := [][]trace.EventType{
		{trace.EventHarvest, trace.EventSaleProducerRetailer, trace.EventSaleRetailerConsumer},
		{trace.EventSaleRetailerConsumer, trace.EventHarvest, trace.EventSaleProducerRetailer},
		{trace.EventSaleProducerRetailer, trace.EventSaleRetailerConsumer, trace.EventHarvest},
	}

	for _, order := range orders {
		env := setupService(t)
		createChain(t, env, 10, 7)

		var last AppendEventResult
		for i, eventType := range order {
			last = appendEvent(t, env, 10, eventType)
			if i < len(order)-1 && last.Chain.IsComplete {
				t.Fatalf("order %v: complete after %d events", order, i+2)
			}
		}
		if !last.Chain.IsComplete || last.Chain.CompletedAt == nil {
			t.Fatalf("order %v: chain not complete after all required events: %+v", order, last.Chain)
		}
		completedAt := *last.Chain.CompletedAt

		more := appendEvent(t, env, 10, trace.EventStorage)
		if !more.Chain.IsComplete {
			t.Fatalf("order %v: completeness reverted after extra event", order)
		}
		if more.Chain.CompletedAt == nil || !more.Chain.CompletedAt.Equal(completedAt) {
			t.Fatalf("order %v: CompletedAt changed %v -> %v", order, completedAt, more.Chain.CompletedAt)
		}

		recomputed, err := env.svc.RecomputeChain(context.Background(), 10)
		if err != nil {
			t.Fatalf("RecomputeChain() error = %v", err)
		}
		if !recomputed.IsComplete || !recomputed.CompletedAt.Equal(completedAt) {
			t.Fatalf("RecomputeChain changed completion: %+v", recomputed)
		}
	}
}

func TestAppendEventIdempotencyKey(t *testing.T) {
	env := setupService(t)
	createChain(t, env, 10, 7)

	input := AppendEventInput{
		ProductID:      10,
		Type:           trace.EventStorage,
		Payload:        map[string]any{"warehouse": "north"},
		IdempotencyKey: "storage-1",
	}
	first, err := env.svc.AppendEvent(context.Background(), input)
	if err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}
	second, err := env.svc.AppendEvent(context.Background(), input)
	if err != nil {
		t.Fatalf("AppendEvent(retry) error = %v", err)
	}
	if !second.Duplicate || second.EventID != first.EventID || second.Hash != first.Hash {
		t.Fatalf("retry = %+v, want duplicate of %+v", second, first)
	}

	summary, err := env.svc.GetSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if len(summary.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(summary.Events))
	}

	createChain(t, env, 13, 7)
	input.ProductID = 13
	other, err := env.svc.AppendEvent(context.Background(), input)
	if err != nil {
		t.Fatalf("AppendEvent(product 13) error = %v", err)
	}
	if other.Duplicate || other.EventID == first.EventID {
		t.Fatalf("same key on product 13 = %+v, want a new event", other)
	}
}

func TestConcurrentAppendsKeepChainConsistent(t *testing.T) {
	env := setupService(t)
	createChain(t, env, 10, 7)

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.AppendEvent(context.Background(), AppendEventInput{
				ProductID: 10,
				Type:      trace.EventStorage,
				Payload:   map[string]any{"slot": i},
			})
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent AppendEvent() error = %v", err)
		}
	}

	summary, err := env.svc.GetSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if len(summary.Events) != writers+1 {
		t.Fatalf("events = %d, want %d", len(summary.Events), writers+1)
	}
	for _, event := range summary.Events {
		if !trace.HashMatches(event) {
			t.Fatalf("event %d hash mismatch after concurrent appends", event.EventID)
		}
	}
}

func TestChainStatusCacheInvalidatedOnAppend(t *testing.T) {
	env := setupService(t)
	createChain(t, env, 10, 7)

	status, err := env.svc.GetChainStatus(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetChainStatus() error = %v", err)
	}
	if status.Events != 1 {
		t.Fatalf("status.Events = %d, want 1", status.Events)
	}
	if _, ok, _ := env.cache.Get(context.Background(), chainStatusCacheKey(10)); !ok {
		t.Fatalf("chain status not cached")
	}

	appendEvent(t, env, 10, trace.EventHarvest)
	if _, ok, _ := env.cache.Get(context.Background(), chainStatusCacheKey(10)); ok {
		t.Fatalf("chain status still cached after append")
	}

	status, err = env.svc.GetChainStatus(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetChainStatus() error = %v", err)
	}
	if status.Events != 2 {
		t.Fatalf("status.Events = %d, want 2", status.Events)
	}
}

func TestListChainsFilters(t *testing.T) {
	env := setupService(t)
	createChain(t, env, 10, 7)
	createChain(t, env, 11, 8)
	for _, eventType := range []trace.EventType{trace.EventHarvest, trace.EventSaleProducerRetailer, trace.EventSaleRetailerConsumer} {
		appendEvent(t, env, 11, eventType)
	}

	all, err := env.svc.ListChains(context.Background(), ports.ChainFilter{})
	if err != nil {
		t.Fatalf("ListChains() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListChains() = %d chains, want 2", len(all))
	}

	complete, err := env.svc.ListChains(context.Background(), ports.ChainFilter{OnlyComplete: true})
	if err != nil {
		t.Fatalf("ListChains(complete) error = %v", err)
	}
	if len(complete) != 1 || complete[0].ProductID != 11 {
		t.Fatalf("ListChains(complete) = %+v, want product 11", complete)
	}
}
