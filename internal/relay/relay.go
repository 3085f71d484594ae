// Package relay is the only surface application code calls for generation.
// It orchestrates single and batched provider requests: chain lookup and
// update, usage accounting, and schema validation, delegating transport to
// the provider client. Construct one relay per phase, scoped to that phase's
// entity subset.
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"fabula/internal/chain"
	"fabula/internal/config"
	"fabula/internal/logging"
	"fabula/internal/provider"
	"fabula/internal/schema"
	"fabula/internal/world"
)

// Request is one generation request. An empty EntityKey makes the request
// fully independent: no chain threading and no persistent usage accounting.
type Request struct {
	Instructions  string
	Payload       string
	Schema        *schema.Descriptor
	EntityKey     string // "{chain-type}:{entity-id}", or ""
	DepthOverride *int   // Overrides the configured depth for this request
}

// Result is one slot of a batch: either a parsed payload or a typed error.
type Result struct {
	Payload    json.RawMessage
	Err        error
	ResponseID string
	Usage      provider.Usage
}

// Relay coordinates requests for one entity subset.
//
// Caller contract: a given entity key appears at most once per batch. Two
// requests sharing a key in one batch race on that entity's chain and the
// result order of chain updates is undefined.
type Relay struct {
	client provider.Client
	chains *chain.Manager
	byID   map[string]*world.Entity
	depths config.ChainsConfig

	mu   sync.Mutex
	last BatchStats
}

// New builds a relay scoped to the given entities.
func New(client provider.Client, entities []*world.Entity, depths config.ChainsConfig) *Relay {
	byID := make(map[string]*world.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}
	return &Relay{
		client: client,
		chains: chain.NewManager(entities),
		byID:   byID,
		depths: depths,
	}
}

// CreateResponse executes a single request and returns the parsed payload.
// Errors propagate to the caller unchanged.
func (r *Relay) CreateResponse(ctx context.Context, req Request) (json.RawMessage, error) {
	r.resetStats(1)
	res := r.execute(ctx, req)
	r.record(req, res)
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Payload, nil
}

// CreateBatch fires one goroutine per request, waits for every one to finish
// regardless of individual outcomes, and returns results in input order. One
// request's failure never blocks or cancels its siblings.
func (r *Relay) CreateBatch(ctx context.Context, reqs []Request) []Result {
	r.resetStats(len(reqs))

	results := make([]Result, len(reqs))
	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.execute(ctx, reqs[i])
		}(i)
	}
	wg.Wait()

	for i := range reqs {
		r.record(reqs[i], results[i])
	}
	return results
}

// execute runs one request end to end: chain head lookup, provider call,
// schema validation, chain confirm, eviction cleanup, usage accounting.
func (r *Relay) execute(ctx context.Context, req Request) Result {
	depth := r.depthFor(req)

	previous := ""
	if depth > 0 {
		previous, _ = r.chains.Previous(req.EntityKey)
	}

	resp, err := r.client.Execute(ctx, provider.Call{
		Instructions: req.Instructions,
		Input:        req.Payload,
		Schema:       req.Schema,
		PreviousID:   previous,
	})
	if err != nil {
		return Result{Err: err}
	}

	if req.Schema != nil {
		if err := req.Schema.Validate(resp.Payload); err != nil {
			return Result{Err: err}
		}
	}

	if depth > 0 {
		if evicted := r.chains.Confirm(req.EntityKey, resp.ID, depth); evicted != "" {
			r.deleteEvicted(ctx, evicted)
		}
	}
	r.accountUsage(req.EntityKey, resp.Usage)

	return Result{Payload: resp.Payload, ResponseID: resp.ID, Usage: resp.Usage}
}

// depthFor resolves the effective chain depth for a request.
func (r *Relay) depthFor(req Request) int {
	if req.EntityKey == "" {
		return 0
	}
	if req.DepthOverride != nil {
		return *req.DepthOverride
	}
	chainType, _, ok := chain.ParseKey(req.EntityKey)
	if !ok {
		return 0
	}
	return r.depths.DepthFor(chainType)
}

// deleteEvicted performs best-effort remote cleanup of an evicted response
// id. Failures are logged and never surfaced.
func (r *Relay) deleteEvicted(ctx context.Context, id string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.client.DeleteResponse(dctx, id); err != nil {
		logging.Get(logging.CategoryProvider).Warnf("failed to delete evicted response %s: %v", id, err)
	}
}

// accountUsage increments persistent usage counters on the keyed entity.
// Requests without an entity key are only visible in the batch stats.
func (r *Relay) accountUsage(entityKey string, u provider.Usage) {
	if entityKey == "" {
		return
	}
	_, entityID, ok := chain.ParseKey(entityKey)
	if !ok {
		return
	}
	e, ok := r.byID[entityID]
	if !ok {
		return
	}
	ext := e.EnsureExt()
	addInt(ext, "total_tokens", u.TotalTokens)
	addInt(ext, "reasoning_tokens", u.ReasoningTokens)
	addInt(ext, "cached_tokens", u.CachedTokens)
	addInt(ext, "total_requests", 1)
	logging.Usage("entity %s: +%d tokens (%d requests total)", entityID, u.TotalTokens, intAt(ext, "total_requests"))
}

// addInt increments a numeric extension value, tolerating the float64 shape
// a JSON snapshot round trip produces.
func addInt(ext map[string]any, key string, delta int) {
	ext[key] = intAt(ext, key) + delta
}

func intAt(ext map[string]any, key string) int {
	switch v := ext[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
