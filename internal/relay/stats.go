package relay

import "fabula/internal/provider"

// Outcome summarizes one slot of the most recent call.
type Outcome struct {
	EntityKey  string
	ResponseID string
	Tokens     int
	Err        error
}

// BatchStats aggregates the most recently completed single or batch call.
// Purely observational; reset at the start of every call and never persisted.
type BatchStats struct {
	Requests  int
	Successes int
	Errors    int
	Usage     provider.Usage
	Outcomes  []Outcome
}

// Merge folds another stats block into this one. Used by the tick
// orchestrator to build per-tick totals.
func (s *BatchStats) Merge(other BatchStats) {
	s.Requests += other.Requests
	s.Successes += other.Successes
	s.Errors += other.Errors
	s.Usage.Add(other.Usage)
	s.Outcomes = append(s.Outcomes, other.Outcomes...)
}

// LastBatchStats returns the aggregate counters for the most recent single
// or batch call.
func (r *Relay) LastBatchStats() BatchStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.last
	cp.Outcomes = append([]Outcome(nil), r.last.Outcomes...)
	return cp
}

func (r *Relay) resetStats(requests int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = BatchStats{Requests: requests, Outcomes: make([]Outcome, 0, requests)}
}

func (r *Relay) record(req Request, res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.Err != nil {
		r.last.Errors++
	} else {
		r.last.Successes++
		r.last.Usage.Add(res.Usage)
	}
	r.last.Outcomes = append(r.last.Outcomes, Outcome{
		EntityKey:  req.EntityKey,
		ResponseID: res.ResponseID,
		Tokens:     res.Usage.TotalTokens,
		Err:        res.Err,
	})
}
