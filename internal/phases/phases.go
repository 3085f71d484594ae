package phases

import (
	"context"
	"encoding/json"
	"fmt"

	"fabula/internal/config"
	"fabula/internal/logging"
	"fabula/internal/relay"
	"fabula/internal/tick"
	"fabula/internal/world"
)

// maxMemories bounds the per-character memory list carried across ticks.
const maxMemories = 10

// Standard returns the default tick phase list in execution order.
func Standard() []tick.Phase {
	return []tick.Phase{Decide(), Resolve(), Narrate(), Apply(), Reflect()}
}

// Decide asks every character for an intention, one chained request each. A
// character whose request fails falls back to waiting; the phase fails only
// when no character could decide.
func Decide() tick.Phase {
	return tick.Phase{
		Name:     "decide",
		Entities: func(w *world.World) []*world.Entity { return w.Entities },
		Run: func(ctx context.Context, w *world.World, cfg *config.Config, rel *relay.Relay, input any) tick.PhaseResult {
			chars := w.Characters()
			out := &Outcome{}
			if len(chars) == 0 {
				return tick.PhaseResult{Success: true, Data: out}
			}

			reqs := make([]relay.Request, len(chars))
			for i, c := range chars {
				reqs[i] = relay.Request{
					Instructions: decideInstructions(w),
					Payload:      decidePrompt(w, c),
					Schema:       intentionSchema,
					EntityKey:    "intention:" + c.ID,
				}
			}
			results := rel.CreateBatch(ctx, reqs)

			failed := 0
			for i, res := range results {
				in := Intention{Character: chars[i].ID, Action: ActionWait}
				if res.Err != nil {
					failed++
					logging.Phase("decide: %s falls back to wait: %v", chars[i].ID, res.Err)
				} else if err := json.Unmarshal(res.Payload, &in); err != nil {
					failed++
					logging.Phase("decide: %s returned undecodable intention: %v", chars[i].ID, err)
					in = Intention{Character: chars[i].ID, Action: ActionWait}
				} else {
					in.Character = chars[i].ID
				}
				out.Intentions = append(out.Intentions, in)
			}

			if failed == len(chars) {
				return tick.PhaseResult{
					Error: fmt.Sprintf("all %d intention requests failed", len(chars)),
					Stats: statsOf(rel),
				}
			}
			return tick.PhaseResult{Success: true, Data: out, Stats: statsOf(rel)}
		},
	}
}

// Resolve adjudicates all intentions in one unchained request. If the
// adjudicator is unavailable every intention is allowed, which keeps the
// world moving at the cost of plausibility.
func Resolve() tick.Phase {
	return tick.Phase{
		Name: "resolve",
		Run: func(ctx context.Context, w *world.World, cfg *config.Config, rel *relay.Relay, input any) tick.PhaseResult {
			out, ok := input.(*Outcome)
			if !ok {
				return tick.PhaseResult{Error: "resolve requires decide output"}
			}
			if len(out.Intentions) == 0 {
				return tick.PhaseResult{Success: true, Data: out}
			}

			byCharacter := make(map[string]Intention, len(out.Intentions))
			for _, in := range out.Intentions {
				byCharacter[in.Character] = in
			}

			payload, err := rel.CreateResponse(ctx, relay.Request{
				Instructions: resolveInstructions(w),
				Payload:      resolvePrompt(out.Intentions),
				Schema:       resolutionSchema,
			})
			if err != nil {
				logging.Phase("resolve: adjudicator unavailable, allowing all intentions: %v", err)
				for _, in := range out.Intentions {
					out.Resolutions = append(out.Resolutions, Resolution{
						Character: in.Character,
						Intention: in,
						Allowed:   true,
						Note:      "unadjudicated",
					})
				}
				return tick.PhaseResult{Success: true, Data: out, Stats: statsOf(rel)}
			}

			var parsed struct {
				Outcomes []struct {
					Character string `json:"character"`
					Allowed   bool   `json:"allowed"`
					Note      string `json:"note"`
				} `json:"outcomes"`
			}
			if err := json.Unmarshal(payload, &parsed); err != nil {
				return tick.PhaseResult{Error: fmt.Sprintf("undecodable resolution: %v", err), Stats: statsOf(rel)}
			}

			seen := make(map[string]bool, len(parsed.Outcomes))
			for _, o := range parsed.Outcomes {
				in, known := byCharacter[o.Character]
				if !known {
					continue
				}
				seen[o.Character] = true
				out.Resolutions = append(out.Resolutions, Resolution{
					Character: o.Character,
					Intention: in,
					Allowed:   o.Allowed,
					Note:      o.Note,
				})
			}
			// Intentions the adjudicator skipped pass through allowed.
			for _, in := range out.Intentions {
				if !seen[in.Character] {
					out.Resolutions = append(out.Resolutions, Resolution{
						Character: in.Character,
						Intention: in,
						Allowed:   true,
						Note:      "unadjudicated",
					})
				}
			}
			return tick.PhaseResult{Success: true, Data: out, Stats: statsOf(rel)}
		},
	}
}

// Narrate generates a scene for every location with events, one chained
// request per location. Locations whose request fails simply go unnarrated.
func Narrate() tick.Phase {
	return tick.Phase{
		Name:     "narrate",
		Entities: func(w *world.World) []*world.Entity { return w.Entities },
		Run: func(ctx context.Context, w *world.World, cfg *config.Config, rel *relay.Relay, input any) tick.PhaseResult {
			out, ok := input.(*Outcome)
			if !ok {
				return tick.PhaseResult{Error: "narrate requires resolve output"}
			}
			locs := w.Locations()
			if len(locs) == 0 {
				return tick.PhaseResult{Success: true, Data: out}
			}

			reqs := make([]relay.Request, len(locs))
			for i, loc := range locs {
				reqs[i] = relay.Request{
					Instructions: narrateInstructions(w),
					Payload:      narratePrompt(w, loc, out.Resolutions),
					Schema:       narrationSchema,
					EntityKey:    "narration:" + loc.ID,
				}
			}
			results := rel.CreateBatch(ctx, reqs)

			for i, res := range results {
				if res.Err != nil {
					logging.Phase("narrate: %s goes unnarrated: %v", locs[i].ID, res.Err)
					continue
				}
				var parsed struct {
					Scene string `json:"scene"`
				}
				if err := json.Unmarshal(res.Payload, &parsed); err != nil {
					logging.Phase("narrate: %s returned undecodable scene: %v", locs[i].ID, err)
					continue
				}
				out.Narrations = append(out.Narrations, Narration{Location: locs[i].ID, Scene: parsed.Scene})
			}
			return tick.PhaseResult{Success: true, Data: out, Stats: statsOf(rel)}
		},
	}
}

// Apply mutates the world from the allowed resolutions. No provider calls.
func Apply() tick.Phase {
	return tick.Phase{
		Name: "apply",
		Run: func(ctx context.Context, w *world.World, cfg *config.Config, rel *relay.Relay, input any) tick.PhaseResult {
			out, ok := input.(*Outcome)
			if !ok {
				return tick.PhaseResult{Error: "apply requires resolve output"}
			}
			for _, res := range out.Resolutions {
				if !res.Allowed {
					continue
				}
				c := w.Entity(res.Character)
				if c == nil {
					continue
				}
				if res.Intention.Action == ActionMove {
					if dest := w.Entity(res.Intention.Target); dest != nil && dest.Kind == world.KindLocation {
						logging.Phase("apply: %s moves %s -> %s", c.ID, c.Location, dest.ID)
						c.Location = dest.ID
					}
				}
			}
			return tick.PhaseResult{Success: true, Data: out}
		},
	}
}

// Reflect asks each character for a one-line memory of the turn. Memory
// requests default to unchained; failures leave the character's memories
// untouched and never fail the phase.
func Reflect() tick.Phase {
	return tick.Phase{
		Name:     "reflect",
		Entities: func(w *world.World) []*world.Entity { return w.Entities },
		Run: func(ctx context.Context, w *world.World, cfg *config.Config, rel *relay.Relay, input any) tick.PhaseResult {
			out, ok := input.(*Outcome)
			if !ok {
				return tick.PhaseResult{Error: "reflect requires apply output"}
			}
			chars := w.Characters()
			if len(chars) == 0 {
				return tick.PhaseResult{Success: true, Data: out}
			}

			reqs := make([]relay.Request, len(chars))
			for i, c := range chars {
				reqs[i] = relay.Request{
					Instructions: reflectInstructions(w),
					Payload:      reflectPrompt(w, c, out),
					Schema:       memorySchema,
					EntityKey:    "memory:" + c.ID,
				}
			}
			results := rel.CreateBatch(ctx, reqs)

			for i, res := range results {
				if res.Err != nil {
					logging.Phase("reflect: %s keeps no memory of this turn: %v", chars[i].ID, res.Err)
					continue
				}
				var parsed struct {
					Memory string `json:"memory"`
				}
				if err := json.Unmarshal(res.Payload, &parsed); err != nil || parsed.Memory == "" {
					continue
				}
				chars[i].Memories = append(chars[i].Memories, parsed.Memory)
				if len(chars[i].Memories) > maxMemories {
					chars[i].Memories = chars[i].Memories[len(chars[i].Memories)-maxMemories:]
				}
			}
			return tick.PhaseResult{Success: true, Data: out, Stats: statsOf(rel)}
		},
	}
}

func statsOf(rel *relay.Relay) *relay.BatchStats {
	s := rel.LastBatchStats()
	return &s
}
