// Package phases implements the standard tick phase set: characters decide,
// the world resolves, locations are narrated, outcomes are applied, and
// characters reflect. Each phase tolerates individual request failures by
// substituting a neutral fallback; a phase fails only when it cannot run at
// all or every one of its requests failed.
package phases

// Action names the things a character can attempt in one tick.
const (
	ActionMove     = "move"
	ActionSpeak    = "speak"
	ActionInteract = "interact"
	ActionWait     = "wait"
)

// Intention is one character's declared action for the tick.
type Intention struct {
	Character string `json:"character"`
	Action    string `json:"action"`
	Target    string `json:"target,omitempty"`
	Dialogue  string `json:"dialogue,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Resolution is the adjudicated outcome of one intention.
type Resolution struct {
	Character string    `json:"character"`
	Intention Intention `json:"intention"`
	Allowed   bool      `json:"allowed"`
	Note      string    `json:"note,omitempty"`
}

// Narration is the scene text generated for one location.
type Narration struct {
	Location string `json:"location"`
	Scene    string `json:"scene"`
}

// Outcome carries the tick's accumulated results between phases and into the
// final report Data.
type Outcome struct {
	Intentions  []Intention  `json:"intentions"`
	Resolutions []Resolution `json:"resolutions"`
	Narrations  []Narration  `json:"narrations"`
}
