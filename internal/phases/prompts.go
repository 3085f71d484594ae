package phases

import (
	"fmt"
	"strings"

	"fabula/internal/world"
)

// worldBrief renders the shared context every request starts from.
func worldBrief(w *world.World) string {
	var b strings.Builder
	fmt.Fprintf(&b, "World: %s (tick %d)\n", w.Name, w.Tick+1)
	if w.Premise != "" {
		fmt.Fprintf(&b, "Premise: %s\n", w.Premise)
	}
	b.WriteString("Locations:\n")
	for _, loc := range w.Locations() {
		fmt.Fprintf(&b, "- %s: %s\n", loc.Name, loc.Description)
	}
	return b.String()
}

func characterBrief(w *world.World, c *world.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. %s\n", c.Name, c.Description)
	if len(c.Traits) > 0 {
		fmt.Fprintf(&b, "Traits: %s\n", strings.Join(c.Traits, ", "))
	}
	if loc := w.Entity(c.Location); loc != nil {
		fmt.Fprintf(&b, "You are at %s. %s\n", loc.Name, loc.Description)
		if others := charactersAt(w, c.Location, c.ID); len(others) > 0 {
			fmt.Fprintf(&b, "Also here: %s\n", strings.Join(others, ", "))
		}
	}
	if len(c.Memories) > 0 {
		b.WriteString("You remember:\n")
		for _, m := range c.Memories {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	return b.String()
}

func charactersAt(w *world.World, location, excludeID string) []string {
	var names []string
	for _, c := range w.Characters() {
		if c.Location == location && c.ID != excludeID {
			names = append(names, c.Name)
		}
	}
	return names
}

func decideInstructions(w *world.World) string {
	return worldBrief(w) +
		"Decide this character's next action. Respond with a single JSON object: " +
		"action is one of move, speak, interact, wait; for move, target is a location id; " +
		"for speak, dialogue is what is said; for interact, target is who or what."
}

func decidePrompt(w *world.World, c *world.Entity) string {
	return characterBrief(w, c) + "What do you do this turn?"
}

func resolveInstructions(w *world.World) string {
	return worldBrief(w) +
		"You adjudicate a turn of this world. For each declared intention decide whether it " +
		"succeeds, respecting physical plausibility and the world premise. Respond with a JSON " +
		"object listing one outcome per character."
}

func resolvePrompt(intentions []Intention) string {
	var b strings.Builder
	b.WriteString("Declared intentions this turn:\n")
	for _, in := range intentions {
		fmt.Fprintf(&b, "- %s: %s", in.Character, in.Action)
		if in.Target != "" {
			fmt.Fprintf(&b, " -> %s", in.Target)
		}
		if in.Dialogue != "" {
			fmt.Fprintf(&b, " (%q)", in.Dialogue)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func narrateInstructions(w *world.World) string {
	return worldBrief(w) +
		"Narrate what happened at one location this turn in two or three sentences of vivid " +
		"present-tense prose. Respond with a JSON object containing the scene text."
}

func narratePrompt(w *world.World, loc *world.Entity, resolutions []Resolution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Location: %s. %s\n", loc.Name, loc.Description)
	b.WriteString("Events here this turn:\n")
	events := 0
	for _, res := range resolutions {
		c := w.Entity(res.Character)
		if c == nil || c.Location != loc.ID {
			continue
		}
		events++
		verdict := "succeeds"
		if !res.Allowed {
			verdict = "fails"
		}
		fmt.Fprintf(&b, "- %s attempts to %s", c.Name, res.Intention.Action)
		if res.Intention.Target != "" {
			fmt.Fprintf(&b, " %s", res.Intention.Target)
		}
		if res.Intention.Dialogue != "" {
			fmt.Fprintf(&b, ", saying %q", res.Intention.Dialogue)
		}
		fmt.Fprintf(&b, " and %s", verdict)
		if res.Note != "" {
			fmt.Fprintf(&b, " (%s)", res.Note)
		}
		b.WriteString("\n")
	}
	if events == 0 {
		b.WriteString("- nothing of note\n")
	}
	return b.String()
}

func reflectInstructions(w *world.World) string {
	return worldBrief(w) +
		"Summarize what this character will remember from this turn in one sentence, from " +
		"their point of view. Respond with a JSON object containing the memory text."
}

func reflectPrompt(w *world.World, c *world.Entity, out *Outcome) string {
	var b strings.Builder
	b.WriteString(characterBrief(w, c))
	b.WriteString("This turn:\n")
	for _, res := range out.Resolutions {
		if res.Character != c.ID {
			continue
		}
		verdict := "succeeded"
		if !res.Allowed {
			verdict = "failed"
		}
		fmt.Fprintf(&b, "- your attempt to %s %s\n", res.Intention.Action, verdict)
	}
	for _, n := range out.Narrations {
		if n.Location == c.Location && n.Scene != "" {
			fmt.Fprintf(&b, "- the scene around you: %s\n", n.Scene)
		}
	}
	return b.String()
}
