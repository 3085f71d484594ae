package schema

import (
	"encoding/json"
	"testing"
)

const actionSchema = `{
	"type": "object",
	"required": ["action"],
	"properties": {
		"action": {"type": "string", "enum": ["move", "speak", "wait"]},
		"target": {"type": "string"}
	},
	"additionalProperties": false
}`

func TestValidate(t *testing.T) {
	d, err := New("action", json.RawMessage(actionSchema))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := d.Validate(json.RawMessage(`{"action":"move","target":"tavern"}`)); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
	if err := d.Validate(json.RawMessage(`{"action":"fly"}`)); err == nil {
		t.Fatal("enum violation accepted")
	}
	if err := d.Validate(json.RawMessage(`{}`)); err == nil {
		t.Fatal("missing required field accepted")
	}
	if err := d.Validate(json.RawMessage(`not json`)); err == nil {
		t.Fatal("malformed JSON accepted")
	}
}

func TestNewRejectsBadSchema(t *testing.T) {
	if _, err := New("bad", json.RawMessage(`{"type": 42}`)); err == nil {
		t.Fatal("invalid schema compiled")
	}
	if _, err := New("", json.RawMessage(`{}`)); err == nil {
		t.Fatal("empty name accepted")
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustNew did not panic on bad schema")
		}
	}()
	MustNew("bad", `{"type": 42}`)
}
