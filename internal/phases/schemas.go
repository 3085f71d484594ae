package phases

import "fabula/internal/schema"

// Output schemas sent with every request. The provider constrains generation
// to these shapes and the relay re-validates the payload on the way back.
var (
	intentionSchema = schema.MustNew("intention", `{
		"type": "object",
		"required": ["action"],
		"properties": {
			"action":   {"type": "string", "enum": ["move", "speak", "interact", "wait"]},
			"target":   {"type": "string"},
			"dialogue": {"type": "string"},
			"reason":   {"type": "string"}
		},
		"additionalProperties": false
	}`)

	resolutionSchema = schema.MustNew("resolution", `{
		"type": "object",
		"required": ["outcomes"],
		"properties": {
			"outcomes": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["character", "allowed"],
					"properties": {
						"character": {"type": "string"},
						"allowed":   {"type": "boolean"},
						"note":      {"type": "string"}
					},
					"additionalProperties": false
				}
			}
		},
		"additionalProperties": false
	}`)

	narrationSchema = schema.MustNew("narration", `{
		"type": "object",
		"required": ["scene"],
		"properties": {
			"scene": {"type": "string"}
		},
		"additionalProperties": false
	}`)

	memorySchema = schema.MustNew("memory", `{
		"type": "object",
		"required": ["memory"],
		"properties": {
			"memory": {"type": "string"}
		},
		"additionalProperties": false
	}`)
)
