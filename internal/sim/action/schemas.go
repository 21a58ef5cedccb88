package action

import "github.com/santhosh-tekuri/jsonschema/v5"

// Action contracts. Replies are validated against these before being
// converted to typed records; violations surface as ErrSchema.

const planSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "speak":       {"$ref": "#/$defs/lines"},
    "whisper":     {"$ref": "#/$defs/lines"},
    "announce":    {"$ref": "#/$defs/lines"},
    "mind":        {"$ref": "#/$defs/lines"},
    "trans_stage": {"$ref": "#/$defs/lines"},
    "appearance":  {"$ref": "#/$defs/lines"},
    "environment": {"$ref": "#/$defs/lines"}
  },
  "$defs": {
    "lines": {
      "anyOf": [
        {"type": "string"},
        {"type": "array", "items": {"type": "string"}}
      ]
    }
  }
}`

const drawSchemaJSON = `{
  "type": "object",
  "required": ["cards"],
  "properties": {
    "cards": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name":   {"type": "string", "minLength": 1},
          "target": {"type": "string"},
          "reason": {"type": "string"}
        }
      }
    }
  }
}`

const choiceSchemaJSON = `{
  "type": "object",
  "required": ["card"],
  "properties": {
    "card":   {"type": "string", "minLength": 1},
    "target": {"type": "string"}
  }
}`

const verdictSchemaJSON = `{
  "type": "object",
  "required": ["narrative"],
  "properties": {
    "damage": {
      "type": "object",
      "additionalProperties": {"type": "integer"}
    },
    "effects": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {"type": "string"}
      }
    },
    "narrative": {"type": "string", "minLength": 1}
  }
}`

var (
	planSchema    = jsonschema.MustCompileString("plan.schema.json", planSchemaJSON)
	drawSchema    = jsonschema.MustCompileString("draw.schema.json", drawSchemaJSON)
	choiceSchema  = jsonschema.MustCompileString("choice.schema.json", choiceSchemaJSON)
	verdictSchema = jsonschema.MustCompileString("verdict.schema.json", verdictSchemaJSON)
)
