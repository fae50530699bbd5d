package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/slink/pkg/jsonschema"
)

// scenarioSchema is the JSON Schema every scenario document must
// satisfy. Sizes appear as integers or human-readable strings; the
// semantic checks beyond shape live in Validate.
const scenarioSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Scenario",
  "type": "object",
  "definitions": {
    "size": {
      "anyOf": [
        {"type": "integer", "minimum": 0},
        {"type": "string", "minLength": 1}
      ]
    },
    "duration": {"type": "string", "minLength": 1}
  },
  "properties": {
    "name": {"type": "string"},
    "description": {"type": "string"},
    "duration": {"$ref": "#/definitions/duration"},
    "link": {
      "type": "object",
      "properties": {
        "rate": {"$ref": "#/definitions/size"},
        "resolution": {"type": "integer", "minimum": 1, "maximum": 1000},
        "highWater": {"$ref": "#/definitions/size"}
      },
      "additionalProperties": false
    },
    "streams": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "properties": {
          "bytes": {"$ref": "#/definitions/size"},
          "chunk": {"$ref": "#/definitions/size"},
          "produceRate": {"$ref": "#/definitions/size"},
          "startAfter": {"$ref": "#/definitions/duration"},
          "abortAfter": {"$ref": "#/definitions/size"}
        },
        "required": ["bytes"],
        "additionalProperties": false
      }
    }
  },
  "required": ["streams"],
  "additionalProperties": false
}`

// CheckScenario validates raw scenario data against the scenario
// schema, reporting every violation. YAML input is converted to JSON
// first; the path's extension picks the format the same way
// ParseScenario does.
func CheckScenario(data []byte, path string) (bool, jsonschema.ValidationErrors) {
	jsonStr, err := toJSON(data, path)
	if err != nil {
		return false, jsonschema.ValidationErrors{err}
	}

	schema, err := jsonschema.Compile(scenarioSchema)
	if err != nil {
		return false, jsonschema.ValidationErrors{err}
	}
	return schema.ValidateWithErrors(jsonStr)
}

// toJSON renders scenario data as a JSON string for schema validation.
func toJSON(data []byte, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		return string(data), nil
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("invalid YAML: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("cannot render YAML as JSON: %w", err)
	}
	return string(out), nil
}
