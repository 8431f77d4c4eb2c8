package snapshot

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// CurrentSchemaVersion is the schema version every Snapshot this package
// produces is validated against.
const CurrentSchemaVersion = "1.0.0"

// schemaJSON is the JSON Schema for the dashboard snapshot contract,
// embedded rather than read from disk so validation works without any
// accompanying data files.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "ProductionSchedulerSnapshot",
  "type": "object",
  "required": ["scenarioId", "tasks", "teamCapacities", "teams", "products", "displayedTasks", "truncated"],
  "properties": {
    "scenarioId": {"type": "string"},
    "description": {"type": "string"},
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["taskId", "type", "product", "startTime", "endTime", "duration"],
        "properties": {
          "taskId": {"type": "string"},
          "type": {"type": "string"},
          "product": {"type": "string"},
          "team": {"type": "string"},
          "teamSkill": {"type": "string"},
          "skill": {"type": "string"},
          "startTime": {"type": "string"},
          "endTime": {"type": "string"},
          "duration": {"type": "integer"},
          "mechanics": {"type": "integer"},
          "shift": {"type": "string"},
          "priority": {"type": "number"},
          "dependencies": {"type": "array", "items": {"type": "string"}},
          "isLatePartTask": {"type": "boolean"},
          "isReworkTask": {"type": "boolean"},
          "isQualityTask": {"type": "boolean"},
          "isCustomerTask": {"type": "boolean"},
          "isCritical": {"type": "boolean"},
          "slackHours": {"type": "number"}
        }
      }
    },
    "teamCapacities": {"type": "object"},
    "teams": {"type": "array", "items": {"type": "string"}},
    "teamShifts": {"type": "object"},
    "products": {"type": "array"},
    "utilization": {"type": "object"},
    "displayedTasks": {"type": "integer"},
    "truncated": {"type": "boolean"},
    "metrics": {"type": "object"}
  }
}`

// ValidationResult reports schema conformance for one snapshot.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// String formats the result the way a CLI operator would want to see it.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if r.Valid {
		sb.WriteString("snapshot valid")
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("snapshot invalid (%d errors):", len(r.Errors)))
	for _, e := range r.Errors {
		sb.WriteString("\n  - " + e)
	}
	return sb.String()
}

// Validator validates a Snapshot against the embedded dashboard schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the embedded schema once, for reuse across many
// Validate calls.
func NewValidator() (*Validator, error) {
	loader := gojsonschema.NewStringLoader(schemaJSON)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks s against the schema by round-tripping it through JSON,
// exactly as the dashboard will receive it.
func (v *Validator) Validate(s Snapshot) (*ValidationResult, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to marshal snapshot: %w", err)
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("snapshot: schema validation failed: %w", err)
	}

	if result.Valid() {
		return &ValidationResult{Valid: true}, nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return &ValidationResult{Valid: false, Errors: errs}, nil
}
