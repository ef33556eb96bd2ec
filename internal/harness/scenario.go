package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/filter"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Manifest is the path of the manifest to build. It is resolved against
	// the scenario file directory on load.
	Manifest string `yaml:"manifest"`

	// Backend overrides the base datasource (memory or sqlite).
	Backend string `yaml:"backend,omitempty"`

	// Now pins the clock used by date operators, RFC 3339.
	// Defaults to DefaultNow.
	Now string `yaml:"now,omitempty"`

	// Timezone is the caller timezone. Defaults to UTC.
	Timezone string `yaml:"timezone,omitempty"`

	// Steps are executed in order; each one is recorded in the trace.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultNow is the instant scenarios run at when they do not set now.
const DefaultNow = "2024-01-01T00:00:00Z"

// Step is one datasource operation.
type Step struct {
	// Op is list, create, update, delete or aggregate.
	Op         string `yaml:"op"`
	Collection string `yaml:"collection"`

	// Filter is a condition tree in plain form.
	Filter     any              `yaml:"filter,omitempty"`
	Search     string           `yaml:"search,omitempty"`
	Segment    string           `yaml:"segment,omitempty"`
	Sort       filter.Sort      `yaml:"sort,omitempty"`
	Page       *filter.Page     `yaml:"page,omitempty"`
	Projection []string         `yaml:"projection,omitempty"`
	Records    []map[string]any `yaml:"records,omitempty"`
	Patch      map[string]any   `yaml:"patch,omitempty"`

	Aggregation *aggregation.Aggregation `yaml:"aggregation,omitempty"`
	Limit       int                      `yaml:"limit,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect validates the outcome of a step.
type Expect struct {
	// Records must equal the returned records exactly, in order.
	Records []map[string]any `yaml:"records,omitempty"`

	// Results must equal the aggregation results exactly, in order.
	Results []map[string]any `yaml:"results,omitempty"`

	// Count is the expected number of returned records or results.
	Count *int `yaml:"count,omitempty"`

	// Error is the expected error code, like VALIDATION.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	Type       string         `yaml:"type"`
	Collection string         `yaml:"collection"`
	Filter     any            `yaml:"filter,omitempty"`
	Where      map[string]any `yaml:"where,omitempty"`
	Field      string         `yaml:"field,omitempty"`
	Expect     map[string]any `yaml:"expect,omitempty"`
	Count      int            `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState  = "final_state"
	AssertRecordCount = "record_count"
	AssertSchemaField = "schema_field"
)

// Step operation constants.
const (
	OpList      = "list"
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpAggregate = "aggregate"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Manifest != "" && !filepath.IsAbs(scenario.Manifest) {
		scenario.Manifest = filepath.Join(filepath.Dir(path), scenario.Manifest)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Manifest == "" {
		return fmt.Errorf("manifest is required")
	}
	if _, err := os.Stat(s.Manifest); os.IsNotExist(err) {
		return fmt.Errorf("manifest file not found: %s", s.Manifest)
	}
	switch s.Backend {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	if s.Now != "" {
		if _, err := time.Parse(time.RFC3339, s.Now); err != nil {
			return fmt.Errorf("now must be RFC 3339: %w", err)
		}
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
		}
	}
	if len(s.Steps) == 0 && len(s.Assertions) == 0 {
		return fmt.Errorf("steps or assertions are required")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	if s.Collection == "" {
		return fmt.Errorf("steps[%d]: collection is required", index)
	}
	switch s.Op {
	case OpList, OpDelete:
	case OpCreate:
		if len(s.Records) == 0 {
			return fmt.Errorf("steps[%d]: records are required for create", index)
		}
	case OpUpdate:
		if s.Patch == nil {
			return fmt.Errorf("steps[%d]: patch is required for update", index)
		}
	case OpAggregate:
		if s.Aggregation == nil {
			return fmt.Errorf("steps[%d]: aggregation is required for aggregate", index)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Collection == "" {
		return fmt.Errorf("assertions[%d]: collection is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRecordCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for record_count", index)
		}
	case AssertSchemaField:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for schema_field", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for schema_field", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
