package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/remote/memremote"
)

// Scenario is a scripted session against the engine and an in-process
// remote. Steps run in order; held steps keep their remote call open until
// a later release step.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// TTL overrides the engine time-to-live. Default: 60s.
	TTL time.Duration `yaml:"ttl,omitempty"`

	// IDPrefix is the prefix of ids assigned by the remote on create.
	// Default: "srv-".
	IDPrefix string `yaml:"id_prefix,omitempty"`

	// Seed entities are loaded into both the remote and the local store.
	Seed []SeedEntity `yaml:"seed,omitempty"`

	// RemoteOnly entities exist on the remote but not yet locally.
	RemoteOnly []SeedEntity `yaml:"remote_only,omitempty"`

	// NoBulkReorder hides the remote's bulk reorder endpoint.
	NoBulkReorder bool `yaml:"no_bulk_reorder,omitempty"`

	// Steps drive the engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedEntity is an initial entity. Order defaults to its list position and
// Active to true.
type SeedEntity struct {
	ID      string         `yaml:"id"`
	Caption string         `yaml:"caption,omitempty"`
	Order   *int           `yaml:"order,omitempty"`
	Active  *bool          `yaml:"active,omitempty"`
	Meta    map[string]any `yaml:"meta,omitempty"`
}

// Step is one scenario action.
type Step struct {
	// Op is the step kind, see the Op constants.
	Op string `yaml:"op"`

	// ID is the target entity (update, toggle, remove, refresh).
	ID string `yaml:"id,omitempty"`

	// IDs is the new list order (reorder).
	IDs []string `yaml:"ids,omitempty"`

	// Payload holds the fields to write (create, update).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Query selects a page (fetch).
	Query map[string]any `yaml:"query,omitempty"`

	// Fail makes the step's remote call fail. On a release step it fails
	// the held call instead.
	Fail *FailSpec `yaml:"fail,omitempty"`

	// Hold keeps the remote call open under this name until a release step
	// names it. With release it selects the held call.
	Hold string `yaml:"hold,omitempty"`

	// Duration moves the fake clock forward (advance).
	Duration time.Duration `yaml:"duration,omitempty"`

	// Expect checks the outcome of the engine call.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// FailSpec describes an injected remote failure.
type FailSpec struct {
	// Kind is the remote error kind: validation, not_found, conflict or
	// network. A network failure is a plain transport error.
	Kind string `yaml:"kind"`

	// Message is the error message.
	Message string `yaml:"message"`
}

// StepExpect is the expected outcome of an engine call.
type StepExpect struct {
	// Outcome is "success" or "failure".
	Outcome string `yaml:"outcome"`

	// Error is the expected error kind when Outcome is "failure".
	Error string `yaml:"error,omitempty"`
}

// Step op constants.
const (
	OpCreate      = "create"
	OpUpdate      = "update"
	OpToggle      = "toggle"
	OpRemove      = "remove"
	OpReorder     = "reorder"
	OpFetch       = "fetch"
	OpRefresh     = "refresh"
	OpAdvance     = "advance"
	OpRelease     = "release"
	OpClearErrors = "clear_errors"
	OpClose       = "close"
)

// Outcomes recorded in the trace.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePending = "pending"
)

// remoteOps maps engine-calling step ops to the remote operation they
// issue.
var remoteOps = map[string]memremote.Op{
	OpCreate:  memremote.OpCreate,
	OpUpdate:  memremote.OpUpdate,
	OpToggle:  memremote.OpPatch,
	OpRemove:  memremote.OpDelete,
	OpReorder: memremote.OpReorder,
	OpFetch:   memremote.OpList,
	OpRefresh: memremote.OpGet,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos) or is invalid.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and consistent.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}

	seen := make(map[string]bool)
	for i, e := range append(append([]SeedEntity{}, s.Seed...), s.RemoteOnly...) {
		if e.ID == "" {
			return fmt.Errorf("seed[%d]: id is required", i)
		}
		if entity.IsTemp(e.ID) {
			return fmt.Errorf("seed[%d]: temporary id %q cannot be seeded", i, e.ID)
		}
		if seen[e.ID] {
			return fmt.Errorf("seed[%d]: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = true
	}

	held := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, held); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks one step. held tracks hold names opened so far.
func validateStep(i int, step Step, held map[string]bool) error {
	switch step.Op {
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	case OpCreate:
	case OpUpdate, OpToggle, OpRemove, OpRefresh:
		if step.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for %s", i, step.Op)
		}
	case OpReorder:
		if len(step.IDs) == 0 {
			return fmt.Errorf("steps[%d]: ids is required for reorder", i)
		}
	case OpFetch:
		if _, err := entity.QueryFromParams(step.Query); err != nil {
			return fmt.Errorf("steps[%d]: query: %w", i, err)
		}
	case OpAdvance:
		if step.Duration <= 0 {
			return fmt.Errorf("steps[%d]: advance needs a positive duration", i)
		}
	case OpRelease:
		if !held[step.Hold] {
			return fmt.Errorf("steps[%d]: release of unknown hold %q", i, step.Hold)
		}
		delete(held, step.Hold)
	case OpClearErrors, OpClose:
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}

	if step.Payload != nil {
		if step.Op != OpCreate && step.Op != OpUpdate {
			return fmt.Errorf("steps[%d]: payload is only valid for create and update", i)
		}
		if _, err := payloadFromMap(step.Payload); err != nil {
			return fmt.Errorf("steps[%d]: payload: %w", i, err)
		}
	}

	if step.Hold != "" && step.Op != OpRelease {
		if _, ok := remoteOps[step.Op]; !ok {
			return fmt.Errorf("steps[%d]: %s makes no remote call to hold", i, step.Op)
		}
		if held[step.Hold] {
			return fmt.Errorf("steps[%d]: hold %q is already open", i, step.Hold)
		}
		held[step.Hold] = true
	}

	if step.Fail != nil {
		if _, ok := remoteOps[step.Op]; !ok && step.Op != OpRelease {
			return fmt.Errorf("steps[%d]: %s makes no remote call to fail", i, step.Op)
		}
		if step.Hold != "" && step.Op != OpRelease {
			return fmt.Errorf("steps[%d]: a held call fails on its release step", i)
		}
		if !validFailKinds[step.Fail.Kind] {
			return fmt.Errorf("steps[%d]: unknown fail kind %q", i, step.Fail.Kind)
		}
	}

	if step.Expect != nil {
		switch step.Expect.Outcome {
		case OutcomeSuccess, OutcomeFailure:
		default:
			return fmt.Errorf("steps[%d].expect: outcome must be success or failure, got %q", i, step.Expect.Outcome)
		}
		if step.Hold != "" && step.Op != OpRelease {
			return fmt.Errorf("steps[%d].expect: a held call is checked on its release step", i)
		}
	}
	return nil
}

var validFailKinds = map[string]bool{
	"validation": true,
	"not_found":  true,
	"conflict":   true,
	"network":    true,
}
