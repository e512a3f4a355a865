package harness

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/optisync/internal/engine"
	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/remote/memremote"
	"github.com/roach88/optisync/internal/tracker"
)

// Assertion validates the final state of a run.
type Assertion struct {
	// Type specifies the assertion type, see the Assert constants.
	Type string `yaml:"type"`

	// ID is the entity (entity, absent, operation).
	ID string `yaml:"id,omitempty"`

	// IDs is the expected list order (store_order, remote_order).
	IDs []string `yaml:"ids,omitempty"`

	// Count is the expected size (store_size, pending).
	Count int `yaml:"count,omitempty"`

	// Expect holds expected entity fields (entity). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Kind is the operation kind (operation).
	Kind string `yaml:"kind,omitempty"`

	// Status is the expected record status (operation).
	Status string `yaml:"status,omitempty"`

	// Message must be contained in the record's error message (operation).
	Message string `yaml:"message,omitempty"`
}

// Assertion type constants.
const (
	AssertStoreSize      = "store_size"
	AssertStoreOrder     = "store_order"
	AssertEntity         = "entity"
	AssertAbsent         = "absent"
	AssertOperation      = "operation"
	AssertNoTempEntities = "no_temp_entities"
	AssertRemoteOrder    = "remote_order"
	AssertPending        = "pending"
)

// AssertionContext gives assertions access to the final state.
type AssertionContext struct {
	Engine *engine.Engine
	Remote *memremote.Remote
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertStoreSize:
		return assertStoreSize(actx, a)
	case AssertStoreOrder:
		return assertStoreOrder(actx, a)
	case AssertEntity:
		return assertEntity(actx, a)
	case AssertAbsent:
		return assertAbsent(actx, a)
	case AssertOperation:
		return assertOperation(actx, a)
	case AssertNoTempEntities:
		return assertNoTempEntities(actx)
	case AssertRemoteOrder:
		return assertRemoteOrder(actx, a)
	case AssertPending:
		return assertPending(actx, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertStoreSize(actx *AssertionContext, a Assertion) error {
	if n := actx.Engine.Store().Len(); n != a.Count {
		return &AssertionError{
			Type:     AssertStoreSize,
			Expected: fmt.Sprintf("%d entities", a.Count),
			Actual:   fmt.Sprintf("%d entities", n),
		}
	}
	return nil
}

func assertStoreOrder(actx *AssertionContext, a Assertion) error {
	got := actx.Engine.Store().Snapshot().IDs()
	if !slices.Equal(got, a.IDs) {
		return &AssertionError{
			Type:     AssertStoreOrder,
			Expected: fmt.Sprintf("%v", a.IDs),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertRemoteOrder(actx *AssertionContext, a Assertion) error {
	all := actx.Remote.Entities()
	got := make([]string, len(all))
	for i, e := range all {
		got[i] = e.ID
	}
	if !slices.Equal(got, a.IDs) {
		return &AssertionError{
			Type:     AssertRemoteOrder,
			Expected: fmt.Sprintf("%v", a.IDs),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertEntity(actx *AssertionContext, a Assertion) error {
	e, ok := actx.Engine.Store().Get(a.ID)
	if !ok {
		return &AssertionError{
			Type:     AssertEntity,
			Expected: fmt.Sprintf("entity %q in store", a.ID),
			Actual:   "not found",
		}
	}

	fields := entityFields(e)
	for _, k := range sortedKeys(a.Expect) {
		want := a.Expect[k]
		got, known := fields[k]
		if !known {
			return fmt.Errorf("entity assertion: unknown field %q", k)
		}
		if !valuesEqual(got, want) {
			return &AssertionError{
				Type:     AssertEntity,
				Expected: fmt.Sprintf("%s.%s = %v", a.ID, k, want),
				Actual:   fmt.Sprintf("%v", got),
			}
		}
	}
	return nil
}

func assertAbsent(actx *AssertionContext, a Assertion) error {
	if actx.Engine.Store().Snapshot().Has(a.ID) {
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("entity %q not in store", a.ID),
			Actual:   "present",
		}
	}
	return nil
}

func assertOperation(actx *AssertionContext, a Assertion) error {
	kind := tracker.Kind(a.Kind)
	rec := actx.Engine.Tracker().Global(kind)
	where := "global"
	if a.ID != "" {
		rec = actx.Engine.Tracker().Get(kind, a.ID)
		where = a.ID
	}

	if string(rec.Status) != a.Status {
		return &AssertionError{
			Type:     AssertOperation,
			Expected: fmt.Sprintf("%s/%s status %s", a.Kind, where, a.Status),
			Actual:   string(rec.Status),
		}
	}
	if a.Message != "" && !strings.Contains(rec.Message(), a.Message) {
		return &AssertionError{
			Type:     AssertOperation,
			Expected: fmt.Sprintf("%s/%s message containing %q", a.Kind, where, a.Message),
			Actual:   fmt.Sprintf("%q", rec.Message()),
		}
	}
	return nil
}

func assertNoTempEntities(actx *AssertionContext) error {
	for _, id := range actx.Engine.Store().Snapshot().IDs() {
		if entity.IsTemp(id) {
			return &AssertionError{
				Type:     AssertNoTempEntities,
				Expected: "no temporary ids in store",
				Actual:   fmt.Sprintf("found %q", id),
			}
		}
	}
	return nil
}

func assertPending(actx *AssertionContext, a Assertion) error {
	if n := actx.Engine.Registry().Len(); n != a.Count {
		return &AssertionError{
			Type:     AssertPending,
			Expected: fmt.Sprintf("%d pending optimistic writes", a.Count),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertStoreSize, AssertPending:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertStoreOrder, AssertRemoteOrder:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for %s", index, a.Type)
		}
	case AssertEntity:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for entity", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for entity", index)
		}
	case AssertAbsent:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for absent", index)
		}
	case AssertOperation:
		if !slices.Contains(tracker.Kinds, tracker.Kind(a.Kind)) {
			return fmt.Errorf("assertions[%d]: unknown operation kind %q", index, a.Kind)
		}
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for operation", index)
		}
	case AssertNoTempEntities:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// entityFields exposes the assertable fields of e by their YAML names.
func entityFields(e entity.Entity) map[string]any {
	return map[string]any{
		"id":      e.ID,
		"order":   e.Order,
		"active":  e.Active,
		"caption": e.Caption,
		"meta":    e.Meta,
	}
}

// valuesEqual compares a field value with a YAML value. Maps compare as
// subsets; everything else must be deeply equal.
func valuesEqual(got, want any) bool {
	if wm, ok := want.(map[string]any); ok {
		gm, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range wm {
			gv, ok := gm[k]
			if !ok || !valuesEqual(gv, wv) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(got, want)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
