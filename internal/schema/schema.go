// Package schema validates mutation payloads against a CUE definition
// before any optimistic write happens.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/optisync/internal/entity"
)

//go:embed payload.cue
var payloadSchema string

// FieldError is one rejected payload field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors collects every FieldError of one payload.
type Errors []FieldError

func (es Errors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return "invalid payload: " + strings.Join(msgs, "; ")
}

// Validator checks payloads against #Payload. Safe for concurrent use.
type Validator struct {
	mu  sync.Mutex // cue.Context is not safe for concurrent use
	ctx *cue.Context
	def cue.Value
}

// New compiles the payload schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(payloadSchema, cue.Filename("payload.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}
	def := v.LookupPath(cue.ParsePath("#Payload"))
	if !def.Exists() {
		return nil, fmt.Errorf("payload schema: #Payload not defined")
	}
	return &Validator{ctx: ctx, def: def}, nil
}

// MustNew is New for package-level initialization; it panics on error.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks p. It returns Errors when p is rejected.
func (v *Validator) Validate(p entity.Payload) error {
	return v.ValidateFields(p.Fields())
}

// ValidateFields checks a raw field map, as decoded from YAML or JSON.
// Unknown fields are rejected.
func (v *Validator) ValidateFields(fields map[string]any) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	val := v.ctx.Encode(fields)
	if err := val.Err(); err != nil {
		return Errors{{Message: err.Error()}}
	}
	if err := v.def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return toErrors(err)
	}
	return nil
}

func toErrors(err error) Errors {
	var out Errors
	seen := make(map[string]bool)
	for _, e := range errors.Errors(err) {
		field := strings.Join(trimDefinition(e.Path()), ".")
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if key := field + "\x00" + msg; !seen[key] {
			seen[key] = true
			out = append(out, FieldError{Field: field, Message: msg})
		}
	}
	if len(out) == 0 {
		out = Errors{{Message: err.Error()}}
	}
	return out
}

func trimDefinition(path []string) []string {
	if len(path) > 0 && path[0] == "#Payload" {
		return path[1:]
	}
	return path
}
