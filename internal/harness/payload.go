package harness

import (
	"errors"
	"fmt"

	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/remote"
)

// payloadFromMap converts a YAML payload map to an entity.Payload.
func payloadFromMap(m map[string]any) (entity.Payload, error) {
	var p entity.Payload
	for k, v := range m {
		switch k {
		case "order":
			n, ok := v.(int)
			if !ok {
				return entity.Payload{}, fmt.Errorf("order: expected integer, got %T", v)
			}
			p.Order = &n
		case "active":
			b, ok := v.(bool)
			if !ok {
				return entity.Payload{}, fmt.Errorf("active: expected bool, got %T", v)
			}
			p.Active = &b
		case "caption":
			s, ok := v.(string)
			if !ok {
				return entity.Payload{}, fmt.Errorf("caption: expected string, got %T", v)
			}
			p.Caption = &s
		case "meta":
			meta, ok := v.(map[string]any)
			if !ok {
				return entity.Payload{}, fmt.Errorf("meta: expected mapping, got %T", v)
			}
			p.Meta = meta
		default:
			return entity.Payload{}, fmt.Errorf("unknown field %q", k)
		}
	}
	return p, nil
}

// failError builds the error an injected failure returns. Network failures
// are plain transport errors; the rest are typed remote errors.
func failError(f *FailSpec) error {
	if f == nil {
		return nil
	}
	if f.Kind == "network" {
		return errors.New(f.Message)
	}
	return remote.Errorf(remote.ErrorKind(f.Kind), "%s", f.Message)
}
