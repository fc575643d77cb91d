package tool

import (
	"fmt"

	"github.com/MrWong99/toolhub/pkg/types"
)

// ValidateArgs checks args against the descriptor's parameters. Required
// parameters must be present and type-compatible; optional parameters are
// type-checked when present. Keys the descriptor does not mention are
// tolerated so that older tools accept newer callers.
//
// The first problem found in declaration order is reported.
func ValidateArgs(desc types.ToolDescriptor, args types.Arguments) error {
	for _, p := range desc.Parameters {
		v, ok := args[p.Name]
		if !ok {
			if p.Required {
				return Validation(desc.Name, fmt.Sprintf("missing required argument %q", p.Name))
			}
			continue
		}
		if !p.Required && v.IsNull() {
			continue
		}
		if !p.Type.Accepts(v) {
			return Validation(desc.Name, fmt.Sprintf("argument %q must be %s, got %s", p.Name, p.Type, v.Kind()))
		}
	}
	return nil
}
