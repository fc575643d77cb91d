// Package mcp connects the hub to the Model Context Protocol in both
// directions, using the official Go SDK
// (github.com/modelcontextprotocol/go-sdk).
//
//   - [Connect] opens a session to an external MCP server and imports each
//     of its tools as a [tool.Adapter].
//   - [NewServer] and [Handler] re-export the hub's registry to MCP clients
//     over the streamable HTTP transport.
package mcp

import (
	"encoding/json"
	"slices"

	"github.com/MrWong99/toolhub/pkg/types"
)

// ParamsFromSchema converts a JSON Schema object (as found in an MCP tool's
// input schema) into ordered parameters. Required parameters come first in
// the schema's declared order, then the rest sorted by name. Unknown or
// missing types map to [types.TypeAny].
func ParamsFromSchema(schema any) types.Parameters {
	m := schemaToMap(schema)
	props, _ := m["properties"].(map[string]any)
	var names []string
	switch rs := m["required"].(type) {
	case []string:
		names = rs
	case []any:
		for _, r := range rs {
			if s, ok := r.(string); ok {
				names = append(names, s)
			}
		}
	}
	var required []string
	for _, s := range names {
		if _, exists := props[s]; exists && !slices.Contains(required, s) {
			required = append(required, s)
		}
	}

	var optional []string
	for name := range props {
		if !slices.Contains(required, name) {
			optional = append(optional, name)
		}
	}
	slices.Sort(optional)

	out := make(types.Parameters, 0, len(props))
	for _, name := range append(required, optional...) {
		spec, _ := props[name].(map[string]any)
		p := types.Parameter{Name: name, Type: types.TypeAny, Required: slices.Contains(required, name)}
		if t, ok := spec["type"].(string); ok && types.ParamType(t).IsValid() {
			p.Type = types.ParamType(t)
		}
		p.Description, _ = spec["description"].(string)
		out = append(out, p)
	}
	return out
}

// SchemaFromParams renders ps as a JSON Schema object. TypeAny parameters
// carry no type constraint.
func SchemaFromParams(ps types.Parameters) map[string]any {
	props := make(map[string]any, len(ps))
	required := []string{}
	for _, p := range ps {
		spec := map[string]any{}
		if p.Type != "" && p.Type != types.TypeAny {
			spec["type"] = string(p.Type)
		}
		if p.Description != "" {
			spec["description"] = p.Description
		}
		props[p.Name] = spec
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// schemaToMap normalises any schema representation to a generic map.
func schemaToMap(schema any) map[string]any {
	switch s := schema.(type) {
	case nil:
		return map[string]any{"type": "object"}
	case map[string]any:
		return s
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}
