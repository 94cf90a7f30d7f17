package worker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Param declares one configuration key of a worker. A parameter whose default is the zero
// value of its kind ("" or 0) is required unless Optional is set. Booleans are never required.
type Param struct {
	Name     string
	Default  any
	Optional bool
}

// Required reports whether the parameter must be supplied by the node configuration.
func (p Param) Required() bool {
	if p.Optional {
		return false
	}
	if _, ok := p.Default.(bool); ok {
		return false
	}
	return isEmpty(p.Default)
}

// ParameterSchema is the ordered list of parameters a worker accepts.
type ParameterSchema []Param

// Names returns the parameter names in declaration order.
func (s ParameterSchema) Names() []string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = p.Name
	}
	return names
}

// Lookup returns the parameter with the given name.
func (s ParameterSchema) Lookup(name string) (Param, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// MarshalJSON encodes the schema as a JSON object that keeps declaration order.
func (s ParameterSchema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(p.Default)
		if err != nil {
			return nil, fmt.Errorf("failed to encode default of %s: %w", p.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NodeConfig is a resolved node configuration: parameter name to value.
type NodeConfig map[string]any

// String returns the value of name as a string. Missing values yield "".
func (c NodeConfig) String(name string) string {
	switch v := c[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the value of name as an int. Strings and integral floats are converted.
func (c NodeConfig) Int(name string) (int, error) {
	switch v := c[name].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, &ConfigurationError{Field: name, Reason: fmt.Sprintf("expected an integer, got %v", v)}
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, &ConfigurationError{Field: name, Reason: fmt.Sprintf("expected an integer, got %q", v)}
		}
		return n, nil
	default:
		return 0, &ConfigurationError{Field: name, Reason: fmt.Sprintf("expected an integer, got %T", v)}
	}
}

// Strings returns the value of name as a list. A string is split on commas and whitespace,
// a YAML or JSON list must hold only scalars.
func (c NodeConfig) Strings(name string) ([]string, error) {
	switch v := c[name].(type) {
	case nil:
		return nil, nil
	case string:
		return splitList(v), nil
	case []string:
		var out []string
		for _, item := range v {
			out = append(out, splitList(item)...)
		}
		return out, nil
	case []any:
		var out []string
		for i, item := range v {
			switch item.(type) {
			case string, int, int64, uint64, float64, bool:
				out = append(out, splitList(fmt.Sprint(item))...)
			default:
				return nil, &ConfigurationError{Field: name, Reason: fmt.Sprintf("item %d: expected a scalar, got %T", i, item)}
			}
		}
		return out, nil
	default:
		return nil, &ConfigurationError{Field: name, Reason: fmt.Sprintf("expected a list or a comma separated string, got %T", v)}
	}
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// Bool returns the value of name as a bool. Strings such as "true" or "0" are converted.
func (c NodeConfig) Bool(name string) (bool, error) {
	switch v := c[name].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, &ConfigurationError{Field: name, Reason: fmt.Sprintf("expected a boolean, got %q", v)}
		}
		return b, nil
	default:
		return false, &ConfigurationError{Field: name, Reason: fmt.Sprintf("expected a boolean, got %T", v)}
	}
}

// Resolve overlays raw onto the defaults of schema and checks that every required parameter
// is present and non-empty. Keys not declared by the schema are dropped. The first missing
// parameter in schema order is reported as a *ConfigurationError.
func Resolve(raw map[string]any, schema ParameterSchema) (NodeConfig, error) {
	resolved := make(NodeConfig, len(schema))
	for _, p := range schema {
		resolved[p.Name] = p.Default
		if v, ok := raw[p.Name]; ok && v != nil {
			resolved[p.Name] = v
		}
	}

	for _, p := range schema {
		if p.Required() && isEmpty(resolved[p.Name]) {
			return nil, &ConfigurationError{Field: p.Name, Reason: "required parameter is missing"}
		}
	}
	return resolved, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case int:
		return t == 0
	case int64:
		return t == 0
	case uint64:
		return t == 0
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	default:
		return false
	}
}
