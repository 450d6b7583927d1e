package configutil

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Schema lists the keys a free-form settings map may carry. Keys compare
// case, underscore and hyphen insensitively.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// SchemaFor derives a schema from the mapstructure tags of a struct. Fields
// named in required become required keys; every other tagged field is optional.
func SchemaFor(v any, required ...string) Schema {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	schema := Schema{Required: required}
	if t == nil || t.Kind() != reflect.Struct {
		return schema
	}
	req := make(map[string]bool, len(required))
	for _, k := range required {
		req[normalizeKey(k)] = true
	}
	for i := 0; i < t.NumField(); i++ {
		name := strings.Split(t.Field(i).Tag.Get("mapstructure"), ",")[0]
		if name == "" || name == "-" || req[normalizeKey(name)] {
			continue
		}
		schema.Optional = append(schema.Optional, name)
	}
	return schema
}

// ValidateSettings reports missing required keys and, unless the schema
// allows them, unknown keys. A required key holding a blank string counts
// as missing.
func ValidateSettings(input map[string]any, schema Schema) error {
	required := make(map[string]string, len(schema.Required))
	allowed := make(map[string]struct{}, len(schema.Required)+len(schema.Optional))
	for _, k := range schema.Required {
		required[normalizeKey(k)] = k
		allowed[normalizeKey(k)] = struct{}{}
	}
	for _, k := range schema.Optional {
		allowed[normalizeKey(k)] = struct{}{}
	}

	var missing, unknown []string
	seen := make(map[string]bool, len(input))
	for k, v := range input {
		nk := normalizeKey(k)
		seen[nk] = true
		if _, ok := allowed[nk]; !ok && !schema.AllowUnknown {
			unknown = append(unknown, k)
		}
		if reqKey, ok := required[nk]; ok && isEmptyValue(v) {
			missing = append(missing, reqKey)
		}
	}
	for nk, reqKey := range required {
		if !seen[nk] {
			missing = append(missing, reqKey)
		}
	}

	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unknown)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(unknown, ", "))
	}
	return errors.New(strings.Join(parts, "; "))
}

// Decode validates input against schema and decodes it into out. path
// prefixes validation errors, e.g. "vendors.llm.settings".
func Decode(path string, input map[string]any, schema Schema, out any) error {
	if err := ValidateSettings(input, schema); err != nil {
		return withPath(path, err)
	}
	if err := DecodeSettings(input, out); err != nil {
		return withPath(path, fmt.Errorf("decode: %w", err))
	}
	return nil
}

func withPath(path string, err error) error {
	if path == "" {
		return err
	}
	return fmt.Errorf("%s: %w", path, err)
}

// FromStrings widens a string map so it can go through Decode.
func FromStrings(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
