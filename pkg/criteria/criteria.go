// Package criteria evaluates rule conditions against webhook event
// metadata. A scoring rule may restrict itself to events whose metadata
// matches all of its conditions (AND logic).
package criteria

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Supported operators
const (
	OpEquals   = ""          // default, no prefix - simple equality
	OpNe       = "$ne"       // not equal
	OpExists   = "$exists"   // field exists (value should be bool)
	OpIn       = "$in"       // value is in array of options
	OpContains = "$contains" // array field contains value
	OpGte      = "$gte"      // greater than or equal
	OpGt       = "$gt"       // greater than
	OpLte      = "$lte"      // less than or equal
	OpLt       = "$lt"       // less than
)

// Condition is a single field condition
type Condition struct {
	Field    string
	Operator string
	Value    any
}

// Parse converts a criteria map to structured conditions.
// Format: {"field": "value"} for equality, {"field": {"$op": value}} for
// operators. Fields use dot notation for nested metadata.
func Parse(criteria map[string]any) []Condition {
	var conditions []Condition

	for field, value := range criteria {
		switch v := value.(type) {
		case map[string]any:
			for op, opValue := range v {
				conditions = append(conditions, Condition{Field: field, Operator: op, Value: opValue})
			}
		default:
			conditions = append(conditions, Condition{Field: field, Operator: OpEquals, Value: v})
		}
	}

	return conditions
}

// MatchesMetadata reports whether event metadata satisfies all
// conditions in the raw criteria document. Empty or null criteria match
// everything; unparseable metadata matches nothing.
func MatchesMetadata(metadata, rawCriteria json.RawMessage) bool {
	if len(rawCriteria) == 0 || string(rawCriteria) == "null" || string(rawCriteria) == "{}" {
		return true
	}

	var criteria map[string]any
	if err := json.Unmarshal(rawCriteria, &criteria); err != nil {
		return false
	}
	if len(criteria) == 0 {
		return true
	}

	var data map[string]any
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &data); err != nil {
			return false
		}
	}

	for _, cond := range Parse(criteria) {
		if !evaluate(data, cond) {
			return false
		}
	}
	return true
}

// lookup retrieves a value from nested metadata using dot notation
func lookup(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func evaluate(data map[string]any, cond Condition) bool {
	value, exists := lookup(data, cond.Field)

	switch cond.Operator {
	case OpEquals:
		return exists && equal(value, cond.Value)

	case OpNe:
		if !exists {
			return true
		}
		return !equal(value, cond.Value)

	case OpExists:
		want, ok := cond.Value.(bool)
		return ok && exists == want

	case OpIn:
		if !exists {
			return false
		}
		options, ok := asSlice(cond.Value)
		if !ok {
			return false
		}
		for _, opt := range options {
			if equal(value, opt) {
				return true
			}
		}
		return false

	case OpContains:
		if !exists {
			return false
		}
		items, ok := asSlice(value)
		if !ok {
			return false
		}
		for _, item := range items {
			if equal(item, cond.Value) {
				return true
			}
		}
		return false

	case OpGte, OpGt, OpLte, OpLt:
		return exists && compare(value, cond.Operator, cond.Value)

	default:
		return false
	}
}

// equal compares with light type coercion so JSON numbers and strings
// from different sources still match
func equal(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asSlice(v any) ([]any, bool) {
	if arr, ok := v.([]any); ok {
		return arr, true
	}
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Slice {
		return nil, false
	}
	result := make([]any, val.Len())
	for i := 0; i < val.Len(); i++ {
		result[i] = val.Index(i).Interface()
	}
	return result, true
}

func compare(actual any, op string, expected any) bool {
	a, ok := asFloat(actual)
	if !ok {
		return false
	}
	b, ok := asFloat(expected)
	if !ok {
		return false
	}

	switch op {
	case OpGte:
		return a >= b
	case OpGt:
		return a > b
	case OpLte:
		return a <= b
	case OpLt:
		return a < b
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
