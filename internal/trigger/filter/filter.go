// Package filter implements declarative event filtering for projectors.
// Projectors declare their filters as data and run them through Apply; the
// first rejecting filter short-circuits with an ignore signal carrying the
// filter's name.
package filter

import (
	"strconv"
	"strings"

	"triggerhub/internal/trigger"
)

// Kind selects how a filter compares the payload field against the
// configured parameter.
type Kind int

const (
	// KindValue compares a scalar payload field against a comma-separated
	// value list with OR semantics.
	KindValue Kind = iota
	// KindBool compares a boolean payload field against a configured
	// true/false string.
	KindBool
	// KindList accepts when the payload list and the configured list share
	// at least one element.
	KindList
)

// Filter is one declarative projection filter.
//
// Parameter names the subscription parameter holding the user's configured
// values; an unset or empty parameter always passes. Path is the
// dot-separated location of the field inside the payload. ListKey, for
// KindList over object lists, names the member extracted from each
// element.
type Filter struct {
	Name          string
	Parameter     string
	Path          string
	Kind          Kind
	CaseSensitive bool
	ListKey       string
}

// Apply evaluates filters in order against the payload. It returns nil when
// every filter passes, or an ignore signal naming the first filter that
// rejected.
func Apply(filters []Filter, parameters, payload map[string]interface{}) error {
	for _, f := range filters {
		if !f.match(parameters, payload) {
			return trigger.Ignore(f.Name)
		}
	}
	return nil
}

func (f Filter) match(parameters, payload map[string]interface{}) bool {
	configured, _ := parameters[f.Parameter].(string)
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return true
	}

	actual := Lookup(payload, f.Path)
	switch f.Kind {
	case KindBool:
		want, err := strconv.ParseBool(configured)
		if err != nil {
			return true
		}
		got, ok := actual.(bool)
		return ok && got == want
	case KindList:
		return anyInCommon(SplitValues(configured), f.listValues(actual), f.CaseSensitive)
	default:
		got, ok := asString(actual)
		if !ok {
			return false
		}
		return MatchValue(configured, got, f.CaseSensitive)
	}
}

func (f Filter) listValues(actual interface{}) []string {
	items, ok := actual.([]interface{})
	if !ok {
		return nil
	}
	values := make([]string, 0, len(items))
	for _, item := range items {
		if f.ListKey != "" {
			obj, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			item = obj[f.ListKey]
		}
		if s, ok := asString(item); ok {
			values = append(values, s)
		}
	}
	return values
}

// MatchValue reports whether actual equals any of the comma-separated
// values in configured. An empty configured string passes vacuously.
func MatchValue(configured, actual string, caseSensitive bool) bool {
	values := SplitValues(configured)
	if len(values) == 0 {
		return true
	}
	for _, v := range values {
		if equal(v, actual, caseSensitive) {
			return true
		}
	}
	return false
}

// SplitValues splits a comma-separated value list, trimming whitespace and
// dropping empty entries.
func SplitValues(configured string) []string {
	parts := strings.Split(configured, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}

// Lookup resolves a dot-separated path inside a nested payload, returning
// nil when any segment is missing.
func Lookup(payload map[string]interface{}, path string) interface{} {
	if path == "" {
		return nil
	}
	var current interface{} = payload
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = obj[segment]
	}
	return current
}

func anyInCommon(configured, actual []string, caseSensitive bool) bool {
	for _, want := range configured {
		for _, got := range actual {
			if equal(want, got, caseSensitive) {
				return true
			}
		}
	}
	return false
}

func equal(a, b string, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

func asString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return "", false
	}
}
