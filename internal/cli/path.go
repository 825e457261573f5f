package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/sessionstore/internal/payload"
)

// splitField turns a dotted field path like "user.name" into its segments.
func splitField(field string) ([]string, error) {
	parts := strings.Split(field, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid field path %q", field)
		}
	}
	return parts, nil
}

// setField stores v at path, creating intermediate maps. A non-map value in
// the way is replaced.
func setField(m payload.Map, path []string, v payload.Value) {
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(payload.Map)
		if !ok {
			next = payload.Map{}
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}

// unsetField removes the value at path and reports whether it existed.
func unsetField(m payload.Map, path []string) bool {
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(payload.Map)
		if !ok {
			return false
		}
		m = next
	}
	last := path[len(path)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	delete(m, last)
	return true
}
