package merge

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/roach88/sessionstore/internal/payload"
)

// Delta is the set of changes one writer made relative to its snapshot.
//
// A Delta describes either a map (changes keyed by field name) or a list
// (changes keyed by position), never both.
type Delta struct {
	fields map[string]entry
	items  map[int]entry
}

// entry is a single changed key. value always holds the writer's full final
// value at that key; nested is set when both sides were containers of the
// same kind and the change could be narrowed to a sub-delta. For list items
// that already existed in the snapshot, prior holds the snapshot value.
type entry struct {
	value  payload.Value
	nested *Delta
	prior  payload.Value
}

// Empty reports whether the delta carries no changes.
func (d *Delta) Empty() bool {
	return d == nil || (len(d.fields) == 0 && len(d.items) == 0)
}

// Len returns the number of changed leaves.
func (d *Delta) Len() int {
	return len(d.Paths())
}

// Paths returns the changed leaves as sorted paths, e.g. "user.name" or
// "cart[2]". Intended for diagnostics.
func (d *Delta) Paths() []string {
	var out []string
	d.collectPaths("", &out)
	slices.Sort(out)
	return out
}

func (d *Delta) collectPaths(prefix string, out *[]string) {
	if d == nil {
		return
	}
	for k, e := range d.fields {
		p := k
		if prefix != "" {
			p = prefix + "." + k
		}
		e.collectPaths(p, out)
	}
	for i, e := range d.items {
		e.collectPaths(prefix+"["+strconv.Itoa(i)+"]", out)
	}
}

func (e entry) collectPaths(path string, out *[]string) {
	if e.nested != nil {
		e.nested.collectPaths(path, out)
		return
	}
	*out = append(*out, path)
}

// String implements fmt.Stringer.
func (d *Delta) String() string {
	return fmt.Sprintf("Delta%v", d.Paths())
}

// Diff returns the changes that turn initial into final, ignoring removals.
//
// For every key of final: a key missing from initial is included as-is; a
// key whose values are both maps (or both lists) is diffed recursively and
// included only when the sub-delta is non-empty; any other key is included
// when the values are not structurally equal. Keys only present in initial
// are handled by RemoveDeleted.
func Diff(final, initial payload.Map) *Delta {
	d := &Delta{fields: make(map[string]entry)}
	for k, fv := range final {
		iv, ok := initial[k]
		if !ok {
			d.fields[k] = entry{value: fv}
			continue
		}
		if e, changed := diffValue(fv, iv); changed {
			d.fields[k] = e
		}
	}
	return d
}

func diffList(final, initial payload.List) *Delta {
	d := &Delta{items: make(map[int]entry)}
	for i, fv := range final {
		if i >= len(initial) {
			d.items[i] = entry{value: fv}
			continue
		}
		if e, changed := diffValue(fv, initial[i]); changed {
			e.prior = initial[i]
			d.items[i] = e
		}
	}
	return d
}

func diffValue(fv, iv payload.Value) (entry, bool) {
	switch f := fv.(type) {
	case payload.Map:
		if i, ok := iv.(payload.Map); ok {
			sub := Diff(f, i)
			if sub.Empty() {
				return entry{}, false
			}
			return entry{value: fv, nested: sub}, true
		}
	case payload.List:
		if i, ok := iv.(payload.List); ok {
			sub := diffList(f, i)
			if sub.Empty() {
				return entry{}, false
			}
			return entry{value: fv, nested: sub}, true
		}
	}
	if payload.Equal(fv, iv) {
		return entry{}, false
	}
	return entry{value: fv}, true
}
