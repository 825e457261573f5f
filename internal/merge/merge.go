package merge

import (
	"slices"

	"github.com/roach88/sessionstore/internal/payload"
)

// Resolve reconciles a writer's intended state with the latest persisted
// state. See the package documentation for the algorithm.
func Resolve(initial, final, current payload.Map) payload.Map {
	return RemoveDeleted(Merge(current, Diff(final, initial)), initial, final)
}

// Merge overlays d onto a copy of current.
//
// Named keys overwrite, except when both the existing and incoming values
// are maps, which merge recursively. Positional changes are appended to the
// target sequence, unless the slot still holds exactly what the writer
// originally read, in which case it is replaced in place.
func Merge(current payload.Map, d *Delta) payload.Map {
	out := current.Clone()
	if out == nil {
		out = payload.Map{}
	}
	if d.Empty() {
		return out
	}
	mergeFields(out, d)
	return out
}

func mergeFields(target payload.Map, d *Delta) {
	for _, k := range sortedFields(d) {
		e := d.fields[k]
		existing, ok := target[k]
		if !ok {
			target[k] = payload.Clone(e.value)
			continue
		}
		target[k] = mergeEntry(existing, e)
	}
}

func mergeItems(target payload.List, d *Delta) payload.List {
	for _, i := range sortedItems(d) {
		e := d.items[i]
		if e.prior != nil && i < len(target) && payload.Equal(target[i], e.prior) {
			target[i] = payload.Clone(e.value)
			continue
		}
		target = append(target, payload.Clone(e.value))
	}
	return target
}

func mergeEntry(existing payload.Value, e entry) payload.Value {
	if e.nested != nil {
		switch ex := existing.(type) {
		case payload.Map:
			if e.nested.fields != nil {
				mergeFields(ex, e.nested)
				return ex
			}
		case payload.List:
			if e.nested.items != nil {
				return mergeItems(ex, e.nested)
			}
		}
		return payload.Clone(e.value)
	}
	return mergeValues(existing, e.value)
}

// mergeValues overlays a whole incoming value onto existing. Maps merge
// key by key, lists concatenate, anything else is replaced.
func mergeValues(existing, incoming payload.Value) payload.Value {
	switch in := incoming.(type) {
	case payload.Map:
		if ex, ok := existing.(payload.Map); ok {
			for _, k := range in.SortedKeys() {
				if cur, exists := ex[k]; exists {
					ex[k] = mergeValues(cur, in[k])
				} else {
					ex[k] = payload.Clone(in[k])
				}
			}
			return ex
		}
	case payload.List:
		if ex, ok := existing.(payload.List); ok {
			return append(ex, in.Clone()...)
		}
	}
	return payload.Clone(incoming)
}

// RemoveDeleted returns a copy of merged without the keys that were present
// in initial but are absent from final at the same path.
//
// Nested containers are walked rather than deleted wholesale: only the keys
// the writer knew about are removed, and a container the writer dropped
// entirely disappears once nothing else is left in it.
func RemoveDeleted(merged, initial, final payload.Map) payload.Map {
	out := merged.Clone()
	if out == nil {
		out = payload.Map{}
	}
	removeFields(out, initial, final)
	return out
}

func removeFields(target, initial, final payload.Map) {
	for k, iv := range initial {
		cur, ok := target[k]
		if !ok {
			continue
		}
		fv, kept := final[k]
		v, remove := prune(cur, iv, fv, kept)
		if remove {
			delete(target, k)
			continue
		}
		target[k] = v
	}
}

func removeItems(target, initial, final payload.List) payload.List {
	out := make(payload.List, 0, len(target))
	for i, cur := range target {
		if i < len(initial) {
			kept := i < len(final)
			var fv payload.Value
			if kept {
				fv = final[i]
			}
			v, remove := prune(cur, initial[i], fv, kept)
			if remove {
				continue
			}
			cur = v
		}
		out = append(out, cur)
	}
	return out
}

// prune applies the removal rules to one key. It returns the possibly
// rewritten value and whether the key itself must go.
func prune(cur, initial, final payload.Value, kept bool) (payload.Value, bool) {
	switch iv := initial.(type) {
	case payload.Map:
		cm, ok := cur.(payload.Map)
		if !ok {
			return cur, false
		}
		fm, _ := final.(payload.Map)
		removeFields(cm, iv, fm)
		return cm, !kept && len(cm) == 0
	case payload.List:
		cl, ok := cur.(payload.List)
		if !ok {
			return cur, false
		}
		fl, _ := final.(payload.List)
		cl = removeItems(cl, iv, fl)
		return cl, !kept && len(cl) == 0
	default:
		return cur, !kept
	}
}

func sortedFields(d *Delta) []string {
	keys := make([]string, 0, len(d.fields))
	for k := range d.fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func sortedItems(d *Delta) []int {
	idx := make([]int, 0, len(d.items))
	for i := range d.items {
		idx = append(idx, i)
	}
	slices.Sort(idx)
	return idx
}
