package statetree

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

// Diff walks old and new recursively and returns the changes that turn old into new.
//
// Objects recurse on the union of their keys in sorted order: keys only in new
// are adds, keys only in old are removes. Arrays recurse by index the same way.
// Any other pair that is not equal is a replace. Paths are dot-joined.
func Diff(oldV, newV Value) []models.DeltaChange {
	changes := []models.DeltaChange{}
	diffInto(&changes, "", oldV, newV)
	return changes
}

func diffInto(out *[]models.DeltaChange, path string, a, b Value) {
	switch {
	case a.kind == KindObject && b.kind == KindObject:
		for _, k := range unionKeys(a.obj, b.obj) {
			av, inA := a.obj[k]
			bv, inB := b.obj[k]
			p := joinPath(path, k)
			switch {
			case inA && inB:
				diffInto(out, p, av, bv)
			case inB:
				*out = append(*out, models.DeltaChange{Path: p, Op: models.OpAdd, Value: bv.Canonical()})
			default:
				*out = append(*out, models.DeltaChange{Path: p, Op: models.OpRemove, OldValue: av.Canonical()})
			}
		}

	case a.kind == KindArray && b.kind == KindArray:
		n := len(a.arr)
		if len(b.arr) > n {
			n = len(b.arr)
		}
		for i := 0; i < n; i++ {
			p := joinPath(path, strconv.Itoa(i))
			switch {
			case i < len(a.arr) && i < len(b.arr):
				diffInto(out, p, a.arr[i], b.arr[i])
			case i < len(b.arr):
				*out = append(*out, models.DeltaChange{Path: p, Op: models.OpAdd, Value: b.arr[i].Canonical()})
			default:
				*out = append(*out, models.DeltaChange{Path: p, Op: models.OpRemove, OldValue: a.arr[i].Canonical()})
			}
		}

	default:
		if !a.Equal(b) {
			*out = append(*out, models.DeltaChange{
				Path:     path,
				Op:       models.OpReplace,
				Value:    b.Canonical(),
				OldValue: a.Canonical(),
			})
		}
	}
}

// Apply replays changes produced by Diff on top of base and returns the result.
// base is not modified. Keys containing dots cannot be addressed.
func Apply(base Value, changes []models.DeltaChange) (Value, error) {
	out := base
	for _, c := range changes {
		var segments []string
		if c.Path != "" {
			segments = strings.Split(c.Path, ".")
		}

		var err error
		out, err = applyAt(out, segments, c)
		if err != nil {
			return Value{}, fmt.Errorf("applying %s %q: %w", c.Op, c.Path, err)
		}
	}
	return out, nil
}

func applyAt(node Value, segments []string, c models.DeltaChange) (Value, error) {
	if len(segments) == 0 {
		if c.Op != models.OpReplace {
			return Value{}, fmt.Errorf("op %s at root", c.Op)
		}
		return Parse(c.Value)
	}

	key, rest := segments[0], segments[1:]

	switch node.kind {
	case KindObject:
		obj := make(map[string]Value, len(node.obj)+1)
		for k, v := range node.obj {
			obj[k] = v
		}

		if len(rest) == 0 && c.Op != models.OpReplace {
			switch c.Op {
			case models.OpAdd:
				v, err := Parse(c.Value)
				if err != nil {
					return Value{}, err
				}
				obj[key] = v
			case models.OpRemove:
				delete(obj, key)
			default:
				return Value{}, fmt.Errorf("unknown op %s", c.Op)
			}
			return Value{kind: KindObject, obj: obj}, nil
		}

		child, ok := obj[key]
		if !ok {
			return Value{}, fmt.Errorf("missing key %q", key)
		}
		updated, err := applyAt(child, rest, c)
		if err != nil {
			return Value{}, err
		}
		obj[key] = updated
		return Value{kind: KindObject, obj: obj}, nil

	case KindArray:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			return Value{}, fmt.Errorf("bad index %q", key)
		}
		arr := append([]Value(nil), node.arr...)

		if len(rest) == 0 && c.Op != models.OpReplace {
			switch c.Op {
			case models.OpAdd:
				if idx != len(arr) {
					return Value{}, fmt.Errorf("add at index %d of %d", idx, len(arr))
				}
				v, err := Parse(c.Value)
				if err != nil {
					return Value{}, err
				}
				arr = append(arr, v)
			case models.OpRemove:
				// trailing removes arrive in ascending order; the first one truncates
				if idx < len(arr) {
					arr = arr[:idx]
				}
			default:
				return Value{}, fmt.Errorf("unknown op %s", c.Op)
			}
			return Value{kind: KindArray, arr: arr}, nil
		}

		if idx >= len(arr) {
			return Value{}, fmt.Errorf("index %d out of range", idx)
		}
		updated, err := applyAt(arr[idx], rest, c)
		if err != nil {
			return Value{}, err
		}
		arr[idx] = updated
		return Value{kind: KindArray, arr: arr}, nil

	default:
		return Value{}, fmt.Errorf("cannot descend into %s", node.kind)
	}
}

func unionKeys(a, b map[string]Value) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
