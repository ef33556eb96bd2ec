package computed

import (
	"strings"

	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/projection"
)

// NullMarker is a pseudo column appended to every relation of a flattened
// projection. It is non-nil whenever the related record exists, so a
// related record whose columns are all null is told apart from a missing one.
const NullMarker = "__nullMarker"

// WithNullMarkers adds a marker path for every relation prefix in paths.
func WithNullMarkers(paths []string) projection.Projection {
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		out = append(out, path)
		parts := strings.Split(path, ":")
		for i := 1; i < len(parts); i++ {
			out = append(out, strings.Join(parts[:i], ":")+":"+NullMarker)
		}
	}
	return projection.New(out...)
}

func isMarker(path string) bool {
	return path == NullMarker || strings.HasSuffix(path, ":"+NullMarker)
}

// Flatten turns records into one column of values per path.
func Flatten(records []map[string]any, paths []string) [][]any {
	out := make([][]any, len(paths))
	for i, path := range paths {
		values := make([]any, len(records))
		for j, r := range records {
			if r == nil {
				continue
			}
			if isMarker(path) {
				parent := strings.TrimSuffix(strings.TrimSuffix(path, NullMarker), ":")
				if related, ok := ir.FieldValue(r, parent).(map[string]any); ok && related != nil {
					values[j] = true
				}
				continue
			}
			values[j] = ir.FieldValue(r, path)
		}
		out[i] = values
	}
	return out
}

// Unflatten rebuilds records from columns produced by Flatten. Related
// records whose values are all nil become nil. Top-level records are always
// returned.
func Unflatten(flats [][]any, p projection.Projection) []map[string]any {
	return unflatten(flats, p, true)
}

func unflatten(flats [][]any, p projection.Projection, top bool) []map[string]any {
	n := 0
	if len(flats) > 0 {
		n = len(flats[0])
	}
	index := make(map[string]int, len(p))
	for i, path := range p {
		index[path] = i
	}
	records := make([]map[string]any, n)
	for j := range records {
		records[j] = map[string]any{}
	}
	for _, col := range p.Columns() {
		for j, v := range flats[index[col]] {
			records[j][col] = v
		}
	}
	for relation, sub := range p.Relations() {
		subFlats := make([][]any, len(sub))
		for i, path := range sub {
			subFlats[i] = flats[index[relation+":"+path]]
		}
		for j, r := range unflatten(subFlats, sub, false) {
			if r == nil {
				records[j][relation] = nil
				continue
			}
			records[j][relation] = r
		}
	}
	if top {
		return records
	}
	for j, r := range records {
		empty := true
		for _, v := range r {
			if v != nil {
				empty = false
				break
			}
		}
		if empty {
			records[j] = nil
		}
	}
	return records
}

func stripMarkers(r map[string]any) map[string]any {
	if r == nil {
		return nil
	}
	delete(r, NullMarker)
	for _, v := range r {
		if sub, ok := v.(map[string]any); ok {
			stripMarkers(sub)
		}
	}
	return r
}

// transformUnique calls fn once per distinct non-nil input and spreads the
// outputs back. Nil inputs produce nil outputs.
func transformUnique(inputs []map[string]any, fn func(unique []map[string]any) ([]any, error)) ([]any, error) {
	mapping := make([]int, len(inputs))
	positions := map[string]int{}
	var unique []map[string]any
	for i, in := range inputs {
		if in == nil {
			mapping[i] = -1
			continue
		}
		key, err := ir.ValueKey(in)
		if err != nil {
			return nil, err
		}
		pos, seen := positions[key]
		if !seen {
			pos = len(unique)
			positions[key] = pos
			unique = append(unique, in)
		}
		mapping[i] = pos
	}
	outputs, err := fn(unique)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(inputs))
	for i, pos := range mapping {
		if pos >= 0 && pos < len(outputs) {
			out[i] = outputs[pos]
		}
	}
	return out, nil
}
