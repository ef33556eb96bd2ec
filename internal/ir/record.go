package ir

import "strings"

// FieldValue reads a "relation:field" path from a nested record.
// Missing segments and nil relations yield nil.
func FieldValue(record map[string]any, path string) any {
	var current any = record
	for _, segment := range strings.Split(path, ":") {
		m, ok := current.(map[string]any)
		if !ok || m == nil {
			return nil
		}
		current = m[segment]
	}
	return current
}

// SetFieldValue writes a "relation:field" path, creating intermediate maps.
func SetFieldValue(record map[string]any, path string, value any) {
	head, rest, nested := strings.Cut(path, ":")
	if !nested {
		record[head] = value
		return
	}
	sub, ok := record[head].(map[string]any)
	if !ok || sub == nil {
		sub = map[string]any{}
		record[head] = sub
	}
	SetFieldValue(sub, rest, value)
}

// CloneRecord deep-copies nested record maps. Leaf values are shared.
func CloneRecord(record map[string]any) map[string]any {
	if record == nil {
		return nil
	}
	out := make(map[string]any, len(record))
	for k, v := range record {
		if m, ok := v.(map[string]any); ok {
			out[k] = CloneRecord(m)
		} else {
			out[k] = v
		}
	}
	return out
}
