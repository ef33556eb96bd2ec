package filter

// Page selects a window of records. A zero Limit means no limit.
type Page struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

// Apply returns the window of records selected by p.
func (p Page) Apply(records []map[string]any) []map[string]any {
	if p.Skip >= len(records) {
		return []map[string]any{}
	}
	out := records[max(p.Skip, 0):]
	if p.Limit > 0 && p.Limit < len(out) {
		out = out[:p.Limit]
	}
	return out
}
