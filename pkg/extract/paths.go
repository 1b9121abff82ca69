package extract

// Path addresses a value inside a decoded JSON document. An empty Path is
// the document root.
type Path []string

// Response shapes, each in priority order. New variants are added here.
var (
	CommentListPaths  = []Path{{"list"}, {"comments"}, {"data", "list"}, {"data", "comments"}}
	SearchListPaths   = []Path{{"list"}, {"data", "list"}}
	TimelineListPaths = []Path{{"statuses"}, {"list"}, {"data", "list"}}
	StatusPaths       = []Path{{"status"}, {"data"}, {}}
	CreatorPaths      = []Path{{"user"}, {}}
)

// Lookup walks the path. It fails on any missing key or non-object hop.
func (p Path) Lookup(raw map[string]any) (any, bool) {
	var cur any = raw
	for _, key := range p {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// FirstList returns the objects of the first path that resolves to a list.
// Non-object elements are skipped. The result is nil when nothing matches.
func FirstList(raw map[string]any, paths []Path) []map[string]any {
	for _, p := range paths {
		v, ok := p.Lookup(raw)
		if !ok {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			continue
		}
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// FirstObject returns the first path that resolves to a non-empty object.
func FirstObject(raw map[string]any, paths []Path) map[string]any {
	for _, p := range paths {
		v, ok := p.Lookup(raw)
		if !ok {
			continue
		}
		if m, ok := v.(map[string]any); ok && len(m) > 0 {
			return m
		}
	}
	return nil
}
