package surface

// Registry records which node kind every identifier was registered under.
type Registry struct {
	sets [kindCount]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for k := range r.sets {
		r.sets[k] = make(map[string]struct{})
	}
	return r
}

// Identify returns the kind id was registered under.
func (r *Registry) Identify(id string) (NodeKind, bool) {
	for k, set := range r.sets {
		if _, ok := set[id]; ok {
			return NodeKind(k), true
		}
	}
	return 0, false
}

// IsOfKind reports whether id is registered under kind.
func (r *Registry) IsOfKind(id string, kind NodeKind) bool {
	if kind >= kindCount {
		return false
	}
	_, ok := r.sets[kind][id]
	return ok
}

// Len returns how many identifiers are registered under kind.
func (r *Registry) Len(kind NodeKind) int {
	if kind >= kindCount {
		return 0
	}
	return len(r.sets[kind])
}

// IDs returns the identifiers registered under kind, in no particular order.
func (r *Registry) IDs(kind NodeKind) []string {
	if kind >= kindCount {
		return nil
	}
	ids := make([]string, 0, len(r.sets[kind]))
	for id := range r.sets[kind] {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) add(id string, kind NodeKind) {
	r.sets[kind][id] = struct{}{}
}

func (r *Registry) remove(id string) {
	for _, set := range r.sets {
		delete(set, id)
	}
}

// Warnings counts inputs the graph refused.
type Warnings struct {
	// EmptyIDs counts node registrations with an empty identifier, per kind.
	EmptyIDs map[NodeKind]int
	// KindConflicts counts identifiers re-registered under a different kind.
	KindConflicts int
	// DanglingEdges counts edges that referenced an unregistered endpoint.
	DanglingEdges int
	// SelfLoops counts edges whose endpoints were the same node.
	SelfLoops int
}

func newWarnings() Warnings {
	return Warnings{EmptyIDs: make(map[NodeKind]int)}
}

// Total sums every warning counter.
func (w Warnings) Total() int {
	n := w.KindConflicts + w.DanglingEdges + w.SelfLoops
	for _, c := range w.EmptyIDs {
		n += c
	}
	return n
}

func (w Warnings) clone() Warnings {
	c := w
	c.EmptyIDs = make(map[NodeKind]int, len(w.EmptyIDs))
	for k, v := range w.EmptyIDs {
		c.EmptyIDs[k] = v
	}
	return c
}
