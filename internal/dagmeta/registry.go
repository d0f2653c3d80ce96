package dagmeta

// Registry owns every active DAG (spec §4.B). Exclusively accessed from the
// manager context (spec §5) — the simulator never reaches into it.
type Registry struct {
	byID   map[int]*DAG
	active []int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[int]*DAG)}
}

// Admit adds a newly-loaded DAG, appending its id to the active list (spec
// §4.B: iteration order of the list is the manager loop's tick order).
func (r *Registry) Admit(d *DAG) {
	r.byID[d.ID] = d
	r.active = append(r.active, d.ID)
}

// Lookup returns the DAG for id, or false if unknown (a completion
// referencing an unknown dag_id is logged and skipped per spec §7, not
// treated as an error here).
func (r *Registry) Lookup(id int) (*DAG, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// Retire removes id from both the map and the active list, preserving the
// invariant that the map's keyset equals the list's value-set at every
// quiescent point (spec §4.B).
func (r *Registry) Retire(id int) {
	delete(r.byID, id)
	for i, v := range r.active {
		if v == id {
			r.active = append(r.active[:i], r.active[i+1:]...)
			break
		}
	}
}

// IterActive returns the active dag_ids in tick order. Callers must treat
// the returned slice as a snapshot: Retire calls made while ranging over it
// do not retroactively affect the current iteration (spec §9 snapshot
// discipline).
func (r *Registry) IterActive() []int {
	out := make([]int, len(r.active))
	copy(out, r.active)
	return out
}

// Len reports the number of active DAGs.
func (r *Registry) Len() int { return len(r.active) }
