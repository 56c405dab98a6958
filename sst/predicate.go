package sst

// Kind distinguishes a predicate that keeps firing (Recurrent) from one
// that fires once and deregisters itself (OneShot), per spec §6's
// `predicates.insert(pred, trig, kind)`. OneShot predicates are how GMS
// view installation implements its wait-for-meta-wedged and
// wait-for-global-min continuations (spec §4.4 steps 5-6).
type Kind int

const (
	Recurrent Kind = iota
	OneShot
)

// Predicate inspects the table (typically reading other ranks' rows) and
// reports whether its Trigger should run.
type Predicate func(t Table) bool

// Trigger runs when its Predicate evaluates true. Triggers normally mutate
// this node's own row and then call Put to publish the change.
type Trigger func(t Table)

// Handle identifies a registered predicate/trigger pair, for Remove.
type Handle int

type binding struct {
	pred Predicate
	trig Trigger
	kind Kind
	live bool
}

// Registry holds one node's installed predicate/trigger pairs, evaluated
// in registration order by that node's single evaluator goroutine.
type Registry struct {
	bindings []*binding
	nextID   Handle
	ids      map[Handle]*binding
}

// NewRegistry returns an empty predicate registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[Handle]*binding)}
}

// Insert registers pred/trig and returns a Handle for later Remove calls.
func (r *Registry) Insert(pred Predicate, trig Trigger, kind Kind) Handle {
	b := &binding{pred: pred, trig: trig, kind: kind, live: true}
	r.bindings = append(r.bindings, b)
	h := r.nextID
	r.nextID++
	r.ids[h] = b
	return h
}

// Remove deregisters a predicate. Safe to call from within the predicate's
// own trigger (e.g. a OneShot predicate removing itself).
func (r *Registry) Remove(h Handle) {
	if b, ok := r.ids[h]; ok {
		b.live = false
		delete(r.ids, h)
	}
}

// RemoveAllExcept deregisters every predicate except those in keep. GMS view
// installation step 1 ("Remove all GMS predicates except suspicion") uses
// this to tear down the proposal/ack/commit predicates while installation
// runs.
func (r *Registry) RemoveAllExcept(keep ...Handle) {
	keepSet := make(map[Handle]bool, len(keep))
	for _, h := range keep {
		keepSet[h] = true
	}
	for h, b := range r.ids {
		if !keepSet[h] {
			b.live = false
			delete(r.ids, h)
		}
	}
}

// evaluate runs every live binding, in registration order, against t. A
// binding that fires and is OneShot is removed after its trigger runs.
func (r *Registry) evaluate(t Table) {
	// snapshot so a trigger inserting/removing bindings mid-evaluation
	// doesn't corrupt this pass
	snapshot := append([]*binding(nil), r.bindings...)

	// live must not alias r.bindings's backing array: a trigger can call
	// Insert reentrantly (e.g. install.go's chained one-shot
	// continuations), which appends to r.bindings while this loop is
	// still walking snapshot. Reusing r.bindings[:0] as scratch space
	// would let that reentrant append land in a slot this loop later
	// overwrites or never reaches, silently dropping the new binding.
	live := make([]*binding, 0, len(snapshot))
	for _, b := range snapshot {
		if !b.live {
			continue
		}
		if b.pred(t) {
			b.trig(t)
			if b.kind == OneShot {
				b.live = false
				delete(r.ids, r.handleOf(b))
				continue
			}
		}
		live = append(live, b)
	}

	// A trigger above may have called Insert reentrantly (install.go's
	// chained one-shot continuations do exactly this: a trigger running
	// inside this very evaluate() call registers the next stage's
	// predicate). Those land in r.bindings past index len(snapshot) and
	// aren't represented in snapshot or live yet; carry them forward
	// instead of letting the assignment below discard them.
	if len(r.bindings) > len(snapshot) {
		for _, b := range r.bindings[len(snapshot):] {
			if b.live {
				live = append(live, b)
			}
		}
	}
	r.bindings = live
}

func (r *Registry) handleOf(target *binding) Handle {
	for h, b := range r.ids {
		if b == target {
			return h
		}
	}
	return -1
}
