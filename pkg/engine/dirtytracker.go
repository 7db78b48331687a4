package engine

// ListenerKey is the stable opaque handle assigned to a registered
// listener. Keys never collide across removals within a process lifetime
// (see EventStore's listener registry).
type ListenerKey uint64

// dirtyKind discriminates the three DirtyState cases.
type dirtyKind int

const (
	dirtyClean dirtyKind = iota
	dirtyExcept
	dirtyAll
)

// DirtyState records whether a store has pending notifications and, if so,
// which listener (if any) should be excluded because it caused the only
// mutation since the last drain.
type DirtyState struct {
	kind    dirtyKind
	exclude ListenerKey // meaningful only when kind == dirtyExcept
}

// Clean is the zero-notification state.
func Clean() DirtyState { return DirtyState{kind: dirtyClean} }

// DirtyExcept means "notify everyone except exclude".
func DirtyExcept(exclude ListenerKey) DirtyState {
	return DirtyState{kind: dirtyExcept, exclude: exclude}
}

// DirtyAll means "notify everyone".
func DirtyAll() DirtyState { return DirtyState{kind: dirtyAll} }

// IsClean reports whether the state carries no pending notification.
func (s DirtyState) IsClean() bool { return s.kind == dirtyClean }

// transition implements the DirtyTracker state-transition table (spec
// §4.4), carried over verbatim from the original Rust mark_dirty match
// arms: the modifier is the listener key that caused this particular
// mutation, or None/zero-value-with-ok-false if unattributed.
func (s DirtyState) transition(modifier ListenerKey, hasModifier bool) DirtyState {
	switch s.kind {
	case dirtyClean:
		if hasModifier {
			return DirtyExcept(modifier)
		}
		return DirtyAll()
	case dirtyExcept:
		if hasModifier && modifier == s.exclude {
			return s
		}
		return DirtyAll()
	default: // dirtyAll
		return DirtyAll()
	}
}

// DirtyTracker wraps any store with a dirty flag and a "loaded at least
// once" marker. T is typically a StreamStore[D].
type DirtyTracker[T any] struct {
	store             T
	state             DirtyState
	loadedAtLeastOnce bool
}

// NewDirtyTracker wraps store. A freshly created stream is itself a
// mutation that warrants a notification to everyone, so the initial state
// is DirtyAll, not Clean.
func NewDirtyTracker[T any](store T) *DirtyTracker[T] {
	return &DirtyTracker[T]{store: store, state: DirtyAll()}
}

// Store returns read-only access without marking anything dirty.
func (d *DirtyTracker[T]) Store() T { return d.store }

// State returns the current dirty state (for drain).
func (d *DirtyTracker[T]) State() DirtyState { return d.state }

// LoadedAtLeastOnce reports whether MarkLoaded has ever fired.
func (d *DirtyTracker[T]) LoadedAtLeastOnce() bool { return d.loadedAtLeastOnce }

// MarkLoaded marks the store as having been loaded at least once, which is
// itself a mutation the first time it happens, and reports whether it just
// transitioned (i.e. whether this was the first call).
func (d *DirtyTracker[T]) MarkLoaded(modifier ListenerKey, hasModifier bool) bool {
	if d.loadedAtLeastOnce {
		return false
	}
	d.loadedAtLeastOnce = true
	d.markDirty(modifier, hasModifier)
	return true
}

// markDirty applies the transition table for one mutation attributed to
// modifier (or unattributed if hasModifier is false).
func (d *DirtyTracker[T]) markDirty(modifier ListenerKey, hasModifier bool) {
	d.state = d.state.transition(modifier, hasModifier)
}

// Handle is returned by StoreMut: reading via Handle.Peek() is free; each
// call to Handle.ForWrite() marks the tracker dirty per the transition
// table, using modifier as the exclude key. This is the Go idiom for the
// Rust DirtyOnDerefMut smart pointer — Go has no deref-overload, so the
// "mark on first mutable access" behaviour is expressed as an explicit
// method instead of a DerefMut side effect. Call ForWrite once per logical
// mutation; calling it again for the same acquisition re-applies the same
// modifier (idempotent under the transition table's own DirtyExcept(k)
// case) so it is always safe to call before every write.
type Handle[T any] struct {
	tracker     *DirtyTracker[T]
	modifier    ListenerKey
	hasModifier bool
}

// ForWrite marks the underlying tracker dirty (per the transition table)
// and returns the wrapped store for mutation.
func (h Handle[T]) ForWrite() T {
	h.tracker.markDirty(h.modifier, h.hasModifier)
	return h.tracker.store
}

// Peek returns the wrapped store without marking anything dirty.
func (h Handle[T]) Peek() T { return h.tracker.store }

// StoreMut acquires a write handle scoped to modifier. Pass hasModifier =
// false for an unattributed mutation (notify everyone unconditionally,
// e.g. stream creation).
func (d *DirtyTracker[T]) StoreMut(modifier ListenerKey, hasModifier bool) Handle[T] {
	return Handle[T]{tracker: d, modifier: modifier, hasModifier: hasModifier}
}

// SetStore replaces the wrapped value without changing the dirty state.
func (d *DirtyTracker[T]) SetStore(store T) { d.store = store }
