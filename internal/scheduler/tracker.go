package scheduler

type nodeState int

const (
	idle nodeState = iota
	queued
	running
)

// Tracker records which nodes are queued or running. It is not
// synchronized; the graph calls it with its lock held.
type Tracker struct {
	states []nodeState
	dirty  []bool
	active int
	submit func(node int)
}

// NewTracker creates a tracker for n nodes. submit hands a node to the
// executor; it is called at most once per node until the node finishes, so
// a channel buffered for n nodes never blocks.
func NewTracker(n int, submit func(node int)) *Tracker {
	return &Tracker{states: make([]nodeState, n), dirty: make([]bool, n), submit: submit}
}

// Notify reports that the inputs of node may have changed.
func (t *Tracker) Notify(node int) {
	switch t.states[node] {
	case idle:
		t.states[node] = queued
		t.active++
		t.submit(node)
	case running:
		t.dirty[node] = true
	}
}

// Begin marks a queued node as running.
func (t *Tracker) Begin(node int) {
	t.states[node] = running
	t.dirty[node] = false
}

// End marks a running node as finished. The node is queued again when again
// is set or when it was notified while running.
func (t *Tracker) End(node int, again bool) {
	t.states[node] = idle
	t.active--
	if again || t.dirty[node] {
		t.dirty[node] = false
		t.Notify(node)
	}
}

// Running reports whether node is currently running.
func (t *Tracker) Running(node int) bool { return t.states[node] == running }

// Idle reports whether no node is queued or running.
func (t *Tracker) Idle() bool { return t.active == 0 }

// Active returns the number of queued or running nodes.
func (t *Tracker) Active() int { return t.active }
