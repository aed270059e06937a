package cactus

import (
	"fmt"
	"sync"
)

// State is the lifecycle state of a model handle.
type State int

const (
	StateUnloaded State = iota
	StateDownloading
	StateDownloaded
	StateInitializing
	StateReady
	StateGenerating
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateDownloading:
		return "downloading"
	case StateDownloaded:
		return "downloaded"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateGenerating:
		return "generating"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Op is a mutating operation on a handle.
type Op int

const (
	OpDownload Op = iota
	OpInitialize
	OpGenerate
	// OpRemote is a generation served by the cloud endpoint. It needs no loaded model.
	OpRemote
)

func (o Op) String() string {
	switch o {
	case OpDownload:
		return "download"
	case OpInitialize:
		return "initialize"
	case OpGenerate:
		return "generate"
	case OpRemote:
		return "remote"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// ticket identifies one in-flight operation.
type ticket struct {
	op    Op
	epoch uint64
	prev  State
	done  chan struct{}
}

// machine is the single-writer lifecycle of one handle.
//
// A stable state is kept between operations; while an operation runs, State
// reports its transient state. reset moves to StateUnloaded and advances the
// epoch so tickets issued before it cannot change the state when they end.
type machine struct {
	mu     sync.Mutex
	stable State
	cur    *ticket
	epoch  uint64
}

func (m *machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return m.stable
	}
	switch m.cur.op {
	case OpDownload:
		return StateDownloading
	case OpInitialize:
		return StateInitializing
	default:
		return StateGenerating
	}
}

// Stable returns the state the handle returns to once no operation is in flight.
func (m *machine) Stable() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stable
}

func (m *machine) begin(op Op) (*ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != nil {
		return nil, fmt.Errorf("%w: %s while %s is running", ErrBusy, op, m.cur.op)
	}

	switch op {
	case OpDownload:
		// allowed from every stable state
	case OpInitialize:
		if m.stable != StateDownloaded && m.stable != StateReady {
			return nil, fmt.Errorf("%w: cannot initialize while %s", ErrNotDownloaded, m.stable)
		}
	case OpGenerate:
		if m.stable != StateReady {
			return nil, fmt.Errorf("%w: handle is %s", ErrNotInitialized, m.stable)
		}
	case OpRemote:
	default:
		return nil, fmt.Errorf("%w: unknown operation %d", ErrInvalidState, int(op))
	}

	m.cur = &ticket{op: op, epoch: m.epoch, prev: m.stable, done: make(chan struct{})}
	return m.cur, nil
}

// end releases the in-flight slot and applies the transition for the outcome.
func (m *machine) end(t *ticket, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == t {
		m.cur = nil
	}
	defer close(t.done)

	if t.epoch != m.epoch {
		return
	}

	switch t.op {
	case OpDownload:
		switch {
		case err == nil && t.prev == StateReady:
			m.stable = StateReady
		case err == nil:
			m.stable = StateDownloaded
		case t.prev == StateReady:
			m.stable = StateReady
		default:
			m.stable = StateUnloaded
		}
	case OpInitialize:
		if err == nil {
			m.stable = StateReady
		} else {
			m.stable = StateDownloaded
		}
	case OpGenerate:
		m.stable = StateReady
	case OpRemote:
		m.stable = t.prev
	}
}

// reset forces StateUnloaded and returns a channel closed when the operation
// that was in flight, if any, has ended.
func (m *machine) reset() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	m.stable = StateUnloaded
	if m.cur == nil {
		return nil
	}
	return m.cur.done
}

// current reports whether t still belongs to the live epoch.
func (m *machine) current(t *ticket) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return t.epoch == m.epoch
}

// tokenGate delivers tokens of one request until it is closed.
// close waits for a delivery in progress, so no token is seen after it returns.
type tokenGate struct {
	mu   sync.Mutex
	fn   TokenFunc
	open bool
}

func newTokenGate(fn TokenFunc) *tokenGate {
	return &tokenGate{fn: fn, open: fn != nil}
}

func (g *tokenGate) deliver(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		g.fn(token)
	}
}

func (g *tokenGate) close() {
	g.mu.Lock()
	g.open = false
	g.mu.Unlock()
}
