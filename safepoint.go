package pawgraph

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SafepointAction runs exactly once per participating thread while every
// participant is suspended at a poll point. Invocations for different
// threads may run concurrently; they only interact through resources the
// action itself shares (the walker hands every invocation one lock-guarded
// accumulator).
type SafepointAction func(t *ThreadContext)

// safepointPhase is the protocol state of one request:
// Requested (threads converging on the barrier), Executing (all paused,
// actions running), Resuming (threads released).
type safepointPhase int

const (
	phaseRequested safepointPhase = iota
	phaseExecuting
	phaseResuming
)

// SafepointRequest is one pending pause, scoped to a single capture
type SafepointRequest struct {
	action           SafepointAction
	includeInitiator bool
	initiator        *ThreadContext
	expected         map[int]*ThreadContext // participants, excluding the initiator
	arrived          map[int]bool
	done             int
	exited           int
	phase            safepointPhase
	aborted          bool
	timedOut         bool
}

// SafepointManager pauses every registered thread at a cooperative poll
// point, runs an action once per thread, and resumes them. There is no
// VM-native safepoint instruction: threads check an atomic pending flag at
// their poll points and park on a condition barrier when one is set.
type SafepointManager struct {
	mu        sync.Mutex
	cond      *sync.Cond
	captureMu sync.Mutex  // serializes captures from distinct initiators
	pending   atomic.Bool // fast-path poll flag
	req       *SafepointRequest
	threads   ThreadRegistry
	timeout   time.Duration
	logger    *Logger
}

// NewSafepointManager creates a manager over the given thread registry
func NewSafepointManager(threads ThreadRegistry, timeout time.Duration, logger *Logger) *SafepointManager {
	m := &SafepointManager{
		threads: threads,
		timeout: timeout,
		logger:  logger,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Poll is the poll-point check. Cheap when no safepoint is pending.
func (m *SafepointManager) Poll(t *ThreadContext) {
	if !m.pending.Load() {
		return
	}
	m.enter(t)
}

// PauseAllThreadsAndExecute pauses every registered thread and runs action
// once per thread, optionally including the initiator, then resumes all.
// Returns only after every participant has resumed. A thread that never
// reaches its poll point within the manager's timeout yields a
// LivenessError naming it; already-paused threads are released first.
// A call from a thread already inside a safepoint yields a ReentrancyError.
func (m *SafepointManager) PauseAllThreadsAndExecute(initiator *ThreadContext, includeInitiator bool, action SafepointAction) error {
	return m.pauseAndExecute(initiator, includeInitiator, action, nil)
}

// WhileIdle runs fn while no capture is active, blocking new captures for
// its duration. Used to fence thread registration against an in-flight pause.
func (m *SafepointManager) WhileIdle(fn func()) {
	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	fn()
}

// ThreadExiting accounts for a thread leaving the registry while a request
// is converging: a participant that exits before arriving is removed from
// the barrier instead of timing the capture out.
func (m *SafepointManager) ThreadExiting(t *ThreadContext) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req := m.req
	if req == nil {
		return
	}
	if _, ok := req.expected[t.id]; !ok {
		return
	}
	if req.arrived[t.id] {
		// Blocked at the barrier; it cannot be exiting.
		return
	}

	delete(req.expected, t.id)
	m.logger.DebugCat(CatSafepoint, "%s exited before reaching the barrier, removed from safepoint", t.Name())
	m.cond.Broadcast()
}

// pauseAndExecute is the full protocol. The optional epilogue runs on the
// initiating thread after every action has completed and strictly before any
// participant is released - the walker drains its work-list there so no
// resumed thread can mutate the heap mid-walk.
func (m *SafepointManager) pauseAndExecute(initiator *ThreadContext, includeInitiator bool, action SafepointAction, epilogue func()) error {
	if initiator == nil {
		return fmt.Errorf("safepoint initiator thread is required")
	}

	m.mu.Lock()
	if initiator.inSafepoint {
		m.mu.Unlock()
		return &ReentrancyError{Thread: initiator.Name()}
	}
	m.mu.Unlock()

	// Serialize with any capture in progress, but keep polling while
	// waiting: the initiator may itself be a participant of that capture,
	// and parking here without polling would stall its barrier.
	for !m.captureMu.TryLock() {
		m.Poll(initiator)
		time.Sleep(50 * time.Microsecond)
	}
	defer m.captureMu.Unlock()

	m.mu.Lock()
	req := &SafepointRequest{
		action:           action,
		includeInitiator: includeInitiator,
		initiator:        initiator,
		expected:         make(map[int]*ThreadContext),
		arrived:          make(map[int]bool),
		phase:            phaseRequested,
	}
	for _, t := range m.threads.LiveThreads() {
		if t != initiator {
			req.expected[t.id] = t
		}
	}
	m.req = req
	initiator.inSafepoint = true
	m.pending.Store(true)
	m.logger.DebugCat(CatSafepoint, "Safepoint requested by %s, %d participants", initiator.Name(), len(req.expected))

	timer := time.AfterFunc(m.timeout, func() {
		m.mu.Lock()
		if m.req == req && req.phase == phaseRequested {
			req.timedOut = true
			m.cond.Broadcast()
		}
		m.mu.Unlock()
	})

	for len(req.arrived) < len(req.expected) && !req.timedOut {
		m.cond.Wait()
	}

	if req.timedOut && len(req.arrived) < len(req.expected) {
		err := m.abortLocked(req)
		timer.Stop()
		return err
	}
	timer.Stop()

	// AllPaused: every participant is at the barrier
	m.logger.DebugCat(CatSafepoint, "All %d participants paused", len(req.expected))
	req.phase = phaseExecuting
	m.cond.Broadcast()
	m.mu.Unlock()

	if includeInitiator {
		action(initiator)
	}

	m.mu.Lock()
	for req.done < len(req.expected) {
		m.cond.Wait()
	}
	m.mu.Unlock()

	// Every action has run; participants are still held at the barrier
	if epilogue != nil {
		epilogue()
	}

	m.mu.Lock()
	req.phase = phaseResuming
	m.pending.Store(false)
	m.cond.Broadcast()
	for req.exited < len(req.expected) {
		m.cond.Wait()
	}
	m.req = nil
	initiator.inSafepoint = false
	m.mu.Unlock()

	m.logger.DebugCat(CatSafepoint, "Safepoint complete, all threads resumed")
	return nil
}

// abortLocked tears down a request whose barrier never completed: releases
// every thread that did pause, then reports the stuck ones. Called with m.mu
// held; unlocks it.
func (m *SafepointManager) abortLocked(req *SafepointRequest) error {
	stuck := make([]string, 0, len(req.expected))
	for id, t := range req.expected {
		if !req.arrived[id] {
			stuck = append(stuck, t.Name())
		}
	}
	sort.Strings(stuck)

	req.aborted = true
	m.pending.Store(false)
	m.cond.Broadcast()
	// Release the already-paused threads before the fault propagates so a
	// failed capture never leaves the system stopped.
	for req.exited < len(req.arrived) {
		m.cond.Wait()
	}
	m.req = nil
	req.initiator.inSafepoint = false
	m.mu.Unlock()

	m.logger.WarnCat(CatSafepoint, "Safepoint abandoned after %s, stuck: %v", m.timeout, stuck)
	return &LivenessError{Stuck: stuck, Timeout: m.timeout}
}

// enter parks the polling thread at the barrier, runs the per-thread action
// once the barrier completes, and holds the thread until the Resuming phase
func (m *SafepointManager) enter(t *ThreadContext) {
	m.mu.Lock()
	req := m.req
	if req == nil || req.aborted || req.phase == phaseResuming {
		m.mu.Unlock()
		return
	}
	if _, ok := req.expected[t.id]; !ok {
		// Registered after the request was issued; not a participant.
		m.mu.Unlock()
		return
	}
	if req.arrived[t.id] {
		m.mu.Unlock()
		return
	}

	req.arrived[t.id] = true
	t.inSafepoint = true
	m.logger.DebugCat(CatSafepoint, "%s paused at safepoint (%d/%d)", t.Name(), len(req.arrived), len(req.expected))
	m.cond.Broadcast()

	for req.phase == phaseRequested && !req.aborted {
		m.cond.Wait()
	}
	if req.aborted {
		t.inSafepoint = false
		req.exited++
		m.cond.Broadcast()
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	req.action(t)

	m.mu.Lock()
	req.done++
	m.cond.Broadcast()
	for req.phase != phaseResuming {
		m.cond.Wait()
	}
	t.inSafepoint = false
	req.exited++
	m.cond.Broadcast()
	m.mu.Unlock()
}
