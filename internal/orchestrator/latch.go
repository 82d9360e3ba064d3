package orchestrator

import "sync"

// LatchState is the trigger state of one stage within one pipeline run.
type LatchState int

const (
	// NotTriggered means no trigger has been issued for this run.
	NotTriggered LatchState = iota
	// Triggering means a trigger call is in flight.
	Triggering
	// Triggered means the trigger call succeeded. Terminal for the run.
	Triggered
	// Failed means the last trigger call failed. The next qualifying
	// snapshot may try once more.
	Failed
)

func (s LatchState) String() string {
	switch s {
	case NotTriggered:
		return "not_triggered"
	case Triggering:
		return "triggering"
	case Triggered:
		return "triggered"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Latch guards a stage so at most one trigger call is outstanding and a
// successful trigger is never repeated within a run.
type Latch struct {
	mu       sync.Mutex
	state    LatchState
	attempts int
}

// TryAcquire moves NotTriggered or Failed to Triggering and reports whether
// the caller now owns the trigger call.
func (l *Latch) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case NotTriggered, Failed:
		l.state = Triggering
		l.attempts++
		return true
	default:
		return false
	}
}

// Succeed records a successful trigger.
func (l *Latch) Succeed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Triggering {
		l.state = Triggered
	}
}

// Fail records a failed trigger, re-arming the latch for one retry.
func (l *Latch) Fail() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Triggering {
		l.state = Failed
	}
}

// Reset returns the latch to NotTriggered for a new run.
func (l *Latch) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = NotTriggered
	l.attempts = 0
}

// State returns the current state.
func (l *Latch) State() LatchState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Attempts returns how many trigger calls this latch has issued in the
// current run.
func (l *Latch) Attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}
