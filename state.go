package ucheckout

import "time"

// State is the orchestrator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAcquiringContext
	StateLoadingLibrary
	StateInitializingWidget
	StateReady
	StateCharging
	StateSettled
	StateFailed
	StateCancelled
)

var stateNames = [...]string{
	StateIdle:               "idle",
	StateAcquiringContext:   "acquiring_context",
	StateLoadingLibrary:     "loading_library",
	StateInitializingWidget: "initializing_widget",
	StateReady:              "ready",
	StateCharging:           "charging",
	StateSettled:            "settled",
	StateFailed:             "failed",
	StateCancelled:          "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the attempt has finished.
func (s State) Terminal() bool {
	return s == StateSettled || s == StateFailed || s == StateCancelled
}

// Active reports whether an attempt is in flight.
func (s State) Active() bool {
	return s != StateIdle && !s.Terminal()
}

// transitions lists the states reachable from each state, excluding Reset
// which is always allowed.
var transitions = map[State][]State{
	StateIdle:               {StateAcquiringContext},
	StateAcquiringContext:   {StateLoadingLibrary, StateFailed, StateCancelled},
	StateLoadingLibrary:     {StateInitializingWidget, StateFailed, StateCancelled},
	StateInitializingWidget: {StateReady, StateCharging, StateFailed, StateCancelled},
	StateReady:              {StateCharging, StateFailed, StateCancelled},
	StateCharging:           {StateSettled, StateFailed},
	StateSettled:            {StateAcquiringContext},
	StateFailed:             {StateAcquiringContext},
	StateCancelled:          {StateAcquiringContext},
}

func canTransition(from, to State) bool {
	if to == StateIdle {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Timings holds the delays the state machine waits on.
type Timings struct {
	// LibraryGrace is waited after the script load event so the library can
	// register its globals.
	LibraryGrace time.Duration
	// ReadyFallback is waited after Show before assuming Ready when the
	// widget cannot emit a ready event.
	ReadyFallback time.Duration
	// AutoReset returns a settled attempt to Idle.
	AutoReset time.Duration
}

// DefaultTimings are used unless overridden with [WithTimings].
var DefaultTimings = Timings{
	LibraryGrace:  500 * time.Millisecond,
	ReadyFallback: time.Second,
	AutoReset:     5 * time.Second,
}
