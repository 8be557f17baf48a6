package runner

import (
	"fmt"
	"sync"
)

// Phase is the stage a run is in.
type Phase int

const (
	Idle Phase = iota
	FetchingPages
	Extracting
	Cleaning
	Inserting
	Done
	Failed
)

var phaseNames = [...]string{
	Idle:          "idle",
	FetchingPages: "fetching_pages",
	Extracting:    "extracting",
	Cleaning:      "cleaning",
	Inserting:     "inserting",
	Done:          "done",
	Failed:        "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Terminal reports whether no transition may leave p.
func (p Phase) Terminal() bool {
	return p == Done || p == Failed
}

// Failed is reachable from every non-terminal phase and is not listed.
var transitions = map[Phase][]Phase{
	Idle:          {FetchingPages, Cleaning},
	FetchingPages: {Extracting},
	Extracting:    {FetchingPages, Cleaning, Inserting},
	Cleaning:      {Inserting, Done},
	Inserting:     {Done},
}

// TransitionError rejects a move the state machine does not allow.
type TransitionError struct {
	From, To Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid phase transition %s -> %s", e.From, e.To)
}

// State tracks the phase of one run. It is safe for concurrent use.
type State struct {
	mu      sync.Mutex
	current Phase
	history []Phase
	// failedAt is the phase the run was in when it failed.
	failedAt Phase
}

// NewState returns a state machine in Idle.
func NewState() *State {
	return &State{current: Idle, history: []Phase{Idle}}
}

// Current returns the current phase.
func (s *State) Current() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// To moves to next, or returns a *TransitionError and stays put.
func (s *State) To(next Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !allowed(s.current, next) {
		return &TransitionError{From: s.current, To: next}
	}
	if next == Failed {
		s.failedAt = s.current
	}
	s.current = next
	s.history = append(s.history, next)
	return nil
}

// Fail moves to Failed and returns the phase the run failed in. Calling
// it on an already failed run returns the phase it failed in.
func (s *State) Fail() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == Failed {
		return s.failedAt
	}
	if s.current == Done {
		return Done
	}
	s.failedAt = s.current
	s.current = Failed
	s.history = append(s.history, Failed)
	return s.failedAt
}

// History returns every phase visited, in order, starting with Idle.
func (s *State) History() []Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Phase, len(s.history))
	copy(out, s.history)
	return out
}

func allowed(from, to Phase) bool {
	if from.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
