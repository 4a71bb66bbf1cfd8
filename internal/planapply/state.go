package planapply

import (
	"fmt"
	"log"
)

// State — состояние одного вызова apply
type State string

const (
	StateReceived   State = "received"
	StateNormalized State = "normalized"
	StatePersisting State = "persisting"
	StateCommitted  State = "committed"
	StateRejected   State = "rejected"
	StateFailed     State = "failed"
)

// transitions lists the allowed moves. normalized → committed is an idempotent replay.
var transitions = map[State][]State{
	StateReceived:   {StateNormalized, StateRejected},
	StateNormalized: {StatePersisting, StateCommitted, StateFailed},
	StatePersisting: {StateCommitted, StateFailed},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

type run struct {
	key     string
	kind    string
	userID  string
	claimID string // выдан ClaimBatch, нужен для commit/release
	state   State
}

func newRun(key, kind, userID string) *run {
	return &run{key: key, kind: kind, userID: userID, state: StateReceived}
}

func (r *run) to(next State) error {
	if !CanTransition(r.state, next) {
		return fmt.Errorf("illegal apply transition %s -> %s", r.state, next)
	}
	log.Printf("INFO planapply: key=%q kind=%s user=%s %s -> %s", r.key, r.kind, r.userID, r.state, next)
	r.state = next
	return nil
}
