// Package skill is the authoritative skill-session engine: a per-actor state
// machine advanced by the fixed-tick scheduler, with snapshot events mirrored
// to clients for optimistic local prediction.
package skill

import (
	"errors"
	"time"
)

// State is the session lifecycle state.
type State int8

const (
	StateCasting State = iota
	StateActive
	StateRecovery
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCasting:
		return "CASTING"
	case StateActive:
		return "ACTIVE"
	case StateRecovery:
		return "RECOVERY"
	case StateCompleted:
		return "COMPLETED"
	case StateCancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// Terminal reports whether the state has no outgoing transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// legalTransitions is the full transition table. Anything absent is illegal
// and rejected at the API boundary.
var legalTransitions = map[State][]State{
	StateCasting:  {StateActive, StateCancelled},
	StateActive:   {StateRecovery, StateCompleted, StateCancelled},
	StateRecovery: {StateCompleted, StateCancelled},
}

func legalTransition(from, to State) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition reason codes emitted by the engine itself. Callers funnel their
// own reasons (staggered, death, disconnected, ...) through Cancel.
const (
	ReasonCastComplete    = "cast_complete"
	ReasonRecoveryStarted = "recovery_started"
	ReasonTimeout         = "timeout"
	ReasonRecoveryEnded   = "recovery_ended"
	ReasonComboFinished   = "combo_finished"
	ReasonComboLapsed     = "combo_window_expired"
)

// Combo is the embedded combo sub-state. A zero WindowExpiresAt means the
// window is closed; advancing requires an open window.
type Combo struct {
	CurrentStep     int
	TotalSteps      int
	StepToken       uint64 // monotonically increasing across all step changes
	WindowOpensAt   time.Time
	WindowExpiresAt time.Time
}

// Session is one in-progress skill use. The Store exclusively owns every
// record; nothing outside the game loop goroutine may touch one.
type Session struct {
	ID       uint64
	SkillID  int32
	ActorID  int32
	TargetID int32 // 0 = self-targeted

	State  State
	Reason string // reason of the most recent transition

	CreatedAt      time.Time
	StateEnteredAt time.Time
	LastActivity   time.Time

	// ExecutionExpiresAt is the hard deadline. Always set; never more than
	// MaxSessionDuration past CreatedAt regardless of skill configuration.
	ExecutionExpiresAt time.Time

	// RecoveryEndsAt is set only when entering RECOVERY.
	RecoveryEndsAt time.Time

	// recoveryDuration is stashed at create so the deadline scan can start
	// recovery when a combo window lapses mid-chain.
	recoveryDuration time.Duration

	Combo *Combo

	// Generation is bumped whenever the session is cancelled or replaced.
	// Every scheduled effect captures it and re-checks before firing.
	Generation uint32
}

// Engine errors. These stay local; only reason strings cross the wire.
var (
	ErrActorAlreadyInSession = errors.New("actor already has a live session")
	ErrSessionNotFound       = errors.New("session not found")
	ErrNoCombo               = errors.New("session has no combo sub-state")
	ErrComboWindowExpired    = errors.New("combo window expired")
	ErrComboStepsExhausted   = errors.New("combo steps exhausted")
)

// ComboConfig configures the combo sub-record at session creation.
type ComboConfig struct {
	TotalSteps int
}

// CreateConfig is the per-session slice of a skill template, with all
// durations already tempo-scaled by the caller.
type CreateConfig struct {
	TargetID    int32
	MaxDuration time.Duration
	Recovery    time.Duration
	Combo       *ComboConfig
}
