package skill

// ComboSnapshot mirrors a session's combo sub-state on the wire.
type ComboSnapshot struct {
	CurrentStep     int    `json:"currentStep"`
	TotalSteps      int    `json:"totalSteps"`
	StepToken       uint64 `json:"stepToken"`
	WindowOpensAt   int64  `json:"windowOpensAt,omitempty"`
	WindowExpiresAt int64  `json:"windowExpiresAt,omitempty"`
}

// Event is the single outward event type: a full session snapshot, emitted
// on every transition. Full snapshots make a dropped message self-healing on
// the next event; no receiver ever needs delta bookkeeping. Timestamps are
// server unix milliseconds.
type Event struct {
	SessionID          uint64         `json:"sessionId"`
	SkillID            int32          `json:"skillId"`
	ActorID            int32          `json:"actorId"`
	State              string         `json:"state"`
	Reason             string         `json:"reason,omitempty"`
	StateEnteredAt     int64          `json:"stateEnteredAt"`
	ExecutionExpiresAt int64          `json:"executionExpiresAt"`
	RecoveryEndsAt     int64          `json:"recoveryEndsAt,omitempty"`
	Combo              *ComboSnapshot `json:"combo,omitempty"`
	ServerTime         int64          `json:"serverTime"`
}

// Terminal reports whether the snapshot is a final one.
func (e Event) Terminal() bool {
	return e.State == StateCompleted.String() || e.State == StateCancelled.String()
}

// EventSink receives every emitted snapshot. Wired to the event bus in
// production; tests pass a capture function.
type EventSink func(Event)

// snapshot serializes the full session state.
func (s *Store) snapshot(sess *Session) Event {
	ev := Event{
		SessionID:          sess.ID,
		SkillID:            sess.SkillID,
		ActorID:            sess.ActorID,
		State:              sess.State.String(),
		Reason:             sess.Reason,
		StateEnteredAt:     sess.StateEnteredAt.UnixMilli(),
		ExecutionExpiresAt: sess.ExecutionExpiresAt.UnixMilli(),
		ServerTime:         s.now().UnixMilli(),
	}
	if !sess.RecoveryEndsAt.IsZero() {
		ev.RecoveryEndsAt = sess.RecoveryEndsAt.UnixMilli()
	}
	if c := sess.Combo; c != nil {
		cs := &ComboSnapshot{
			CurrentStep: c.CurrentStep,
			TotalSteps:  c.TotalSteps,
			StepToken:   c.StepToken,
		}
		if !c.WindowOpensAt.IsZero() {
			cs.WindowOpensAt = c.WindowOpensAt.UnixMilli()
		}
		if !c.WindowExpiresAt.IsZero() {
			cs.WindowExpiresAt = c.WindowExpiresAt.UnixMilli()
		}
		ev.Combo = cs
	}
	return ev
}
