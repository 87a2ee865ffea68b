package skill

import (
	"time"

	"go.uber.org/zap"
)

// Store owns all live sessions. Every mutation happens either synchronously
// inside a request handler or inside Tick — never from a detached callback.
// Game loop goroutine only; no locks.
type Store struct {
	log  *zap.Logger
	now  func() time.Time
	sink EventSink

	// maxSessionDuration is the global liveness cap, independent of any
	// per-skill configuration.
	maxSessionDuration time.Duration

	nextID      uint64
	sessions    map[uint64]*Session
	liveByActor map[int32]uint64
	removals    []uint64

	effects []pendingEffect
}

func NewStore(maxSessionDuration time.Duration, sink EventSink, log *zap.Logger) *Store {
	if sink == nil {
		sink = func(Event) {}
	}
	return &Store{
		log:                log,
		now:                time.Now,
		sink:               sink,
		maxSessionDuration: maxSessionDuration,
		sessions:           make(map[uint64]*Session, 256),
		liveByActor:        make(map[int32]uint64, 256),
	}
}

// SetNow overrides the clock source. Tests only.
func (s *Store) SetNow(fn func() time.Time) {
	s.now = fn
}

// Get returns a session by id, or nil.
func (s *Store) Get(id uint64) *Session {
	return s.sessions[id]
}

// LiveByActor returns the actor's non-terminal session, or nil. At most one
// exists at any instant.
func (s *Store) LiveByActor(actorID int32) *Session {
	if id, ok := s.liveByActor[actorID]; ok {
		return s.sessions[id]
	}
	return nil
}

// Count returns the number of sessions still held, terminal ones included
// until the next FlushRemovals.
func (s *Store) Count() int {
	return len(s.sessions)
}

// LiveCount returns the number of non-terminal sessions.
func (s *Store) LiveCount() int {
	return len(s.liveByActor)
}

// Snapshot builds the full wire snapshot for a session. Used by tests and by
// the manager after combo mutations that are not state transitions.
func (s *Store) Snapshot(id uint64) (Event, bool) {
	sess, ok := s.sessions[id]
	if !ok {
		return Event{}, false
	}
	return s.snapshot(sess), true
}

// EmitSnapshot pushes the session's current full snapshot to the sink.
func (s *Store) EmitSnapshot(id uint64) {
	if sess, ok := s.sessions[id]; ok {
		s.sink(s.snapshot(sess))
	}
}

// Create opens a new session in CASTING for the actor. Fails with
// ErrActorAlreadyInSession when a live session exists; the one-live-session
// invariant is enforced here and nowhere else needs to re-check it.
func (s *Store) Create(actorID, skillID int32, cfg CreateConfig) (*Session, error) {
	if _, ok := s.liveByActor[actorID]; ok {
		return nil, ErrActorAlreadyInSession
	}

	now := s.now()
	cap := cfg.MaxDuration
	if cap <= 0 || cap > s.maxSessionDuration {
		cap = s.maxSessionDuration
	}

	s.nextID++
	sess := &Session{
		ID:                 s.nextID,
		SkillID:            skillID,
		ActorID:            actorID,
		TargetID:           cfg.TargetID,
		State:              StateCasting,
		CreatedAt:          now,
		StateEnteredAt:     now,
		LastActivity:       now,
		ExecutionExpiresAt: now.Add(cap),
		recoveryDuration:   cfg.Recovery,
	}
	if cfg.Combo != nil {
		sess.Combo = &Combo{
			CurrentStep: 1,
			TotalSteps:  cfg.Combo.TotalSteps,
			StepToken:   1,
			// no window yet: the caller opens it on activation
		}
	}

	s.sessions[sess.ID] = sess
	s.liveByActor[actorID] = sess.ID
	s.sink(s.snapshot(sess))
	return sess, nil
}

// Transition moves a session to a new state. Illegal transitions are
// programmer errors: rejected, logged, never retried. On success the full
// snapshot is emitted; terminal states also queue the session for removal.
func (s *Store) Transition(id uint64, to State, reason string) bool {
	sess, ok := s.sessions[id]
	if !ok {
		s.log.Warn("transition on unknown session", zap.Uint64("session_id", id))
		return false
	}
	if !legalTransition(sess.State, to) {
		s.log.Warn("illegal session transition",
			zap.Uint64("session_id", id),
			zap.Stringer("from", sess.State),
			zap.Stringer("to", to),
			zap.String("reason", reason),
		)
		return false
	}

	now := s.now()
	sess.State = to
	sess.Reason = reason
	sess.StateEnteredAt = now
	sess.LastActivity = now
	if to == StateCancelled {
		sess.Generation++
	}

	s.sink(s.snapshot(sess))

	if to.Terminal() {
		delete(s.liveByActor, sess.ActorID)
		s.removals = append(s.removals, id)
	}
	return true
}

// Cancel forces a session to CANCELLED. Idempotent: a second call on the
// same session is a no-op with no event. All cancellation sources (death,
// stagger, explicit reject, timeout) funnel through here so the generation
// bump is guaranteed before control returns to the caller.
func (s *Store) Cancel(id uint64, reason string) bool {
	sess, ok := s.sessions[id]
	if !ok || sess.State.Terminal() {
		return false
	}
	return s.Transition(id, StateCancelled, reason)
}

// StartRecovery is only legal from ACTIVE. Sets the recovery deadline and
// transitions to RECOVERY.
func (s *Store) StartRecovery(id uint64, duration time.Duration) bool {
	sess, ok := s.sessions[id]
	if !ok || sess.State != StateActive {
		return false
	}
	sess.RecoveryEndsAt = s.now().Add(duration)
	return s.Transition(id, StateRecovery, ReasonRecoveryStarted)
}

// AdvanceCombo moves the combo to its next step. The window is cleared on
// success; the caller must re-extend it (or start recovery on the final
// step). The expiry instant itself is closed: a request arriving exactly at
// WindowExpiresAt is rejected.
func (s *Store) AdvanceCombo(id uint64) (int, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return 0, ErrSessionNotFound
	}
	c := sess.Combo
	if c == nil {
		return 0, ErrNoCombo
	}
	// Window first: a request that is both late and past the final step
	// reports the lapsed window, not the exhausted chain.
	now := s.now()
	if sess.State != StateActive || c.WindowExpiresAt.IsZero() || !now.Before(c.WindowExpiresAt) {
		return 0, ErrComboWindowExpired
	}
	if c.CurrentStep >= c.TotalSteps {
		return 0, ErrComboStepsExhausted
	}

	c.CurrentStep++
	c.StepToken++
	c.WindowOpensAt = time.Time{}
	c.WindowExpiresAt = time.Time{}
	sess.LastActivity = now
	return c.CurrentStep, nil
}

// ExtendComboWindow opens the advance window from now.
func (s *Store) ExtendComboWindow(id uint64, duration time.Duration) bool {
	sess, ok := s.sessions[id]
	if !ok || sess.Combo == nil || sess.State.Terminal() {
		return false
	}
	now := s.now()
	sess.Combo.WindowOpensAt = now
	sess.Combo.WindowExpiresAt = now.Add(duration)
	return true
}

// Tick runs the per-tick deadline scan, then fires due scheduled effects.
// Checks run in fixed priority order per session so simultaneous deadlines
// are never ambiguous:
//
//  1. hard timeout — unconditional safety net, fatal to the session
//  2. recovery end — RECOVERY completes
//  3. combo window expiry — recovery mid-chain, completion on the last step
//
// The timeout check is strict (now > deadline) so a recovery or combo
// deadline landing on the same instant resolves as the normal outcome; the
// safety net only fires once the deadline is truly past.
func (s *Store) Tick() {
	now := s.now()
	for id, sess := range s.sessions {
		if sess.State.Terminal() {
			continue
		}

		if now.After(sess.ExecutionExpiresAt) {
			s.log.Warn("session hit hard deadline",
				zap.Uint64("session_id", id),
				zap.Int32("actor_id", sess.ActorID),
				zap.Int32("skill_id", sess.SkillID),
			)
			s.Cancel(id, ReasonTimeout)
			continue
		}

		if sess.State == StateRecovery && !sess.RecoveryEndsAt.IsZero() && !now.Before(sess.RecoveryEndsAt) {
			s.Transition(id, StateCompleted, ReasonRecoveryEnded)
			continue
		}

		if c := sess.Combo; c != nil && sess.State == StateActive &&
			!c.WindowExpiresAt.IsZero() && !now.Before(c.WindowExpiresAt) {
			c.WindowOpensAt = time.Time{}
			c.WindowExpiresAt = time.Time{}
			if c.CurrentStep >= c.TotalSteps {
				s.Transition(id, StateCompleted, ReasonComboFinished)
			} else {
				sess.RecoveryEndsAt = now.Add(sess.recoveryDuration)
				s.Transition(id, StateRecovery, ReasonComboLapsed)
			}
		}
	}

	s.runDueEffects(now)
}

// FlushRemovals drops terminal sessions. Called at PhaseCleanup, after the
// final snapshot has already been emitted and dispatched.
func (s *Store) FlushRemovals() {
	for _, id := range s.removals {
		delete(s.sessions, id)
	}
	s.removals = s.removals[:0]
}
