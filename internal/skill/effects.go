package skill

import "time"

// pendingEffect is a skill-internal delayed effect (a hit at T+0.2s, a drain
// at step start). This is the only legitimate delayed-callback shape in the
// engine; state transitions never ride on one. Each effect captures the
// owning session's generation at scheduling time and re-checks it before
// firing, so an effect scheduled before a cancellation silently no-ops after
// it.
type pendingEffect struct {
	fireAt     time.Time
	sessionID  uint64
	generation uint32
	fn         func()
}

// ScheduleEffect queues fn to run once the delay elapses, guarded by the
// session's current generation. Returns false when the session is missing or
// already terminal.
func (s *Store) ScheduleEffect(sessionID uint64, delay time.Duration, fn func()) bool {
	sess, ok := s.sessions[sessionID]
	if !ok || sess.State.Terminal() {
		return false
	}
	s.effects = append(s.effects, pendingEffect{
		fireAt:     s.now().Add(delay),
		sessionID:  sessionID,
		generation: sess.Generation,
		fn:         fn,
	})
	return true
}

// PendingEffects returns the number of queued effects. Tests only.
func (s *Store) PendingEffects() int {
	return len(s.effects)
}

// runDueEffects fires every due effect in scheduling order. A stale
// generation, a missing session, or a cancelled session mean the effect is a
// silent no-op.
func (s *Store) runDueEffects(now time.Time) {
	if len(s.effects) == 0 {
		return
	}
	// Detach the queue before firing: an effect may schedule follow-up
	// effects, which land on s.effects and survive into the next pass.
	queue := s.effects
	s.effects = nil
	var kept []pendingEffect
	for _, e := range queue {
		if now.Before(e.fireAt) {
			kept = append(kept, e)
			continue
		}
		sess, ok := s.sessions[e.sessionID]
		if !ok || sess.Generation != e.generation || sess.State == StateCancelled {
			continue
		}
		e.fn()
	}
	s.effects = append(kept, s.effects...)
}
