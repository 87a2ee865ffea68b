// Package mirror is the client-side replica of skill sessions. It adopts
// authoritative snapshots verbatim and layers short-lived optimistic
// predictions on top so the local UI can react before the server replies.
package mirror

import (
	"time"

	"go.uber.org/zap"

	"github.com/skillcast/server/internal/skill"
)

// Callbacks notify the embedding client. Any of them may be nil.
type Callbacks struct {
	PredictionConfirmed func(sessionID uint64)
	PredictionRejected  func(reason string)
	SessionEnded        func(ev skill.Event)
}

// Prediction is a locally-owned session awaiting the server verdict. It
// carries a client-local session id so visuals can key on a handle before
// the authoritative id exists; local ids never leave the client.
type Prediction struct {
	LocalSessionID uint64
	SkillID        int32
	AttemptID      string
	StartedAt      time.Time
	Step           int // 0 = predicted start, >0 = predicted combo step
	IsPredicted    bool
}

// Replica mirrors one local actor's session state. Authoritative snapshots
// are adopted whole; a snapshot replaces the stored one, it is never merged
// field by field. The transport fans every actor's snapshots to every
// client, so the replica filters on its owning actor id — foreign sessions
// never settle predictions or occupy the live slot. Single-goroutine access
// (client loop).
type Replica struct {
	log     *zap.Logger
	now     func() time.Time
	cb      Callbacks
	actorID int32

	live     *skill.Event // last authoritative snapshot of the live session
	pending  *Prediction
	localSeq uint64
}

func NewReplica(actorID int32, cb Callbacks, log *zap.Logger) *Replica {
	return &Replica{log: log, now: time.Now, cb: cb, actorID: actorID}
}

// SetNow replaces the clock. Tests only.
func (r *Replica) SetNow(fn func() time.Time) { r.now = fn }

// ActorID returns the owning actor.
func (r *Replica) ActorID() int32 { return r.actorID }

// Live returns the last authoritative snapshot, nil when no session is live.
func (r *Replica) Live() *skill.Event { return r.live }

// Pending returns the outstanding prediction, nil when none.
func (r *Replica) Pending() *Prediction { return r.pending }

// PredictStart registers an optimistic start for the given skill and returns
// the client-local session id. Refused while a session is live or another
// prediction is outstanding, mirroring the server's one-live-session rule.
func (r *Replica) PredictStart(skillID int32, attemptID string) (uint64, bool) {
	if r.live != nil || r.pending != nil {
		return 0, false
	}
	r.localSeq++
	r.pending = &Prediction{
		LocalSessionID: r.localSeq,
		SkillID:        skillID,
		AttemptID:      attemptID,
		StartedAt:      r.now(),
		IsPredicted:    true,
	}
	return r.localSeq, true
}

// PredictNextStep registers an optimistic combo advance. The prediction is
// bounded by the last authoritative window: the replica never guesses past
// windowExpiresAt or beyond currentStep+1, so a prediction the server could
// not possibly accept is refused locally.
func (r *Replica) PredictNextStep(attemptID string) (int, bool) {
	if r.live == nil || r.live.Combo == nil || r.pending != nil {
		return 0, false
	}
	c := r.live.Combo
	if c.CurrentStep >= c.TotalSteps {
		return 0, false
	}
	if c.WindowExpiresAt == 0 || !r.now().Before(time.UnixMilli(c.WindowExpiresAt)) {
		return 0, false
	}
	step := c.CurrentStep + 1
	r.pending = &Prediction{
		LocalSessionID: r.live.SessionID,
		SkillID:        r.live.SkillID,
		AttemptID:      attemptID,
		StartedAt:      r.now(),
		Step:           step,
		IsPredicted:    true,
	}
	return step, true
}

// OnRejected consumes a synchronous rejection. A stale result for an attempt
// the replica no longer tracks is dropped silently.
func (r *Replica) OnRejected(res skill.UseSkillResult) {
	if r.pending == nil || (res.ClientAttemptID != "" && res.ClientAttemptID != r.pending.AttemptID) {
		return
	}
	r.pending = nil
	if r.cb.PredictionRejected != nil {
		r.cb.PredictionRejected(res.RejectReason)
	}
}

// OnAuthoritativeEvent adopts a server snapshot. Foreign actors' events are
// dropped at the door. For own-actor events the resolution order is: a
// snapshot matching an outstanding prediction settles it first (CANCELLED
// means the predicted action was rolled back, anything else confirms), then
// the snapshot replaces local state, then terminal snapshots end the session.
func (r *Replica) OnAuthoritativeEvent(ev skill.Event) {
	if ev.ActorID != r.actorID {
		return
	}

	if r.pending != nil && r.pending.SkillID == ev.SkillID {
		if ev.State == "CANCELLED" {
			r.pending = nil
			if r.cb.PredictionRejected != nil {
				r.cb.PredictionRejected(ev.Reason)
			}
		} else {
			r.pending = nil
			if r.cb.PredictionConfirmed != nil {
				r.cb.PredictionConfirmed(ev.SessionID)
			}
		}
	}

	if ev.Terminal() {
		if r.live != nil && r.live.SessionID == ev.SessionID {
			r.live = nil
		}
		if r.cb.SessionEnded != nil {
			r.cb.SessionEnded(ev)
		}
		return
	}

	snap := ev
	r.live = &snap
}

// Reset drops all local state, both authoritative and predicted. Used on
// reconnect before the server replays the current snapshot.
func (r *Replica) Reset() {
	r.live = nil
	r.pending = nil
}
