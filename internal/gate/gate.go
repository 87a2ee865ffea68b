// Package gate tracks per-actor cooldowns and the global cooldown. It feeds
// off session events rather than being called by the engine directly, so the
// cooldown clock always starts from the authoritative terminal timestamp.
package gate

import (
	"time"

	"go.uber.org/zap"

	"github.com/skillcast/server/internal/data"
	"github.com/skillcast/server/internal/skill"
)

// Tracker implements skill.Gate. Single-goroutine access (game loop).
type Tracker struct {
	log    *zap.Logger
	skills *data.SkillTable
	gcd    time.Duration
	now    func() time.Time

	gcdUntil map[int32]time.Time           // actor -> global cooldown expiry
	cdUntil  map[int32]map[int32]time.Time // actor -> skill -> cooldown expiry
}

func NewTracker(skills *data.SkillTable, gcd time.Duration, log *zap.Logger) *Tracker {
	return &Tracker{
		log:      log,
		skills:   skills,
		gcd:      gcd,
		now:      time.Now,
		gcdUntil: make(map[int32]time.Time),
		cdUntil:  make(map[int32]map[int32]time.Time),
	}
}

// SetNow replaces the clock. Tests only.
func (t *Tracker) SetNow(fn func() time.Time) { t.now = fn }

// CanStart reports whether the actor may begin the skill, with the blocking
// reason when not. Expiry instants are exclusive: a request at the exact
// expiry tick is allowed.
func (t *Tracker) CanStart(actorID, skillID int32) (bool, string) {
	now := t.now()
	if until, ok := t.gcdUntil[actorID]; ok && now.Before(until) {
		return false, "on_gcd"
	}
	if cds, ok := t.cdUntil[actorID]; ok {
		if until, ok := cds[skillID]; ok && now.Before(until) {
			return false, "on_cooldown"
		}
	}
	return true, ""
}

// CanAdvance reports whether the actor may advance the skill. Steps inside a
// live combo chain are exempt from cooldown checks; the chain already holds
// the actor and its pacing is the combo window, not the GCD.
func (t *Tracker) CanAdvance(actorID, skillID int32, isComboChain bool) (bool, string) {
	if isComboChain {
		return true, ""
	}
	return t.CanStart(actorID, skillID)
}

// CooldownRemaining reports how long the skill stays blocked. Zero when ready.
func (t *Tracker) CooldownRemaining(actorID, skillID int32) time.Duration {
	cds, ok := t.cdUntil[actorID]
	if !ok {
		return 0
	}
	until, ok := cds[skillID]
	if !ok {
		return 0
	}
	d := until.Sub(t.now())
	if d < 0 {
		return 0
	}
	return d
}

// OnSessionEvent consumes authoritative snapshots. CASTING starts the global
// cooldown; terminal states start the skill cooldown, scaled by the skill's
// cancellation policy. All clocks are anchored on the event's server time so
// replayed or delayed dispatch cannot stretch a cooldown.
func (t *Tracker) OnSessionEvent(ev skill.Event) {
	at := time.UnixMilli(ev.ServerTime)

	switch ev.State {
	case "CASTING":
		if t.gcd > 0 {
			t.gcdUntil[ev.ActorID] = at.Add(t.gcd)
		}
	case "COMPLETED":
		t.startCooldown(ev.ActorID, ev.SkillID, at, data.CooldownFull)
	case "CANCELLED":
		info := t.skills.Get(ev.SkillID)
		policy := data.CooldownReduced
		if info != nil {
			policy = policyFor(info, ev.Reason)
		}
		t.startCooldown(ev.ActorID, ev.SkillID, at, policy)
	}
}

func policyFor(info *data.SkillInfo, reason string) string {
	switch reason {
	case skill.ReasonTimeout:
		return info.Cancel.Timeout
	case "rejected", "invalid_target":
		return info.Cancel.Reject
	default:
		// staggered, death, disconnected, explicit interrupt
		return info.Cancel.Interrupt
	}
}

func (t *Tracker) startCooldown(actorID, skillID int32, at time.Time, policy string) {
	info := t.skills.Get(skillID)
	if info == nil || info.Cooldown <= 0 || policy == data.CooldownNone {
		return
	}
	cd := info.Cooldown
	if policy == data.CooldownReduced {
		cd /= 2
	}
	cds, ok := t.cdUntil[actorID]
	if !ok {
		cds = make(map[int32]time.Time)
		t.cdUntil[actorID] = cds
	}
	cds[skillID] = at.Add(cd)
	t.log.Debug("cooldown started",
		zap.Int32("actor", actorID),
		zap.Int32("skill", skillID),
		zap.Duration("cd", cd),
		zap.String("policy", policy))
}

// ClearActor drops all tracking for a departed actor.
func (t *Tracker) ClearActor(actorID int32) {
	delete(t.gcdUntil, actorID)
	delete(t.cdUntil, actorID)
}
