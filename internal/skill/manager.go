package skill

import (
	"time"

	"go.uber.org/zap"

	"github.com/skillcast/server/internal/combat"
	"github.com/skillcast/server/internal/data"
	"github.com/skillcast/server/internal/scripting"
	"github.com/skillcast/server/internal/timing"
	"github.com/skillcast/server/internal/world"
)

// Rejection reasons returned synchronously on use_skill / advance_combo.
// The gate contributes its own ("on_gcd", "on_cooldown").
const (
	RejectUnknownActor   = "unknown_actor"
	RejectDead           = "dead"
	RejectUnknownSkill   = "unknown_skill"
	RejectNotLearned     = "not_learned"
	RejectLocked         = "locked"
	RejectInsufficient   = "insufficient_resources"
	RejectNoSession      = "no_session"
	RejectWindowExpired  = "combo_window_expired"
	RejectStepsExhausted = "combo_steps_exhausted"
)

// Gate answers whether an actor may start or advance a skill right now.
// Cooldown and global-cooldown tracking live behind it so the manager stays
// testable.
type Gate interface {
	CanStart(actorID, skillID int32) (bool, string)
	CanAdvance(actorID, skillID int32, isComboChain bool) (bool, string)
}

// CostMeta is a previewed resource debit, committed only after the session
// is accepted so a rejected request never spends anything.
type CostMeta struct {
	PoolID string
	Amount int32
}

// CostResolver previews and commits skill costs.
type CostResolver interface {
	Preview(actor *world.ActorInfo, info *data.SkillInfo) (CostMeta, bool)
	Commit(actor *world.ActorInfo, meta CostMeta)
}

// UseSkillRequest is the client payload for use_skill. ComboStepHint is the
// step the client believes it is requesting; it is advisory only and never
// trusted — the store decides the actual step.
type UseSkillRequest struct {
	SkillID         int32  `json:"skillId"`
	TargetID        int32  `json:"targetId,omitempty"`
	ComboStepHint   int    `json:"comboStepHint,omitempty"`
	ClientAttemptID string `json:"clientAttemptId,omitempty"`
}

// AdvanceComboRequest is the client payload for advance_combo. SessionID 0
// means "my live session".
type AdvanceComboRequest struct {
	SessionID       uint64 `json:"sessionId,omitempty"`
	ClientAttemptID string `json:"clientAttemptId,omitempty"`
}

// UseSkillResult is the synchronous reply for both operations. Accepted
// requests carry the session ID; the authoritative snapshot arrives as a
// separate session event.
type UseSkillResult struct {
	Accepted        bool   `json:"accepted"`
	SessionID       uint64 `json:"sessionId,omitempty"`
	RejectReason    string `json:"rejectReason,omitempty"`
	ClientAttemptID string `json:"clientAttemptId,omitempty"`
}

// Manager drives skill requests end to end: validation, gating, cost,
// timing resolution, session creation and hit scheduling. Single-goroutine
// access only (game loop), like everything that touches world state.
type Manager struct {
	log      *zap.Logger
	world    *world.State
	skills   *data.SkillTable
	timing   *timing.Resolver
	composer *combat.Composer
	store    *Store
	gate     Gate
	costs    CostResolver
	scripts  *scripting.Engine // nil = dice fallback only
}

// NewManager wires the manager. gate, costs and scripts may be nil; missing
// collaborators degrade to allow-all / free / built-in formulas.
func NewManager(
	w *world.State,
	skills *data.SkillTable,
	tr *timing.Resolver,
	composer *combat.Composer,
	store *Store,
	gate Gate,
	costs CostResolver,
	scripts *scripting.Engine,
	log *zap.Logger,
) *Manager {
	return &Manager{
		log:      log,
		world:    w,
		skills:   skills,
		timing:   tr,
		composer: composer,
		store:    store,
		gate:     gate,
		costs:    costs,
		scripts:  scripts,
	}
}

func reject(reason, attemptID string) UseSkillResult {
	return UseSkillResult{Accepted: false, RejectReason: reason, ClientAttemptID: attemptID}
}

// UseSkill handles a use_skill request. All checks run before any state is
// touched; a rejected request leaves no trace. A use_skill for the skill the
// actor is already chaining counts as an advance_combo (雙擊連段的客戶端常
// 直接重送 use_skill，伺服器視同推進).
func (m *Manager) UseSkill(actorID int32, req UseSkillRequest) UseSkillResult {
	actor := m.world.Get(actorID)
	if actor == nil {
		return reject(RejectUnknownActor, req.ClientAttemptID)
	}
	if actor.Dead {
		return reject(RejectDead, req.ClientAttemptID)
	}

	info := m.skills.Get(req.SkillID)
	if info == nil {
		return reject(RejectUnknownSkill, req.ClientAttemptID)
	}
	if !actor.Knows(req.SkillID) {
		return reject(RejectNotLearned, req.ClientAttemptID)
	}

	if live := m.store.LiveByActor(actorID); live != nil {
		if live.SkillID == req.SkillID && live.Combo != nil {
			return m.AdvanceCombo(actorID, AdvanceComboRequest{
				SessionID:       live.ID,
				ClientAttemptID: req.ClientAttemptID,
			})
		}
		return reject(RejectLocked, req.ClientAttemptID)
	}

	if m.gate != nil {
		if ok, reason := m.gate.CanStart(actorID, req.SkillID); !ok {
			return reject(reason, req.ClientAttemptID)
		}
	}

	var cost CostMeta
	if m.costs != nil {
		meta, ok := m.costs.Preview(actor, info)
		if !ok {
			return reject(RejectInsufficient, req.ClientAttemptID)
		}
		cost = meta
	}

	tr := m.resolveTiming(actor.Stats, info)
	scaledDuration := scale(info.Duration, tr.DurationScale)
	scaledRecovery := scale(info.Recovery, tr.DurationScale)

	cfg := CreateConfig{
		TargetID:    req.TargetID,
		MaxDuration: info.MaxDuration,
		Recovery:    scaledRecovery,
	}
	if info.Combo != nil {
		cfg.Combo = &ComboConfig{TotalSteps: info.Combo.TotalSteps}
	}

	sess, err := m.store.Create(actorID, req.SkillID, cfg)
	if err != nil {
		// LiveByActor was checked above; only a same-tick race inside one
		// handler chain can land here.
		return reject(RejectLocked, req.ClientAttemptID)
	}

	if m.costs != nil && cost.Amount > 0 {
		m.costs.Commit(actor, cost)
	}

	// 施放即時完成：CASTING 只是事件軌跡上的起點。
	m.store.Transition(sess.ID, StateActive, ReasonCastComplete)

	if info.Combo != nil {
		m.store.ExtendComboWindow(sess.ID, scale(info.Combo.Window, tr.DurationScale))
		m.scheduleStepHits(sess, info, 1, tr.DurationScale)
		m.store.EmitSnapshot(sess.ID)
	} else {
		m.scheduleStepHits(sess, info, 0, tr.DurationScale)
		m.store.StartRecovery(sess.ID, scaledDuration)
	}

	m.log.Debug("skill accepted",
		zap.Int32("actor", actorID),
		zap.Int32("skill", req.SkillID),
		zap.Uint64("session", sess.ID),
		zap.Float64("tempo", tr.Tempo))

	return UseSkillResult{Accepted: true, SessionID: sess.ID, ClientAttemptID: req.ClientAttemptID}
}

// AdvanceCombo advances the actor's live combo chain one step. Timing is
// re-resolved per step so stat changes mid-chain affect later windows.
func (m *Manager) AdvanceCombo(actorID int32, req AdvanceComboRequest) UseSkillResult {
	actor := m.world.Get(actorID)
	if actor == nil {
		return reject(RejectUnknownActor, req.ClientAttemptID)
	}
	if actor.Dead {
		return reject(RejectDead, req.ClientAttemptID)
	}

	sess := m.store.LiveByActor(actorID)
	if sess == nil || (req.SessionID != 0 && sess.ID != req.SessionID) {
		return reject(RejectNoSession, req.ClientAttemptID)
	}

	info := m.skills.Get(sess.SkillID)
	if info == nil || info.Combo == nil {
		return reject(RejectNoSession, req.ClientAttemptID)
	}

	if m.gate != nil {
		if ok, reason := m.gate.CanAdvance(actorID, sess.SkillID, true); !ok {
			return reject(reason, req.ClientAttemptID)
		}
	}

	step, err := m.store.AdvanceCombo(sess.ID)
	if err != nil {
		switch err {
		case ErrComboStepsExhausted:
			return reject(RejectStepsExhausted, req.ClientAttemptID)
		default:
			return reject(RejectWindowExpired, req.ClientAttemptID)
		}
	}

	tr := m.resolveTiming(actor.Stats, info)

	// 最後一段也要重開窗：排程器在窗口到期時送出 COMPLETED。
	m.store.ExtendComboWindow(sess.ID, scale(info.Combo.Window, tr.DurationScale))
	m.scheduleStepHits(sess, info, step, tr.DurationScale)
	m.store.EmitSnapshot(sess.ID)

	m.log.Debug("combo advanced",
		zap.Int32("actor", actorID),
		zap.Uint64("session", sess.ID),
		zap.Int("step", step))

	return UseSkillResult{Accepted: true, SessionID: sess.ID, ClientAttemptID: req.ClientAttemptID}
}

// Cancel interrupts the actor's live session, if any. Idempotent.
func (m *Manager) Cancel(actorID int32, reason string) bool {
	sess := m.store.LiveByActor(actorID)
	if sess == nil {
		return false
	}
	return m.store.Cancel(sess.ID, reason)
}

// HandleDisconnect cancels the live session of a departing actor.
func (m *Manager) HandleDisconnect(actorID int32) {
	m.Cancel(actorID, "disconnected")
}

// HandleDeath cancels the live session of an actor that just died.
func (m *Manager) HandleDeath(actorID int32) {
	m.Cancel(actorID, "death")
}

func (m *Manager) resolveTiming(stats world.Stats, info *data.SkillInfo) timing.Result {
	tr := m.timing.Resolve(stats, info.Tags)
	if m.scripts != nil {
		if tempo, ok := m.scripts.TempoOverride(info.SkillID, tr.Tempo); ok {
			tr.Tempo = tempo
			tr.DurationScale = 1.0 / tempo
		}
	}
	return tr
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}

// scheduleStepHits queues every hit attached to the given step. Zero-delay
// hits fire inline; delayed ones go through the store so cancellation and
// the generation guard apply.
func (m *Manager) scheduleStepHits(sess *Session, info *data.SkillInfo, step int, durationScale float64) {
	for _, h := range info.Hits {
		if h.Step != step {
			continue
		}
		hit := h
		if hit.Delay <= 0 {
			m.applyHit(sess.ActorID, sess.TargetID, info, hit, step)
			continue
		}
		m.store.ScheduleEffect(sess.ID, scale(hit.Delay, durationScale), func() {
			m.applyHit(sess.ActorID, sess.TargetID, info, hit, step)
		})
	}
}

// applyHit rolls one hit, runs the composer pipeline, and applies the
// resulting packets to pools. Exactly one application per scheduled hit.
func (m *Manager) applyHit(actorID, targetID int32, info *data.SkillInfo, hit data.HitSpec, step int) {
	actor := m.world.Get(actorID)
	if actor == nil || actor.Dead {
		return
	}
	if targetID == 0 {
		targetID = actorID
	}
	target := m.world.Get(targetID)
	if target == nil {
		return
	}

	roll := 0
	if hit.Dice > 0 && hit.DiceCount > 0 {
		roll = world.RollDice(hit.DiceCount, hit.Dice)
	}
	isCrit := actor.Stats.CritChance > 0 && world.RandInt(100) < int(actor.Stats.CritChance)

	amount := hit.BaseAmount + roll
	if m.scripts != nil {
		amount = m.scripts.CalcHitDamage(scripting.HitDamageContext{
			SkillID:       int(info.SkillID),
			DamageType:    hit.DamageType,
			BaseAmount:    hit.BaseAmount,
			Roll:          roll,
			ComboStep:     step,
			IsCrit:        isCrit,
			AttackerLevel: int(actor.Stats.Level),
			AttackerSTR:   int(actor.Stats.Str),
			AttackerDEX:   int(actor.Stats.Dex),
			AttackerINT:   int(actor.Stats.Intel),
			SpellPower:    int(actor.Stats.SpellPower),
			DmgMod:        int(actor.Stats.DmgMod),
			TargetLevel:   int(target.Stats.Level),
		})
	}
	if isCrit {
		amount *= 2
	}
	if amount < 0 {
		amount = 0
	}

	ctx := &combat.Context{
		ActorID:   actorID,
		TargetID:  targetID,
		SkillID:   info.SkillID,
		Tags:      info.Tags,
		ComboStep: step,
		IsCrit:    isCrit,
		Stats:     actor.Stats,
	}
	comp := m.composer.Resolve(combat.QueryAttack, ctx, combat.BaseAttack{
		SkillID:     info.SkillID,
		Tags:        info.Tags,
		DamageType:  hit.DamageType,
		Amount:      int32(amount),
		Penetration: int32(hit.Penetration),
		IsCrit:      isCrit,
		ComboStep:   step,
	})

	m.applyComposition(actor, target, comp)
}

// applyComposition writes the composed packets into pools. Damage and drains
// land on the target; heals land on the source.
func (m *Manager) applyComposition(actor, target *world.ActorInfo, comp *combat.Composition) {
	for _, p := range comp.Packets {
		switch p.Kind {
		case combat.PacketDamage:
			dealt := target.Drain("hp", p.Amount)
			if hp := target.Pool("hp"); hp != nil && hp.Cur <= 0 {
				target.Dead = true
				m.Cancel(target.ActorID, "death")
			}
			m.log.Debug("hit applied",
				zap.Int32("source", actor.ActorID),
				zap.Int32("target", target.ActorID),
				zap.String("type", p.DamageType),
				zap.Int32("amount", dealt),
				zap.Bool("crit", comp.Meta.IsCrit))
		case combat.PacketHeal:
			actor.Restore(poolOr(p.PoolID, "hp"), p.Amount)
		case combat.PacketDrain:
			pool := poolOr(p.PoolID, "mp")
			taken := target.Drain(pool, p.Amount)
			actor.Restore(pool, taken)
		case combat.PacketEffect, combat.PacketKnockback:
			// status effects and displacement are consumed downstream;
			// pools are not touched here
		}
	}
}

func poolOr(id, def string) string {
	if id == "" {
		return def
	}
	return id
}
