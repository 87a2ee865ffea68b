package combat

import "go.uber.org/zap"

// Composer resolves a base attack into a finished composition. It is
// stateless with respect to sessions: it reads the context snapshot and
// writes nothing persistent.
type Composer struct {
	reg *Registry
	log *zap.Logger
}

func NewComposer(reg *Registry, log *zap.Logger) *Composer {
	return &Composer{reg: reg, log: log}
}

// Resolve seeds a composition from the base attack, then runs every
// registered modifier for the actor and query type in priority order, each
// given read/write access to the packet list. Output is deterministic for
// identical stats, base attack, and modifier set.
func (c *Composer) Resolve(q QueryType, ctx *Context, base BaseAttack) *Composition {
	result := &Composition{
		Packets: []AttackPacket{{
			Kind:        PacketDamage,
			DamageType:  base.DamageType,
			Amount:      base.Amount,
			Penetration: base.Penetration,
		}},
		SourceID: ctx.ActorID,
		Meta: Metadata{
			SkillID:   base.SkillID,
			Tags:      base.Tags,
			IsCrit:    base.IsCrit,
			ComboStep: base.ComboStep,
		},
	}

	for _, m := range c.reg.modifiers(ctx.ActorID, q) {
		if !m.Matches(ctx) {
			continue
		}
		m.Apply(ctx, result)
	}

	if c.log.Core().Enabled(zap.DebugLevel) {
		c.log.Debug("attack composed",
			zap.Int32("actor_id", ctx.ActorID),
			zap.Int32("skill_id", base.SkillID),
			zap.Int("packets", len(result.Packets)),
			zap.Bool("crit", base.IsCrit),
		)
	}
	return result
}
