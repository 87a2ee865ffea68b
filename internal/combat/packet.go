// Package combat builds composed attack results from a base attack plus an
// ordered, per-actor modifier pipeline.
package combat

// PacketKind discriminates the AttackPacket variant.
type PacketKind int8

const (
	PacketDamage PacketKind = iota
	PacketEffect
	PacketHeal
	PacketDrain
	PacketKnockback
)

func (k PacketKind) String() string {
	switch k {
	case PacketDamage:
		return "damage"
	case PacketEffect:
		return "effect"
	case PacketHeal:
		return "heal"
	case PacketDrain:
		return "drain"
	case PacketKnockback:
		return "knockback"
	}
	return "unknown"
}

// AttackPacket is one tagged variant of a composed attack. Only the fields of
// the active Kind are meaningful. Packets are produced fresh per resolution
// and never mutated after composition completes.
type AttackPacket struct {
	Kind PacketKind

	// damage
	DamageType  string
	Amount      int32
	Penetration int32

	// effect
	EffectID int32
	Chance   float64
	Params   map[string]float64

	// heal / drain
	PoolID string

	// knockback
	Force     float64
	Direction float64
}

// Metadata rides along with a composition for downstream consumers.
type Metadata struct {
	SkillID   int32
	Tags      []string
	IsCrit    bool
	ComboStep int
}

// Composition is the finished result of one Attack Composer resolution.
type Composition struct {
	Packets  []AttackPacket
	SourceID int32
	Meta     Metadata
}

// BaseAttack seeds a composition, typically with a single damage packet.
type BaseAttack struct {
	SkillID     int32
	Tags        []string
	DamageType  string
	Amount      int32
	Penetration int32
	IsCrit      bool
	ComboStep   int
}
