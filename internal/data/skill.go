package data

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Cooldown policies applied when a session ends in CANCELLED, keyed by the
// cancellation cause group. "full" starts the whole cooldown, "reduced"
// starts half of it, "none" skips it.
const (
	CooldownFull    = "full"
	CooldownReduced = "reduced"
	CooldownNone    = "none"
)

// ComboSpec describes the combo chain of a skill.
type ComboSpec struct {
	TotalSteps int
	Window     time.Duration // per-step advance window, before tempo scaling
}

// HitSpec is one scheduled hit instant. Step 0 hits fire on activation;
// combo skills attach hits to the step that triggers them.
type HitSpec struct {
	Step        int
	Delay       time.Duration
	DamageType  string
	BaseAmount  int
	Dice        int
	DiceCount   int
	Penetration int
}

// CostSpec is the resource debit committed when a session is accepted.
type CostSpec struct {
	PoolID string
	Amount int32
}

// CancelPolicy selects the cooldown behavior per cancellation cause.
type CancelPolicy struct {
	Interrupt string // staggered, death, explicit interrupt
	Timeout   string // hard execution deadline hit
	Reject    string // cancelled before any effect (explicit reject)
}

// SkillInfo holds a single skill template. Behavior is data: tags plus
// capability blocks consumed by one generic driver, not per-skill types.
type SkillInfo struct {
	SkillID     int32
	Name        string
	Tags        []string
	Duration    time.Duration // natural timeline (recovery for simple skills)
	MaxDuration time.Duration // per-skill hard deadline, capped by the engine
	Recovery    time.Duration // recovery after the last combo hit
	Cooldown    time.Duration
	Combo       *ComboSpec
	Hits        []HitSpec
	Cost        *CostSpec
	Cancel      CancelPolicy
}

// SkillTable holds all skills indexed by SkillID.
type SkillTable struct {
	skills map[int32]*SkillInfo
	byName map[string]*SkillInfo
}

// Get returns a skill by ID, or nil if not found.
func (t *SkillTable) Get(skillID int32) *SkillInfo {
	return t.skills[skillID]
}

// GetByName returns a skill by its exact name, or nil if not found.
func (t *SkillTable) GetByName(name string) *SkillInfo {
	return t.byName[name]
}

// Count returns total loaded skills.
func (t *SkillTable) Count() int {
	return len(t.skills)
}

// IDs returns all loaded skill IDs in ascending order.
func (t *SkillTable) IDs() []int32 {
	ids := make([]int32, 0, len(t.skills))
	for id := range t.skills {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Add inserts a skill template. Used by tests and tools; Load* is the
// production path.
func (t *SkillTable) Add(info *SkillInfo) {
	t.skills[info.SkillID] = info
	t.byName[info.Name] = info
}

// NewSkillTable returns an empty table.
func NewSkillTable() *SkillTable {
	return &SkillTable{
		skills: make(map[int32]*SkillInfo),
		byName: make(map[string]*SkillInfo),
	}
}

// --- YAML loading ---

type comboEntry struct {
	TotalSteps int `yaml:"total_steps"`
	WindowMs   int `yaml:"window_ms"`
}

type hitEntry struct {
	Step        int    `yaml:"step"`
	DelayMs     int    `yaml:"delay_ms"`
	DamageType  string `yaml:"damage_type"`
	BaseAmount  int    `yaml:"base_amount"`
	Dice        int    `yaml:"dice"`
	DiceCount   int    `yaml:"dice_count"`
	Penetration int    `yaml:"penetration"`
}

type costEntry struct {
	Pool   string `yaml:"pool"`
	Amount int32  `yaml:"amount"`
}

type skillEntry struct {
	SkillID         int32       `yaml:"skill_id"`
	Name            string      `yaml:"name"`
	Tags            []string    `yaml:"tags"`
	DurationMs      int         `yaml:"duration_ms"`
	MaxDurationMs   int         `yaml:"max_duration_ms"`
	RecoveryMs      int         `yaml:"recovery_ms"`
	CooldownMs      int         `yaml:"cooldown_ms"`
	Combo           *comboEntry `yaml:"combo"`
	Hits            []hitEntry  `yaml:"hits"`
	Cost            *costEntry  `yaml:"cost"`
	CancelInterrupt string      `yaml:"cancel_cooldown_interrupt"`
	CancelTimeout   string      `yaml:"cancel_cooldown_timeout"`
	CancelReject    string      `yaml:"cancel_cooldown_reject"`
}

type skillListFile struct {
	Skills []skillEntry `yaml:"skills"`
}

// LoadSkillTable loads skill definitions from YAML.
func LoadSkillTable(path string) (*SkillTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skills: %w", err)
	}
	var f skillListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse skills: %w", err)
	}
	t := NewSkillTable()
	for i := range f.Skills {
		e := &f.Skills[i]
		info := &SkillInfo{
			SkillID:     e.SkillID,
			Name:        e.Name,
			Tags:        e.Tags,
			Duration:    time.Duration(e.DurationMs) * time.Millisecond,
			MaxDuration: time.Duration(e.MaxDurationMs) * time.Millisecond,
			Recovery:    time.Duration(e.RecoveryMs) * time.Millisecond,
			Cooldown:    time.Duration(e.CooldownMs) * time.Millisecond,
			Cancel: CancelPolicy{
				Interrupt: policyOr(e.CancelInterrupt, CooldownReduced),
				Timeout:   policyOr(e.CancelTimeout, CooldownFull),
				Reject:    policyOr(e.CancelReject, CooldownNone),
			},
		}
		if e.MaxDurationMs <= 0 {
			// Hard deadline defaults to twice the natural timeline so the
			// timeout safety net is unreachable in correct operation.
			info.MaxDuration = 2 * info.Duration
		}
		if e.Combo != nil {
			info.Combo = &ComboSpec{
				TotalSteps: e.Combo.TotalSteps,
				Window:     time.Duration(e.Combo.WindowMs) * time.Millisecond,
			}
		}
		for _, h := range e.Hits {
			info.Hits = append(info.Hits, HitSpec{
				Step:        h.Step,
				Delay:       time.Duration(h.DelayMs) * time.Millisecond,
				DamageType:  h.DamageType,
				BaseAmount:  h.BaseAmount,
				Dice:        h.Dice,
				DiceCount:   h.DiceCount,
				Penetration: h.Penetration,
			})
		}
		if e.Cost != nil {
			info.Cost = &CostSpec{PoolID: e.Cost.Pool, Amount: e.Cost.Amount}
		}
		t.Add(info)
	}
	return t, nil
}

func policyOr(v, def string) string {
	switch v {
	case CooldownFull, CooldownReduced, CooldownNone:
		return v
	}
	return def
}
