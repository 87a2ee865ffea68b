package data

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const skillYAML = `
skills:
  - skill_id: 1
    name: "Jab"
    tags: ["physical", "melee"]
    duration_ms: 1000
    cooldown_ms: 2000
    hits:
      - step: 0
        delay_ms: 150
        damage_type: "physical"
        base_amount: 4
        dice: 6
        dice_count: 1
  - skill_id: 2
    name: "Flurry"
    tags: ["physical"]
    duration_ms: 500
    recovery_ms: 400
    cooldown_ms: 4000
    combo:
      total_steps: 3
      window_ms: 600
    hits:
      - step: 1
        damage_type: "physical"
        base_amount: 3
    cancel_cooldown_interrupt: "reduced"
    cancel_cooldown_timeout: "full"
    cancel_cooldown_reject: "none"
  - skill_id: 3
    name: "Fireball"
    tags: ["magic", "fire"]
    duration_ms: 1500
    max_duration_ms: 4000
    cooldown_ms: 6000
    cost:
      pool: "mp"
      amount: 12
`

func TestLoadSkillTable(t *testing.T) {
	path := writeYAML(t, "skills.yaml", skillYAML)
	table, err := LoadSkillTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if table.Count() != 3 {
		t.Fatalf("count: got %d, want 3", table.Count())
	}

	jab := table.Get(1)
	if jab == nil || jab.Name != "Jab" {
		t.Fatalf("jab: %+v", jab)
	}
	if jab.Duration != time.Second || jab.Cooldown != 2*time.Second {
		t.Fatalf("jab timing: dur=%v cd=%v", jab.Duration, jab.Cooldown)
	}
	if len(jab.Hits) != 1 {
		t.Fatalf("jab hits: %d", len(jab.Hits))
	}
	h := jab.Hits[0]
	if h.Delay != 150*time.Millisecond || h.BaseAmount != 4 || h.Dice != 6 || h.DiceCount != 1 {
		t.Fatalf("jab hit: %+v", h)
	}

	flurry := table.Get(2)
	if flurry.Combo == nil || flurry.Combo.TotalSteps != 3 || flurry.Combo.Window != 600*time.Millisecond {
		t.Fatalf("flurry combo: %+v", flurry.Combo)
	}
	if flurry.Recovery != 400*time.Millisecond {
		t.Fatalf("flurry recovery: %v", flurry.Recovery)
	}

	fireball := table.Get(3)
	if fireball.Cost == nil || fireball.Cost.PoolID != "mp" || fireball.Cost.Amount != 12 {
		t.Fatalf("fireball cost: %+v", fireball.Cost)
	}
	if fireball.MaxDuration != 4*time.Second {
		t.Fatalf("fireball max duration: %v", fireball.MaxDuration)
	}

	if table.GetByName("Flurry") != flurry {
		t.Fatal("lookup by name broken")
	}
	if table.Get(99) != nil {
		t.Fatal("unknown id returned a skill")
	}
}

func TestMaxDurationDefaultsToTwiceDuration(t *testing.T) {
	path := writeYAML(t, "skills.yaml", skillYAML)
	table, err := LoadSkillTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	jab := table.Get(1)
	if jab.MaxDuration != 2*jab.Duration {
		t.Fatalf("max duration: got %v, want %v", jab.MaxDuration, 2*jab.Duration)
	}
}

func TestCancelPolicyDefaults(t *testing.T) {
	path := writeYAML(t, "skills.yaml", skillYAML)
	table, err := LoadSkillTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// Jab declares no policy and gets the defaults.
	jab := table.Get(1)
	if jab.Cancel.Interrupt != CooldownReduced || jab.Cancel.Timeout != CooldownFull || jab.Cancel.Reject != CooldownNone {
		t.Fatalf("default policy: %+v", jab.Cancel)
	}

	// Flurry declares all three explicitly.
	flurry := table.Get(2)
	if flurry.Cancel.Interrupt != CooldownReduced || flurry.Cancel.Timeout != CooldownFull || flurry.Cancel.Reject != CooldownNone {
		t.Fatalf("explicit policy: %+v", flurry.Cancel)
	}
}

func TestLoadSkillTableMissingFile(t *testing.T) {
	if _, err := LoadSkillTable(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file did not error")
	}
}

const timingYAML = `
categories:
  - name: "melee"
    stat: "attack_speed"
    baseline: 100
  - name: "spell"
    stat: "cast_speed"
    baseline: 100
aliases:
  - tag: "physical"
    category: "melee"
  - tag: "magic"
    category: "spell"
  - tag: "fire"
    category: "spell"
fallback: "melee"
`

func TestLoadTimingTable(t *testing.T) {
	path := writeYAML(t, "timing.yaml", timingYAML)
	table, err := LoadTimingTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if table.Count() != 2 {
		t.Fatalf("count: got %d, want 2", table.Count())
	}

	// Alias and direct name resolve to the same category.
	if c := table.Category("fire"); c == nil || c.Name != "spell" {
		t.Fatalf("fire: %+v", c)
	}
	if c := table.Category("spell"); c == nil || c.Stat != "cast_speed" {
		t.Fatalf("spell: %+v", c)
	}
	if table.Category("unmapped") != nil {
		t.Fatal("unmapped tag resolved")
	}
	if f := table.Fallback(); f == nil || f.Name != "melee" {
		t.Fatalf("fallback: %+v", f)
	}
}

func TestLoadTimingTableRejectsBadBaseline(t *testing.T) {
	path := writeYAML(t, "timing.yaml", `
categories:
  - name: "melee"
    stat: "attack_speed"
    baseline: 0
`)
	if _, err := LoadTimingTable(path); err == nil {
		t.Fatal("zero baseline accepted")
	}
}
