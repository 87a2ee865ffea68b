package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for game logic execution.
// Single-goroutine access only (game loop). Hot-reload planned via atomic swap.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	// Load core scripts first, then feature scripts
	corePath := filepath.Join(scriptsDir, "core")
	if err := e.loadDir(corePath); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load core scripts: %w", err)
	}

	combatPath := filepath.Join(scriptsDir, "combat")
	if err := e.loadDir(combatPath); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load combat scripts: %w", err)
	}

	// Load optional feature script directories
	for _, sub := range []string{"skill", "timing"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}

	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// HitDamageContext holds pre-packed data for a single hit calculation.
// The dice roll is done on the Go side so replays stay deterministic.
type HitDamageContext struct {
	// Skill
	SkillID    int
	DamageType string
	BaseAmount int
	Roll       int // pre-rolled dice total
	ComboStep  int
	IsCrit     bool

	// Attacker
	AttackerLevel int
	AttackerSTR   int
	AttackerDEX   int
	AttackerINT   int
	SpellPower    int
	DmgMod        int

	// Target
	TargetLevel int
}

// CalcHitDamage calls the Lua calc_hit_damage function. Falls back to
// base amount plus roll when the script is missing or errors.
func (e *Engine) CalcHitDamage(ctx HitDamageContext) int {
	fallback := ctx.BaseAmount + ctx.Roll

	fn := e.vm.GetGlobal("calc_hit_damage")
	if fn == lua.LNil {
		return fallback
	}

	t := e.vm.NewTable()

	sk := e.vm.NewTable()
	sk.RawSetString("skill_id", lua.LNumber(ctx.SkillID))
	sk.RawSetString("damage_type", lua.LString(ctx.DamageType))
	sk.RawSetString("base", lua.LNumber(ctx.BaseAmount))
	sk.RawSetString("roll", lua.LNumber(ctx.Roll))
	sk.RawSetString("combo_step", lua.LNumber(ctx.ComboStep))
	sk.RawSetString("is_crit", lua.LBool(ctx.IsCrit))
	t.RawSetString("skill", sk)

	atk := e.vm.NewTable()
	atk.RawSetString("level", lua.LNumber(ctx.AttackerLevel))
	atk.RawSetString("str", lua.LNumber(ctx.AttackerSTR))
	atk.RawSetString("dex", lua.LNumber(ctx.AttackerDEX))
	atk.RawSetString("int", lua.LNumber(ctx.AttackerINT))
	atk.RawSetString("sp", lua.LNumber(ctx.SpellPower))
	atk.RawSetString("dmg_mod", lua.LNumber(ctx.DmgMod))
	t.RawSetString("attacker", atk)

	tgt := e.vm.NewTable()
	tgt.RawSetString("level", lua.LNumber(ctx.TargetLevel))
	t.RawSetString("target", tgt)

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua calc_hit_damage error", zap.Error(err))
		return fallback
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	n, ok := result.(lua.LNumber)
	if !ok {
		e.log.Error("lua calc_hit_damage returned non-number")
		return fallback
	}
	return int(n)
}

// TempoOverride calls the Lua tempo_override function if defined. Returns
// the overridden tempo and true, or the base tempo and false when the
// script declines (returns nil) or is absent.
func (e *Engine) TempoOverride(skillID int32, baseTempo float64) (float64, bool) {
	fn := e.vm.GetGlobal("tempo_override")
	if fn == lua.LNil {
		return baseTempo, false
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(skillID), lua.LNumber(baseTempo)); err != nil {
		e.log.Error("lua tempo_override error", zap.Error(err))
		return baseTempo, false
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	n, ok := result.(lua.LNumber)
	if !ok || float64(n) <= 0 {
		return baseTempo, false
	}
	return float64(n), true
}

// CostScale calls the Lua cost_scale function if defined. Returns the
// adjusted cost, or the base cost unchanged when the script is absent.
func (e *Engine) CostScale(skillID int32, poolID string, base int32) int32 {
	fn := e.vm.GetGlobal("cost_scale")
	if fn == lua.LNil {
		return base
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(skillID), lua.LString(poolID), lua.LNumber(base)); err != nil {
		e.log.Error("lua cost_scale error", zap.Error(err))
		return base
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	n, ok := result.(lua.LNumber)
	if !ok || n < 0 {
		return base
	}
	return int32(n)
}

// Close releases the underlying VM.
func (e *Engine) Close() {
	e.vm.Close()
}
