// Package cost previews and commits skill resource debits against world
// pools. Preview never mutates; Commit is called only after the session was
// accepted, so rejected requests spend nothing.
package cost

import (
	"go.uber.org/zap"

	"github.com/skillcast/server/internal/data"
	"github.com/skillcast/server/internal/scripting"
	"github.com/skillcast/server/internal/skill"
	"github.com/skillcast/server/internal/world"
)

// Resolver implements skill.CostResolver.
type Resolver struct {
	log     *zap.Logger
	scripts *scripting.Engine // nil = table costs as-is
}

func NewResolver(scripts *scripting.Engine, log *zap.Logger) *Resolver {
	return &Resolver{log: log, scripts: scripts}
}

// Preview computes the effective cost and checks affordability. 免費技能
// 回傳零額度的 CostMeta，一律視為可負擔。
func (r *Resolver) Preview(actor *world.ActorInfo, info *data.SkillInfo) (skill.CostMeta, bool) {
	if info.Cost == nil || info.Cost.Amount <= 0 {
		return skill.CostMeta{}, true
	}

	amount := info.Cost.Amount
	if r.scripts != nil {
		amount = r.scripts.CostScale(info.SkillID, info.Cost.PoolID, amount)
	}
	if amount <= 0 {
		return skill.CostMeta{}, true
	}

	pool := actor.Pool(info.Cost.PoolID)
	if pool == nil || pool.Cur < amount {
		return skill.CostMeta{}, false
	}
	return skill.CostMeta{PoolID: info.Cost.PoolID, Amount: amount}, true
}

// Commit debits the previewed cost.
func (r *Resolver) Commit(actor *world.ActorInfo, meta skill.CostMeta) {
	if meta.Amount <= 0 {
		return
	}
	actor.Drain(meta.PoolID, meta.Amount)
	r.log.Debug("cost committed",
		zap.Int32("actor", actor.ActorID),
		zap.String("pool", meta.PoolID),
		zap.Int32("amount", meta.Amount))
}
