package system

import (
	"time"

	coresys "github.com/skillcast/server/internal/core/system"
	"github.com/skillcast/server/internal/skill"
)

// SkillTickSystem runs the session store's deadline scan and fires due
// scheduled effects. Phase 2 (Update).
type SkillTickSystem struct {
	store *skill.Store
}

func NewSkillTickSystem(store *skill.Store) *SkillTickSystem {
	return &SkillTickSystem{store: store}
}

func (s *SkillTickSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *SkillTickSystem) Update(_ time.Duration) {
	s.store.Tick()
}
