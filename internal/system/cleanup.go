package system

import (
	"time"

	coresys "github.com/skillcast/server/internal/core/system"
	"github.com/skillcast/server/internal/skill"
)

// CleanupSystem flushes the deferred terminal-session removal queue at tick
// end. Phase 6 (Cleanup).
type CleanupSystem struct {
	store *skill.Store
}

func NewCleanupSystem(store *skill.Store) *CleanupSystem {
	return &CleanupSystem{store: store}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.store.FlushRemovals()
}
