package system

import (
	"time"

	"github.com/skillcast/server/internal/core/event"
	coresys "github.com/skillcast/server/internal/core/system"
)

// EventSystem swaps the event bus buffers and dispatches everything emitted
// during the previous tick. Phase 1 (PreUpdate), so subscribers observe a
// consistent world state from before this tick's mutations.
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem {
	return &EventSystem{bus: bus}
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}
