package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain session queues, handle requests
	PhasePreUpdate               // 1: dispatch last tick's session events
	PhaseUpdate                  // 2: deadline scan + scheduled skill effects
	PhasePostUpdate              // 3: resource regen, bookkeeping
	PhaseOutput                  // 4: flush buffered frames to writers
	PhasePersist                 // 5: journal batch flush
	PhaseCleanup                 // 6: remove terminal sessions
)

// System is the interface every engine system implements. Update is called
// once per tick, always from the game loop goroutine.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
