package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	coresys "github.com/skillcast/server/internal/core/system"
	"github.com/skillcast/server/internal/persist"
	"github.com/skillcast/server/internal/skill"
)

// JournalSystem buffers session transitions and batch-writes them to the
// database. Phase 5 (Persist). A failed flush keeps the batch for the next
// tick; the buffer is bounded so a dead database cannot grow it unbounded.
type JournalSystem struct {
	repo      *persist.JournalRepo
	batchSize int
	buf       []persist.JournalEntry
	log       *zap.Logger
}

func NewJournalSystem(repo *persist.JournalRepo, batchSize int, log *zap.Logger) *JournalSystem {
	if batchSize <= 0 {
		batchSize = 256
	}
	return &JournalSystem{
		repo:      repo,
		batchSize: batchSize,
		log:       log,
	}
}

// OnSessionEvent buffers one transition. Subscribed to the event bus.
func (s *JournalSystem) OnSessionEvent(ev skill.Event) {
	step := 0
	if ev.Combo != nil {
		step = ev.Combo.CurrentStep
	}
	s.buf = append(s.buf, persist.JournalEntry{
		SessionID:  ev.SessionID,
		SkillID:    ev.SkillID,
		ActorID:    ev.ActorID,
		State:      ev.State,
		Reason:     ev.Reason,
		ComboStep:  step,
		ServerTime: ev.ServerTime,
	})
	// Drop oldest entries when the database has been unreachable for long
	// enough to fill four batches.
	if max := s.batchSize * 4; len(s.buf) > max {
		s.buf = s.buf[len(s.buf)-max:]
	}
}

func (s *JournalSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *JournalSystem) Update(_ time.Duration) {
	if len(s.buf) == 0 {
		return
	}

	n := len(s.buf)
	if n > s.batchSize {
		n = s.batchSize
	}
	batch := s.buf[:n]

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.repo.WriteBatch(ctx, batch); err != nil {
		s.log.Error("日誌批次寫入失敗", zap.Error(err), zap.Int("entries", n))
		return
	}
	s.buf = s.buf[n:]
}

// Flush writes everything still buffered. Called on graceful shutdown.
func (s *JournalSystem) Flush() {
	for len(s.buf) > 0 {
		n := len(s.buf)
		if n > s.batchSize {
			n = s.batchSize
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := s.repo.WriteBatch(ctx, s.buf[:n])
		cancel()
		if err != nil {
			s.log.Error("關機日誌寫入失敗", zap.Error(err), zap.Int("entries", len(s.buf)))
			return
		}
		s.buf = s.buf[n:]
	}
}
