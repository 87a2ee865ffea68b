package persist

import (
	"context"
	"fmt"
)

// JournalEntry is one session transition bound for the audit journal.
type JournalEntry struct {
	SessionID  uint64
	SkillID    int32
	ActorID    int32
	State      string
	Reason     string
	ComboStep  int
	ServerTime int64 // unix millis
}

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// WriteBatch atomically inserts a batch of journal entries in a single
// transaction. Returns nil on success; on failure the caller keeps the batch
// and retries next flush.
func (r *JournalRepo) WriteBatch(ctx context.Context, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_journal (session_id, skill_id, actor_id, state, reason, combo_step, server_time)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			int64(e.SessionID), e.SkillID, e.ActorID, e.State, e.Reason, e.ComboStep, e.ServerTime,
		); err != nil {
			return fmt.Errorf("journal insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}
