// Package timing maps a skill's tag set to a stat-derived tempo. Tempo scales
// execution speed; every duration in a session's timeline is multiplied by
// its reciprocal.
package timing

import (
	"go.uber.org/zap"

	"github.com/skillcast/server/internal/data"
	"github.com/skillcast/server/internal/world"
)

// Result is a pure function of the stat snapshot and tag set. It is never
// stored; callers recompute it per resolution.
type Result struct {
	Tempo         float64
	DurationScale float64
	StatUsed      string
}

type Resolver struct {
	table    *data.TimingTable
	minTempo float64
	maxTempo float64
	log      *zap.Logger
}

func NewResolver(table *data.TimingTable, minTempo, maxTempo float64, log *zap.Logger) *Resolver {
	return &Resolver{
		table:    table,
		minTempo: minTempo,
		maxTempo: maxTempo,
		log:      log,
	}
}

// Resolve picks the first tag that maps to a timing category (falling back to
// the table default), reads the category's driving stat from the snapshot,
// and clamps the derived tempo to [minTempo, maxTempo].
func (r *Resolver) Resolve(stats world.Stats, tags []string) Result {
	cat := r.table.Fallback()
	for _, tag := range tags {
		if c := r.table.Category(tag); c != nil {
			cat = c
			break
		}
	}
	if cat == nil {
		r.log.Warn("timing table has no fallback category")
		return Result{Tempo: 1, DurationScale: 1}
	}

	val, ok := stats.Stat(cat.Stat)
	if !ok || val <= 0 {
		val = cat.Baseline
	}

	tempo := float64(val) / float64(cat.Baseline)
	if tempo < r.minTempo {
		tempo = r.minTempo
	}
	if tempo > r.maxTempo {
		tempo = r.maxTempo
	}

	return Result{
		Tempo:         tempo,
		DurationScale: 1 / tempo,
		StatUsed:      cat.Stat,
	}
}
