package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tajong-backend/internal/parse"
	"tajong-backend/internal/store"
)

// DefaultLookaheadDays covers today plus one full week.
const DefaultLookaheadDays = 8

// Resolver finds the earliest upcoming occurrence of the active set.
type Resolver struct {
	catalog       Catalog
	ledger        *Ledger
	lookaheadDays int
	log           *zap.Logger
}

func NewResolver(catalog Catalog, ledger *Ledger, lookaheadDays int, log *zap.Logger) *Resolver {
	if lookaheadDays <= 0 {
		lookaheadDays = DefaultLookaheadDays
	}
	return &Resolver{catalog: catalog, ledger: ledger, lookaheadDays: lookaheadDays, log: log}
}

// Resolve returns the next occurrence strictly after now, or nil when none
// falls inside the lookahead window.
func (r *Resolver) Resolve(ctx context.Context, now time.Time) (*NextEvent, error) {
	setID, err := r.catalog.ActiveSetID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read active set: %w", err)
	}
	rows, err := r.catalog.ListEnabledSchedules(ctx, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules of set %d: %w", setID, err)
	}
	return r.resolveRows(ctx, now, rows)
}

func (r *Resolver) resolveRows(ctx context.Context, now time.Time, rows []store.ScheduleRow) (*NextEvent, error) {
	clocks := make(map[int64]parse.Clock, len(rows))
	for _, row := range rows {
		c, err := parse.ParseClock(row.TimeHHMM)
		if err != nil {
			r.log.Warn("ignoring schedule with invalid time",
				zap.Int64("schedule_id", row.ID), zap.String("time", row.TimeHHMM))
			continue
		}
		clocks[row.ID] = c
	}

	today := parse.StartOfDay(now)
	for offset := 0; offset < r.lookaheadDays; offset++ {
		day := today.AddDate(0, 0, offset)
		key := parse.DayKey(day)
		bit := parse.WeekdayBit(day)

		var best *NextEvent
		for _, row := range rows {
			if !row.Enabled || row.WeekdayMask&bit == 0 {
				continue
			}
			c, ok := clocks[row.ID]
			if !ok {
				continue
			}
			runAt := c.On(day)
			if offset == 0 && !runAt.After(now) {
				continue
			}
			if best != nil && !earlier(runAt, row.ID, best) {
				continue
			}
			suppressed, err := r.ledger.Suppressed(ctx, key, row.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to read ledger for %s/%d: %w", key, row.ID, err)
			}
			if suppressed {
				continue
			}
			best = &NextEvent{
				ScheduleID: row.ID,
				Name:       row.Name,
				RunAt:      runAt,
				SoundName:  row.SoundName,
				SoundFile:  row.SoundFile,
				Volume:     row.EffectiveVolume(),
			}
		}
		if best != nil {
			return best, nil
		}
	}
	return nil, nil
}

// earlier orders candidates by time, then by schedule id.
func earlier(runAt time.Time, id int64, than *NextEvent) bool {
	if runAt.Equal(than.RunAt) {
		return id < than.ScheduleID
	}
	return runAt.Before(than.RunAt)
}
