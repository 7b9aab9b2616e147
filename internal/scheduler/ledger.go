package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"tajong-backend/internal/model"
)

var transientActions = []model.OverrideAction{model.ActionSkipOnce, model.ActionFiredOnce}

// Ledger gives the override rows their meaning: skip-once and fired-once facts
// suppress one occurrence, a pause-day fact silences a whole calendar day.
//
// Transient facts are also held in memory until purged, so an occurrence that
// was already decided stays suppressed when writing its row fails.
type Ledger struct {
	rows  LedgerStore
	pause *cache.Cache

	mu    sync.Mutex
	facts map[fact]struct{}
}

type fact struct {
	date       string
	scheduleID int64
	action     model.OverrideAction
}

// NewLedger wraps rows. Pause-day lookups are cached for pauseTTL; zero disables caching.
func NewLedger(rows LedgerStore, pauseTTL time.Duration) *Ledger {
	l := &Ledger{rows: rows, facts: make(map[fact]struct{})}
	if pauseTTL > 0 {
		l.pause = cache.New(pauseTTL, 10*pauseTTL)
	}
	return l
}

// Add appends a fact; repeated facts accumulate. A transient fact takes effect
// in this process even when persisting it fails.
func (l *Ledger) Add(ctx context.Context, date string, scheduleID int64, action model.OverrideAction, note string) error {
	if isTransient(action) {
		l.mu.Lock()
		l.facts[fact{date, scheduleID, action}] = struct{}{}
		l.mu.Unlock()
	}
	if err := l.rows.AddOverride(ctx, date, scheduleID, action, note); err != nil {
		return err
	}
	if action == model.ActionPauseDay && l.pause != nil {
		l.pause.Delete(date)
	}
	return nil
}

// Has reports whether the fact (date, scheduleID, action) was recorded at least once.
func (l *Ledger) Has(ctx context.Context, date string, scheduleID int64, action model.OverrideAction) (bool, error) {
	if l.remembers(date, scheduleID, action) {
		return true, nil
	}
	return l.rows.HasOverride(ctx, date, scheduleID, action)
}

// Suppressed reports whether the occurrence of scheduleID on date was skipped or already fired.
func (l *Ledger) Suppressed(ctx context.Context, date string, scheduleID int64) (bool, error) {
	for _, action := range transientActions {
		if l.remembers(date, scheduleID, action) {
			return true, nil
		}
	}
	for _, action := range transientActions {
		ok, err := l.rows.HasOverride(ctx, date, scheduleID, action)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// IsPausedDay reports whether automatic firing is paused for the whole of date.
func (l *Ledger) IsPausedDay(ctx context.Context, date string) (bool, error) {
	if l.pause != nil {
		if v, found := l.pause.Get(date); found {
			return v.(bool), nil
		}
	}
	paused, err := l.rows.HasOverride(ctx, date, model.DayWideScheduleID, model.ActionPauseDay)
	if err != nil {
		return false, err
	}
	if l.pause != nil {
		l.pause.SetDefault(date, paused)
	}
	return paused, nil
}

// SetPauseDay records or clears the day-wide pause for date.
func (l *Ledger) SetPauseDay(ctx context.Context, date string, paused bool) error {
	var err error
	if paused {
		err = l.rows.AddOverride(ctx, date, model.DayWideScheduleID, model.ActionPauseDay, "admin")
	} else {
		err = l.rows.DeleteOverrides(ctx, date, model.ActionPauseDay)
	}
	if l.pause != nil {
		if err != nil {
			l.pause.Delete(date)
		} else {
			l.pause.SetDefault(date, paused)
		}
	}
	return err
}

// PurgeTransient deletes the skip-once and fired-once facts of date. Pause facts stay.
func (l *Ledger) PurgeTransient(ctx context.Context, date string) error {
	l.forget(func(d string) bool { return d == date })
	return l.rows.DeleteOverrides(ctx, date, transientActions...)
}

// PurgeTransientBefore deletes skip-once and fired-once facts dated before date.
func (l *Ledger) PurgeTransientBefore(ctx context.Context, date string) error {
	l.forget(func(d string) bool { return d < date })
	return l.rows.DeleteOverridesBefore(ctx, date, transientActions...)
}

func (l *Ledger) remembers(date string, scheduleID int64, action model.OverrideAction) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.facts[fact{date, scheduleID, action}]
	return ok
}

func (l *Ledger) forget(match func(date string) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for f := range l.facts {
		if match(f.date) {
			delete(l.facts, f)
		}
	}
}

func isTransient(action model.OverrideAction) bool {
	for _, a := range transientActions {
		if a == action {
			return true
		}
	}
	return false
}
