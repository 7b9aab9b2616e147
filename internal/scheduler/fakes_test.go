package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"tajong-backend/internal/model"
	"tajong-backend/internal/store"
)

// memStore is an in-memory Catalog, LedgerStore and EventLog.
type memStore struct {
	activeSet  int64
	sets       map[int64]bool
	rows       []store.ScheduleRow
	overrides  []model.Override
	logs       []model.EventLog
	listCalls  int
	logErr     error
	ledgerErr  error
	addErr     error // AddOverride only; reads still succeed
	catalogErr error
}

func newMemStore(rows ...store.ScheduleRow) *memStore {
	m := &memStore{activeSet: 1, sets: map[int64]bool{1: true}}
	for _, r := range rows {
		if r.SetID == 0 {
			r.SetID = 1
		}
		m.sets[r.SetID] = true
		m.rows = append(m.rows, r)
	}
	return m
}

func (m *memStore) ActiveSetID(ctx context.Context) (int64, error) {
	return m.activeSet, m.catalogErr
}

func (m *memStore) SetActiveSetID(ctx context.Context, setID int64) error {
	if !m.sets[setID] {
		return store.ErrNotFound
	}
	m.activeSet = setID
	return nil
}

func (m *memStore) ListEnabledSchedules(ctx context.Context, setID int64) ([]store.ScheduleRow, error) {
	m.listCalls++
	if m.catalogErr != nil {
		return nil, m.catalogErr
	}
	var out []store.ScheduleRow
	for _, r := range m.rows {
		if r.SetID == setID && r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) deleteSchedule(id int64) {
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	m.rows = kept
}

func (m *memStore) AddOverride(ctx context.Context, date string, scheduleID int64, action model.OverrideAction, note string) error {
	if m.ledgerErr != nil {
		return m.ledgerErr
	}
	if m.addErr != nil {
		return m.addErr
	}
	m.overrides = append(m.overrides, model.Override{
		ID: int64(len(m.overrides) + 1), Date: date, ScheduleID: scheduleID, Action: action, Note: note,
	})
	return nil
}

func (m *memStore) HasOverride(ctx context.Context, date string, scheduleID int64, action model.OverrideAction) (bool, error) {
	if m.ledgerErr != nil {
		return false, m.ledgerErr
	}
	for _, o := range m.overrides {
		if o.Date == date && o.ScheduleID == scheduleID && o.Action == action {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) DeleteOverrides(ctx context.Context, date string, actions ...model.OverrideAction) error {
	return m.deleteWhere(func(o model.Override) bool { return o.Date == date && hasAction(actions, o.Action) })
}

func (m *memStore) DeleteOverridesBefore(ctx context.Context, date string, actions ...model.OverrideAction) error {
	return m.deleteWhere(func(o model.Override) bool { return o.Date < date && hasAction(actions, o.Action) })
}

func (m *memStore) deleteWhere(match func(model.Override) bool) error {
	if m.ledgerErr != nil {
		return m.ledgerErr
	}
	kept := m.overrides[:0]
	for _, o := range m.overrides {
		if !match(o) {
			kept = append(kept, o)
		}
	}
	m.overrides = kept
	return nil
}

func hasAction(actions []model.OverrideAction, a model.OverrideAction) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

func (m *memStore) InsertLog(ctx context.Context, entry *model.EventLog) error {
	if m.logErr != nil {
		return m.logErr
	}
	entry.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *memStore) count(action model.OverrideAction) int {
	n := 0
	for _, o := range m.overrides {
		if o.Action == action {
			n++
		}
	}
	return n
}

type played struct {
	file   string
	volume float64
}

type fakeSink struct {
	calls []played
	err   error
	panic bool
}

func (s *fakeSink) Play(file string, volume float64) error {
	s.calls = append(s.calls, played{file, volume})
	if s.panic {
		panic("device gone")
	}
	return s.err
}

var errDisk = errors.New("disk I/O error")

// fakeClock is a settable wall clock.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Set(t time.Time) { c.now = t }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// at returns 2024-01-<day> hh:mm:ss UTC. 2024-01-01 is a Monday.
func at(day, hh, mm, ss int) time.Time {
	return time.Date(2024, time.January, day, hh, mm, ss, 0, time.UTC)
}

func row(id int64, name string, mask int, hhmm string) store.ScheduleRow {
	return store.ScheduleRow{
		ID: id, SetID: 1, Name: name, WeekdayMask: mask, TimeHHMM: hhmm, Enabled: true,
		SoundName: "bell-" + name, SoundFile: name + ".wav", SoundVolume: 1.0,
	}
}

type harness struct {
	store  *memStore
	sink   *fakeSink
	clock  *fakeClock
	ledger *Ledger
	engine *Engine
}

func newHarness(t *testing.T, policy string, rows ...store.ScheduleRow) *harness {
	t.Helper()
	h := &harness{store: newMemStore(rows...), sink: &fakeSink{}, clock: &fakeClock{now: at(1, 8, 0, 0)}}
	h.ledger = NewLedger(h.store, 0)
	resolver := NewResolver(h.store, h.ledger, DefaultLookaheadDays, zap.NewNop())
	h.engine = NewEngine(h.store, resolver, h.ledger, h.store, h.sink, zap.NewNop(), Options{
		Lateness:    5 * time.Second,
		PurgePolicy: policy,
		Location:    time.UTC,
		Clock:       h.clock.Now,
	})
	return h
}
