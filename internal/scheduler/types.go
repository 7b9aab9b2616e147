package scheduler

import (
	"context"
	"errors"
	"time"

	"tajong-backend/internal/model"
	"tajong-backend/internal/parse"
	"tajong-backend/internal/store"
)

// ErrNoNextEvent is returned by manual operations when nothing is scheduled.
var ErrNoNextEvent = errors.New("no next event")

// ErrNoPlaybackControl is returned when the sink cannot interrupt playback.
var ErrNoPlaybackControl = errors.New("sink cannot stop playback")

// Catalog is the recurrence catalog as seen by the scheduler.
type Catalog interface {
	ActiveSetID(ctx context.Context) (int64, error)
	SetActiveSetID(ctx context.Context, setID int64) error
	ListEnabledSchedules(ctx context.Context, setID int64) ([]store.ScheduleRow, error)
}

// LedgerStore persists override ledger rows.
type LedgerStore interface {
	AddOverride(ctx context.Context, date string, scheduleID int64, action model.OverrideAction, note string) error
	HasOverride(ctx context.Context, date string, scheduleID int64, action model.OverrideAction) (bool, error)
	DeleteOverrides(ctx context.Context, date string, actions ...model.OverrideAction) error
	DeleteOverridesBefore(ctx context.Context, date string, actions ...model.OverrideAction) error
}

// EventLog receives one entry per firing decision.
type EventLog interface {
	InsertLog(ctx context.Context, entry *model.EventLog) error
}

// Sink plays a sound file at a volume in [0,2].
type Sink interface {
	Play(file string, volume float64) error
}

// Stopper is implemented by sinks that can cut a bell short.
type Stopper interface {
	Stop() error
}

// NextEvent is the single upcoming occurrence cached by the engine.
type NextEvent struct {
	ScheduleID int64     `json:"schedule_id"`
	Name       string    `json:"name"`
	RunAt      time.Time `json:"run_at"`
	SoundName  string    `json:"sound_name"`
	SoundFile  string    `json:"sound_file"`
	Volume     float64   `json:"volume"`
}

// Day returns the calendar-day key of the occurrence.
func (e NextEvent) Day() string {
	return parse.DayKey(e.RunAt)
}

// State is the run state of the engine.
type State int

const (
	StateStopped State = iota
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	default:
		return "STOPPED"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome reports how far a tick got.
type Outcome int

const (
	// OutcomeIdle: not running, paused today, a repeated second, or nothing due yet.
	OutcomeIdle Outcome = iota
	// OutcomeRecomputed: the cache was empty and the next event was resolved.
	OutcomeRecomputed
	// OutcomeDecided: the cached occurrence was played, missed or skipped.
	OutcomeDecided
)

// Status is a read-only snapshot for display.
type Status struct {
	State            State      `json:"state"`
	PausedToday      bool       `json:"paused_today"`
	Now              time.Time  `json:"now"`
	Next             *NextEvent `json:"next"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	Remaining        string     `json:"remaining"`
}
