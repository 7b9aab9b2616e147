package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tajong-backend/config"
	"tajong-backend/internal/model"
	"tajong-backend/internal/parse"
)

// Options tune the engine. Zero values fall back to the daemon defaults.
type Options struct {
	Lateness    time.Duration
	PurgePolicy string
	Location    *time.Location
	Clock       func() time.Time
}

// Engine owns the cached next event and decides, once per tick, whether it
// plays, is missed, or is skipped. It is not safe for concurrent use; the
// runner serializes every call.
type Engine struct {
	catalog  Catalog
	resolver *Resolver
	ledger   *Ledger
	events   EventLog
	sink     Sink
	log      *zap.Logger
	opts     Options

	state      State
	next       *NextEvent
	lastSecond time.Time
	purgedDay  string
}

func NewEngine(catalog Catalog, resolver *Resolver, ledger *Ledger, events EventLog, sink Sink, log *zap.Logger, opts Options) *Engine {
	if opts.Lateness <= 0 {
		opts.Lateness = 5 * time.Second
	}
	if opts.PurgePolicy == "" {
		opts.PurgePolicy = config.PurgeOnRollover
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		catalog:  catalog,
		resolver: resolver,
		ledger:   ledger,
		events:   events,
		sink:     sink,
		log:      log,
		opts:     opts,
	}
}

func (e *Engine) now() time.Time {
	return e.opts.Clock().In(e.opts.Location)
}

// State returns the current run state.
func (e *Engine) State() State {
	return e.state
}

// Start moves the engine to RUNNING and recomputes the next event.
func (e *Engine) Start(ctx context.Context) error {
	e.state = StateRunning
	e.log.Info("engine started")
	return e.recompute(ctx, e.now())
}

// Pause stops automatic firing but keeps the cached event.
func (e *Engine) Pause() {
	if e.state == StateRunning {
		e.state = StatePaused
		e.log.Info("engine paused")
	}
}

// Resume returns a paused engine to RUNNING and recomputes.
func (e *Engine) Resume(ctx context.Context) error {
	if e.state != StatePaused {
		return nil
	}
	e.state = StateRunning
	e.log.Info("engine resumed")
	return e.recompute(ctx, e.now())
}

// Stop halts the engine and drops the cached event.
func (e *Engine) Stop() {
	e.state = StateStopped
	e.next = nil
	e.log.Info("engine stopped")
}

// CurrentNextEvent returns a copy of the cached event, or nil.
func (e *Engine) CurrentNextEvent() *NextEvent {
	if e.next == nil {
		return nil
	}
	ev := *e.next
	return &ev
}

// Tick evaluates the cached event against now. Every decision appends exactly
// one log entry and then recomputes.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	_, err := e.Step(ctx, now)
	return err
}

// Step is Tick that also reports how far the evaluation got.
func (e *Engine) Step(ctx context.Context, now time.Time) (Outcome, error) {
	if e.state != StateRunning {
		return OutcomeIdle, nil
	}
	now = now.In(e.opts.Location)

	paused, err := e.ledger.IsPausedDay(ctx, parse.DayKey(now))
	if err != nil {
		return OutcomeIdle, err
	}
	if paused {
		return OutcomeIdle, nil
	}

	sec := now.Truncate(time.Second)
	if sec.Equal(e.lastSecond) {
		return OutcomeIdle, nil
	}
	e.lastSecond = sec

	if e.next == nil {
		return OutcomeRecomputed, e.recompute(ctx, now)
	}
	ev := *e.next
	if now.Before(ev.RunAt) {
		return OutcomeIdle, nil
	}
	return e.decide(ctx, now, ev)
}

// decide settles a due occurrence as MISSED, SKIPPED or played. The cache is
// cleared before anything is written, so a failed write never settles the same
// occurrence twice; the remaining writes and the recompute still run.
func (e *Engine) decide(ctx context.Context, now time.Time, ev NextEvent) (Outcome, error) {
	if late := now.Sub(ev.RunAt); late >= e.opts.Lateness {
		e.next = nil
		detail := fmt.Sprintf("late=%ds", int64(late/time.Second))
		e.log.Warn("occurrence missed", zap.Int64("schedule_id", ev.ScheduleID), zap.String("detail", detail))
		logErr := e.appendLog(ctx, now, ev, model.ResultMissed, detail)
		return OutcomeDecided, errors.Join(logErr, e.recompute(ctx, now))
	}

	day := e.factDay(ev, now)
	skipped, err := e.ledger.Has(ctx, day, ev.ScheduleID, model.ActionSkipOnce)
	if err != nil {
		return OutcomeIdle, err
	}
	e.next = nil
	if skipped {
		logErr := e.appendLog(ctx, now, ev, model.ResultSkipped, "")
		return OutcomeDecided, errors.Join(logErr, e.recompute(ctx, now))
	}

	logErr := e.fire(ctx, now, ev, "")
	addErr := e.ledger.Add(ctx, day, ev.ScheduleID, model.ActionFiredOnce, "auto")
	return OutcomeDecided, errors.Join(logErr, addErr, e.recompute(ctx, now))
}

// RingNextNow plays the cached event immediately, regardless of state, pause
// or lateness, and suppresses its scheduled occurrence.
func (e *Engine) RingNextNow(ctx context.Context) error {
	if e.next == nil {
		return ErrNoNextEvent
	}
	now := e.now()
	ev := *e.next
	e.next = nil
	logErr := e.fire(ctx, now, ev, "forced")
	addErr := e.ledger.Add(ctx, e.factDay(ev, now), ev.ScheduleID, model.ActionFiredOnce, "forced")
	return errors.Join(logErr, addErr, e.recompute(ctx, now))
}

// SkipNextOnce suppresses the cached occurrence and moves on to the next one.
func (e *Engine) SkipNextOnce(ctx context.Context) error {
	if e.next == nil {
		return ErrNoNextEvent
	}
	now := e.now()
	ev := *e.next
	e.next = nil
	addErr := e.ledger.Add(ctx, e.factDay(ev, now), ev.ScheduleID, model.ActionSkipOnce, "admin")
	var logErr error
	if e.opts.PurgePolicy == config.PurgeOnRollover {
		detail := "manual run_at=" + ev.RunAt.Format("2006-01-02 15:04")
		logErr = e.appendLog(ctx, now, ev, model.ResultSkipped, detail)
	}
	return errors.Join(addErr, logErr, e.recompute(ctx, now))
}

// StopPlayback interrupts whatever the sink is playing. The schedule and the
// history are left alone.
func (e *Engine) StopPlayback() error {
	s, ok := e.sink.(Stopper)
	if !ok {
		return ErrNoPlaybackControl
	}
	if err := s.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}
	e.log.Info("playback stopped")
	return nil
}

// SetPauseToday pauses or unpauses automatic firing for the current calendar day.
func (e *Engine) SetPauseToday(ctx context.Context, paused bool) error {
	today := parse.DayKey(e.now())
	if err := e.ledger.SetPauseDay(ctx, today, paused); err != nil {
		return err
	}
	e.log.Info("pause today updated", zap.String("date", today), zap.Bool("paused", paused))
	return nil
}

// IsPausedToday reports whether today carries a day-wide pause.
func (e *Engine) IsPausedToday(ctx context.Context) (bool, error) {
	return e.ledger.IsPausedDay(ctx, parse.DayKey(e.now()))
}

// Invalidate recomputes after a catalog edit. A stopped engine stays empty.
func (e *Engine) Invalidate(ctx context.Context) error {
	if e.state == StateStopped {
		return nil
	}
	return e.recompute(ctx, e.now())
}

// SwitchActiveSet makes setID the active set, discards today's skip and
// fired facts and recomputes.
func (e *Engine) SwitchActiveSet(ctx context.Context, setID int64) error {
	if err := e.catalog.SetActiveSetID(ctx, setID); err != nil {
		return err
	}
	now := e.now()
	if err := e.ledger.PurgeTransient(ctx, parse.DayKey(now)); err != nil {
		return err
	}
	e.log.Info("active set switched", zap.Int64("set_id", setID))
	if e.state == StateStopped {
		return nil
	}
	return e.recompute(ctx, now)
}

// Status returns a display snapshot.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	now := e.now()
	paused, err := e.IsPausedToday(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{State: e.state, PausedToday: paused, Now: now, Next: e.CurrentNextEvent()}
	if st.Next != nil {
		st.RemainingSeconds = int64(st.Next.RunAt.Sub(now) / time.Second)
		if st.RemainingSeconds < 0 {
			st.RemainingSeconds = 0
		}
		st.Remaining = parse.FormatRemaining(st.RemainingSeconds)
	}
	return st, nil
}

func (e *Engine) recompute(ctx context.Context, now time.Time) error {
	today := parse.DayKey(now)
	switch e.opts.PurgePolicy {
	case config.PurgeOnEveryRecompute:
		if err := e.ledger.PurgeTransient(ctx, today); err != nil {
			return err
		}
	default:
		if e.purgedDay != today {
			if err := e.ledger.PurgeTransientBefore(ctx, today); err != nil {
				return err
			}
			e.purgedDay = today
		}
	}

	next, err := e.resolver.Resolve(ctx, now)
	if err != nil {
		return err
	}
	e.next = next
	if next != nil {
		e.log.Debug("next event",
			zap.Int64("schedule_id", next.ScheduleID),
			zap.String("name", next.Name),
			zap.Time("run_at", next.RunAt))
	} else {
		e.log.Debug("no upcoming event")
	}
	return nil
}

// factDay is the day a skip or fired fact is recorded against.
func (e *Engine) factDay(ev NextEvent, now time.Time) string {
	if e.opts.PurgePolicy == config.PurgeOnEveryRecompute {
		return parse.DayKey(now)
	}
	return ev.Day()
}

func (e *Engine) fire(ctx context.Context, now time.Time, ev NextEvent, detail string) error {
	result := model.ResultPlayed
	if err := e.play(ev); err != nil {
		result = model.ResultFailed
		detail = err.Error()
		e.log.Error("playback failed", zap.Int64("schedule_id", ev.ScheduleID), zap.Error(err))
	} else {
		e.log.Info("bell played", zap.Int64("schedule_id", ev.ScheduleID), zap.String("name", ev.Name))
	}
	return e.appendLog(ctx, now, ev, result, detail)
}

func (e *Engine) play(ev NextEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return e.sink.Play(ev.SoundFile, ev.Volume)
}

func (e *Engine) appendLog(ctx context.Context, now time.Time, ev NextEvent, result model.Result, detail string) error {
	entry := &model.EventLog{
		OccurredAt:   now,
		ScheduleID:   ev.ScheduleID,
		ScheduleName: ev.Name,
		SoundName:    ev.SoundName,
		Result:       result,
		Detail:       detail,
	}
	if err := e.events.InsertLog(ctx, entry); err != nil {
		return fmt.Errorf("failed to append %s log: %w", result, err)
	}
	return nil
}
