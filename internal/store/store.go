package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tajong-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	// Catalog
	ActiveSetID(ctx context.Context) (int64, error)
	SetActiveSetID(ctx context.Context, setID int64) error
	ListEnabledSchedules(ctx context.Context, setID int64) ([]ScheduleRow, error)

	ListSounds(ctx context.Context) ([]model.Sound, error)
	GetSound(ctx context.Context, id int64) (*model.Sound, error)
	CreateSound(ctx context.Context, sound *model.Sound) error
	UpdateSound(ctx context.Context, sound *model.Sound) error
	DeleteSound(ctx context.Context, id int64) error

	ListSets(ctx context.Context) ([]model.ScheduleSet, error)
	CreateSet(ctx context.Context, set *model.ScheduleSet) error

	ListSchedules(ctx context.Context, setID int64) ([]model.Schedule, error)
	GetSchedule(ctx context.Context, id int64) (*model.Schedule, error)
	CreateSchedule(ctx context.Context, schedule *model.Schedule) error
	UpdateSchedule(ctx context.Context, schedule *model.Schedule) error
	DeleteSchedule(ctx context.Context, id int64) error

	// Override ledger rows
	AddOverride(ctx context.Context, date string, scheduleID int64, action model.OverrideAction, note string) error
	HasOverride(ctx context.Context, date string, scheduleID int64, action model.OverrideAction) (bool, error)
	DeleteOverrides(ctx context.Context, date string, actions ...model.OverrideAction) error
	DeleteOverridesBefore(ctx context.Context, date string, actions ...model.OverrideAction) error

	// Event log
	InsertLog(ctx context.Context, entry *model.EventLog) error
	ListLogs(ctx context.Context, filter LogFilter) ([]model.EventLog, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// ActiveSetID returns the persisted active set, or 0 when none is recorded. A
// value that is not a number is an error.
func (s *gormStore) ActiveSetID(ctx context.Context) (int64, error) {
	var setting model.Setting
	err := s.db.WithContext(ctx).First(&setting, "key = ?", model.SettingActiveSetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read active set: %w", err)
	}
	id, err := strconv.ParseInt(setting.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s setting %q: %w", model.SettingActiveSetID, setting.Value, err)
	}
	return id, nil
}

// SetActiveSetID records setID as the active set; the set must exist.
func (s *gormStore) SetActiveSetID(ctx context.Context, setID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var set model.ScheduleSet
		if err := tx.First(&set, setID).Error; err != nil {
			return notFound(err, "schedule set %d", setID)
		}
		setting := model.Setting{Key: model.SettingActiveSetID, Value: strconv.FormatInt(setID, 10)}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&setting).Error
	})
}

// ListEnabledSchedules returns the enabled schedules of a set joined with their
// sound defaults, ordered by time of day then id.
func (s *gormStore) ListEnabledSchedules(ctx context.Context, setID int64) ([]ScheduleRow, error) {
	var rows []ScheduleRow
	err := s.db.WithContext(ctx).
		Table("schedules").
		Select("schedules.id, schedules.set_id, schedules.name, schedules.weekday_mask, schedules.time_hhmm, " +
			"schedules.volume_override, schedules.enabled, " +
			"sounds.name AS sound_name, sounds.file_name AS sound_file, sounds.volume AS sound_volume").
		Joins("JOIN sounds ON sounds.id = schedules.sound_id").
		Where("schedules.set_id = ? AND schedules.enabled = ?", setID, true).
		Order("schedules.time_hhmm ASC, schedules.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules of set %d: %w", setID, err)
	}
	return rows, nil
}

func (s *gormStore) ListSounds(ctx context.Context) ([]model.Sound, error) {
	var sounds []model.Sound
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&sounds).Error; err != nil {
		return nil, fmt.Errorf("failed to list sounds: %w", err)
	}
	return sounds, nil
}

func (s *gormStore) GetSound(ctx context.Context, id int64) (*model.Sound, error) {
	var sound model.Sound
	if err := s.db.WithContext(ctx).First(&sound, id).Error; err != nil {
		return nil, notFound(err, "sound %d", id)
	}
	return &sound, nil
}

func (s *gormStore) CreateSound(ctx context.Context, sound *model.Sound) error {
	return s.db.WithContext(ctx).Create(sound).Error
}

func (s *gormStore) UpdateSound(ctx context.Context, sound *model.Sound) error {
	res := s.db.WithContext(ctx).Model(&model.Sound{ID: sound.ID}).
		Updates(map[string]any{"name": sound.Name, "volume": sound.Volume})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("sound %d: %w", sound.ID, ErrNotFound)
	}
	return nil
}

// DeleteSound removes a sound together with the schedules that use it.
func (s *gormStore) DeleteSound(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sound_id = ?", id).Delete(&model.Schedule{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Sound{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("sound %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

func (s *gormStore) ListSets(ctx context.Context) ([]model.ScheduleSet, error) {
	var sets []model.ScheduleSet
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&sets).Error; err != nil {
		return nil, fmt.Errorf("failed to list schedule sets: %w", err)
	}
	return sets, nil
}

func (s *gormStore) CreateSet(ctx context.Context, set *model.ScheduleSet) error {
	return s.db.WithContext(ctx).Create(set).Error
}

// ListSchedules returns every schedule of a set (enabled or not); setID 0 lists all sets.
func (s *gormStore) ListSchedules(ctx context.Context, setID int64) ([]model.Schedule, error) {
	q := s.db.WithContext(ctx).Order("sort_order ASC, time_hhmm ASC, id ASC")
	if setID != 0 {
		q = q.Where("set_id = ?", setID)
	}
	var schedules []model.Schedule
	if err := q.Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

func (s *gormStore) GetSchedule(ctx context.Context, id int64) (*model.Schedule, error) {
	var schedule model.Schedule
	if err := s.db.WithContext(ctx).First(&schedule, id).Error; err != nil {
		return nil, notFound(err, "schedule %d", id)
	}
	return &schedule, nil
}

func (s *gormStore) CreateSchedule(ctx context.Context, schedule *model.Schedule) error {
	return s.db.WithContext(ctx).Create(schedule).Error
}

func (s *gormStore) UpdateSchedule(ctx context.Context, schedule *model.Schedule) error {
	res := s.db.WithContext(ctx).Model(&model.Schedule{ID: schedule.ID}).Updates(map[string]any{
		"set_id":          schedule.SetID,
		"name":            schedule.Name,
		"weekday_mask":    schedule.WeekdayMask,
		"time_hhmm":       schedule.TimeHHMM,
		"sound_id":        schedule.SoundID,
		"volume_override": schedule.VolumeOverride,
		"enabled":         schedule.Enabled,
		"sort_order":      schedule.SortOrder,
		"updated_at":      time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("schedule %d: %w", schedule.ID, ErrNotFound)
	}
	return nil
}

func (s *gormStore) DeleteSchedule(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&model.Schedule{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("schedule %d: %w", id, ErrNotFound)
	}
	return nil
}

// AddOverride appends a ledger fact. Identical facts are not deduplicated.
func (s *gormStore) AddOverride(ctx context.Context, date string, scheduleID int64, action model.OverrideAction, note string) error {
	row := model.Override{Date: date, ScheduleID: scheduleID, Action: action, Note: note}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to add %s override for schedule %d on %s: %w", action, scheduleID, date, err)
	}
	return nil
}

// HasOverride reports whether any row matches (date, scheduleID, action).
func (s *gormStore) HasOverride(ctx context.Context, date string, scheduleID int64, action model.OverrideAction) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Override{}).
		Where("date = ? AND schedule_id = ? AND action = ?", date, scheduleID, action).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to query %s override for schedule %d on %s: %w", action, scheduleID, date, err)
	}
	return n > 0, nil
}

// DeleteOverrides removes the rows of the given actions on date.
func (s *gormStore) DeleteOverrides(ctx context.Context, date string, actions ...model.OverrideAction) error {
	if len(actions) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).
		Where("date = ? AND action IN ?", date, actions).
		Delete(&model.Override{}).Error; err != nil {
		return fmt.Errorf("failed to delete overrides on %s: %w", date, err)
	}
	return nil
}

// DeleteOverridesBefore removes the rows of the given actions dated strictly before date.
func (s *gormStore) DeleteOverridesBefore(ctx context.Context, date string, actions ...model.OverrideAction) error {
	if len(actions) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).
		Where("date < ? AND action IN ?", date, actions).
		Delete(&model.Override{}).Error; err != nil {
		return fmt.Errorf("failed to delete overrides before %s: %w", date, err)
	}
	return nil
}

func (s *gormStore) InsertLog(ctx context.Context, entry *model.EventLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to insert %s log for schedule %d: %w", entry.Result, entry.ScheduleID, err)
	}
	return nil
}

// ListLogs returns history rows newest first.
func (s *gormStore) ListLogs(ctx context.Context, filter LogFilter) ([]model.EventLog, error) {
	q := s.db.WithContext(ctx).Model(&model.EventLog{})
	if !filter.From.IsZero() {
		y, m, d := filter.From.Date()
		q = q.Where("occurred_at >= ?", time.Date(y, m, d, 0, 0, 0, 0, filter.From.Location()))
	}
	if !filter.To.IsZero() {
		y, m, d := filter.To.Date()
		q = q.Where("occurred_at < ?", time.Date(y, m, d+1, 0, 0, 0, 0, filter.To.Location()))
	}
	if filter.Result != "" {
		q = q.Where("result = ?", filter.Result)
	}
	if filter.Keyword != "" {
		k := "%" + filter.Keyword + "%"
		q = q.Where("(schedule_name LIKE ? OR sound_name LIKE ? OR detail LIKE ?)", k, k, k)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 5000 {
		limit = 500
	}

	var logs []model.EventLog
	if err := q.Order("id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	return logs, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
