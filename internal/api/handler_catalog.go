package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tajong-backend/internal/model"
	"tajong-backend/internal/parse"
	"tajong-backend/internal/scheduler"
	"tajong-backend/internal/store"
)

type soundRequest struct {
	Name     string   `json:"name" binding:"required"`
	FileName string   `json:"file_name" binding:"required"`
	Volume   *float64 `json:"volume"`
}

// GetSounds lists the sound catalog.
func (h *Handler) GetSounds(c *gin.Context) {
	sounds, err := h.store.ListSounds(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sounds)
}

// PostSound registers a sound file that exists in the sounds directory.
func (h *Handler) PostSound(c *gin.Context) {
	sound, ok := h.bindSound(c)
	if !ok {
		return
	}
	if err := h.store.CreateSound(c.Request.Context(), sound); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sound)
}

// PutSound renames a sound or changes its default volume.
func (h *Handler) PutSound(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sound, ok := h.bindSound(c)
	if !ok {
		return
	}
	sound.ID = id
	if err := h.store.UpdateSound(c.Request.Context(), sound); err != nil {
		writeError(c, err)
		return
	}
	h.invalidate(c)
	updated, err := h.store.GetSound(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteSound removes a sound and every schedule that rings it.
func (h *Handler) DeleteSound(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteSound(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	h.invalidate(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) bindSound(c *gin.Context) (*model.Sound, bool) {
	var req soundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return nil, false
	}
	if h.library != nil {
		if _, err := h.library.Resolve(req.FileName); err != nil {
			writeError(c, err)
			return nil, false
		}
	}
	volume := 1.0
	if req.Volume != nil {
		volume = store.ClampVolume(*req.Volume)
	}
	return &model.Sound{Name: strings.TrimSpace(req.Name), FileName: req.FileName, Volume: volume}, true
}

// GetSoundFiles lists the files available in the sounds directory.
func (h *Handler) GetSoundFiles(c *gin.Context) {
	if h.library == nil {
		c.JSON(http.StatusOK, []string{})
		return
	}
	files, err := h.library.List()
	if err != nil {
		writeError(c, err)
		return
	}
	if files == nil {
		files = []string{}
	}
	c.JSON(http.StatusOK, files)
}

// PostSoundFile stores an uploaded audio file in the sounds directory.
func (h *Handler) PostSoundFile(c *gin.Context) {
	if h.library == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "sounds are managed by the remote player"})
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	f, err := header.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()

	name, err := h.library.Save(header.Filename, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file_name": name})
}

type setRequest struct {
	Name string `json:"name" binding:"required"`
}

// GetSets lists schedule sets and marks the active one.
func (h *Handler) GetSets(c *gin.Context) {
	ctx := c.Request.Context()
	sets, err := h.store.ListSets(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	active, err := h.store.ActiveSetID(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sets": sets, "active_set_id": active})
}

// PostSet creates an empty schedule set.
func (h *Handler) PostSet(c *gin.Context) {
	var req setRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	set := &model.ScheduleSet{Name: strings.TrimSpace(req.Name)}
	if err := h.store.CreateSet(c.Request.Context(), set); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, set)
}

type activeSetRequest struct {
	SetID int64 `json:"set_id" binding:"required"`
}

// PutActiveSet switches the active set, which purges today's transient
// overrides and recomputes the next event.
func (h *Handler) PutActiveSet(c *gin.Context) {
	var req activeSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.runAndReport(c, func(ctx context.Context, e *scheduler.Engine) error {
		return e.SwitchActiveSet(ctx, req.SetID)
	})
}

type scheduleRequest struct {
	SetID          int64    `json:"set_id"`
	Name           string   `json:"name" binding:"required"`
	Weekdays       string   `json:"weekdays"`
	WeekdayMask    *int     `json:"weekday_mask"`
	Time           string   `json:"time" binding:"required"`
	SoundID        int64    `json:"sound_id" binding:"required"`
	VolumeOverride *float64 `json:"volume_override"`
	Enabled        *bool    `json:"enabled"`
	SortOrder      int      `json:"sort_order"`
}

// GetSchedules lists schedules of ?set_id=, the active set by default, or all sets with set_id=all.
func (h *Handler) GetSchedules(c *gin.Context) {
	ctx := c.Request.Context()
	var setID int64
	switch v := c.Query("set_id"); v {
	case "all":
	case "":
		active, err := h.store.ActiveSetID(ctx)
		if err != nil {
			writeError(c, err)
			return
		}
		setID = active
	default:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			badRequest(c, fmt.Errorf("invalid set_id %q", v))
			return
		}
		setID = id
	}

	schedules, err := h.store.ListSchedules(ctx, setID)
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]scheduleView, len(schedules))
	for i, s := range schedules {
		views[i] = newScheduleView(s, h.now())
	}
	c.JSON(http.StatusOK, views)
}

// PostSchedule adds a schedule to a set, the active one by default.
func (h *Handler) PostSchedule(c *gin.Context) {
	schedule, ok := h.bindSchedule(c)
	if !ok {
		return
	}
	if err := h.store.CreateSchedule(c.Request.Context(), schedule); err != nil {
		writeError(c, err)
		return
	}
	h.invalidate(c)
	c.JSON(http.StatusCreated, newScheduleView(*schedule, h.now()))
}

// PutSchedule replaces a schedule definition.
func (h *Handler) PutSchedule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	schedule, ok := h.bindSchedule(c)
	if !ok {
		return
	}
	schedule.ID = id
	if err := h.store.UpdateSchedule(c.Request.Context(), schedule); err != nil {
		writeError(c, err)
		return
	}
	h.invalidate(c)
	updated, err := h.store.GetSchedule(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newScheduleView(*updated, h.now()))
}

// DeleteSchedule removes a schedule.
func (h *Handler) DeleteSchedule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteSchedule(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	h.invalidate(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) bindSchedule(c *gin.Context) (*model.Schedule, bool) {
	ctx := c.Request.Context()
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return nil, false
	}

	var mask int
	switch {
	case req.WeekdayMask != nil:
		mask = *req.WeekdayMask
		if mask < 0 || mask > parse.AllDays {
			badRequest(c, fmt.Errorf("weekday_mask %d out of range", mask))
			return nil, false
		}
	case req.Weekdays != "":
		m, err := parse.ParseWeekdays(req.Weekdays)
		if err != nil {
			badRequest(c, err)
			return nil, false
		}
		mask = m
	default:
		badRequest(c, errors.New("weekdays or weekday_mask is required"))
		return nil, false
	}

	hhmm, err := parse.NormalizeClock(req.Time)
	if err != nil {
		badRequest(c, err)
		return nil, false
	}

	if _, err := h.store.GetSound(ctx, req.SoundID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			badRequest(c, fmt.Errorf("sound %d does not exist", req.SoundID))
		} else {
			writeError(c, err)
		}
		return nil, false
	}

	setID := req.SetID
	if setID == 0 {
		if setID, err = h.store.ActiveSetID(ctx); err != nil {
			writeError(c, err)
			return nil, false
		}
	}

	var volume *float64
	if req.VolumeOverride != nil {
		v := store.ClampVolume(*req.VolumeOverride)
		volume = &v
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	return &model.Schedule{
		SetID:          setID,
		Name:           strings.TrimSpace(req.Name),
		WeekdayMask:    mask,
		TimeHHMM:       hhmm,
		SoundID:        req.SoundID,
		VolumeOverride: volume,
		Enabled:        enabled,
		SortOrder:      req.SortOrder,
	}, true
}
