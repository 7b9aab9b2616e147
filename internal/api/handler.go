package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tajong-backend/internal/audio"
	"tajong-backend/internal/runner"
	"tajong-backend/internal/scheduler"
	"tajong-backend/internal/store"
)

// Engine runs commands against the scheduler engine on its own goroutine.
type Engine interface {
	Do(ctx context.Context, fn runner.Command) error
	Status(ctx context.Context) (scheduler.Status, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	engine   Engine
	library  *audio.Library
	webpush  *webpush.Options
	location *time.Location
	log      *zap.Logger
}

// NewHandler creates a new API handler. library may be nil when sounds live on
// a remote player.
func NewHandler(s store.Store, engine Engine, library *audio.Library, webpushOptions *webpush.Options, loc *time.Location, log *zap.Logger) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		store:    s,
		engine:   engine,
		library:  library,
		webpush:  webpushOptions,
		location: loc,
		log:      log,
	}
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scheduler.ErrNoNextEvent):
		status = http.StatusConflict
	case errors.Is(err, scheduler.ErrNoPlaybackControl):
		status = http.StatusNotImplemented
	case errors.Is(err, audio.ErrSoundMissing):
		status = http.StatusBadRequest
	case errors.Is(err, runner.ErrStopped):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// invalidate makes the engine pick up a catalog edit. The edit itself already
// succeeded, so a failure here is only logged.
func (h *Handler) invalidate(c *gin.Context) {
	err := h.engine.Do(c.Request.Context(), func(ctx context.Context, e *scheduler.Engine) error {
		return e.Invalidate(ctx)
	})
	if err != nil {
		h.log.Error("failed to refresh next event after catalog edit", zap.Error(err))
		_ = c.Error(err)
	}
}
