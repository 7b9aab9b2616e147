package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"tajong-backend/internal/scheduler"
)

// GetStatus returns the engine state, today's pause flag and the next event.
func (h *Handler) GetStatus(c *gin.Context) {
	st, err := h.engine.Status(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// PostEngineAction handles POST /api/engine/:action with start, pause, resume or stop.
func (h *Handler) PostEngineAction(c *gin.Context) {
	var fn func(ctx context.Context, e *scheduler.Engine) error
	switch c.Param("action") {
	case "start":
		fn = func(ctx context.Context, e *scheduler.Engine) error { return e.Start(ctx) }
	case "pause":
		fn = func(ctx context.Context, e *scheduler.Engine) error { e.Pause(); return nil }
	case "resume":
		fn = func(ctx context.Context, e *scheduler.Engine) error { return e.Resume(ctx) }
	case "stop":
		fn = func(ctx context.Context, e *scheduler.Engine) error { e.Stop(); return nil }
	default:
		badRequest(c, fmt.Errorf("unknown engine action %q", c.Param("action")))
		return
	}
	h.runAndReport(c, fn)
}

// PostRingNow plays the next event immediately.
func (h *Handler) PostRingNow(c *gin.Context) {
	h.runAndReport(c, func(ctx context.Context, e *scheduler.Engine) error {
		return e.RingNextNow(ctx)
	})
}

// PostSkipNext suppresses the next occurrence once.
func (h *Handler) PostSkipNext(c *gin.Context) {
	h.runAndReport(c, func(ctx context.Context, e *scheduler.Engine) error {
		return e.SkipNextOnce(ctx)
	})
}

// PostPlaybackStop cuts off the bell that is currently playing.
func (h *Handler) PostPlaybackStop(c *gin.Context) {
	h.runAndReport(c, func(ctx context.Context, e *scheduler.Engine) error {
		return e.StopPlayback()
	})
}

type pauseTodayRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

// PutPauseToday pauses or unpauses automatic firing for today.
func (h *Handler) PutPauseToday(c *gin.Context) {
	var req pauseTodayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.runAndReport(c, func(ctx context.Context, e *scheduler.Engine) error {
		return e.SetPauseToday(ctx, *req.Paused)
	})
}

// runAndReport runs fn on the engine and answers with the resulting status.
func (h *Handler) runAndReport(c *gin.Context, fn func(ctx context.Context, e *scheduler.Engine) error) {
	var st scheduler.Status
	err := h.engine.Do(c.Request.Context(), func(ctx context.Context, e *scheduler.Engine) error {
		if err := fn(ctx, e); err != nil {
			return err
		}
		var err error
		st, err = e.Status(ctx)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
