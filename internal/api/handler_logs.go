package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tajong-backend/internal/model"
	"tajong-backend/internal/parse"
	"tajong-backend/internal/store"
)

var validResults = map[model.Result]bool{
	model.ResultPlayed:  true,
	model.ResultMissed:  true,
	model.ResultSkipped: true,
	model.ResultFailed:  true,
}

// GetLogs handles GET /api/logs?from=YYYY-MM-DD&to=YYYY-MM-DD&result=MISSED&q=조회&limit=100.
func (h *Handler) GetLogs(c *gin.Context) {
	filter, err := h.logFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	logs, err := h.store.ListLogs(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

func (h *Handler) logFilter(c *gin.Context) (store.LogFilter, error) {
	var f store.LogFilter
	var err error
	if v := c.Query("from"); v != "" {
		if f.From, err = time.ParseInLocation(parse.DayLayout, v, h.location); err != nil {
			return f, fmt.Errorf("invalid from date %q", v)
		}
	}
	if v := c.Query("to"); v != "" {
		if f.To, err = time.ParseInLocation(parse.DayLayout, v, h.location); err != nil {
			return f, fmt.Errorf("invalid to date %q", v)
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("to date is before from date")
	}
	if v := c.Query("result"); v != "" && !strings.EqualFold(v, "all") {
		f.Result = model.Result(strings.ToUpper(v))
		if !validResults[f.Result] {
			return f, fmt.Errorf("unknown result %q", v)
		}
	}
	f.Keyword = strings.TrimSpace(c.Query("q"))
	if v := c.Query("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
	}
	return f, nil
}
