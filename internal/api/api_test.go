package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tajong-backend/config"
	"tajong-backend/internal/audio"
	"tajong-backend/internal/db"
	"tajong-backend/internal/model"
	"tajong-backend/internal/runner"
	"tajong-backend/internal/scheduler"
	"tajong-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// directEngine runs commands inline; tests drive a single goroutine.
type directEngine struct {
	engine *scheduler.Engine
}

func (d *directEngine) Do(ctx context.Context, fn runner.Command) error {
	return fn(ctx, d.engine)
}

func (d *directEngine) Status(ctx context.Context) (scheduler.Status, error) {
	return d.engine.Status(ctx)
}

type nopPlayer struct {
	played []string
	stops  int
}

func (p *nopPlayer) Play(path string, volume float64) error {
	p.played = append(p.played, path)
	return nil
}

func (p *nopPlayer) Stop() error {
	p.stops++
	return nil
}

type testServer struct {
	router *gin.Engine
	store  store.Store
	engine *scheduler.Engine
	fs     afero.Fs
	player *nopPlayer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))
	require.NoError(t, db.Seed(gdb))

	s := store.NewGormStore(gdb)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/sounds/bell.mp3", []byte("x"), 0o644))
	lib := audio.NewLibrary(fs, "/sounds", "/sounds/.amp_cache")
	player := &nopPlayer{}

	ledger := scheduler.NewLedger(s, 0)
	resolver := scheduler.NewResolver(s, ledger, scheduler.DefaultLookaheadDays, zap.NewNop())
	engine := scheduler.NewEngine(s, resolver, ledger, s, audio.NewLocalSink(lib, player, zap.NewNop()), zap.NewNop(), scheduler.Options{})

	cfg := config.Default()
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	h := NewHandler(s, &directEngine{engine: engine}, lib, &webpush.Options{VAPIDPublicKey: "pub"}, time.Local, zap.NewNop())
	return &testServer{
		router: NewRouter(&cfg.Server, h, zap.NewNop()),
		store:  s,
		engine: engine,
		fs:     fs,
		player: player,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// seedSchedule creates the bell sound and a daily schedule one hour from now.
func (ts *testServer) seedSchedule(t *testing.T) (soundID, scheduleID int64) {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/sounds", gin.H{"name": "벨", "file_name": "bell.mp3", "volume": 0.7})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sound := decode[model.Sound](t, w)

	at := time.Now().Add(time.Hour).Format("15:04")
	w = ts.do(t, http.MethodPost, "/api/schedules", gin.H{
		"name": "조회", "weekdays": "daily", "time": at, "sound_id": sound.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decode[scheduleView](t, w)
	return sound.ID, view.ID
}

func TestEngineControl(t *testing.T) {
	ts := newTestServer(t)
	_, scheduleID := ts.seedSchedule(t)

	w := ts.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[map[string]any](t, w)
	assert.Equal(t, "STOPPED", st["state"])
	assert.Nil(t, st["next"])

	w = ts.do(t, http.MethodPost, "/api/engine/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st = decode[map[string]any](t, w)
	assert.Equal(t, "RUNNING", st["state"])
	next := st["next"].(map[string]any)
	assert.Equal(t, float64(scheduleID), next["schedule_id"])
	assert.Equal(t, 0.7, next["volume"])

	w = ts.do(t, http.MethodPost, "/api/engine/pause", nil)
	assert.Equal(t, "PAUSED", decode[map[string]any](t, w)["state"])
	w = ts.do(t, http.MethodPost, "/api/engine/resume", nil)
	assert.Equal(t, "RUNNING", decode[map[string]any](t, w)["state"])

	w = ts.do(t, http.MethodPost, "/api/engine/explode", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, "/api/pause-today", gin.H{"paused": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["paused_today"])
	w = ts.do(t, http.MethodPut, "/api/pause-today", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Ringing works even while today is paused.
	w = ts.do(t, http.MethodPost, "/api/next/ring", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"/sounds/bell.mp3"}, ts.player.played)

	w = ts.do(t, http.MethodPost, "/api/next/skip", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[struct {
		Logs  []model.EventLog `json:"logs"`
		Count int              `json:"count"`
	}](t, w)
	require.Equal(t, 2, logs.Count)
	assert.Equal(t, model.ResultSkipped, logs.Logs[0].Result)
	assert.Equal(t, model.ResultPlayed, logs.Logs[1].Result)
	assert.Equal(t, "forced", logs.Logs[1].Detail)

	ts.do(t, http.MethodPost, "/api/engine/stop", nil)
	w = ts.do(t, http.MethodPost, "/api/next/ring", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPlaybackStop(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSchedule(t)

	// Stopping works in any engine state.
	w := ts.do(t, http.MethodPost, "/api/playback/stop", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "STOPPED", decode[map[string]any](t, w)["state"])
	assert.Equal(t, 1, ts.player.stops)

	ts.do(t, http.MethodPost, "/api/engine/start", nil)
	ts.do(t, http.MethodPost, "/api/next/ring", nil)
	w = ts.do(t, http.MethodPost, "/api/playback/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, ts.player.stops)
	assert.Len(t, ts.player.played, 1)
}

func TestLogsShowEngineWritesImmediately(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSchedule(t)
	ctx := context.Background()

	w := ts.do(t, http.MethodGet, "/api/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, w)["count"])

	// Written by the engine directly, not through an API write.
	require.NoError(t, ts.engine.Start(ctx))
	require.NoError(t, ts.engine.RingNextNow(ctx))

	w = ts.do(t, http.MethodGet, "/api/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, w)["count"])
}

func TestLogsFilter(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 4, 9, 0, 0, 0, time.Local)
	for i, r := range []model.Result{model.ResultPlayed, model.ResultMissed, model.ResultFailed} {
		require.NoError(t, ts.store.InsertLog(ctx, &model.EventLog{
			OccurredAt: day.AddDate(0, 0, i), ScheduleID: 1, ScheduleName: "조회", SoundName: "벨", Result: r,
		}))
	}

	tests := []struct {
		query string
		code  int
		count int
	}{
		{"", http.StatusOK, 3},
		{"?result=missed", http.StatusOK, 1},
		{"?result=all", http.StatusOK, 3},
		{"?from=2024-03-05&to=2024-03-05", http.StatusOK, 1},
		{"?from=2024-03-05", http.StatusOK, 2},
		{"?q=%EC%A1%B0%ED%9A%8C&limit=2", http.StatusOK, 2},
		{"?q=nothing", http.StatusOK, 0},
		{"?result=LOUD", http.StatusBadRequest, 0},
		{"?from=yesterday", http.StatusBadRequest, 0},
		{"?from=2024-03-06&to=2024-03-05", http.StatusBadRequest, 0},
		{"?limit=-1", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, "/api/logs"+tt.query, nil)
			require.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.code == http.StatusOK {
				assert.Equal(t, float64(tt.count), decode[map[string]any](t, w)["count"])
			}
		})
	}
}

func TestScheduleCRUD(t *testing.T) {
	ts := newTestServer(t)
	soundID, scheduleID := ts.seedSchedule(t)
	require.NoError(t, ts.engine.Start(context.Background()))

	w := ts.do(t, http.MethodGet, "/api/schedules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	views := decode[[]map[string]any](t, w)
	require.Len(t, views, 1)
	assert.Equal(t, "[월] [화] [수] [목] [금] [토] [일]", views[0]["weekdays"])
	assert.NotEmpty(t, views[0]["cron"])
	assert.NotNil(t, views[0]["next_run"])

	// Disabling the only schedule empties the engine cache.
	w = ts.do(t, http.MethodPut, fmt.Sprintf("/api/schedules/%d", scheduleID), gin.H{
		"name": "조회", "weekday_mask": 1 | 4 | 16, "time": "9:05", "sound_id": soundID, "enabled": false,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[map[string]any](t, w)
	assert.Equal(t, "09:05", view["time_hhmm"])
	assert.Equal(t, "5 9 * * 1,3,5", view["cron"])
	assert.Nil(t, view["next_run"])
	assert.Nil(t, ts.engine.CurrentNextEvent())

	bad := []gin.H{
		{"name": "x", "time": "09:00", "sound_id": soundID},
		{"name": "x", "weekdays": "someday", "time": "09:00", "sound_id": soundID},
		{"name": "x", "weekday_mask": 300, "time": "09:00", "sound_id": soundID},
		{"name": "x", "weekdays": "월", "time": "25:00", "sound_id": soundID},
		{"name": "x", "weekdays": "월", "time": "09:00", "sound_id": 999},
	}
	for _, body := range bad {
		w = ts.do(t, http.MethodPost, "/api/schedules", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	w = ts.do(t, http.MethodPut, "/api/schedules/999", gin.H{
		"name": "x", "weekdays": "월", "time": "09:00", "sound_id": soundID,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/schedules/%d", scheduleID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/schedules/%d", scheduleID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/schedules/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSoundsAndFiles(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/sounds", gin.H{"name": "없음", "file_name": "missing.wav"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body bytes.Buffer
	mp := multipart.NewWriter(&body)
	part, err := mp.CreateFormFile("file", "chime.wav")
	require.NoError(t, err)
	_, err = part.Write([]byte("RIFF"))
	require.NoError(t, err)
	require.NoError(t, mp.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/sound-files", &body)
	req.Header.Set("Content-Type", mp.FormDataContentType())
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/sound-files", nil)
	assert.JSONEq(t, `["bell.mp3","chime.wav"]`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/sounds", gin.H{"name": "차임", "file_name": "chime.wav", "volume": 3})
	require.Equal(t, http.StatusCreated, w.Code)
	sound := decode[model.Sound](t, w)
	assert.Equal(t, 2.0, sound.Volume)

	w = ts.do(t, http.MethodPut, fmt.Sprintf("/api/sounds/%d", sound.ID), gin.H{"name": "차임2", "file_name": "chime.wav", "volume": 0.5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "차임2", decode[model.Sound](t, w).Name)

	w = ts.do(t, http.MethodGet, "/api/sounds", nil)
	assert.Len(t, decode[[]model.Sound](t, w), 1)

	w = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/sounds/%d", sound.ID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodGet, "/api/sounds", nil)
	assert.Empty(t, decode[[]model.Sound](t, w))
}

func TestSetsAndActiveSwitch(t *testing.T) {
	ts := newTestServer(t)
	soundID, _ := ts.seedSchedule(t)
	require.NoError(t, ts.engine.Start(context.Background()))

	w := ts.do(t, http.MethodPost, "/api/sets", gin.H{"name": "시험기간"})
	require.Equal(t, http.StatusCreated, w.Code)
	set := decode[model.ScheduleSet](t, w)

	w = ts.do(t, http.MethodPost, "/api/schedules", gin.H{
		"set_id": set.ID, "name": "시험", "weekdays": "daily",
		"time": time.Now().Add(2 * time.Hour).Format("15:04"), "sound_id": soundID,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	exam := decode[scheduleView](t, w)

	w = ts.do(t, http.MethodPut, "/api/sets/active", gin.H{"set_id": set.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	next := decode[map[string]any](t, w)["next"].(map[string]any)
	assert.Equal(t, float64(exam.ID), next["schedule_id"])

	w = ts.do(t, http.MethodGet, "/api/sets", nil)
	sets := decode[map[string]any](t, w)
	assert.Equal(t, float64(set.ID), sets["active_set_id"])
	assert.Len(t, sets["sets"], 2)

	w = ts.do(t, http.MethodPut, "/api/sets/active", gin.H{"set_id": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubscriptions(t *testing.T) {
	ts := newTestServer(t)
	_, scheduleID := ts.seedSchedule(t)
	endpoint := "https://push.example.com/abc"

	w := ts.do(t, http.MethodPut, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	w = ts.do(t, http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint": endpoint, "p256dh": "key", "auth": "auth", "subscribed_schedules": []int64{scheduleID},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"subscribed_schedules":[%d]}`, scheduleID), w.Body.String())

	w = ts.do(t, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": endpoint, "p256dh": "key2", "auth": "auth"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = ts.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.JSONEq(t, `{"subscribed_schedules":[]}`, w.Body.String())

	w = ts.do(t, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/vapid_public_key", nil)
	assert.JSONEq(t, `{"public_key":"pub"}`, w.Body.String())
}
