package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tajong-backend/config"
	"tajong-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, handler *Handler, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestID(), mw.Logger(log))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Catalog reads are cached briefly; any successful write flushes.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter, mw.FlushOnWrite(cacheStore))
	{
		api.GET("/status", handler.GetStatus)
		api.POST("/engine/:action", handler.PostEngineAction)
		api.POST("/next/ring", handler.PostRingNow)
		api.POST("/next/skip", handler.PostSkipNext)
		api.PUT("/pause-today", handler.PutPauseToday)
		api.POST("/playback/stop", handler.PostPlaybackStop)

		// The engine appends logs behind the cache's back.
		api.GET("/logs", handler.GetLogs)

		api.GET("/sounds", caching, handler.GetSounds)
		api.POST("/sounds", handler.PostSound)
		api.PUT("/sounds/:id", handler.PutSound)
		api.DELETE("/sounds/:id", handler.DeleteSound)
		api.GET("/sound-files", caching, handler.GetSoundFiles)
		api.POST("/sound-files", handler.PostSoundFile)

		api.GET("/sets", caching, handler.GetSets)
		api.POST("/sets", handler.PostSet)
		api.PUT("/sets/active", handler.PutActiveSet)

		api.GET("/schedules", handler.GetSchedules)
		api.POST("/schedules", handler.PostSchedule)
		api.PUT("/schedules/:id", handler.PutSchedule)
		api.DELETE("/schedules/:id", handler.DeleteSchedule)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
