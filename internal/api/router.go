package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/thewrongjames/steamwhistle/config"
	"github.com/thewrongjames/steamwhistle/internal/mw"
	"github.com/thewrongjames/steamwhistle/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, s store.ClientStore, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(mw.RequestLogger(logger), gin.Recovery())

	handler := NewHandler(s, cfg.Push.PublicKey, cfg.Steam.CurrencySymbol, logger)

	// Buckets are per user on user routes and per client address elsewhere.
	limiter := mw.NewKeyedRateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst, 10*time.Minute)
	rateLimiter := mw.RateLimiter(limiter, mw.ByParamOrIP("uid"))

	ttl := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/games/:app_id", caching, handler.GetGame)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		users := api.Group("/users/:uid")
		users.GET("/watchlist", handler.GetWatchlist)
		users.PUT("/watchlist/:app_id", handler.PutWatchlistEntry)
		users.DELETE("/watchlist/:app_id", handler.DeleteWatchlistEntry)
		users.PUT("/devices/:device_id", handler.PutDevice)
		users.DELETE("/devices/:device_id", handler.DeleteDevice)
	}

	return r
}
