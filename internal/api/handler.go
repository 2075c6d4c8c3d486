package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thewrongjames/steamwhistle/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store          store.ClientStore
	vapidPublicKey string
	currencySymbol string
	logger         *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.ClientStore, vapidPublicKey, currencySymbol string, logger *zap.Logger) *Handler {
	return &Handler{
		store:          s,
		vapidPublicKey: vapidPublicKey,
		currencySymbol: currencySymbol,
		logger:         logger,
	}
}

func appIDParam(c *gin.Context) (int64, bool) {
	appID, err := strconv.ParseInt(c.Param("app_id"), 10, 64)
	if err != nil || appID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid app ID"})
		return 0, false
	}
	return appID, true
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	c.Error(err)
	h.logger.Error(msg, zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": msg})
}
