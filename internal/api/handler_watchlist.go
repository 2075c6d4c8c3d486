package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thewrongjames/steamwhistle/internal/model"
	"github.com/thewrongjames/steamwhistle/internal/parse"
)

// WatchlistEntryResponse represents one watched app in the API.
type WatchlistEntryResponse struct {
	AppID              int64      `json:"appId"`
	Threshold          int64      `json:"threshold"`
	FormattedThreshold string     `json:"formattedThreshold"`
	IsActive           bool       `json:"isActive"`
	Created            *time.Time `json:"created,omitempty"`
	Updated            *time.Time `json:"updated,omitempty"`
}

func (h *Handler) watchlistResponse(e model.WatchlistEntry) WatchlistEntryResponse {
	return WatchlistEntryResponse{
		AppID:              e.AppID,
		Threshold:          e.Threshold,
		FormattedThreshold: parse.FormatCents(e.Threshold, h.currencySymbol),
		IsActive:           e.IsActive,
		Created:            e.Created,
		Updated:            e.Updated,
	}
}

// GetWatchlist handles the GET /api/users/{uid}/watchlist request.
func (h *Handler) GetWatchlist(c *gin.Context) {
	entries, err := h.store.ListWatchlist(c.Request.Context(), c.Param("uid"))
	if err != nil {
		h.internalError(c, "Failed to retrieve watchlist", err)
		return
	}

	response := make([]WatchlistEntryResponse, 0, len(entries))
	for _, e := range entries {
		response = append(response, h.watchlistResponse(e))
	}
	c.JSON(http.StatusOK, response)
}

type putWatchlistRequest struct {
	Threshold *int64  `json:"threshold" binding:"omitempty,gt=0"`
	Price     *string `json:"price"`
	IsActive  *bool   `json:"is_active"`
}

// PutWatchlistEntry handles creating or changing a watchlist entry. Fields
// left out of the request keep their stored values; a new entry needs a
// threshold and starts active.
func (h *Handler) PutWatchlistEntry(c *gin.Context) {
	appID, ok := appIDParam(c)
	if !ok {
		return
	}
	uid := c.Param("uid")

	var req putWatchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Threshold != nil && req.Price != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "give either threshold or price, not both"})
		return
	}
	if req.Price != nil {
		cents, err := parse.ParseCents(*req.Price)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if cents <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "price must be greater than zero"})
			return
		}
		req.Threshold = &cents
	}

	existing, err := h.store.GetWatchlistEntry(c.Request.Context(), uid, appID)
	if err != nil {
		h.internalError(c, "Failed to retrieve watchlist entry", err)
		return
	}

	write := model.WatchlistWrite{AppID: appID, IsActive: true}
	status := http.StatusCreated
	if existing != nil {
		write.Threshold = existing.Threshold
		write.IsActive = existing.IsActive
		status = http.StatusOK
	}
	if req.Threshold != nil {
		write.Threshold = *req.Threshold
	}
	if req.IsActive != nil {
		write.IsActive = *req.IsActive
	}
	if write.Threshold <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "threshold or price is required"})
		return
	}

	if err := h.store.PutWatchlistEntry(c.Request.Context(), uid, write); err != nil {
		h.internalError(c, "Failed to save watchlist entry", err)
		return
	}

	c.JSON(status, h.watchlistResponse(model.WatchlistEntry{
		AppID:     write.AppID,
		Threshold: write.Threshold,
		IsActive:  write.IsActive,
	}))
}

// DeleteWatchlistEntry handles the removal of a watchlist entry.
func (h *Handler) DeleteWatchlistEntry(c *gin.Context) {
	appID, ok := appIDParam(c)
	if !ok {
		return
	}

	if err := h.store.DeleteWatchlistEntry(c.Request.Context(), c.Param("uid"), appID); err != nil {
		h.internalError(c, "Failed to delete watchlist entry", err)
		return
	}

	c.Status(http.StatusNoContent)
}
