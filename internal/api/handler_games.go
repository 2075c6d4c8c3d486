package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thewrongjames/steamwhistle/internal/model"
	"github.com/thewrongjames/steamwhistle/internal/parse"
)

// GameResponse represents the API response for a single catalog item.
type GameResponse struct {
	AppID          int64           `json:"appId"`
	Name           string          `json:"name"`
	IsFree         bool            `json:"isFree"`
	PriceData      model.PriceData `json:"priceData"`
	FormattedPrice string          `json:"formattedPrice"`
	Created        *time.Time      `json:"created,omitempty"`
	Updated        *time.Time      `json:"updated,omitempty"`
}

// GetGame handles the GET /api/games/{app_id} request.
func (h *Handler) GetGame(c *gin.Context) {
	appID, ok := appIDParam(c)
	if !ok {
		return
	}

	item, err := h.store.GetCatalogItem(c.Request.Context(), appID)
	if err != nil {
		h.internalError(c, "Failed to retrieve game", err)
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}

	formatted := "Free"
	if !item.IsFree {
		formatted = parse.FormatCents(item.PriceData.Final, h.currencySymbol)
	}
	c.JSON(http.StatusOK, GameResponse{
		AppID:          item.AppID,
		Name:           item.Name,
		IsFree:         item.IsFree,
		PriceData:      item.PriceData,
		FormattedPrice: formatted,
		Created:        item.Created,
		Updated:        item.Updated,
	})
}
