package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thewrongjames/steamwhistle/internal/model"
)

type putDeviceRequest struct {
	Token  string `json:"token" binding:"required,url"`
	P256DH string `json:"p256dh" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

// PutDevice handles the registration or replacement of a push endpoint.
func (h *Handler) PutDevice(c *gin.Context) {
	var req putDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device := model.Device{
		ID:          c.Param("device_id"),
		DeviceToken: req.Token,
		P256DH:      req.P256DH,
		Auth:        req.Auth,
	}
	if err := h.store.PutDevice(c.Request.Context(), c.Param("uid"), device); err != nil {
		h.internalError(c, "Failed to save device", err)
		return
	}

	c.Status(http.StatusCreated)
}

// DeleteDevice handles the removal of a push endpoint.
func (h *Handler) DeleteDevice(c *gin.Context) {
	if err := h.store.DeleteDevice(c.Request.Context(), c.Param("uid"), c.Param("device_id")); err != nil {
		h.internalError(c, "Failed to delete device", err)
		return
	}

	c.Status(http.StatusNoContent)
}
