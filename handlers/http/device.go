package httpHandler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"sensor-ingest/entities"
	"sensor-ingest/usecases"
)

const defaultHistoryLimit = 100

type DeviceHandler struct {
	useCase *usecases.DeviceUseCase
}

func NewDeviceHandler(useCase *usecases.DeviceUseCase) *DeviceHandler {
	return &DeviceHandler{
		useCase: useCase,
	}
}

// GetAllDevices handles GET /api/v1/devices
func (h *DeviceHandler) GetAllDevices(c *gin.Context) {
	devices, err := h.useCase.GetAllDevices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve devices",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  devices,
		"count": len(devices),
	})
}

// GetDevice handles GET /api/v1/devices/:name
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	device, err := h.useCase.GetDevice(c.Request.Context(), c.Param("name"))
	if err != nil {
		notFoundOrError(c, err, "Device not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": device,
	})
}

// GetDeviceState handles GET /api/v1/devices/:name/state
func (h *DeviceHandler) GetDeviceState(c *gin.Context) {
	state, err := h.useCase.GetDeviceState(c.Request.Context(), c.Param("name"))
	if errors.Is(err, usecases.ErrNotCached) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No cached state for device",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Cache unavailable",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": state,
	})
}

// GetDeviceHistory handles GET /api/v1/devices/:name/history?limit=N
func (h *DeviceHandler) GetDeviceHistory(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)), 10, 64)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "limit must be a positive integer",
		})
		return
	}

	entries, err := h.useCase.GetDeviceHistory(c.Request.Context(), c.Param("name"), limit)
	if err != nil {
		notFoundOrError(c, err, "Device not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  entries,
		"count": len(entries),
	})
}

// GetDeviceAlerts handles GET /api/v1/devices/:name/alerts
func (h *DeviceHandler) GetDeviceAlerts(c *gin.Context) {
	alerts, err := h.useCase.GetDeviceAlerts(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve alerts",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  alerts,
		"count": len(alerts),
	})
}

// GetDashboard handles GET /api/v1/dashboard/:kind?top=N
func (h *DeviceHandler) GetDashboard(c *gin.Context) {
	kind, err := entities.ParseSensorKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}
	top, err := strconv.ParseInt(c.DefaultQuery("top", "10"), 10, 64)
	if err != nil || top < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "top must be a positive integer",
		})
		return
	}

	dashboard, err := h.useCase.GetDashboard(c.Request.Context(), kind, top)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Cache unavailable",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": dashboard,
	})
}

func notFoundOrError(c *gin.Context, err error, notFound string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
