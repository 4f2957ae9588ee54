package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sensor-ingest/entities"
	"sensor-ingest/metric"
)

// DeviceCounter reports known devices per kind.
type DeviceCounter interface {
	CountDevices(ctx context.Context) (map[entities.SensorKind]int64, error)
}

type StatsHandler struct {
	metrics *metric.Collector
	devices DeviceCounter
}

func NewStatsHandler(metrics *metric.Collector, devices DeviceCounter) *StatsHandler {
	return &StatsHandler{
		metrics: metrics,
		devices: devices,
	}
}

// GetStats handles GET /api/v1/stats
func (h *StatsHandler) GetStats(c *gin.Context) {
	resp := gin.H{
		"status": "success",
		"stats":  h.metrics.Snapshot(),
	}
	if h.devices != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if counts, err := h.devices.CountDevices(ctx); err == nil {
			resp["devices"] = counts
		} else {
			resp["devices_error"] = err.Error()
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Metrics serves the collector's Prometheus registry.
func (h *StatsHandler) Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{}))
}
