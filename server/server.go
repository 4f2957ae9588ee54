package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"sensor-ingest/handlers"
	httpHandler "sensor-ingest/handlers/http"
	"sensor-ingest/metric"
	"sensor-ingest/usecases"
	"sensor-ingest/ws"
)

const shutdownTimeout = 5 * time.Second

// Deps are the components the ops server exposes. Devices and Alerts may be
// nil, in which case their routes are not registered.
type Deps struct {
	Addr    string
	Metrics *metric.Collector
	Devices *usecases.DeviceUseCase
	Alerts  *ws.Manager
	Checks  map[string]handlers.Pinger
	Log     *slog.Logger
}

type Server struct {
	app  *gin.Engine
	addr string
	log  *slog.Logger
}

func NewServer(d Deps) *Server {
	s := &Server{
		app:  gin.Default(),
		addr: d.Addr,
		log:  d.Log.With("component", "server"),
	}
	s.routes(d)
	return s
}

func (s *Server) routes(d Deps) {
	// Setup CORS middleware
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	s.app.Use(cors.New(config))

	health := handlers.NewHealthHandler(d.Checks)
	var counter handlers.DeviceCounter
	if d.Devices != nil {
		counter = d.Devices
	}
	stats := handlers.NewStatsHandler(d.Metrics, counter)

	s.app.GET("/health", health.Health)
	s.app.GET("/metrics", stats.Metrics())

	api := s.app.Group("/api/v1")
	{
		api.GET("/stats", stats.GetStats)

		if d.Devices != nil {
			deviceHandler := httpHandler.NewDeviceHandler(d.Devices)
			devices := api.Group("/devices")
			{
				devices.GET("", deviceHandler.GetAllDevices)
				devices.GET("/:name", deviceHandler.GetDevice)
				devices.GET("/:name/state", deviceHandler.GetDeviceState)
				devices.GET("/:name/history", deviceHandler.GetDeviceHistory)
				devices.GET("/:name/alerts", deviceHandler.GetDeviceAlerts)
			}
			api.GET("/dashboard/:kind", deviceHandler.GetDashboard)
		}
	}

	if d.Alerts != nil {
		wsHandler := handlers.NewWSHandler(d.Alerts, d.Log)
		api.GET("/alerts/subscribers", wsHandler.GetSubscribers)
		s.app.GET("/ws/alerts", wsHandler.HandleAlertsWS)
	}
}

func (s *Server) Handler() http.Handler { return s.app }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("ops server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("ops server stopped")
	return nil
}
