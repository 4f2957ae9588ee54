package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sensor-ingest/entities"
	"sensor-ingest/ws"
)

// WSHandler streams committed alerts to websocket subscribers.
type WSHandler struct {
	mgr *ws.Manager
	log *slog.Logger
}

func NewWSHandler(mgr *ws.Manager, log *slog.Logger) *WSHandler {
	return &WSHandler{mgr: mgr, log: log.With("component", "ws")}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// HandleAlertsWS upgrades to websocket and keeps the subscription open until
// the client goes away.
// GET /ws/alerts?kind=<air|sound|water>
func (h *WSHandler) HandleAlertsWS(c *gin.Context) {
	var kind entities.SensorKind
	if q := c.Query("kind"); q != "" {
		k, err := entities.ParseSensorKind(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kind = k
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	id := h.mgr.Register(conn, kind)
	h.log.Info("alert subscriber connected", "id", id, "kind", kind)

	defer func() {
		h.mgr.Unregister(id)
		h.log.Info("alert subscriber disconnected", "id", id)
	}()

	// Subscribers only listen; reading drives ping/close handling.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("subscriber read error", "id", id, "error", err)
			}
			return
		}
	}
}

// GetSubscribers GET /api/v1/alerts/subscribers
func (h *WSHandler) GetSubscribers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"subscribers": h.mgr.List(), "count": h.mgr.Count()})
}
