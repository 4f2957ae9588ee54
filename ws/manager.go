package ws

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sensor-ingest/entities"
)

const (
	writeTimeout = 5 * time.Second
	// sendBuffer is how many frames a subscriber may lag behind before
	// further alerts are dropped for it.
	sendBuffer = 16
)

// AlertMessage is the frame pushed to subscribers for every committed alert.
type AlertMessage struct {
	Type  string         `json:"type"`
	Alert entities.Alert `json:"alert"`
}

type subscriber struct {
	id   string
	conn *websocket.Conn
	// kind filters alerts; empty means all kinds.
	kind entities.SensorKind
	send chan []byte
	quit chan struct{}
	done chan struct{}

	once      sync.Once
	goingAway atomic.Bool
}

func newSubscriber(id string, conn *websocket.Conn, kind entities.SensorKind) *subscriber {
	return &subscriber{
		id:   id,
		conn: conn,
		kind: kind,
		send: make(chan []byte, sendBuffer),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// stop ends the writer; goingAway makes it send a close frame first.
func (s *subscriber) stop(goingAway bool) {
	s.once.Do(func() {
		s.goingAway.Store(goingAway)
		close(s.quit)
	})
}

// writePump owns every write on the connection.
func (s *subscriber) writePump(m *Manager) {
	defer close(s.done)
	defer s.conn.Close()
	for {
		select {
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				m.log.Warn("dropping alert subscriber", "id", s.id, "error", err)
				m.Unregister(s.id)
				return
			}
		case <-s.quit:
			if s.goingAway.Load() {
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
			}
			return
		}
	}
}

// Manager keeps track of live alert subscribers.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	log         *slog.Logger
}

func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		subscribers: make(map[string]*subscriber),
		log:         log.With("component", "ws"),
	}
}

// Register adds a subscriber, starts its writer and returns its id.
func (m *Manager) Register(conn *websocket.Conn, kind entities.SensorKind) string {
	sub := newSubscriber(uuid.NewString(), conn, kind)
	m.mu.Lock()
	m.subscribers[sub.id] = sub
	m.mu.Unlock()
	go sub.writePump(m)
	return sub.id
}

// Unregister removes a subscriber; its writer closes the connection.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	sub, ok := m.subscribers[id]
	delete(m.subscribers, id)
	m.mu.Unlock()
	if ok {
		sub.stop(false)
	}
}

// Publish queues the alert for every matching subscriber without waiting on
// the network. A subscriber whose buffer is full misses the alert.
func (m *Manager) Publish(alert entities.Alert) {
	payload, err := json.Marshal(AlertMessage{Type: "alert", Alert: alert})
	if err != nil {
		m.log.Error("alert encode failed", "error", err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, sub := range m.subscribers {
		if sub.kind != "" && sub.kind != alert.SensorKind {
			continue
		}
		select {
		case sub.send <- payload:
		default:
			m.log.Warn("alert subscriber lagging, alert dropped", "id", id, "alert_type", alert.AlertType)
		}
	}
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// List returns the subscriber ids in sorted order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.subscribers))
	for id := range m.subscribers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll sends a going-away close to every subscriber and waits for the
// writers to finish.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	subs := make([]*subscriber, 0, len(m.subscribers))
	for id, sub := range m.subscribers {
		subs = append(subs, sub)
		delete(m.subscribers, id)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.stop(true)
	}
	for _, sub := range subs {
		<-sub.done
	}
}
