package controllers

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"farm_mapper/internal/metrics"
	"farm_mapper/internal/middleware"
)

const writeWait = 5 * time.Second

// FarmEvent tells an owner's open map views to re-fetch their farms.
type FarmEvent struct {
	Type    string    `json:"type"`
	OwnerID uuid.UUID `json:"owner_id"`
	FarmID  uuid.UUID `json:"farm_id"`
	Op      string    `json:"op"`
	At      time.Time `json:"at"`
}

// FarmHub manages active WebSocket connections per owner and broadcasts farm changes.
type FarmHub struct {
	ownerClients map[uuid.UUID]map[*websocket.Conn]bool
	broadcast    chan FarmEvent
	mu           sync.Mutex
	done         chan struct{}
	closeOnce    sync.Once
}

// NewFarmHub creates a hub and starts its broadcast loop.
func NewFarmHub() *FarmHub {
	hub := &FarmHub{
		ownerClients: make(map[uuid.UUID]map[*websocket.Conn]bool),
		broadcast:    make(chan FarmEvent, 100),
		done:         make(chan struct{}),
	}
	go hub.run()
	return hub
}

// run delivers every event to the connections of its owner. Writes happen on
// this goroutine only, so a connection never has two concurrent writers.
func (h *FarmHub) run() {
	for {
		select {
		case <-h.done:
			return
		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

func (h *FarmHub) deliver(ev FarmEvent) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.ownerClients[ev.OwnerID]))
	for conn := range h.ownerClients[ev.OwnerID] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"owner_id": ev.OwnerID,
				"conn_ptr": fmt.Sprintf("%p", conn),
			}).Info("Failed to send farm event, unregistering client.")
			h.UnregisterClient(ev.OwnerID, conn)
			conn.Close()
		}
	}
}

// RegisterClient registers a new connection for owner.
func (h *FarmHub) RegisterClient(owner uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.ownerClients[owner]; !ok {
		h.ownerClients[owner] = make(map[*websocket.Conn]bool)
	}
	h.ownerClients[owner][conn] = true
	metrics.ActiveWebSockets.Inc()
	logrus.WithFields(logrus.Fields{
		"owner_id": owner,
		"conn_ptr": fmt.Sprintf("%p", conn),
	}).Info("Client registered with FarmHub.")
}

// UnregisterClient removes a connection. Unknown connections are ignored.
func (h *FarmHub) UnregisterClient(owner uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.ownerClients[owner]
	if !ok || !clients[conn] {
		return
	}
	delete(clients, conn)
	if len(clients) == 0 {
		delete(h.ownerClients, owner)
	}
	metrics.ActiveWebSockets.Dec()
	logrus.WithFields(logrus.Fields{
		"owner_id": owner,
		"conn_ptr": fmt.Sprintf("%p", conn),
	}).Info("Client unregistered from FarmHub.")
}

// Clients returns how many connections owner has open.
func (h *FarmHub) Clients(owner uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ownerClients[owner])
}

// Publish queues a farms_changed event. It never blocks; a full queue drops the event.
func (h *FarmHub) Publish(owner, farmID uuid.UUID, op string) {
	ev := FarmEvent{Type: "farms_changed", OwnerID: owner, FarmID: farmID, Op: op, At: time.Now().UTC()}
	select {
	case h.broadcast <- ev:
	default:
		logrus.WithField("owner_id", owner).Warn("Farm broadcast channel full, dropping message.")
	}
}

// Shutdown stops the broadcast loop and closes every connection.
func (h *FarmHub) Shutdown() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		defer h.mu.Unlock()
		for owner, clients := range h.ownerClients {
			for conn := range clients {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				conn.Close()
				metrics.ActiveWebSockets.Dec()
			}
			delete(h.ownerClients, owner)
		}
	})
}

// WebSocketController upgrades authenticated requests onto the hub.
type WebSocketController struct {
	hub      *FarmHub
	upgrader websocket.Upgrader
}

// NewWebSocketController accepts upgrades from the given origins; "*" allows any.
func NewWebSocketController(hub *FarmHub, allowedOrigins []string) *WebSocketController {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketController{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// HandleFarmsWebSocket streams farms_changed events for the authenticated owner.
// Clients only listen; anything they send is ignored.
func (w *WebSocketController) HandleFarmsWebSocket(c *gin.Context) {
	owner := middleware.OwnerID(c)

	conn, err := w.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade WebSocket connection.")
		return
	}
	defer conn.Close()

	w.hub.RegisterClient(owner, conn)
	defer w.hub.UnregisterClient(owner, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("owner_id", owner).Info("Farm WebSocket closed normally or abnormally.")
			} else {
				logrus.WithError(err).WithField("owner_id", owner).Debug("Farm WebSocket read ended.")
			}
			return
		}
		logrus.WithField("owner_id", owner).Debug("Farm WebSocket client sent unexpected message. Ignoring.")
	}
}
