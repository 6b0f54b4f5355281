package event

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/choraleia/opengpt/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSMessage is the JSON message sent over WebSocket.
type WSMessage struct {
	Event string         `json:"event"`          // Event name (e.g., "chat.upserted")
	Data  map[string]any `json:"data,omitempty"` // Event-specific data
	TS    int64          `json:"ts"`             // Timestamp (Unix ms)
}

// OwnerFunc resolves the authenticated user of a request.
type OwnerFunc func(c *gin.Context) string

// WSHandler handles WebSocket connections for event notifications.
type WSHandler struct {
	emitter  *Emitter
	ownerOf  OwnerFunc
	upgrader websocket.Upgrader
}

// NewWSHandler creates a WebSocket handler. Only events owned by the user
// returned by ownerOf are delivered.
func NewWSHandler(emitter *Emitter, ownerOf OwnerFunc) *WSHandler {
	if emitter == nil {
		emitter = Global()
	}
	return &WSHandler{
		emitter: emitter,
		ownerOf: ownerOf,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle is the Gin handler for WebSocket connections.
// Query params:
//   - events: comma-separated event names to subscribe (empty = all)
//
// Example: /api/events/ws?events=chat.upserted,chat.deleted
func (h *WSHandler) Handle(c *gin.Context) {
	owner := ""
	if h.ownerOf != nil {
		owner = h.ownerOf(c)
	}
	if owner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := utils.GetLogger()
	eventFilter := parseFilter(c.Query("events"))

	sendCh := make(chan WSMessage, 64)
	done := make(chan struct{})

	unsubscribe := h.emitter.OnAny(func(ev Event) {
		if !deliverable(ev, owner, eventFilter) {
			return
		}
		msg := WSMessage{
			Event: ev.EventName(),
			Data:  eventToData(ev),
			TS:    time.Now().UnixMilli(),
		}
		select {
		case sendCh <- msg:
		default:
			logger.Warn("dropped websocket event, buffer full", "event", ev.EventName())
		}
	})
	defer unsubscribe()

	// Reader goroutine - keeps connection alive
	go func() {
		defer close(done)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	var writeMu sync.Mutex

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		case msg := <-sendCh:
			writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := conn.WriteJSON(msg)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func parseFilter(param string) map[string]bool {
	if param == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, e := range strings.Split(param, ",") {
		if e = strings.TrimSpace(e); e != "" {
			filter[e] = true
		}
	}
	return filter
}

// deliverable reports whether ev should reach a subscriber bound to owner.
// Events without an owner are broadcast.
func deliverable(ev Event, owner string, filter map[string]bool) bool {
	if filter != nil && !filter[ev.EventName()] {
		return false
	}
	if o, ok := ev.(Owned); ok && o.Owner() != owner {
		return false
	}
	return true
}

// eventToData converts an Event to a map for JSON serialization.
func eventToData(ev Event) map[string]any {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}
