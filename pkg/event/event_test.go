package event

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_OnAndUnsubscribe(t *testing.T) {
	e := NewEmitter()
	var got []string
	off := e.On(ChatDeleted, func(ev Event) { got = append(got, ev.EventName()) })
	offAll := e.OnAny(func(ev Event) { got = append(got, "any:"+ev.EventName()) })

	e.Emit(ChatDeletedEvent{OwnerID: "u1", ChatID: "c1"})
	e.Emit(ChatUpsertedEvent{OwnerID: "u1", ChatID: "c1"})
	assert.Equal(t, []string{ChatDeleted, "any:" + ChatDeleted, "any:" + ChatUpserted}, got)

	off()
	assert.Equal(t, 1, e.ListenerCount(ChatDeleted))
	offAll()
	assert.Equal(t, 0, e.ListenerCount(ChatDeleted))

	got = nil
	e.Emit(ChatDeletedEvent{OwnerID: "u1", ChatID: "c1"})
	assert.Empty(t, got)
}

func TestEmitter_NilIsNoop(t *testing.T) {
	var e *Emitter
	assert.NotPanics(t, func() { e.Emit(ChatDeletedEvent{}) })
}

func TestDeliverable(t *testing.T) {
	tests := []struct {
		name   string
		ev     Event
		owner  string
		filter map[string]bool
		want   bool
	}{
		{"own event", ChatUpsertedEvent{OwnerID: "u1"}, "u1", nil, true},
		{"foreign event", ChatUpsertedEvent{OwnerID: "u2"}, "u1", nil, false},
		{"filtered out", ChatDeletedEvent{OwnerID: "u1"}, "u1", parseFilter(ChatUpserted), false},
		{"filtered in", ChatDeletedEvent{OwnerID: "u1"}, "u1", parseFilter(" chat.deleted , chat.upserted"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deliverable(tt.ev, tt.owner, tt.filter))
		})
	}
}

func TestEventToData_HidesOwner(t *testing.T) {
	data := eventToData(ChatUpsertedEvent{OwnerID: "u1", ChatID: "c1", Title: "hi", Created: true})
	assert.Equal(t, map[string]any{"chatId": "c1", "title": "hi", "created": true}, data)
}

func TestWSHandler_DeliversOnlyOwnedEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := NewEmitter()
	r := gin.New()
	h := NewWSHandler(e, func(c *gin.Context) string { return c.Query("as") })
	r.GET("/ws", h.Handle)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?as=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return e.ListenerCount(ChatUpserted) == 1 }, time.Second, 10*time.Millisecond)

	e.Emit(ChatUpsertedEvent{OwnerID: "u2", ChatID: "foreign"})
	e.Emit(ChatUpsertedEvent{OwnerID: "u1", ChatID: "mine"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ChatUpserted, msg.Event)
	assert.Equal(t, "mine", msg.Data["chatId"])
}

func TestWSHandler_RejectsAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", NewWSHandler(NewEmitter(), func(*gin.Context) string { return "" }).Handle)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
