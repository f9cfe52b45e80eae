package controllers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"farm_mapper/internal/controllers"
	"farm_mapper/internal/middleware"
)

var secret = []byte("ws-test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func hubServer(t *testing.T) (*controllers.FarmHub, *httptest.Server) {
	t.Helper()
	hub := controllers.NewFarmHub()
	t.Cleanup(hub.Shutdown)

	ws := controllers.NewWebSocketController(hub, []string{"http://localhost:5173"})
	r := gin.New()
	r.GET("/ws/farms", middleware.RequireAuth(secret), ws.HandleFarmsWebSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, owner uuid.UUID, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": owner.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/farms?token=" + tok
	return websocket.DefaultDialer.Dial(url, header)
}

func waitClients(t *testing.T, hub *controllers.FarmHub, owner uuid.UUID, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients(owner) != want {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.Clients(owner), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFarmHubDeliversToOwnerOnly(t *testing.T) {
	hub, srv := hubServer(t)
	alice, bob := uuid.New(), uuid.New()

	ac, _, err := dial(t, srv, alice, nil)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer ac.Close()
	bc, _, err := dial(t, srv, bob, nil)
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bc.Close()
	waitClients(t, hub, alice, 1)
	waitClients(t, hub, bob, 1)

	farmID := uuid.New()
	hub.Publish(alice, farmID, "create")

	_ = ac.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev controllers.FarmEvent
	if err := ac.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != "farms_changed" || ev.FarmID != farmID || ev.OwnerID != alice || ev.Op != "create" {
		t.Fatalf("event = %+v", ev)
	}

	_ = bc.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if err := bc.ReadJSON(&ev); err == nil {
		t.Fatalf("bob received alice's event: %+v", ev)
	}
}

func TestFarmHubUnregistersOnClose(t *testing.T) {
	hub, srv := hubServer(t)
	owner := uuid.New()

	conn, _, err := dial(t, srv, owner, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitClients(t, hub, owner, 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()
	waitClients(t, hub, owner, 0)
}

func TestFarmWebSocketRejectsUnknownOrigin(t *testing.T) {
	hub, srv := hubServer(t)
	owner := uuid.New()

	_, resp, err := dial(t, srv, owner, http.Header{"Origin": {"http://evil.example"}})
	if err == nil {
		t.Fatal("dial succeeded from a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %v, want 403", resp)
	}
	if hub.Clients(owner) != 0 {
		t.Fatal("rejected connection was registered")
	}
}

func TestFarmHubShutdownClosesConnections(t *testing.T) {
	hub, srv := hubServer(t)
	owner := uuid.New()

	conn, _, err := dial(t, srv, owner, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitClients(t, hub, owner, 1)

	hub.Shutdown()
	hub.Shutdown()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("read after shutdown = %v, want going away", err)
	}
	if hub.Clients(owner) != 0 {
		t.Fatalf("clients after shutdown = %d", hub.Clients(owner))
	}
	// publishing after shutdown must not block
	hub.Publish(owner, uuid.New(), "delete")
}
