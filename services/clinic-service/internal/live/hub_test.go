package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/healpoint/healpoint/libs/httpx"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(NewHandler(hub, nil))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, userID, role string) *websocket.Conn {
	t.Helper()
	h := http.Header{}
	httpx.SetIdentity(h, httpx.Identity{UserID: userID, Role: role})
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) model.AppointmentEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt model.AppointmentEvent
	require.NoError(t, json.Unmarshal(raw, &evt))
	return evt
}

func TestHub_DeliversOnlyToParties(t *testing.T) {
	hub, srv := startHub(t)
	patient := dial(t, srv, "p-1", model.RolePatient)
	admin := dial(t, srv, "a-1", model.RoleAdmin)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.AppointmentChanged(model.AppointmentEvent{Type: "appointment.booked", AppointmentID: 1, PatientID: "p-2", PhysicianID: "d-1"})
	hub.AppointmentChanged(model.AppointmentEvent{Type: "appointment.confirmed", AppointmentID: 2, PatientID: "p-1", PhysicianID: "d-1"})

	got := readEvent(t, patient)
	assert.Equal(t, 2, got.AppointmentID)
	assert.False(t, got.Timestamp.IsZero())

	assert.Equal(t, 1, readEvent(t, admin).AppointmentID)
	assert.Equal(t, 2, readEvent(t, admin).AppointmentID)
}

func TestHandler_RequiresIdentity(t *testing.T) {
	_, srv := startHub(t)
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_NilSafe(t *testing.T) {
	var h *Hub
	h.AppointmentChanged(model.AppointmentEvent{})
}
