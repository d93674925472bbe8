package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energy_forecast/internal/pipeline"
	"energy_forecast/internal/service"
)

type fakeForecaster struct {
	mu        sync.Mutex
	latest    *pipeline.Result
	status    service.Status
	refreshes int
	busy      bool
}

func (f *fakeForecaster) Latest() *pipeline.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}

func (f *fakeForecaster) Status() service.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeForecaster) RefreshAsync() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return false
	}
	f.refreshes++
	return true
}

func (f *fakeForecaster) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

// dialHandler sets up a test server with the handler and returns a WS connection.
func dialHandler(t *testing.T, handler *Handler) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn, func() {
		conn.Close()
		server.Close()
	}
}

// readJSON reads the next JSON message from the connection.
func readJSON(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

// sendJSON sends a JSON message on the connection.
func sendJSON(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	data, err := NewEnvelope(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestHandler_InitialMessages(t *testing.T) {
	f := &fakeForecaster{latest: sampleResult(), status: service.Status{RunID: "run-42", Runs: 1}}
	handler := NewHandler(NewHub(), f)

	conn, cleanup := dialHandler(t, handler)
	defer cleanup()

	env := readJSON(t, conn)
	assert.Equal(t, TypeRunStatus, env.Type)
	var st RunStatusPayload
	require.NoError(t, json.Unmarshal(env.Payload, &st))
	assert.Equal(t, "run-42", st.RunID)

	assert.Equal(t, TypeDataLoaded, readJSON(t, conn).Type)

	env = readJSON(t, conn)
	assert.Equal(t, TypeForecastUpdate, env.Type)
	var fp ForecastPayload
	require.NoError(t, json.Unmarshal(env.Payload, &fp))
	assert.Len(t, fp.DS, 2)

	assert.Equal(t, TypeMetricsUpdate, readJSON(t, conn).Type)
}

func TestHandler_NoResultYet(t *testing.T) {
	f := &fakeForecaster{}
	handler := NewHandler(NewHub(), f)

	conn, cleanup := dialHandler(t, handler)
	defer cleanup()

	assert.Equal(t, TypeRunStatus, readJSON(t, conn).Type)

	// Only the status is sent; the next read times out.
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHandler_Refresh(t *testing.T) {
	f := &fakeForecaster{}
	handler := NewHandler(NewHub(), f)

	conn, cleanup := dialHandler(t, handler)
	defer cleanup()
	readJSON(t, conn)

	sendJSON(t, conn, TypeForecastRefresh, nil)
	assert.Eventually(t, func() bool { return f.refreshCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_RefreshWhileBusy(t *testing.T) {
	f := &fakeForecaster{busy: true, status: service.Status{Running: true}}
	handler := NewHandler(NewHub(), f)

	conn, cleanup := dialHandler(t, handler)
	defer cleanup()
	readJSON(t, conn)

	sendJSON(t, conn, TypeForecastRefresh, nil)
	env := readJSON(t, conn)
	assert.Equal(t, TypeRunStatus, env.Type)
	var st RunStatusPayload
	require.NoError(t, json.Unmarshal(env.Payload, &st))
	assert.True(t, st.Running)
	assert.Equal(t, 0, f.refreshCount())
}

func TestHandler_Get(t *testing.T) {
	f := &fakeForecaster{latest: sampleResult()}
	handler := NewHandler(NewHub(), f)

	conn, cleanup := dialHandler(t, handler)
	defer cleanup()
	for range 4 {
		readJSON(t, conn)
	}

	sendJSON(t, conn, TypeForecastGet, nil)
	assert.Equal(t, TypeDataLoaded, readJSON(t, conn).Type)
	assert.Equal(t, TypeForecastUpdate, readJSON(t, conn).Type)
	assert.Equal(t, TypeMetricsUpdate, readJSON(t, conn).Type)
}

func TestHandler_ClientCount(t *testing.T) {
	var mu sync.Mutex
	var counts []int
	hub := NewHub()
	handler := NewHandler(hub, &fakeForecaster{})
	handler.OnClientsChanged = func(n int) {
		mu.Lock()
		defer mu.Unlock()
		counts = append(counts, n)
	}

	conn, cleanup := dialHandler(t, handler)
	readJSON(t, conn)
	assert.Equal(t, 1, hub.ClientCount())

	cleanup()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(counts) == 2 && counts[0] == 1 && counts[1] == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_IgnoresGarbage(t *testing.T) {
	f := &fakeForecaster{}
	handler := NewHandler(NewHub(), f)

	conn, cleanup := dialHandler(t, handler)
	defer cleanup()
	readJSON(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	sendJSON(t, conn, "unknown:type", nil)
	sendJSON(t, conn, TypeForecastRefresh, nil)
	assert.Eventually(t, func() bool { return f.refreshCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}
