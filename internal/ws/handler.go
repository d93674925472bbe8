package ws

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"energy_forecast/internal/monitoring"
	"energy_forecast/internal/pipeline"
	"energy_forecast/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Forecaster is the part of service.Service the handler talks to.
type Forecaster interface {
	Latest() *pipeline.Result
	Status() service.Status
	RefreshAsync() bool
}

// Handler manages WebSocket connections and routes requests to the forecaster.
type Handler struct {
	hub        *Hub
	forecaster Forecaster

	// OnClientsChanged, if set, is called with the client count after every
	// connect and disconnect.
	OnClientsChanged func(n int)
}

func NewHandler(hub *Hub, f Forecaster) *Handler {
	return &Handler{hub: hub, forecaster: f}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.hub.Register(client)
	h.clientsChanged()
	go client.writePump()

	h.sendStatus(client)
	h.sendLatest(client)

	h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		h.clientsChanged()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				monitoring.Logf("WebSocket read error: %v", err)
			}
			return
		}

		h.handleMessage(c, msg)
	}
}

func (h *Handler) handleMessage(c *Client, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		monitoring.Logf("Invalid message: %v", err)
		return
	}

	switch env.Type {
	case TypeForecastRefresh:
		if !h.forecaster.RefreshAsync() {
			// Already running; the client still gets the current status.
			h.sendStatus(c)
		}

	case TypeForecastGet:
		h.sendLatest(c)

	default:
		monitoring.Logf("Unknown message type: %s", env.Type)
	}
}

// sendLatest sends the last result to one client. Nothing is sent before the
// first successful run.
func (h *Handler) sendLatest(c *Client) {
	res := h.forecaster.Latest()
	if res == nil {
		return
	}
	h.send(c, TypeDataLoaded, DataLoadedFromResult(res))
	h.send(c, TypeForecastUpdate, ForecastFromResult(res))
	h.send(c, TypeMetricsUpdate, MetricsFromResult(res))
}

func (h *Handler) sendStatus(c *Client) {
	h.send(c, TypeRunStatus, RunStatusFromService(h.forecaster.Status()))
}

func (h *Handler) send(c *Client, msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		monitoring.Logf("Error creating %s message: %v", msgType, err)
		return
	}
	h.hub.SendTo(c, msg)
}

func (h *Handler) clientsChanged() {
	if h.OnClientsChanged != nil {
		h.OnClientsChanged(h.hub.ClientCount())
	}
}
