package http

import (
	"net/http"

	"valve-gateway/internal/device"
)

// ClientCounter reports the number of live real-time clients
type ClientCounter interface {
	Count() int
}

// StatusSummary is the body of GET /
type StatusSummary struct {
	Service          string        `json:"service"`
	Version          string        `json:"version"`
	Status           string        `json:"status"`
	ArduinoConnected bool          `json:"arduino_connected"`
	WebsocketClients int           `json:"websocket_clients"`
	Link             device.Status `json:"link"`
}

// StatusHandler serves the root status summary
type StatusHandler struct {
	link    LinkStatus
	clients ClientCounter
	version string
}

// NewStatusHandler creates the GET / handler
func NewStatusHandler(link LinkStatus, clients ClientCounter, version string) *StatusHandler {
	return &StatusHandler{link: link, clients: clients, version: version}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusSummary{
		Service:          "Valve Gateway",
		Version:          h.version,
		Status:           "running",
		ArduinoConnected: h.link.IsConnected(),
		WebsocketClients: h.clients.Count(),
		Link:             h.link.Status(),
	})
}
