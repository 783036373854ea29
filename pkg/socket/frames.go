package socket

import "github.com/Ramsey-B/fern/pkg/models"

// Frame type values exchanged with the push gateway. Upstream frames are
// connect, connect_error, disconnect, ping and event; downstream frames are
// subscribe, unsubscribe and pong.
const (
	FrameConnect      = "connect"
	FrameConnectError = "connect_error"
	FrameDisconnect   = "disconnect"
	FramePing         = "ping"
	FramePong         = "pong"
	FrameEvent        = "event"
	FrameSubscribe    = "subscribe"
	FrameUnsubscribe  = "unsubscribe"
)

// Frame is one JSON message on the push channel.
type Frame struct {
	Type   string        `json:"type"`
	Event  *models.Event `json:"event,omitempty"`
	PodIDs []string      `json:"podIds,omitempty"`
	Reason string        `json:"reason,omitempty"`
	Error  string        `json:"error,omitempty"`
}
