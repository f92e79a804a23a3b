package websocket

import (
	"time"

	"github.com/coder/websocket"
)

// Message types understood by the live-reload client.
const (
	TypeFullReload = "full_reload"
	TypeCSSUpdate  = "css_update"
	TypeBuildError = "build_error"
)

// Message is sent to the browser as one JSON text frame.
type Message struct {
	Type      string    `json:"type"`
	Category  string    `json:"category,omitempty"`
	Paths     []string  `json:"paths,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// client is one connected browser tab.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	remote string
}
