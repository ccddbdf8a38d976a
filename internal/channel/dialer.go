package channel

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the minimal transport surface the channel needs. It is satisfied
// by *websocket.Conn; tests substitute scripted fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a transport connection to an endpoint URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type gorillaDialer struct {
	dialer *websocket.Dialer
}

// NewDialer returns the production Dialer backed by gorilla/websocket.
func NewDialer(handshakeTimeout time.Duration) Dialer {
	return &gorillaDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
	}
}

func (g *gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := g.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}
