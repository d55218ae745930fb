package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

// Conn is the subset of *websocket.Conn the ingest loop needs. Abstracted
// so tests can drive the inner loop against a fake stream without a real
// TCP/TLS handshake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens a venue WebSocket connection.
type Dialer func(ctx context.Context, wsURL string) (Conn, error)

// defaultDialer dials over a plain connection, or through a SOCKS5 tunnel
// when proxyAddr is set — the TLS/WS upgrade happens on top of that tunnel.
func defaultDialer(proxyAddr string) Dialer {
	return func(ctx context.Context, wsURL string) (Conn, error) {
		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 30 * time.Second

		if proxyAddr != "" {
			socksDialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("marketdata: socks5 dialer: %w", err)
			}
			if ctxDialer, ok := socksDialer.(proxy.ContextDialer); ok {
				dialer.NetDialContext = ctxDialer.DialContext
			} else {
				dialer.NetDial = socksDialer.Dial
			}
		}

		conn, _, err := dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			return nil, fmt.Errorf("marketdata: dial %s: %w", wsURL, err)
		}
		return conn, nil
	}
}
