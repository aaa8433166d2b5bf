package drain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSinkConfig configures a WebSocket transmit sink.
type WebSocketSinkConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// DefaultWebSocketSinkConfig returns the stock configuration.
func DefaultWebSocketSinkConfig(url string) WebSocketSinkConfig {
	return WebSocketSinkConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// WebSocketSink ships batches as binary WebSocket messages. It dials
// lazily and redials after a failed send; the drainer's breaker decides
// when to stop hammering a dead endpoint.
type WebSocketSink struct {
	config WebSocketSinkConfig

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketSink creates a sink for the given endpoint.
func NewWebSocketSink(config WebSocketSinkConfig) *WebSocketSink {
	return &WebSocketSink{config: config}
}

// Send implements Sink.
func (s *WebSocketSink) Send(ctx context.Context, batch []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		dialer := websocket.Dialer{
			HandshakeTimeout: s.config.HandshakeTimeout,
		}
		conn, _, err := dialer.DialContext(ctx, s.config.URL, nil)
		if err != nil {
			return fmt.Errorf("dial %s: %w", s.config.URL, err)
		}
		s.conn = conn
	}

	if s.config.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, batch); err != nil {
		// Drop the connection; the next send redials.
		_ = s.conn.Close()
		s.conn = nil
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	err := s.conn.Close()
	s.conn = nil
	return err
}
