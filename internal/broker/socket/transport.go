package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kerner1000/riskmanager/internal/logger"
	"github.com/kerner1000/riskmanager/internal/pkg/circuit"
)

// handlerFunc processes one inbound Frame.
type handlerFunc func(Frame)

// transport owns one websocket connection: a single writer guarded by a
// mutex, a background reader goroutine dispatching to type-keyed
// handlers, and a circuit breaker guarding reconnect attempts. Grounded
// on the "one connection, callback-keyed dispatch" shape of the
// teacher's gate.Source / gatews.WsService.SetCallBack pattern, with
// gorilla/websocket standing in for the framed socket transport.
type transport struct {
	url string

	writeMu sync.Mutex
	conn    *websocket.Conn

	handlersMu sync.RWMutex
	handlers   map[string]handlerFunc

	breaker *circuit.CircuitBreaker

	closedMu sync.Mutex
	closed   chan struct{}
}

func newTransport(url string, reconnectThreshold int, reconnectCooldown time.Duration) *transport {
	return &transport{
		url:      url,
		handlers: make(map[string]handlerFunc),
		breaker:  circuit.NewCircuitBreaker("socket-gateway", reconnectThreshold, reconnectCooldown),
		closed:   make(chan struct{}),
	}
}

// onType registers the handler invoked for every inbound frame of the
// given type. Replaces any previous handler for that type.
func (t *transport) onType(msgType string, h handlerFunc) {
	t.handlersMu.Lock()
	t.handlers[msgType] = h
	t.handlersMu.Unlock()
}

// connect dials the socket and starts the reader loop. ensureConnected
// calls this lazily; it is not safe to call concurrently with itself.
func (t *transport) connect(ctx context.Context) error {
	if !t.breaker.Allow() {
		return fmt.Errorf("socket transport: circuit open, refusing to dial %s", t.url)
	}
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		t.breaker.RecordFailure()
		return fmt.Errorf("socket transport: dial %s: %w", t.url, err)
	}
	t.breaker.RecordSuccess()

	t.writeMu.Lock()
	t.conn = conn
	t.closed = make(chan struct{})
	t.writeMu.Unlock()

	go t.readLoop(conn)
	return nil
}

func (t *transport) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			logger.Warnf("socket transport: read loop ended: %v", err)
			t.dispatch(Frame{Type: typeConnectionClosed})
			t.closedMu.Lock()
			select {
			case <-t.closed:
			default:
				close(t.closed)
			}
			t.closedMu.Unlock()
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			logger.Warnf("socket transport: malformed frame dropped: %v", err)
			continue
		}
		t.dispatch(frame)
	}
}

func (t *transport) dispatch(frame Frame) {
	t.handlersMu.RLock()
	h, ok := t.handlers[frame.Type]
	t.handlersMu.RUnlock()
	if !ok {
		return
	}
	h(frame)
}

// send writes one frame; the write path is serialized by writeMu since
// a single connection may have one writer at a time.
func (t *transport) send(frame Frame) error {
	t.writeMu.Lock()
	conn := t.conn
	t.writeMu.Unlock()
	if conn == nil {
		return fmt.Errorf("socket transport: not connected")
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("socket transport: encode frame: %w", err)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, raw)
}

// connected reports whether the last dial succeeded and the read loop
// has not yet observed a close.
func (t *transport) connected() bool {
	t.writeMu.Lock()
	conn := t.conn
	t.writeMu.Unlock()
	if conn == nil {
		return false
	}
	select {
	case <-t.closed:
		return false
	default:
		return true
	}
}

func (t *transport) close() {
	t.writeMu.Lock()
	conn := t.conn
	t.writeMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
