package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"

	"github.com/glasswing/glasswing/internal/runtime/config"
	"github.com/glasswing/glasswing/internal/runtime/jsoncodec"
)

func init() {
	DefaultRegistry.Register("websocket", websocketTransport)
}

// websocketTransport serves a browser or dev-server rendering surface. The
// surface dials in; frames reuse the pipe frame shape as websocket text
// messages, which are already ordered and reliable per direction.
func websocketTransport(_ context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	ws := NewWebSocket(logger)

	mux := http.NewServeMux()
	mux.Handle(conf.GetWebSocketPath(), ws.Handler())
	server := &http.Server{Addr: conf.WebSocketAddress, Handler: mux}
	ws.server = server

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("glasswing: websocket listener failed", err, nil)
		}
	}()

	return Transport{Publisher: ws, Subscriber: ws}, nil
}

// WebSocket is the server half of a websocket-attached rendering surface. It
// accepts one surface connection at a time; publishing while no surface is
// connected drops the frame, which matches the bus's at-most-once contract.
type WebSocket struct {
	upgrader websocket.Upgrader
	logger   watermill.LoggerAdapter

	connMu  sync.Mutex
	conn    *websocket.Conn
	claimed bool // slot reserved while an upgrade is in progress
	writeMu sync.Mutex

	subsMu sync.Mutex
	subs   map[string][]*streamSubscription

	closed    chan struct{}
	closeOnce sync.Once
	server    *http.Server
}

func NewWebSocket(logger watermill.LoggerAdapter) *WebSocket {
	return &WebSocket{
		upgrader: websocket.Upgrader{
			// The surface is trusted local tooling; the shell decides which
			// origins may reach the listen address.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
		subs:   make(map[string][]*streamSubscription),
		closed: make(chan struct{}),
	}
}

// Handler upgrades an incoming surface connection. A second concurrent
// connection is refused; the surface must reconnect after the first drops.
func (t *WebSocket) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The slot is claimed before the upgrade so two concurrent dials
		// cannot both pass the busy check and fight over t.conn.
		t.connMu.Lock()
		if t.conn != nil || t.claimed {
			t.connMu.Unlock()
			http.Error(w, "surface already connected", http.StatusConflict)
			return
		}
		t.claimed = true
		t.connMu.Unlock()

		conn, err := t.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.connMu.Lock()
			t.claimed = false
			t.connMu.Unlock()
			t.logger.Error("glasswing: websocket upgrade failed", err, nil)
			return
		}

		t.connMu.Lock()
		t.conn = conn
		t.claimed = false
		t.connMu.Unlock()

		t.readLoop(conn)

		t.connMu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.connMu.Unlock()
		conn.Close()
	})
}

func (t *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-t.closed:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Error("glasswing: websocket read failed", err, nil)
			}
			return
		}

		var frame pipeFrame
		if err := jsoncodec.Unmarshal(data, &frame); err != nil {
			t.logger.Error("glasswing: websocket frame malformed", err, nil)
			continue
		}

		msg := message.NewMessage(frame.UUID, frame.Payload)
		if frame.Metadata != nil {
			msg.Metadata = frame.Metadata
		}

		t.subsMu.Lock()
		subs := append([]*streamSubscription(nil), t.subs[frame.Topic]...)
		t.subsMu.Unlock()

		for _, sub := range subs {
			sub.deliver(msg, t.closed, t.logger)
		}
	}
}

func (t *WebSocket) Publish(topic string, messages ...*message.Message) error {
	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()
	if conn == nil {
		t.logger.Debug("glasswing: no surface connected, dropping frames", watermill.LogFields{"topic": topic})
		return nil
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	for _, msg := range messages {
		frame := pipeFrame{UUID: msg.UUID, Topic: topic, Metadata: msg.Metadata, Payload: msg.Payload}
		b, err := jsoncodec.Marshal(frame)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return err
		}
	}
	return nil
}

func (t *WebSocket) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	sub := newStreamSubscription()

	t.subsMu.Lock()
	t.subs[topic] = append(t.subs[topic], sub)
	t.subsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-t.closed:
		}
		t.subsMu.Lock()
		subs := t.subs[topic]
		for i, s := range subs {
			if s == sub {
				t.subs[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		t.subsMu.Unlock()
		sub.close()
	}()

	return sub.ch, nil
}

func (t *WebSocket) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.connMu.Lock()
		if t.conn != nil {
			t.conn.Close()
			t.conn = nil
		}
		t.connMu.Unlock()
		if t.server != nil {
			t.server.Close()
		}
	})
	return nil
}
