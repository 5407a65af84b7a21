// internal/bridge/session.go

package bridge

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// outboxSize is how many output frames may wait for a slow client before
	// it is disconnected.
	outboxSize = 256
)

type upgrader = websocket.Upgrader

func newUpgrader(check func(*http.Request) bool) *upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     check,
	}
}

// control is a text-frame message from the client.
type control struct {
	Type string `json:"type"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
	Data string `json:"data,omitempty"`
}

// safeConn serializes writes; gorilla connections allow one writer at a time.
type safeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *safeConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *safeConn) close(code int, reason string) {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	c.mu.Unlock()
	_ = c.conn.Close()
}

type frame struct {
	data  []byte
	final bool
	code  int
	text  string
}

// outbox queues frames for one websocket. Output arrives on the channel's
// delivery path, which must never wait on the network.
type outbox struct {
	frames chan frame
	done   chan struct{}
	once   sync.Once
}

func newOutbox(size int) *outbox {
	return &outbox{frames: make(chan frame, size), done: make(chan struct{})}
}

// push queues a copy of p. It reports false when the queue is full or the
// outbox has stopped.
func (o *outbox) push(p []byte) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.frames <- frame{data: append([]byte(nil), p...)}:
		return true
	default:
		return false
	}
}

// finish queues the close frame behind any pending output. When the queue
// does not drain within writeWait the connection is closed directly.
func (o *outbox) finish(conn *safeConn, code int, text string) {
	select {
	case o.frames <- frame{final: true, code: code, text: text}:
	case <-o.done:
	case <-time.After(writeWait):
		o.stop()
		conn.close(code, text)
	}
}

func (o *outbox) stop() { o.once.Do(func() { close(o.done) }) }

// run writes queued frames until a final frame or stop.
func (o *outbox) run(conn *safeConn, logger *slog.Logger) {
	for {
		select {
		case <-o.done:
			return
		case f := <-o.frames:
			if f.final {
				o.stop()
				conn.close(f.code, f.text)
				return
			}
			if err := conn.write(websocket.BinaryMessage, f.data); err != nil {
				logger.Debug("output not delivered", "err", err)
			}
		}
	}
}

// handleSession streams one agent terminal. Binary frames are raw input and
// output; text frames carry control messages such as resize.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelID")
	raw, err := s.ws.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "channel", channelID, "err", err)
		return
	}
	conn := &safeConn{conn: raw}
	defer raw.Close()

	logger := s.logger.With("channel", channelID)
	out := newOutbox(outboxSize)
	defer out.stop()
	go out.run(conn, logger)

	detach, err := s.backend.Attach(channelID,
		func(p []byte) {
			if out.push(p) {
				return
			}
			select {
			case <-out.done:
			default:
				logger.Warn("client too slow, closing terminal stream")
				out.stop()
				go conn.close(websocket.CloseTryAgainLater, "client too slow")
			}
		},
		func(err error) {
			reason := "session ended"
			if err != nil {
				reason = err.Error()
			}
			out.finish(conn, websocket.CloseNormalClosure, truncate(reason, 120))
		})
	if err != nil {
		out.stop()
		conn.close(websocket.ClosePolicyViolation, truncate(err.Error(), 120))
		return
	}
	defer detach()
	logger.Info("terminal attached", "remote", r.RemoteAddr)

	for {
		messageType, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Warn("websocket read failed", "err", err)
			}
			logger.Info("terminal detached")
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if err := s.backend.SendInput(channelID, data); err != nil {
				logger.Warn("input not delivered", "err", err)
			}
		case websocket.TextMessage:
			var msg control
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.Warn("invalid control message", "err", err)
				continue
			}
			s.handleControl(channelID, msg, logger)
		}
	}
}

func (s *Server) handleControl(channelID string, msg control, logger *slog.Logger) {
	switch msg.Type {
	case "resize":
		if msg.Cols <= 0 || msg.Rows <= 0 {
			logger.Warn("invalid resize", "cols", msg.Cols, "rows", msg.Rows)
			return
		}
		if err := s.backend.Resize(channelID, msg.Cols, msg.Rows); err != nil {
			logger.Warn("resize failed", "err", err)
		}
	case "input":
		if err := s.backend.SendInput(channelID, []byte(msg.Data)); err != nil {
			logger.Warn("input not delivered", "err", err)
		}
	default:
		logger.Warn("unknown control message", "type", msg.Type)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
