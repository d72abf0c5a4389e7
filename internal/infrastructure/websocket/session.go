package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

const (
	// defaultKeepAlive is used when the configured keepalive is zero.
	defaultKeepAlive = 30 * time.Second

	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
)

// session is one established WebSocket connection.
//
// The read pump runs in its own goroutine and reports how it ended on
// readDone; Serve owns every data write. Close and control frames go
// through WriteControl, which gorilla allows concurrently with writes.
type session struct {
	link     *SocketLink
	conn     *ws.Conn
	readErr  chan error
	readDone chan struct{}

	closeOnce sync.Once
}

func (l *SocketLink) newSession(conn *ws.Conn) *session {
	return &session{
		link:     l,
		conn:     conn,
		readErr:  make(chan error, 1),
		readDone: make(chan struct{}),
	}
}

// Serve runs the read pump and the write loop until the connection ends.
// It returns nil when the peer closed cleanly with 1000 or 1001.
func (s *session) Serve(ctx context.Context) error {
	l := s.link
	idle := l.cfg.IdleTimeout

	if l.cfg.MaxMessageSize > 0 {
		s.conn.SetReadLimit(l.cfg.MaxMessageSize)
	}
	//nolint:errcheck // Best-effort deadline; read errors surface in readPump
	s.conn.SetReadDeadline(time.Now().Add(idle))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idle))
	})
	s.conn.SetPingHandler(func(data string) error {
		//nolint:errcheck // Best-effort deadline
		s.conn.SetReadDeadline(time.Now().Add(idle))
		err := s.conn.WriteControl(ws.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, ws.ErrCloseSent) {
			return nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	})

	go s.readPump()
	return s.writeLoop(ctx)
}

// readPump reads frames until the connection fails or closes.
func (s *session) readPump() {
	defer close(s.readDone)
	l := s.link
	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			s.readErr <- classifyReadError(err)
			return
		}
		// Any data frame counts as activity.
		//nolint:errcheck // Best-effort deadline reset
		s.conn.SetReadDeadline(time.Now().Add(l.cfg.IdleTimeout))
		if err := l.receive(frame); err != nil {
			s.readErr <- err
			return
		}
	}
}

// writeLoop drains the outbound queue and sends a ping whenever no data
// frame was written within keepalive.
func (s *session) writeLoop(ctx context.Context) error {
	l := s.link
	keepalive := time.NewTimer(l.cfg.KeepAlive)
	defer keepalive.Stop()

	for {
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m, ok := l.outbound.Pop()
			if !ok {
				break
			}
			frame, err := l.codec.encode(m.Channel(), m.Payload())
			if err != nil {
				l.emitError(fmt.Errorf("encoding message %s: %w", m.ID(), err))
				continue
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(ws.TextMessage, frame); err != nil {
				l.outbound.PushFront(m)
				return fmt.Errorf("%w: %w", ErrWriteFailed, err)
			}
			l.delivered.Add(1)
			resetTimer(keepalive, l.cfg.KeepAlive)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.readErr:
			return err
		case <-l.outbound.Ready():
		case <-keepalive.C:
			if err := s.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("%w: ping: %w", ErrWriteFailed, err)
			}
			keepalive.Reset(l.cfg.KeepAlive)
		}
	}
}

// Close sends a normal-closure frame and waits up to timeout for the peer
// to answer, then closes the connection. A zero timeout closes at once.
func (s *session) Close(timeout time.Duration) error {
	s.closeOnce.Do(func() {
		if timeout > 0 {
			msg := ws.FormatCloseMessage(ws.CloseNormalClosure, "shutdown")
			if err := s.conn.WriteControl(ws.CloseMessage, msg, time.Now().Add(timeout)); err == nil {
				select {
				case <-s.readDone:
				case <-time.After(timeout):
				}
			}
		}
		s.conn.Close()
		if s.link.cfg.Role == config.RoleServer {
			s.link.releasePeer()
		}
	})
	return nil
}

// classifyReadError maps a read failure to a clean close (nil), an idle
// timeout, a protocol error or a transport error.
func classifyReadError(err error) error {
	var ce *ws.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case ws.CloseNormalClosure, ws.CloseGoingAway:
			return nil
		default:
			return fmt.Errorf("%w: close code %d: %s", ErrProtocol, ce.Code, ce.Text)
		}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrIdleTimeout
	}
	return fmt.Errorf("%w: %w", ErrReadFailed, err)
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
