// Package transport owns the duplex WebSocket connection for a chat session.
//
// A Session holds exactly one connection at a time. It reports status
// transitions, performs bounded auto-reconnect with a fixed interval, and
// delivers inbound frames in receipt order through a single callback. No
// other component touches the socket.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/wirechat/wirechat/internal/domain"
)

// Status is the connection state of a Session. Owned exclusively by the
// Session; observers read it, none may set it directly.
type Status string

// Connection states.
const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Config holds connection parameters for a Session.
type Config struct {
	URL           string
	DialTimeout   time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// Session manages one WebSocket connection with bounded reconnect.
type Session struct {
	cfg Config
	log *slog.Logger

	onFrame  func([]byte)
	onStatus func(Status)

	mu         sync.Mutex
	status     Status
	retries    int
	lastErr    error
	conn       *websocket.Conn
	readCancel context.CancelFunc
	retryTimer *time.Timer
	closed     bool

	statusCh chan Status
	done     chan struct{}
}

// New creates a disconnected Session. Callbacks must be registered before
// the first Connect.
func New(cfg Config, log *slog.Logger) *Session {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	s := &Session{
		cfg:      cfg,
		log:      log,
		status:   StatusDisconnected,
		statusCh: make(chan Status, 16),
		done:     make(chan struct{}),
	}
	go s.notifyLoop()
	return s
}

// notifyLoop delivers status notifications from a single goroutine so
// observers see transitions in the order they happened. It drains pending
// notifications before exiting on Close.
func (s *Session) notifyLoop() {
	for {
		select {
		case st := <-s.statusCh:
			if s.onStatus != nil {
				s.onStatus(st)
			}
		case <-s.done:
			for {
				select {
				case st := <-s.statusCh:
					if s.onStatus != nil {
						s.onStatus(st)
					}
				default:
					return
				}
			}
		}
	}
}

// OnFrame registers the handler for inbound frames. Frames are delivered
// from a single goroutine in the order the transport received them.
func (s *Session) OnFrame(fn func([]byte)) { s.onFrame = fn }

// OnStatus registers the handler for status transitions.
func (s *Session) OnStatus(fn func(Status)) { s.onStatus = fn }

// Connect opens the connection. A dial failure is recorded and, within the
// retry budget, schedules another attempt after the configured interval; it
// never panics past this boundary.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, s.cfg.URL, nil)
	if err != nil {
		err = fmt.Errorf("dial %s: %w", s.cfg.URL, err)
		s.log.Warn("websocket dial failed", "url", s.cfg.URL, "error", err)
		s.connectionLost(err)
		return err
	}

	readCtx, readCancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		readCancel()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return nil
	}
	s.conn = conn
	s.readCancel = readCancel
	s.retries = 0
	s.lastErr = nil
	s.setStatusLocked(StatusConnected)
	s.mu.Unlock()

	s.log.Info("websocket connected", "url", s.cfg.URL)
	go s.readLoop(readCtx, conn)
	return nil
}

// readLoop delivers frames until the connection fails or is closed.
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.handleClosure(conn, err)
			return
		}
		if s.onFrame != nil {
			s.onFrame(data)
		}
	}
}

// handleClosure reacts to a connection loss observed by the read loop.
func (s *Session) handleClosure(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn { // stale loop from a superseded connection
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.readCancel = nil
	if s.closed || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		s.setStatusLocked(StatusDisconnected)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.log.Warn("websocket closed", "error", err)
	s.connectionLost(fmt.Errorf("connection closed: %w", err))
}

// connectionLost records the error and schedules a bounded reconnect.
func (s *Session) connectionLost(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = err
	if s.closed || s.retries >= s.cfg.MaxRetries {
		s.setStatusLocked(StatusDisconnected)
		return
	}

	s.retries++
	s.setStatusLocked(StatusDisconnected)
	s.log.Info("reconnect scheduled",
		"attempt", s.retries,
		"max", s.cfg.MaxRetries,
		"interval", s.cfg.RetryInterval,
	)
	s.retryTimer = time.AfterFunc(s.cfg.RetryInterval, func() {
		_ = s.Connect(context.Background())
	})
}

// Send transmits one frame. While not connected the frame is dropped and
// domain.ErrNotConnected is returned; this is recoverable, not fatal.
func (s *Session) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	conn := s.conn
	status := s.status
	s.mu.Unlock()

	if status != StatusConnected || conn == nil {
		return domain.ErrNotConnected
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ConfirmAlive promotes status to connected when the protocol layer has
// observed proof of liveness (a ping response) the transport's own
// bookkeeping has not caught up with. The caller only invokes this after a
// frame was actually delivered, so receipt itself is the evidence; the
// socket is not re-checked here.
func (s *Session) ConfirmAlive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.status == StatusConnected {
		return
	}
	s.retries = 0
	s.lastErr = nil
	s.setStatusLocked(StatusConnected)
}

// Close releases the connection and stops any scheduled retry. No timer
// fires after Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	conn := s.conn
	cancel := s.readCancel
	s.conn = nil
	s.readCancel = nil
	s.setStatusLocked(StatusDisconnected)
	s.mu.Unlock()

	close(s.done)
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastErr returns the most recent connection error, or nil after a
// successful open.
func (s *Session) LastErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Retries returns the current reconnect attempt count.
func (s *Session) Retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// setStatusLocked updates status and hands the transition to the notify
// loop. Callers hold mu; delivery happens off the lock so observers may
// call back into the session.
func (s *Session) setStatusLocked(st Status) {
	if s.status == st {
		return
	}
	s.status = st
	select {
	case s.statusCh <- st:
	default:
		s.log.Warn("status notification dropped", "status", st)
	}
}
