package comfy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/komojini/runpod-worker-comfy/internal/metrics"
	"github.com/komojini/runpod-worker-comfy/pkg/types"
)

// ErrConnectionLost means the event channel dropped before a terminal
// event arrived. The job may still be running server-side; callers can
// retry with a fresh invocation.
var ErrConnectionLost = errors.New("event channel closed before terminal event")

// Listener opens websocket event channels to the generation server.
type Listener struct {
	host   string
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewListener creates a listener for the server at host.
func NewListener(host string, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		host: host,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Stream is one open event channel, scoped to a session. Events arrive on
// Events() in the order the server emitted them. The stream starts
// unbound: every parsed event is forwarded, so frames emitted between
// channel-open and submission-return are never lost. Once Bind is called
// with the job handle, events attributed to other jobs on the same session
// are discarded.
type Stream struct {
	events chan types.JobEvent
	conn   *websocket.Conn
	logger *slog.Logger

	promptID  atomic.Value // string; set by Bind
	closeOnce sync.Once
	closed    atomic.Bool
	lost      atomic.Bool
}

// Listen opens the event channel for the given session id. The returned
// stream must be closed by the caller; cancelling ctx also closes it.
func (l *Listener) Listen(ctx context.Context, sessionID string) (*Stream, error) {
	u := url.URL{Scheme: "ws", Host: l.host, Path: "/ws", RawQuery: "clientId=" + url.QueryEscape(sessionID)}

	conn, resp, err := l.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial event channel (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial event channel: %w", err)
	}

	s := &Stream{
		events: make(chan types.JobEvent, 256),
		conn:   conn,
		logger: l.logger.With(slog.String("session_id", sessionID)),
	}

	metrics.ListenerConnections.Inc()

	// Close the connection when the invocation is cancelled so the read
	// loop unblocks.
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	go s.readLoop(ctx)

	return s, nil
}

// Events returns the channel of parsed events. It is closed when the
// connection drops or the stream is closed.
func (s *Stream) Events() <-chan types.JobEvent {
	return s.events
}

// Bind scopes the stream to one job handle. Events for other handles on
// the same session are discarded from this point on.
func (s *Stream) Bind(promptID string) {
	s.promptID.Store(promptID)
}

// Close tears down the connection. Safe to call more than once and
// concurrently with the read loop.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.conn.Close()
		metrics.ListenerConnections.Dec()
	})
}

// Err reports why the event channel ended: ErrConnectionLost when the
// server dropped the connection before the stream was closed locally, nil
// otherwise. Only meaningful after Events() is closed.
func (s *Stream) Err() error {
	if s.lost.Load() {
		return ErrConnectionLost
	}
	return nil
}

func (s *Stream) readLoop(ctx context.Context) {
	defer close(s.events)

	for {
		msgType, raw, err := s.conn.ReadMessage()
		if err != nil {
			// A read error after local close or cancellation is expected;
			// anything else is a lost connection.
			if ctx.Err() == nil && !s.closed.Load() {
				s.lost.Store(true)
				s.logger.Warn("event channel dropped", slog.String("error", err.Error()))
			}
			s.Close()
			return
		}

		// Preview frames are binary; only text frames carry events.
		if msgType != websocket.TextMessage {
			continue
		}

		ev, err := types.ParseEvent(raw)
		if err != nil {
			s.logger.Warn("bad event frame", slog.String("error", err.Error()))
			continue
		}
		if ev == nil {
			s.logger.Debug("ignoring unknown event frame")
			continue
		}

		metrics.EventsTotal.WithLabelValues(string(ev.Type)).Inc()

		// Drop events attributed to other jobs once bound. Session-level
		// frames (no prompt id) always pass through.
		if bound, ok := s.promptID.Load().(string); ok && ev.PromptID != "" && ev.PromptID != bound {
			continue
		}

		select {
		case s.events <- *ev:
		case <-ctx.Done():
			s.Close()
			return
		}
	}
}
