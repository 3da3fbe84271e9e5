// Package session runs one live call over a websocket: it reads user
// turns, drives the orchestrator, and writes response frames back in
// text-then-audio order.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/calleq/calleq/pkg/core"
	"github.com/calleq/calleq/pkg/core/types"
	"github.com/calleq/calleq/pkg/gateway/live/protocol"
	"github.com/calleq/calleq/pkg/gateway/metrics"
)

const outboundQueueSize = 16

// Orchestrator is the slice of the call core a live session drives.
type Orchestrator interface {
	SubmitTurn(ctx context.Context, sessionID, text string, wantAudio bool) (types.TurnResult, error)
	EndSession(sessionID string)
}

type Config struct {
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	MaxTurnBytes    int64
}

// Dependencies wires a live session.
type Dependencies struct {
	Conn         *websocket.Conn
	Session      *core.Session
	Orchestrator Orchestrator
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Config       Config
}

// LiveSession owns one websocket connection bound to one call session.
// Turns are processed strictly sequentially: the next inbound frame is not
// consumed until the previous turn's frames are queued, so per-session
// ordering holds end to end.
type LiveSession struct {
	conn     *websocket.Conn
	session  *core.Session
	orch     Orchestrator
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      Config
	outbound chan []byte
}

// New creates a live session for an upgraded connection.
func New(deps Dependencies) (*LiveSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("conn is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveSession{
		conn:     deps.Conn,
		session:  deps.Session,
		orch:     deps.Orchestrator,
		metrics:  deps.Metrics,
		logger:   logger,
		cfg:      deps.Config,
		outbound: make(chan []byte, outboundQueueSize),
	}, nil
}

type inboundFrame struct {
	data []byte
	err  error
}

// Run services the connection until the client ends the session,
// disconnects, or ctx is canceled. The session is always closed on return.
func (s *LiveSession) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- s.writeLoop(ctx)
	}()

	inbound := make(chan inboundFrame)
	go s.readLoop(ctx, inbound)

	// The registry uses this binding to warn the client during drain.
	s.session.BindTransport(func(code, message string) error {
		return s.sendJSON(protocol.NewWarning(code, message))
	})

	defer func() {
		s.session.BindTransport(nil)
		s.orch.EndSession(s.session.ID)
		cancel()
		<-writerDone
	}()

	if err := s.sendJSON(protocol.NewReady(s.session.ID)); err != nil {
		return err
	}

	for {
		var frame inboundFrame
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-writerDone:
			writerDone <- err
			return err
		case frame = <-inbound:
		}
		if frame.err != nil {
			// readLoop has already ended the session; a normal close is
			// not an error.
			if websocket.IsCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return frame.err
		}

		decoded, decodeErr := protocol.DecodeClientMessage(frame.data)
		if decodeErr != nil {
			var de *protocol.DecodeError
			code := "bad_request"
			if errors.As(decodeErr, &de) {
				code = de.Code
			}
			if err := s.sendJSON(protocol.NewError(code, decodeErr.Error(), false)); err != nil {
				return err
			}
			continue
		}

		switch msg := decoded.(type) {
		case protocol.ClientUserTurn:
			done, err := s.handleTurn(ctx, msg)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		case protocol.ClientControl:
			// Only end_session decodes successfully today.
			s.orch.EndSession(s.session.ID)
			_ = s.sendJSON(protocol.NewClosed(s.session.ID))
			return nil
		}
	}
}

// handleTurn runs one turn and queues its frames. Returns done=true when
// the session is gone and the connection should close.
func (s *LiveSession) handleTurn(ctx context.Context, msg protocol.ClientUserTurn) (done bool, err error) {
	if s.cfg.MaxTurnBytes > 0 && int64(len(msg.Text)) > s.cfg.MaxTurnBytes {
		if s.metrics != nil {
			s.metrics.TurnsTotal.WithLabelValues("rejected").Inc()
		}
		return false, s.sendJSON(protocol.NewError("bad_request", "turn text exceeds the size limit", false))
	}

	start := time.Now()
	result, turnErr := s.orch.SubmitTurn(ctx, s.session.ID, msg.Text, msg.WantAudio)
	if turnErr != nil {
		if core.IsSessionNotFound(turnErr) {
			_ = s.sendJSON(protocol.NewError("session_not_found", turnErr.Error(), true))
			return true, nil
		}
		if errors.Is(turnErr, context.Canceled) {
			// Teardown race: discard the partial turn, drop the connection.
			if s.metrics != nil {
				s.metrics.TurnsTotal.WithLabelValues("cancelled").Inc()
			}
			return true, nil
		}
		var coreErr *core.Error
		if errors.As(turnErr, &coreErr) && coreErr.Type == core.ErrInvalidRequest {
			return false, s.sendJSON(protocol.NewError("bad_request", coreErr.Message, false))
		}
		return false, turnErr
	}

	if s.metrics != nil {
		s.metrics.ObserveTurn(result, time.Since(start))
	}

	if err := s.sendJSON(protocol.NewResponse(result)); err != nil {
		return false, err
	}
	if result.HasAudio {
		audio := protocol.ServerResponseAudio{
			Type:     "response_audio",
			AudioB64: base64.StdEncoding.EncodeToString(result.Audio),
		}
		if err := s.sendJSON(audio); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (s *LiveSession) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	select {
	case s.outbound <- data:
		return nil
	default:
		return fmt.Errorf("outbound queue is full")
	}
}

func (s *LiveSession) readLoop(ctx context.Context, out chan<- inboundFrame) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			// The main loop may be blocked in SubmitTurn and unable to
			// consume this frame, so end the session here to cancel any
			// turn still in flight. EndSession is idempotent.
			s.orch.EndSession(s.session.ID)
		}
		select {
		case out <- inboundFrame{data: data, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// writeLoop is the only goroutine that writes to the connection. It drains
// the outbound queue in FIFO order, which is what guarantees the per-turn
// text-then-audio ordering, and keeps the connection alive with pings.
func (s *LiveSession) writeLoop(ctx context.Context) error {
	pingInterval := s.cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := s.cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flushOnShutdown(writeTimeout)
			_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			_ = s.conn.Close()
			return nil
		case <-pingTicker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		case data := <-s.outbound:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return err
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		}
	}
}

// flushOnShutdown makes a brief best-effort attempt to deliver queued
// frames (a final response or the closed ack) before the close frame.
func (s *LiveSession) flushOnShutdown(writeTimeout time.Duration) {
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case data := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = s.conn.WriteMessage(websocket.TextMessage, data)
		default:
			return
		}
	}
}
