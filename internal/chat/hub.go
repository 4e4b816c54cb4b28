package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omochice/support-chat/internal/metrics"
	"github.com/omochice/support-chat/internal/platformerrors"
	"github.com/omochice/support-chat/pkg/protocol"
)

// ErrHubClosed is returned by Open after Shutdown.
var ErrHubClosed = errors.New("chat: hub is shut down")

// Options tunes per-session behaviour.
type Options struct {
	OutboundBuffer int
	IdleTimeout    time.Duration
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	EventRate      float64
	EventBurst     int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		OutboundBuffer: 64,
		IdleTimeout:    90 * time.Second,
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		EventRate:      20,
		EventBurst:     40,
	}
}

// Handler processes one decoded inbound event for a session.
// Events of one session are handled sequentially.
type Handler interface {
	Handle(ctx context.Context, s *Session, env protocol.Envelope)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, s *Session, env protocol.Envelope)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, s *Session, env protocol.Envelope) {
	f(ctx, s, env)
}

// Hub owns the session lifecycle. Opening and closing a session updates
// presence and room membership in a single step under the lifecycle lock,
// so presence changes are globally ordered.
// All transports share a single Hub instance.
type Hub struct {
	presence *Presence
	router   *Router
	opts     Options
	log      zerolog.Logger

	lifecycle sync.Mutex
	sessions  map[string]*Session
	closed    bool
	wg        sync.WaitGroup
}

// NewHub creates a Hub with empty presence and rooms.
func NewHub(opts Options, log zerolog.Logger) *Hub {
	presence := NewPresence()
	return &Hub{
		presence: presence,
		router:   NewRouter(presence, log),
		opts:     opts,
		log:      log.With().Str("component", "hub").Logger(),
		sessions: make(map[string]*Session),
	}
}

// Presence returns the hub's presence registry.
func (h *Hub) Presence() *Presence {
	return h.presence
}

// Router returns the hub's room router.
func (h *Hub) Router() *Router {
	return h.router
}

// SessionCount returns the number of open sessions.
func (h *Hub) SessionCount() int {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()
	return len(h.sessions)
}

// Open creates a session for an already authenticated identity, registers
// it in presence and joins its identity room (and the admin pool for
// support identities). A previous session of the same identity is evicted.
func (h *Hub) Open(conn Conn, identity Identity, codec protocol.Codec) (*Session, error) {
	s := newSession(uuid.NewString(), conn, identity, codec, h.opts, h.log)

	h.lifecycle.Lock()
	if h.closed {
		h.lifecycle.Unlock()
		return nil, ErrHubClosed
	}

	h.sessions[s.ID] = s
	h.router.Attach(s)
	previous, replaced := h.presence.Register(identity, s.ID)
	h.router.Join(s.ID, IdentityRoom(identity.UserID))
	if identity.IsSupport() {
		h.router.Join(s.ID, AdminPoolRoom())
	}

	var superseded *Session
	if replaced {
		superseded = h.sessions[previous]
		delete(h.sessions, previous)
		h.router.Detach(previous)
	} else {
		h.announce(protocol.EventUserOnline, identity.UserID, s.OpenedAt)
	}
	metrics.OnlineIdentities.Set(float64(h.presence.Len()))
	h.lifecycle.Unlock()

	metrics.RecordSessionOpened()
	s.log.Info().
		Str("role", string(identity.Role)).
		Str("remote", conn.RemoteAddr()).
		Str("codec", codec.String()).
		Msg("session opened")

	if superseded != nil {
		metrics.SessionsSuperseded.Inc()
		superseded.log.Info().Str("superseded_by", s.ID).Msg("session superseded")
		if superseded.close() {
			metrics.RecordSessionClosed()
		}
		_ = superseded.conn.Close()
	}
	return s, nil
}

// Close tears the session down: it leaves every room, is removed from
// presence and stops accepting frames. Closing twice is a no-op.
func (h *Hub) Close(s *Session) {
	h.lifecycle.Lock()
	if _, ok := h.sessions[s.ID]; ok {
		delete(h.sessions, s.ID)
		h.router.Detach(s.ID)
		if identity, removed := h.presence.Unregister(s.ID); removed {
			h.announce(protocol.EventUserOffline, identity.UserID, time.Now().UTC())
		}
		metrics.OnlineIdentities.Set(float64(h.presence.Len()))
	}
	h.lifecycle.Unlock()

	if s.close() {
		metrics.RecordSessionClosed()
		s.log.Info().Dur("duration", time.Since(s.OpenedAt)).Msg("session closed")
	}
}

// announce broadcasts a presence change to every session.
// Caller must hold h.lifecycle.
func (h *Hub) announce(event protocol.Event, userID string, at time.Time) {
	env, err := protocol.NewEnvelope(event, protocol.PresenceChange{UserID: userID, Timestamp: at})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to build presence event")
		return
	}
	h.router.BroadcastAll(env)
}

// Serve runs the session until its connection fails, it idles out or ctx is
// cancelled, dispatching every inbound event to handler. The session is
// closed when Serve returns.
func (h *Hub) Serve(ctx context.Context, s *Session, handler Handler) {
	h.lifecycle.Lock()
	if h.closed {
		h.lifecycle.Unlock()
		h.Close(s)
		_ = s.conn.Close()
		return
	}
	h.wg.Add(1)
	h.lifecycle.Unlock()
	defer h.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(s)
	}()

	defer func() {
		cancel()
		h.Close(s)
		<-writerDone
		_ = s.conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
		case <-s.Done():
		}
	}()

	for {
		data, err := h.read(ctx, s)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				s.log.Debug().Msg("connection closed")
			} else {
				s.log.Debug().Err(err).Msg("read failed")
			}
			return
		}
		if len(data) == 0 {
			continue
		}

		var env protocol.Envelope
		if err := env.Decode(data); err != nil {
			metrics.InboundRejected.WithLabelValues("decode").Inc()
			h.reject(s, protocol.MessageError{}, platformerrors.ErrorTypeValidation, "malformed frame")
			continue
		}
		report := protocol.MessageError{
			Event:               env.Event,
			ClientCorrelationID: env.CorrelationID(),
		}
		if !env.Event.IsInbound() {
			metrics.InboundRejected.WithLabelValues("unknown_event").Inc()
			h.reject(s, report, platformerrors.ErrorTypeValidation, "unsupported event")
			continue
		}
		if !s.allow() {
			metrics.InboundRejected.WithLabelValues("rate_limited").Inc()
			h.reject(s, report, platformerrors.ErrorTypeRateLimited, "too many events")
			continue
		}

		metrics.InboundEvents.WithLabelValues(env.Event.String()).Inc()
		handler.Handle(ctx, s, env)
	}
}

// read waits at most IdleTimeout for the next frame.
func (h *Hub) read(ctx context.Context, s *Session) ([]byte, error) {
	if h.opts.IdleTimeout <= 0 {
		return s.conn.Read(ctx)
	}
	readCtx, cancel := context.WithTimeout(ctx, h.opts.IdleTimeout)
	defer cancel()
	return s.conn.Read(readCtx)
}

func (h *Hub) reject(s *Session, report protocol.MessageError, errorType platformerrors.ErrorType, message string) {
	report.Error = message
	report.Code = errorType.Code()
	env, err := protocol.NewEnvelope(protocol.EventMessageError, report)
	if err != nil {
		return
	}
	s.Send(env)
}

// writeLoop drains the session queue to the connection and sends keepalive
// pings when the transport supports them.
func (h *Hub) writeLoop(s *Session) {
	var ping <-chan time.Time
	pinger, canPing := s.conn.(Pinger)
	if canPing && h.opts.PingInterval > 0 {
		ticker := time.NewTicker(h.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case frame, ok := <-s.outgoing:
			if !ok {
				return
			}
			if err := h.write(s, frame); err != nil {
				s.log.Debug().Err(err).Msg("write failed")
				_ = s.conn.Close()
				return
			}
		case <-ping:
			ctx, cancel := h.writeContext()
			err := pinger.Ping(ctx)
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("ping failed")
				_ = s.conn.Close()
				return
			}
		}
	}
}

func (h *Hub) write(s *Session, frame []byte) error {
	ctx, cancel := h.writeContext()
	defer cancel()
	return s.conn.Write(ctx, frame)
}

func (h *Hub) writeContext() (context.Context, context.CancelFunc) {
	if h.opts.WriteTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), h.opts.WriteTimeout)
}

// Shutdown closes every session and waits for running Serve calls to return.
func (h *Hub) Shutdown() {
	h.lifecycle.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.lifecycle.Unlock()

	for _, s := range sessions {
		h.Close(s)
		_ = s.conn.Close()
	}
	h.wg.Wait()
	h.log.Info().Int("sessions", len(sessions)).Msg("hub shut down")
}
