package chat

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/omochice/support-chat/internal/metrics"
	"github.com/omochice/support-chat/pkg/protocol"
)

// Session is one authenticated live connection.
type Session struct {
	ID       string
	Identity Identity
	OpenedAt time.Time
	Codec    protocol.Codec

	conn     Conn
	outgoing chan []byte
	limiter  *rate.Limiter
	log      zerolog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newSession(id string, conn Conn, identity Identity, codec protocol.Codec, opts Options, log zerolog.Logger) *Session {
	return &Session{
		ID:       id,
		Identity: identity,
		OpenedAt: time.Now().UTC(),
		Codec:    codec,
		conn:     conn,
		outgoing: make(chan []byte, opts.OutboundBuffer),
		limiter:  rate.NewLimiter(rate.Limit(opts.EventRate), opts.EventBurst),
		log: log.With().
			Str("session_id", id).
			Str("user_id", identity.UserID).
			Logger(),
		done: make(chan struct{}),
	}
}

// Send encodes env with the session codec and queues it for delivery.
// It reports false when the session is closed or its queue is full.
func (s *Session) Send(env protocol.Envelope) bool {
	frame, err := env.Encode(s.Codec)
	if err != nil {
		s.log.Error().Err(err).Str("event", env.Event.String()).Msg("failed to encode outbound event")
		return false
	}
	return s.sendFrame(frame)
}

// sendFrame queues an already encoded frame without blocking.
func (s *Session) sendFrame(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.outgoing <- frame:
		return true
	default:
		metrics.OutboundDropped.Inc()
		s.log.Warn().Msg("session queue full, dropping frame")
		return false
	}
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// RemoteAddr returns the transport's remote address.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr()
}

// allow applies the inbound event rate limit.
func (s *Session) allow() bool {
	return s.limiter.Allow()
}

// close stops accepting frames. It reports whether this call closed the session.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	close(s.outgoing)
	close(s.done)
	return true
}
