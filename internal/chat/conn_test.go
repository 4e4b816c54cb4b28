package chat_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omochice/support-chat/internal/chat"
	"github.com/omochice/support-chat/pkg/protocol"
)

// mockConn is a mock implementation of chat.Conn for testing.
type mockConn struct {
	readCh     chan []byte
	closeCh    chan struct{}
	closeOnce  sync.Once
	writtenMu  sync.Mutex
	written    [][]byte
	writeErr   error
	remoteAddr string
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan []byte, 16),
		closeCh:    make(chan struct{}),
		remoteAddr: addr,
	}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closeCh:
		return nil, io.EOF
	case data := <-m.readCh:
		return data, nil
	}
}

func (m *mockConn) Write(_ context.Context, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	m.written = append(m.written, copied)
	return nil
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closeCh) })
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

func (m *mockConn) isClosed() bool {
	select {
	case <-m.closeCh:
		return true
	default:
		return false
	}
}

// push queues an inbound envelope encoded with codec.
func (m *mockConn) push(t *testing.T, codec protocol.Codec, event protocol.Event, payload any) {
	t.Helper()
	env, err := protocol.NewEnvelope(event, payload)
	require.NoError(t, err)
	frame, err := env.Encode(codec)
	require.NoError(t, err)
	m.readCh <- frame
}

// GetWritten returns the decoded envelopes written so far.
func (m *mockConn) GetWritten(t *testing.T) []protocol.Envelope {
	t.Helper()
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()

	out := make([]protocol.Envelope, 0, len(m.written))
	for _, frame := range m.written {
		var env protocol.Envelope
		require.NoError(t, env.Decode(frame))
		out = append(out, env)
	}
	return out
}

// events returns the names of the envelopes written so far.
func (m *mockConn) events(t *testing.T) []protocol.Event {
	t.Helper()
	var out []protocol.Event
	for _, env := range m.GetWritten(t) {
		out = append(out, env.Event)
	}
	return out
}

// waitFor blocks until an envelope with event has been written.
func (m *mockConn) waitFor(t *testing.T, event protocol.Event) protocol.Envelope {
	t.Helper()
	var found protocol.Envelope
	require.Eventually(t, func() bool {
		for _, env := range m.GetWritten(t) {
			if env.Event == event {
				found = env
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no %s written", event)
	return found
}

// Compile-time check that mockConn implements chat.Conn
var _ chat.Conn = (*mockConn)(nil)
