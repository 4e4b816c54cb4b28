// Package chat provides the realtime core shared by all transports: sessions,
// presence, room routing and the hub that ties their lifecycles together.
package chat

import "context"

// Conn abstracts one bidirectional event channel.
// This interface isolates transport details from chat logic.
type Conn interface {
	// Read reads a single frame (protobuf or JSON envelope bytes).
	// A nil frame with a nil error signals keepalive traffic.
	// Returns io.EOF when the connection is closed.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Pinger is implemented by transports that can send keepalive pings.
type Pinger interface {
	Ping(ctx context.Context) error
}
