// Package ws adapts server-side WebSocket connections to chat.Conn.
package ws

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/support-chat/pkg/protocol"
)

const closeWriteTimeout = time.Second

// Conn is a server-side WebSocket connection. Reads are serialized by the
// caller; writes, pings and control replies share one write lock.
type Conn struct {
	conn       net.Conn
	reader     *wsutil.Reader
	control    wsutil.FrameHandlerFunc
	remoteAddr string

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Accept upgrades an HTTP request to a WebSocket connection.
func Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, err
	}

	var source io.Reader = conn
	if rw != nil && rw.Reader.Buffered() > 0 {
		source = io.MultiReader(rw.Reader, conn)
	}
	return newConn(conn, source, remoteAddr(r, conn)), nil
}

func newConn(conn net.Conn, source io.Reader, addr string) *Conn {
	c := &Conn{conn: conn, remoteAddr: addr}
	c.control = wsutil.ControlFrameHandler(lockedWriter{c}, ws.StateServerSide)
	c.reader = &wsutil.Reader{
		Source:         source,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: c.control,
	}
	return c
}

// Read implements chat.Conn. Control frames are answered here and reported
// as a nil frame so the caller can reset its idle timer.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return nil, c.readError(ctx, err)
		}

		if hdr.OpCode.IsControl() {
			if err := c.control(hdr, c.reader); err != nil {
				return nil, c.readError(ctx, err)
			}
			return nil, nil
		}

		if hdr.OpCode != ws.OpText && hdr.OpCode != ws.OpBinary {
			if err := c.reader.Discard(); err != nil {
				return nil, c.readError(ctx, err)
			}
			continue
		}

		data, err := io.ReadAll(c.reader)
		if err != nil {
			return nil, c.readError(ctx, err)
		}
		return data, nil
	}
}

func (c *Conn) readError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var closed wsutil.ClosedError
	if errors.As(err, &closed) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return err
}

// Write implements chat.Conn. JSON frames go out as text, everything else
// as binary.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	op := ws.OpBinary
	if protocol.DetectCodec(data) == protocol.CodecJSON {
		op = ws.OpText
	}
	return c.writeFrame(ctx, op, data)
}

// Ping sends a keepalive ping.
func (c *Conn) Ping(ctx context.Context) error {
	return c.writeFrame(ctx, ws.OpPing, nil)
}

func (c *Conn) writeFrame(ctx context.Context, op ws.OpCode, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return wsutil.WriteServerMessage(c.conn, op, data)
}

// Close implements chat.Conn. It sends a normal closure frame and closes the
// socket. Calling it more than once is safe.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeWriteTimeout)
		defer cancel()
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = c.writeFrame(ctx, ws.OpClose, body)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// lockedWriter lets the control frame handler share the write lock.
type lockedWriter struct {
	c *Conn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}

func remoteAddr(r *http.Request, conn net.Conn) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	if conn.RemoteAddr() != nil {
		return conn.RemoteAddr().String()
	}
	return r.RemoteAddr
}
