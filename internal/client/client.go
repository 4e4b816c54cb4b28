// Package client is a Go client for the chat server. It keeps a local
// timeline of broadcast messages and reconciles optimistic sends with the
// server's acknowledgements.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/omochice/support-chat/internal/message"
	"github.com/omochice/support-chat/pkg/protocol"
)

// ErrNotConnected is returned by operations on a closed client.
var ErrNotConnected = errors.New("client: not connected")

// RemoteError is a message_error reported by the server.
type RemoteError struct {
	Event protocol.Event
	Code  string
	Msg   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Event, e.Msg, e.Code)
}

// Options configures a Client.
type Options struct {
	// UserID is the identity the token was issued for.
	UserID string
	Token  string
	Codec  protocol.Codec
	// Buffer sizes the Events and Failures channels.
	Buffer int
	Logger zerolog.Logger
}

// Client represents a WebSocket chat client.
type Client struct {
	address string
	opts    Options
	log     zerolog.Logger

	reconciler *Reconciler
	timeline   *Timeline

	mu       sync.RWMutex
	conn     *websocket.Conn
	events   chan protocol.Envelope
	failures chan Resolution
	wg       sync.WaitGroup
}

// New creates a client for the server's /ws URL.
func New(address string, opts Options) *Client {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	r := NewReconciler()
	return &Client{
		address:    address,
		opts:       opts,
		log:        opts.Logger.With().Str("component", "client").Str("user_id", opts.UserID).Logger(),
		reconciler: r,
		timeline:   NewTimeline(r),
		events:     make(chan protocol.Envelope, opts.Buffer),
		failures:   make(chan Resolution, opts.Buffer),
	}
}

// Connect dials the server and starts receiving.
func (c *Client) Connect(ctx context.Context) error {
	target, err := url.Parse(c.address)
	if err != nil {
		return fmt.Errorf("parse server address: %w", err)
	}
	if c.opts.Codec == protocol.CodecJSON {
		q := target.Query()
		q.Set("codec", protocol.CodecJSON.String())
		target.RawQuery = q.Encode()
	}

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, _, err := websocket.Dial(ctx, target.String(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.wg.Add(1)
	go c.receive(conn)
	return nil
}

// Close closes the connection and waits for the receive loop to exit.
// Sends still pending are failed locally.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close(websocket.StatusNormalClosure, "")
	c.wg.Wait()
	return err
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Events delivers every event received from the server, after it has been
// applied to the timeline and reconciler.
func (c *Client) Events() <-chan protocol.Envelope {
	return c.events
}

// Failures delivers optimistic sends that were rolled back.
func (c *Client) Failures() <-chan Resolution {
	return c.failures
}

// Reconciler returns the optimistic send tracker.
func (c *Client) Reconciler() *Reconciler {
	return c.reconciler
}

// Timeline returns the local message timeline.
func (c *Client) Timeline() *Timeline {
	return c.timeline
}

// Join joins a conversation room.
func (c *Client) Join(ctx context.Context, conversationID string) error {
	return c.emit(ctx, protocol.EventJoinConversation, protocol.ConversationRef{ConversationID: conversationID})
}

// Leave leaves a conversation room.
func (c *Client) Leave(ctx context.Context, conversationID string) error {
	return c.emit(ctx, protocol.EventLeaveConversation, protocol.ConversationRef{ConversationID: conversationID})
}

// Send submits an optimistic message and sends it. An empty conversationID
// addresses the direct conversation with recipientID.
func (c *Client) Send(ctx context.Context, recipientID, conversationID, content string) (OptimisticMessage, error) {
	if conversationID == "" {
		conversationID = message.ConversationKey(c.opts.UserID, recipientID)
	}
	pending := c.reconciler.Submit(conversationID, recipientID, c.opts.UserID, content)

	err := c.emit(ctx, protocol.EventSendMessage, protocol.SendMessage{
		RecipientID:         recipientID,
		Content:             content,
		ConversationID:      conversationID,
		ClientCorrelationID: pending.TempID,
	})
	if err != nil {
		c.rollback(pending.TempID, err)
		return pending, err
	}
	return pending, nil
}

// Edit replaces the content of a message.
func (c *Client) Edit(ctx context.Context, conversationID, messageID, content string) error {
	return c.emit(ctx, protocol.EventUpdateMessage, protocol.UpdateMessage{
		MessageID:      messageID,
		Content:        content,
		ConversationID: conversationID,
	})
}

// Recall recalls a message.
func (c *Client) Recall(ctx context.Context, conversationID, messageID string) error {
	return c.emit(ctx, protocol.EventDeleteMessage, protocol.DeleteMessage{
		MessageID:      messageID,
		ConversationID: conversationID,
	})
}

// MarkRead marks a conversation as read.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	return c.emit(ctx, protocol.EventMarkAsRead, protocol.ConversationRef{ConversationID: conversationID})
}

// Typing sends a typing indicator.
func (c *Client) Typing(ctx context.Context, conversationID string, isTyping bool) error {
	return c.emit(ctx, protocol.EventTyping, protocol.Typing{ConversationID: conversationID, IsTyping: isTyping})
}

// RequestOnlineUsers asks for the online_users list.
func (c *Client) RequestOnlineUsers(ctx context.Context) error {
	return c.emit(ctx, protocol.EventGetOnlineUsers, struct{}{})
}

func (c *Client) emit(ctx context.Context, event protocol.Event, payload any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("failed to build %s: %w", event, err)
	}
	codec := c.opts.Codec
	data, err := env.Encode(codec)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	typ := websocket.MessageBinary
	if codec == protocol.CodecJSON {
		typ = websocket.MessageText
	}
	if err := conn.Write(ctx, typ, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

func (c *Client) receive(conn *websocket.Conn) {
	defer c.wg.Done()
	defer c.failPending()

	ctx := context.Background()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.log.Debug().Err(err).Msg("read from server failed")
			}
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			return
		}

		var env protocol.Envelope
		if err := env.Decode(data); err != nil {
			c.log.Warn().Err(err).Msg("failed to decode event")
			continue
		}
		c.apply(env)

		select {
		case c.events <- env:
		default:
			c.log.Warn().Str("event", env.Event.String()).Msg("events channel full, dropping event")
		}
	}
}

// apply folds a server event into local state.
func (c *Client) apply(env protocol.Envelope) {
	var err error
	switch env.Event {
	case protocol.EventNewMessage:
		var ev protocol.NewMessage
		if err = env.Bind(&ev); err == nil {
			c.timeline.ApplyNew(ev.Message)
		}
	case protocol.EventMessageSent:
		var ev protocol.MessageSent
		if err = env.Bind(&ev); err == nil {
			c.reconciler.Confirm(ev.ClientCorrelationID, ev.MessageID)
		}
	case protocol.EventMessageError:
		var ev protocol.MessageError
		if err = env.Bind(&ev); err == nil && ev.ClientCorrelationID != "" {
			c.rollback(ev.ClientCorrelationID, &RemoteError{Event: ev.Event, Code: ev.Code, Msg: ev.Error})
		}
	case protocol.EventMessageUpdated:
		var ev protocol.MessageUpdated
		if err = env.Bind(&ev); err == nil {
			c.timeline.ApplyUpdated(ev)
		}
	case protocol.EventMessageDeleted:
		var ev protocol.MessageDeleted
		if err = env.Bind(&ev); err == nil {
			c.timeline.ApplyDeleted(ev)
		}
	case protocol.EventMessagesRead:
		var ev protocol.MessagesRead
		if err = env.Bind(&ev); err == nil {
			c.timeline.ApplyRead(ev)
		}
	}
	if err != nil {
		c.log.Warn().Err(err).Str("event", env.Event.String()).Msg("malformed event payload")
	}
}

func (c *Client) rollback(tempID string, err error) {
	if !c.reconciler.Fail(tempID, err) {
		return
	}
	select {
	case c.failures <- Resolution{TempID: tempID, Err: err}:
	default:
	}
}

// failPending rolls back sends that can no longer be answered.
func (c *Client) failPending() {
	for _, p := range c.reconciler.Pending("") {
		c.rollback(p.TempID, ErrNotConnected)
	}
}
