// Package store provides message.Store implementations.
package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omochice/support-chat/internal/message"
)

// IDFunc generates message IDs.
type IDFunc func() string

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithIDFunc overrides the uuid based message ID generator.
func WithIDFunc(fn IDFunc) MemoryOption {
	return func(s *MemoryStore) { s.newID = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// MemoryStore keeps messages in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]*message.Message
	reads    map[string]map[string]time.Time
	newID    IDFunc
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		messages: make(map[string]*message.Message),
		reads:    make(map[string]map[string]time.Time),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SequentialIDs returns an IDFunc yielding prefix1, prefix2, ...
func SequentialIDs(prefix string) IDFunc {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + strconv.Itoa(n)
	}
}

func (s *MemoryStore) CreateMessage(ctx context.Context, params message.CreateParams) (*message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := newMessage(s.newID(), params, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = msg
	return msg.Clone(), nil
}

func (s *MemoryStore) UpdateMessage(ctx context.Context, id, content string) (*message.Message, error) {
	return s.mutate(ctx, id, func(m *message.Message, now time.Time) error {
		return applyUpdate(m, content, now)
	})
}

func (s *MemoryStore) DeleteMessage(ctx context.Context, id string) (*message.Message, error) {
	return s.mutate(ctx, id, applyDelete)
}

func (s *MemoryStore) AdvanceStatus(ctx context.Context, id string, status message.Status) (*message.Message, error) {
	return s.mutate(ctx, id, func(m *message.Message, now time.Time) error {
		applyStatus(m, status, now)
		return nil
	})
}

func (s *MemoryStore) mutate(ctx context.Context, id string, fn func(*message.Message, time.Time) error) (*message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, message.ErrNotFound
	}
	next := m.Clone()
	if err := fn(next, s.now().UTC()); err != nil {
		return nil, err
	}
	s.messages[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) MarkConversationRead(ctx context.Context, conversationID, readerID string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	at := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	readers, ok := s.reads[conversationID]
	if !ok {
		readers = make(map[string]time.Time)
		s.reads[conversationID] = readers
	}
	readers[readerID] = at
	return at, nil
}

// LastRead returns the read marker of readerID in conversationID.
func (s *MemoryStore) LastRead(conversationID, readerID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.reads[conversationID][readerID]
	return at, ok
}

func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, message.ErrNotFound
	}
	return m.Clone(), nil
}

// Ready always reports true.
func (s *MemoryStore) Ready() bool { return true }

func (s *MemoryStore) Close() error { return nil }

var _ message.Store = (*MemoryStore)(nil)
