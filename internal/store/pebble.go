package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omochice/support-chat/internal/message"
)

// Key layout:
//
//	msg:<messageID>                      -> JSON message
//	read:<conversationID>\x00<readerID> -> RFC 3339 read marker
//
// Conversation ids may contain ':' so the read key separates its parts
// with a NUL byte.
const (
	messagePrefix = "msg:"
	readPrefix    = "read:"
	readSeparator = "\x00"
)

func readKey(conversationID, readerID string) []byte {
	return []byte(readPrefix + conversationID + readSeparator + readerID)
}

// PebbleOptions configures OpenPebble.
type PebbleOptions struct {
	// FS overrides the filesystem, e.g. vfs.NewMem() in tests.
	FS vfs.FS
	// NewID overrides the uuid based message ID generator.
	NewID IDFunc
	// Now overrides time.Now.
	Now func() time.Time
}

// PebbleStore persists messages in a Pebble key/value database.
type PebbleStore struct {
	db    *pebble.DB
	log   zerolog.Logger
	newID IDFunc
	now   func() time.Time

	// serializes read-modify-write cycles
	mu sync.Mutex
}

// OpenPebble opens (or creates) a Pebble database at path.
func OpenPebble(path string, opts PebbleOptions, log zerolog.Logger) (*PebbleStore, error) {
	log = log.With().Str("component", "pebble_store").Logger()

	popts := &pebble.Options{}
	if opts.FS != nil {
		popts.FS = opts.FS
	}
	db, err := pebble.Open(path, popts)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to open pebble")
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("pebble opened")

	s := &PebbleStore{db: db, log: log, newID: uuid.NewString, now: time.Now}
	if opts.NewID != nil {
		s.newID = opts.NewID
	}
	if opts.Now != nil {
		s.now = opts.Now
	}
	return s, nil
}

func (s *PebbleStore) CreateMessage(ctx context.Context, params message.CreateParams) (*message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := newMessage(s.newID(), params, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.put(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *PebbleStore) UpdateMessage(ctx context.Context, id, content string) (*message.Message, error) {
	return s.mutate(ctx, id, func(m *message.Message, now time.Time) error {
		return applyUpdate(m, content, now)
	})
}

func (s *PebbleStore) DeleteMessage(ctx context.Context, id string) (*message.Message, error) {
	return s.mutate(ctx, id, applyDelete)
}

func (s *PebbleStore) AdvanceStatus(ctx context.Context, id string, status message.Status) (*message.Message, error) {
	return s.mutate(ctx, id, func(m *message.Message, now time.Time) error {
		applyStatus(m, status, now)
		return nil
	})
}

func (s *PebbleStore) mutate(ctx context.Context, id string, fn func(*message.Message, time.Time) error) (*message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if err := fn(m, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.put(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PebbleStore) MarkConversationRead(ctx context.Context, conversationID, readerID string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	at := s.now().UTC()
	if err := s.db.Set(readKey(conversationID, readerID), []byte(at.Format(time.RFC3339Nano)), pebble.Sync); err != nil {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to save read marker")
		return time.Time{}, fmt.Errorf("save read marker: %w", err)
	}
	return at, nil
}

// LastRead returns the read marker of readerID in conversationID.
func (s *PebbleStore) LastRead(conversationID, readerID string) (time.Time, bool) {
	val, closer, err := s.db.Get(readKey(conversationID, readerID))
	if err != nil {
		return time.Time{}, false
	}
	defer closer.Close()
	at, err := time.Parse(time.RFC3339Nano, string(val))
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

func (s *PebbleStore) GetMessage(ctx context.Context, id string) (*message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.get(id)
}

func (s *PebbleStore) get(id string) (*message.Message, error) {
	val, closer, err := s.db.Get([]byte(messagePrefix + id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, message.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	defer closer.Close()

	var m message.Message
	if err := json.Unmarshal(val, &m); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", id, err)
	}
	return &m, nil
}

func (s *PebbleStore) put(m *message.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", m.ID, err)
	}
	if err := s.db.Set([]byte(messagePrefix+m.ID), data, pebble.Sync); err != nil {
		s.log.Error().Err(err).Str("message_id", m.ID).Msg("failed to save message")
		return fmt.Errorf("save message %s: %w", m.ID, err)
	}
	return nil
}

// Ready reports whether the database is open.
func (s *PebbleStore) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.log.Info().Msg("pebble closed")
	return err
}

var _ message.Store = (*PebbleStore)(nil)
