package client

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

// ResolvedHistory bounds how many outcomes a Reconciler remembers.
const ResolvedHistory = 1024

// LocalStatus is the client-side state of an optimistic message.
type LocalStatus string

const (
	LocalStatusSending LocalStatus = "sending"
)

// OptimisticMessage is a send that the server has not answered yet.
// TempID doubles as the clientCorrelationId on the wire.
type OptimisticMessage struct {
	TempID         string
	ConversationID string
	RecipientID    string
	SenderID       string
	Content        string
	LocalStatus    LocalStatus
	CreatedAt      time.Time
}

// Resolution records how an optimistic message was resolved.
type Resolution struct {
	TempID    string
	MessageID string
	Err       error
}

// Succeeded reports whether the server accepted the send.
func (r Resolution) Succeeded() bool {
	return r.Err == nil
}

// Reconciler tracks optimistic sends by correlation id. Every entry is
// resolved exactly once, by Confirm or by Fail.
type Reconciler struct {
	mu       sync.Mutex
	pending  map[string]OptimisticMessage
	resolved *lru.Cache
	newID    func() string
	now      func() time.Time
}

// NewReconciler creates an empty Reconciler that keeps the most recent
// ResolvedHistory outcomes.
func NewReconciler() *Reconciler {
	return newReconciler(ResolvedHistory)
}

func newReconciler(history int) *Reconciler {
	resolved, err := lru.New(history)
	if err != nil {
		panic(err)
	}
	return &Reconciler{
		pending:  make(map[string]OptimisticMessage),
		resolved: resolved,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Submit materializes an optimistic message in the sending state.
func (r *Reconciler) Submit(conversationID, recipientID, senderID, content string) OptimisticMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := OptimisticMessage{
		TempID:         r.newID(),
		ConversationID: conversationID,
		RecipientID:    recipientID,
		SenderID:       senderID,
		Content:        content,
		LocalStatus:    LocalStatusSending,
		CreatedAt:      r.now(),
	}
	r.pending[msg.TempID] = msg
	return msg
}

// Confirm resolves correlationID as accepted. It reports false when the
// entry is unknown or already resolved.
func (r *Reconciler) Confirm(correlationID, messageID string) bool {
	return r.resolve(Resolution{TempID: correlationID, MessageID: messageID})
}

// Fail resolves correlationID as rejected with err.
func (r *Reconciler) Fail(correlationID string, err error) bool {
	return r.resolve(Resolution{TempID: correlationID, Err: err})
}

func (r *Reconciler) resolve(res Resolution) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[res.TempID]; !ok {
		return false
	}
	delete(r.pending, res.TempID)
	r.resolved.Add(res.TempID, res)
	return true
}

// Outcome returns the resolution of correlationID, if it has one and it
// is among the most recent outcomes.
func (r *Reconciler) Outcome(correlationID string) (Resolution, bool) {
	v, ok := r.resolved.Get(correlationID)
	if !ok {
		return Resolution{}, false
	}
	return v.(Resolution), true
}

// Pending returns the unresolved messages of a conversation, oldest first.
// An empty conversationID returns all of them.
func (r *Reconciler) Pending(conversationID string) []OptimisticMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []OptimisticMessage
	for _, msg := range r.pending {
		if conversationID == "" || msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TempID < out[j].TempID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// PendingCount returns the number of unresolved messages.
func (r *Reconciler) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
