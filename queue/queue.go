package queue

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/promptmux/promptmux/core"
	"github.com/promptmux/promptmux/logging"
)

// queuedMessage pins a message to its arrival sequence. The sequence is the
// explicit tie-break for equal priority: lower sequence (earlier arrival)
// delivers first.
type queuedMessage struct {
	msg core.Message
	seq uint64
}

// mailbox is one recipient's ordered message sequence. Items are kept in
// delivery order: priority descending, then sequence ascending.
type mailbox struct {
	items []queuedMessage
}

// insert places qm at its delivery position. Because sequences increase
// monotonically, a new message always lands after existing messages of the
// same priority.
func (m *mailbox) insert(qm queuedMessage) {
	i := sort.Search(len(m.items), func(i int) bool {
		return m.items[i].msg.Priority < qm.msg.Priority
	})
	m.items = append(m.items, queuedMessage{})
	copy(m.items[i+1:], m.items[i:])
	m.items[i] = qm
}

// Options configures a MessageQueue.
type Options struct {
	// MaxMailboxSize caps each recipient's mailbox. Zero means unbounded
	// (not recommended outside tests).
	MaxMailboxSize int
	// Logger receives queue diagnostics (defaults to NoOp).
	Logger logging.Logger
}

// MessageQueue routes directed messages into per-recipient priority
// mailboxes and supports broadcast to every registered recipient. All
// methods are safe for concurrent use; the registry and every mailbox are
// guarded by one mutex since operations are short and synchronous.
type MessageQueue struct {
	mu        sync.RWMutex
	mailboxes map[string]*mailbox
	seq       uint64
	totalSent uint64
	maxSize   int
	logger    logging.Logger
}

// New creates a MessageQueue with optional overrides.
func New(optFns ...func(o *Options)) *MessageQueue {
	opts := Options{
		MaxMailboxSize: 1000,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &MessageQueue{
		mailboxes: make(map[string]*mailbox),
		maxSize:   opts.MaxMailboxSize,
		logger:    opts.Logger,
	}
}

// Register creates an empty mailbox for the recipient if none exists.
// Registration defines the recipient set seen by Broadcast.
func (q *MessageQueue) Register(recipientID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.mailboxes[recipientID]; !ok {
		q.mailboxes[recipientID] = &mailbox{}
	}
}

// Unregister discards the recipient's mailbox including any queued
// messages. Returns false if the recipient was unknown.
func (q *MessageQueue) Unregister(recipientID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.mailboxes[recipientID]; !ok {
		return false
	}
	delete(q.mailboxes, recipientID)
	return true
}

// Send assigns the message a fresh ID and timestamp and places it in the
// recipient's mailbox at its delivery position. The mailbox is created if
// the recipient is unknown. Returns the stored message, or ErrMailboxFull
// when the recipient's mailbox has hit its cap.
func (q *MessageQueue) Send(msg core.Message) (core.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	mb, ok := q.mailboxes[msg.RecipientID]
	if !ok {
		mb = &mailbox{}
		q.mailboxes[msg.RecipientID] = mb
	}

	if q.maxSize > 0 && len(mb.items) >= q.maxSize {
		return core.Message{}, fmt.Errorf("recipient %s: %w", msg.RecipientID, core.ErrMailboxFull)
	}

	msg.ID = core.NewID()
	msg.Timestamp = time.Now().UTC()

	q.seq++
	mb.insert(queuedMessage{msg: msg, seq: q.seq})
	q.totalSent++

	q.logger.Debug("message queued", "message_id", msg.ID, "type", string(msg.Type), "recipient_id", msg.RecipientID, "priority", msg.Priority.String())

	return msg, nil
}

// ReceiveOptions narrows what Receive drains.
type ReceiveOptions struct {
	// Type keeps only messages of this type when set.
	Type core.MessageType
	// SenderID keeps only messages from this sender when set.
	SenderID string
}

// WithType filters a receive to one message type.
func WithType(t core.MessageType) func(o *ReceiveOptions) {
	return func(o *ReceiveOptions) { o.Type = t }
}

// WithSender filters a receive to one sender.
func WithSender(senderID string) func(o *ReceiveOptions) {
	return func(o *ReceiveOptions) { o.SenderID = senderID }
}

// Receive drains the recipient's mailbox in delivery order. With no options
// every queued message is returned and the mailbox is left empty. With
// options, matching messages are partitioned out and the rest stay queued
// in their original relative order. An unknown recipient yields nil.
func (q *MessageQueue) Receive(recipientID string, optFns ...func(o *ReceiveOptions)) []core.Message {
	var opts ReceiveOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	mb, ok := q.mailboxes[recipientID]
	if !ok || len(mb.items) == 0 {
		return nil
	}

	if opts.Type == "" && opts.SenderID == "" {
		out := make([]core.Message, len(mb.items))
		for i, qm := range mb.items {
			out[i] = qm.msg
		}
		mb.items = nil
		return out
	}

	var out []core.Message
	kept := mb.items[:0]
	for _, qm := range mb.items {
		if matches(qm.msg, opts) {
			out = append(out, qm.msg)
		} else {
			kept = append(kept, qm)
		}
	}
	mb.items = kept
	return out
}

func matches(msg core.Message, opts ReceiveOptions) bool {
	if opts.Type != "" && msg.Type != opts.Type {
		return false
	}
	if opts.SenderID != "" && msg.SenderID != opts.SenderID {
		return false
	}
	return true
}

// Peek returns the highest-priority message without removing it. The
// second return value is false when the mailbox is empty or unknown.
func (q *MessageQueue) Peek(recipientID string) (core.Message, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	mb, ok := q.mailboxes[recipientID]
	if !ok || len(mb.items) == 0 {
		return core.Message{}, false
	}
	return mb.items[0].msg, true
}

// Clear empties the recipient's mailbox keeping it registered. Returns the
// number of discarded messages.
func (q *MessageQueue) Clear(recipientID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	mb, ok := q.mailboxes[recipientID]
	if !ok {
		return 0
	}
	n := len(mb.items)
	mb.items = nil
	return n
}

// Size returns the number of queued messages for the recipient.
func (q *MessageQueue) Size(recipientID string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	mb, ok := q.mailboxes[recipientID]
	if !ok {
		return 0
	}
	return len(mb.items)
}

// Broadcast delivers a copy of the message (fresh ID per copy, shared
// payload) to every registered recipient except the sender itself. Full
// mailboxes are skipped with a warning rather than failing the whole
// broadcast. Returns the delivered copies.
func (q *MessageQueue) Broadcast(msg core.Message) []core.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	recipients := make([]string, 0, len(q.mailboxes))
	for id := range q.mailboxes {
		if id == msg.SenderID {
			continue
		}
		recipients = append(recipients, id)
	}
	sort.Strings(recipients)

	delivered := make([]core.Message, 0, len(recipients))
	for _, id := range recipients {
		mb := q.mailboxes[id]
		if q.maxSize > 0 && len(mb.items) >= q.maxSize {
			q.logger.Warn("broadcast skipped full mailbox", "recipient_id", id)
			continue
		}

		cp := msg
		cp.ID = core.NewID()
		cp.RecipientID = id
		cp.Timestamp = time.Now().UTC()

		q.seq++
		mb.insert(queuedMessage{msg: cp, seq: q.seq})
		q.totalSent++
		delivered = append(delivered, cp)
	}

	return delivered
}

// Stats is a point-in-time snapshot of queue occupancy.
type Stats struct {
	// Recipients is the number of registered mailboxes.
	Recipients int `json:"recipients"`
	// TotalQueued is the number of messages currently waiting.
	TotalQueued int `json:"total_queued"`
	// PerRecipient maps recipient IDs to their mailbox sizes.
	PerRecipient map[string]int `json:"per_recipient"`
	// TotalSent counts every successful send and broadcast copy since
	// the queue was created.
	TotalSent uint64 `json:"total_sent"`
}

// GetStats returns a snapshot of per-recipient sizes and totals.
func (q *MessageQueue) GetStats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := Stats{
		Recipients:   len(q.mailboxes),
		PerRecipient: make(map[string]int, len(q.mailboxes)),
		TotalSent:    q.totalSent,
	}
	for id, mb := range q.mailboxes {
		stats.PerRecipient[id] = len(mb.items)
		stats.TotalQueued += len(mb.items)
	}
	return stats
}
