package reprap

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/xid"
)

// ErrTypeAlreadyInQueue is returned by Queue.Put when an item with the
// same non-empty Type is still pending; it's how the temperature and SD
// status pollers avoid piling up duplicate polls when the firmware is slow
// to answer.
var ErrTypeAlreadyInQueue = errors.New("reprap: an item of this type is already queued")

// QueueItem is either a Command or a Marker (never both), tagged with an
// optional dedup Type, an optional completion Callback, and (for the send
// queue only) a Target of "send" or "resend" used to prioritise resends.
// LineNumber is non-zero only for resend replays, where it preassigns the
// wire line number instead of letting the send loop draw a fresh one.
type QueueItem struct {
	ID         xid.ID
	Type       string
	Command    *Command
	Marker     *Marker
	Target     string
	LineNumber int
	Callback   func(error)
}

func newQueueItem() QueueItem {
	return QueueItem{ID: xid.New()}
}

// NewCommandItem wraps cmd as a send/command/job queue entry.
func NewCommandItem(cmd Command, itemType string, callback func(error)) *QueueItem {
	item := newQueueItem()
	item.Command = &cmd
	item.Type = itemType
	item.Target = "send"
	item.Callback = callback
	return &item
}

// NewMarkerItem wraps a Marker as a queue entry.
func NewMarkerItem(m *Marker) *QueueItem {
	item := newQueueItem()
	item.Marker = m
	item.Target = "send"
	return &item
}

// NewResendItem replays lineNumber's exact text (already framed N.../*xor
// in Line History is the un-framed source text) ahead of any freshly
// queued "send"-targeted item, per the resend-priority invariant.
func NewResendItem(lineNumber int, text string, callback func(error)) *QueueItem {
	item := newQueueItem()
	cmd := NewTextCommand(text)
	item.Command = &cmd
	item.Target = "resend"
	item.LineNumber = lineNumber
	item.Callback = callback
	return &item
}

// Queue is a FIFO with type-based deduplication, used for the engine's
// command and send queues (there is no job queue). The send queue
// additionally honours resendActive: while true, items targeted "resend"
// are delivered ahead of items targeted "send", so resends are never
// starved by freshly enqueued work.
type Queue struct {
	name string

	mu           sync.Mutex
	cond         *sync.Cond
	items        []*QueueItem
	pendingTypes map[string]bool
	blocked      bool
	resendActive bool
}

// NewQueue returns an empty, unblocked Queue.
func NewQueue(name string) *Queue {
	q := &Queue{name: name, pendingTypes: make(map[string]bool)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put enqueues item. If item.Type is non-empty and an item of that type is
// already pending, ErrTypeAlreadyInQueue is returned and nothing is
// enqueued.
func (q *Queue) Put(item *QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item.Type != "" && q.pendingTypes[item.Type] {
		return ErrTypeAlreadyInQueue
	}
	if item.Type != "" {
		q.pendingTypes[item.Type] = true
	}
	q.items = append(q.items, item)
	q.cond.Broadcast()
	return nil
}

// SetResendActive toggles resend-priority delivery on the send queue.
func (q *Queue) SetResendActive(active bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resendActive = active
	q.cond.Broadcast()
}

// ResendActive reports the current resend-priority state.
func (q *Queue) ResendActive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.resendActive
}

// Get blocks until an item is available and the queue is not held
// `Block`ed, then returns it (removing it from the queue and releasing its
// dedup type, if any). Get honours resend priority: while resendActive,
// an item targeted "resend" is returned ahead of any "send"-targeted item
// even if the latter was enqueued earlier. ctx cancellation unblocks Get
// with ctx.Err().
func (q *Queue) Get(ctx context.Context) (*QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	done := make(chan struct{})
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				q.cond.Broadcast()
			case <-done:
			}
		}()
		defer close(done)
	}

	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		if !q.blocked {
			if idx := q.nextIndexLocked(); idx >= 0 {
				item := q.items[idx]
				q.items = append(q.items[:idx], q.items[idx+1:]...)
				if item.Type != "" {
					delete(q.pendingTypes, item.Type)
				}
				return item, nil
			}
		}
		q.cond.Wait()
	}
}

func (q *Queue) nextIndexLocked() int {
	if len(q.items) == 0 {
		return -1
	}
	if q.resendActive {
		for i, it := range q.items {
			if it.Target == "resend" {
				return i
			}
		}
	}
	return 0
}

// TryGet returns the next deliverable item without blocking, or ok=false
// when the queue is empty or held blocked. Used by the send loop to drain
// the command queue into the send queue between jobs.
func (q *Queue) TryGet() (*QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.blocked {
		return nil, false
	}
	idx := q.nextIndexLocked()
	if idx < 0 {
		return nil, false
	}
	item := q.items[idx]
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	if item.Type != "" {
		delete(q.pendingTypes, item.Type)
	}
	return item, true
}

// Len reports the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Block suspends delivery: Get calls will block even if items are
// present, until Unblock is called. Used to atomically drain/replace
// queue contents.
func (q *Queue) Block() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.blocked = true
}

// Unblock resumes delivery.
func (q *Queue) Unblock() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.blocked = false
	q.cond.Broadcast()
}

// BlockedDo runs fn while Get is held blocked, then resumes delivery. fn
// receives the queue so it can inspect/drain/replace contents under the
// same lock discipline as Drain/Reset.
func (q *Queue) BlockedDo(fn func(q *Queue)) {
	q.Block()
	defer q.Unblock()
	fn(q)
}

// Drain removes and returns every pending item, clearing dedup state. Must
// be called while the queue is Blocked to be atomic with respect to Get.
func (q *Queue) Drain() []*QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	q.pendingTypes = make(map[string]bool)
	q.resendActive = false
	return items
}
