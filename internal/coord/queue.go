package coord

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultQueueCapacity = 100

// Message priorities, highest first.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// Message statuses. Transitions are one-way:
// pending -> processing -> processed.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrBadTransition   = errors.New("invalid message status transition")
)

type Message struct {
	ID        string    `json:"id"`
	FromAgent string    `json:"fromAgent"`
	FromRole  string    `json:"fromRole,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
}

// DerivePriority classifies a message by content keywords.
func DerivePriority(content string) string {
	c := strings.ToLower(content)
	switch {
	case strings.Contains(c, "urgent"), strings.Contains(c, "critical"):
		return PriorityUrgent
	case strings.Contains(c, "blocker"), strings.Contains(c, "blocked"):
		return PriorityHigh
	case strings.Contains(c, "fyi"), strings.Contains(c, "info"):
		return PriorityLow
	default:
		return PriorityNormal
	}
}

var priorityRank = map[string]int{
	PriorityUrgent: 0,
	PriorityHigh:   1,
	PriorityNormal: 2,
	PriorityLow:    3,
}

// Queue is a bounded FIFO of agent messages. Overflow evicts the oldest
// pending message; messages already being processed are never evicted.
type Queue struct {
	mu       sync.Mutex
	capacity int
	msgs     []*Message
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{capacity: capacity}
}

// Enqueue appends a message, deriving its priority from the content. When
// the queue is over capacity the oldest pending message is dropped.
func (q *Queue) Enqueue(fromAgent, fromRole, content string) *Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	m := &Message{
		ID:        uuid.NewString(),
		FromAgent: fromAgent,
		FromRole:  fromRole,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Priority:  DerivePriority(content),
		Status:    StatusPending,
	}
	q.msgs = append(q.msgs, m)

	for len(q.msgs) > q.capacity {
		evicted := false
		for i, old := range q.msgs {
			if old.Status == StatusPending && old.ID != m.ID {
				q.msgs = append(q.msgs[:i], q.msgs[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			break
		}
	}

	out := *m
	return &out
}

// Pending returns pending messages ordered by priority, then arrival. A
// non-empty role filters by sender role.
func (q *Queue) Pending(role string) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Message
	for _, m := range q.msgs {
		if m.Status != StatusPending {
			continue
		}
		if role != "" && m.FromRole != role {
			continue
		}
		out = append(out, *m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return priorityRank[out[i].Priority] < priorityRank[out[j].Priority]
	})
	return out
}

func (q *Queue) MarkProcessing(id string) error {
	return q.transition(id, StatusPending, StatusProcessing)
}

func (q *Queue) MarkProcessed(id string) error {
	return q.transition(id, StatusProcessing, StatusProcessed)
}

func (q *Queue) transition(id, from, to string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, m := range q.msgs {
		if m.ID != id {
			continue
		}
		if m.Status != from {
			return ErrBadTransition
		}
		m.Status = to
		return nil
	}
	return ErrMessageNotFound
}

// Len reports the current queue depth, all statuses included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// Snapshot returns a copy of the whole queue in arrival order.
func (q *Queue) Snapshot() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Message, 0, len(q.msgs))
	for _, m := range q.msgs {
		out = append(out, *m)
	}
	return out
}
