package coord

import (
	"fmt"
	"testing"
)

func TestRegistryRoleUniqueness(t *testing.T) {
	r := NewRegistry()

	r.Register("builder", "conn-1", "agent-1", "")
	got := r.Check("builder")
	if got == nil || got.ConnID != "conn-1" {
		t.Fatalf("expected builder held by conn-1, got %+v", got)
	}

	// Re-registering overwrites, it never duplicates.
	r.Register("builder", "conn-2", "agent-2", "task-1")
	got = r.Check("builder")
	if got == nil || got.ConnID != "conn-2" || got.AgentID != "agent-2" {
		t.Fatalf("expected builder reassigned to conn-2, got %+v", got)
	}

	if !r.Unregister("builder") {
		t.Error("expected unregister to report the role was held")
	}
	if r.Check("builder") != nil {
		t.Error("expected builder free after unregister")
	}
	if r.Unregister("builder") {
		t.Error("expected unregister of a free role to report false")
	}
}

func TestRegistryUnregisterConnection(t *testing.T) {
	r := NewRegistry()

	r.Register("builder", "conn-1", "a1", "")
	r.Register("reviewer", "conn-1", "a2", "")
	r.Register("orchestrator", "conn-2", "a3", "")

	freed := r.UnregisterConnection("conn-1")
	if len(freed) != 2 {
		t.Fatalf("expected 2 roles freed, got %v", freed)
	}
	if r.Check("builder") != nil || r.Check("reviewer") != nil {
		t.Error("expected conn-1 roles freed")
	}
	if r.Check("orchestrator") == nil {
		t.Error("expected conn-2 role untouched")
	}
}

func TestDerivePriority(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"URGENT: prod is down", PriorityUrgent},
		{"this is critical", PriorityUrgent},
		{"Build is blocked on the API", PriorityHigh},
		{"found a blocker in the migration", PriorityHigh},
		{"fyi, renamed the branch", PriorityLow},
		{"info: tests moved", PriorityLow},
		{"please review the PR", PriorityNormal},
	}
	for _, tt := range tests {
		if got := DerivePriority(tt.content); got != tt.want {
			t.Errorf("DerivePriority(%q) = %s, want %s", tt.content, got, tt.want)
		}
	}
}

func TestQueueEvictsOldestPendingAtCapacity(t *testing.T) {
	q := NewQueue(100)

	var first *Message
	for i := 0; i < 100; i++ {
		m := q.Enqueue("agent-1", "builder", fmt.Sprintf("message %d", i))
		if i == 0 {
			first = m
		}
	}
	if q.Len() != 100 {
		t.Fatalf("expected 100 queued, got %d", q.Len())
	}

	q.Enqueue("agent-1", "builder", "message 100")
	if q.Len() != 100 {
		t.Fatalf("expected eviction to hold queue at 100, got %d", q.Len())
	}
	for _, m := range q.Snapshot() {
		if m.ID == first.ID {
			t.Fatal("expected oldest pending message evicted")
		}
	}
}

func TestQueueNeverEvictsProcessing(t *testing.T) {
	q := NewQueue(3)

	oldest := q.Enqueue("a", "builder", "one")
	q.Enqueue("a", "builder", "two")
	q.Enqueue("a", "builder", "three")
	if err := q.MarkProcessing(oldest.ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}

	q.Enqueue("a", "builder", "four")

	found := false
	for _, m := range q.Snapshot() {
		if m.ID == oldest.ID {
			found = true
		}
		if m.Content == "two" {
			t.Error("expected oldest pending (two) evicted")
		}
	}
	if !found {
		t.Error("processing message must survive eviction")
	}
}

func TestQueuePendingPriorityOrder(t *testing.T) {
	q := NewQueue(10)

	q.Enqueue("a", "builder", "fyi the docs moved")
	q.Enqueue("a", "builder", "please review")
	q.Enqueue("a", "builder", "blocked on CI")
	q.Enqueue("a", "builder", "urgent: data loss")

	pending := q.Pending("")
	if len(pending) != 4 {
		t.Fatalf("expected 4 pending, got %d", len(pending))
	}
	want := []string{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}
	for i, p := range want {
		if pending[i].Priority != p {
			t.Errorf("position %d: expected %s, got %s", i, p, pending[i].Priority)
		}
	}
}

func TestQueueStatusTransitionsOneWay(t *testing.T) {
	q := NewQueue(10)
	m := q.Enqueue("a", "builder", "work item")

	if err := q.MarkProcessed(m.ID); err != ErrBadTransition {
		t.Errorf("pending -> processed should fail, got %v", err)
	}
	if err := q.MarkProcessing(m.ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := q.MarkProcessing(m.ID); err != ErrBadTransition {
		t.Errorf("processing -> processing should fail, got %v", err)
	}
	if err := q.MarkProcessed(m.ID); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if err := q.MarkProcessing(m.ID); err != ErrBadTransition {
		t.Errorf("processed is terminal, got %v", err)
	}
	if err := q.MarkProcessing("nope"); err != ErrMessageNotFound {
		t.Errorf("expected not found, got %v", err)
	}

	if got := q.Pending(""); len(got) != 0 {
		t.Errorf("expected no pending after processing, got %d", len(got))
	}
}

func TestHealthDuplicatePenalty(t *testing.T) {
	h := NewHealth()

	if s := h.Score("a1"); s != 100 {
		t.Fatalf("expected fresh agent at 100, got %d", s)
	}
	if s := h.Record("a1", "starting build"); s != 100 {
		t.Errorf("unique message should not cost points, got %d", s)
	}
	if s := h.Record("a1", "starting build"); s != 90 {
		t.Errorf("duplicate should cost 10, got %d", s)
	}

	// Only the last five messages count as the duplicate window.
	for i := 0; i < 5; i++ {
		h.Record("a1", fmt.Sprintf("progress %d", i))
	}
	if s := h.Record("a1", "starting build"); s != 90 {
		t.Errorf("message outside window is not a duplicate, got %d", s)
	}

	// Score floors at zero.
	for i := 0; i < 20; i++ {
		h.Record("a2", "same thing")
	}
	if s := h.Score("a2"); s != 0 {
		t.Errorf("expected floor at 0, got %d", s)
	}

	if s := h.Score("a1"); s != 90 {
		t.Errorf("scores are per agent, got %d", s)
	}
}
