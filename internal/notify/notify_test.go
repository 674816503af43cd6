package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/nmarkou/crewd/internal/store"
	"github.com/nmarkou/crewd/internal/team"
)

type fakeSender struct {
	sent []string
}

func (f *fakeSender) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.sent = append(f.sent, params.Text)
	return &telego.Message{}, nil
}

func TestChunkMessage(t *testing.T) {
	chunks := chunkMessage("hello", 4096)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(chunks))
	}

	msg := strings.Repeat("a", 8192)
	chunks = chunkMessage(msg, 4096)
	if len(chunks) != 2 {
		t.Errorf("expected 2 chunks, got %d", len(chunks))
	}

	// Prefer splitting at a newline past the halfway mark.
	msg = strings.Repeat("a", 3000) + "\n" + strings.Repeat("b", 1999)
	chunks = chunkMessage(msg, 4096)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks with newline split, got %d", len(chunks))
	}
	if len(chunks[0]) != 3001 {
		t.Errorf("expected first chunk length 3001, got %d", len(chunks[0]))
	}
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)
	ev := team.Event{
		Type:      "recovery.replacement",
		TeamID:    "t-1",
		Timestamp: ts,
		Payload: store.RecoveryEvent{
			FailedMemberID:      "m-1",
			FailedMemberRole:    "builder",
			ReplacementMemberID: "m-2",
			Reason:              "terminal closed",
		},
	}
	out := FormatEvent(ev)
	for _, want := range []string{"t-1", "builder", "m-1", "terminal closed", "2026-08-28"} {
		if !strings.Contains(out, want) {
			t.Errorf("alert missing %q:\n%s", want, out)
		}
	}

	ev.Type = "recovery.failed"
	out = FormatEvent(ev)
	if !strings.Contains(out, "Recovery failed") {
		t.Errorf("expected failure alert, got:\n%s", out)
	}
}

func TestSendChunksLongAlerts(t *testing.T) {
	f := &fakeSender{}
	n := &Notifier{sender: f, chatID: 42}

	long := strings.Repeat("failure detail line\n", 400)
	if err := n.send(context.Background(), long); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(f.sent) < 2 {
		t.Errorf("expected long alert split across messages, got %d", len(f.sent))
	}
	for _, s := range f.sent {
		if len(s) > maxMessageLen {
			t.Errorf("chunk exceeds telegram limit: %d", len(s))
		}
	}
}
