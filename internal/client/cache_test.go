package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nmarkou/crewd/internal/store"
	"github.com/nmarkou/crewd/internal/team"
)

func event(t *testing.T, typ, teamID string, payload any) Event {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Event{Type: typ, TeamID: teamID, Timestamp: time.Now().UTC(), Payload: data}
}

func seedTeam(t *testing.T, c *Cache) {
	t.Helper()
	c.Apply(event(t, "team.created", "t-1", team.View{
		Team: &store.Team{ID: "t-1", Name: "alpha", Status: store.TeamActive},
		Members: []store.Member{
			{ID: "o-1", Role: "orchestrator", Status: store.MemberActive},
			{ID: "m-1", Role: "builder", Status: store.MemberIdle},
		},
	}))
}

func TestCacheReducesMemberEvents(t *testing.T) {
	c := NewCache()
	seedTeam(t, c)

	v := c.Team("t-1")
	if v == nil || len(v.Members) != 2 {
		t.Fatalf("expected seeded team, got %+v", v)
	}

	c.Apply(event(t, "member.status", "t-1", store.Member{ID: "m-1", Role: "builder", Status: store.MemberActive}))
	if got := c.Team("t-1").Members[1].Status; got != store.MemberActive {
		t.Errorf("status event not applied, got %s", got)
	}

	c.Apply(event(t, "member.added", "t-1", store.Member{ID: "m-2", Role: "reviewer", Status: store.MemberIdle}))
	if got := len(c.Team("t-1").Members); got != 3 {
		t.Errorf("expected 3 members, got %d", got)
	}

	c.Apply(event(t, "member.removed", "t-1", map[string]string{"memberId": "m-2"}))
	if got := len(c.Team("t-1").Members); got != 2 {
		t.Errorf("expected member removed, got %d", got)
	}

	// Replacement drops the failed member; the replacement itself arrives
	// as its own member event.
	c.Apply(event(t, "recovery.replacement", "t-1", store.RecoveryEvent{FailedMemberID: "m-1", ReplacementMemberID: "m-3"}))
	c.Apply(event(t, "member.status", "t-1", store.Member{ID: "m-3", Role: "builder", Status: store.MemberRecovering}))
	v = c.Team("t-1")
	if len(v.Members) != 2 {
		t.Fatalf("expected 2 members after replacement, got %d", len(v.Members))
	}
	for _, mem := range v.Members {
		if mem.ID == "m-1" {
			t.Error("failed member should be gone from the projection")
		}
	}
}

func TestCacheArchiveAndCopySemantics(t *testing.T) {
	c := NewCache()
	seedTeam(t, c)

	// Mutating a returned copy must not leak into the cache.
	v := c.Team("t-1")
	v.Team.Status = store.TeamPaused
	v.Members[0].Status = store.MemberFailed
	if got := c.Team("t-1"); got.Team.Status != store.TeamActive || got.Members[0].Status != store.MemberActive {
		t.Error("cache returned shared state instead of a copy")
	}

	c.Apply(event(t, "team.archived", "t-1", nil))
	if got := c.Team("t-1").Team.Status; got != store.TeamArchived {
		t.Errorf("expected archived, got %s", got)
	}

	// Events for unknown teams are ignored.
	c.Apply(event(t, "member.added", "t-9", store.Member{ID: "x"}))
	if c.Team("t-9") != nil {
		t.Error("unknown team should not materialize from member events")
	}

	if got := len(c.TeamIDs()); got != 1 {
		t.Errorf("expected 1 known team, got %d", got)
	}
}
