package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/nmarkou/crewd/internal/config"
	"github.com/nmarkou/crewd/internal/vault"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(config.StoreConfig{Path: filepath.Join(dir, "test.db")}, nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testTeam(id string) *Team {
	now := time.Now().UTC().Truncate(time.Second)
	return &Team{
		ID:                  id,
		Name:                "alpha",
		ProjectPath:         "/work/demo",
		CreatedAt:           now,
		CreatedBy:           "user",
		Status:              TeamActive,
		LastActive:          now,
		AutoRecovery:        true,
		MaxRecoveryAttempts: 3,
		RecoveryDelayMs:     5000,
		Tags:                []string{"demo"},
	}
}

func TestTeamCRUD(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveTeam(testTeam("t1")); err != nil {
		t.Fatalf("save team: %v", err)
	}

	got, err := s.GetTeam("t1")
	if err != nil {
		t.Fatalf("get team: %v", err)
	}
	if got == nil {
		t.Fatal("expected team, got nil")
	}
	if got.Name != "alpha" || !got.AutoRecovery || got.MaxRecoveryAttempts != 3 {
		t.Errorf("unexpected team: %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "demo" {
		t.Errorf("expected tags [demo], got %v", got.Tags)
	}

	// Update
	got.Status = TeamArchived
	got.ActiveSpecs = []string{"spec-1"}
	if err := s.SaveTeam(got); err != nil {
		t.Fatalf("update team: %v", err)
	}
	got, _ = s.GetTeam("t1")
	if got.Status != TeamArchived {
		t.Errorf("expected archived, got %s", got.Status)
	}
	if len(got.ActiveSpecs) != 1 {
		t.Errorf("expected 1 active spec, got %v", got.ActiveSpecs)
	}

	// Not found
	missing, err := s.GetTeam("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for nonexistent team")
	}
}

func TestListTeamsFilters(t *testing.T) {
	s := newTestStore(t)

	a := testTeam("t1")
	b := testTeam("t2")
	b.Name = "beta"
	b.Status = TeamArchived
	c := testTeam("t3")
	c.Name = "gamma"
	c.ProjectPath = "/work/other"
	for _, tm := range []*Team{a, b, c} {
		if err := s.SaveTeam(tm); err != nil {
			t.Fatalf("save team: %v", err)
		}
	}
	_ = s.SaveMember(&Member{ID: "m1", TeamID: "t1", Role: "orchestrator", AgentType: "claude", Orchestrator: true, Status: MemberActive})

	all, err := s.ListTeams("/work/demo", "")
	if err != nil {
		t.Fatalf("list teams: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 teams, got %d", len(all))
	}

	active, err := s.ListTeams("/work/demo", TeamActive)
	if err != nil {
		t.Fatalf("list active teams: %v", err)
	}
	if len(active) != 1 || active[0].ID != "t1" {
		t.Fatalf("expected only t1, got %+v", active)
	}
	if active[0].MemberCount != 1 {
		t.Errorf("expected member count 1, got %d", active[0].MemberCount)
	}
}

func TestMemberFailureCountMonotonic(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveTeam(testTeam("t1")); err != nil {
		t.Fatalf("save team: %v", err)
	}
	m := &Member{ID: "m1", TeamID: "t1", Role: "builder", AgentType: "claude", Status: MemberActive, CreatedAt: time.Now().UTC()}
	if err := s.SaveMember(m); err != nil {
		t.Fatalf("save member: %v", err)
	}

	got, err := s.RecordMemberFailure("m1", "terminal closed", time.Now().UTC())
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if got.FailureCount != 1 || got.Status != MemberFailed {
		t.Errorf("expected failed/1, got %s/%d", got.Status, got.FailureCount)
	}

	// A plain save must not roll the count back.
	m.FailureCount = 0
	if err := s.SaveMember(m); err != nil {
		t.Fatalf("resave member: %v", err)
	}
	got, _ = s.GetMember("m1")
	if got.FailureCount != 1 {
		t.Errorf("expected failure count 1 after resave, got %d", got.FailureCount)
	}

	got, err = s.RecordMemberFailure("m1", "crashed again", time.Now().UTC())
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if got.FailureCount != 2 {
		t.Errorf("expected failure count 2, got %d", got.FailureCount)
	}
	if got.LastFailure != "crashed again" {
		t.Errorf("expected last failure updated, got %q", got.LastFailure)
	}
}

func TestListMembersOrchestratorFirst(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveTeam(testTeam("t1")); err != nil {
		t.Fatalf("save team: %v", err)
	}
	base := time.Now().UTC().Add(-time.Minute)
	_ = s.SaveMember(&Member{ID: "w1", TeamID: "t1", Role: "builder", AgentType: "claude", Status: MemberIdle, CreatedAt: base})
	_ = s.SaveMember(&Member{ID: "o1", TeamID: "t1", Role: "orchestrator", AgentType: "claude", Orchestrator: true, Status: MemberActive, CreatedAt: base.Add(time.Second)})

	members, err := s.ListMembers("t1")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[0].ID != "o1" {
		t.Errorf("expected orchestrator first, got %s", members[0].ID)
	}
}

func TestRecoveryHistoryNewestFirstAndCapped(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveTeam(testTeam("t1")); err != nil {
		t.Fatalf("save team: %v", err)
	}

	base := time.Now().UTC().Add(-3 * time.Hour)
	for i := 0; i < 105; i++ {
		ev := &RecoveryEvent{
			ID:               fmt.Sprintf("ev-%03d", i),
			TeamID:           "t1",
			Timestamp:        base.Add(time.Duration(i) * time.Minute),
			FailedMemberID:   "m1",
			FailedMemberRole: "builder",
			Reason:           "terminal closed",
			Success:          true,
		}
		if err := s.AppendRecoveryEvent(ev); err != nil {
			t.Fatalf("append event %d: %v", i, err)
		}
	}

	events, err := s.ListRecoveryEvents("t1", 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 100 {
		t.Fatalf("expected history capped at 100, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.After(events[i-1].Timestamp) {
			t.Fatalf("history not newest-first at index %d", i)
		}
	}

	limited, err := s.ListRecoveryEvents("t1", 5)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 5 {
		t.Errorf("expected 5 events, got %d", len(limited))
	}
}

func TestRecoveryEventContextRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveTeam(testTeam("t1")); err != nil {
		t.Fatalf("save team: %v", err)
	}
	ev := &RecoveryEvent{
		ID:               "ev-1",
		TeamID:           "t1",
		Timestamp:        time.Now().UTC(),
		FailedMemberID:   "m1",
		FailedMemberRole: "builder",
		Reason:           "heartbeat timeout",
		Success:          true,
		Context: &RecoveryContextSummary{
			TaskID:         "task-9",
			Phase:          "implementation",
			Progress:       40,
			CompletedSteps: []string{"planning", "scaffolding"},
			Artifacts:      []string{"api/handler.go"},
		},
	}
	if err := s.AppendRecoveryEvent(ev); err != nil {
		t.Fatalf("append event: %v", err)
	}

	events, err := s.ListRecoveryEvents("t1", 1)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Context == nil {
		t.Fatalf("expected event with context, got %+v", events)
	}
	if events[0].Context.Progress != 40 || len(events[0].Context.CompletedSteps) != 2 {
		t.Errorf("context did not round trip: %+v", events[0].Context)
	}
}

func TestSnapshotSealedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	v := vault.New("sealing-passphrase")
	s, err := New(config.StoreConfig{Path: filepath.Join(dir, "test.db")}, v)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.SaveTeam(testTeam("t1")); err != nil {
		t.Fatalf("save team: %v", err)
	}
	snap := &SessionSnapshot{
		TeamID:  "t1",
		SavedAt: time.Now().UTC(),
		Terminals: []TerminalSession{
			{MemberID: "m1", Role: "orchestrator", TerminalID: "term-1", ClaudeSessionID: "sess-abc"},
		},
	}
	if err := s.SaveSnapshot(snap); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	// Sealed at rest
	var raw []byte
	if err := s.DB().QueryRow(`SELECT data FROM session_snapshots WHERE team_id = 't1'`).Scan(&raw); err != nil {
		t.Fatalf("read raw snapshot: %v", err)
	}
	if string(raw[:1]) == "[" {
		t.Error("snapshot stored in plaintext")
	}

	got, err := s.GetSnapshot("t1")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if got == nil || len(got.Terminals) != 1 || got.Terminals[0].ClaudeSessionID != "sess-abc" {
		t.Fatalf("snapshot did not round trip: %+v", got)
	}

	if err := s.DeleteSnapshot("t1"); err != nil {
		t.Fatalf("delete snapshot: %v", err)
	}
	got, err = s.GetSnapshot("t1")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Error("expected nil snapshot after delete")
	}
}
