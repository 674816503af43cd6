package team

import (
	"github.com/nmarkou/crewd/internal/store"
)

// PauseResult reports what pausing did. AlreadyPaused means the call was a
// no-op and the stored snapshot was left alone.
type PauseResult struct {
	Team          *View `json:"team"`
	AlreadyPaused bool  `json:"alreadyPaused"`
}

// PauseTeam suspends a team: every member goes to paused and the terminal
// bindings are captured as the pending snapshot. Pausing a paused team
// returns the current state without touching the snapshot, so the call is
// safe to repeat.
func (m *Manager) PauseTeam(teamID string, terminals []store.TerminalSession) (*PauseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.liveTeam(teamID)
	if err != nil {
		return nil, err
	}

	if t.Status == store.TeamPaused {
		v, err := m.view(t)
		if err != nil {
			return nil, err
		}
		return &PauseResult{Team: v, AlreadyPaused: true}, nil
	}

	members, err := m.store.ListMembers(teamID)
	if err != nil {
		return nil, err
	}

	// No snapshot supplied: capture the bindings we know about.
	if terminals == nil {
		for _, mem := range members {
			if mem.TerminalID == "" && mem.ClaudeSessionID == "" {
				continue
			}
			terminals = append(terminals, store.TerminalSession{
				MemberID:        mem.ID,
				Role:            mem.Role,
				TerminalID:      mem.TerminalID,
				ClaudeSessionID: mem.ClaudeSessionID,
			})
		}
	}

	for i := range members {
		members[i].Status = store.MemberPaused
		if err := m.store.SaveMember(&members[i]); err != nil {
			return nil, err
		}
	}

	t.Status = store.TeamPaused
	t.LastActive = m.now()
	if err := m.store.SaveTeam(t); err != nil {
		return nil, err
	}

	snap := &store.SessionSnapshot{
		TeamID:    teamID,
		SavedAt:   m.now(),
		Terminals: terminals,
	}
	if err := m.store.SaveSnapshot(snap); err != nil {
		return nil, err
	}

	v, err := m.view(t)
	if err != nil {
		return nil, err
	}
	m.publishTeam("session.paused", teamID, snap)
	return &PauseResult{Team: v}, nil
}

// ResumeResult carries the snapshot the caller needs to re-attach
// terminals. A nil snapshot means there was nothing to resume.
type ResumeResult struct {
	Team     *View                  `json:"team"`
	Snapshot *store.SessionSnapshot `json:"snapshot,omitempty"`
}

// ResumeTeam reactivates a paused team and hands back the saved snapshot.
// The snapshot is consumed: a second resume finds nothing pending and
// returns the current state unchanged. Terminal bindings are cleared so the
// caller can re-bind members to fresh terminals.
func (m *Manager) ResumeTeam(teamID string) (*ResumeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.liveTeam(teamID)
	if err != nil {
		return nil, err
	}

	snap, err := m.store.GetSnapshot(teamID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		v, err := m.view(t)
		if err != nil {
			return nil, err
		}
		return &ResumeResult{Team: v}, nil
	}

	members, err := m.store.ListMembers(teamID)
	if err != nil {
		return nil, err
	}
	for i := range members {
		mem := &members[i]
		mem.Status = store.MemberActive
		mem.TerminalID = ""
		mem.ClaudeSessionID = ""
		if err := m.store.SaveMember(mem); err != nil {
			return nil, err
		}
	}

	t.Status = store.TeamActive
	t.LastActive = m.now()
	if err := m.store.SaveTeam(t); err != nil {
		return nil, err
	}
	if err := m.store.DeleteSnapshot(teamID); err != nil {
		return nil, err
	}

	v, err := m.view(t)
	if err != nil {
		return nil, err
	}
	m.publishTeam("session.resumed", teamID, snap)
	return &ResumeResult{Team: v, Snapshot: snap}, nil
}
