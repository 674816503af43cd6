package team

import (
	"fmt"

	"github.com/nmarkou/crewd/internal/store"
)

var validMemberStatuses = map[string]bool{
	store.MemberActive:     true,
	store.MemberIdle:       true,
	store.MemberFailed:     true,
	store.MemberRecovering: true,
	store.MemberPaused:     true,
}

func (m *Manager) teamMember(teamID, memberID string) (*store.Member, error) {
	mem, err := m.store.GetMember(memberID)
	if err != nil {
		return nil, err
	}
	if mem == nil || mem.TeamID != teamID {
		return nil, fmt.Errorf("member %s in team %s: %w", memberID, teamID, ErrMemberNotFound)
	}
	return mem, nil
}

// AddMember adds a worker to a live team. The role must not be held by a
// live member; a failed member does not block its role from being refilled.
func (m *Manager) AddMember(teamID string, spec MemberSpec) (*store.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.liveTeam(teamID)
	if err != nil {
		return nil, err
	}
	if spec.Role == "" {
		return nil, fmt.Errorf("member role is required")
	}
	if spec.Role == OrchestratorRole {
		return nil, fmt.Errorf("role %q: %w", spec.Role, ErrRoleTaken)
	}

	members, err := m.store.ListMembers(teamID)
	if err != nil {
		return nil, err
	}
	for _, existing := range members {
		if existing.Role == spec.Role && existing.Status != store.MemberFailed {
			return nil, fmt.Errorf("role %q: %w", spec.Role, ErrRoleTaken)
		}
	}

	mem := &store.Member{
		ID:        newID(),
		TeamID:    teamID,
		Role:      spec.Role,
		Specialty: spec.Specialty,
		AgentType: orDefault(spec.AgentType, DefaultAgentType),
		Status:    store.MemberIdle,
		CreatedAt: m.now(),
	}
	if err := m.store.SaveMember(mem); err != nil {
		return nil, err
	}
	m.touch(t)
	m.publishTeam("member.added", teamID, mem)
	return mem, nil
}

func (m *Manager) RemoveMember(teamID, memberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.liveTeam(teamID)
	if err != nil {
		return err
	}
	mem, err := m.teamMember(teamID, memberID)
	if err != nil {
		return err
	}
	if mem.Orchestrator {
		return fmt.Errorf("member %s: %w", memberID, ErrOrchestratorRemove)
	}

	if err := m.store.DeleteMember(memberID); err != nil {
		return err
	}
	m.touch(t)
	m.publishTeam("member.removed", teamID, map[string]string{"memberId": memberID})
	return nil
}

func (m *Manager) Members(teamID string) ([]store.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.store.GetTeam(teamID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("team %s: %w", teamID, ErrTeamNotFound)
	}
	return m.store.ListMembers(teamID)
}

func (m *Manager) UpdateMemberStatus(teamID, memberID, status string) (*store.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.liveTeam(teamID)
	if err != nil {
		return nil, err
	}
	if !validMemberStatuses[status] {
		return nil, fmt.Errorf("unknown member status %q", status)
	}
	mem, err := m.teamMember(teamID, memberID)
	if err != nil {
		return nil, err
	}

	mem.Status = status
	if err := m.store.SaveMember(mem); err != nil {
		return nil, err
	}
	m.touch(t)
	m.publishTeam("member.status", teamID, mem)
	return mem, nil
}

// TaskUpdate is advisory telemetry from a working agent. It never changes
// the member's lifecycle status.
type TaskUpdate struct {
	TaskID    string   `json:"taskId,omitempty"`
	SpecID    string   `json:"specId,omitempty"`
	Phase     string   `json:"phase,omitempty"`
	Progress  *int     `json:"progress,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// UpdateMemberTask records what a member is working on. A phase transition
// files the previous phase under completed steps, artifacts accumulate, and
// new spec ids are tracked on the team.
func (m *Manager) UpdateMemberTask(teamID, memberID string, upd TaskUpdate) (*store.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.liveTeam(teamID)
	if err != nil {
		return nil, err
	}
	mem, err := m.teamMember(teamID, memberID)
	if err != nil {
		return nil, err
	}

	if upd.TaskID != "" && upd.TaskID != mem.CurrentTaskID {
		// New task, previous progress no longer applies.
		mem.CurrentTaskID = upd.TaskID
		mem.TaskPhase = ""
		mem.TaskProgress = 0
		mem.CompletedSteps = nil
	}
	if upd.SpecID != "" {
		mem.CurrentSpecID = upd.SpecID
		if !contains(t.ActiveSpecs, upd.SpecID) {
			t.ActiveSpecs = append(t.ActiveSpecs, upd.SpecID)
			if err := m.store.SaveTeam(t); err != nil {
				return nil, err
			}
		}
	}
	if upd.Phase != "" && upd.Phase != mem.TaskPhase {
		if mem.TaskPhase != "" && !contains(mem.CompletedSteps, mem.TaskPhase) {
			mem.CompletedSteps = append(mem.CompletedSteps, mem.TaskPhase)
		}
		mem.TaskPhase = upd.Phase
	}
	if upd.Progress != nil {
		// Progress is a percentage; out-of-range reports are clamped.
		p := *upd.Progress
		if p < 0 {
			p = 0
		} else if p > 100 {
			p = 100
		}
		mem.TaskProgress = p
	}
	for _, a := range upd.Artifacts {
		if !contains(mem.Artifacts, a) {
			mem.Artifacts = append(mem.Artifacts, a)
		}
	}

	if err := m.store.SaveMember(mem); err != nil {
		return nil, err
	}
	m.touch(t)
	m.publishTeam("member.task", teamID, mem)
	return mem, nil
}

// Heartbeat records liveness; it carries no other state.
func (m *Manager) Heartbeat(teamID, memberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.liveTeam(teamID); err != nil {
		return err
	}
	if _, err := m.teamMember(teamID, memberID); err != nil {
		return err
	}
	return m.store.UpdateMemberHeartbeat(memberID, m.now())
}

// BindTerminal attaches a member to its terminal and claude session.
func (m *Manager) BindTerminal(teamID, memberID, terminalID, claudeSessionID string) (*store.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.liveTeam(teamID)
	if err != nil {
		return nil, err
	}
	mem, err := m.teamMember(teamID, memberID)
	if err != nil {
		return nil, err
	}

	mem.TerminalID = terminalID
	mem.ClaudeSessionID = claudeSessionID
	if err := m.store.SaveMember(mem); err != nil {
		return nil, err
	}
	m.touch(t)
	return mem, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
