package team

import (
	"fmt"
	"strings"

	"github.com/nmarkou/crewd/internal/store"
)

// MemberSpec describes a worker to create alongside a new team.
type MemberSpec struct {
	Role      string `json:"role"`
	AgentType string `json:"agentType,omitempty"`
	Specialty string `json:"specialty,omitempty"`
}

type CreateTeamInput struct {
	Name                  string       `json:"name"`
	ProjectPath           string       `json:"projectPath"`
	CreatedBy             string       `json:"createdBy,omitempty"`
	AutoRecovery          *bool        `json:"autoRecovery,omitempty"`
	MaxRecoveryAttempts   *int         `json:"maxRecoveryAttempts,omitempty"`
	RecoveryDelayMs       *int64       `json:"recoveryDelayMs,omitempty"`
	Tags                  []string     `json:"tags,omitempty"`
	OrchestratorAgentType string       `json:"orchestratorAgentType,omitempty"`
	Members               []MemberSpec `json:"members,omitempty"`
}

// CreateTeam creates a team together with its orchestrator member; callers
// never supply the orchestrator themselves. Workers start idle, the
// orchestrator starts active.
func (m *Manager) CreateTeam(in CreateTeamInput) (*View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("team name is required")
	}
	if strings.TrimSpace(in.ProjectPath) == "" {
		return nil, fmt.Errorf("project path is required")
	}

	existing, err := m.store.ListTeams(in.ProjectPath, "")
	if err != nil {
		return nil, err
	}
	for _, t := range existing {
		if t.Name == in.Name {
			return nil, fmt.Errorf("team %q in %s: %w", in.Name, in.ProjectPath, ErrTeamExists)
		}
	}

	now := m.now()
	t := &store.Team{
		ID:                  newID(),
		Name:                in.Name,
		ProjectPath:         in.ProjectPath,
		CreatedAt:           now,
		CreatedBy:           orDefault(in.CreatedBy, "user"),
		Status:              store.TeamActive,
		LastActive:          now,
		AutoRecovery:        true,
		MaxRecoveryAttempts: DefaultMaxRecoveryAttempts,
		RecoveryDelayMs:     DefaultRecoveryDelayMs,
		Tags:                in.Tags,
	}
	if in.AutoRecovery != nil {
		t.AutoRecovery = *in.AutoRecovery
	}
	if in.MaxRecoveryAttempts != nil {
		t.MaxRecoveryAttempts = *in.MaxRecoveryAttempts
	}
	if in.RecoveryDelayMs != nil {
		t.RecoveryDelayMs = *in.RecoveryDelayMs
	}
	if err := m.store.SaveTeam(t); err != nil {
		return nil, err
	}

	orch := &store.Member{
		ID:           newID(),
		TeamID:       t.ID,
		Role:         OrchestratorRole,
		AgentType:    orDefault(in.OrchestratorAgentType, DefaultAgentType),
		Orchestrator: true,
		Status:       store.MemberActive,
		CreatedAt:    now,
	}
	if err := m.store.SaveMember(orch); err != nil {
		return nil, err
	}

	for _, spec := range in.Members {
		if spec.Role == OrchestratorRole {
			continue
		}
		w := &store.Member{
			ID:        newID(),
			TeamID:    t.ID,
			Role:      spec.Role,
			Specialty: spec.Specialty,
			AgentType: orDefault(spec.AgentType, DefaultAgentType),
			Status:    store.MemberIdle,
			CreatedAt: now,
		}
		if err := m.store.SaveMember(w); err != nil {
			return nil, err
		}
	}

	v, err := m.view(t)
	if err != nil {
		return nil, err
	}
	m.publishTeam("team.created", t.ID, v)
	return v, nil
}

func (m *Manager) GetTeam(id string) (*View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.store.GetTeam(id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("team %s: %w", id, ErrTeamNotFound)
	}
	return m.view(t)
}

func (m *Manager) ListTeams(projectPath, status string) ([]store.TeamSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.ListTeams(projectPath, status)
}

type UpdateTeamInput struct {
	Name                *string   `json:"name,omitempty"`
	AutoRecovery        *bool     `json:"autoRecovery,omitempty"`
	MaxRecoveryAttempts *int      `json:"maxRecoveryAttempts,omitempty"`
	RecoveryDelayMs     *int64    `json:"recoveryDelayMs,omitempty"`
	Tags                *[]string `json:"tags,omitempty"`
}

// UpdateTeam merges the provided fields into the team config. Absent fields
// are left untouched.
func (m *Manager) UpdateTeam(id string, in UpdateTeamInput) (*View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.liveTeam(id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		t.Name = *in.Name
	}
	if in.AutoRecovery != nil {
		t.AutoRecovery = *in.AutoRecovery
	}
	if in.MaxRecoveryAttempts != nil {
		t.MaxRecoveryAttempts = *in.MaxRecoveryAttempts
	}
	if in.RecoveryDelayMs != nil {
		t.RecoveryDelayMs = *in.RecoveryDelayMs
	}
	if in.Tags != nil {
		t.Tags = *in.Tags
	}
	t.LastActive = m.now()

	if err := m.store.SaveTeam(t); err != nil {
		return nil, err
	}
	v, err := m.view(t)
	if err != nil {
		return nil, err
	}
	m.publishTeam("team.updated", t.ID, v)
	return v, nil
}

// ArchiveTeam retires a team permanently. Archived teams reject every
// subsequent mutation.
func (m *Manager) ArchiveTeam(id string) (*View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.liveTeam(id)
	if err != nil {
		return nil, err
	}

	t.Status = store.TeamArchived
	t.LastActive = m.now()
	if err := m.store.SaveTeam(t); err != nil {
		return nil, err
	}
	if err := m.store.DeleteSnapshot(t.ID); err != nil {
		return nil, err
	}

	v, err := m.view(t)
	if err != nil {
		return nil, err
	}
	m.publishTeam("team.archived", t.ID, nil)
	return v, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
