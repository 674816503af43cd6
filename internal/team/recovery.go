package team

import (
	"fmt"
	"strings"

	"github.com/nmarkou/crewd/internal/store"
)

// FailureReport is the outcome of reporting a member failure. Exhausted
// recovery attempts are a reported condition, not an error: the caller
// decides what to do with a degraded member.
type FailureReport struct {
	Member            *store.Member `json:"member"`
	AutoRecover       bool          `json:"autoRecover"`
	RecoveryDelayMs   int64         `json:"recoveryDelayMs"`
	AttemptsExhausted bool          `json:"attemptsExhausted"`
}

// ReportFailure marks a member failed and bumps its failure count. The
// report says whether automatic recovery should proceed and after what
// delay.
func (m *Manager) ReportFailure(teamID, memberID, reason string) (*FailureReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.liveTeam(teamID)
	if err != nil {
		return nil, err
	}
	if _, err := m.teamMember(teamID, memberID); err != nil {
		return nil, err
	}

	mem, err := m.store.RecordMemberFailure(memberID, reason, m.now())
	if err != nil {
		return nil, err
	}
	m.touch(t)

	exhausted := mem.FailureCount > t.MaxRecoveryAttempts
	report := &FailureReport{
		Member:            mem,
		AutoRecover:       t.AutoRecovery && !exhausted,
		RecoveryDelayMs:   t.RecoveryDelayMs,
		AttemptsExhausted: exhausted,
	}
	m.publishTeam("member.failed", teamID, report)
	return report, nil
}

// Context is everything a replacement needs to pick up a failed member's
// work.
type Context struct {
	MemberID           string   `json:"memberId"`
	Role               string   `json:"role"`
	TaskID             string   `json:"taskId,omitempty"`
	SpecID             string   `json:"specId,omitempty"`
	Phase              string   `json:"phase,omitempty"`
	Progress           int      `json:"progress"`
	CompletedSteps     []string `json:"completedSteps,omitempty"`
	Artifacts          []string `json:"artifacts,omitempty"`
	ResumeInstructions string   `json:"resumeInstructions"`
}

// RecoveryContext condenses a member's task state and synthesizes resume
// instructions for its replacement.
func (m *Manager) RecoveryContext(teamID, memberID string) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.liveTeam(teamID); err != nil {
		return nil, err
	}
	mem, err := m.teamMember(teamID, memberID)
	if err != nil {
		return nil, err
	}
	return buildContext(mem), nil
}

func buildContext(mem *store.Member) *Context {
	c := &Context{
		MemberID:       mem.ID,
		Role:           mem.Role,
		TaskID:         mem.CurrentTaskID,
		SpecID:         mem.CurrentSpecID,
		Phase:          mem.TaskPhase,
		Progress:       mem.TaskProgress,
		CompletedSteps: mem.CompletedSteps,
		Artifacts:      mem.Artifacts,
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are taking over the %s role from a failed teammate.", mem.Role)
	if mem.CurrentTaskID != "" {
		fmt.Fprintf(&b, " Resume task %s", mem.CurrentTaskID)
		if mem.TaskPhase != "" {
			fmt.Fprintf(&b, " in the %s phase (%d%% done)", mem.TaskPhase, mem.TaskProgress)
		}
		b.WriteString(".")
	} else {
		b.WriteString(" No task was in progress.")
	}
	if len(mem.CompletedSteps) > 0 {
		fmt.Fprintf(&b, " Completed steps: %s.", strings.Join(mem.CompletedSteps, ", "))
	}
	if len(mem.Artifacts) > 0 {
		fmt.Fprintf(&b, " Artifacts so far: %s.", strings.Join(mem.Artifacts, ", "))
	}
	c.ResumeInstructions = b.String()
	return c
}

// CreateReplacement spawns a fresh member for a failed one: same role and
// agent type, new identity, task pointers carried over, recoveredFrom set
// permanently. The failed member is removed and exactly one recovery event
// is recorded.
func (m *Manager) CreateReplacement(teamID, failedMemberID string) (*store.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.liveTeam(teamID)
	if err != nil {
		return nil, err
	}
	failed, err := m.teamMember(teamID, failedMemberID)
	if err != nil {
		return nil, err
	}
	if failed.Status != store.MemberFailed {
		return nil, fmt.Errorf("member %s: %w", failedMemberID, ErrMemberNotFailed)
	}

	replacement := &store.Member{
		ID:             newID(),
		TeamID:         teamID,
		Role:           failed.Role,
		Specialty:      failed.Specialty,
		AgentType:      failed.AgentType,
		Orchestrator:   failed.Orchestrator,
		Status:         store.MemberRecovering,
		CurrentTaskID:  failed.CurrentTaskID,
		CurrentSpecID:  failed.CurrentSpecID,
		TaskPhase:      failed.TaskPhase,
		TaskProgress:   failed.TaskProgress,
		CompletedSteps: failed.CompletedSteps,
		Artifacts:      failed.Artifacts,
		RecoveredFrom:  failedMemberID,
		CreatedAt:      m.now(),
	}
	if err := m.store.SaveMember(replacement); err != nil {
		return nil, err
	}
	if err := m.store.DeleteMember(failedMemberID); err != nil {
		return nil, err
	}

	ev := &store.RecoveryEvent{
		ID:                  newID(),
		TeamID:              teamID,
		Timestamp:           m.now(),
		FailedMemberID:      failedMemberID,
		FailedMemberRole:    failed.Role,
		ReplacementMemberID: replacement.ID,
		Reason:              failed.LastFailure,
		SpecID:              failed.CurrentSpecID,
		TaskID:              failed.CurrentTaskID,
		Success:             true,
		Context: &store.RecoveryContextSummary{
			TaskID:         failed.CurrentTaskID,
			SpecID:         failed.CurrentSpecID,
			Phase:          failed.TaskPhase,
			Progress:       failed.TaskProgress,
			CompletedSteps: failed.CompletedSteps,
			Artifacts:      failed.Artifacts,
		},
	}
	if err := m.store.AppendRecoveryEvent(ev); err != nil {
		return nil, err
	}
	m.touch(t)
	m.publishRecovery("recovery.replacement", teamID, ev)
	return replacement, nil
}

// RecordRecoveryFailure files an unsuccessful recovery attempt, one that
// could not produce a replacement.
func (m *Manager) RecordRecoveryFailure(teamID, failedMemberID, reason string) (*store.RecoveryEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.liveTeam(teamID); err != nil {
		return nil, err
	}
	role := ""
	if mem, err := m.teamMember(teamID, failedMemberID); err == nil {
		role = mem.Role
	}

	ev := &store.RecoveryEvent{
		ID:               newID(),
		TeamID:           teamID,
		Timestamp:        m.now(),
		FailedMemberID:   failedMemberID,
		FailedMemberRole: role,
		Reason:           reason,
		Success:          false,
	}
	if err := m.store.AppendRecoveryEvent(ev); err != nil {
		return nil, err
	}
	m.publishRecovery("recovery.failed", teamID, ev)
	return ev, nil
}

// RecoveryHistory returns a team's recovery events, newest first.
func (m *Manager) RecoveryHistory(teamID string, limit int) ([]store.RecoveryEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.store.GetTeam(teamID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("team %s: %w", teamID, ErrTeamNotFound)
	}
	return m.store.ListRecoveryEvents(teamID, limit)
}
