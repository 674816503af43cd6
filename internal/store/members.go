package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func scanMember(scanner interface {
	Scan(dest ...any) error
}) (*Member, error) {
	m := &Member{}
	var steps, artifacts string
	err := scanner.Scan(&m.ID, &m.TeamID, &m.Role, &m.Specialty, &m.AgentType,
		&m.Orchestrator, &m.Status, &m.TerminalID, &m.ClaudeSessionID,
		&m.CurrentTaskID, &m.CurrentSpecID, &m.TaskPhase, &m.TaskProgress,
		&steps, &artifacts, &m.FailureCount, &m.LastFailure, &m.LastFailureAt,
		&m.RecoveredFrom, &m.LastHeartbeat, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &m.CompletedSteps); err != nil {
		return nil, fmt.Errorf("decode completed steps: %w", err)
	}
	if err := json.Unmarshal([]byte(artifacts), &m.Artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	return m, nil
}

const memberColumns = `id, team_id, role, specialty, agent_type, orchestrator, status,
	terminal_id, claude_session_id, current_task_id, current_spec_id, task_phase,
	task_progress, completed_steps, artifacts, failure_count, last_failure,
	last_failure_at, recovered_from, last_heartbeat, created_at`

// SaveMember upserts everything except failure_count, which only moves
// through RecordMemberFailure so it stays monotonic.
func (s *Store) SaveMember(m *Member) error {
	steps, err := json.Marshal(emptyIfNil(m.CompletedSteps))
	if err != nil {
		return fmt.Errorf("encode completed steps: %w", err)
	}
	artifacts, err := json.Marshal(emptyIfNil(m.Artifacts))
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO members (id, team_id, role, specialty, agent_type, orchestrator,
			status, terminal_id, claude_session_id, current_task_id, current_spec_id,
			task_phase, task_progress, completed_steps, artifacts, failure_count,
			last_failure, last_failure_at, recovered_from, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			specialty = excluded.specialty,
			status = excluded.status,
			terminal_id = excluded.terminal_id,
			claude_session_id = excluded.claude_session_id,
			current_task_id = excluded.current_task_id,
			current_spec_id = excluded.current_spec_id,
			task_phase = excluded.task_phase,
			task_progress = excluded.task_progress,
			completed_steps = excluded.completed_steps,
			artifacts = excluded.artifacts`,
		m.ID, m.TeamID, m.Role, m.Specialty, m.AgentType, m.Orchestrator,
		m.Status, m.TerminalID, m.ClaudeSessionID, m.CurrentTaskID, m.CurrentSpecID,
		m.TaskPhase, m.TaskProgress, string(steps), string(artifacts), m.FailureCount,
		m.LastFailure, m.LastFailureAt, m.RecoveredFrom, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("save member: %w", err)
	}
	return nil
}

func (s *Store) GetMember(id string) (*Member, error) {
	row := s.db.QueryRow(`SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// ListMembers returns a team's members, orchestrator first.
func (s *Store) ListMembers(teamID string) ([]Member, error) {
	rows, err := s.db.Query(`SELECT `+memberColumns+`
		FROM members WHERE team_id = ?
		ORDER BY orchestrator DESC, created_at`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *Store) DeleteMember(id string) error {
	_, err := s.db.Exec(`DELETE FROM members WHERE id = ?`, id)
	return err
}

func (s *Store) UpdateMemberStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE members SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update member status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) UpdateMemberHeartbeat(id string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE members SET last_heartbeat = ? WHERE id = ?`, at, id)
	return err
}

// RecordMemberFailure marks the member failed and bumps its failure count.
// The increment happens in SQL so the count never moves backwards.
func (s *Store) RecordMemberFailure(id, reason string, at time.Time) (*Member, error) {
	_, err := s.db.Exec(`
		UPDATE members
		SET status = ?, failure_count = failure_count + 1, last_failure = ?, last_failure_at = ?
		WHERE id = ?`, MemberFailed, reason, at, id)
	if err != nil {
		return nil, fmt.Errorf("record member failure: %w", err)
	}
	return s.GetMember(id)
}
