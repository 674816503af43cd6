package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func scanTeam(scanner interface {
	Scan(dest ...any) error
}) (*Team, error) {
	t := &Team{}
	var tags, specs string
	err := scanner.Scan(&t.ID, &t.Name, &t.ProjectPath, &t.CreatedAt, &t.CreatedBy,
		&t.Status, &t.LastActive, &t.AutoRecovery, &t.MaxRecoveryAttempts,
		&t.RecoveryDelayMs, &tags, &specs)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(specs), &t.ActiveSpecs); err != nil {
		return nil, fmt.Errorf("decode active specs: %w", err)
	}
	return t, nil
}

func (s *Store) SaveTeam(t *Team) error {
	tags, err := json.Marshal(emptyIfNil(t.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	specs, err := json.Marshal(emptyIfNil(t.ActiveSpecs))
	if err != nil {
		return fmt.Errorf("encode active specs: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO teams (id, name, project_path, created_at, created_by, status,
			last_active, auto_recovery, max_recovery_attempts, recovery_delay_ms, tags, active_specs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			last_active = excluded.last_active,
			auto_recovery = excluded.auto_recovery,
			max_recovery_attempts = excluded.max_recovery_attempts,
			recovery_delay_ms = excluded.recovery_delay_ms,
			tags = excluded.tags,
			active_specs = excluded.active_specs`,
		t.ID, t.Name, t.ProjectPath, t.CreatedAt, t.CreatedBy, t.Status,
		t.LastActive, t.AutoRecovery, t.MaxRecoveryAttempts, t.RecoveryDelayMs,
		string(tags), string(specs))
	if err != nil {
		return fmt.Errorf("save team: %w", err)
	}
	return nil
}

func (s *Store) GetTeam(id string) (*Team, error) {
	row := s.db.QueryRow(`
		SELECT id, name, project_path, created_at, created_by, status, last_active,
		       auto_recovery, max_recovery_attempts, recovery_delay_ms, tags, active_specs
		FROM teams WHERE id = ?`, id)
	t, err := scanTeam(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	return t, nil
}

// ListTeams returns summaries for the given project path, newest activity
// first. An empty status matches all statuses.
func (s *Store) ListTeams(projectPath, status string) ([]TeamSummary, error) {
	query := `
		SELECT t.id, t.name, t.project_path, t.status, t.last_active, t.auto_recovery,
		       (SELECT COUNT(*) FROM members m WHERE m.team_id = t.id)
		FROM teams t WHERE t.project_path = ?`
	args := []any{projectPath}
	if status != "" {
		query += ` AND t.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY t.last_active DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []TeamSummary
	for rows.Next() {
		var t TeamSummary
		if err := rows.Scan(&t.ID, &t.Name, &t.ProjectPath, &t.Status,
			&t.LastActive, &t.AutoRecovery, &t.MemberCount); err != nil {
			return nil, fmt.Errorf("scan team summary: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// WatchableTeamIDs returns every non-archived team with auto recovery on,
// the set the watchdog monitors after a restart.
func (s *Store) WatchableTeamIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM teams WHERE status != 'archived' AND auto_recovery`)
	if err != nil {
		return nil, fmt.Errorf("list watchable teams: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan team id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TouchTeam bumps the team's last activity timestamp.
func (s *Store) TouchTeam(id string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE teams SET last_active = ? WHERE id = ?`, at, id)
	return err
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
