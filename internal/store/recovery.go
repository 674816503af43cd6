package store

import (
	"encoding/json"
	"fmt"
)

// recoveryHistoryCap bounds how many events are retained per team.
const recoveryHistoryCap = 100

// AppendRecoveryEvent inserts an event and trims the team's history to the
// newest hundred entries. Events are append-only; there is no update path.
func (s *Store) AppendRecoveryEvent(ev *RecoveryEvent) error {
	ctx := ""
	if ev.Context != nil {
		b, err := json.Marshal(ev.Context)
		if err != nil {
			return fmt.Errorf("encode recovery context: %w", err)
		}
		ctx = string(b)
	}

	_, err := s.db.Exec(`
		INSERT INTO recovery_events (id, team_id, timestamp, failed_member_id,
			failed_member_role, replacement_member_id, reason, spec_id, task_id, context, success)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TeamID, ev.Timestamp, ev.FailedMemberID, ev.FailedMemberRole,
		ev.ReplacementMemberID, ev.Reason, ev.SpecID, ev.TaskID, ctx, ev.Success)
	if err != nil {
		return fmt.Errorf("append recovery event: %w", err)
	}

	_, err = s.db.Exec(`
		DELETE FROM recovery_events
		WHERE team_id = ? AND id NOT IN (
			SELECT id FROM recovery_events WHERE team_id = ?
			ORDER BY timestamp DESC LIMIT ?)`,
		ev.TeamID, ev.TeamID, recoveryHistoryCap)
	if err != nil {
		return fmt.Errorf("trim recovery history: %w", err)
	}
	return nil
}

// ListRecoveryEvents returns a team's recovery history, newest first.
// limit <= 0 means no limit beyond the retention cap.
func (s *Store) ListRecoveryEvents(teamID string, limit int) ([]RecoveryEvent, error) {
	if limit <= 0 || limit > recoveryHistoryCap {
		limit = recoveryHistoryCap
	}
	rows, err := s.db.Query(`
		SELECT id, team_id, timestamp, failed_member_id, failed_member_role,
		       replacement_member_id, reason, spec_id, task_id, context, success
		FROM recovery_events WHERE team_id = ?
		ORDER BY timestamp DESC LIMIT ?`, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recovery events: %w", err)
	}
	defer rows.Close()

	var events []RecoveryEvent
	for rows.Next() {
		var ev RecoveryEvent
		var ctx string
		if err := rows.Scan(&ev.ID, &ev.TeamID, &ev.Timestamp, &ev.FailedMemberID,
			&ev.FailedMemberRole, &ev.ReplacementMemberID, &ev.Reason,
			&ev.SpecID, &ev.TaskID, &ctx, &ev.Success); err != nil {
			return nil, fmt.Errorf("scan recovery event: %w", err)
		}
		if ctx != "" {
			ev.Context = &RecoveryContextSummary{}
			if err := json.Unmarshal([]byte(ctx), ev.Context); err != nil {
				return nil, fmt.Errorf("decode recovery context: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
