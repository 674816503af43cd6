package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// SaveSnapshot stores the pending session snapshot for a team, replacing any
// previous one. When the store has a vault, the payload is sealed at rest
// because claude session ids are resume capabilities.
func (s *Store) SaveSnapshot(snap *SessionSnapshot) error {
	data, err := json.Marshal(snap.Terminals)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	sealed := false
	if s.vault != nil {
		data, err = s.vault.Seal(data)
		if err != nil {
			return fmt.Errorf("seal snapshot: %w", err)
		}
		sealed = true
	}

	_, err = s.db.Exec(`
		INSERT INTO session_snapshots (team_id, saved_at, sealed, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(team_id) DO UPDATE SET
			saved_at = excluded.saved_at,
			sealed = excluded.sealed,
			data = excluded.data`,
		snap.TeamID, snap.SavedAt, sealed, data)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the pending snapshot for a team, or nil when there is
// none.
func (s *Store) GetSnapshot(teamID string) (*SessionSnapshot, error) {
	snap := &SessionSnapshot{TeamID: teamID}
	var sealed bool
	var data []byte
	err := s.db.QueryRow(`
		SELECT saved_at, sealed, data FROM session_snapshots WHERE team_id = ?`,
		teamID).Scan(&snap.SavedAt, &sealed, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	if sealed {
		if s.vault == nil {
			return nil, fmt.Errorf("snapshot for team %s is sealed but no vault is configured", teamID)
		}
		data, err = s.vault.Open(data)
		if err != nil {
			return nil, fmt.Errorf("unseal snapshot: %w", err)
		}
	}

	if err := json.Unmarshal(data, &snap.Terminals); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (s *Store) DeleteSnapshot(teamID string) error {
	_, err := s.db.Exec(`DELETE FROM session_snapshots WHERE team_id = ?`, teamID)
	return err
}
