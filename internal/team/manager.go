package team

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nmarkou/crewd/internal/natsbus"
	"github.com/nmarkou/crewd/internal/store"
)

// Domain errors. Their messages travel verbatim to clients.
var (
	ErrTeamNotFound       = errors.New("team not found")
	ErrTeamExists         = errors.New("team already exists")
	ErrTeamArchived       = errors.New("team is archived")
	ErrMemberNotFound     = errors.New("member not found")
	ErrRoleTaken          = errors.New("role already held by a live member")
	ErrOrchestratorRemove = errors.New("cannot remove the orchestrator")
	ErrMemberNotFailed    = errors.New("member is not in failed state")
)

// Defaults applied when a team is created without explicit recovery settings.
const (
	DefaultMaxRecoveryAttempts = 3
	DefaultRecoveryDelayMs     = 5000
	DefaultAgentType           = "claude"

	OrchestratorRole = "orchestrator"
)

// Publisher is the slice of the bus client the manager needs.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Event is pushed on the bus for every state change, exactly one per action.
type Event struct {
	Type      string    `json:"type"`
	TeamID    string    `json:"teamId"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Manager owns the authoritative team state. All mutations take the manager
// mutex so read-modify-write sequences against the store stay consistent.
type Manager struct {
	mu    sync.Mutex
	store *store.Store
	bus   Publisher
	now   func() time.Time
}

func NewManager(s *store.Store, bus Publisher) *Manager {
	return &Manager{
		store: s,
		bus:   bus,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// View is a team with its members resolved.
type View struct {
	Team    *store.Team    `json:"team"`
	Members []store.Member `json:"members"`
}

func (m *Manager) publish(topic, eventType, teamID string, payload any) {
	if m.bus == nil {
		return
	}
	ev := Event{
		Type:      eventType,
		TeamID:    teamID,
		Timestamp: m.now(),
		Payload:   payload,
	}
	if err := m.bus.PublishJSON(topic, ev); err != nil {
		slog.Error("publish event failed", "type", eventType, "team", teamID, "error", err)
	}
}

func (m *Manager) publishTeam(eventType, teamID string, payload any) {
	m.publish(natsbus.TopicTeamEvents(teamID), eventType, teamID, payload)
}

func (m *Manager) publishRecovery(eventType, teamID string, payload any) {
	m.publish(natsbus.TopicRecoveryEvents(teamID), eventType, teamID, payload)
}

// liveTeam loads a team and rejects mutations on archived ones. Archived is
// terminal.
func (m *Manager) liveTeam(id string) (*store.Team, error) {
	t, err := m.store.GetTeam(id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("team %s: %w", id, ErrTeamNotFound)
	}
	if t.Status == store.TeamArchived {
		return nil, fmt.Errorf("team %s: %w", id, ErrTeamArchived)
	}
	return t, nil
}

func (m *Manager) view(t *store.Team) (*View, error) {
	members, err := m.store.ListMembers(t.ID)
	if err != nil {
		return nil, err
	}
	return &View{Team: t, Members: members}, nil
}

func (m *Manager) touch(t *store.Team) {
	t.LastActive = m.now()
	if err := m.store.TouchTeam(t.ID, t.LastActive); err != nil {
		slog.Error("touch team failed", "team", t.ID, "error", err)
	}
}

func newID() string {
	return uuid.NewString()
}
