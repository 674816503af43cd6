package client

import (
	"encoding/json"
	"sync"

	"github.com/nmarkou/crewd/internal/store"
	"github.com/nmarkou/crewd/internal/team"
)

// Cache is a one-way reducer over pushed events: frames come in, the local
// projection updates, readers get copies. Nothing here writes back to the
// server and stale reads are expected between events.
type Cache struct {
	mu    sync.RWMutex
	teams map[string]*team.View
}

func NewCache() *Cache {
	return &Cache{teams: make(map[string]*team.View)}
}

// Apply folds one event into the projection. Unknown event types are
// ignored so old clients survive new servers.
func (c *Cache) Apply(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case "team.created", "team.updated", "session.paused", "session.resumed":
		// These either carry a full view or imply one should be refetched;
		// a full view payload replaces the entry outright.
		var v team.View
		if err := json.Unmarshal(ev.Payload, &v); err == nil && v.Team != nil {
			c.teams[ev.TeamID] = &v
			return
		}
		c.applyStatus(ev)

	case "team.archived":
		if v, ok := c.teams[ev.TeamID]; ok {
			v.Team.Status = store.TeamArchived
		}

	case "member.added", "member.status", "member.task":
		var mem store.Member
		if err := json.Unmarshal(ev.Payload, &mem); err != nil || mem.ID == "" {
			return
		}
		c.upsertMember(ev.TeamID, mem)

	case "member.failed":
		var report team.FailureReport
		if err := json.Unmarshal(ev.Payload, &report); err != nil || report.Member == nil {
			return
		}
		c.upsertMember(ev.TeamID, *report.Member)

	case "member.removed":
		var p struct {
			MemberID string `json:"memberId"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		c.removeMember(ev.TeamID, p.MemberID)

	case "recovery.replacement":
		var rec store.RecoveryEvent
		if err := json.Unmarshal(ev.Payload, &rec); err != nil {
			return
		}
		c.removeMember(ev.TeamID, rec.FailedMemberID)
	}
}

func (c *Cache) applyStatus(ev Event) {
	v, ok := c.teams[ev.TeamID]
	if !ok {
		return
	}
	switch ev.Type {
	case "session.paused":
		v.Team.Status = store.TeamPaused
	case "session.resumed":
		v.Team.Status = store.TeamActive
	}
}

func (c *Cache) upsertMember(teamID string, mem store.Member) {
	v, ok := c.teams[teamID]
	if !ok {
		return
	}
	for i := range v.Members {
		if v.Members[i].ID == mem.ID {
			v.Members[i] = mem
			return
		}
	}
	v.Members = append(v.Members, mem)
}

func (c *Cache) removeMember(teamID, memberID string) {
	v, ok := c.teams[teamID]
	if !ok {
		return
	}
	for i := range v.Members {
		if v.Members[i].ID == memberID {
			v.Members = append(v.Members[:i], v.Members[i+1:]...)
			return
		}
	}
}

// Team returns a copy of the cached view, or nil when the team is unknown.
func (c *Cache) Team(teamID string) *team.View {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.teams[teamID]
	if !ok {
		return nil
	}
	t := *v.Team
	members := make([]store.Member, len(v.Members))
	copy(members, v.Members)
	return &team.View{Team: &t, Members: members}
}

// TeamIDs lists the teams the cache has seen.
func (c *Cache) TeamIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.teams))
	for id := range c.teams {
		ids = append(ids, id)
	}
	return ids
}
