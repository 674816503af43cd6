package coord

import (
	"sync"
	"time"
)

// Binding records which connection currently holds a role.
type Binding struct {
	Role         string    `json:"role"`
	ConnID       string    `json:"connId"`
	AgentID      string    `json:"agentId,omitempty"`
	TaskID       string    `json:"taskId,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Registry maps roles to live connections. Re-registering a role overwrites
// the previous holder, so a reconnecting agent reclaims its role without a
// separate release step.
type Registry struct {
	mu     sync.Mutex
	byRole map[string]*Binding
}

func NewRegistry() *Registry {
	return &Registry{byRole: make(map[string]*Binding)}
}

func (r *Registry) Register(role, connID, agentID, taskID string) *Binding {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := &Binding{
		Role:         role,
		ConnID:       connID,
		AgentID:      agentID,
		TaskID:       taskID,
		RegisteredAt: time.Now().UTC(),
	}
	r.byRole[role] = b
	out := *b
	return &out
}

// Check returns the current holder of a role, or nil when it is free.
func (r *Registry) Check(role string) *Binding {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byRole[role]
	if !ok {
		return nil
	}
	out := *b
	return &out
}

func (r *Registry) Unregister(role string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.byRole[role]
	delete(r.byRole, role)
	return ok
}

// UnregisterConnection frees every role held by a connection and returns the
// freed roles. Called when a websocket client disconnects.
func (r *Registry) UnregisterConnection(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var freed []string
	for role, b := range r.byRole {
		if b.ConnID == connID {
			freed = append(freed, role)
			delete(r.byRole, role)
		}
	}
	return freed
}
