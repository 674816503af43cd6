package coord

import "sync"

// recentWindow is how many of an agent's latest messages are checked for
// duplicates.
const recentWindow = 5

const duplicatePenalty = 10

// Health tracks a 0-100 communication health score per agent. Sending the
// same content as one of the agent's last few messages costs points. The
// score is an auxiliary signal; nothing gates on it.
type Health struct {
	mu     sync.Mutex
	scores map[string]int
	recent map[string][]string
}

func NewHealth() *Health {
	return &Health{
		scores: make(map[string]int),
		recent: make(map[string][]string),
	}
}

// Record observes a message from an agent and returns the updated score.
func (h *Health) Record(agentID, content string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	score, ok := h.scores[agentID]
	if !ok {
		score = 100
	}

	for _, prev := range h.recent[agentID] {
		if prev == content {
			score -= duplicatePenalty
			break
		}
	}
	if score < 0 {
		score = 0
	}
	h.scores[agentID] = score

	recent := append(h.recent[agentID], content)
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}
	h.recent[agentID] = recent

	return score
}

// Score returns the current score for an agent; unknown agents are healthy.
func (h *Health) Score(agentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.scores[agentID]; ok {
		return s
	}
	return 100
}
