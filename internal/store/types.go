package store

import "time"

// Team statuses.
const (
	TeamActive   = "active"
	TeamPaused   = "paused"
	TeamArchived = "archived"
)

// Member statuses.
const (
	MemberActive     = "active"
	MemberIdle       = "idle"
	MemberFailed     = "failed"
	MemberRecovering = "recovering"
	MemberPaused     = "paused"
)

type Team struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	ProjectPath         string    `json:"projectPath"`
	CreatedAt           time.Time `json:"createdAt"`
	CreatedBy           string    `json:"createdBy"`
	Status              string    `json:"status"`
	LastActive          time.Time `json:"lastActive"`
	AutoRecovery        bool      `json:"autoRecovery"`
	MaxRecoveryAttempts int       `json:"maxRecoveryAttempts"`
	RecoveryDelayMs     int64     `json:"recoveryDelayMs"`
	Tags                []string  `json:"tags"`
	ActiveSpecs         []string  `json:"activeSpecs"`
}

type Member struct {
	ID              string     `json:"id"`
	TeamID          string     `json:"teamId"`
	Role            string     `json:"role"`
	Specialty       string     `json:"specialty,omitempty"`
	AgentType       string     `json:"agentType"`
	Orchestrator    bool       `json:"orchestrator"`
	Status          string     `json:"status"`
	TerminalID      string     `json:"terminalId,omitempty"`
	ClaudeSessionID string     `json:"claudeSessionId,omitempty"`
	CurrentTaskID   string     `json:"currentTaskId,omitempty"`
	CurrentSpecID   string     `json:"currentSpecId,omitempty"`
	TaskPhase       string     `json:"taskPhase,omitempty"`
	TaskProgress    int        `json:"taskProgress"`
	CompletedSteps  []string   `json:"completedSteps"`
	Artifacts       []string   `json:"artifacts"`
	FailureCount    int        `json:"failureCount"`
	LastFailure     string     `json:"lastFailure,omitempty"`
	LastFailureAt   *time.Time `json:"lastFailureAt,omitempty"`
	RecoveredFrom   string     `json:"recoveredFrom,omitempty"`
	LastHeartbeat   *time.Time `json:"lastHeartbeat,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// TeamSummary is the list-view projection of a team.
type TeamSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ProjectPath  string    `json:"projectPath"`
	Status       string    `json:"status"`
	MemberCount  int       `json:"memberCount"`
	LastActive   time.Time `json:"lastActive"`
	AutoRecovery bool      `json:"autoRecovery"`
}

// RecoveryContextSummary is the condensed snapshot of what a failed member
// was doing, embedded in its recovery event.
type RecoveryContextSummary struct {
	TaskID         string   `json:"taskId,omitempty"`
	SpecID         string   `json:"specId,omitempty"`
	Phase          string   `json:"phase,omitempty"`
	Progress       int      `json:"progress"`
	CompletedSteps []string `json:"completedSteps,omitempty"`
	Artifacts      []string `json:"artifacts,omitempty"`
}

type RecoveryEvent struct {
	ID                  string                  `json:"id"`
	TeamID              string                  `json:"teamId"`
	Timestamp           time.Time               `json:"timestamp"`
	FailedMemberID      string                  `json:"failedMemberId"`
	FailedMemberRole    string                  `json:"failedMemberRole"`
	ReplacementMemberID string                  `json:"replacementMemberId,omitempty"`
	Reason              string                  `json:"reason"`
	SpecID              string                  `json:"specId,omitempty"`
	TaskID              string                  `json:"taskId,omitempty"`
	Context             *RecoveryContextSummary `json:"context,omitempty"`
	Success             bool                    `json:"success"`
}

// TerminalSession is one member's terminal binding captured at pause time.
type TerminalSession struct {
	MemberID        string `json:"memberId"`
	Role            string `json:"role"`
	TerminalID      string `json:"terminalId,omitempty"`
	ClaudeSessionID string `json:"claudeSessionId,omitempty"`
	WorkingDir      string `json:"workingDir,omitempty"`
}

type SessionSnapshot struct {
	TeamID    string            `json:"teamId"`
	SavedAt   time.Time         `json:"savedAt"`
	Terminals []TerminalSession `json:"terminals"`
}
