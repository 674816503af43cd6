package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nmarkou/crewd/internal/store"
	"github.com/nmarkou/crewd/internal/team"
)

// Client is the typed API over the transport. It also feeds pushed events
// into its cache, a read-only projection of server state.
type Client struct {
	t     *Transport
	cache *Cache
}

func New(url string, opts ...Option) *Client {
	c := &Client{cache: NewCache()}
	opts = append(opts, WithEventHandler(c.cache.Apply))
	c.t = NewTransport(url, opts...)
	return c
}

// Cache exposes the local projection. It is never a basis for writes; every
// mutation goes to the server.
func (c *Client) Cache() *Cache {
	return c.cache
}

func (c *Client) Close() error {
	return c.t.Close()
}

func call[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	var out T
	data, err := c.t.Call(ctx, method, params)
	if err != nil {
		return out, err
	}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%s: decode response: %w", method, err)
	}
	return out, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.t.Call(ctx, "ping", nil)
	return err
}

func (c *Client) CreateTeam(ctx context.Context, in team.CreateTeamInput) (*team.View, error) {
	return call[*team.View](ctx, c, "team.create", in)
}

func (c *Client) ListTeams(ctx context.Context, projectPath, status string) ([]store.TeamSummary, error) {
	out, err := call[struct {
		Teams []store.TeamSummary `json:"teams"`
	}](ctx, c, "team.list", map[string]string{"projectPath": projectPath, "status": status})
	return out.Teams, err
}

func (c *Client) GetTeam(ctx context.Context, teamID string) (*team.View, error) {
	return call[*team.View](ctx, c, "team.get", map[string]string{"teamId": teamID})
}

func (c *Client) UpdateTeam(ctx context.Context, teamID string, in team.UpdateTeamInput) (*team.View, error) {
	return call[*team.View](ctx, c, "team.update", struct {
		TeamID string `json:"teamId"`
		team.UpdateTeamInput
	}{teamID, in})
}

func (c *Client) ArchiveTeam(ctx context.Context, teamID string) (*team.View, error) {
	return call[*team.View](ctx, c, "team.archive", map[string]string{"teamId": teamID})
}

// AddMember asks the role registry first so an occupied role fails fast,
// then performs the add.
func (c *Client) AddMember(ctx context.Context, teamID string, spec team.MemberSpec) (*store.Member, error) {
	if binding, err := c.CheckRole(ctx, spec.Role); err != nil {
		return nil, err
	} else if binding != nil {
		return nil, &APIError{Code: "conflict", Message: fmt.Sprintf("role %s is registered to agent %s", spec.Role, binding.AgentID)}
	}
	return call[*store.Member](ctx, c, "member.add", struct {
		TeamID string `json:"teamId"`
		team.MemberSpec
	}{teamID, spec})
}

func (c *Client) RemoveMember(ctx context.Context, teamID, memberID string) error {
	_, err := c.t.Call(ctx, "member.remove", map[string]string{"teamId": teamID, "memberId": memberID})
	return err
}

func (c *Client) Members(ctx context.Context, teamID string) ([]store.Member, error) {
	out, err := call[struct {
		Members []store.Member `json:"members"`
	}](ctx, c, "member.list", map[string]string{"teamId": teamID})
	return out.Members, err
}

func (c *Client) UpdateMemberStatus(ctx context.Context, teamID, memberID, status string) (*store.Member, error) {
	return call[*store.Member](ctx, c, "member.status", map[string]string{
		"teamId": teamID, "memberId": memberID, "status": status,
	})
}

func (c *Client) UpdateMemberTask(ctx context.Context, teamID, memberID string, upd team.TaskUpdate) (*store.Member, error) {
	return call[*store.Member](ctx, c, "member.task", struct {
		TeamID   string `json:"teamId"`
		MemberID string `json:"memberId"`
		team.TaskUpdate
	}{teamID, memberID, upd})
}

func (c *Client) Heartbeat(ctx context.Context, teamID, memberID string) error {
	_, err := c.t.Call(ctx, "member.heartbeat", map[string]string{"teamId": teamID, "memberId": memberID})
	return err
}

func (c *Client) BindTerminal(ctx context.Context, teamID, memberID, terminalID, claudeSessionID string) (*store.Member, error) {
	return call[*store.Member](ctx, c, "member.bind", map[string]string{
		"teamId": teamID, "memberId": memberID,
		"terminalId": terminalID, "claudeSessionId": claudeSessionID,
	})
}

func (c *Client) ReportFailure(ctx context.Context, teamID, memberID, reason string) (*team.FailureReport, error) {
	return call[*team.FailureReport](ctx, c, "recovery.report", map[string]string{
		"teamId": teamID, "memberId": memberID, "reason": reason,
	})
}

func (c *Client) RecoveryContext(ctx context.Context, teamID, memberID string) (*team.Context, error) {
	return call[*team.Context](ctx, c, "recovery.context", map[string]string{"teamId": teamID, "memberId": memberID})
}

func (c *Client) CreateReplacement(ctx context.Context, teamID, failedMemberID string) (*store.Member, error) {
	return call[*store.Member](ctx, c, "recovery.replace", map[string]string{"teamId": teamID, "memberId": failedMemberID})
}

func (c *Client) RecoveryHistory(ctx context.Context, teamID string, limit int) ([]store.RecoveryEvent, error) {
	out, err := call[struct {
		Events []store.RecoveryEvent `json:"events"`
	}](ctx, c, "recovery.history", map[string]any{"teamId": teamID, "limit": limit})
	return out.Events, err
}

func (c *Client) PauseTeam(ctx context.Context, teamID string, terminals []store.TerminalSession) (*team.PauseResult, error) {
	return call[*team.PauseResult](ctx, c, "session.pause", map[string]any{"teamId": teamID, "terminals": terminals})
}

func (c *Client) ResumeTeam(ctx context.Context, teamID string) (*team.ResumeResult, error) {
	return call[*team.ResumeResult](ctx, c, "session.resume", map[string]string{"teamId": teamID})
}

func (c *Client) RegisterRole(ctx context.Context, role, agentID, taskID string) (*RoleBinding, error) {
	return call[*RoleBinding](ctx, c, "coord.register", map[string]string{
		"role": role, "agentId": agentID, "taskId": taskID,
	})
}

type RoleBinding struct {
	Role    string `json:"role"`
	ConnID  string `json:"connId"`
	AgentID string `json:"agentId,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
}

// CheckRole returns the current holder of a role, or nil when it is free.
func (c *Client) CheckRole(ctx context.Context, role string) (*RoleBinding, error) {
	out, err := call[struct {
		Binding *RoleBinding `json:"binding"`
		Held    bool         `json:"held"`
	}](ctx, c, "coord.check", map[string]string{"role": role})
	if err != nil {
		return nil, err
	}
	return out.Binding, nil
}

func (c *Client) UnregisterRole(ctx context.Context, role string) error {
	_, err := c.t.Call(ctx, "coord.unregister", map[string]string{"role": role})
	return err
}

// SentMessage is the queue's view of a sent message plus the sender's
// updated health score.
type SentMessage struct {
	Message     json.RawMessage `json:"message"`
	HealthScore int             `json:"healthScore"`
}

func (c *Client) SendMessage(ctx context.Context, fromAgent, fromRole, content string) (*SentMessage, error) {
	return call[*SentMessage](ctx, c, "coord.send", map[string]string{
		"fromAgent": fromAgent, "fromRole": fromRole, "content": content,
	})
}

func (c *Client) PendingMessages(ctx context.Context, role string) (json.RawMessage, error) {
	return c.t.Call(ctx, "coord.pending", map[string]string{"role": role})
}

func (c *Client) MarkProcessing(ctx context.Context, messageID string) error {
	_, err := c.t.Call(ctx, "coord.processing", map[string]string{"messageId": messageID})
	return err
}

func (c *Client) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := c.t.Call(ctx, "coord.processed", map[string]string{"messageId": messageID})
	return err
}

func (c *Client) AgentHealth(ctx context.Context, agentID string) (int, error) {
	out, err := call[struct {
		Score int `json:"score"`
	}](ctx, c, "coord.health", map[string]string{"agentId": agentID})
	if err != nil {
		return 0, err
	}
	return out.Score, nil
}
