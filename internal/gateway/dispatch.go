package gateway

import (
	"encoding/json"
	"errors"

	"github.com/nmarkou/crewd/internal/coord"
	"github.com/nmarkou/crewd/internal/store"
	"github.com/nmarkou/crewd/internal/team"
)

func errCode(err error) string {
	switch {
	case errors.Is(err, team.ErrTeamNotFound),
		errors.Is(err, team.ErrMemberNotFound),
		errors.Is(err, coord.ErrMessageNotFound):
		return CodeNotFound
	case errors.Is(err, team.ErrTeamArchived):
		return CodeTeamArchived
	case errors.Is(err, team.ErrTeamExists),
		errors.Is(err, team.ErrRoleTaken):
		return CodeConflict
	case errors.Is(err, team.ErrOrchestratorRemove),
		errors.Is(err, team.ErrMemberNotFailed),
		errors.Is(err, coord.ErrBadTransition):
		return CodeInvalidState
	default:
		return CodeInternal
	}
}

func fail(id string, err error) Response {
	return failure(id, errCode(err), err.Error())
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

type teamRef struct {
	TeamID string `json:"teamId"`
}

type memberRef struct {
	TeamID   string `json:"teamId"`
	MemberID string `json:"memberId"`
}

func (s *Server) dispatch(c *peer, req Request) Response {
	switch req.Method {
	case "ping":
		return success(req.ID, map[string]string{"pong": s.version})

	case "team.create":
		in, err := decode[team.CreateTeamInput](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		v, err := s.manager.CreateTeam(in)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, v)

	case "team.list":
		p, err := decode[struct {
			ProjectPath string `json:"projectPath"`
			Status      string `json:"status,omitempty"`
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		teams, err := s.manager.ListTeams(p.ProjectPath, p.Status)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, map[string]any{"teams": teams})

	case "team.get":
		p, err := decode[teamRef](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		v, err := s.manager.GetTeam(p.TeamID)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, v)

	case "team.update":
		p, err := decode[struct {
			teamRef
			team.UpdateTeamInput
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		v, err := s.manager.UpdateTeam(p.TeamID, p.UpdateTeamInput)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, v)

	case "team.archive":
		p, err := decode[teamRef](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		v, err := s.manager.ArchiveTeam(p.TeamID)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, v)

	case "member.add":
		p, err := decode[struct {
			teamRef
			team.MemberSpec
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		// A registered live role holder blocks the add even before the
		// manager sees it.
		if b := s.registry.Check(p.Role); b != nil {
			return failure(req.ID, CodeConflict, "role "+p.Role+" is registered to an active agent")
		}
		mem, err := s.manager.AddMember(p.TeamID, p.MemberSpec)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, mem)

	case "member.remove":
		p, err := decode[memberRef](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		if err := s.manager.RemoveMember(p.TeamID, p.MemberID); err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, map[string]bool{"removed": true})

	case "member.list":
		p, err := decode[teamRef](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		members, err := s.manager.Members(p.TeamID)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, map[string]any{"members": members})

	case "member.status":
		p, err := decode[struct {
			memberRef
			Status string `json:"status"`
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		mem, err := s.manager.UpdateMemberStatus(p.TeamID, p.MemberID, p.Status)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, mem)

	case "member.task":
		p, err := decode[struct {
			memberRef
			team.TaskUpdate
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		mem, err := s.manager.UpdateMemberTask(p.TeamID, p.MemberID, p.TaskUpdate)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, mem)

	case "member.heartbeat":
		p, err := decode[memberRef](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		if err := s.manager.Heartbeat(p.TeamID, p.MemberID); err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, map[string]bool{"ok": true})

	case "member.bind":
		p, err := decode[struct {
			memberRef
			TerminalID      string `json:"terminalId"`
			ClaudeSessionID string `json:"claudeSessionId"`
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		mem, err := s.manager.BindTerminal(p.TeamID, p.MemberID, p.TerminalID, p.ClaudeSessionID)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, mem)

	case "recovery.report":
		p, err := decode[struct {
			memberRef
			Reason string `json:"reason"`
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		report, err := s.manager.ReportFailure(p.TeamID, p.MemberID, p.Reason)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, report)

	case "recovery.context":
		p, err := decode[memberRef](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		ctx, err := s.manager.RecoveryContext(p.TeamID, p.MemberID)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, ctx)

	case "recovery.replace":
		p, err := decode[memberRef](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		mem, err := s.manager.CreateReplacement(p.TeamID, p.MemberID)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, mem)

	case "recovery.history":
		p, err := decode[struct {
			teamRef
			Limit int `json:"limit,omitempty"`
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		events, err := s.manager.RecoveryHistory(p.TeamID, p.Limit)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, map[string]any{"events": events})

	case "session.pause":
		p, err := decode[struct {
			teamRef
			Terminals []store.TerminalSession `json:"terminals,omitempty"`
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		res, err := s.manager.PauseTeam(p.TeamID, p.Terminals)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, res)

	case "session.resume":
		p, err := decode[teamRef](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		res, err := s.manager.ResumeTeam(p.TeamID)
		if err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, res)

	case "coord.register":
		p, err := decode[struct {
			Role    string `json:"role"`
			AgentID string `json:"agentId,omitempty"`
			TaskID  string `json:"taskId,omitempty"`
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		b := s.registry.Register(p.Role, c.id, p.AgentID, p.TaskID)
		return success(req.ID, b)

	case "coord.check":
		p, err := decode[struct {
			Role string `json:"role"`
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		b := s.registry.Check(p.Role)
		return success(req.ID, map[string]any{"binding": b, "held": b != nil})

	case "coord.unregister":
		p, err := decode[struct {
			Role string `json:"role"`
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		return success(req.ID, map[string]bool{"released": s.registry.Unregister(p.Role)})

	case "coord.send":
		p, err := decode[struct {
			FromAgent string `json:"fromAgent"`
			FromRole  string `json:"fromRole,omitempty"`
			Content   string `json:"content"`
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		msg := s.queue.Enqueue(p.FromAgent, p.FromRole, p.Content)
		score := s.health.Record(p.FromAgent, p.Content)
		return success(req.ID, map[string]any{"message": msg, "healthScore": score})

	case "coord.pending":
		p, err := decode[struct {
			Role string `json:"role,omitempty"`
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		return success(req.ID, map[string]any{"messages": s.queue.Pending(p.Role)})

	case "coord.processing":
		p, err := decode[struct {
			MessageID string `json:"messageId"`
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		if err := s.queue.MarkProcessing(p.MessageID); err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, map[string]bool{"ok": true})

	case "coord.processed":
		p, err := decode[struct {
			MessageID string `json:"messageId"`
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		if err := s.queue.MarkProcessed(p.MessageID); err != nil {
			return fail(req.ID, err)
		}
		return success(req.ID, map[string]bool{"ok": true})

	case "coord.health":
		p, err := decode[struct {
			AgentID string `json:"agentId"`
		}](req.Params)
		if err != nil {
			return failure(req.ID, CodeBadRequest, err.Error())
		}
		return success(req.ID, map[string]int{"score": s.health.Score(p.AgentID)})

	default:
		return failure(req.ID, CodeBadRequest, "unknown method: "+req.Method)
	}
}
