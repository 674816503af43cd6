package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/nmarkou/crewd/internal/config"
	"github.com/nmarkou/crewd/internal/store"
	"github.com/nmarkou/crewd/internal/team"
)

// Watchdog sweeps monitored teams for members whose heartbeats went stale
// and drives automatic recovery for them. Teams opt in through Watch; the
// sweep never touches teams nobody asked it to monitor.
type Watchdog struct {
	manager *team.Manager
	cfg     config.WatchdogConfig

	mu       sync.Mutex
	teams    map[string]bool
	failedAt map[string]time.Time // memberID -> when the failure was noticed
	degraded map[string]bool      // members beyond their recovery budget
	now      func() time.Time
}

func New(manager *team.Manager, cfg config.WatchdogConfig) *Watchdog {
	return &Watchdog{
		manager:  manager,
		cfg:      cfg,
		teams:    make(map[string]bool),
		failedAt: make(map[string]time.Time),
		degraded: make(map[string]bool),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Watch adds a team to the sweep set.
func (w *Watchdog) Watch(teamID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.teams[teamID] = true
}

// Unwatch removes a team from the sweep set.
func (w *Watchdog) Unwatch(teamID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.teams, teamID)
}

// Degraded reports members that exhausted their recovery budget and now
// need manual intervention.
func (w *Watchdog) Degraded() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	for id := range w.degraded {
		out = append(out, id)
	}
	return out
}

// Start runs the sweep loop. The sweep setting is either a plain interval
// ("30s") or a cron expression ("*/1 * * * *").
func (w *Watchdog) Start(ctx context.Context) {
	if !w.cfg.Enabled {
		slog.Info("watchdog disabled")
		return
	}

	next, err := nextSweep(w.cfg.Sweep)
	if err != nil {
		slog.Error("invalid watchdog sweep setting", "sweep", w.cfg.Sweep, "error", err)
		return
	}

	slog.Info("watchdog started", "sweep", w.cfg.Sweep, "heartbeat_timeout", w.cfg.HeartbeatTimeout)
	for {
		wait := time.Until(next())
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			slog.Info("watchdog stopped")
			return
		case <-time.After(wait):
			w.Sweep()
		}
	}
}

// nextSweep builds the schedule function for either form of the setting.
func nextSweep(sweep string) (func() time.Time, error) {
	if d, err := time.ParseDuration(sweep); err == nil {
		return func() time.Time { return time.Now().Add(d) }, nil
	}
	if !gronx.New().IsValid(sweep) {
		return nil, fmt.Errorf("sweep %q is neither a duration nor a cron expression", sweep)
	}
	expr := sweep
	return func() time.Time {
		next, err := gronx.NextTick(expr, false)
		if err != nil {
			return time.Now().Add(time.Minute)
		}
		return next
	}, nil
}

// Sweep examines every monitored team once. Exported so tests and operators
// can force a pass.
func (w *Watchdog) Sweep() {
	w.mu.Lock()
	teams := make([]string, 0, len(w.teams))
	for id := range w.teams {
		teams = append(teams, id)
	}
	w.mu.Unlock()

	for _, teamID := range teams {
		if err := w.sweepTeam(teamID); err != nil {
			if errors.Is(err, team.ErrTeamNotFound) || errors.Is(err, team.ErrTeamArchived) {
				w.Unwatch(teamID)
				continue
			}
			slog.Error("sweep failed", "team", teamID, "error", err)
		}
	}
}

func (w *Watchdog) sweepTeam(teamID string) error {
	v, err := w.manager.GetTeam(teamID)
	if err != nil {
		return err
	}
	if v.Team.Status != store.TeamActive {
		return nil
	}

	now := w.now()
	for i := range v.Members {
		mem := &v.Members[i]
		switch mem.Status {
		case store.MemberActive, store.MemberRecovering:
			if w.stale(mem, now) {
				w.noticeFailure(teamID, mem, "heartbeat timeout")
			}
		case store.MemberFailed:
			w.tryRecover(teamID, v.Team, mem, now)
		}
	}
	return nil
}

func (w *Watchdog) stale(mem *store.Member, now time.Time) bool {
	if mem.LastHeartbeat == nil {
		return false
	}
	return now.Sub(*mem.LastHeartbeat) > w.cfg.HeartbeatTimeout
}

func (w *Watchdog) noticeFailure(teamID string, mem *store.Member, reason string) {
	report, err := w.manager.ReportFailure(teamID, mem.ID, reason)
	if err != nil {
		slog.Error("report failure", "team", teamID, "member", mem.ID, "error", err)
		return
	}
	slog.Warn("member failed", "team", teamID, "member", mem.ID, "role", mem.Role,
		"reason", reason, "failures", report.Member.FailureCount)

	w.mu.Lock()
	w.failedAt[mem.ID] = w.now()
	w.mu.Unlock()
}

// tryRecover replaces a failed member once its recovery delay has elapsed,
// as long as the team's policy allows it. A member beyond its budget is
// marked degraded and left alone: no respawn loop.
func (w *Watchdog) tryRecover(teamID string, t *store.Team, mem *store.Member, now time.Time) {
	if !t.AutoRecovery {
		return
	}
	if mem.FailureCount > t.MaxRecoveryAttempts {
		w.mu.Lock()
		already := w.degraded[mem.ID]
		w.degraded[mem.ID] = true
		w.mu.Unlock()
		if !already {
			slog.Warn("recovery attempts exhausted, manual intervention required",
				"team", teamID, "member", mem.ID, "role", mem.Role, "failures", mem.FailureCount)
			if _, err := w.manager.RecordRecoveryFailure(teamID, mem.ID, "recovery attempts exhausted"); err != nil {
				slog.Error("record recovery failure", "team", teamID, "member", mem.ID, "error", err)
			}
		}
		return
	}

	w.mu.Lock()
	noticed, ok := w.failedAt[mem.ID]
	w.mu.Unlock()
	if !ok {
		// Failure reported by someone else; start the delay clock now.
		w.mu.Lock()
		w.failedAt[mem.ID] = now
		w.mu.Unlock()
		return
	}
	delay := time.Duration(t.RecoveryDelayMs) * time.Millisecond
	if now.Sub(noticed) < delay {
		return
	}

	repl, err := w.manager.CreateReplacement(teamID, mem.ID)
	if err != nil {
		slog.Error("create replacement", "team", teamID, "member", mem.ID, "error", err)
		if _, recErr := w.manager.RecordRecoveryFailure(teamID, mem.ID, err.Error()); recErr != nil {
			slog.Error("record recovery failure", "team", teamID, "member", mem.ID, "error", recErr)
		}
		return
	}

	w.mu.Lock()
	delete(w.failedAt, mem.ID)
	w.mu.Unlock()
	slog.Info("member replaced", "team", teamID, "failed", mem.ID, "replacement", repl.ID, "role", repl.Role)
}
