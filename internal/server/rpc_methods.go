package server

import (
	"context"
	"errors"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/google/uuid"

	"github.com/vigild/vigil/common"
	"github.com/vigild/vigil/internal/scheduler"
	"github.com/vigild/vigil/pkg/sessionlib"
)

// Custom JSON-RPC error codes for session operations.
const (
	codeNoSession         = jrpc2.Code(-32001)
	codeIllegalTransition = jrpc2.Code(-32002)
	codeInvalidParams     = jrpc2.Code(-32602)
)

// RPCConfig holds configuration for the JSON-RPC endpoint.
type RPCConfig struct {
	Secret    string // Auth token (required -- empty means RPC disabled)
	Version   string // Daemon version
	Commit    string // Git commit
	BuildType string // Build type
}

// RPCServer manages the JSON-RPC 2.0 bridge and method handlers.
type RPCServer struct {
	bridge       jhttp.Bridge
	methods      handler.Map
	secret       string
	version      string
	commit       string
	buildType    string
	engine       *sessionlib.Engine
	sched        *scheduler.Scheduler
	saveSettings func(sessionlib.SchedulerSettings) error
}

// NewRPCServer creates a new RPCServer with method handlers and HTTP bridge.
// saveSettings is called after a successful settings.update so the new
// settings survive a daemon restart; nil disables persistence.
func NewRPCServer(cfg *RPCConfig, eng *sessionlib.Engine, sched *scheduler.Scheduler, saveSettings func(sessionlib.SchedulerSettings) error) *RPCServer {
	rs := &RPCServer{
		secret:       cfg.Secret,
		version:      cfg.Version,
		commit:       cfg.Commit,
		buildType:    cfg.BuildType,
		engine:       eng,
		sched:        sched,
		saveSettings: saveSettings,
	}

	rs.methods = handler.Map{
		common.MethodVersion:  handler.New(rs.systemGetVersion),
		common.MethodSleep:    handler.New(rs.systemSleep),
		common.MethodWake:     handler.New(rs.systemWake),
		common.MethodLowPower: handler.New(rs.systemLowPower),

		common.MethodStart:      handler.New(rs.sessionStart),
		common.MethodPause:      handler.New(rs.sessionPause),
		common.MethodResume:     handler.New(rs.sessionResume),
		common.MethodStop:       handler.New(rs.sessionStop),
		common.MethodReset:      handler.New(rs.sessionReset),
		common.MethodRetry:      handler.New(rs.sessionRetry),
		common.MethodStatus:     handler.New(rs.sessionStatus),
		common.MethodBackground: handler.New(rs.sessionBackground),
		common.MethodForeground: handler.New(rs.sessionForeground),

		common.MethodSettingsGet:    handler.New(rs.settingsGet),
		common.MethodSettingsUpdate: handler.New(rs.settingsUpdate),

		common.MethodSchedule:   handler.New(rs.scheduleAdd),
		common.MethodUnschedule: handler.New(rs.scheduleRemove),
		common.MethodSchedules:  handler.New(rs.scheduleList),
	}

	rs.bridge = jhttp.NewBridge(rs.methods, nil)
	return rs
}

// rpcError maps engine errors onto the JSON-RPC error codes of the wire
// protocol.
func rpcError(err error) error {
	if err == nil {
		return nil
	}
	var terr *sessionlib.TransitionError
	switch {
	case errors.As(err, &terr):
		return &jrpc2.Error{Code: codeIllegalTransition, Message: err.Error()}
	case errors.Is(err, sessionlib.ErrNoSession):
		return &jrpc2.Error{Code: codeNoSession, Message: err.Error()}
	case errors.Is(err, sessionlib.ErrSettingsDuration),
		errors.Is(err, sessionlib.ErrSettingsTick),
		errors.Is(err, sessionlib.ErrSettingsExec),
		errors.Is(err, sessionlib.ErrSettingsTimeout),
		errors.Is(err, sessionlib.ErrSettingsRetry),
		errors.Is(err, sessionlib.ErrSettingsAttempts),
		errors.Is(err, sessionlib.ErrSettingsCommand):
		return &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	}
	return err
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*common.VersionResult, error) {
	return &common.VersionResult{
		Version:   rs.version,
		Commit:    rs.commit,
		BuildType: rs.buildType,
	}, nil
}

// systemSleep tells the engine the host is about to suspend.
func (rs *RPCServer) systemSleep(_ context.Context) (*common.EmptyResult, error) {
	rs.engine.OnSleep()
	return &common.EmptyResult{}, nil
}

// systemWake tells the engine the host resumed from suspend.
func (rs *RPCServer) systemWake(_ context.Context) (*common.EmptyResult, error) {
	rs.engine.OnWake()
	return &common.EmptyResult{}, nil
}

// systemLowPower toggles the low-power tick widening.
func (rs *RPCServer) systemLowPower(_ context.Context, p *common.LowPowerParams) (*common.EmptyResult, error) {
	rs.engine.SetLowPower(p.On)
	return &common.EmptyResult{}, nil
}

// sessionStart begins a new session with the current settings, or reports
// the live one if a session is already running.
func (rs *RPCServer) sessionStart(_ context.Context) (*common.StatusResult, error) {
	snap, err := rs.engine.Start()
	if err != nil {
		return nil, rpcError(err)
	}
	return common.FromSnapshot(snap), nil
}

func (rs *RPCServer) sessionPause(_ context.Context) (*common.EmptyResult, error) {
	if err := rs.engine.Pause(); err != nil {
		return nil, rpcError(err)
	}
	return &common.EmptyResult{}, nil
}

func (rs *RPCServer) sessionResume(_ context.Context) (*common.EmptyResult, error) {
	if err := rs.engine.Resume(); err != nil {
		return nil, rpcError(err)
	}
	return &common.EmptyResult{}, nil
}

func (rs *RPCServer) sessionStop(_ context.Context) (*common.EmptyResult, error) {
	if err := rs.engine.Stop(); err != nil {
		return nil, rpcError(err)
	}
	return &common.EmptyResult{}, nil
}

func (rs *RPCServer) sessionReset(_ context.Context) (*common.EmptyResult, error) {
	if err := rs.engine.Reset(); err != nil {
		return nil, rpcError(err)
	}
	return &common.EmptyResult{}, nil
}

func (rs *RPCServer) sessionRetry(_ context.Context) (*common.EmptyResult, error) {
	if err := rs.engine.Retry(); err != nil {
		return nil, rpcError(err)
	}
	return &common.EmptyResult{}, nil
}

func (rs *RPCServer) sessionStatus(_ context.Context) (*common.StatusResult, error) {
	return common.FromSnapshot(rs.engine.Status()), nil
}

func (rs *RPCServer) sessionBackground(_ context.Context) (*common.EmptyResult, error) {
	if err := rs.engine.Background(); err != nil {
		return nil, rpcError(err)
	}
	return &common.EmptyResult{}, nil
}

func (rs *RPCServer) sessionForeground(_ context.Context) (*common.EmptyResult, error) {
	if err := rs.engine.Foreground(); err != nil {
		return nil, rpcError(err)
	}
	return &common.EmptyResult{}, nil
}

func (rs *RPCServer) settingsGet(_ context.Context) (*common.SettingsPayload, error) {
	return common.FromSettings(rs.engine.Settings()), nil
}

// settingsUpdate validates and applies new settings, then persists them so
// they survive a daemon restart. A validation failure leaves the engine
// settings untouched.
func (rs *RPCServer) settingsUpdate(_ context.Context, p *common.SettingsPayload) (*common.EmptyResult, error) {
	s := p.ToSettings()
	if err := rs.engine.UpdateSettings(s); err != nil {
		return nil, rpcError(err)
	}
	if rs.saveSettings != nil {
		if err := rs.saveSettings(s); err != nil {
			return nil, err
		}
	}
	return &common.EmptyResult{}, nil
}

// scheduleAdd registers a future session start. Exactly one of start_at
// (RFC 3339) or cron_expr must be provided; cron schedules recur.
func (rs *RPCServer) scheduleAdd(_ context.Context, p *common.ScheduleParams) (*common.ScheduleResult, error) {
	if rs.sched == nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "scheduling unavailable"}
	}
	if (p.StartAt == "") == (p.CronExpr == "") {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "exactly one of start_at or cron_expr is required"}
	}

	now := time.Now()
	var triggerAt time.Time
	if p.StartAt != "" {
		t, err := time.Parse(time.RFC3339, p.StartAt)
		if err != nil {
			return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "invalid start_at: " + err.Error()}
		}
		if !t.After(now) {
			return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "start_at must be in the future"}
		}
		triggerAt = t
	} else {
		if !scheduler.HasOccurrenceWithinYear(p.CronExpr, now) {
			return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "cron_expr is invalid or has no occurrence within a year"}
		}
		t, err := scheduler.NextOccurrence(p.CronExpr, now)
		if err != nil {
			return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "invalid cron_expr: " + err.Error()}
		}
		triggerAt = t
	}

	id := uuid.NewString()
	rs.sched.Add(scheduler.StartEvent{
		ID:        id,
		TriggerAt: triggerAt,
		CronExpr:  p.CronExpr,
	})
	return &common.ScheduleResult{
		ScheduleID: id,
		TriggerAt:  triggerAt,
		CronExpr:   p.CronExpr,
	}, nil
}

// scheduleRemove cancels a pending schedule by ID.
func (rs *RPCServer) scheduleRemove(_ context.Context, p *common.UnscheduleParams) (*common.EmptyResult, error) {
	if rs.sched == nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "scheduling unavailable"}
	}
	if p.ScheduleID == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: schedule_id"}
	}
	found := false
	for _, e := range rs.sched.List() {
		if e.ID == p.ScheduleID {
			found = true
			break
		}
	}
	if !found {
		return nil, &jrpc2.Error{Code: codeNoSession, Message: "schedule not found"}
	}
	rs.sched.Remove(p.ScheduleID)
	return &common.EmptyResult{}, nil
}

// scheduleList returns all pending schedules, earliest first.
func (rs *RPCServer) scheduleList(_ context.Context) (*common.SchedulesResult, error) {
	res := &common.SchedulesResult{Schedules: []*common.ScheduleResult{}}
	if rs.sched == nil {
		return res, nil
	}
	for _, e := range rs.sched.List() {
		res.Schedules = append(res.Schedules, &common.ScheduleResult{
			ScheduleID: e.ID,
			TriggerAt:  e.TriggerAt,
			CronExpr:   e.CronExpr,
		})
	}
	return res, nil
}

// Close shuts down the jrpc2 bridge, releasing internal goroutines.
func (rs *RPCServer) Close() {
	rs.bridge.Close()
}
