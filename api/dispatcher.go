// Package api implements the soundbeats remote commands.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wfunc/soundbeats/auth"
	"github.com/wfunc/soundbeats/instance"
	"github.com/wfunc/soundbeats/logger"
	"github.com/wfunc/soundbeats/monitor"
)

// Prefix namespaces every command name.
const Prefix = "soundbeats/"

// Access is the permission a command requires.
type Access int

const (
	AccessAny Access = iota
	AccessPrivileged
	AccessTeam // privileged, or the user assigned to the target team
)

// Call is the resolved context a handler runs with.
type Call struct {
	Caller   auth.Caller
	Instance *instance.Instance
}

// Base carries the optional instance reference every command accepts.
type Base struct {
	InstanceID    string `json:"instance_id,omitempty"`
	ConfigEntryID string `json:"config_entry_id,omitempty"`
}

func (b *Base) instanceRef() string {
	if b.InstanceID != "" {
		return b.InstanceID
	}
	return b.ConfigEntryID
}

type scoped interface {
	instanceRef() string
}

type teamTargeted interface {
	targetTeam() string
}

type handler func(ctx context.Context, caller auth.Caller, raw json.RawMessage) (interface{}, error)

// Dispatcher routes command names to handlers.
type Dispatcher struct {
	instances *instance.Manager
	validate  *validator.Validate
	monitor   *monitor.Monitor
	handlers  map[string]handler
}

func NewDispatcher(instances *instance.Manager, mon *monitor.Monitor) *Dispatcher {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	d := &Dispatcher{
		instances: instances,
		validate:  v,
		monitor:   mon,
		handlers:  make(map[string]handler),
	}
	d.registerCommands()
	return d
}

// Commands lists the registered command names.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs one command. It never panics; every failure comes back as *Error.
func (d *Dispatcher) Execute(ctx context.Context, caller auth.Caller, name string, raw json.RawMessage) (result interface{}, apiErr *Error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorw("command panicked", "command", name, "panic", r)
			result, apiErr = nil, newError(CodeOperationFailed, "internal error")
		}
		outcome := monitor.OutcomeOK
		if apiErr != nil {
			outcome = monitor.OutcomeError
		}
		d.monitor.ObserveCommand(name, outcome, time.Since(start))
	}()

	h, ok := d.handlers[name]
	if !ok {
		return nil, newError(CodeUnknownCommand, "Unknown command: %s", name)
	}
	res, err := h(ctx, caller, raw)
	if err != nil {
		apiErr = toError(err)
		if apiErr.Code == CodeOperationFailed {
			logger.Log.Errorw("command failed", "command", name, "user", caller.UserID, "error", err)
		} else {
			logger.Log.Debugw("command rejected", "command", name, "user", caller.UserID, "code", apiErr.Code)
		}
		return nil, apiErr
	}
	return res, nil
}

// register wires a typed handler: decode and validate T, resolve the
// instance, run the access guard, then call fn.
func register[T any](d *Dispatcher, name string, access Access, fn func(ctx context.Context, call *Call, args *T) (interface{}, error)) {
	d.handlers[Prefix+name] = func(ctx context.Context, caller auth.Caller, raw json.RawMessage) (interface{}, error) {
		args := new(T)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, args); err != nil {
				return nil, newError(CodeInvalidArgument, "malformed arguments: %v", err)
			}
		}
		if err := d.validate.Struct(args); err != nil {
			return nil, validationError(err)
		}

		ref := ""
		if s, ok := any(args).(scoped); ok {
			ref = s.instanceRef()
		}
		inst, err := d.instances.Resolve(ref)
		if err != nil {
			if ref == "" {
				return nil, newError(CodeNotFound, "No Soundbeats instance configured")
			}
			return nil, err
		}

		teamID := ""
		if t, ok := any(args).(teamTargeted); ok {
			teamID = t.targetTeam()
		}
		if err := authorize(caller, access, inst, teamID); err != nil {
			return nil, err
		}
		return fn(ctx, &Call{Caller: caller, Instance: inst}, args)
	}
}

// authorize is the single permission guard for every command.
func authorize(caller auth.Caller, access Access, inst *instance.Instance, teamID string) error {
	if caller.IsAdmin || access == AccessAny {
		return nil
	}
	switch access {
	case AccessPrivileged:
		return newError(CodeUnauthorized, "Admin access required")
	case AccessTeam:
		if caller.UserID != "" && inst.Game.FilteredState(caller.UserID).CanControl(teamID) {
			return nil
		}
		return newError(CodeUnauthorized, "You can only control your assigned team")
	default:
		return newError(CodeUnauthorized, "Access denied")
	}
}

func validationError(err error) *Error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return newError(CodeInvalidArgument, "%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return newError(CodeInvalidArgument, "%s", strings.Join(msgs, "; "))
}
