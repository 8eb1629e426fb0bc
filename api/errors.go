package api

import (
	"errors"
	"fmt"

	"github.com/wfunc/soundbeats/game"
	"github.com/wfunc/soundbeats/instance"
)

// Error codes returned to callers.
const (
	CodeNotFound        = "not_found"
	CodeUnauthorized    = "unauthorized"
	CodeNoActiveGame    = "no_active_game"
	CodeNoActiveRound   = "no_active_round"
	CodeTeamNotFound    = "team_not_found"
	CodeInvalidArgument = "invalid_argument"
	CodeUnavailable     = "unavailable"
	CodeOperationFailed = "operation_failed"
	CodeUnknownCommand  = "unknown_command"
)

// Error is a structured command failure.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func newError(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// toError maps any failure to a structured error.
func toError(err error) *Error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, instance.ErrNotFound):
		return newError(CodeNotFound, "Configuration entry not found")
	case errors.Is(err, game.ErrNoActiveGame):
		return newError(CodeNoActiveGame, "No active game")
	case errors.Is(err, game.ErrNoActiveRound):
		return newError(CodeNoActiveRound, "No active round")
	case errors.Is(err, game.ErrTeamNotFound):
		return newError(CodeTeamNotFound, "Team not found")
	case errors.Is(err, game.ErrInvalidArgument):
		return newError(CodeInvalidArgument, "%s", err.Error())
	default:
		return newError(CodeOperationFailed, "%s", err.Error())
	}
}
