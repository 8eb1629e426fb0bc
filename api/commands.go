package api

import (
	"context"
	"time"

	"github.com/wfunc/soundbeats/game"
	"github.com/wfunc/soundbeats/logger"
	"github.com/wfunc/soundbeats/media"
	"github.com/wfunc/soundbeats/models"
)

// Command names without Prefix.
const (
	CmdGetGameState     = "get_game_state"
	CmdNewGame          = "new_game"
	CmdSubmitGuess      = "submit_guess"
	CmdStartRound       = "start_round"
	CmdNextRound        = "next_round"
	CmdEndRound         = "end_round"
	CmdResetGame        = "reset_game"
	CmdUpdateTeamName   = "update_team_name"
	CmdAssignUserToTeam = "assign_user_to_team"
	CmdGetHighscores    = "get_highscores"
	CmdMediaControl     = "media_control"
	CmdGetMediaSources  = "get_media_sources"
	CmdSubscribe        = "subscribe"
)

// Media actions.
const (
	ActionPlay         = "play"
	ActionPause        = "pause"
	ActionStop         = "stop"
	ActionVolume       = "volume"
	ActionSelectSource = "select_source"
	defaultVolume      = 0.5
)

type SuccessResult struct {
	Success bool `json:"success"`
}

var success = SuccessResult{Success: true}

type NewGameResult struct {
	Success   bool   `json:"success"`
	GameID    string `json:"game_id"`
	TeamCount int    `json:"team_count"`
}

type SourcesResult struct {
	Sources []string `json:"sources"`
}

type adminState struct {
	game.StateView
	MediaPlayer *media.PlayerState `json:"media_player,omitempty"`
}

type userState struct {
	game.FilteredView
	MediaPlayer *media.PlayerState `json:"media_player,omitempty"`
}

type GetGameStateArgs struct {
	Base
}

type NewGameArgs struct {
	Base
	TeamCount    int      `json:"team_count" validate:"omitempty,min=1,max=5"`
	TeamNames    []string `json:"team_names" validate:"omitempty,max=5,dive,max=50"`
	PlaylistID   string   `json:"playlist_id" validate:"max=200"`
	TimerSeconds int      `json:"timer_seconds" validate:"omitempty,min=5,max=300"`
}

type SubmitGuessArgs struct {
	Base
	TeamID string `json:"team_id" validate:"required"`
	Year   int    `json:"year" validate:"required,min=1900,max=2030"`
	HasBet bool   `json:"has_bet"`
}

func (a *SubmitGuessArgs) targetTeam() string { return a.TeamID }

type StartRoundArgs struct {
	Base
	Song *models.Song `json:"song" validate:"required"`
}

type RoundArgs struct {
	Base
}

type UpdateTeamNameArgs struct {
	Base
	TeamID string `json:"team_id" validate:"required"`
	Name   string `json:"name" validate:"required,max=50"`
}

func (a *UpdateTeamNameArgs) targetTeam() string { return a.TeamID }

type AssignUserArgs struct {
	Base
	TeamID string `json:"team_id" validate:"required"`
	UserID string `json:"user_id" validate:"required"`
}

type MediaControlArgs struct {
	Base
	Action      string   `json:"action" validate:"required,oneof=play pause stop volume select_source"`
	VolumeLevel *float64 `json:"volume_level" validate:"omitempty,min=0,max=1"`
	Source      string   `json:"source" validate:"required_if=Action select_source"`
}

func (d *Dispatcher) registerCommands() {
	register(d, CmdGetGameState, AccessAny, d.getGameState)
	register(d, CmdNewGame, AccessPrivileged, d.newGame)
	register(d, CmdSubmitGuess, AccessTeam, d.submitGuess)
	register(d, CmdStartRound, AccessPrivileged, d.startRound)
	register(d, CmdNextRound, AccessPrivileged, d.nextRound)
	register(d, CmdEndRound, AccessPrivileged, d.endRound)
	register(d, CmdResetGame, AccessPrivileged, d.resetGame)
	register(d, CmdUpdateTeamName, AccessTeam, d.updateTeamName)
	register(d, CmdAssignUserToTeam, AccessPrivileged, d.assignUserToTeam)
	register(d, CmdGetHighscores, AccessAny, d.getHighscores)
	register(d, CmdMediaControl, AccessPrivileged, d.mediaControl)
	register(d, CmdGetMediaSources, AccessAny, d.getMediaSources)
}

// getGameState returns the full state to privileged callers and the
// filtered state to everyone else.
func (d *Dispatcher) getGameState(ctx context.Context, call *Call, args *GetGameStateArgs) (interface{}, error) {
	var player *media.PlayerState
	if call.Instance.Player != nil {
		ps := call.Instance.Player.CurrentState(ctx)
		player = &ps
	}
	if call.Caller.IsAdmin {
		return adminState{StateView: call.Instance.Game.State(), MediaPlayer: player}, nil
	}
	return userState{FilteredView: call.Instance.Game.FilteredState(call.Caller.UserID), MediaPlayer: player}, nil
}

func (d *Dispatcher) newGame(ctx context.Context, call *Call, args *NewGameArgs) (interface{}, error) {
	count := args.TeamCount
	if len(args.TeamNames) > 0 {
		count = len(args.TeamNames)
	}
	if count == 0 {
		return nil, newError(CodeInvalidArgument, "team_count or team_names is required")
	}
	if limit := call.Instance.TeamLimit(); count > limit {
		return nil, newError(CodeInvalidArgument, "at most %d teams allowed", limit)
	}
	timerSeconds := args.TimerSeconds
	if timerSeconds == 0 {
		timerSeconds = call.Instance.DefaultTimer()
	}

	state, err := call.Instance.Game.NewGame(ctx, game.NewGameParams{
		TeamCount:    args.TeamCount,
		TeamNames:    args.TeamNames,
		PlaylistID:   args.PlaylistID,
		TimerSeconds: timerSeconds,
	})
	if err != nil {
		return nil, err
	}
	return NewGameResult{Success: true, GameID: state.GameID, TeamCount: len(state.Teams)}, nil
}

func (d *Dispatcher) submitGuess(ctx context.Context, call *Call, args *SubmitGuessArgs) (interface{}, error) {
	if err := call.Instance.Game.SubmitGuess(ctx, args.TeamID, args.Year, args.HasBet); err != nil {
		return nil, err
	}
	return success, nil
}

// startRound starts the round, then plays the song on the instance's player.
// A playback failure does not fail the command.
func (d *Dispatcher) startRound(ctx context.Context, call *Call, args *StartRoundArgs) (interface{}, error) {
	if err := call.Instance.Game.StartRound(ctx, *args.Song); err != nil {
		return nil, err
	}
	if player := call.Instance.Player; player != nil && args.Song.URL != "" {
		duration := time.Duration(call.Instance.Game.State().TimerSeconds) * time.Second
		if res := player.PlaySnippet(ctx, args.Song.URL, duration); !res.Success {
			logger.Log.Warnw("failed to start music playback", "instance", call.Instance.ID, "error", res.Error)
		}
	}
	return success, nil
}

func (d *Dispatcher) nextRound(ctx context.Context, call *Call, args *RoundArgs) (interface{}, error) {
	if err := call.Instance.Game.NextRound(ctx); err != nil {
		return nil, err
	}
	return success, nil
}

func (d *Dispatcher) endRound(ctx context.Context, call *Call, args *RoundArgs) (interface{}, error) {
	if err := call.Instance.Game.EndRound(ctx); err != nil {
		return nil, err
	}
	return success, nil
}

func (d *Dispatcher) resetGame(ctx context.Context, call *Call, args *RoundArgs) (interface{}, error) {
	if err := call.Instance.Game.ResetGame(ctx); err != nil {
		return nil, err
	}
	if player := call.Instance.Player; player != nil {
		if res := player.Stop(ctx); !res.Success {
			logger.Log.Warnw("failed to stop playback on reset", "instance", call.Instance.ID, "error", res.Error)
		}
	}
	return success, nil
}

func (d *Dispatcher) updateTeamName(ctx context.Context, call *Call, args *UpdateTeamNameArgs) (interface{}, error) {
	if err := call.Instance.Game.UpdateTeamName(ctx, args.TeamID, args.Name); err != nil {
		return nil, err
	}
	return success, nil
}

func (d *Dispatcher) assignUserToTeam(ctx context.Context, call *Call, args *AssignUserArgs) (interface{}, error) {
	if err := call.Instance.Game.AssignUserToTeam(ctx, args.TeamID, args.UserID); err != nil {
		return nil, err
	}
	return success, nil
}

func (d *Dispatcher) getHighscores(ctx context.Context, call *Call, args *GetGameStateArgs) (interface{}, error) {
	return call.Instance.Game.Highscores(), nil
}

func (d *Dispatcher) mediaControl(ctx context.Context, call *Call, args *MediaControlArgs) (interface{}, error) {
	player := call.Instance.Player
	if player == nil {
		return nil, newError(CodeUnavailable, "No media player configured")
	}

	var res media.Result
	switch args.Action {
	case ActionPlay:
		res = player.Resume(ctx)
	case ActionPause:
		res = player.Pause(ctx)
	case ActionStop:
		res = player.Stop(ctx)
	case ActionVolume:
		level := defaultVolume
		if args.VolumeLevel != nil {
			level = *args.VolumeLevel
		}
		res = player.SetVolume(ctx, level)
	case ActionSelectSource:
		res = player.SelectSource(ctx, args.Source)
	default:
		return nil, newError(CodeInvalidArgument, "Unknown action: %s", args.Action)
	}
	if err := resultError(res); err != nil {
		return nil, err
	}
	return success, nil
}

func (d *Dispatcher) getMediaSources(ctx context.Context, call *Call, args *GetGameStateArgs) (interface{}, error) {
	player := call.Instance.Player
	if player == nil {
		return nil, newError(CodeUnavailable, "No media player configured")
	}
	sources, res := player.Sources(ctx)
	if err := resultError(res); err != nil {
		return nil, err
	}
	return SourcesResult{Sources: sources}, nil
}

func resultError(res media.Result) *Error {
	if res.Success {
		return nil
	}
	if res.Unavailable {
		return newError(CodeUnavailable, "%s", res.Error)
	}
	return newError(CodeOperationFailed, "%s", res.Error)
}
