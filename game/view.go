package game

import (
	"github.com/wfunc/soundbeats/models"
)

// StateView is the read projection of a store.
type StateView struct {
	Active                bool                   `json:"active"`
	GameID                string                 `json:"game_id"`
	Teams                 []models.Team          `json:"teams,omitempty"`
	CurrentRound          int                    `json:"current_round"`
	RoundActive           bool                   `json:"round_active"`
	TimerRemaining        int                    `json:"timer_remaining"`
	TimerSeconds          int                    `json:"timer_seconds,omitempty"`
	PlaylistID            string                 `json:"playlist_id,omitempty"`
	CurrentSong           *models.Song           `json:"current_song"`
	HighscoreCurrentRound *models.HighscoreEntry `json:"highscore_current_round"`
}

// FilteredView adds the teams a given user may control.
type FilteredView struct {
	StateView
	UserTeamID      string   `json:"user_team_id,omitempty"`
	CanControlTeams []string `json:"can_control_teams"`
}

// CanControl reports whether the user may act for teamID.
func (v FilteredView) CanControl(teamID string) bool {
	for _, id := range v.CanControlTeams {
		if id == teamID {
			return true
		}
	}
	return false
}

// HighscoresView is the leaderboard projection.
type HighscoresView struct {
	AllTimeBest *models.HighscoreEntry          `json:"all_time_best"`
	ByRound     map[int][]models.HighscoreEntry `json:"by_round"`
}

func cloneTeam(t *models.Team) models.Team {
	out := *t
	if t.CurrentGuess != nil {
		g := *t.CurrentGuess
		out.CurrentGuess = &g
	}
	if t.AssignedUser != nil {
		u := *t.AssignedUser
		out.AssignedUser = &u
	}
	return out
}

func cloneSong(s *models.Song) *models.Song {
	if s == nil {
		return nil
	}
	out := *s
	out.PlaylistIDs = append([]string(nil), s.PlaylistIDs...)
	return &out
}
