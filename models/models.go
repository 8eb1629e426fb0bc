// models/models.go
package models

import (
	"time"
)

// Team is one competing team in a game.
type Team struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Score        int     `json:"score"`
	CurrentGuess *int    `json:"current_guess"`
	HasBet       bool    `json:"has_bet"`
	AssignedUser *string `json:"assigned_user"`
}

// Song is the item played in a round. Year is the answer teams guess.
type Song struct {
	ID          int      `json:"id"`
	URL         string   `json:"url,omitempty"`
	Year        int      `json:"year" validate:"min=1900,max=2030"`
	Title       string   `json:"song,omitempty"`
	Artist      string   `json:"artist,omitempty"`
	PlaylistIDs []string `json:"playlist_ids,omitempty"`
}

// RoundRecord is the outcome of one finished round.
type RoundRecord struct {
	RoundNumber int             `json:"round_number"`
	SongID      int             `json:"song_id"`
	TeamGuesses map[string]int  `json:"team_guesses"`
	TeamBets    map[string]bool `json:"team_bets"`
	TeamScores  map[string]int  `json:"team_scores"`
	ActualYear  int             `json:"actual_year"`
	Timestamp   time.Time       `json:"timestamp"`
}

// GameState is the persisted state of one game.
type GameState struct {
	GameID        string        `json:"game_id"`
	Teams         []*Team       `json:"teams"`
	CurrentRound  int           `json:"current_round"`
	RoundsPlayed  []RoundRecord `json:"rounds_played"`
	PlaylistID    string        `json:"playlist_id"`
	PlayedSongIDs []int         `json:"played_song_ids"`
	TimerSeconds  int           `json:"timer_seconds"`
	IsActive      bool          `json:"is_active"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Team returns the team with the given id, or nil.
func (g *GameState) Team(id string) *Team {
	for _, t := range g.Teams {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TeamOfUser returns the team the user is assigned to, or nil.
func (g *GameState) TeamOfUser(userID string) *Team {
	for _, t := range g.Teams {
		if t.AssignedUser != nil && *t.AssignedUser == userID {
			return t
		}
	}
	return nil
}

// HighscoreEntry is a team's result normalised by the number of rounds played.
type HighscoreEntry struct {
	TeamName      string    `json:"team_name"`
	ScorePerRound float64   `json:"score_per_round"`
	RoundsPlayed  int       `json:"rounds_played"`
	Date          time.Time `json:"date"`
	PlaylistID    string    `json:"playlist_id"`
}

// MaxHighscoresPerRound bounds each list in HighscoreTracker.ByRound.
const MaxHighscoresPerRound = 10

// HighscoreTracker keeps the best entries per round count and overall.
type HighscoreTracker struct {
	ByRound     map[int][]HighscoreEntry `json:"by_round"`
	AllTimeBest *HighscoreEntry          `json:"all_time_best"`
}

// NewHighscoreTracker returns an empty tracker.
func NewHighscoreTracker() *HighscoreTracker {
	return &HighscoreTracker{ByRound: make(map[int][]HighscoreEntry)}
}
