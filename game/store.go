// Package game holds the authoritative state of one trivia game per instance.
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/wfunc/soundbeats/broadcast"
	"github.com/wfunc/soundbeats/logger"
	"github.com/wfunc/soundbeats/models"
	"github.com/wfunc/soundbeats/monitor"
	"github.com/wfunc/soundbeats/persistence"
	"github.com/wfunc/soundbeats/scoring"
	"github.com/wfunc/soundbeats/timer"
)

// 错误定义
var (
	ErrNoActiveGame    = errors.New("no active game")
	ErrNoActiveRound   = errors.New("no active round")
	ErrTeamNotFound    = errors.New("team not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	StorageVersion      = 1
	MinTeams            = 1
	MaxTeams            = 5
	MinTimerSeconds     = 5
	MaxTimerSeconds     = 300
	DefaultTimerSeconds = 30
	DefaultTickInterval = time.Second
	saveTimeout         = 5 * time.Second
)

// Actions carried by game_state_changed events.
const (
	ActionGameStarted       = "game_started"
	ActionRoundStarted      = "round_started"
	ActionGuessSubmitted    = "guess_submitted"
	ActionTeamUpdated       = "team_updated"
	ActionUserAssigned      = "user_assigned"
	ActionRoundEnded        = "round_ended"
	ActionReadyForNextRound = "ready_for_next_round"
	ReasonGameReset         = "game_reset"
)

// GameStateKey is the storage key of the game document of an instance.
func GameStateKey(instanceID string) string {
	return fmt.Sprintf("soundbeats.%s.game_state", instanceID)
}

// HighscoresKey is the storage key of the highscore document of an instance.
func HighscoresKey(instanceID string) string {
	return fmt.Sprintf("soundbeats.%s.highscores", instanceID)
}

// NewGameParams configures a new game. TeamNames wins over TeamCount.
type NewGameParams struct {
	TeamCount    int
	TeamNames    []string
	PlaylistID   string
	TimerSeconds int
}

type event struct {
	topic   string
	payload map[string]interface{}
	users   []string // empty reaches every subscriber
}

type Option func(*Store)

func WithPublisher(p broadcast.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithPersistence(p persistence.Store) Option {
	return func(s *Store) { s.persist = p }
}

func WithRules(r scoring.Rules) Option {
	return func(s *Store) { s.rules = r }
}

func WithTickInterval(d time.Duration) Option {
	return func(s *Store) { s.tick = d }
}

func WithMonitor(m *monitor.Monitor) Option {
	return func(s *Store) { s.monitor = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store owns the GameState and HighscoreTracker of one instance. Every
// mutation runs under one lock; its events are queued under that lock and
// published in queue order after it is released.
type Store struct {
	instanceID string

	mutex          sync.RWMutex
	state          *models.GameState
	tracker        *models.HighscoreTracker
	phase          Phase
	currentSong    *models.Song
	timerRemaining int
	roundToken     uint64
	roundTimer     *timer.Handle
	outbox         []event

	// publishMutex is taken before mutex, never while holding it.
	publishMutex sync.Mutex

	timers    *timer.TimerManager
	persist   persistence.Store
	publisher broadcast.Publisher
	rules     scoring.Rules
	tick      time.Duration
	now       func() time.Time
	monitor   *monitor.Monitor
}

func NewStore(instanceID string, timers *timer.TimerManager, opts ...Option) *Store {
	s := &Store{
		instanceID: instanceID,
		tracker:    models.NewHighscoreTracker(),
		timers:     timers,
		publisher:  broadcast.Discard,
		rules:      scoring.DefaultRules,
		tick:       DefaultTickInterval,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadState restores the game and highscores. Failures are logged.
func (s *Store) LoadState(ctx context.Context) {
	if s.persist == nil {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var state models.GameState
	err := persistence.LoadJSON(ctx, s.persist, GameStateKey(s.instanceID), StorageVersion, &state)
	switch {
	case err == nil:
		s.state = &state
		logger.Log.Debugw("loaded game state", "instance", s.instanceID, "game_id", state.GameID)
	case errors.Is(err, persistence.ErrRecordNotFound):
	default:
		logger.Log.Errorw("load game state failed", "instance", s.instanceID, "error", err)
	}

	tracker := models.NewHighscoreTracker()
	err = persistence.LoadJSON(ctx, s.persist, HighscoresKey(s.instanceID), StorageVersion, tracker)
	switch {
	case err == nil:
		if tracker.ByRound == nil {
			tracker.ByRound = make(map[int][]models.HighscoreEntry)
		}
		s.tracker = tracker
	case errors.Is(err, persistence.ErrRecordNotFound):
	default:
		logger.Log.Errorw("load highscores failed", "instance", s.instanceID, "error", err)
	}
}

// SaveState writes the game and highscores. Failures are logged.
func (s *Store) SaveState(ctx context.Context) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) {
	if s.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	if s.state != nil {
		if err := persistence.SaveJSON(ctx, s.persist, GameStateKey(s.instanceID), StorageVersion, s.state); err != nil {
			logger.Log.Errorw("save game state failed", "instance", s.instanceID, "error", err)
		}
	}
	if err := persistence.SaveJSON(ctx, s.persist, HighscoresKey(s.instanceID), StorageVersion, s.tracker); err != nil {
		logger.Log.Errorw("save highscores failed", "instance", s.instanceID, "error", err)
	}
}

// NewGame replaces the live game.
func (s *Store) NewGame(ctx context.Context, params NewGameParams) (*models.GameState, error) {
	names, err := teamNames(params)
	if err != nil {
		return nil, err
	}
	timerSeconds := params.TimerSeconds
	if timerSeconds == 0 {
		timerSeconds = DefaultTimerSeconds
	}
	if timerSeconds < MinTimerSeconds || timerSeconds > MaxTimerSeconds {
		return nil, pkgerrors.Wrapf(ErrInvalidArgument, "timer_seconds must be between %d and %d", MinTimerSeconds, MaxTimerSeconds)
	}

	s.mutex.Lock()
	s.cancelRoundLocked()

	teams := make([]*models.Team, len(names))
	for i, name := range names {
		teams[i] = &models.Team{ID: fmt.Sprintf("team_%d", i), Name: name}
	}
	s.state = &models.GameState{
		GameID:        uuid.New().String(),
		Teams:         teams,
		RoundsPlayed:  []models.RoundRecord{},
		PlaylistID:    params.PlaylistID,
		PlayedSongIDs: []int{},
		TimerSeconds:  timerSeconds,
		IsActive:      true,
		CreatedAt:     s.now(),
	}
	s.currentSong = nil
	s.timerRemaining = 0
	s.saveLocked(ctx)

	events := []event{s.changed(ActionGameStarted, map[string]interface{}{"team_count": len(teams)})}
	snapshot := *s.state
	snapshot.Teams = make([]*models.Team, len(teams))
	for i, team := range teams {
		copied := cloneTeam(team)
		snapshot.Teams[i] = &copied
	}
	s.queueLocked(events...)
	s.mutex.Unlock()

	s.flush()
	logger.Log.Infow("new game", "instance", s.instanceID, "game_id", snapshot.GameID, "teams", len(teams))
	return &snapshot, nil
}

func teamNames(params NewGameParams) ([]string, error) {
	if len(params.TeamNames) > 0 {
		if len(params.TeamNames) > MaxTeams {
			return nil, pkgerrors.Wrapf(ErrInvalidArgument, "at most %d teams", MaxTeams)
		}
		names := make([]string, len(params.TeamNames))
		for i, name := range params.TeamNames {
			if name == "" {
				name = fmt.Sprintf("Team %d", i+1)
			}
			names[i] = name
		}
		return names, nil
	}
	if params.TeamCount < MinTeams || params.TeamCount > MaxTeams {
		return nil, pkgerrors.Wrapf(ErrInvalidArgument, "team_count must be between %d and %d", MinTeams, MaxTeams)
	}
	names := make([]string, params.TeamCount)
	for i := range names {
		names[i] = fmt.Sprintf("Team %d", i+1)
	}
	return names, nil
}

// StartRound begins a round for song. A running round is superseded without scoring.
func (s *Store) StartRound(ctx context.Context, song models.Song) error {
	s.mutex.Lock()
	if s.state == nil || !s.state.IsActive {
		s.mutex.Unlock()
		return ErrNoActiveGame
	}
	if !canTransition(s.phase, PhaseActive) {
		s.mutex.Unlock()
		return fmt.Errorf("cannot start round from %s", s.phase)
	}
	s.cancelRoundLocked()

	s.state.CurrentRound++
	for _, team := range s.state.Teams {
		team.CurrentGuess = nil
		team.HasBet = false
	}
	s.currentSong = cloneSong(&song)
	s.state.PlayedSongIDs = append(s.state.PlayedSongIDs, song.ID)

	s.phase = PhaseActive
	s.timerRemaining = s.state.TimerSeconds
	s.roundToken++
	token := s.roundToken
	if s.timers != nil {
		s.roundTimer = s.timers.Schedule(s.tick, s.tick, func() { s.onTick(token) })
	}

	events := []event{s.changed(ActionRoundStarted, map[string]interface{}{
		"current_round": s.state.CurrentRound,
		"timer_seconds": s.state.TimerSeconds,
	})}
	round := s.state.CurrentRound
	s.monitor.SetRoundActive(s.instanceID, true)
	s.queueLocked(events...)
	s.mutex.Unlock()

	s.flush()
	logger.Log.Debugw("round started", "instance", s.instanceID, "round", round, "song_id", song.ID)
	return nil
}

// SubmitGuess records a team's guess for the running round. Resubmission overwrites.
func (s *Store) SubmitGuess(ctx context.Context, teamID string, year int, hasBet bool) error {
	s.mutex.Lock()
	if s.phase != PhaseActive || s.state == nil {
		s.mutex.Unlock()
		return ErrNoActiveRound
	}
	team := s.state.Team(teamID)
	if team == nil {
		s.mutex.Unlock()
		return ErrTeamNotFound
	}
	guess := year
	team.CurrentGuess = &guess
	team.HasBet = hasBet

	events := []event{s.changed(ActionGuessSubmitted, map[string]interface{}{
		"team_id": teamID,
		"year":    year,
		"has_bet": hasBet,
	})}
	s.queueLocked(events...)
	s.mutex.Unlock()

	s.monitor.IncGuesses(s.instanceID)
	s.flush()
	return nil
}

func (s *Store) UpdateTeamName(ctx context.Context, teamID, name string) error {
	s.mutex.Lock()
	team, err := s.teamLocked(teamID)
	if err != nil {
		s.mutex.Unlock()
		return err
	}
	team.Name = name
	s.saveLocked(ctx)
	events := []event{s.changed(ActionTeamUpdated, map[string]interface{}{"team_id": teamID})}
	s.queueLocked(events...)
	s.mutex.Unlock()

	s.flush()
	return nil
}

// AssignUserToTeam gives userID control of teamID and removes it from any other team.
func (s *Store) AssignUserToTeam(ctx context.Context, teamID, userID string) error {
	s.mutex.Lock()
	team, err := s.teamLocked(teamID)
	if err != nil {
		s.mutex.Unlock()
		return err
	}
	for _, other := range s.state.Teams {
		if other.AssignedUser != nil && *other.AssignedUser == userID {
			other.AssignedUser = nil
		}
	}
	user := userID
	team.AssignedUser = &user
	s.saveLocked(ctx)
	events := []event{
		s.changed(ActionUserAssigned, map[string]interface{}{
			"team_id": teamID,
			"user_id": userID,
		}),
		{
			topic: broadcast.TopicTeamAssigned,
			payload: map[string]interface{}{
				"game_id":   s.state.GameID,
				"team_id":   teamID,
				"team_name": team.Name,
			},
			users: []string{userID},
		},
	}
	s.queueLocked(events...)
	s.mutex.Unlock()

	s.flush()
	return nil
}

func (s *Store) teamLocked(teamID string) (*models.Team, error) {
	if s.state == nil {
		return nil, ErrNoActiveGame
	}
	team := s.state.Team(teamID)
	if team == nil {
		return nil, ErrTeamNotFound
	}
	return team, nil
}

// EndRound scores the running round. It is a no-op when no round is running.
func (s *Store) EndRound(ctx context.Context) error {
	s.mutex.Lock()
	events := s.endRoundLocked(ctx)
	s.queueLocked(events...)
	s.mutex.Unlock()

	s.flush()
	return nil
}

func (s *Store) endRoundLocked(ctx context.Context) []event {
	if s.phase != PhaseActive || s.currentSong == nil || s.state == nil {
		return nil
	}
	s.cancelRoundLocked()

	song := s.currentSong
	record := models.RoundRecord{
		RoundNumber: s.state.CurrentRound,
		SongID:      song.ID,
		TeamGuesses: make(map[string]int),
		TeamBets:    make(map[string]bool),
		TeamScores:  make(map[string]int),
		ActualYear:  song.Year,
		Timestamp:   s.now(),
	}
	for _, team := range s.state.Teams {
		if team.CurrentGuess == nil {
			continue
		}
		delta := s.rules.Score(*team.CurrentGuess, song.Year, team.HasBet)
		team.Score += delta
		record.TeamGuesses[team.ID] = *team.CurrentGuess
		record.TeamBets[team.ID] = team.HasBet
		record.TeamScores[team.ID] = delta
	}
	s.state.RoundsPlayed = append(s.state.RoundsPlayed, record)
	s.updateHighscoresLocked()
	s.saveLocked(ctx)

	s.monitor.IncRoundsEnded(s.instanceID)
	logger.Log.Infow("round ended", "instance", s.instanceID, "round", record.RoundNumber, "actual_year", song.Year)

	return []event{
		{
			topic: broadcast.TopicRoundEnded,
			payload: map[string]interface{}{
				"game_id":       s.state.GameID,
				"current_round": s.state.CurrentRound,
				"actual_year":   song.Year,
				"song_info":     cloneSong(song),
				"round_scores":  record.TeamScores,
			},
		},
		s.changed(ActionRoundEnded, nil),
	}
}

// updateHighscoresLocked records each team's score per round played so far.
func (s *Store) updateHighscoresLocked() {
	round := s.state.CurrentRound
	if round <= 0 {
		return
	}
	now := s.now()
	for _, team := range s.state.Teams {
		s.tracker.Record(round, models.HighscoreEntry{
			TeamName:      team.Name,
			ScorePerRound: float64(team.Score) / float64(round),
			RoundsPlayed:  round,
			Date:          now,
			PlaylistID:    s.state.PlaylistID,
		})
	}
}

// NextRound clears the current song and countdown so a new StartRound is
// awaited. A running round is scored first.
func (s *Store) NextRound(ctx context.Context) error {
	s.mutex.Lock()
	if s.state == nil {
		s.mutex.Unlock()
		return ErrNoActiveGame
	}
	events := s.endRoundLocked(ctx)
	s.currentSong = nil
	s.timerRemaining = 0
	events = append(events, s.changed(ActionReadyForNextRound, nil))
	s.queueLocked(events...)
	s.mutex.Unlock()

	s.flush()
	return nil
}

// ResetGame ends the live game and removes its stored document.
func (s *Store) ResetGame(ctx context.Context) error {
	s.mutex.Lock()
	if s.state == nil {
		s.mutex.Unlock()
		return nil
	}
	s.cancelRoundLocked()
	gameID := s.state.GameID
	s.state = nil
	s.currentSong = nil
	s.timerRemaining = 0
	if s.persist != nil {
		if err := s.persist.Delete(ctx, GameStateKey(s.instanceID)); err != nil && !errors.Is(err, persistence.ErrRecordNotFound) {
			logger.Log.Errorw("delete game state failed", "instance", s.instanceID, "error", err)
		}
	}
	events := []event{{
		topic:   broadcast.TopicGameEnded,
		payload: map[string]interface{}{"game_id": gameID, "reason": ReasonGameReset},
	}}
	s.queueLocked(events...)
	s.mutex.Unlock()

	s.flush()
	logger.Log.Infow("game reset", "instance", s.instanceID, "game_id", gameID)
	return nil
}

// cancelRoundLocked stops the round timer and returns to idle without scoring.
func (s *Store) cancelRoundLocked() {
	if s.roundTimer != nil {
		s.roundTimer.Cancel()
		s.roundTimer = nil
	}
	if s.phase == PhaseActive {
		s.monitor.SetRoundActive(s.instanceID, false)
	}
	s.roundToken++
	s.phase = PhaseIdle
}

// onTick runs once per tick interval while the round identified by token is live.
func (s *Store) onTick(token uint64) {
	s.mutex.Lock()
	if s.phase != PhaseActive || s.roundToken != token || s.state == nil {
		s.mutex.Unlock()
		return
	}
	s.timerRemaining--
	if s.timerRemaining < 0 {
		s.timerRemaining = 0
	}
	events := []event{{
		topic: broadcast.TopicTimerUpdate,
		payload: map[string]interface{}{
			"game_id":         s.state.GameID,
			"timer_remaining": s.timerRemaining,
		},
	}}
	if s.timerRemaining == 0 {
		events = append(events, s.endRoundLocked(context.Background())...)
	}
	s.queueLocked(events...)
	s.mutex.Unlock()

	s.flush()
}

func (s *Store) changed(action string, data map[string]interface{}) event {
	payload := map[string]interface{}{"action": action}
	if s.state != nil {
		payload["game_id"] = s.state.GameID
	} else {
		payload["game_id"] = nil
	}
	for k, v := range data {
		payload[k] = v
	}
	return event{topic: broadcast.TopicGameStateChanged, payload: payload}
}

// queueLocked appends events to the outbox. Callers flush after unlocking.
func (s *Store) queueLocked(events ...event) {
	s.outbox = append(s.outbox, events...)
}

// flush publishes the outbox in queue order. One goroutine publishes at a
// time; when flush returns, every event queued before the call is out.
func (s *Store) flush() {
	s.publishMutex.Lock()
	defer s.publishMutex.Unlock()

	for {
		s.mutex.Lock()
		batch := s.outbox
		s.outbox = nil
		s.mutex.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			var payload interface{} = ev.payload
			if len(ev.users) > 0 {
				payload = broadcast.ToUsers(ev.payload, ev.users...)
			}
			if err := s.publisher.Publish(ev.topic, payload); err != nil {
				logger.Log.Warnw("publish event failed", "instance", s.instanceID, "topic", ev.topic, "error", err)
			}
		}
	}
}

// State returns the full projection.
func (s *Store) State() StateView {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.viewLocked()
}

func (s *Store) viewLocked() StateView {
	if s.state == nil {
		return StateView{}
	}
	view := StateView{
		Active:         s.state.IsActive,
		GameID:         s.state.GameID,
		Teams:          make([]models.Team, len(s.state.Teams)),
		CurrentRound:   s.state.CurrentRound,
		RoundActive:    s.phase == PhaseActive,
		TimerRemaining: s.timerRemaining,
		TimerSeconds:   s.state.TimerSeconds,
		PlaylistID:     s.state.PlaylistID,
	}
	for i, team := range s.state.Teams {
		view.Teams[i] = cloneTeam(team)
	}
	if s.phase != PhaseActive {
		view.CurrentSong = cloneSong(s.currentSong)
	}
	view.HighscoreCurrentRound = s.tracker.Best(s.state.CurrentRound)
	return view
}

// FilteredState returns the projection for userID with the teams it controls.
func (s *Store) FilteredState(userID string) FilteredView {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	view := FilteredView{StateView: s.viewLocked(), CanControlTeams: []string{}}
	if s.state == nil || userID == "" {
		return view
	}
	if team := s.state.TeamOfUser(userID); team != nil {
		view.UserTeamID = team.ID
		view.CanControlTeams = []string{team.ID}
	}
	return view
}

func (s *Store) Highscores() HighscoresView {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	view := HighscoresView{ByRound: make(map[int][]models.HighscoreEntry, len(s.tracker.ByRound))}
	if s.tracker.AllTimeBest != nil {
		best := *s.tracker.AllTimeBest
		view.AllTimeBest = &best
	}
	for round, entries := range s.tracker.ByRound {
		view.ByRound[round] = append([]models.HighscoreEntry(nil), entries...)
	}
	return view
}

// RoundsPlayed returns a copy of the finished round records.
func (s *Store) RoundsPlayed() []models.RoundRecord {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.state == nil {
		return nil
	}
	return append([]models.RoundRecord(nil), s.state.RoundsPlayed...)
}

// Phase reports whether a round is running.
func (s *Store) Phase() Phase {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.phase
}
