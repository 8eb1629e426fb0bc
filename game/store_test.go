package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/soundbeats/broadcast"
	"github.com/wfunc/soundbeats/models"
	"github.com/wfunc/soundbeats/monitor"
	"github.com/wfunc/soundbeats/persistence"
	"github.com/wfunc/soundbeats/timer"
)

type published struct {
	topic   string
	payload map[string]interface{}
	users   []string
}

// MockPublisher records every event.
type MockPublisher struct {
	mu     sync.Mutex
	events []published
}

func (m *MockPublisher) Publish(topic string, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []string
	if t, ok := payload.(broadcast.Targeted); ok {
		users, payload = t.Users, t.Data
	}
	p, _ := payload.(map[string]interface{})
	m.events = append(m.events, published{topic: topic, payload: p, users: users})
	return nil
}

func (m *MockPublisher) all() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.events...)
}

func (m *MockPublisher) count(topic string) int {
	n := 0
	for _, ev := range m.all() {
		if ev.topic == topic {
			n++
		}
	}
	return n
}

func (m *MockPublisher) actions() []string {
	var out []string
	for _, ev := range m.all() {
		if ev.topic == broadcast.TopicGameStateChanged {
			out = append(out, ev.payload["action"].(string))
		}
	}
	return out
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *MockPublisher) {
	t.Helper()
	timers := timer.NewTimerManagerWithResolution(time.Millisecond)
	t.Cleanup(timers.Stop)
	pub := &MockPublisher{}
	opts = append([]Option{WithPublisher(pub), WithTickInterval(time.Hour)}, opts...)
	return NewStore("kitchen", timers, opts...), pub
}

func song(year int) models.Song {
	return models.Song{ID: year, URL: "spotify:track:x", Year: year, Title: "Song", Artist: "Artist"}
}

func TestNewGame_CreatesTeams(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()

	g, err := s.NewGame(ctx, NewGameParams{TeamCount: 3, PlaylistID: "80s", TimerSeconds: 30})
	require.NoError(t, err)
	require.Len(t, g.Teams, 3)
	assert.Equal(t, "team_0", g.Teams[0].ID)
	assert.Equal(t, "Team 1", g.Teams[0].Name)
	assert.Equal(t, "team_2", g.Teams[2].ID)
	assert.Equal(t, 0, g.CurrentRound)
	assert.True(t, g.IsActive)
	assert.NotEmpty(t, g.GameID)
	assert.Equal(t, []string{ActionGameStarted}, pub.actions())
	assert.Equal(t, 3, pub.all()[0].payload["team_count"])
}

func TestNewGame_Validation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 0})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.NewGame(ctx, NewGameParams{TeamCount: 6})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.NewGame(ctx, NewGameParams{TeamCount: 2, TimerSeconds: 4})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.NewGame(ctx, NewGameParams{TeamCount: 2, TimerSeconds: 301})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	g, err := s.NewGame(ctx, NewGameParams{TeamNames: []string{"Rockers", ""}})
	require.NoError(t, err)
	assert.Equal(t, "Rockers", g.Teams[0].Name)
	assert.Equal(t, "Team 2", g.Teams[1].Name)
	assert.Equal(t, DefaultTimerSeconds, g.TimerSeconds)
}

func TestNewGame_ResetsPreviousGame(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 2})
	require.NoError(t, err)
	require.NoError(t, s.StartRound(ctx, song(1985)))
	require.NoError(t, s.SubmitGuess(ctx, "team_0", 1985, false))
	require.NoError(t, s.EndRound(ctx))
	require.NoError(t, s.StartRound(ctx, song(1990)))

	g, err := s.NewGame(ctx, NewGameParams{TeamCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, g.CurrentRound)
	assert.Empty(t, g.RoundsPlayed)
	assert.Empty(t, g.PlayedSongIDs)

	view := s.State()
	assert.False(t, view.RoundActive)
	assert.Nil(t, view.CurrentSong)
	assert.Equal(t, 0, view.TimerRemaining)
	assert.Equal(t, 0, view.Teams[0].Score)
	assert.Equal(t, PhaseIdle, s.Phase())
}

func TestStartRound_RequiresGame(t *testing.T) {
	s, pub := newTestStore(t)
	assert.ErrorIs(t, s.StartRound(context.Background(), song(1985)), ErrNoActiveGame)
	assert.Empty(t, pub.all())
}

func TestStartRound_ClearsGuesses(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 2, TimerSeconds: 30})
	require.NoError(t, err)

	require.NoError(t, s.StartRound(ctx, song(1985)))
	require.NoError(t, s.SubmitGuess(ctx, "team_1", 1980, true))
	require.NoError(t, s.EndRound(ctx))
	require.NoError(t, s.StartRound(ctx, song(1975)))

	view := s.State()
	assert.Equal(t, 2, view.CurrentRound)
	assert.True(t, view.RoundActive)
	assert.Equal(t, 30, view.TimerRemaining)
	assert.Nil(t, view.Teams[1].CurrentGuess)
	assert.False(t, view.Teams[1].HasBet)
	assert.Nil(t, view.CurrentSong, "song is hidden while the round runs")
}

func TestSubmitGuess_Errors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.SubmitGuess(ctx, "team_0", 1985, false), ErrNoActiveRound)

	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 2})
	require.NoError(t, err)
	assert.ErrorIs(t, s.SubmitGuess(ctx, "team_0", 1985, false), ErrNoActiveRound)

	require.NoError(t, s.StartRound(ctx, song(1985)))
	assert.ErrorIs(t, s.SubmitGuess(ctx, "team_9", 1985, false), ErrTeamNotFound)
}

func TestSubmitGuess_Overwrites(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 1})
	require.NoError(t, err)
	require.NoError(t, s.StartRound(ctx, song(1985)))

	require.NoError(t, s.SubmitGuess(ctx, "team_0", 1970, true))
	require.NoError(t, s.SubmitGuess(ctx, "team_0", 1985, false))

	team := s.State().Teams[0]
	require.NotNil(t, team.CurrentGuess)
	assert.Equal(t, 1985, *team.CurrentGuess)
	assert.False(t, team.HasBet)
}

func TestTwoTeamScenario(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()
	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 2, TimerSeconds: 30})
	require.NoError(t, err)

	require.NoError(t, s.StartRound(ctx, song(1985)))
	require.NoError(t, s.SubmitGuess(ctx, "team_0", 1985, false))
	require.NoError(t, s.SubmitGuess(ctx, "team_1", 1988, false))
	require.NoError(t, s.EndRound(ctx))

	view := s.State()
	assert.Equal(t, 10, view.Teams[0].Score)
	assert.Equal(t, 5, view.Teams[1].Score)
	assert.Equal(t, 1, view.CurrentRound)
	assert.False(t, view.RoundActive)
	require.NotNil(t, view.CurrentSong)
	assert.Equal(t, 1985, view.CurrentSong.Year)

	rounds := s.RoundsPlayed()
	require.Len(t, rounds, 1)
	assert.Equal(t, 1, rounds[0].RoundNumber)
	assert.Equal(t, 1985, rounds[0].ActualYear)
	assert.Equal(t, map[string]int{"team_0": 10, "team_1": 5}, rounds[0].TeamScores)
	assert.Equal(t, map[string]int{"team_0": 1985, "team_1": 1988}, rounds[0].TeamGuesses)

	assert.Equal(t, 1, pub.count(broadcast.TopicRoundEnded))
	var ended published
	for _, ev := range pub.all() {
		if ev.topic == broadcast.TopicRoundEnded {
			ended = ev
		}
	}
	assert.Equal(t, 1985, ended.payload["actual_year"])
	assert.Equal(t, 1, ended.payload["current_round"])
	assert.Equal(t, map[string]int{"team_0": 10, "team_1": 5}, ended.payload["round_scores"])

	actions := pub.actions()
	assert.Equal(t, ActionRoundEnded, actions[len(actions)-1])
}

func TestEndRound_BetOutcomes(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 3})
	require.NoError(t, err)

	require.NoError(t, s.StartRound(ctx, song(1985)))
	require.NoError(t, s.SubmitGuess(ctx, "team_0", 1985, true))
	require.NoError(t, s.SubmitGuess(ctx, "team_1", 1986, true))
	require.NoError(t, s.EndRound(ctx))

	view := s.State()
	assert.Equal(t, 20, view.Teams[0].Score)
	assert.Equal(t, 0, view.Teams[1].Score)
	assert.Equal(t, 0, view.Teams[2].Score)
	_, guessed := s.RoundsPlayed()[0].TeamScores["team_2"]
	assert.False(t, guessed, "teams without a guess are not scored")
}

func TestEndRound_NoopWhenIdle(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EndRound(ctx))
	assert.Empty(t, pub.all())

	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 2})
	require.NoError(t, err)
	require.NoError(t, s.StartRound(ctx, song(1985)))
	require.NoError(t, s.EndRound(ctx))

	before := s.State()
	eventsBefore := len(pub.all())
	require.NoError(t, s.EndRound(ctx))
	assert.Equal(t, before, s.State())
	assert.Len(t, pub.all(), eventsBefore)
	assert.Len(t, s.RoundsPlayed(), 1)
}

func TestAssignUserToTeam_Exclusive(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.AssignUserToTeam(ctx, "team_0", "u1"), ErrNoActiveGame)

	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 2})
	require.NoError(t, err)
	assert.ErrorIs(t, s.AssignUserToTeam(ctx, "team_7", "u1"), ErrTeamNotFound)

	require.NoError(t, s.AssignUserToTeam(ctx, "team_0", "u1"))
	require.NoError(t, s.AssignUserToTeam(ctx, "team_1", "u1"))

	var notices []published
	for _, ev := range pub.all() {
		if ev.topic == broadcast.TopicTeamAssigned {
			notices = append(notices, ev)
		}
	}
	require.Len(t, notices, 2)
	assert.Equal(t, []string{"u1"}, notices[1].users)
	assert.Equal(t, "team_1", notices[1].payload["team_id"])
	assert.Equal(t, "Team 2", notices[1].payload["team_name"])

	view := s.State()
	assert.Nil(t, view.Teams[0].AssignedUser)
	require.NotNil(t, view.Teams[1].AssignedUser)
	assert.Equal(t, "u1", *view.Teams[1].AssignedUser)

	filtered := s.FilteredState("u1")
	assert.Equal(t, "team_1", filtered.UserTeamID)
	assert.True(t, filtered.CanControl("team_1"))
	assert.False(t, filtered.CanControl("team_0"))

	other := s.FilteredState("u2")
	assert.Empty(t, other.UserTeamID)
	assert.Equal(t, []string{}, other.CanControlTeams)
}

func TestUpdateTeamName(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.UpdateTeamName(ctx, "team_0", "x"), ErrNoActiveGame)
	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, s.UpdateTeamName(ctx, "team_3", "x"), ErrTeamNotFound)

	require.NoError(t, s.UpdateTeamName(ctx, "team_0", "Vinyl"))
	assert.Equal(t, "Vinyl", s.State().Teams[0].Name)
	assert.Contains(t, pub.actions(), ActionTeamUpdated)
}

func TestNextRound(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.NextRound(ctx), ErrNoActiveGame)

	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 1})
	require.NoError(t, err)
	require.NoError(t, s.StartRound(ctx, song(1985)))
	require.NoError(t, s.SubmitGuess(ctx, "team_0", 1985, false))
	require.NoError(t, s.NextRound(ctx))

	view := s.State()
	assert.False(t, view.RoundActive)
	assert.Nil(t, view.CurrentSong)
	assert.Equal(t, 0, view.TimerRemaining)
	assert.Equal(t, 1, view.CurrentRound, "next round does not advance the counter")
	assert.Equal(t, 10, view.Teams[0].Score, "running round is scored first")

	actions := pub.actions()
	assert.Equal(t, []string{ActionRoundEnded, ActionReadyForNextRound}, actions[len(actions)-2:])
}

func TestHighscores_RatioAndBound(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := s.NewGame(ctx, NewGameParams{TeamCount: 2})
		require.NoError(t, err)
		require.NoError(t, s.StartRound(ctx, song(1985)))
		require.NoError(t, s.SubmitGuess(ctx, "team_0", 1985-i, false))
		require.NoError(t, s.EndRound(ctx))
	}

	hs := s.Highscores()
	list := hs.ByRound[1]
	assert.Len(t, list, models.MaxHighscoresPerRound)
	for i := 1; i < len(list); i++ {
		assert.GreaterOrEqual(t, list[i-1].ScorePerRound, list[i].ScorePerRound)
	}
	require.NotNil(t, hs.AllTimeBest)
	assert.Equal(t, 10.0, hs.AllTimeBest.ScorePerRound)

	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 1})
	require.NoError(t, err)
	require.NoError(t, s.StartRound(ctx, song(1985)))
	require.NoError(t, s.SubmitGuess(ctx, "team_0", 1985, false))
	require.NoError(t, s.EndRound(ctx))
	require.NoError(t, s.StartRound(ctx, song(1990)))
	require.NoError(t, s.SubmitGuess(ctx, "team_0", 1992, false))
	require.NoError(t, s.EndRound(ctx))

	hs = s.Highscores()
	require.Len(t, hs.ByRound[2], 1)
	assert.Equal(t, 7.5, hs.ByRound[2][0].ScorePerRound)
	assert.Equal(t, 2, hs.ByRound[2][0].RoundsPlayed)
	assert.Equal(t, 7.5, s.State().HighscoreCurrentRound.ScorePerRound)
}

func TestTimerExpiryEndsRoundOnce(t *testing.T) {
	s, pub := newTestStore(t, WithTickInterval(2*time.Millisecond))
	ctx := context.Background()
	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 1, TimerSeconds: MinTimerSeconds})
	require.NoError(t, err)
	require.NoError(t, s.StartRound(ctx, song(1985)))
	require.NoError(t, s.SubmitGuess(ctx, "team_0", 1985, false))

	require.Eventually(t, func() bool { return s.Phase() == PhaseIdle }, 2*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, pub.count(broadcast.TopicRoundEnded))
	assert.Equal(t, MinTimerSeconds, pub.count(broadcast.TopicTimerUpdate))
	assert.Equal(t, 10, s.State().Teams[0].Score)

	require.NoError(t, s.EndRound(ctx))
	assert.Equal(t, 1, pub.count(broadcast.TopicRoundEnded))
	assert.Len(t, s.RoundsPlayed(), 1)
}

func TestTimerTicksCountDown(t *testing.T) {
	s, pub := newTestStore(t, WithTickInterval(2*time.Millisecond))
	ctx := context.Background()
	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 1, TimerSeconds: MinTimerSeconds})
	require.NoError(t, err)
	require.NoError(t, s.StartRound(ctx, song(1985)))

	require.Eventually(t, func() bool { return pub.count(broadcast.TopicRoundEnded) == 1 }, 2*time.Second, time.Millisecond)

	var remaining []int
	for _, ev := range pub.all() {
		if ev.topic == broadcast.TopicTimerUpdate {
			remaining = append(remaining, ev.payload["timer_remaining"].(int))
		}
	}
	assert.Equal(t, []int{4, 3, 2, 1, 0}, remaining)
}

func TestEndRound_CancelsTimer(t *testing.T) {
	s, pub := newTestStore(t, WithTickInterval(5*time.Millisecond))
	ctx := context.Background()
	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 1, TimerSeconds: MinTimerSeconds})
	require.NoError(t, err)
	require.NoError(t, s.StartRound(ctx, song(1985)))
	require.NoError(t, s.EndRound(ctx))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, pub.count(broadcast.TopicRoundEnded))
	assert.Equal(t, 0, pub.count(broadcast.TopicTimerUpdate))
}

func TestResetGame(t *testing.T) {
	mem := persistence.NewMemory()
	s, pub := newTestStore(t, WithPersistence(mem))
	ctx := context.Background()

	require.NoError(t, s.ResetGame(ctx))
	assert.Empty(t, pub.all())

	g, err := s.NewGame(ctx, NewGameParams{TeamCount: 2})
	require.NoError(t, err)
	require.NoError(t, s.StartRound(ctx, song(1985)))
	require.NoError(t, s.ResetGame(ctx))

	assert.False(t, s.State().Active)
	assert.Equal(t, PhaseIdle, s.Phase())
	_, err = mem.Load(ctx, GameStateKey("kitchen"))
	assert.ErrorIs(t, err, persistence.ErrRecordNotFound)

	last := pub.all()[len(pub.all())-1]
	assert.Equal(t, broadcast.TopicGameEnded, last.topic)
	assert.Equal(t, g.GameID, last.payload["game_id"])
	assert.Equal(t, ReasonGameReset, last.payload["reason"])
	assert.ErrorIs(t, s.StartRound(ctx, song(1985)), ErrNoActiveGame)
}

func TestSaveAndLoadState(t *testing.T) {
	mem := persistence.NewMemory()
	s, _ := newTestStore(t, WithPersistence(mem))
	ctx := context.Background()

	g, err := s.NewGame(ctx, NewGameParams{TeamCount: 2, PlaylistID: "90s"})
	require.NoError(t, err)
	require.NoError(t, s.AssignUserToTeam(ctx, "team_1", "u1"))
	require.NoError(t, s.StartRound(ctx, song(1994)))
	require.NoError(t, s.SubmitGuess(ctx, "team_1", 1994, true))
	require.NoError(t, s.EndRound(ctx))
	s.SaveState(ctx)

	restored, _ := newTestStore(t, WithPersistence(mem))
	restored.LoadState(ctx)

	view := restored.State()
	assert.Equal(t, g.GameID, view.GameID)
	assert.Equal(t, "90s", view.PlaylistID)
	assert.Equal(t, 20, view.Teams[1].Score)
	assert.Equal(t, "team_1", restored.FilteredState("u1").UserTeamID)
	assert.False(t, view.RoundActive)
	require.NotNil(t, restored.Highscores().AllTimeBest)
	assert.Equal(t, 20.0, restored.Highscores().AllTimeBest.ScorePerRound)
	assert.Len(t, restored.RoundsPlayed(), 1)
}

func TestLoadState_Empty(t *testing.T) {
	s, _ := newTestStore(t, WithPersistence(persistence.NewMemory()))
	s.LoadState(context.Background())
	assert.False(t, s.State().Active)
	assert.NotNil(t, s.Highscores().ByRound)
}

func TestConcurrentMutations(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 5})
	require.NoError(t, err)
	require.NoError(t, s.StartRound(ctx, song(1985)))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.SubmitGuess(ctx, "team_"+string(rune('0'+i%5)), 1980+i%10, i%2 == 0)
			_ = s.State()
			_ = s.FilteredState("u1")
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.EndRound(ctx))
	assert.Len(t, s.RoundsPlayed(), 1)
}

// stallingPublisher holds up one timer update to let later ticks race it.
type stallingPublisher struct {
	MockPublisher
	stallAt int
	delay   time.Duration
}

func (p *stallingPublisher) Publish(topic string, payload interface{}) error {
	if m, ok := payload.(map[string]interface{}); ok && topic == broadcast.TopicTimerUpdate && m["timer_remaining"] == p.stallAt {
		time.Sleep(p.delay)
	}
	return p.MockPublisher.Publish(topic, payload)
}

func TestEventsKeepOrderWhenPublishStalls(t *testing.T) {
	pub := &stallingPublisher{stallAt: 4, delay: 40 * time.Millisecond}
	s, _ := newTestStore(t, WithPublisher(pub), WithTickInterval(5*time.Millisecond))
	ctx := context.Background()
	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 1, TimerSeconds: MinTimerSeconds})
	require.NoError(t, err)
	require.NoError(t, s.StartRound(ctx, song(1985)))

	require.Eventually(t, func() bool { return pub.count(broadcast.TopicGameStateChanged) == 3 }, 2*time.Second, time.Millisecond)

	var order []string
	for _, ev := range pub.all() {
		switch ev.topic {
		case broadcast.TopicTimerUpdate:
			order = append(order, fmt.Sprint(ev.payload["timer_remaining"]))
		case broadcast.TopicGameStateChanged:
			order = append(order, ev.payload["action"].(string))
		default:
			order = append(order, ev.topic)
		}
	}
	assert.Equal(t, []string{
		ActionGameStarted, ActionRoundStarted,
		"4", "3", "2", "1", "0",
		broadcast.TopicRoundEnded, ActionRoundEnded,
	}, order)
}

func assertActiveRounds(t *testing.T, m *monitor.Monitor, want int) {
	t.Helper()
	expected := fmt.Sprintf(`
# HELP game_test_active_rounds 1 while a round is running on the instance
# TYPE game_test_active_rounds gauge
game_test_active_rounds{instance="kitchen"} %d
`, want)
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "game_test_active_rounds"))
}

func TestActiveRoundsGauge(t *testing.T) {
	mon := monitor.NewMonitor("game_test")
	s, _ := newTestStore(t, WithMonitor(mon))
	ctx := context.Background()

	_, err := s.NewGame(ctx, NewGameParams{TeamCount: 2})
	require.NoError(t, err)
	require.NoError(t, s.StartRound(ctx, song(1985)))
	assertActiveRounds(t, mon, 1)

	// a new game mid-round drops the round without scoring
	_, err = s.NewGame(ctx, NewGameParams{TeamCount: 2})
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, s.Phase())
	assertActiveRounds(t, mon, 0)

	require.NoError(t, s.StartRound(ctx, song(1985)))
	require.NoError(t, s.StartRound(ctx, song(1990)))
	assertActiveRounds(t, mon, 1)

	require.NoError(t, s.EndRound(ctx))
	assertActiveRounds(t, mon, 0)

	require.NoError(t, s.StartRound(ctx, song(2000)))
	require.NoError(t, s.ResetGame(ctx))
	assertActiveRounds(t, mon, 0)
}
