// Package media drives one Home Assistant media player for a game instance.
package media

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/soundbeats/hass"
	"github.com/wfunc/soundbeats/logger"
	"github.com/wfunc/soundbeats/monitor"
	"github.com/wfunc/soundbeats/timer"
)

const (
	domain = "media_player"

	DefaultSettleDelay  = 2 * time.Second
	DefaultSourceDelay  = time.Second
	DefaultPlayTimeout  = 2 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// Result is the outcome of a playback operation. Operations never fail with
// an error; callers inspect Success.
type Result struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	State       string `json:"media_player_state,omitempty"`
	Unavailable bool   `json:"-"`
}

func ok(state string) Result {
	return Result{Success: true, State: state}
}

func failed(format string, args ...interface{}) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

func unavailable(format string, args ...interface{}) Result {
	return Result{Error: fmt.Sprintf(format, args...), Unavailable: true}
}

// PlayerState is a snapshot of the media player.
type PlayerState struct {
	Available  bool     `json:"available"`
	EntityID   string   `json:"entity_id,omitempty"`
	State      string   `json:"state,omitempty"`
	IsPlaying  bool     `json:"is_playing"`
	Title      string   `json:"media_title,omitempty"`
	Artist     string   `json:"media_artist,omitempty"`
	Album      string   `json:"media_album,omitempty"`
	ImageURL   string   `json:"media_image_url,omitempty"`
	Volume     *float64 `json:"volume_level,omitempty"`
	Source     string   `json:"source,omitempty"`
	SourceList []string `json:"source_list,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type Option func(*Controller)

// WithDelays overrides the power-on settle wait, the source-selection wait
// and how long to wait for playback to start.
func WithDelays(settle, source, playTimeout, poll time.Duration) Option {
	return func(c *Controller) {
		c.settleDelay = settle
		c.sourceDelay = source
		c.playTimeout = playTimeout
		c.pollInterval = poll
	}
}

func WithMonitor(m *monitor.Monitor) Option {
	return func(c *Controller) { c.monitor = m }
}

// Controller issues media_player service calls for one entity.
type Controller struct {
	instanceID string
	entityID   string
	registry   hass.Registry
	timers     *timer.TimerManager
	monitor    *monitor.Monitor

	settleDelay  time.Duration
	sourceDelay  time.Duration
	playTimeout  time.Duration
	pollInterval time.Duration

	mutex        sync.Mutex
	autoPause    *timer.Handle
	generation   uint64
	currentTrack string
}

func NewController(instanceID, entityID string, registry hass.Registry, timers *timer.TimerManager, opts ...Option) *Controller {
	c := &Controller{
		instanceID:   instanceID,
		entityID:     entityID,
		registry:     registry,
		timers:       timers,
		settleDelay:  DefaultSettleDelay,
		sourceDelay:  DefaultSourceDelay,
		playTimeout:  DefaultPlayTimeout,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentTrack is the last track handed to the player.
func (c *Controller) CurrentTrack() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.currentTrack
}

func (c *Controller) isSpotify() bool {
	return strings.Contains(strings.ToLower(c.entityID), "spotify")
}

func (c *Controller) call(ctx context.Context, service string, data map[string]interface{}) error {
	payload := map[string]interface{}{"entity_id": c.entityID}
	for k, v := range data {
		payload[k] = v
	}
	return c.registry.CallService(ctx, domain, service, payload, true)
}

// cancelAutoPause drops a pending auto-pause and invalidates one already dispatched.
func (c *Controller) cancelAutoPause() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.generation++
	if c.autoPause != nil {
		c.autoPause.Cancel()
		c.autoPause = nil
	}
}

func (c *Controller) scheduleAutoPause(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.timers == nil {
		return
	}
	c.generation++
	gen := c.generation
	c.autoPause = c.timers.Schedule(d, 0, func() {
		c.mutex.Lock()
		current := c.generation == gen
		if current {
			c.autoPause = nil
		}
		c.mutex.Unlock()
		if !current {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if res := c.Pause(ctx); !res.Success {
			logger.Log.Warnw("auto-pause failed", "instance", c.instanceID, "entity", c.entityID, "error", res.Error)
			return
		}
		logger.Log.Debugw("auto-paused", "instance", c.instanceID, "after", d)
	})
}

// AutoPausePending reports whether an auto-pause is scheduled.
func (c *Controller) AutoPausePending() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.autoPause != nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) fail(op string, res Result) Result {
	c.monitor.IncPlaybackFailures(c.instanceID, op)
	logger.Log.Warnw("playback operation failed", "instance", c.instanceID, "entity", c.entityID, "op", op, "error", res.Error)
	return res
}

// PlaySnippet plays trackURL and pauses it again after duration.
func (c *Controller) PlaySnippet(ctx context.Context, trackURL string, duration time.Duration) Result {
	if c.entityID == "" {
		return c.fail("play", failed("No media player configured"))
	}
	c.cancelAutoPause()

	state, res := c.ensureReady(ctx)
	if !res.Success {
		return c.fail("play", res)
	}
	if res := c.ensureSource(ctx, state); !res.Success {
		return c.fail("play", res)
	}

	err := c.call(ctx, "play_media", map[string]interface{}{
		"media_content_type": "music",
		"media_content_id":   trackURL,
	})
	if err != nil {
		return c.fail("play", failed("Playback failed: %v", err))
	}
	c.mutex.Lock()
	c.currentTrack = trackURL
	c.mutex.Unlock()

	observed := c.waitForPlaying(ctx)
	if observed != hass.StatePlaying {
		logger.Log.Warnw("media player not playing after play command", "instance", c.instanceID, "entity", c.entityID, "state", observed)
	}
	if duration > 0 {
		c.scheduleAutoPause(duration)
	}
	return ok(observed)
}

// ensureReady turns the player on when it is off and re-checks it.
func (c *Controller) ensureReady(ctx context.Context) (*hass.EntityState, Result) {
	state, err := c.registry.GetEntityState(ctx, c.entityID)
	if err != nil {
		return nil, unavailable("Media player unreachable: %v", err)
	}
	if state == nil {
		return nil, unavailable("Media player entity not found")
	}
	if state.State == hass.StateUnavailable {
		return nil, unavailable("Media player is unavailable")
	}
	if state.State != hass.StateOff {
		return state, ok(state.State)
	}

	if err := c.call(ctx, "turn_on", nil); err != nil {
		logger.Log.Warnw("could not turn on media player", "entity", c.entityID, "error", err)
	}
	if err := sleep(ctx, c.settleDelay); err != nil {
		return nil, failed("Interrupted: %v", err)
	}
	state, err = c.registry.GetEntityState(ctx, c.entityID)
	if err != nil {
		return nil, unavailable("Media player unreachable: %v", err)
	}
	if state == nil || state.State == hass.StateOff || state.State == hass.StateUnavailable {
		return nil, unavailable("Media player did not turn on")
	}
	return state, ok(state.State)
}

// ensureSource selects the first source when the player lists sources but
// none is active. Spotify players cannot play without one.
func (c *Controller) ensureSource(ctx context.Context, state *hass.EntityState) Result {
	if state.Attr("source") != "" {
		return ok(state.State)
	}
	sources := state.AttrStrings("source_list")
	if len(sources) == 0 {
		if c.isSpotify() {
			return failed("No Spotify device available")
		}
		return ok(state.State)
	}
	if err := c.call(ctx, "select_source", map[string]interface{}{"source": sources[0]}); err != nil {
		if c.isSpotify() {
			return failed("No Spotify device available: %v", err)
		}
		logger.Log.Warnw("select default source failed", "entity", c.entityID, "source", sources[0], "error", err)
		return ok(state.State)
	}
	if err := sleep(ctx, c.sourceDelay); err != nil {
		return failed("Interrupted: %v", err)
	}
	return ok(state.State)
}

// waitForPlaying polls until the player reports playing or the timeout passes.
func (c *Controller) waitForPlaying(ctx context.Context) string {
	deadline := time.Now().Add(c.playTimeout)
	observed := ""
	for {
		state, err := c.registry.GetEntityState(ctx, c.entityID)
		if err == nil && state != nil {
			observed = state.State
			if observed == hass.StatePlaying {
				return observed
			}
		}
		if !time.Now().Before(deadline) {
			return observed
		}
		if sleep(ctx, c.pollInterval) != nil {
			return observed
		}
	}
}

// Pause pauses playback and drops any pending auto-pause.
func (c *Controller) Pause(ctx context.Context) Result {
	if c.entityID == "" {
		return failed("No media player configured")
	}
	c.cancelAutoPause()
	if err := c.call(ctx, "media_pause", nil); err != nil {
		return c.fail("pause", failed("Pause failed: %v", err))
	}
	return ok("")
}

func (c *Controller) Resume(ctx context.Context) Result {
	if c.entityID == "" {
		return failed("No media player configured")
	}
	if err := c.call(ctx, "media_play", nil); err != nil {
		return c.fail("resume", failed("Resume failed: %v", err))
	}
	return ok("")
}

// Stop stops playback and drops any pending auto-pause.
func (c *Controller) Stop(ctx context.Context) Result {
	c.cancelAutoPause()
	if c.entityID == "" {
		return ok("")
	}
	if err := c.call(ctx, "media_stop", nil); err != nil {
		return c.fail("stop", failed("Stop failed: %v", err))
	}
	c.mutex.Lock()
	c.currentTrack = ""
	c.mutex.Unlock()
	return ok("")
}

// SetVolume sets the volume, clamped to [0, 1].
func (c *Controller) SetVolume(ctx context.Context, level float64) Result {
	if c.entityID == "" {
		return failed("No media player configured")
	}
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	if err := c.call(ctx, "volume_set", map[string]interface{}{"volume_level": level}); err != nil {
		return c.fail("volume", failed("Volume change failed: %v", err))
	}
	return ok("")
}

func (c *Controller) SelectSource(ctx context.Context, source string) Result {
	if c.entityID == "" {
		return failed("No media player configured")
	}
	if err := c.call(ctx, "select_source", map[string]interface{}{"source": source}); err != nil {
		return c.fail("select_source", failed("Source selection failed: %v", err))
	}
	return ok("")
}

// Sources lists the sources the player offers.
func (c *Controller) Sources(ctx context.Context) ([]string, Result) {
	if c.entityID == "" {
		return nil, failed("No media player configured")
	}
	state, err := c.registry.GetEntityState(ctx, c.entityID)
	if err != nil {
		return nil, unavailable("Media player unreachable: %v", err)
	}
	if state == nil {
		return nil, unavailable("Media player entity not found")
	}
	sources := state.AttrStrings("source_list")
	if sources == nil {
		sources = []string{}
	}
	return sources, ok(state.State)
}

// CurrentState returns a snapshot. Absent or unreachable players are
// reported with Available false.
func (c *Controller) CurrentState(ctx context.Context) PlayerState {
	if c.entityID == "" {
		return PlayerState{Available: false}
	}
	state, err := c.registry.GetEntityState(ctx, c.entityID)
	if err != nil {
		return PlayerState{EntityID: c.entityID, Error: err.Error()}
	}
	if state == nil {
		return PlayerState{EntityID: c.entityID, Error: "Entity not found"}
	}
	ps := PlayerState{
		Available:  state.State != hass.StateUnavailable,
		EntityID:   c.entityID,
		State:      state.State,
		IsPlaying:  state.State == hass.StatePlaying,
		Title:      state.Attr("media_title"),
		Artist:     state.Attr("media_artist"),
		Album:      state.Attr("media_album_name"),
		ImageURL:   state.Attr("entity_picture"),
		Source:     state.Attr("source"),
		SourceList: state.AttrStrings("source_list"),
	}
	if v, ok := state.AttrFloat("volume_level"); ok {
		ps.Volume = &v
	}
	return ps
}
