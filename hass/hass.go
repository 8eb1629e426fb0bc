// Package hass talks to the Home Assistant REST API.
package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/wfunc/soundbeats/logger"
)

// Entity states used by media players.
const (
	StateOff         = "off"
	StateOn          = "on"
	StateIdle        = "idle"
	StatePlaying     = "playing"
	StatePaused      = "paused"
	StateUnavailable = "unavailable"
)

// EntityState is the registry view of one entity.
type EntityState struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
}

// Attr returns a string attribute or "".
func (s *EntityState) Attr(key string) string {
	if s == nil {
		return ""
	}
	v, _ := s.Attributes[key].(string)
	return v
}

// AttrFloat returns a numeric attribute.
func (s *EntityState) AttrFloat(key string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s.Attributes[key].(float64)
	return v, ok
}

// AttrStrings returns a list attribute, skipping non-string items.
func (s *EntityState) AttrStrings(key string) []string {
	if s == nil {
		return nil
	}
	raw, ok := s.Attributes[key].([]interface{})
	if !ok {
		if list, ok := s.Attributes[key].([]string); ok {
			return list
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// Registry is the entity registry and service bus of the platform.
type Registry interface {
	// GetEntityState returns nil, nil when the entity does not exist.
	GetEntityState(ctx context.Context, entityID string) (*EntityState, error)
	CallService(ctx context.Context, domain, service string, data map[string]interface{}, blocking bool) error
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("home assistant responded %d: %s", e.Code, e.Body)
}

// Client is a Registry over the REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client. ratePerSecond <= 0 disables limiting.
func NewClient(baseURL, token string, ratePerSecond float64, burst int) *Client {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limit")
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	return resp, nil
}

func (c *Client) GetEntityState(ctx context.Context, entityID string) (*EntityState, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	var state EntityState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, errors.Wrapf(err, "decode state of %s", entityID)
	}
	return &state, nil
}

// CallService invokes domain.service. When blocking is false the call is
// sent in the background and only failures are logged.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]interface{}, blocking bool) error {
	if !blocking {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.callService(ctx, domain, service, data); err != nil {
				logger.Log.Warnw("background service call failed", "domain", domain, "service", service, "error", err)
			}
		}()
		return nil
	}
	return c.callService(ctx, domain, service, data)
}

func (c *Client) callService(ctx context.Context, domain, service string, data map[string]interface{}) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/services/"+domain+"/"+service, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
