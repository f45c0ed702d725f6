// Package client speaks the game server's JSON-over-HTTP contract.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tatianab/codebound/internal/models"
)

// ErrTransport marks network and decoding failures, as opposed to a server
// that answered with success:false.
var ErrTransport = errors.New("transport failure")

const maxBody = 4 << 20

// Reply is the common {success, message} envelope. GameState is only filled
// by restart and load.
type Reply struct {
	Success   bool                 `json:"success"`
	Message   string               `json:"message"`
	GameState *models.SessionState `json:"game_state,omitempty"`
}

// SavesReply is the list-saves envelope.
type SavesReply struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Saves   []models.SaveSummary `json:"saves"`
}

type actionsReply struct {
	AvailableActions []string `json:"available_actions"`
}

// Client talks to one game server. Cookies set by /login are kept for later calls.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
}

type Option func(*Client)

// WithHTTPClient sends requests through a copy of hc. A cookie jar is added
// when hc has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		c.http = &cp
	}
}

// WithTimeout bounds every request, whichever HTTP client ends up in use.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base: base,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		c.http.Jar = jar
	}
	if c.timeout > 0 {
		c.http.Timeout = c.timeout
	}
	return c, nil
}

func (c *Client) Login(ctx context.Context, identifier string) (Reply, error) {
	var r Reply
	err := c.do(ctx, http.MethodPost, "/login", map[string]string{"npm": identifier}, &r)
	return r, err
}

func (c *Client) Register(ctx context.Context, displayName, identifier string) (Reply, error) {
	var r Reply
	err := c.do(ctx, http.MethodPost, "/register", map[string]string{
		"username": displayName,
		"npm":      identifier,
	}, &r)
	return r, err
}

// GameState fetches the full session. Anything but a 2xx object carrying
// player and current_stage is an ErrTransport.
func (c *Client) GameState(ctx context.Context) (models.SessionState, error) {
	var s models.SessionState
	err := c.read(ctx, "/api/game-state", &s, "player", "current_stage")
	return s, err
}

func (c *Client) AvailableActions(ctx context.Context) ([]string, error) {
	var r actionsReply
	if err := c.read(ctx, "/api/update-actions", &r, "available_actions"); err != nil {
		return nil, err
	}
	return r.AvailableActions, nil
}

func (c *Client) Action(ctx context.Context, action, target string) (Reply, error) {
	var r Reply
	err := c.do(ctx, http.MethodPost, "/api/action", map[string]string{
		"action": action,
		"target": target,
	}, &r)
	return r, err
}

func (c *Client) Restart(ctx context.Context) (Reply, error) {
	var r Reply
	err := c.do(ctx, http.MethodPost, "/api/restart-game", nil, &r)
	return r, err
}

func (c *Client) SaveGame(ctx context.Context, name string) (Reply, error) {
	var r Reply
	err := c.do(ctx, http.MethodPost, "/api/save-game", map[string]string{"save_name": name}, &r)
	return r, err
}

func (c *Client) ListSaves(ctx context.Context) (SavesReply, error) {
	var r SavesReply
	err := c.do(ctx, http.MethodGet, "/api/list-saves", nil, &r)
	return r, err
}

func (c *Client) LoadGame(ctx context.Context, saveID string) (Reply, error) {
	var r Reply
	err := c.do(ctx, http.MethodPost, "/api/load-game", map[string]string{"save_id": saveID}, &r)
	return r, err
}

func (c *Client) DeleteSave(ctx context.Context, saveID string) (Reply, error) {
	var r Reply
	err := c.do(ctx, http.MethodPost, "/api/delete-save", map[string]string{"save_id": saveID}, &r)
	return r, err
}

// do sends one request and decodes the {success, message} envelope into out.
// Servers answer failures with such a body too, so the status code alone is
// not an error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	status, data, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: status %d: decode: %w: %w", method, path, status, ErrTransport, err)
	}
	return nil
}

// read GETs a bare payload. It has no envelope, so a non-2xx status, a
// non-object body or a missing required key all mean there is nothing to apply.
func (c *Client) read(ctx context.Context, path string, out any, required ...string) error {
	status, data, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("GET %s: status %d: %w", path, status, ErrTransport)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("GET %s: decode: %w: %w", path, ErrTransport, err)
	}
	if fields == nil {
		return fmt.Errorf("GET %s: empty payload: %w", path, ErrTransport)
	}
	for _, key := range required {
		if _, ok := fields[key]; !ok {
			return fmt.Errorf("GET %s: payload has no %q: %w", path, key, ErrTransport)
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("GET %s: decode: %w: %w", path, ErrTransport, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w: %w", method, path, ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: read body: %w: %w", method, path, ErrTransport, err)
	}
	return resp.StatusCode, data, nil
}
