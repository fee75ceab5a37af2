// Package client talks to a running obbcam server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-obbcam/internal/httpc"
	"github.com/teslashibe/go-obbcam/pkg/capture"
	"github.com/teslashibe/go-obbcam/pkg/devwatch"
	"github.com/teslashibe/go-obbcam/pkg/overlay"
	"github.com/teslashibe/go-obbcam/pkg/store"
	"github.com/teslashibe/go-obbcam/pkg/web"
)

// DefaultBaseURL is the server address used when none is given.
const DefaultBaseURL = "http://localhost:8080"

const maxResponseSize = 32 << 20

// APIError is a non-2xx response from the server.
type APIError struct {
	Status int
	Msg    string
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Msg)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client calls the obbcam HTTP API.
type Client struct {
	BaseURL string

	// HTTP is used for every request. Nil uses httpc.Client.
	HTTP *http.Client
}

// New creates a client for baseURL. A bare host:port gets an http:// scheme.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/")}
}

// Status is the /api/status response.
type Status struct {
	Running bool   `json:"running"`
	State   string `json:"state"`
}

// StartResult is the /api/start response.
type StartResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	SessionID   string `json:"session_id"`
	DeviceIndex int    `json:"device_index"`
	Replayed    int    `json:"replayed"`
}

// Saved is the overlay as stored by an upsert or patch.
type Saved struct {
	CX       float64 `json:"cx"`
	CY       float64 `json:"cy"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	AngleDeg float64 `json:"angle_deg_cv"`
	ColorHex string  `json:"color_hex"`
}

// Removed reports where DeleteOverlay found the overlay.
type Removed struct {
	Worker bool `json:"worker"`
	DB     bool `json:"db"`
}

// Status returns whether the camera is running.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.call(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// Meta returns the running session summary.
func (c *Client) Meta(ctx context.Context) (capture.Meta, error) {
	var out capture.Meta
	err := c.call(ctx, http.MethodGet, "/api/meta", nil, &out)
	return out, err
}

// Start opens camera index on the server.
func (c *Client) Start(ctx context.Context, index int) (StartResult, error) {
	var out StartResult
	err := c.call(ctx, http.MethodPost, "/api/start", map[string]int{"index": index}, &out)
	return out, err
}

// Stop ends the running session.
func (c *Client) Stop(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/api/stop", nil, nil)
}

// UpsertOverlay draws o on the running session and persists it.
func (c *Client) UpsertOverlay(ctx context.Context, o overlay.Overlay) (Saved, error) {
	var out struct {
		Saved Saved `json:"saved"`
	}
	err := c.call(ctx, http.MethodPost, "/api/bbox", overlayBody(o), &out)
	return out.Saved, err
}

// Overlay returns the persisted record for id.
func (c *Client) Overlay(ctx context.Context, id int64) (*store.Record, error) {
	var out struct {
		Item *store.Record `json:"item"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/bbox/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return out.Item, nil
}

// PatchOverlay changes some fields of a persisted overlay. It reports
// whether the running worker was updated too.
func (c *Client) PatchOverlay(ctx context.Context, id int64, fields map[string]any) (Saved, bool, error) {
	var out struct {
		Updated       Saved `json:"updated"`
		WorkerUpdated bool  `json:"worker_updated"`
	}
	err := c.call(ctx, http.MethodPatch, "/api/bbox/"+strconv.FormatInt(id, 10), fields, &out)
	return out.Updated, out.WorkerUpdated, err
}

// DeleteOverlay removes id from the worker and the store.
func (c *Client) DeleteOverlay(ctx context.Context, id int64) (Removed, error) {
	var out struct {
		Removed Removed `json:"removed"`
	}
	err := c.call(ctx, http.MethodDelete, "/api/bbox/"+strconv.FormatInt(id, 10), nil, &out)
	return out.Removed, err
}

// ListOverlays returns persisted records, newest first.
func (c *Client) ListOverlays(ctx context.Context) ([]store.Record, error) {
	var out struct {
		Items []store.Record `json:"items"`
	}
	err := c.call(ctx, http.MethodGet, "/api/bboxes?source=db", nil, &out)
	return out.Items, err
}

// WorkerOverlays returns what the worker is drawing and whether it runs.
func (c *Client) WorkerOverlays(ctx context.Context) ([]overlay.Overlay, bool, error) {
	var out struct {
		Running bool              `json:"running"`
		Items   []overlay.Overlay `json:"items"`
	}
	err := c.call(ctx, http.MethodGet, "/api/bboxes?source=worker", nil, &out)
	return out.Items, out.Running, err
}

// ReplaceOverlays swaps the worker's whole overlay set.
func (c *Client) ReplaceOverlays(ctx context.Context, items []overlay.Overlay) (int, error) {
	body := make([]map[string]any, 0, len(items))
	for _, o := range items {
		body = append(body, overlayBody(o))
	}
	var out struct {
		Count int `json:"count"`
	}
	err := c.call(ctx, http.MethodPut, "/api/bboxes", body, &out)
	return out.Count, err
}

// ClearOverlays removes every overlay from the worker.
func (c *Client) ClearOverlays(ctx context.Context) error {
	return c.call(ctx, http.MethodDelete, "/api/bboxes", nil, nil)
}

// Snapshot returns the latest JPEG.
func (c *Client) Snapshot(ctx context.Context) ([]byte, error) {
	req, err := httpc.NewRequest(ctx, http.MethodGet, c.BaseURL+"/snapshot.jpg", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, data)
	}
	return data, nil
}

// Devices lists capture devices on the server host.
func (c *Client) Devices(ctx context.Context) ([]devwatch.Device, error) {
	var out struct {
		Devices []devwatch.Device `json:"devices"`
	}
	err := c.call(ctx, http.MethodGet, "/api/devices", nil, &out)
	return out.Devices, err
}

// Offer exchanges a WebRTC offer for the server's answer.
func (c *Client) Offer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	var out webrtc.SessionDescription
	err := c.call(ctx, http.MethodPost, "/api/webrtc/offer", offer, &out)
	return out, err
}

// Frames calls fn with every JPEG pushed on /ws/camera until ctx ends,
// the connection drops or fn returns an error.
func (c *Client) Frames(ctx context.Context, fn func(jpeg []byte) error) error {
	return c.subscribe(ctx, "/ws/camera", func(typ int, data []byte) error {
		if typ != websocket.BinaryMessage {
			return nil
		}
		return fn(data)
	})
}

// Events calls fn with every status event pushed on /ws/status.
func (c *Client) Events(ctx context.Context, fn func(web.StatusEvent) error) error {
	return c.subscribe(ctx, "/ws/status", func(_ int, data []byte) error {
		var ev web.StatusEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode status event: %w", err)
		}
		return fn(ev)
	})
}

func (c *Client) subscribe(ctx context.Context, path string, fn func(int, []byte) error) error {
	u, err := c.wsURL(path)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := fn(typ, data); err != nil {
			return err
		}
	}
}

func (c *Client) wsURL(path string) (string, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return httpc.Client
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := httpc.NewRequest(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func apiError(status int, body []byte) error {
	var msg struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(body, &msg) != nil || msg.Msg == "" {
		msg.Msg = strings.TrimSpace(string(body))
	}
	return &APIError{Status: status, Msg: msg.Msg}
}

func overlayBody(o overlay.Overlay) map[string]any {
	return map[string]any{
		"id":        o.ID,
		"cx":        o.CX,
		"cy":        o.CY,
		"w":         o.W,
		"h":         o.H,
		"angle_deg": o.Angle,
		"color_hex": o.Color.Hex(),
	}
}
