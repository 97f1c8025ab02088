// Package cli implements shotoverctl, a command line front end for the
// controller's HTTP API.
package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgnsrekt/shotover_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/shotover_agent/internal/controller"
	"github.com/dgnsrekt/shotover_agent/internal/snapshot"
	"github.com/dgnsrekt/shotover_agent/internal/tabactivity"
)

// API is the subset of the controller API the commands use.
type API interface {
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
	Status(ctx context.Context, tabID string) (controller.TabStatus, error)
	Track(ctx context.Context, tabID string) (tabactivity.TrackAck, error)
	WaitIdle(ctx context.Context, tabID string, timeout time.Duration) error
	PageStatus(ctx context.Context, tabID string) (cdpcontrol.PageStatus, error)
	Navigate(ctx context.Context, tabID, path string) error
	Export(ctx context.Context, tabID string) (controller.ExportResult, error)
	Import(ctx context.Context, tabID string, raw []byte) (controller.ImportResult, error)
	SaveAll(ctx context.Context, tabID string) (controller.SaveAllResult, error)
	LoadPage(ctx context.Context, tabID, path string) (controller.ImportResult, error)
	LoadAll(ctx context.Context, tabID string) (controller.LoadAllResult, error)
	LoadedConfig(ctx context.Context) (snapshot.LoadedConfig, error)
	SetLoadedConfig(ctx context.Context, fileName, content string) (snapshot.LoadedConfig, error)
	ClearLoadedConfig(ctx context.Context) error
	ListExports(ctx context.Context) ([]snapshot.ExportMeta, error)
	ExportDocument(ctx context.Context, id string) ([]byte, error)
	LoadExport(ctx context.Context, id string) (snapshot.LoadedConfig, error)
	DeleteExport(ctx context.Context, id string) error
	Events(ctx context.Context, kinds []string, tabID string, fn func(Event) error) error
}

// Event is one message of the controller's event stream.
type Event struct {
	Kind string
	Data json.RawMessage
}

// APIError is a non-2xx answer from the controller.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("controller returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("controller returned %d: %s", e.Status, e.Detail)
}

// HTTPClient talks to a running shotover_controller.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a client for baseURL. Long flows such as load-all
// can take minutes, so the zero timeout of hc is kept when hc is nil.
func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func tabPath(tabID string) string {
	if tabID == "" {
		tabID = "active"
	}
	return "/api/v1/tabs/" + url.PathEscape(tabID)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw, err = io.ReadAll(resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from %s: %w", path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var problem struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &problem); err != nil || problem.Detail == "" {
		problem.Detail = strings.TrimSpace(string(data))
	}
	return &APIError{Status: resp.StatusCode, Detail: problem.Detail}
}

func (c *HTTPClient) ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error) {
	var out struct {
		Tabs []cdpcontrol.TabInfo `json:"tabs"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/tabs", nil, &out)
	return out.Tabs, err
}

func (c *HTTPClient) Status(ctx context.Context, tabID string) (controller.TabStatus, error) {
	var out controller.TabStatus
	err := c.do(ctx, http.MethodGet, tabPath(tabID)+"/status", nil, &out)
	return out, err
}

func (c *HTTPClient) Track(ctx context.Context, tabID string) (tabactivity.TrackAck, error) {
	var out tabactivity.TrackAck
	err := c.do(ctx, http.MethodPost, tabPath(tabID)+"/track", nil, &out)
	return out, err
}

func (c *HTTPClient) WaitIdle(ctx context.Context, tabID string, timeout time.Duration) error {
	in := map[string]int64{"timeout_ms": timeout.Milliseconds()}
	return c.do(ctx, http.MethodPost, tabPath(tabID)+"/wait-idle", in, nil)
}

func (c *HTTPClient) PageStatus(ctx context.Context, tabID string) (cdpcontrol.PageStatus, error) {
	var out cdpcontrol.PageStatus
	err := c.do(ctx, http.MethodGet, tabPath(tabID)+"/page", nil, &out)
	return out, err
}

func (c *HTTPClient) Navigate(ctx context.Context, tabID, path string) error {
	return c.do(ctx, http.MethodPost, tabPath(tabID)+"/pages/navigate", map[string]string{"path": path}, nil)
}

func (c *HTTPClient) Export(ctx context.Context, tabID string) (controller.ExportResult, error) {
	var out controller.ExportResult
	err := c.do(ctx, http.MethodPost, tabPath(tabID)+"/settings/export", nil, &out)
	return out, err
}

func (c *HTTPClient) Import(ctx context.Context, tabID string, raw []byte) (controller.ImportResult, error) {
	var out controller.ImportResult
	err := c.do(ctx, http.MethodPost, tabPath(tabID)+"/settings/import", map[string]string{"json": string(raw)}, &out)
	return out, err
}

func (c *HTTPClient) SaveAll(ctx context.Context, tabID string) (controller.SaveAllResult, error) {
	var out controller.SaveAllResult
	err := c.do(ctx, http.MethodPost, tabPath(tabID)+"/pages/save-all", nil, &out)
	return out, err
}

func (c *HTTPClient) LoadPage(ctx context.Context, tabID, path string) (controller.ImportResult, error) {
	var out controller.ImportResult
	err := c.do(ctx, http.MethodPost, tabPath(tabID)+"/pages/load", map[string]string{"path": path}, &out)
	return out, err
}

func (c *HTTPClient) LoadAll(ctx context.Context, tabID string) (controller.LoadAllResult, error) {
	var out controller.LoadAllResult
	err := c.do(ctx, http.MethodPost, tabPath(tabID)+"/pages/load-all", nil, &out)
	return out, err
}

func (c *HTTPClient) LoadedConfig(ctx context.Context) (snapshot.LoadedConfig, error) {
	var out snapshot.LoadedConfig
	err := c.do(ctx, http.MethodGet, "/api/v1/config", nil, &out)
	return out, err
}

func (c *HTTPClient) SetLoadedConfig(ctx context.Context, fileName, content string) (snapshot.LoadedConfig, error) {
	var out snapshot.LoadedConfig
	in := map[string]string{"fileName": fileName, "fileContent": content}
	err := c.do(ctx, http.MethodPut, "/api/v1/config", in, &out)
	return out, err
}

func (c *HTTPClient) ClearLoadedConfig(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/config", nil, nil)
}

func (c *HTTPClient) ListExports(ctx context.Context) ([]snapshot.ExportMeta, error) {
	var out struct {
		Exports []snapshot.ExportMeta `json:"exports"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/exports", nil, &out)
	return out.Exports, err
}

func (c *HTTPClient) ExportDocument(ctx context.Context, id string) ([]byte, error) {
	var out []byte
	err := c.do(ctx, http.MethodGet, "/api/v1/exports/"+url.PathEscape(id)+"/document", nil, &out)
	return out, err
}

func (c *HTTPClient) LoadExport(ctx context.Context, id string) (snapshot.LoadedConfig, error) {
	var out snapshot.LoadedConfig
	err := c.do(ctx, http.MethodPost, "/api/v1/exports/"+url.PathEscape(id)+"/load", nil, &out)
	return out, err
}

func (c *HTTPClient) DeleteExport(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/exports/"+url.PathEscape(id), nil, nil)
}

// Events follows the SSE stream until ctx ends, fn fails or the server
// closes the connection.
func (c *HTTPClient) Events(ctx context.Context, kinds []string, tabID string, fn func(Event) error) error {
	q := url.Values{}
	if len(kinds) > 0 {
		q.Set("kinds", strings.Join(kinds, ","))
	}
	if tabID != "" {
		q.Set("tab_id", tabID)
	}
	u := c.baseURL + "/api/v1/events"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	var ev Event
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.Kind != "" {
				if err := fn(ev); err != nil {
					return err
				}
			}
			ev = Event{}
		case strings.HasPrefix(line, "event: "):
			ev.Kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}
