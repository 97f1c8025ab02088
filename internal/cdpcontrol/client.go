package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/target"
)

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"target closed",
	"session closed",
	"no session with given id",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
	"not connected",
}

// sessionGoneHints mark eval errors after which the attached session can no
// longer be used. Timeouts and page exceptions leave the session intact.
var sessionGoneHints = []string{
	"session closed",
	"no session with given id",
	"session with given id not found",
	"target closed",
	"connection closed",
	"not connected",
}

func sessionGone(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range sessionGoneHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

type tabSession struct {
	info      TabInfo
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
	watching  bool   // Network and Page domains enabled on sessionID
}

// Client drives the Shotover tabs of one browser over CDP.
type Client struct {
	cdpURL      string
	tabFilter   string
	evalTimeout time.Duration

	mu   sync.Mutex
	cdp  *rawCDP
	tabs map[target.ID]*tabSession

	watch atomic.Bool

	sessMu       sync.RWMutex
	sessionToTab map[string]target.ID

	tabLocksMu sync.Mutex
	tabLocks   map[target.ID]*sync.Mutex

	subsMu sync.RWMutex
	subs   map[int]func(TabEvent)
	subSeq int
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// NewClient returns a client for the browser at cdpURL. tabFilter, when set,
// limits the client to page targets whose URL contains it.
func NewClient(cdpURL, tabFilter string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:       cdpURL,
		tabFilter:    strings.ToLower(strings.TrimSpace(tabFilter)),
		evalTimeout:  evalTimeout,
		tabs:         make(map[target.ID]*tabSession),
		sessionToTab: make(map[string]target.ID),
		tabLocks:     make(map[target.ID]*sync.Mutex),
		subs:         make(map[int]func(TabEvent)),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}
	c.installHandlersLocked()

	if err := c.syncTabsLocked(ctx); err != nil {
		slog.Error("cdpcontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "tabs", len(c.tabs))
	if c.watch.Load() {
		go c.resumeWatch()
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	// Detach from any active sessions without closing targets.
	if c.cdp != nil {
		for _, session := range c.tabs {
			session.mu.Lock()
			if session.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := c.cdp.detachFromTarget(ctx, session.sessionID); err != nil {
					slog.Debug("cdpcontrol detach cleanup failed", "session_id", session.sessionID, "error", err)
				}
				cancel()
				session.sessionID = ""
				session.watching = false
			}
			session.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tabs = make(map[target.ID]*tabSession)
	c.sessMu.Lock()
	c.sessionToTab = make(map[string]target.ID)
	c.sessMu.Unlock()
}

// ListTabs returns the Shotover tabs sorted by id.
func (c *Client) ListTabs(ctx context.Context) ([]TabInfo, error) {
	if err := c.refreshTabs(ctx); err != nil {
		slog.Warn("cdpcontrol list tabs failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	out := make([]TabInfo, 0, len(c.tabs))
	for _, session := range c.tabs {
		out = append(out, session.info)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	slog.Debug("cdpcontrol list tabs", "count", len(out))
	return out, nil
}

// Tab returns the info for a single tab.
func (c *Client) Tab(ctx context.Context, tabID string) (TabInfo, error) {
	_, info, err := c.resolveTabSession(ctx, tabID)
	return info, err
}

// evalOnTab runs a wrapped script on the tab, serialised per tab, and
// decodes the envelope data into out. Transient failures are retried once
// after reconnecting or refreshing the tab list.
func (c *Client) evalOnTab(ctx context.Context, tabID, js string, out any) error {
	if tabID == "" {
		return newError(CodeValidation, "tab id is required", nil)
	}

	lock := c.tabLock(target.ID(tabID))
	lock.Lock()
	defer lock.Unlock()

	slog.Debug("cdpcontrol eval on tab", "tab_id", tabID)
	session, _, err := c.resolveTabSession(ctx, tabID)
	if err == nil {
		err = c.evalOnSession(ctx, session, tabID, js, out)
	}
	if err == nil || !c.shouldRetry(err) {
		return err
	}

	slog.Warn("cdpcontrol eval retry after transient failure", "tab_id", tabID, "error", err)
	if c.asCode(err, CodeCDPUnavailable) {
		if recErr := c.reconnect(ctx); recErr != nil {
			slog.Error("cdpcontrol reconnect failed during retry", "tab_id", tabID, "error", recErr)
			return recErr
		}
	} else if syncErr := c.refreshTabs(ctx); syncErr != nil {
		slog.Warn("cdpcontrol tab refresh failed during retry", "tab_id", tabID, "error", syncErr)
	}

	session, _, err = c.resolveTabSession(ctx, tabID)
	if err != nil {
		slog.Warn("cdpcontrol tab resolve failed (retry)", "tab_id", tabID, "error", err)
		return err
	}
	return c.evalOnSession(ctx, session, tabID, js, out)
}

func (c *Client) evalOnSession(ctx context.Context, session *tabSession, tabID, js string, out any) error {
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, cdp, session, tabID)
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "tab_id", tabID, "error", err)
		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded)
		if !timedOut && sessionGone(err) {
			c.dropSession(session)
		}
		if timedOut {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}
	return decodeEnvelope(raw, out)
}

func decodeEnvelope(raw string, out any) error {
	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// ensureSession returns a CDP session ID for the target, attaching if needed.
// While network watching is on, a fresh session also gets the Network and
// Page domains enabled.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession, tabID string) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID == "" {
		sid, err := cdp.attachToTarget(ctx, tabID)
		if err != nil {
			return "", newError(CodeCDPUnavailable, "attach to target failed", err)
		}
		session.sessionID = sid
		session.watching = false
		c.sessMu.Lock()
		c.sessionToTab[sid] = target.ID(tabID)
		c.sessMu.Unlock()
		slog.Debug("cdpcontrol session attached", "tab_id", tabID, "session_id", sid)
	}

	if c.watch.Load() && !session.watching {
		for _, domain := range []string{"Network", "Page"} {
			if err := cdp.enableDomain(ctx, session.sessionID, domain); err != nil {
				return "", newError(CodeCDPUnavailable, "enable "+domain+" domain failed", err)
			}
		}
		session.watching = true
		slog.Debug("cdpcontrol tab watched", "tab_id", tabID)
	}
	return session.sessionID, nil
}

func (c *Client) dropSession(session *tabSession) {
	session.mu.Lock()
	sid := session.sessionID
	session.sessionID = ""
	session.watching = false
	session.mu.Unlock()
	if sid != "" {
		c.sessMu.Lock()
		delete(c.sessionToTab, sid)
		c.sessMu.Unlock()
	}
}

func (c *Client) resolveTabSession(ctx context.Context, tabID string) (*tabSession, TabInfo, error) {
	if session, info, ok := c.lookupTabSession(tabID); ok {
		return session, info, nil
	}
	if err := c.refreshTabs(ctx); err != nil {
		return nil, TabInfo{}, err
	}
	if session, info, ok := c.lookupTabSession(tabID); ok {
		return session, info, nil
	}
	return nil, TabInfo{}, newError(CodeTabNotFound, "tab not found: "+tabID, nil)
}

func (c *Client) lookupTabSession(tabID string) (*tabSession, TabInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session := c.tabs[target.ID(tabID)]
	if session == nil {
		return nil, TabInfo{}, false
	}
	return session, session.info, true
}

func (c *Client) refreshTabs(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.syncTabsLocked(ctx)
	c.mu.Unlock()
	return err
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) syncTabsLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return newError(CodeCDPUnavailable, "failed to list targets", err)
	}

	expected := make(map[target.ID]TabInfo)
	for _, t := range targets {
		if !c.acceptsTarget(t.Type, t.URL) {
			continue
		}
		expected[t.TargetID] = TabInfo{TabID: string(t.TargetID), URL: t.URL, Title: t.Title}
	}

	for id, session := range c.tabs {
		if _, ok := expected[id]; ok {
			continue
		}
		c.dropSession(session)
		delete(c.tabs, id)
	}
	for id, info := range expected {
		if session := c.tabs[id]; session != nil {
			session.info = info
			continue
		}
		c.tabs[id] = &tabSession{info: info}
	}

	c.tabLocksMu.Lock()
	for id := range c.tabLocks {
		if _, ok := c.tabs[id]; !ok {
			delete(c.tabLocks, id)
		}
	}
	c.tabLocksMu.Unlock()

	slog.Debug("cdpcontrol tab sync", "targets", len(targets), "tabs", len(c.tabs))
	return nil
}

func (c *Client) acceptsTarget(kind, url string) bool {
	if kind != "page" {
		return false
	}
	return c.tabFilter == "" || strings.Contains(strings.ToLower(url), c.tabFilter)
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil && c.cdp.connected()
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) tabLock(id target.ID) *sync.Mutex {
	c.tabLocksMu.Lock()
	defer c.tabLocksMu.Unlock()
	m, ok := c.tabLocks[id]
	if !ok {
		m = &sync.Mutex{}
		c.tabLocks[id] = m
	}
	return m
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}

func (c *Client) asCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}
