package cdpcontrol

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
)

// Subscribe registers fn for decoded tab events. fn runs on the CDP read
// loop and must not block or evaluate scripts itself.
func (c *Client) Subscribe(fn func(TabEvent)) func() {
	c.subsMu.Lock()
	c.subSeq++
	id := c.subSeq
	c.subs[id] = fn
	c.subsMu.Unlock()
	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Client) emit(ev TabEvent) {
	c.subsMu.RLock()
	fns := make([]func(TabEvent), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// WatchNetwork attaches to every Shotover tab and enables the Network and
// Page domains so request activity reaches subscribers. Tabs opened later
// are attached as the browser announces them.
func (c *Client) WatchNetwork(ctx context.Context) error {
	c.watch.Store(true)
	if err := c.refreshTabs(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}
	if err := cdp.setDiscoverTargets(ctx, true); err != nil {
		return newError(CodeCDPUnavailable, "target discovery failed", err)
	}

	tabs, err := c.ListTabs(ctx)
	if err != nil {
		return err
	}
	for _, tab := range tabs {
		if err := c.watchTab(ctx, tab.TabID); err != nil {
			slog.Warn("cdpcontrol watch tab failed", "tab_id", tab.TabID, "error", err)
		}
	}
	slog.Info("cdpcontrol network watch on", "tabs", len(tabs))
	return nil
}

func (c *Client) resumeWatch() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.WatchNetwork(ctx); err != nil {
		slog.Warn("cdpcontrol network watch resume failed", "error", err)
	}
}

func (c *Client) watchTab(ctx context.Context, tabID string) error {
	session, _, err := c.resolveTabSession(ctx, tabID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}
	_, err = c.ensureSession(ctx, cdp, session, tabID)
	return err
}

func (c *Client) tabForSession(sessionID string) (string, bool) {
	if sessionID == "" {
		return "", false
	}
	c.sessMu.RLock()
	id, ok := c.sessionToTab[sessionID]
	c.sessMu.RUnlock()
	return string(id), ok
}

// installHandlersLocked wires CDP events of the current connection to
// subscribers. Handlers never take c.mu: the read loop must keep draining
// while a command holds it.
func (c *Client) installHandlersLocked() {
	cdp := c.cdp

	cdp.registerEventHandler("Network.responseReceived", func(sessionID string, params json.RawMessage) {
		tabID, ok := c.tabForSession(sessionID)
		if !ok {
			return
		}
		var p struct {
			RequestID string `json:"requestId"`
			Type      string `json:"type"`
			Response  struct {
				MimeType string         `json:"mimeType"`
				Headers  map[string]any `json:"headers"`
			} `json:"response"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			slog.Debug("cdpcontrol bad responseReceived", "error", err)
			return
		}
		c.emit(TabEvent{
			Kind:         EventResponseHeaders,
			TabID:        tabID,
			RequestID:    p.RequestID,
			ResourceType: network.ResourceType(p.Type),
			ContentType:  contentType(p.Response.Headers, p.Response.MimeType),
		})
	})

	cdp.registerEventHandler("Network.loadingFinished", func(sessionID string, params json.RawMessage) {
		c.emitRequestEnd(EventRequestFinished, sessionID, params)
	})
	cdp.registerEventHandler("Network.loadingFailed", func(sessionID string, params json.RawMessage) {
		c.emitRequestEnd(EventRequestFailed, sessionID, params)
	})

	cdp.registerEventHandler("Page.frameStartedLoading", func(sessionID string, params json.RawMessage) {
		tabID, ok := c.tabForSession(sessionID)
		if !ok {
			return
		}
		var p struct {
			FrameID string `json:"frameId"`
		}
		if json.Unmarshal(params, &p) != nil || p.FrameID != tabID {
			return
		}
		c.emit(TabEvent{Kind: EventTabLoading, TabID: tabID})
	})

	cdp.registerEventHandler("Target.targetDestroyed", func(_ string, params json.RawMessage) {
		var p struct {
			TargetID string `json:"targetId"`
		}
		if json.Unmarshal(params, &p) != nil || p.TargetID == "" {
			return
		}
		c.emit(TabEvent{Kind: EventTabRemoved, TabID: p.TargetID})
		go c.forgetTab(target.ID(p.TargetID))
	})

	cdp.registerEventHandler("Target.targetCreated", func(_ string, params json.RawMessage) {
		var p struct {
			TargetInfo struct {
				TargetID string `json:"targetId"`
				Type     string `json:"type"`
			} `json:"targetInfo"`
		}
		if json.Unmarshal(params, &p) != nil || p.TargetInfo.Type != "page" || !c.watch.Load() {
			return
		}
		go c.adoptTab(p.TargetInfo.TargetID)
	})

	cdp.registerEventHandler("Target.detachedFromTarget", func(_ string, params json.RawMessage) {
		var p struct {
			SessionID string `json:"sessionId"`
		}
		if json.Unmarshal(params, &p) != nil {
			return
		}
		c.sessMu.Lock()
		delete(c.sessionToTab, p.SessionID)
		c.sessMu.Unlock()
	})
}

func (c *Client) emitRequestEnd(kind TabEventKind, sessionID string, params json.RawMessage) {
	tabID, ok := c.tabForSession(sessionID)
	if !ok {
		return
	}
	var p struct {
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	c.emit(TabEvent{Kind: kind, TabID: tabID, RequestID: p.RequestID})
}

func (c *Client) forgetTab(id target.ID) {
	c.mu.Lock()
	session := c.tabs[id]
	delete(c.tabs, id)
	c.mu.Unlock()
	if session != nil {
		c.dropSession(session)
	}
	c.tabLocksMu.Lock()
	delete(c.tabLocks, id)
	c.tabLocksMu.Unlock()
	slog.Debug("cdpcontrol tab removed", "tab_id", id)
}

// adoptTab attaches to a newly created page when it passes the tab filter.
func (c *Client) adoptTab(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.watchTab(ctx, id); err != nil {
		slog.Debug("cdpcontrol new tab not adopted", "tab_id", id, "error", err)
	}
}

// contentType reads Content-Type from CDP response headers, whose keys keep
// the server's casing, falling back to the parsed mime type.
func contentType(headers map[string]any, mimeType string) string {
	for k, v := range headers {
		if !strings.EqualFold(k, "content-type") {
			continue
		}
		if s, ok := v.(string); ok {
			return s
		}
	}
	return mimeType
}
