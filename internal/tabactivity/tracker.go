// Package tabactivity keeps a per-tab count of in-flight HTML document
// requests and announces when a tab settles back to zero.
package tabactivity

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/shotover_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/shotover_agent/internal/relay"
)

// Pinger checks that a tab still answers scripts before it is reported idle.
type Pinger interface {
	Ping(ctx context.Context, tabID string) error
}

// Publisher receives tabIdle announcements.
type Publisher interface {
	PublishJSON(kind, tabID string, v any)
}

// Source delivers tab events, normally the CDP client.
type Source interface {
	Subscribe(fn func(cdpcontrol.TabEvent)) func()
}

// IdleMessage is the payload published when a tab goes idle.
type IdleMessage struct {
	Type  string `json:"type"`
	TabID string `json:"tab_id"`
}

// TrackAck answers a Track call.
type TrackAck struct {
	Type  string `json:"type"`
	TabID string `json:"tab_id"`
}

// Config tunes a Tracker.
type Config struct {
	PingTimeout time.Duration
	// StaleAfter drops remembered HTML requests whose completion never
	// arrived. Zero disables the sweep.
	StaleAfter time.Duration
}

// Tracker counts pending HTML responses per tab.
type Tracker struct {
	cfg       Config
	pinger    Pinger
	publisher Publisher
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]int
	html    map[string]map[string]time.Time // tab -> request id -> counted at
	ports   map[string]int
	waiters map[string][]chan struct{}

	pings sync.WaitGroup
}

func New(cfg Config, pinger Pinger, publisher Publisher) *Tracker {
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}
	return &Tracker{
		cfg:       cfg,
		pinger:    pinger,
		publisher: publisher,
		now:       time.Now,
		pending:   make(map[string]int),
		html:      make(map[string]map[string]time.Time),
		ports:     make(map[string]int),
		waiters:   make(map[string][]chan struct{}),
	}
}

// Attach feeds the tracker from src until the returned func is called.
func (t *Tracker) Attach(src Source) func() {
	return src.Subscribe(t.HandleEvent)
}

// HandleEvent routes one tab event to the matching counter operation.
func (t *Tracker) HandleEvent(ev cdpcontrol.TabEvent) {
	switch ev.Kind {
	case cdpcontrol.EventResponseHeaders:
		t.OnResponseHeaders(ev.TabID, ev.RequestID, ev.ContentType)
	case cdpcontrol.EventRequestFinished:
		t.OnRequestCompleted(ev.TabID, ev.RequestID)
	case cdpcontrol.EventRequestFailed:
		t.OnRequestError(ev.TabID, ev.RequestID)
	case cdpcontrol.EventTabRemoved:
		t.OnTabRemoved(ev.TabID)
	case cdpcontrol.EventTabLoading:
		t.OnTabLoading(ev.TabID)
	}
}

func isHTML(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/html")
}

// OnResponseHeaders counts a response whose Content-Type is text/html.
func (t *Tracker) OnResponseHeaders(tabID, requestID, contentType string) {
	if tabID == "" || !isHTML(contentType) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	reqs := t.html[tabID]
	if reqs == nil {
		reqs = make(map[string]time.Time)
		t.html[tabID] = reqs
	}
	if _, seen := reqs[requestID]; seen {
		return
	}
	reqs[requestID] = t.now()
	t.pending[tabID]++
	slog.Debug("tabactivity html response", "tab_id", tabID, "request_id", requestID, "pending", t.pending[tabID])
}

// OnRequestCompleted decrements for a request previously counted as HTML.
func (t *Tracker) OnRequestCompleted(tabID, requestID string) {
	t.mu.Lock()
	reqs := t.html[tabID]
	if _, ok := reqs[requestID]; !ok {
		t.mu.Unlock()
		return
	}
	delete(reqs, requestID)
	idle := t.decrementLocked(tabID)
	t.mu.Unlock()
	if idle {
		t.scheduleIdle(tabID)
	}
}

// OnRequestError decrements for any failed request, HTML or not.
func (t *Tracker) OnRequestError(tabID, requestID string) {
	if tabID == "" {
		return
	}
	t.mu.Lock()
	if reqs := t.html[tabID]; reqs != nil {
		delete(reqs, requestID)
	}
	idle := t.decrementLocked(tabID)
	t.mu.Unlock()
	if idle {
		t.scheduleIdle(tabID)
	}
}

// decrementLocked lowers the count, clamping at zero. It reports whether the
// count went from positive to zero.
func (t *Tracker) decrementLocked(tabID string) bool {
	n, ok := t.pending[tabID]
	if !ok {
		t.pending[tabID] = 0
		return false
	}
	if n <= 0 {
		return false
	}
	t.pending[tabID] = n - 1
	slog.Debug("tabactivity request done", "tab_id", tabID, "pending", n-1)
	return n-1 == 0
}

// OnTabRemoved forgets a closed tab.
func (t *Tracker) OnTabRemoved(tabID string) {
	t.forget(tabID, "removed")
}

// OnTabLoading resets a tab whose main frame started a new navigation and
// releases anyone waiting on it.
func (t *Tracker) OnTabLoading(tabID string) {
	t.forget(tabID, "loading")
}

func (t *Tracker) forget(tabID, reason string) {
	t.mu.Lock()
	_, had := t.pending[tabID]
	delete(t.pending, tabID)
	delete(t.html, tabID)
	if reason == "removed" {
		delete(t.ports, tabID)
	}
	// The reset count reads 0 and the requests that could bring it back
	// down are gone, so nobody would wake these waiters later.
	t.releaseWaitersLocked(tabID)
	t.mu.Unlock()
	if had {
		slog.Debug("tabactivity tab reset", "tab_id", tabID, "reason", reason)
	}
}

// Pending returns the tab's in-flight HTML request count, 0 when untracked.
func (t *Tracker) Pending(tabID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending[tabID]
}

// Track starts tracking a tab at zero if it is unknown.
func (t *Tracker) Track(tabID string) TrackAck {
	t.mu.Lock()
	if _, ok := t.pending[tabID]; !ok {
		t.pending[tabID] = 0
	}
	t.mu.Unlock()
	slog.Info("tabactivity tracking tab", "tab_id", tabID)
	return TrackAck{Type: "tracked", TabID: tabID}
}

// Connect registers a long-lived client connection for a tab and returns
// the matching Disconnect.
func (t *Tracker) Connect(tabID string) func() {
	t.Track(tabID)
	t.mu.Lock()
	t.ports[tabID]++
	t.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { t.Disconnect(tabID) }) }
}

func (t *Tracker) Disconnect(tabID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ports[tabID] <= 1 {
		delete(t.ports, tabID)
		return
	}
	t.ports[tabID]--
}

// Connections returns the number of open connections for a tab.
func (t *Tracker) Connections(tabID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ports[tabID]
}

// WaitIdle returns once the tab has no pending HTML requests, either
// immediately or at its next idle announcement.
func (t *Tracker) WaitIdle(ctx context.Context, tabID string) error {
	t.mu.Lock()
	if t.pending[tabID] == 0 {
		t.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	t.waiters[tabID] = append(t.waiters[tabID], ch)
	t.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		t.mu.Lock()
		t.removeWaiterLocked(tabID, ch)
		t.mu.Unlock()
		return ctx.Err()
	}
}

func (t *Tracker) removeWaiterLocked(tabID string, ch chan struct{}) {
	ws := t.waiters[tabID]
	for i, w := range ws {
		if w == ch {
			t.waiters[tabID] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(t.waiters[tabID]) == 0 {
		delete(t.waiters, tabID)
	}
}

func (t *Tracker) releaseWaitersLocked(tabID string) {
	for _, ch := range t.waiters[tabID] {
		close(ch)
	}
	delete(t.waiters, tabID)
}

// scheduleIdle pings the tab off the caller's goroutine; events arrive on
// the CDP read loop, which has to stay free to deliver the ping's reply.
func (t *Tracker) scheduleIdle(tabID string) {
	t.pings.Add(1)
	go func() {
		defer t.pings.Done()
		t.notifyIdle(tabID)
	}()
}

func (t *Tracker) notifyIdle(tabID string) {
	if t.pinger != nil {
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.PingTimeout)
		err := t.pinger.Ping(ctx, tabID)
		cancel()
		if err != nil {
			slog.Info("tabactivity idle skipped, tab did not answer ping", "tab_id", tabID, "error", err)
			return
		}
	}

	t.mu.Lock()
	if t.pending[tabID] != 0 {
		t.mu.Unlock()
		slog.Debug("tabactivity idle superseded", "tab_id", tabID)
		return
	}
	t.releaseWaitersLocked(tabID)
	t.mu.Unlock()

	if t.publisher != nil {
		t.publisher.PublishJSON(relay.KindTabIdle, tabID, IdleMessage{Type: relay.KindTabIdle, TabID: tabID})
	}
	slog.Info("tabactivity tab idle", "tab_id", tabID)
}

// SweepStale drops HTML requests older than StaleAfter and returns how many
// were dropped. Tabs that reach zero are announced idle.
func (t *Tracker) SweepStale() int {
	if t.cfg.StaleAfter <= 0 {
		return 0
	}
	cutoff := t.now().Add(-t.cfg.StaleAfter)
	var idle []string
	dropped := 0

	t.mu.Lock()
	for tabID, reqs := range t.html {
		for id, at := range reqs {
			if at.After(cutoff) {
				continue
			}
			delete(reqs, id)
			dropped++
			if t.decrementLocked(tabID) {
				idle = append(idle, tabID)
			}
		}
	}
	t.mu.Unlock()

	for _, tabID := range idle {
		t.scheduleIdle(tabID)
	}
	if dropped > 0 {
		slog.Warn("tabactivity dropped stale html requests", "count", dropped)
	}
	return dropped
}

// Run sweeps stale requests until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	if t.cfg.StaleAfter <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(t.cfg.StaleAfter / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.SweepStale()
		}
	}
}

// Wait blocks until in-flight idle pings have finished.
func (t *Tracker) Wait() {
	t.pings.Wait()
}
