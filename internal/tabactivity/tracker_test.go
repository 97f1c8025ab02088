package tabactivity

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/shotover_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/shotover_agent/internal/relay"
)

type fakePinger struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (p *fakePinger) Ping(_ context.Context, tabID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, tabID)
	return p.err
}

type published struct {
	kind  string
	tabID string
	v     any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) PublishJSON(kind, tabID string, v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{kind, tabID, v})
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

type fakeSource struct {
	fn func(cdpcontrol.TabEvent)
}

func (s *fakeSource) Subscribe(fn func(cdpcontrol.TabEvent)) func() {
	s.fn = fn
	return func() { s.fn = nil }
}

func newTestTracker(t *testing.T, cfg Config) (*Tracker, *fakePinger, *fakePublisher) {
	t.Helper()
	pinger := &fakePinger{}
	pub := &fakePublisher{}
	return New(cfg, pinger, pub), pinger, pub
}

func TestHTMLResponseIncrementsAndCompletionPublishesIdle(t *testing.T) {
	tr, pinger, pub := newTestTracker(t, Config{})

	tr.OnResponseHeaders("tab-1", "r1", "text/html; charset=utf-8")
	tr.OnResponseHeaders("tab-1", "r2", "TEXT/HTML")
	assert.Equal(t, 2, tr.Pending("tab-1"))

	tr.OnRequestCompleted("tab-1", "r1")
	tr.Wait()
	assert.Equal(t, 1, tr.Pending("tab-1"))
	assert.Empty(t, pub.all())

	tr.OnRequestCompleted("tab-1", "r2")
	tr.Wait()
	assert.Equal(t, 0, tr.Pending("tab-1"))

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, relay.KindTabIdle, msgs[0].kind)
	assert.Equal(t, "tab-1", msgs[0].tabID)
	assert.Equal(t, IdleMessage{Type: "tabIdle", TabID: "tab-1"}, msgs[0].v)
	assert.Equal(t, []string{"tab-1"}, pinger.calls)
}

func TestNonHTMLResponsesAreIgnored(t *testing.T) {
	tr, _, pub := newTestTracker(t, Config{})

	tr.OnResponseHeaders("tab-1", "r1", "application/json")
	tr.OnResponseHeaders("tab-1", "r2", "")
	tr.OnRequestCompleted("tab-1", "r1")
	tr.Wait()

	assert.Equal(t, 0, tr.Pending("tab-1"))
	assert.Empty(t, pub.all())
}

func TestDuplicateResponseCountsOnce(t *testing.T) {
	tr, _, _ := newTestTracker(t, Config{})
	tr.OnResponseHeaders("tab-1", "r1", "text/html")
	tr.OnResponseHeaders("tab-1", "r1", "text/html")
	assert.Equal(t, 1, tr.Pending("tab-1"))
}

func TestRequestErrorDecrementsAndClamps(t *testing.T) {
	tr, _, pub := newTestTracker(t, Config{})

	tr.OnRequestError("tab-1", "unknown")
	assert.Equal(t, 0, tr.Pending("tab-1"))

	tr.OnResponseHeaders("tab-1", "r1", "text/html")
	tr.OnRequestError("tab-1", "img-7")
	tr.Wait()
	assert.Equal(t, 0, tr.Pending("tab-1"))
	assert.Len(t, pub.all(), 1)

	tr.OnRequestError("tab-1", "img-8")
	tr.Wait()
	assert.Equal(t, 0, tr.Pending("tab-1"))
	assert.Len(t, pub.all(), 1, "no idle event when the count was already zero")
}

func TestPingFailureSkipsIdle(t *testing.T) {
	tr, pinger, pub := newTestTracker(t, Config{})
	pinger.err = errors.New("no session")

	tr.OnResponseHeaders("tab-1", "r1", "text/html")
	tr.OnRequestCompleted("tab-1", "r1")
	tr.Wait()

	assert.Empty(t, pub.all())
	assert.Equal(t, []string{"tab-1"}, pinger.calls)
}

func TestTabRemovedAndLoadingResetCounter(t *testing.T) {
	tr, _, pub := newTestTracker(t, Config{})

	tr.OnResponseHeaders("tab-1", "r1", "text/html")
	tr.OnTabLoading("tab-1")
	assert.Equal(t, 0, tr.Pending("tab-1"))

	// the forgotten request finishing must not underflow or announce idle
	tr.OnRequestCompleted("tab-1", "r1")
	tr.Wait()
	assert.Equal(t, 0, tr.Pending("tab-1"))
	assert.Empty(t, pub.all())

	tr.OnResponseHeaders("tab-2", "r1", "text/html")
	tr.OnTabRemoved("tab-2")
	assert.Equal(t, 0, tr.Pending("tab-2"))
}

func TestLoadingResetReleasesWaiters(t *testing.T) {
	tr, _, _ := newTestTracker(t, Config{})
	tr.OnResponseHeaders("tab-1", "r1", "text/html")

	done := make(chan error, 1)
	go func() { done <- tr.WaitIdle(context.Background(), "tab-1") }()
	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.waiters["tab-1"]) == 1
	}, time.Second, 5*time.Millisecond)

	tr.OnTabLoading("tab-1")
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitIdle still blocked after the tab counter was reset")
	}
	assert.Equal(t, 0, tr.Pending("tab-1"))
}

type trackerStep struct {
	kind      string
	tabID     string
	requestID string
	mime      string
}

// requestSteps is the life of one request: headers, maybe repeated, then
// completion or failure.
func requestSteps(rng *rand.Rand, tabID, requestID, mime string) []trackerStep {
	steps := []trackerStep{{kind: "headers", tabID: tabID, requestID: requestID, mime: mime}}
	if rng.IntN(4) == 0 {
		steps = append(steps, steps[0])
	}
	end := "completed"
	if rng.IntN(3) == 0 {
		end = "error"
	}
	return append(steps, trackerStep{kind: end, tabID: tabID, requestID: requestID})
}

func TestPendingNeverNegativeAndSettlesAtZero(t *testing.T) {
	for seed := uint64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewPCG(seed, 42))
		tr, _, _ := newTestTracker(t, Config{})
		tabs := []string{"tab-1", "tab-2", "tab-3"}

		var streams [][]trackerStep
		for _, tab := range tabs {
			for i := range 6 {
				mime := "text/html"
				if i%3 == 2 {
					mime = "image/png"
				}
				streams = append(streams, requestSteps(rng, tab, fmt.Sprintf("%s-r%d", tab, i), mime))
			}
			streams = append(streams, []trackerStep{{kind: "error", tabID: tab, requestID: tab + "-stray"}})
		}

		for len(streams) > 0 {
			i := rng.IntN(len(streams))
			step := streams[i][0]
			if streams[i] = streams[i][1:]; len(streams[i]) == 0 {
				streams = append(streams[:i], streams[i+1:]...)
			}
			switch step.kind {
			case "headers":
				tr.OnResponseHeaders(step.tabID, step.requestID, step.mime)
			case "completed":
				tr.OnRequestCompleted(step.tabID, step.requestID)
			case "error":
				tr.OnRequestError(step.tabID, step.requestID)
			}
			for _, tab := range tabs {
				require.GreaterOrEqual(t, tr.Pending(tab), 0, "seed %d after %s %s", seed, step.kind, step.requestID)
			}
		}
		tr.Wait()

		for _, tab := range tabs {
			assert.Equal(t, 0, tr.Pending(tab), "seed %d tab %s", seed, tab)
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			assert.NoError(t, tr.WaitIdle(ctx, tab), "seed %d tab %s", seed, tab)
			cancel()
		}
	}
}

func TestTrackAndConnections(t *testing.T) {
	tr, _, _ := newTestTracker(t, Config{})

	ack := tr.Track("tab-1")
	assert.Equal(t, TrackAck{Type: "tracked", TabID: "tab-1"}, ack)
	assert.Equal(t, 0, tr.Pending("tab-1"))

	d1 := tr.Connect("tab-1")
	d2 := tr.Connect("tab-1")
	assert.Equal(t, 2, tr.Connections("tab-1"))
	d1()
	d1()
	assert.Equal(t, 1, tr.Connections("tab-1"))
	d2()
	assert.Equal(t, 0, tr.Connections("tab-1"))

	tr.Connect("tab-1")
	tr.OnTabRemoved("tab-1")
	assert.Equal(t, 0, tr.Connections("tab-1"))
}

func TestWaitIdle(t *testing.T) {
	tr, _, _ := newTestTracker(t, Config{})

	require.NoError(t, tr.WaitIdle(context.Background(), "tab-1"))

	tr.OnResponseHeaders("tab-1", "r1", "text/html")
	done := make(chan error, 1)
	go func() { done <- tr.WaitIdle(context.Background(), "tab-1") }()

	// give the waiter time to register before the request completes
	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.waiters["tab-1"]) == 1
	}, time.Second, 5*time.Millisecond)

	tr.OnRequestCompleted("tab-1", "r1")
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitIdle did not return after the tab went idle")
	}
}

func TestWaitIdleHonoursContext(t *testing.T) {
	tr, _, _ := newTestTracker(t, Config{})
	tr.OnResponseHeaders("tab-1", "r1", "text/html")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tr.WaitIdle(ctx, "tab-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Empty(t, tr.waiters["tab-1"])
}

func TestSweepStaleReleasesPinnedCounter(t *testing.T) {
	tr, _, pub := newTestTracker(t, Config{StaleAfter: time.Minute})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	tr.OnResponseHeaders("tab-1", "old", "text/html")
	now = now.Add(2 * time.Minute)
	tr.OnResponseHeaders("tab-2", "fresh", "text/html")

	assert.Equal(t, 1, tr.SweepStale())
	tr.Wait()
	assert.Equal(t, 0, tr.Pending("tab-1"))
	assert.Equal(t, 1, tr.Pending("tab-2"))
	require.Len(t, pub.all(), 1)
	assert.Equal(t, "tab-1", pub.all()[0].tabID)
}

func TestSweepDisabledByDefault(t *testing.T) {
	tr, _, _ := newTestTracker(t, Config{})
	tr.OnResponseHeaders("tab-1", "r1", "text/html")
	assert.Equal(t, 0, tr.SweepStale())
	assert.Equal(t, 1, tr.Pending("tab-1"))
}

func TestAttachRoutesEvents(t *testing.T) {
	tr, _, pub := newTestTracker(t, Config{})
	src := &fakeSource{}
	detach := tr.Attach(src)
	require.NotNil(t, src.fn)

	src.fn(cdpcontrol.TabEvent{Kind: cdpcontrol.EventResponseHeaders, TabID: "tab-1", RequestID: "r1", ContentType: "text/html"})
	src.fn(cdpcontrol.TabEvent{Kind: cdpcontrol.EventResponseHeaders, TabID: "tab-1", RequestID: "r2", ContentType: "text/html"})
	assert.Equal(t, 2, tr.Pending("tab-1"))

	src.fn(cdpcontrol.TabEvent{Kind: cdpcontrol.EventRequestFinished, TabID: "tab-1", RequestID: "r1"})
	src.fn(cdpcontrol.TabEvent{Kind: cdpcontrol.EventRequestFailed, TabID: "tab-1", RequestID: "r2"})
	tr.Wait()
	assert.Equal(t, 0, tr.Pending("tab-1"))
	assert.Len(t, pub.all(), 1)

	src.fn(cdpcontrol.TabEvent{Kind: cdpcontrol.EventResponseHeaders, TabID: "tab-1", RequestID: "r3", ContentType: "text/html"})
	src.fn(cdpcontrol.TabEvent{Kind: cdpcontrol.EventTabLoading, TabID: "tab-1"})
	assert.Equal(t, 0, tr.Pending("tab-1"))

	detach()
	assert.Nil(t, src.fn)
}
