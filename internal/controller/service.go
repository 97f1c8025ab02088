// Package controller implements the Shotover settings flows on top of the
// CDP client: export, import, multi-page save/load, the loaded settings slot
// and the export archive.
package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/shotover_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/shotover_agent/internal/config"
	"github.com/dgnsrekt/shotover_agent/internal/notify"
	"github.com/dgnsrekt/shotover_agent/internal/relay"
	"github.com/dgnsrekt/shotover_agent/internal/settings"
	"github.com/dgnsrekt/shotover_agent/internal/snapshot"
	"github.com/dgnsrekt/shotover_agent/internal/storage"
	"github.com/dgnsrekt/shotover_agent/internal/tabactivity"
)

// TabPage is what the reconciler and the section opener need from a tab.
type TabPage interface {
	settings.Page
	settings.SectionOpener
}

// Browser is the slice of the CDP client the service drives.
type Browser interface {
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
	Tab(ctx context.Context, tabID string) (cdpcontrol.TabInfo, error)
	PageStatus(ctx context.Context, tabID string) (cdpcontrol.PageStatus, error)
	CollectElements(ctx context.Context, tabID string) ([]settings.ElementFacts, error)
	ActivePage(ctx context.Context, tabID string) (string, error)
	NavigatePage(ctx context.Context, tabID, path string) error
	TabPage(tabID string) TabPage
}

// Activity is the tab tracker as seen by the service.
type Activity interface {
	Pending(tabID string) int
	Track(tabID string) tabactivity.TrackAck
	WaitIdle(ctx context.Context, tabID string) error
	Connect(tabID string) func()
	Connections(tabID string) int
}

// Publisher receives status and import events for SSE clients.
type Publisher interface {
	PublishJSON(kind, tabID string, v any)
}

type cdpBrowser struct {
	*cdpcontrol.Client
}

func (b cdpBrowser) TabPage(tabID string) TabPage { return b.Client.Page(tabID) }

// Options tune the flows.
type Options struct {
	SettleDelay  time.Duration
	NavDelay     time.Duration
	PassDelay    time.Duration
	IdleTimeout  time.Duration
	ImportPasses int
	Visibility   settings.Visibility
	DOMFallback  bool
	Pages        []string
	SkipRules    []settings.SkipRule
	NtfyURL      string
	HTTPClient   *http.Client
}

// DefaultOptions mirrors the environment defaults.
func DefaultOptions() Options {
	return Options{
		SettleDelay:  settings.DefaultSettleDelay,
		NavDelay:     500 * time.Millisecond,
		PassDelay:    time.Second,
		IdleTimeout:  10 * time.Second,
		ImportPasses: 2,
		Visibility:   settings.VisibilityComputed,
		Pages:        append([]string(nil), config.DefaultPages...),
		SkipRules:    settings.DefaultSkipRules(),
	}
}

// OptionsFromConfig builds Options from the loaded environment and pages
// file.
func OptionsFromConfig(cfg *config.Config, pages *config.PagesConfig) Options {
	opts := DefaultOptions()
	opts.SettleDelay = cfg.SettleDelay()
	opts.NavDelay = cfg.NavDelay()
	opts.PassDelay = cfg.PassDelay()
	opts.IdleTimeout = cfg.IdleTimeout()
	opts.ImportPasses = cfg.ImportPasses
	opts.Visibility = settings.Visibility(cfg.Visibility)
	opts.DOMFallback = cfg.DOMFallback
	opts.NtfyURL = cfg.NtfyURL
	if pages != nil {
		opts.Pages = pages.Pages
		opts.SkipRules = pages.SkipRules
	}
	return opts
}

// Service wraps the Shotover settings operations.
type Service struct {
	cdp      Browser
	activity Activity
	snaps    *snapshot.Store
	journal  *storage.Journal
	events   Publisher
	notifier *notify.Notifier
	opts     Options

	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
}

// Deps groups the optional collaborators. Nil members disable the matching
// feature.
type Deps struct {
	Activity Activity
	Snaps    *snapshot.Store
	Journal  *storage.Journal
	Events   Publisher
}

func NewService(cdp *cdpcontrol.Client, deps Deps, opts Options) *Service {
	return newService(cdpBrowser{cdp}, deps, opts)
}

func newService(b Browser, deps Deps, opts Options) *Service {
	if opts.ImportPasses < 1 {
		opts.ImportPasses = 1
	}
	if opts.Visibility == "" {
		opts.Visibility = settings.VisibilityComputed
	}
	return &Service{
		cdp:      b,
		activity: deps.Activity,
		snaps:    deps.Snaps,
		journal:  deps.Journal,
		events:   deps.Events,
		notifier: notify.New(opts.NtfyURL, opts.HTTPClient),
		opts:     opts,
		newID:    uuid.NewString,
		sleep:    sleepCtx,
	}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

// resolveTab returns the named tab, or the first Shotover tab when tabID is
// empty.
func (s *Service) resolveTab(ctx context.Context, tabID string) (cdpcontrol.TabInfo, error) {
	tabID = strings.TrimSpace(tabID)
	if tabID != "" {
		return s.cdp.Tab(ctx, tabID)
	}
	tabs, err := s.cdp.ListTabs(ctx)
	if err != nil {
		return cdpcontrol.TabInfo{}, err
	}
	if len(tabs) == 0 {
		return cdpcontrol.TabInfo{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeTabNotFound, Message: "no Shotover tab is open"}
	}
	return tabs[0], nil
}

func (s *Service) ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error) {
	return s.cdp.ListTabs(ctx)
}

// TabStatus answers getTabStatus.
type TabStatus struct {
	TabID       string `json:"tab_id"`
	Pending     int    `json:"pending"`
	Connections int    `json:"connections"`
}

// trackedTab returns the tracker key for tabID. An empty id resolves to the
// first Shotover tab; other ids are used as given so unknown tabs read 0.
func (s *Service) trackedTab(ctx context.Context, tabID string) (string, error) {
	if id := strings.TrimSpace(tabID); id != "" {
		return id, nil
	}
	tab, err := s.resolveTab(ctx, "")
	if err != nil {
		return "", err
	}
	return tab.TabID, nil
}

func (s *Service) tabStatus(tabID string) TabStatus {
	st := TabStatus{TabID: tabID}
	if s.activity != nil {
		st.Pending = s.activity.Pending(tabID)
		st.Connections = s.activity.Connections(tabID)
	}
	return st
}

func (s *Service) Status(ctx context.Context, tabID string) (TabStatus, error) {
	id, err := s.trackedTab(ctx, tabID)
	if err != nil {
		return TabStatus{}, err
	}
	return s.tabStatus(id), nil
}

func (s *Service) Track(ctx context.Context, tabID string) (tabactivity.TrackAck, error) {
	id, err := s.trackedTab(ctx, tabID)
	if err != nil {
		return tabactivity.TrackAck{}, err
	}
	if s.activity == nil {
		return tabactivity.TrackAck{Type: "tracked", TabID: id}, nil
	}
	return s.activity.Track(id), nil
}

// WaitIdle blocks until the tab has no pending HTML requests or timeout
// passes. A zero timeout uses the configured idle timeout.
func (s *Service) WaitIdle(ctx context.Context, tabID string, timeout time.Duration) (TabStatus, error) {
	id, err := s.trackedTab(ctx, tabID)
	if err != nil {
		return TabStatus{}, err
	}
	if timeout <= 0 {
		timeout = s.opts.IdleTimeout
	}
	if err := s.waitIdle(ctx, id, timeout); err != nil {
		return TabStatus{}, err
	}
	return s.tabStatus(id), nil
}

func (s *Service) waitIdle(ctx context.Context, tabID string, timeout time.Duration) error {
	if s.activity == nil {
		return nil
	}
	defer s.activity.Connect(tabID)()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := s.activity.WaitIdle(ctx, tabID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &cdpcontrol.CodedError{Code: cdpcontrol.CodeEvalTimeout, Message: fmt.Sprintf("tab %s did not go idle within %s", tabID, timeout), Cause: err}
		}
		return err
	}
	return nil
}

// PageStatus reports the tab's URL, active UI page and field registry.
func (s *Service) PageStatus(ctx context.Context, tabID string) (cdpcontrol.PageStatus, error) {
	tab, err := s.resolveTab(ctx, tabID)
	if err != nil {
		return cdpcontrol.PageStatus{}, err
	}
	return s.cdp.PageStatus(ctx, tab.TabID)
}

// StatusMessage is published while multi-step flows run.
type StatusMessage struct {
	Type    string `json:"type"`
	TabID   string `json:"tab_id"`
	Flow    string `json:"flow"`
	Message string `json:"message"`
}

func (s *Service) status(tabID, flow, msg string) {
	if s.events == nil {
		return
	}
	s.events.PublishJSON(relay.KindStatus, tabID, StatusMessage{Type: relay.KindStatus, TabID: tabID, Flow: flow, Message: msg})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
