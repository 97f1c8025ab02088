package cdpcontrol

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/shotover_agent/internal/settings"
)

// Ping runs a no-op script on the tab to check that it still answers.
func (c *Client) Ping(ctx context.Context, tabID string) error {
	return c.evalOnTab(ctx, tabID, jsPing(), nil)
}

// PageStatus reports the URL, active page and field registry of a tab.
func (c *Client) PageStatus(ctx context.Context, tabID string) (PageStatus, error) {
	var out PageStatus
	if err := c.evalOnTab(ctx, tabID, jsPageStatus(), &out); err != nil {
		return PageStatus{}, err
	}
	return out, nil
}

// CollectElements returns the raw facts of every form element on the tab.
func (c *Client) CollectElements(ctx context.Context, tabID string) ([]settings.ElementFacts, error) {
	var out struct {
		Elements []settings.ElementFacts `json:"elements"`
	}
	if err := c.evalOnTab(ctx, tabID, jsCollectElements(), &out); err != nil {
		return nil, err
	}
	if out.Elements == nil {
		return []settings.ElementFacts{}, nil
	}
	return out.Elements, nil
}

// ExpandSections opens the collapsible cards of the tab and returns how many
// toggle buttons it found.
func (c *Client) ExpandSections(ctx context.Context, tabID string) (int, error) {
	var out struct {
		Buttons int `json:"buttons"`
		Clicks  int `json:"clicks"`
	}
	if err := c.evalOnTab(ctx, tabID, jsExpandSections(), &out); err != nil {
		return 0, err
	}
	slog.Debug("cdpcontrol sections expanded", "tab_id", tabID, "buttons", out.Buttons, "clicks", out.Clicks)
	return out.Buttons, nil
}

func (c *Client) InspectSetting(ctx context.Context, tabID string, s settings.ExportedSetting, mode settings.Visibility) (settings.FieldState, error) {
	if s.Selector == "" {
		return settings.FieldState{}, nil
	}
	var out settings.FieldState
	if err := c.evalOnTab(ctx, tabID, jsInspectSetting(s.Selector, mode), &out); err != nil {
		return settings.FieldState{}, err
	}
	return out, nil
}

// CommitSetting posts SET_SCS_FIELD to the page bridge and waits for the
// matching SCS_FIELD_RESULT. The page gets half the eval timeout to answer.
func (c *Client) CommitSetting(ctx context.Context, tabID string, req settings.CommitRequest) (settings.CommitAck, error) {
	wait := c.evalTimeout / 2
	if wait <= 0 {
		wait = 5 * time.Second
	}
	var out settings.CommitAck
	if err := c.evalOnTab(ctx, tabID, jsCommitSetting(req, int(wait/time.Millisecond)), &out); err != nil {
		return settings.CommitAck{}, err
	}
	return out, nil
}

func (c *Client) WriteDOM(ctx context.Context, tabID string, s settings.ExportedSetting) error {
	return c.evalOnTab(ctx, tabID, jsWriteDOM(s), nil)
}

// ActivePage returns the data-resource of the active navigation button, or
// "" when none is marked active.
func (c *Client) ActivePage(ctx context.Context, tabID string) (string, error) {
	var out struct {
		Page string `json:"page"`
	}
	if err := c.evalOnTab(ctx, tabID, jsActivePage(), &out); err != nil {
		return "", err
	}
	return out.Page, nil
}

func (c *Client) NavigatePage(ctx context.Context, tabID, path string) error {
	if path == "" {
		return newError(CodeValidation, "page path is required", nil)
	}
	return c.evalOnTab(ctx, tabID, jsNavigatePage(path), nil)
}
