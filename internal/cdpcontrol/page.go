package cdpcontrol

import (
	"context"

	"github.com/dgnsrekt/shotover_agent/internal/settings"
)

// TabPage binds a Client to one tab so the settings package can drive it.
type TabPage struct {
	client *Client
	tabID  string
}

func (c *Client) Page(tabID string) *TabPage {
	return &TabPage{client: c, tabID: tabID}
}

func (p *TabPage) Inspect(ctx context.Context, s settings.ExportedSetting, mode settings.Visibility) (settings.FieldState, error) {
	return p.client.InspectSetting(ctx, p.tabID, s, mode)
}

func (p *TabPage) Commit(ctx context.Context, req settings.CommitRequest) (settings.CommitAck, error) {
	return p.client.CommitSetting(ctx, p.tabID, req)
}

func (p *TabPage) WriteDOM(ctx context.Context, s settings.ExportedSetting) error {
	return p.client.WriteDOM(ctx, p.tabID, s)
}

func (p *TabPage) ExpandSections(ctx context.Context) (int, error) {
	return p.client.ExpandSections(ctx, p.tabID)
}

var (
	_ settings.Page          = (*TabPage)(nil)
	_ settings.SectionOpener = (*TabPage)(nil)
)
