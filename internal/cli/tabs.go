package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/dgnsrekt/shotover_agent/internal/cdpcontrol"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// Tabs lists the Shotover tabs the controller sees.
func (c Cmd) Tabs(ctx context.Context, asJSON bool) error {
	tabs, err := c.api.ListTabs(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return c.printJSON(tabs)
	}
	if len(tabs) == 0 {
		pterm.Info.Println("No Shotover tabs open")
		return nil
	}
	rows := pterm.TableData{{"Tab ID", "URL", "Title"}}
	rows = append(rows, lo.Map(tabs, func(t cdpcontrol.TabInfo, _ int) []string {
		return []string{t.TabID, t.URL, dash(t.Title)}
	})...)
	return printTable(rows)
}

// StatusInput holds input for the status command.
type StatusInput struct {
	TabID    string
	Track    bool
	WaitIdle time.Duration
	JSON     bool
}

// Status reports the pending HTML request count of a tab, optionally
// starting to track it or waiting for it to go idle first.
func (c Cmd) Status(ctx context.Context, in StatusInput) error {
	if in.Track {
		ack, err := c.api.Track(ctx, in.TabID)
		if err != nil {
			return err
		}
		if !in.JSON {
			pterm.Info.Printfln("Tracking tab %s", ack.TabID)
		}
	}
	if in.WaitIdle > 0 {
		if !in.JSON {
			pterm.Info.Printfln("Waiting up to %s for tab %s to go idle...", in.WaitIdle, lo.Ternary(in.TabID == "", "active", in.TabID))
		}
		if err := c.api.WaitIdle(ctx, in.TabID, in.WaitIdle); err != nil {
			return err
		}
	}
	st, err := c.api.Status(ctx, in.TabID)
	if err != nil {
		return err
	}
	if in.JSON {
		return c.printJSON(st)
	}
	if st.Pending == 0 {
		pterm.Success.Printfln("Tab %s is idle (%d waiting clients)", st.TabID, st.Connections)
		return nil
	}
	pterm.Info.Printfln("Tab %s has %d pending HTML requests (%d waiting clients)", st.TabID, st.Pending, st.Connections)
	return nil
}

// Page shows the tab's URL, active page and field count.
func (c Cmd) Page(ctx context.Context, tabID, navigate string, asJSON bool) error {
	if navigate != "" {
		if err := c.api.Navigate(ctx, tabID, navigate); err != nil {
			return err
		}
	}
	st, err := c.api.PageStatus(ctx, tabID)
	if err != nil {
		return err
	}
	if asJSON {
		return c.printJSON(st)
	}
	rows := pterm.TableData{{"Property", "Value"}}
	rows = append(rows, []string{"URL", st.URL})
	rows = append(rows, []string{"Active Page", dash(st.ActivePage)})
	rows = append(rows, []string{"Has Fields", strconv.FormatBool(st.HasFields)})
	rows = append(rows, []string{"Field Count", strconv.Itoa(st.FieldCount)})
	return printTable(rows)
}

func newTabsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tabs",
		Short: "List open Shotover tabs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdFrom(cmd).Tabs(cmd.Context(), jsonFlag(cmd))
		},
	}
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the pending HTML request count of a tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			track, _ := cmd.Flags().GetBool("track")
			wait, _ := cmd.Flags().GetDuration("wait-idle")
			return cmdFrom(cmd).Status(cmd.Context(), StatusInput{TabID: tabFlag(cmd), Track: track, WaitIdle: wait, JSON: jsonFlag(cmd)})
		},
	}
	cmd.Flags().Bool("track", false, "Start tracking the tab first")
	cmd.Flags().Duration("wait-idle", 0, "Wait up to this long for the tab to go idle")
	return cmd
}

func newPageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "page",
		Short: "Show the tab's active page, optionally navigating first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nav, _ := cmd.Flags().GetString("navigate")
			return cmdFrom(cmd).Page(cmd.Context(), tabFlag(cmd), nav, jsonFlag(cmd))
		},
	}
	cmd.Flags().String("navigate", "", "Page path to click in the navigation bar, e.g. /cameras")
	return cmd
}
