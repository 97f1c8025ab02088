package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgnsrekt/shotover_agent/internal/controller"
	"github.com/dgnsrekt/shotover_agent/internal/relay"
	"github.com/dgnsrekt/shotover_agent/internal/tabactivity"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// Watch follows the controller's event stream until ctx ends.
func (c Cmd) Watch(ctx context.Context, kinds []string, tabID string, asJSON bool) error {
	kinds = lo.Compact(lo.Map(kinds, func(k string, _ int) string { return strings.TrimSpace(k) }))
	if !asJSON {
		pterm.Info.Println("Watching controller events, Ctrl-C to stop")
	}
	return c.api.Events(ctx, kinds, tabID, func(ev Event) error {
		if asJSON {
			_, err := fmt.Fprintln(c.out, string(ev.Data))
			return err
		}
		printEvent(ev)
		return nil
	})
}

func printEvent(ev Event) {
	switch ev.Kind {
	case relay.KindTabIdle:
		var msg tabactivity.IdleMessage
		if json.Unmarshal(ev.Data, &msg) == nil {
			pterm.Success.Printfln("tab %s idle", msg.TabID)
			return
		}
	case relay.KindStatus:
		var msg controller.StatusMessage
		if json.Unmarshal(ev.Data, &msg) == nil {
			pterm.Info.Printfln("[%s] %s", msg.Flow, msg.Message)
			return
		}
	case relay.KindImport:
		var msg controller.ImportMessage
		if json.Unmarshal(ev.Data, &msg) == nil {
			p := lo.Ternary(msg.Failed > 0, pterm.Warning, pterm.Info)
			p.Printfln("import %s pass %d: %d committed, %d skipped, %d failed", dash(msg.Page), msg.Pass, msg.Committed, msg.Skipped, msg.Failed)
			return
		}
	}
	pterm.Println(ev.Kind + " " + string(ev.Data))
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream tab idle, status and import events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, _ := cmd.Flags().GetStringSlice("kinds")
			return cmdFrom(cmd).Watch(cmd.Context(), kinds, tabFlag(cmd), jsonFlag(cmd))
		},
	}
	cmd.Flags().StringSlice("kinds", nil, "Event kinds to receive: tabIdle, status, import")
	return cmd
}
