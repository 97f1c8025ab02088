package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dgnsrekt/shotover_agent/internal/snapshot"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// ConfigShow prints the loaded settings file.
func (c Cmd) ConfigShow(ctx context.Context, asJSON bool) error {
	cfg, err := c.api.LoadedConfig(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return c.printJSON(cfg)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, cfg.FileContent, "", "  "); err != nil {
		return fmt.Errorf("loaded file %s: %w", cfg.FileName, err)
	}
	pterm.Info.Printfln("Loaded file: %s (%d bytes)", cfg.FileName, pretty.Len())
	_, err = fmt.Fprintln(c.out, pretty.String())
	return err
}

// ConfigClear empties the loaded settings slot.
func (c Cmd) ConfigClear(ctx context.Context) error {
	if err := c.api.ClearLoadedConfig(ctx); err != nil {
		return err
	}
	pterm.Success.Println("Loaded settings cleared")
	return nil
}

// ConfigSet replaces the loaded settings file.
func (c Cmd) ConfigSet(ctx context.Context, file string) error {
	return c.setLoadedFromFile(ctx, file)
}

// ExportsList lists archived exports, newest first.
func (c Cmd) ExportsList(ctx context.Context, asJSON bool) error {
	metas, err := c.api.ListExports(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return c.printJSON(metas)
	}
	if len(metas) == 0 {
		pterm.Info.Println("No exports found")
		return nil
	}
	rows := pterm.TableData{{"ID", "Created", "Format", "Page", "Settings", "Size"}}
	rows = append(rows, lo.Map(metas, func(m snapshot.ExportMeta, _ int) []string {
		return []string{m.ID, m.CreatedAt.Local().Format(time.DateTime), m.Format, dash(m.Page), strconv.Itoa(m.SettingCount), strconv.Itoa(m.SizeBytes)}
	})...)
	return printTable(rows)
}

// ExportsGet writes an archived document to outFile, or stdout.
func (c Cmd) ExportsGet(ctx context.Context, id, outFile string) error {
	data, err := c.api.ExportDocument(ctx, id)
	if err != nil {
		return err
	}
	if outFile == "" {
		_, err := c.out.Write(data)
		return err
	}
	if err := writeDocument(outFile, string(data)); err != nil {
		return err
	}
	pterm.Success.Printfln("Wrote export %s to %s", id, outFile)
	return nil
}

// ExportsLoad copies an archived export into the loaded settings slot.
func (c Cmd) ExportsLoad(ctx context.Context, id string) error {
	cfg, err := c.api.LoadExport(ctx, id)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("Loaded export %s as %s", id, cfg.FileName)
	return nil
}

func (c Cmd) ExportsDelete(ctx context.Context, id string) error {
	if err := c.api.DeleteExport(ctx, id); err != nil {
		return err
	}
	pterm.Success.Printfln("Export %s deleted", id)
	return nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show, replace or clear the loaded settings file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the loaded settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdFrom(cmd).ConfigShow(cmd.Context(), jsonFlag(cmd))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <file.json>",
		Short: "Replace the loaded settings file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdFrom(cmd).ConfigSet(cmd.Context(), args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the loaded settings slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdFrom(cmd).ConfigClear(cmd.Context())
		},
	})
	return cmd
}

func newExportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exports",
		Short: "Manage archived exports",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdFrom(cmd).ExportsList(cmd.Context(), jsonFlag(cmd))
		},
	})
	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Download an archived settings document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			return cmdFrom(cmd).ExportsGet(cmd.Context(), args[0], out)
		},
	}
	get.Flags().String("out", "", "Write the document to this file instead of stdout")
	cmd.AddCommand(get)
	cmd.AddCommand(&cobra.Command{
		Use:   "load <id>",
		Short: "Make an archived export the loaded settings file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdFrom(cmd).ExportsLoad(cmd.Context(), args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an archived export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdFrom(cmd).ExportsDelete(cmd.Context(), args[0])
		},
	})
	return cmd
}
