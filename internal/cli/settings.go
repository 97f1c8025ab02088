package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dgnsrekt/shotover_agent/internal/controller"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var errNotJSON = errors.New("please select a JSON file")

// SaveAllFileName is where save-all writes when --out is not given.
const SaveAllFileName = "shotover_settings.json"

func writeDocument(path, doc string) error {
	if err := os.WriteFile(path, []byte(doc+"\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ExportInput holds input for the export command.
type ExportInput struct {
	TabID   string
	OutFile string
	JSON    bool
}

// Export exports the current page. Without OutFile the document goes to
// stdout.
func (c Cmd) Export(ctx context.Context, in ExportInput) error {
	res, err := c.api.Export(ctx, in.TabID)
	if err != nil {
		return err
	}
	if in.JSON {
		return c.printJSON(res)
	}
	if in.OutFile == "" {
		_, err := fmt.Fprintln(c.out, res.JSON)
		return err
	}
	if err := writeDocument(in.OutFile, res.JSON); err != nil {
		return err
	}
	pterm.Success.Printfln("Exported %d settings from %d sections of %s to %s (export %s)", res.Count, res.Sections, dash(res.Page), in.OutFile, dash(res.ExportID))
	return nil
}

// readSettingsFile applies the same checks as picking a file in the popup.
func readSettingsFile(path string) (string, []byte, error) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return "", nil, errNotJSON
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(path), data, nil
}

// Import applies a settings file to the tab's current page.
func (c Cmd) Import(ctx context.Context, tabID, file string, asJSON bool) error {
	_, data, err := readSettingsFile(file)
	if err != nil {
		return err
	}
	res, err := c.api.Import(ctx, tabID, data)
	if err != nil {
		return err
	}
	if asJSON {
		return c.printJSON(res)
	}
	return printImport(res)
}

// SaveAll exports every configured page into one file.
func (c Cmd) SaveAll(ctx context.Context, tabID, outFile string, asJSON bool) error {
	if !asJSON {
		pterm.Info.Println("Saving all pages, this takes a while...")
	}
	res, err := c.api.SaveAll(ctx, tabID)
	if err != nil {
		return err
	}
	if asJSON {
		return c.printJSON(res)
	}
	if outFile == "" {
		outFile = SaveAllFileName
	}
	if err := writeDocument(outFile, res.JSON); err != nil {
		return err
	}

	pages := lo.Keys(res.Pages)
	sort.Strings(pages)
	rows := pterm.TableData{{"Page", "Settings"}}
	rows = append(rows, lo.Map(pages, func(p string, _ int) []string {
		return []string{p, strconv.Itoa(res.Pages[p])}
	})...)
	if err := printTable(rows); err != nil {
		return err
	}
	total := lo.Sum(lo.Values(res.Pages))
	pterm.Success.Printfln("Saved %d settings across %d pages to %s (export %s)", total, len(pages), outFile, dash(res.ExportID))
	return nil
}

// LoadInput holds input for load-page and load-all.
type LoadInput struct {
	TabID string
	Path  string
	// File, when set, replaces the loaded settings before loading.
	File string
	JSON bool
}

func (c Cmd) setLoadedFromFile(ctx context.Context, file string) error {
	name, data, err := readSettingsFile(file)
	if err != nil {
		return err
	}
	cfg, err := c.api.SetLoadedConfig(ctx, name, string(data))
	if err != nil {
		return err
	}
	pterm.Info.Printfln("Loaded %s", cfg.FileName)
	return nil
}

// LoadPage imports the loaded settings for one page.
func (c Cmd) LoadPage(ctx context.Context, in LoadInput) error {
	if in.File != "" {
		if err := c.setLoadedFromFile(ctx, in.File); err != nil {
			return err
		}
	}
	res, err := c.api.LoadPage(ctx, in.TabID, in.Path)
	if err != nil {
		return err
	}
	if in.JSON {
		return c.printJSON(res)
	}
	return printImport(res)
}

// LoadAll imports every page of the loaded page-keyed settings.
func (c Cmd) LoadAll(ctx context.Context, in LoadInput) error {
	if in.File != "" {
		if err := c.setLoadedFromFile(ctx, in.File); err != nil {
			return err
		}
	}
	res, err := c.api.LoadAll(ctx, in.TabID)
	if err != nil {
		return err
	}
	if in.JSON {
		return c.printJSON(res)
	}
	rows := pterm.TableData{{"Page", "Passes", "Committed", "Failed"}}
	rows = append(rows, lo.Map(res.Pages, func(r controller.ImportResult, _ int) []string {
		return []string{r.Page, strconv.Itoa(len(r.Passes)), strconv.Itoa(r.Committed()), strconv.Itoa(r.Failed())}
	})...)
	if err := printTable(rows); err != nil {
		return err
	}
	failed := lo.SumBy(res.Pages, func(r controller.ImportResult) int { return r.Failed() })
	if failed > 0 {
		pterm.Warning.Printfln("Loaded %d pages, %d settings failed", len(res.Pages), failed)
		return nil
	}
	pterm.Success.Printfln("Loaded %d pages", len(res.Pages))
	return nil
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the settings of the tab's current page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			return cmdFrom(cmd).Export(cmd.Context(), ExportInput{TabID: tabFlag(cmd), OutFile: out, JSON: jsonFlag(cmd)})
		},
	}
	cmd.Flags().String("out", "", "Write the document to this file instead of stdout")
	return cmd
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import a settings file into the tab's current page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdFrom(cmd).Import(cmd.Context(), tabFlag(cmd), args[0], jsonFlag(cmd))
		},
	}
}

func newSaveAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save-all",
		Short: "Export every page into one page-keyed settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			return cmdFrom(cmd).SaveAll(cmd.Context(), tabFlag(cmd), out, jsonFlag(cmd))
		},
	}
	cmd.Flags().String("out", SaveAllFileName, "Output file")
	return cmd
}

func newLoadPageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load-page <path>",
		Short: "Navigate to a page and import the loaded settings for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			return cmdFrom(cmd).LoadPage(cmd.Context(), LoadInput{TabID: tabFlag(cmd), Path: args[0], File: file, JSON: jsonFlag(cmd)})
		},
	}
	cmd.Flags().String("file", "", "Load this settings file first")
	return cmd
}

func newLoadAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load-all",
		Short: "Import every page of the loaded settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			return cmdFrom(cmd).LoadAll(cmd.Context(), LoadInput{TabID: tabFlag(cmd), File: file, JSON: jsonFlag(cmd)})
		},
	}
	cmd.Flags().String("file", "", "Load this settings file first")
	return cmd
}
