package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const defaultServer = "http://127.0.0.1:8190"

// Cmd carries what every subcommand needs.
type Cmd struct {
	api API
	out io.Writer
}

// New returns a Cmd printing machine output (JSON, raw documents) to out.
func New(api API, out io.Writer) Cmd {
	if out == nil {
		out = os.Stdout
	}
	return Cmd{api: api, out: out}
}

func serverFromEnv() string {
	if u := strings.TrimSpace(os.Getenv("SHOTOVER_CONTROLLER_URL")); u != "" {
		return u
	}
	return defaultServer
}

// cmdFrom builds the Cmd for a cobra invocation from the persistent flags.
func cmdFrom(c *cobra.Command) Cmd {
	server, _ := c.Flags().GetString("server")
	if noColor, _ := c.Flags().GetBool("no-color"); noColor {
		pterm.DisableStyling()
	}
	return New(NewHTTPClient(server, nil), c.OutOrStdout())
}

func tabFlag(c *cobra.Command) string {
	tab, _ := c.Flags().GetString("tab")
	return tab
}

func jsonFlag(c *cobra.Command) bool {
	output, _ := c.Flags().GetString("output")
	return output == "json"
}

// NewRootCmd assembles the shotoverctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shotoverctl",
		Short:         "Export and import Shotover camera settings through a running controller",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			output, _ := c.Flags().GetString("output")
			if output != "" && output != "json" {
				return errUnsupportedOutput
			}
			return nil
		},
	}
	root.PersistentFlags().String("server", serverFromEnv(), "Controller base URL (env SHOTOVER_CONTROLLER_URL)")
	root.PersistentFlags().String("tab", "", "CDP target id of the Shotover tab (default: first open tab)")
	root.PersistentFlags().StringP("output", "o", "", "Output format (json)")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")

	root.AddCommand(
		newTabsCmd(),
		newStatusCmd(),
		newPageCmd(),
		newExportCmd(),
		newImportCmd(),
		newSaveAllCmd(),
		newLoadPageCmd(),
		newLoadAllCmd(),
		newConfigCmd(),
		newExportsCmd(),
		newWatchCmd(),
	)
	return root
}

// Execute runs shotoverctl and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		pterm.Error.Println(err.Error())
		return 1
	}
	return 0
}
