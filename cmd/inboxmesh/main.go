// Command inboxmesh is a calendar and e-mail assistant. `chat` opens an
// interactive session; `watch` opens one session per new e-mail.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/inboxmesh/config"
)

var version = "dev"

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "inboxmesh",
		Short:         "Calendar and e-mail assistant driven by a multi-agent graph",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.Path()+")")

	root.AddCommand(newChatCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newAuthCmd())
	root.AddCommand(newConfigCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
