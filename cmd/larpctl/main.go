// Command larpctl is the operator CLI: schema migrations, bootstrapping
// admin keys, and offline action previews for scenario writers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "larpctl",
		Short:         "Operate a LARP server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newPreviewCmd())
	root.AddCommand(newEnvCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
