package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/larp/internal/config"
)

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables the server reads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := config.Describe()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), desc)
			return nil
		},
	}
}
