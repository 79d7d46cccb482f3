package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/larp/internal/plugins/access"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage access keys",
	}

	var name string
	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Issue an admin key (printed once)",
		Long: `Issue an admin key. Admin keys manage the scenario catalog and create
games; every other key is issued through the API. The raw key is printed
once and cannot be recovered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := access.NewKeyService(access.NewKeyRepository(db))
			res, err := svc.CreateKey(cmd.Context(), access.CreateKeyInput{
				Name:  name,
				Scope: access.ScopeAdmin,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:  %s\n", res.Key.ID)
			fmt.Fprintf(out, "key: %s\n", res.RawKey)
			return nil
		},
	}
	createAdmin.Flags().StringVar(&name, "name", "admin", "label for the key")
	cmd.AddCommand(createAdmin)

	return cmd
}
