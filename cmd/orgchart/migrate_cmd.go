package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context(), root.conf, "migrate")
			// Opening a sqlite or postgres store runs its migrations.
			_, closeRepo, err := openRepository(ctx, root.conf)
			if err != nil {
				return err
			}
			closeRepo()

			type migrateOutput struct {
				Command string `json:"command"`
				Backend string `json:"backend"`
			}
			return writeJSONLine(cmd.OutOrStdout(), migrateOutput{Command: "migrate", Backend: root.conf.StoreBackend})
		},
	}
}
