package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/orgchart/modules/orgchart/services"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report missing levels, missing superiors, duplicates and cycles of the stored roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context(), root.conf, "validate")
			session, closeRepo, err := openSession(ctx, root.conf)
			if err != nil {
				return err
			}
			defer closeRepo()

			rep, verr := session.Validate()
			var cyclic *services.CyclicHierarchyError
			if verr != nil && !errors.As(verr, &cyclic) {
				return serviceCode(verr)
			}
			if err := writeJSONLine(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if verr != nil {
				return withCode(exitValidation, verr)
			}
			if strict && !rep.Complete() {
				return withCode(exitValidation, fmt.Errorf("roster incomplete: %d positions without level, %d without superior",
					len(rep.MissingLevels), len(rep.MissingSuperiors)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with code 2 while anything is left to resolve")
	return cmd
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the resolution stage of the stored roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context(), root.conf, "status")
			session, closeRepo, err := openSession(ctx, root.conf)
			if err != nil {
				return err
			}
			defer closeRepo()
			return writeJSONLine(cmd.OutOrStdout(), session.Status())
		},
	}
}
