package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/orgchart/modules/orgchart/services"
)

func newTreeCmd(root *rootOptions) *cobra.Command {
	var rootName, format string

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the hierarchy as indented text, JSON or chart graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context(), root.conf, "tree")
			session, closeRepo, err := openSession(ctx, root.conf)
			if err != nil {
				return err
			}
			defer closeRepo()

			tree, err := session.Subtree(rootName)
			if err != nil {
				return serviceCode(err)
			}
			w := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "text":
				return writeTreeText(w, tree)
			case "json":
				return writeJSONLine(w, tree)
			case "graph":
				return writeJSONLine(w, tree.Graph())
			}
			return withCode(exitUsage, fmt.Errorf("invalid --format=%q (expected text|json|graph)", format))
		},
	}
	cmd.Flags().StringVar(&rootName, "root", "", "Print only the subtree under this position")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|json|graph")
	return cmd
}

// writeTreeText prints one node per line, indented two spaces per depth, with the
// level and weighted KPIs in brackets.
func writeTreeText(w io.Writer, tree *services.Tree) error {
	if tree == nil || tree.Root == nil {
		return nil
	}
	var walk func(n *services.Node, depth int) error
	walk = func(n *services.Node, depth int) error {
		line := strings.Repeat("  ", depth) + n.Name
		if n.Level != "" {
			line += " [" + n.Level + "]"
		}
		if len(n.Assignments) > 0 {
			parts := make([]string, 0, len(n.Assignments))
			for _, a := range n.Assignments {
				parts = append(parts, fmt.Sprintf("%s %d%%", a.KPI, a.Weight))
			}
			line += " (" + strings.Join(parts, ", ") + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return withCode(exitDB, err)
		}
		for _, c := range n.Children {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(tree.Root, 0)
}
