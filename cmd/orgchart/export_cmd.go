package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
	"github.com/iota-uz/orgchart/modules/orgchart/infrastructure/tabular"
	"github.com/iota-uz/orgchart/pkg/configuration"
)

type exportOptions struct {
	output string
	format string
}

type exportResult struct {
	Output string `json:"output"`
	Format string `json:"format"`
	Rows   int    `json:"rows"`
}

func newExportCmd(root *rootOptions) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the flat KPI report as CSV or XLSX",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context(), root.conf, "export")
			return runExport(ctx, cmd.OutOrStdout(), root.conf, opts)
		},
	}
	cmd.Flags().StringVar(&opts.output, "output", "", "Output file (required)")
	cmd.Flags().StringVar(&opts.format, "format", "", "Output format: csv|xlsx (default: from extension)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runExport(ctx context.Context, w io.Writer, conf *configuration.Configuration, opts exportOptions) error {
	start := time.Now()
	if strings.TrimSpace(opts.output) == "" {
		return withCode(exitUsage, fmt.Errorf("--output is required"))
	}
	formatName := opts.format
	if strings.TrimSpace(formatName) == "" {
		formatName = filepath.Ext(opts.output)
	}
	format, err := tabular.ParseFormat(formatName)
	if err != nil {
		return withCode(exitUsage, err)
	}

	session, closeRepo, err := openSession(ctx, conf)
	if err != nil {
		return err
	}
	defer closeRepo()

	rows := session.Report()
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.Values())
	}

	var buf bytes.Buffer
	if err := tabular.Write(&buf, format, roster.ExportHeader, records); err != nil {
		return withCode(exitDB, fmt.Errorf("render %s: %w", format, err))
	}
	if dir := filepath.Dir(opts.output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return withCode(exitDB, fmt.Errorf("mkdir %s: %w", dir, err))
		}
	}
	if err := os.WriteFile(opts.output, buf.Bytes(), 0o644); err != nil {
		return withCode(exitDB, fmt.Errorf("write %s: %w", opts.output, err))
	}

	return writeJSONLine(w, commandOutput{
		Command:    "export",
		DurationMS: time.Since(start).Milliseconds(),
		Result:     exportResult{Output: opts.output, Format: string(format), Rows: len(rows)},
	})
}
