package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
	"github.com/iota-uz/orgchart/modules/orgchart/infrastructure/persistence"
	"github.com/iota-uz/orgchart/modules/orgchart/infrastructure/tabular"
	"github.com/iota-uz/orgchart/modules/orgchart/services"
	"github.com/iota-uz/orgchart/pkg/configuration"
)

type importOptions struct {
	sourceID string
	format   string
	sheet    string
	apply    bool
}

type commandOutput struct {
	Command    string `json:"command"`
	DryRun     bool   `json:"dry_run,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Result     any    `json:"result"`
}

func newImportCmd(root *rootOptions) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a roster from CSV or XLSX (dry-run unless --apply)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context(), root.conf, "import")
			return runImport(ctx, cmd.OutOrStdout(), root.conf, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Store the roster (default is dry-run)")
	cmd.Flags().StringVar(&opts.sourceID, "source-id", "", "Source identifier (default: file name)")
	cmd.Flags().StringVar(&opts.format, "format", "", "Input format: csv|xlsx (default: from extension)")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "XLSX sheet to read (default: first sheet)")
	return cmd
}

func readRoster(path string, opts importOptions) ([]roster.Row, error) {
	formatName := opts.format
	if strings.TrimSpace(formatName) == "" {
		formatName = filepath.Ext(path)
	}
	format, err := tabular.ParseFormat(formatName)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()

	var table tabular.Table
	if format == tabular.FormatXLSX && opts.sheet != "" {
		table, err = tabular.ReadXLSX(f, opts.sheet)
	} else {
		table, err = tabular.Read(f, format)
	}
	if err != nil {
		return nil, withCode(exitValidation, fmt.Errorf("read %s: %w", path, err))
	}
	rows, err := table.Rows()
	if err != nil {
		return nil, withCode(exitValidation, err)
	}
	return rows, nil
}

func runImport(ctx context.Context, w io.Writer, conf *configuration.Configuration, path string, opts importOptions) error {
	start := time.Now()
	rows, err := readRoster(path, opts)
	if err != nil {
		return err
	}
	sourceID := strings.TrimSpace(opts.sourceID)
	if sourceID == "" {
		sourceID = filepath.Base(path)
	}

	var res services.ImportResult
	if !opts.apply {
		sessOpts, err := sessionOptions(conf)
		if err != nil {
			return err
		}
		session := services.NewSession(persistence.NewMemoryRepository(), sessOpts...)
		res, err = session.Preview(ctx, sourceID, rows)
		if err != nil {
			return serviceCode(err)
		}
	} else {
		session, closeRepo, err := openSession(ctx, conf)
		if err != nil {
			return err
		}
		defer closeRepo()
		res, err = session.Import(ctx, sourceID, rows)
		if err != nil {
			return serviceCode(err)
		}
	}

	return writeJSONLine(w, commandOutput{
		Command:    "import",
		DryRun:     !opts.apply,
		DurationMS: time.Since(start).Milliseconds(),
		Result:     res,
	})
}
