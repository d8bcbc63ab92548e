package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
	"github.com/iota-uz/orgchart/modules/orgchart/services"
	"github.com/iota-uz/orgchart/pkg/configuration"
)

// choicesFile maps position name to the chosen value, per field.
type choicesFile struct {
	Levels    map[string]string `yaml:"levels"`
	Superiors map[string]string `yaml:"superiors"`
}

func readChoicesFile(path string) (choicesFile, error) {
	var out choicesFile
	f, err := os.Open(path)
	if err != nil {
		return out, withCode(exitUsage, fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil && err != io.EOF {
		return out, withCode(exitValidation, fmt.Errorf("decode %s: %w", path, err))
	}
	return out, nil
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func newResolveCmd(root *rootOptions) *cobra.Command {
	var (
		choicesPath string
		fields      []string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Record level and superior choices from a YAML file and commit them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context(), root.conf, "resolve")
			return runResolve(ctx, cmd.OutOrStdout(), root.conf, choicesPath, fields)
		},
	}
	cmd.Flags().StringVar(&choicesPath, "choices", "", "YAML file with levels: and superiors: maps (required)")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "Fields to commit: level,superior (default: those present in the file)")
	_ = cmd.MarkFlagRequired("choices")
	return cmd
}

func runResolve(ctx context.Context, w io.Writer, conf *configuration.Configuration, choicesPath string, fieldNames []string) error {
	start := time.Now()
	choices, err := readChoicesFile(choicesPath)
	if err != nil {
		return err
	}

	var fields []position.Field
	for _, name := range fieldNames {
		f := position.Field(strings.ToLower(strings.TrimSpace(name)))
		if !f.Valid() {
			return withCode(exitUsage, fmt.Errorf("invalid --fields value %q (expected level|superior)", name))
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		if len(choices.Levels) > 0 {
			fields = append(fields, position.FieldLevel)
		}
		if len(choices.Superiors) > 0 {
			fields = append(fields, position.FieldSuperior)
		}
	}
	if len(fields) == 0 {
		return withCode(exitUsage, fmt.Errorf("%s holds no choices", choicesPath))
	}

	session, closeRepo, err := openSession(ctx, conf)
	if err != nil {
		return err
	}
	defer closeRepo()

	for _, name := range sortedNames(choices.Levels) {
		if err := session.RecordLevelChoice(services.ChoiceDTO{Position: name, Value: choices.Levels[name]}); err != nil {
			return serviceCode(fmt.Errorf("level of %q: %w", name, err))
		}
	}
	for _, name := range sortedNames(choices.Superiors) {
		if err := session.RecordSuperiorChoice(services.ChoiceDTO{Position: name, Value: choices.Superiors[name]}); err != nil {
			return serviceCode(fmt.Errorf("superior of %q: %w", name, err))
		}
	}

	res, err := session.Commit(ctx, fields...)
	if err != nil {
		return serviceCode(err)
	}
	return writeJSONLine(w, commandOutput{
		Command:    "resolve",
		DurationMS: time.Since(start).Milliseconds(),
		Result:     res,
	})
}

func newReassignCmd(root *rootOptions) *cobra.Command {
	var name, superior, level string

	cmd := &cobra.Command{
		Use:   "reassign",
		Short: "Overwrite the superior or level of one position",
		RunE: func(cmd *cobra.Command, args []string) error {
			superiorSet := cmd.Flags().Changed("superior")
			levelSet := cmd.Flags().Changed("level")
			if !superiorSet && !levelSet {
				return withCode(exitUsage, fmt.Errorf("--superior or --level is required"))
			}

			ctx := commandContext(cmd.Context(), root.conf, "reassign")
			session, closeRepo, err := openSession(ctx, root.conf)
			if err != nil {
				return err
			}
			defer closeRepo()

			if superiorSet {
				if err := session.ReassignSuperior(ctx, services.ChoiceDTO{Position: name, Value: superior}); err != nil {
					return serviceCode(err)
				}
			}
			if levelSet {
				if err := session.ReassignLevel(ctx, services.ChoiceDTO{Position: name, Value: level}); err != nil {
					return serviceCode(err)
				}
			}
			return writeJSONLine(cmd.OutOrStdout(), session.Status())
		},
	}
	cmd.Flags().StringVar(&name, "position", "", "Position to change (required)")
	cmd.Flags().StringVar(&superior, "superior", "", "New superior; empty clears it")
	cmd.Flags().StringVar(&level, "level", "", "New level label")
	_ = cmd.MarkFlagRequired("position")
	return cmd
}
