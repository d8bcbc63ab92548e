package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/orgchart/modules/orgchart/services"
)

func newKpiCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kpi",
		Short: "Inspect and extend the KPI catalog",
	}
	cmd.AddCommand(newKpiListCmd(root), newKpiAddCmd(root))
	return cmd
}

func newKpiListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List KPIs and strategic indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context(), root.conf, "kpi.list")
			session, closeRepo, err := openSession(ctx, root.conf)
			if err != nil {
				return err
			}
			defer closeRepo()

			type kpiListOutput struct {
				KPIs                any `json:"kpis"`
				StrategicIndicators any `json:"strategic_indicators"`
			}
			return writeJSONLine(cmd.OutOrStdout(), kpiListOutput{
				KPIs:                session.KPIs(),
				StrategicIndicators: session.StrategicIndicators(),
			})
		},
	}
}

func newKpiAddCmd(root *rootOptions) *cobra.Command {
	var dto services.KpiDTO

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a KPI to the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fields, ok := dto.Ok(); !ok {
				return withCode(exitUsage, &services.InvalidInputError{Fields: fields})
			}
			ctx := commandContext(cmd.Context(), root.conf, "kpi.add")
			session, closeRepo, err := openSession(ctx, root.conf)
			if err != nil {
				return err
			}
			defer closeRepo()

			k, created, err := session.AddKpi(ctx, dto)
			if err != nil {
				return serviceCode(err)
			}
			type kpiAddOutput struct {
				KPI     any  `json:"kpi"`
				Created bool `json:"created"`
			}
			return writeJSONLine(cmd.OutOrStdout(), kpiAddOutput{KPI: k, Created: created})
		},
	}
	cmd.Flags().StringVar(&dto.Name, "name", "", "KPI name (required)")
	cmd.Flags().StringVar(&dto.Formula, "formula", "", "Formula text")
	cmd.Flags().StringVar(&dto.StrategicIndicator, "indicator", "", "Strategic indicator the KPI is aligned to")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// parseWeightedKPI splits "Sales=60" into its name and weight.
func parseWeightedKPI(v string) (string, int, error) {
	i := strings.LastIndex(v, "=")
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid --kpi %q (expected name=weight)", v)
	}
	weight, err := strconv.Atoi(strings.TrimSpace(v[i+1:]))
	if err != nil {
		return "", 0, fmt.Errorf("invalid weight in --kpi %q: %w", v, err)
	}
	return strings.TrimSpace(v[:i]), weight, nil
}

func newAssignCmd(root *rootOptions) *cobra.Command {
	var (
		positionName string
		kpis         []string
		unassign     []string
	)

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Set a position's KPI weights and store them once they sum to 100",
		RunE: func(cmd *cobra.Command, args []string) error {
			type weighted struct {
				name   string
				weight int
			}
			parsed := make([]weighted, 0, len(kpis))
			for _, v := range kpis {
				name, weight, err := parseWeightedKPI(v)
				if err != nil {
					return withCode(exitUsage, err)
				}
				parsed = append(parsed, weighted{name: name, weight: weight})
			}

			ctx := commandContext(cmd.Context(), root.conf, "assign")
			session, closeRepo, err := openSession(ctx, root.conf)
			if err != nil {
				return err
			}
			defer closeRepo()

			for _, name := range unassign {
				if _, err := session.Unassign(positionName, name); err != nil {
					return serviceCode(err)
				}
			}
			for _, p := range parsed {
				if _, err := session.Assign(services.AssignmentDTO{Position: positionName, KPI: p.name, Weight: p.weight}); err != nil {
					return serviceCode(err)
				}
			}
			out, err := session.PersistAssignments(ctx, positionName)
			if err != nil {
				return serviceCode(err)
			}
			return writeJSONLine(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&positionName, "position", "", "Position to assign (required)")
	cmd.Flags().StringArrayVar(&kpis, "kpi", nil, "KPI and weight as name=weight (repeatable)")
	cmd.Flags().StringArrayVar(&unassign, "unassign", nil, "KPI to drop from the position (repeatable)")
	_ = cmd.MarkFlagRequired("position")
	return cmd
}

func newDistributeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "distribute",
		Short: "Assign every strategic indicator to the root with equitable weights",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context(), root.conf, "distribute")
			session, closeRepo, err := openSession(ctx, root.conf)
			if err != nil {
				return err
			}
			defer closeRepo()

			res, err := session.DistributeStrategicIndicators(ctx)
			if err != nil {
				return serviceCode(err)
			}
			return writeJSONLine(cmd.OutOrStdout(), res)
		},
	}
}
