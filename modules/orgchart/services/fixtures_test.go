package services

import (
	"github.com/iota-uz/orgchart/modules/orgchart/domain/kpi"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
)

func sampleRows() []roster.Row {
	return []roster.Row{
		{Line: 2, Position: "CEO", Level: "CEO", Indicator: "Revenue", Weight: 100, AlignedTo: "Growth"},
		{Line: 3, Position: "Gerente Ventas", Superior: "CEO", Level: "Gerente", Indicator: "Sales", Weight: 60, AlignedTo: "Growth"},
		{
			Line: 4, Position: "Gerente Ventas", Superior: "CEO", Level: "Gerente", Indicator: "Churn", Weight: 40,
			AlignedTo: "Retention", Meta: kpi.Metadata{Frequency: "Monthly", Owner: "CRM"},
		},
		{Line: 5, Position: "Analista", Superior: "Gerente Ventas", Indicator: "Leads", Weight: 100},
		{Line: 6, Position: "Auxiliar", Level: "Operativo"},
	}
}
