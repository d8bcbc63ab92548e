package services

import (
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iota-uz/orgchart/pkg/constants"
)

type KpiDTO struct {
	Name               string `json:"name" validate:"required,max=255"`
	Formula            string `json:"formula"`
	StrategicIndicator string `json:"strategic_indicator" validate:"max=255"`
}

func (d *KpiDTO) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Formula = strings.TrimSpace(d.Formula)
	d.StrategicIndicator = strings.TrimSpace(d.StrategicIndicator)
}

func (d *KpiDTO) Ok() (map[string]string, bool) {
	d.Normalize()
	return validationErrors(constants.Validate.Struct(d))
}

type AssignmentDTO struct {
	Position string `json:"position" validate:"required"`
	KPI      string `json:"kpi" validate:"required"`
	Weight   int    `json:"weight" validate:"gte=0,lte=100"`
}

func (d *AssignmentDTO) Normalize() {
	d.Position = strings.TrimSpace(d.Position)
	d.KPI = strings.TrimSpace(d.KPI)
}

func (d *AssignmentDTO) Ok() (map[string]string, bool) {
	d.Normalize()
	return validationErrors(constants.Validate.Struct(d))
}

// ChoiceDTO is one correction-form entry. A blank or placeholder Value clears the choice.
type ChoiceDTO struct {
	Position string `json:"position" validate:"required"`
	Value    string `json:"value"`
}

func (d *ChoiceDTO) Normalize() {
	d.Position = strings.TrimSpace(d.Position)
	d.Value = strings.TrimSpace(d.Value)
}

func (d *ChoiceDTO) Ok() (map[string]string, bool) {
	d.Normalize()
	return validationErrors(constants.Validate.Struct(d))
}

// InvalidInputError carries per-field validation tags ("Weight": "lte").
type InvalidInputError struct {
	Fields map[string]string
}

func (e *InvalidInputError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, name := range sortedKeys(e.Fields) {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

func validationErrors(errs error) (map[string]string, bool) {
	if errs == nil {
		return map[string]string{}, true
	}
	out := make(map[string]string)
	verrs, ok := errs.(validator.ValidationErrors)
	if !ok {
		out["_"] = errs.Error()
		return out, false
	}
	for _, err := range verrs {
		out[err.Field()] = err.Tag()
	}
	return out, false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
