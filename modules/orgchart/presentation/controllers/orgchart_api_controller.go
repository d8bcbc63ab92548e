package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
	"github.com/iota-uz/orgchart/modules/orgchart/infrastructure/tabular"
	"github.com/iota-uz/orgchart/modules/orgchart/services"
	"github.com/iota-uz/orgchart/pkg/composables"
	"github.com/iota-uz/orgchart/pkg/httpapi"
)

const defaultMaxUploadSize int64 = 32 << 20

type OrgChartAPIController struct {
	session       *services.Session
	maxUploadSize int64
	apiPrefix     string
}

type ControllerOption func(*OrgChartAPIController)

// WithMaxUploadSize bounds the import request body.
func WithMaxUploadSize(n int64) ControllerOption {
	return func(c *OrgChartAPIController) {
		if n > 0 {
			c.maxUploadSize = n
		}
	}
}

func NewOrgChartAPIController(session *services.Session, opts ...ControllerOption) *OrgChartAPIController {
	c := &OrgChartAPIController{
		session:       session,
		maxUploadSize: defaultMaxUploadSize,
		apiPrefix:     "/orgchart/api",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *OrgChartAPIController) Key() string {
	return c.apiPrefix
}

func (c *OrgChartAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/import", c.instrumentAPI("import", c.Import)).Methods(http.MethodPost)
	api.HandleFunc("/status", c.instrumentAPI("status", c.GetStatus)).Methods(http.MethodGet)
	api.HandleFunc("/validate", c.instrumentAPI("validate", c.GetValidation)).Methods(http.MethodGet)

	api.HandleFunc("/tree", c.instrumentAPI("tree", c.GetTree)).Methods(http.MethodGet)
	api.HandleFunc("/graph", c.instrumentAPI("graph", c.GetGraph)).Methods(http.MethodGet)
	api.HandleFunc("/levels", c.instrumentAPI("levels", c.GetLevelOptions)).Methods(http.MethodGet)

	api.HandleFunc("/pending/levels", c.instrumentAPI("pending_levels", c.GetPendingLevels)).Methods(http.MethodGet)
	api.HandleFunc("/pending/superiors", c.instrumentAPI("pending_superiors", c.GetPendingSuperiors)).Methods(http.MethodGet)
	api.HandleFunc("/choices/levels", c.instrumentAPI("choose_level", c.ChooseLevel)).Methods(http.MethodPost)
	api.HandleFunc("/choices/superiors", c.instrumentAPI("choose_superior", c.ChooseSuperior)).Methods(http.MethodPost)
	api.HandleFunc("/commit", c.instrumentAPI("commit", c.Commit)).Methods(http.MethodPost)
	api.HandleFunc("/reassign/level", c.instrumentAPI("reassign_level", c.ReassignLevel)).Methods(http.MethodPost)
	api.HandleFunc("/reassign/superior", c.instrumentAPI("reassign_superior", c.ReassignSuperior)).Methods(http.MethodPost)

	api.HandleFunc("/positions", c.instrumentAPI("positions", c.GetPositions)).Methods(http.MethodGet)
	api.HandleFunc("/positions/{name}/assignments", c.instrumentAPI("position_assignments", c.GetAssignments)).Methods(http.MethodGet)
	api.HandleFunc("/positions/{name}/assignments:persist", c.instrumentAPI("persist_assignments", c.PersistAssignments)).Methods(http.MethodPost)
	api.HandleFunc("/positions/{name}/assignments/{kpi}", c.instrumentAPI("unassign", c.Unassign)).Methods(http.MethodDelete)
	api.HandleFunc("/positions/{name}/weight", c.instrumentAPI("weight_total", c.GetWeightTotal)).Methods(http.MethodGet)

	api.HandleFunc("/kpis", c.instrumentAPI("kpis", c.GetKpis)).Methods(http.MethodGet)
	api.HandleFunc("/kpis", c.instrumentAPI("add_kpi", c.AddKpi)).Methods(http.MethodPost)
	api.HandleFunc("/assignments", c.instrumentAPI("assign", c.Assign)).Methods(http.MethodPost)

	api.HandleFunc("/strategic-indicators", c.instrumentAPI("strategic_indicators", c.GetStrategicIndicators)).Methods(http.MethodGet)
	api.HandleFunc("/strategic-indicators:distribute", c.instrumentAPI("distribute", c.Distribute)).Methods(http.MethodPost)

	api.HandleFunc("/report", c.instrumentAPI("report", c.GetReport)).Methods(http.MethodGet)
}

// Import accepts a multipart upload in field "file". The format comes from the
// "format" field or the file extension; "source_id" defaults to the file name.
// With ?dry_run=true the roster is only previewed.
func (c *OrgChartAPIController) Import(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	r.Body = http.MaxBytesReader(w, r.Body, c.maxUploadSize)
	if err := r.ParseMultipartForm(c.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, requestID, "ORGCHART_UPLOAD_TOO_LARGE", "upload exceeds "+strconv.FormatInt(c.maxUploadSize, 10)+" bytes")
			return
		}
		writeAPIError(w, http.StatusBadRequest, requestID, "ORGCHART_INVALID_BODY", "multipart form is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORGCHART_INVALID_BODY", "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	formatName := strings.TrimSpace(r.FormValue("format"))
	if formatName == "" {
		formatName = filepath.Ext(header.Filename)
	}
	format, err := tabular.ParseFormat(formatName)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORGCHART_INVALID_BODY", err.Error())
		return
	}

	table, err := tabular.Read(file, format)
	if err != nil {
		writeReadError(w, requestID, err)
		return
	}
	rows, err := table.Rows()
	if err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}

	sourceID := strings.TrimSpace(r.FormValue("source_id"))
	if sourceID == "" {
		sourceID = header.Filename
	}
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))

	var res services.ImportResult
	if dryRun {
		res, err = c.session.Preview(r.Context(), sourceID, rows)
	} else {
		res, err = c.session.Import(r.Context(), sourceID, rows)
	}
	if err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *OrgChartAPIController) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.session.Status())
}

func (c *OrgChartAPIController) GetValidation(w http.ResponseWriter, r *http.Request) {
	rep, err := c.session.Validate()
	if err != nil {
		writeServiceError(w, r, requestIDFrom(r), err)
		return
	}
	type validationResponse struct {
		services.Report
		Complete bool `json:"complete"`
	}
	writeJSON(w, http.StatusOK, validationResponse{Report: rep, Complete: rep.Complete()})
}

// GetTree returns the hierarchy, or the subtree under ?root= when given.
func (c *OrgChartAPIController) GetTree(w http.ResponseWriter, r *http.Request) {
	var (
		tree *services.Tree
		err  error
	)
	if root := strings.TrimSpace(r.URL.Query().Get("root")); root != "" {
		tree, err = c.session.Subtree(root)
	} else {
		tree, err = c.session.Tree()
	}
	if err != nil {
		writeServiceError(w, r, requestIDFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (c *OrgChartAPIController) GetGraph(w http.ResponseWriter, r *http.Request) {
	g, err := c.session.Graph()
	if err != nil {
		writeServiceError(w, r, requestIDFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (c *OrgChartAPIController) GetLevelOptions(w http.ResponseWriter, r *http.Request) {
	type levelOptionsResponse struct {
		Placeholder string           `json:"placeholder"`
		Levels      []position.Level `json:"levels"`
	}
	writeJSON(w, http.StatusOK, levelOptionsResponse{
		Placeholder: position.SelectPlaceholder,
		Levels:      c.session.LevelOptions(),
	})
}

type pendingResponse struct {
	Positions []string `json:"positions"`
}

func (c *OrgChartAPIController) GetPendingLevels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pendingResponse{Positions: nonNil(c.session.PendingMissingLevels())})
}

func (c *OrgChartAPIController) GetPendingSuperiors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pendingResponse{Positions: nonNil(c.session.PendingMissingSuperiors())})
}

func (c *OrgChartAPIController) ChooseLevel(w http.ResponseWriter, r *http.Request) {
	c.handleChoice(w, r, c.session.RecordLevelChoice)
}

func (c *OrgChartAPIController) ChooseSuperior(w http.ResponseWriter, r *http.Request) {
	c.handleChoice(w, r, c.session.RecordSuperiorChoice)
}

func (c *OrgChartAPIController) handleChoice(w http.ResponseWriter, r *http.Request, record func(services.ChoiceDTO) error) {
	requestID := requestIDFrom(r)
	var dto services.ChoiceDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORGCHART_INVALID_BODY", "invalid json body")
		return
	}
	if err := record(dto); err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, c.session.Status())
}

type commitRequest struct {
	Fields []position.Field `json:"fields"`
}

// Commit applies pending choices. An empty body commits every field.
func (c *OrgChartAPIController) Commit(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	var req commitRequest
	if err := decodeOptionalJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORGCHART_INVALID_BODY", "invalid json body")
		return
	}
	for _, f := range req.Fields {
		if !f.Valid() {
			writeAPIError(w, http.StatusBadRequest, requestID, "ORGCHART_INVALID_BODY", "fields must be level or superior")
			return
		}
	}
	res, err := c.session.Commit(r.Context(), req.Fields...)
	if err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *OrgChartAPIController) ReassignLevel(w http.ResponseWriter, r *http.Request) {
	c.handleReassign(w, r, c.session.ReassignLevel)
}

func (c *OrgChartAPIController) ReassignSuperior(w http.ResponseWriter, r *http.Request) {
	c.handleReassign(w, r, c.session.ReassignSuperior)
}

func (c *OrgChartAPIController) handleReassign(
	w http.ResponseWriter,
	r *http.Request,
	reassign func(ctx context.Context, dto services.ChoiceDTO) error,
) {
	requestID := requestIDFrom(r)
	var dto services.ChoiceDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORGCHART_INVALID_BODY", "invalid json body")
		return
	}
	if err := reassign(r.Context(), dto); err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, c.session.Status())
}

func (c *OrgChartAPIController) GetPositions(w http.ResponseWriter, r *http.Request) {
	type positionsResponse struct {
		Positions []position.Position `json:"positions"`
	}
	writeJSON(w, http.StatusOK, positionsResponse{Positions: c.session.Positions()})
}

func (c *OrgChartAPIController) GetAssignments(w http.ResponseWriter, r *http.Request) {
	out, err := c.session.KpisForPosition(mux.Vars(r)["name"])
	if err != nil {
		writeServiceError(w, r, requestIDFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgChartAPIController) GetWeightTotal(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	total, balanced, err := c.session.WeightTotal(name)
	if err != nil {
		writeServiceError(w, r, requestIDFrom(r), err)
		return
	}
	type weightResponse struct {
		Position string `json:"position"`
		Total    int    `json:"total"`
		Balanced bool   `json:"balanced"`
	}
	writeJSON(w, http.StatusOK, weightResponse{Position: strings.TrimSpace(name), Total: total, Balanced: balanced})
}

func (c *OrgChartAPIController) PersistAssignments(w http.ResponseWriter, r *http.Request) {
	out, err := c.session.PersistAssignments(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeServiceError(w, r, requestIDFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *OrgChartAPIController) Unassign(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	removed, err := c.session.Unassign(vars["name"], vars["kpi"])
	if err != nil {
		writeServiceError(w, r, requestIDFrom(r), err)
		return
	}
	if !removed {
		writeAPIError(w, http.StatusNotFound, requestIDFrom(r), "ORGCHART_NOT_FOUND", "assignment not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *OrgChartAPIController) GetKpis(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.session.KPIs())
}

func (c *OrgChartAPIController) AddKpi(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	var dto services.KpiDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORGCHART_INVALID_BODY", "invalid json body")
		return
	}
	if fields, ok := dto.Ok(); !ok {
		writeServiceError(w, r, requestID, &services.InvalidInputError{Fields: fields})
		return
	}
	k, created, err := c.session.AddKpi(r.Context(), dto)
	if err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, k)
}

// Assign drafts an assignment; it is stored by the persist endpoint.
func (c *OrgChartAPIController) Assign(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	var dto services.AssignmentDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORGCHART_INVALID_BODY", "invalid json body")
		return
	}
	if fields, ok := dto.Ok(); !ok {
		writeServiceError(w, r, requestID, &services.InvalidInputError{Fields: fields})
		return
	}
	a, err := c.session.Assign(dto)
	if err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (c *OrgChartAPIController) GetStrategicIndicators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.session.StrategicIndicators())
}

func (c *OrgChartAPIController) Distribute(w http.ResponseWriter, r *http.Request) {
	res, err := c.session.DistributeStrategicIndicators(r.Context())
	if err != nil {
		writeServiceError(w, r, requestIDFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetReport returns the flat export as JSON, or as a download with
// ?format=csv|xlsx.
func (c *OrgChartAPIController) GetReport(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	rows := c.session.Report()

	formatName := strings.TrimSpace(r.URL.Query().Get("format"))
	if formatName == "" || strings.EqualFold(formatName, "json") {
		if rows == nil {
			rows = []services.ReportRow{}
		}
		writeJSON(w, http.StatusOK, rows)
		return
	}
	format, err := tabular.ParseFormat(formatName)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORGCHART_INVALID_QUERY", err.Error())
		return
	}

	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.Values())
	}
	var buf bytes.Buffer
	if err := tabular.Write(&buf, format, roster.ExportHeader, records); err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == tabular.FormatXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="orgchart_report.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func requestIDFrom(r *http.Request) string {
	id, _ := composables.UseRequestID(r.Context())
	return id
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func decodeJSON(body io.ReadCloser, out any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(body io.ReadCloser, out any) error {
	err := decodeJSON(body, out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeReadError(w http.ResponseWriter, requestID string, err error) {
	var structure *roster.ImportStructureError
	if errors.As(err, &structure) {
		svcErr := services.ToServiceError(err)
		writeAPIError(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message)
		return
	}
	writeAPIError(w, http.StatusBadRequest, requestID, "ORGCHART_INVALID_BODY", "file could not be read: "+err.Error())
}

func writeServiceError(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	svcErr := services.ToServiceError(err)
	if svcErr.Status >= http.StatusInternalServerError {
		if logger := composables.UseLogger(r.Context()); logger != nil {
			logger.WithFields(logrus.Fields{"code": svcErr.Code}).WithError(err).Error("orgchart.api.failed")
		}
	}
	writeAPIError(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message)
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	_ = httpapi.WriteError(w, status, requestID, code, message)
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	if err := httpapi.WriteJSON(w, status, payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
