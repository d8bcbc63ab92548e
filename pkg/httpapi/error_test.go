package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	require.NoError(t, WriteError(rr, http.StatusConflict, "req-9", "ORGCHART_CYCLE", "cycle"))

	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	var got ErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, ErrorEnvelope{Code: "ORGCHART_CYCLE", Message: "cycle", Meta: map[string]string{"request_id": "req-9"}}, got)
}

func TestWriteError_OmitsEmptyMeta(t *testing.T) {
	rr := httptest.NewRecorder()
	require.NoError(t, WriteError(rr, http.StatusNotFound, "", "NOT_FOUND", "missing"))
	require.NotContains(t, rr.Body.String(), "meta")
}

func TestWriteJSON_NilPayload(t *testing.T) {
	rr := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rr, http.StatusNoContent, nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Empty(t, rr.Body.String())
}
