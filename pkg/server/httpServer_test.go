package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type pingController struct{}

func (pingController) Key() string { return "/ping" }

func (pingController) Register(r *mux.Router) {
	r.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("pong", 512)))
	}).Methods(http.MethodGet)
}

func tagMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Tag", "seen")
		next.ServeHTTP(w, r)
	})
}

func newTestServer() *HTTPServer {
	return NewHTTPServer(
		[]Controller{pingController{}},
		[]mux.MiddlewareFunc{tagMiddleware},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }),
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusMethodNotAllowed) }),
	)
}

func TestRouter_WrapsFallbackHandlersWithMiddleware(t *testing.T) {
	r := newTestServer().Router()

	for _, tc := range []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/ping", http.StatusOK},
		{http.MethodGet, "/missing", http.StatusNotFound},
		{http.MethodPost, "/ping", http.StatusMethodNotAllowed},
	} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		require.Equal(t, tc.want, rr.Code, tc.method+" "+tc.path)
		require.Equal(t, "seen", rr.Header().Get("X-Tag"))
	}
}

func TestHandler_Gzip(t *testing.T) {
	h := newTestServer().Handler()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))
}

func TestStart_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestServer().Start(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
