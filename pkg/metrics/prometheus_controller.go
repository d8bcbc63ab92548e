package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusController exposes the default registry for scraping.
type PrometheusController struct {
	path string
}

func NewPrometheusController(path string) *PrometheusController {
	if path == "" {
		path = "/metrics"
	}
	return &PrometheusController{path: path}
}

func (c *PrometheusController) Key() string {
	return c.path
}

func (c *PrometheusController) Register(r *mux.Router) {
	r.Handle(c.path, promhttp.Handler()).Methods(http.MethodGet)
}
