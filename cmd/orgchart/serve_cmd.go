package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/orgchart/modules/orgchart/presentation/controllers"
	"github.com/iota-uz/orgchart/pkg/composables"
	"github.com/iota-uz/orgchart/pkg/configuration"
	"github.com/iota-uz/orgchart/pkg/httpapi"
	"github.com/iota-uz/orgchart/pkg/metrics"
	"github.com/iota-uz/orgchart/pkg/middleware"
	"github.com/iota-uz/orgchart/pkg/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query and correction API",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := root.conf
			if addr != "" {
				conf.ServerAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = commandContext(ctx, conf, "serve")

			session, closeRepo, err := openSession(ctx, conf)
			if err != nil {
				return err
			}
			defer closeRepo()

			srv, err := newHTTPServer(conf, controllers.NewOrgChartAPIController(
				session,
				controllers.WithMaxUploadSize(conf.MaxUploadSize),
			))
			if err != nil {
				return withCode(exitUsage, err)
			}
			composables.UseLogger(ctx).WithField("addr", conf.ServerAddr).Info("orgchart.serve.listening")
			if err := srv.Start(ctx, conf.ServerAddr); err != nil {
				return withCode(exitDB, fmt.Errorf("serve: %w", err))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: SERVER_ADDR)")
	return cmd
}

func newHTTPServer(conf *configuration.Configuration, api server.Controller) (*server.HTTPServer, error) {
	logger := conf.Logger()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(logger, middleware.LoggerOptions{
			RequestIDHeader: conf.RequestIDHeader,
			RealIPHeader:    conf.RealIPHeader,
		}),
		middleware.Cors(conf.CorsOrigins...),
	}
	if conf.RateLimit.Enabled {
		limit, err := middleware.RateLimit(middleware.RateLimitConfig{
			Rate:  conf.RateLimit.Rate,
			Store: middleware.NewMemoryStore(),
		})
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RATE=%q: %w", conf.RateLimit.Rate, err)
		}
		middlewares = append(middlewares, limit)
	}

	ctrls := []server.Controller{api}
	if conf.Prometheus.Enabled {
		prom := metrics.NewPrometheusController(conf.Prometheus.Path)
		ctrls = append(ctrls, prom)
		if conf.OpsGuard.Enabled {
			middlewares = append(middlewares, middleware.OpsGuard(middleware.OpsGuardConfig{
				Paths:         []string{prom.Key()},
				CIDRs:         conf.OpsGuard.CIDRs,
				Token:         conf.OpsGuard.Token,
				BasicAuthUser: conf.OpsGuard.BasicAuthUser,
				BasicAuthPass: conf.OpsGuard.BasicAuthPass,
				RealIPHeader:  conf.RealIPHeader,
			}))
		}
	}
	return server.NewHTTPServer(ctrls, middlewares, notFound(), methodNotAllowed()), nil
}

func notFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusNotFound, requestID(r), "NOT_FOUND", "route not found")
	})
}

func methodNotAllowed() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, requestID(r), "METHOD_NOT_ALLOWED", "method not allowed")
	})
}

func requestID(r *http.Request) string {
	id, _ := composables.UseRequestID(r.Context())
	return id
}
