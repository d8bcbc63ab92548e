package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/iota-uz/orgchart/pkg/composables"
	"github.com/iota-uz/orgchart/pkg/httpapi"
)

type RateLimitConfig struct {
	// Rate in limiter notation, e.g. "100-M" for 100 requests per minute.
	Rate  string
	Store limiter.Store
}

func NewMemoryStore() limiter.Store {
	return memory.NewStore()
}

// RateLimit throttles requests per client IP and answers over-limit calls with a
// JSON 429.
func RateLimit(cfg RateLimitConfig) (mux.MiddlewareFunc, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, err
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	mw := stdlib.NewMiddleware(
		limiter.New(store, rate),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			requestID, _ := composables.UseRequestID(r.Context())
			_ = httpapi.WriteError(w, http.StatusTooManyRequests, requestID, "RATE_LIMITED", "too many requests")
		}),
	)
	return mw.Handler, nil
}
