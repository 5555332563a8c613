package mid

import (
	"context"
	"net/http"

	"github.com/ardanlabs/dpos/foundation/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the request counters shared by every mux of the service.
type Metrics struct {
	requests prometheus.Counter
	errors   prometheus.Counter
	panics   prometheus.Counter
}

// NewMetrics registers the request counters with the registerer. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		requests: f.NewCounter(prometheus.CounterOpts{
			Name: "dpos_http_requests_total",
			Help: "Number of requests handled.",
		}),
		errors: f.NewCounter(prometheus.CounterOpts{
			Name: "dpos_http_errors_total",
			Help: "Number of requests that returned an error.",
		}),
		panics: f.NewCounter(prometheus.CounterOpts{
			Name: "dpos_http_panics_total",
			Help: "Number of requests that panicked.",
		}),
	}
}

// Metrics updates program counters.
func (m *Metrics) Metrics() web.Middleware {
	mw := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)

			m.requests.Inc()
			if err != nil {
				m.errors.Inc()
			}

			return err
		}

		return h
	}

	return mw
}
