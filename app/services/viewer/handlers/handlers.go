// Package handlers contains the full set of handler functions and routes
// supported by the web api.
package handlers

import (
	"context"
	"net/http"
	"os"

	"github.com/ardanlabs/dpos/business/web/mid"
	"github.com/ardanlabs/dpos/foundation/web"
	"go.uber.org/zap"
)

// UIMux constructs an http.Handler with all application routes defined.
func UIMux(nodeHost string, shutdown chan os.Signal, log *zap.SugaredLogger, metrics *mid.Metrics) (*web.App, error) {
	app := web.NewApp(
		shutdown,
		mid.Logger(log),
		mid.Errors(log),
		metrics.Metrics(),
		mid.Panics(metrics),
		mid.Cors([]string{"*"}),
	)

	// Register the index page for the website.
	ig, err := newIndex(nodeHost)
	if err != nil {
		return nil, err
	}
	app.Handle(http.MethodGet, "", "/", ig.handler)

	// Liveness for the load balancer.
	app.Handle(http.MethodGet, "", "/health", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.Respond(ctx, w, struct {
			Status string `json:"status"`
		}{Status: "up"}, http.StatusOK)
	})

	return app, nil
}
