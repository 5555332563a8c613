// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/dpos/app/services/node/handlers/v1/private"
	"github.com/ardanlabs/dpos/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ardanlabs/dpos/foundation/events"
	"github.com/ardanlabs/dpos/foundation/nameservice"
	"github.com/ardanlabs/dpos/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/status", pbl.Status)
	app.Handle(http.MethodGet, version, "/accounts/:address", pbl.Account)
	app.Handle(http.MethodGet, version, "/blocks/:height", pbl.BlockByHeight)
	app.Handle(http.MethodGet, version, "/delegates", pbl.Delegates)
	app.Handle(http.MethodGet, version, "/mined/:count", pbl.MinedBlocks)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", pbl.Mempool)
	app.Handle(http.MethodGet, version, "/tx/:txid", pbl.Tx)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitWalletTransaction)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodPost, version, "/node/peers", prv.SubmitPeer)
	app.Handle(http.MethodPost, version, "/node/block/propose", prv.ProposeBlock)
	app.Handle(http.MethodPost, version, "/node/block/disconnect", prv.DisconnectTip)
	app.Handle(http.MethodPost, version, "/node/tx/submit", prv.SubmitNodeTransaction)
	app.Handle(http.MethodPost, version, "/node/mining/start", prv.StartMining)
	app.Handle(http.MethodPost, version, "/node/mining/stop", prv.StopMining)
}
