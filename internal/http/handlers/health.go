package handlers

import (
	"context"
	"net/http"
	"time"
)

type healthView struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Queued   int    `json:"queued"`
}

// Health pings the database and reports the runner's queue depth. A failed
// ping answers 503 so load balancers stop routing here.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	view := healthView{Status: "ok", Database: "ok"}
	if a.Runner != nil {
		view.Queued = a.Runner.QueueLen()
	}
	if a.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.PingContext(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("api: health ping failed")
			view.Status, view.Database = "degraded", "unavailable"
			a.json(w, http.StatusServiceUnavailable, view)
			return
		}
	}
	a.json(w, http.StatusOK, view)
}
