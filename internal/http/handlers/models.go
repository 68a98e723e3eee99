package handlers

import (
	"net/http"
)

func (a *App) ListModels(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Models.List())
}

// ReloadModels re-reads the catalog source. A broken file keeps the previous
// entries active.
func (a *App) ReloadModels(w http.ResponseWriter, r *http.Request) {
	if err := a.Models.Reload(); err != nil {
		a.Logger.Warn().Err(err).Msg("api: catalog reload failed")
		a.error(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	a.json(w, http.StatusOK, a.Models.List())
}
