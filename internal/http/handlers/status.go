package handlers

import (
	"net/http"
)

// Status renders the ledger rollup: job and item counts by status plus the
// top grouped error messages.
func (a *App) Status(w http.ResponseWriter, r *http.Request) {
	report, err := a.Batch.Report(r.Context(), a.ErrorLimit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("api: status report failed")
		a.json(w, http.StatusInternalServerError, map[string]string{"error": "status report failed"})
		return
	}
	a.json(w, http.StatusOK, report)
}
