package api

import "net/http"

func (rt *Router) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	scope := mustScope(r)
	sum, err := rt.store.PracticeSummary(r.Context(), scope.TenantID, rt.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sum)
}
