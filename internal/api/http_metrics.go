package api

import "net/http"

// unmatchedRoute labels requests no registered pattern served (404, 405,
// redirects), so probing arbitrary paths cannot grow the label set.
const unmatchedRoute = "unmatched"

// routeLabel returns the mux pattern that served r, e.g.
// "GET /api/cases/{id}". ServeMux sets r.Pattern on the request it was
// handed, so it is only meaningful after dispatch.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return unmatchedRoute
	}
	return r.Pattern
}
