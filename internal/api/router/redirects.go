package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// pageRedirects maps bare entry paths to the first page of their flow.
var pageRedirects = map[string]string{
	"/":           "/services",
	"/onboarding": "/onboarding/step-1",
}

// mountRedirects registers a GET redirect for each entry path. The query
// string is carried over so campaign parameters survive the hop.
func mountRedirects(r chi.Router, redirects map[string]string) {
	for from, to := range redirects {
		target := to
		r.Get(from, func(w http.ResponseWriter, req *http.Request) {
			dest := target
			if req.URL.RawQuery != "" {
				dest += "?" + req.URL.RawQuery
			}
			http.Redirect(w, req, dest, http.StatusFound)
		})
	}
}
