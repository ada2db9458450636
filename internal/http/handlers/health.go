package handlers

import "net/http"

// HealthCheck reports liveness. It does not probe the backends.
func HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
