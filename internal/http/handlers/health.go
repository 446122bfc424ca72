package handlers

import "net/http"

// HandleHealth handles GET /health
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleNotFound answers unknown routes in the common error shape
func HandleNotFound(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, http.StatusNotFound, "Route not found")
}

// HandleMethodNotAllowed answers known routes called with the wrong method
func HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
