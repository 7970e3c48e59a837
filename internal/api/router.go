package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/tailgame/pkg/logger"
)

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: routing lives in this function only
func NewRouter(h *Handler, page *Page, stream *Stream, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Dashboard
	r.Handle("/", page).Methods("GET")
	r.Handle("/ws", stream).Methods("GET")

	// Health check
	r.HandleFunc("/health", healthCheckHandler(stream)).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Read endpoints
	api.HandleFunc("/state", h.GetState).Methods("GET")
	api.HandleFunc("/sectors", h.GetSectors).Methods("GET")
	api.HandleFunc("/candidates", h.GetCandidates).Methods("GET")
	api.HandleFunc("/picks", h.GetPicks).Methods("GET")
	api.HandleFunc("/picks/history", h.GetPickHistory).Methods("GET")
	api.HandleFunc("/cycles", h.GetCycles).Methods("GET")
	api.HandleFunc("/logs", h.GetLogs).Methods("GET")
	api.HandleFunc("/jobs", h.GetJobs).Methods("GET")

	// Manual operations
	api.HandleFunc("/refresh", h.Refresh).Methods("POST")
	api.HandleFunc("/picks/first", h.SetFirst).Methods("POST")
	api.HandleFunc("/picks/lock", h.Lock).Methods("POST")
	api.HandleFunc("/picks", h.ClearPicks).Methods("DELETE")
	api.HandleFunc("/weights", h.SetWeights).Methods("PUT")
	api.HandleFunc("/clock", h.SetClock).Methods("PUT")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(stream *Stream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "tailgame",
			"clients": stream.Clients(),
		})
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					respondError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
