package server

import "net/http"

// setupHTTPRoutes configures all HTTP handlers
func (s *Server) setupHTTPRoutes() {
	s.mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	s.mux.HandleFunc("/api/context/preview", s.corsMiddleware(s.HandlePreview)) // Assembled text for a context (POST)
	s.mux.HandleFunc("/ws/preview", s.HandlePreviewWebSocket)                   // Live preview, one frame per edit
	s.mux.HandleFunc("/api/send", s.corsMiddleware(s.HandleSend))               // Send to the model (POST)
	s.mux.HandleFunc("/api/key", s.corsMiddleware(s.HandleKey))                 // Credential status/save/clear (GET/PUT/DELETE)
	s.mux.HandleFunc("/api/storage/check", s.corsMiddleware(s.HandleStorageCheck))
	s.mux.HandleFunc("/api/models", s.corsMiddleware(s.HandleModels))
	s.mux.HandleFunc("/api/presets", s.corsMiddleware(s.HandlePresets))
	s.mux.HandleFunc("/api/usage", s.corsMiddleware(s.HandleUsage))
	s.mux.HandleFunc("/", s.corsMiddleware(s.HandleStatic))
}

// corsMiddleware adds CORS headers for allowed origins and rejects
// state-changing requests from any other origin.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := s.checkOrigin(r)

		if origin != "" && allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		if !allowed && r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, http.StatusForbidden, "Origin not allowed")
			return
		}

		next(w, r)
	}
}
