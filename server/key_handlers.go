package server

import (
	"net/http"

	"github.com/teranos/ctxeng/keystore"
	"github.com/teranos/ctxeng/logger"
)

// HandleKey reports (GET), saves (PUT) or clears (DELETE) the session's
// OpenRouter credential. The key itself is never returned.
func (s *Server) HandleKey(w http.ResponseWriter, r *http.Request) {
	store := s.storeFor(w, r)
	log := logger.FromContext(r.Context(), s.logger)

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, statusOf(store))

	case http.MethodPut, http.MethodPost:
		var body keyRequest
		if !readJSON(w, r, &body) {
			return
		}
		tier, err := keystore.SaveCredential(store, body.Key)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		log.Infow("Credential saved", logger.FieldTier, tier)
		writeJSON(w, http.StatusOK, keyStatus{
			Configured: true,
			Masked:     keystore.MaskCredential(keystore.NormalizeCredential(body.Key)),
			Tier:       tier,
		})

	case http.MethodDelete:
		keystore.ClearCredential(store)
		log.Infow("Credential cleared")
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func statusOf(store *keystore.Store) keyStatus {
	key, tier, ok := keystore.LoadCredential(store)
	if !ok {
		return keyStatus{}
	}
	return keyStatus{Configured: true, Masked: keystore.MaskCredential(key), Tier: tier}
}

// HandleStorageCheck probes every credential tier for this session
func (s *Server) HandleStorageCheck(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	statuses := s.storeFor(w, r).Probe()
	usable := keystore.AnyUsable(statuses)
	if !usable {
		logger.FromContext(r.Context(), s.logger).Warnw("No credential storage tier is usable",
			"tiers", statuses)
	}
	writeJSON(w, http.StatusOK, storageCheck{Usable: usable, Tiers: statuses})
}
