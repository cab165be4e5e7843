package auth

import (
	"encoding/json"
	"net/http"

	"github.com/micro-nova/panmix/internal/models"
)

const (
	apiKeyHeader     = "X-Api-Key"
	apiKeyQueryParam = "api-key"
)

// Middleware rejects requests without a valid access key unless the
// service is in open mode. The key is taken from the X-Api-Key header or
// the api-key query parameter; EventSource clients can only use the latter.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.IsOpenMode() {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			key = r.URL.Query().Get(apiKeyQueryParam)
		}
		if s.VerifyKey(key) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(&models.AppError{
			Code:    "UNAUTHORIZED",
			Message: "missing or invalid access key",
		})
	})
}
