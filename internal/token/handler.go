package token

import (
	"encoding/json"
	"net/http"
)

// JWKSHandler publishes the verification key.
func (s *Issuer) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_ = json.NewEncoder(w).Encode(s.JWKS())
	}
}
