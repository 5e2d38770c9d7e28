package handler

import (
	"encoding/json"
	"net/http"

	"github.com/blinkdate/match-server-go/internal/apperrors"
	"github.com/blinkdate/match-server-go/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func decodeJSON(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return apperrors.InvalidInput("request body", "malformed JSON")
	}
	return nil
}
