// Package web holds the JSON request/response helpers shared by the HTTP handlers.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-accounts/internal/apperr"
)

// MaxBodyBytes caps request bodies read by Decode.
const MaxBodyBytes = 1 << 20

// ErrorBody is the payload of every failed request.
type ErrorBody struct {
	Error string `json:"error"`
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(k apperr.Kind) int {
	switch k {
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.InvalidCredentials, apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.AccountDisabled:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.NoActiveSession, apperr.AlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the client message for err. Internal errors are logged
// with their cause; everything else at debug.
func WriteError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		logger.Errorw("request failed", "err", err)
	} else {
		logger.Debugw("request rejected", "kind", kind.String(), "err", err)
	}
	WriteJSON(w, StatusOf(kind), ErrorBody{Error: apperr.MessageOf(err)})
}

// Decode reads a single JSON object into v. Malformed bodies come back as
// InvalidInput errors tagged with op.
func Decode(r *http.Request, op string, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Invalid(op, "request body is empty")
		case errors.As(err, &maxErr):
			return apperr.Invalid(op, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		default:
			return &apperr.Error{Op: op, Kind: apperr.InvalidInput, Detail: "invalid payload", Err: err}
		}
	}
	if dec.More() {
		return apperr.Invalid(op, "request body must contain a single JSON object")
	}
	return nil
}
