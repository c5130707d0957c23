package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"podium-bot/internal/apperr"
	"podium-bot/internal/util"
)

const signatureHeader = "X-Signature"

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError maps err onto a status and a user-facing message.
func (a *api) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal"
	var ae *apperr.Error
	if errors.As(err, &ae) {
		code = ae.Code
		switch ae.Kind {
		case apperr.KindValidation:
			status = http.StatusBadRequest
		case apperr.KindState:
			status = http.StatusConflict
			switch ae.Code {
			case apperr.ErrNotFound.Code, apperr.ErrRaceNotFound.Code, apperr.ErrNoBet.Code:
				status = http.StatusNotFound
			}
		case apperr.KindTransient:
			status = http.StatusServiceUnavailable
		case apperr.KindDeferred:
			status = http.StatusAccepted
		}
	}
	if status >= 500 {
		a.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	respondJSON(w, status, errorResponse{Error: code, Message: apperr.Message(err)})
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(started)).
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// requireSignature accepts requests whose X-Signature is the hex
// HMAC-SHA256 of the raw body under secret.
func requireSignature(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_input", Message: "cannot read body"})
				return
			}
			if !util.ValidSignature(secret, string(body), r.Header.Get(signatureHeader)) {
				respondJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden", Message: "invalid signature"})
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
