package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/hacksail-client/internal/dashboard"
	"github.com/DoyleJ11/hacksail-client/internal/login"
	"github.com/DoyleJ11/hacksail-client/internal/ws"
)

const actionTimeout = 30 * time.Second

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func State(d *dashboard.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := d.State(r.Context())
		if err != nil {
			writeErr(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// Action runs one UI command, the same shape the socket accepts.
func Action(d *dashboard.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cm ws.ClientMessage
		if err := json.NewDecoder(r.Body).Decode(&cm); err != nil {
			writeErr(w, http.StatusBadRequest, "bad json")
			return
		}
		build, ok := ws.ToMsg(cm)
		if !ok {
			writeErr(w, http.StatusBadRequest, "unknown type")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), actionTimeout)
		defer cancel()
		if err := d.Ask(ctx, build); err != nil {
			writeErr(w, statusFor(err), err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dashboard.ErrNotAuthenticated),
		errors.Is(err, login.ErrNoToken),
		errors.Is(err, login.ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, login.ErrRejected):
		return http.StatusForbidden
	case errors.Is(err, dashboard.ErrBusy),
		errors.Is(err, dashboard.ErrAlreadyPlayed),
		errors.Is(err, dashboard.ErrDomainChosen):
		return http.StatusConflict
	case errors.Is(err, dashboard.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusUnprocessableEntity
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
