package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeGate, h.handleStatus).
		Methods(http.MethodGet).
		Name(routeNameGate)

	r.HandleFunc(routeExpirations, h.handleUpdate).
		Methods(http.MethodPost).
		Name(routeNameUpdateExpiration)
}
