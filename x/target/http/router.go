package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes.
func (h *Handler[T]) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeTargets, h.handleTargets).
		Methods(http.MethodGet).
		Name(routeNameTargets)

	r.HandleFunc(routeStatus, h.handleStatus).
		Methods(http.MethodGet).
		Name(routeNameStatus)

	r.HandleFunc(routeCompleted, h.handleCompleted).
		Methods(http.MethodGet).
		Name(routeNameCompleted)

	r.HandleFunc(routeAudit, h.handleAudit).
		Methods(http.MethodGet).
		Name(routeNameAudit)

	r.HandleFunc(routeFinalize, h.handleFinalize).
		Methods(http.MethodPost).
		Name(routeNameFinalize)

	r.HandleFunc(routeRequestPoints, h.handleRequestPoints).
		Methods(http.MethodPost).
		Name(routeNameRequestPoints)
}
