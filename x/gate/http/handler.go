package http

import (
	"errors"
	"math"
	"net/http"

	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/interpolation-target/server/api"
	"github.com/compose-network/interpolation-target/x/gate"
)

// StatusResponse describes the gate. MinExpiration is omitted while no function is registered.
type StatusResponse struct {
	Expirations   map[string]float64 `json:"expirations"`
	MinExpiration *float64           `json:"min_expiration,omitempty"`
	Subscribers   int                `json:"subscribers"`
}

// UpdateRequest extends one function of time.
type UpdateRequest struct {
	Function   string  `json:"function"`
	Expiration float64 `json:"expiration"`
}

type Handler struct {
	gate *gate.Expirations
	log  zerolog.Logger
}

func NewHandler(g *gate.Expirations, log zerolog.Logger) *Handler {
	return &Handler{
		gate: g,
		log:  log.With().Str("component", "gate-http").Logger(),
	}
}

func (h *Handler) status() StatusResponse {
	resp := StatusResponse{
		Expirations: h.gate.Snapshot(),
		Subscribers: h.gate.Subscribers(),
	}
	if exp := h.gate.MinExpiration(); !math.IsInf(exp, 1) {
		resp.MinExpiration = &exp
	}
	return resp
}

// handleStatus returns the current expirations
func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	apicommon.WriteJSON(w, http.StatusOK, h.status())
}

// handleUpdate applies an expiration update and wakes waiting coordinators
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := apicommon.DecodeJSON(r, &req); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_request", "Malformed update body", err.Error())
		return
	}

	err := h.gate.Update(req.Function, req.Expiration)
	switch {
	case errors.Is(err, gate.ErrUnknownFunction):
		apicommon.WriteError(w, r, http.StatusNotFound, "unknown_function", err.Error(), nil)
		return
	case errors.Is(err, gate.ErrExpirationDecreased), errors.Is(err, gate.ErrInvalidExpiration):
		apicommon.WriteError(w, r, http.StatusConflict, "invalid_expiration", err.Error(), nil)
		return
	case err != nil:
		h.log.Error().Err(err).Msg("Expiration update failed")
		apicommon.WriteError(w, r, http.StatusInternalServerError, "internal", "Expiration update failed", nil)
		return
	}

	h.log.Info().Str("function", req.Function).Float64("expiration", req.Expiration).Msg("Expiration updated over HTTP")
	apicommon.WriteJSON(w, http.StatusOK, h.status())
}
