package http

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/interpolation-target/server/api"
	"github.com/compose-network/interpolation-target/x/audit"
	"github.com/compose-network/interpolation-target/x/target"
	targetrunner "github.com/compose-network/interpolation-target/x/target-runner"
)

const defaultAuditLimit = 100

// Target is the view of a running coordinator the HTTP surface needs.
type Target[T cmp.Ordered] interface {
	Name() string
	Status(ctx context.Context) (target.Status[T], error)
	Finalize(ctx context.Context, id T) error
	RequestPoints(ctx context.Context, id T) error
}

// AuditLog lists persisted completions.
type AuditLog interface {
	List(ctx context.Context, targetName string, limit int) ([]audit.Record, error)
}

type Handler[T cmp.Ordered] struct {
	targets map[string]Target[T]
	audit   AuditLog
	parseID func(string) (T, error)
	log     zerolog.Logger
}

// NewHandler serves the given targets. auditLog may be nil.
func NewHandler[T cmp.Ordered](
	targets []Target[T],
	auditLog AuditLog,
	parseID func(string) (T, error),
	log zerolog.Logger,
) *Handler[T] {
	byName := make(map[string]Target[T], len(targets))
	for _, t := range targets {
		byName[t.Name()] = t
	}
	return &Handler[T]{
		targets: byName,
		audit:   auditLog,
		parseID: parseID,
		log:     log.With().Str("component", "target-http").Logger(),
	}
}

// ParseFloat64ID parses simulation-time ids from the URL.
func ParseFloat64ID(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func (h *Handler[T]) lookup(w http.ResponseWriter, r *http.Request) (Target[T], bool) {
	name := mux.Vars(r)["name"]
	t, ok := h.targets[name]
	if !ok {
		apicommon.WriteError(w, r, http.StatusNotFound, "unknown_target", "Unknown interpolation target", map[string]string{"name": name})
		return nil, false
	}
	return t, true
}

func (h *Handler[T]) epoch(w http.ResponseWriter, r *http.Request) (T, bool) {
	raw := mux.Vars(r)["id"]
	id, err := h.parseID(raw)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_temporal_id", "Malformed temporal id", map[string]string{"id": raw})
		return id, false
	}
	return id, true
}

// handleTargets lists the served target names
func (h *Handler[T]) handleTargets(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(h.targets))
	for name := range h.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	apicommon.WriteJSON(w, http.StatusOK, map[string][]string{"targets": names})
}

// handleStatus returns a coordinator snapshot
func (h *Handler[T]) handleStatus(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	st, err := t.Status(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, st)
}

// handleCompleted returns the in-memory completed history
func (h *Handler[T]) handleCompleted(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	st, err := t.Status(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{
		"completed": st.Completed,
		"watermark": st.Watermark,
	})
}

// handleAudit returns persisted completions, newest first
func (h *Handler[T]) handleAudit(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.audit == nil {
		apicommon.WriteError(w, r, http.StatusServiceUnavailable, "audit_disabled", "Audit log is not enabled", nil)
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}

	records, err := h.audit.List(r.Context(), t.Name(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"records": records})
}

// handleFinalize cleans up an epoch whose callback kept it
func (h *Handler[T]) handleFinalize(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	id, ok := h.epoch(w, r)
	if !ok {
		return
	}
	if err := t.Finalize(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRequestPoints re-sends the point request of a dispatched epoch
func (h *Handler[T]) handleRequestPoints(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	id, ok := h.epoch(w, r)
	if !ok {
		return
	}
	if err := t.RequestPoints(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler[T]) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, target.ErrUnknownTemporalID):
		apicommon.WriteError(w, r, http.StatusNotFound, "unknown_epoch", err.Error(), nil)
	case errors.Is(err, target.ErrNotComplete):
		apicommon.WriteError(w, r, http.StatusConflict, "epoch_not_complete", err.Error(), nil)
	case errors.Is(err, targetrunner.ErrStopped), errors.Is(err, target.ErrAborted):
		apicommon.WriteError(w, r, http.StatusServiceUnavailable, "target_stopped", err.Error(), nil)
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Target request failed")
		apicommon.WriteError(w, r, http.StatusInternalServerError, "internal", "Internal error", nil)
	}
}
