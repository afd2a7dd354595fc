package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
)

type routeKey struct{}

const unmatchedRoute = "unmatched"

// routeSink returns the request's route slot, attaching one if the request has none.
// Middleware outside the router reads the slot after the handler returns.
func routeSink(r *http.Request) (*string, *http.Request) {
	if sink, ok := r.Context().Value(routeKey{}).(*string); ok {
		return sink, r
	}
	sink := new(string)
	*sink = unmatchedRoute
	return sink, r.WithContext(context.WithValue(r.Context(), routeKey{}, sink))
}

// CaptureRoute is installed on the mux.Router and records the matched route's
// name, or its path template when unnamed, for the outer middleware.
func CaptureRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sink, ok := r.Context().Value(routeKey{}).(*string); ok {
			*sink = routeName(r)
		}
		next.ServeHTTP(w, r)
	})
}

func routeName(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return unmatchedRoute
	}
	if name := route.GetName(); name != "" {
		return name
	}
	if tpl, err := route.GetPathTemplate(); err == nil {
		return tpl
	}
	return unmatchedRoute
}
