package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/interpolation-target/x/gate"
)

func newRouter(t *testing.T, fns map[string]float64) (*mux.Router, *gate.Expirations) {
	t.Helper()
	g, err := gate.New(gate.Config{Logger: zerolog.Nop(), Functions: fns})
	require.NoError(t, err)
	r := mux.NewRouter()
	NewHandler(g, zerolog.Nop()).RegisterMux(r)
	return r, g
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestHandleStatus(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(t, map[string]float64{"expansion": 0.75})
	rec := serve(r, http.MethodGet, routeGate, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"expirations":{"expansion":0.75},"min_expiration":0.75,"subscribers":0}`, rec.Body.String())

	empty, _ := newRouter(t, nil)
	rec = serve(empty, http.MethodGet, routeGate, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"expirations":{},"subscribers":0}`, rec.Body.String())
}

func TestHandleUpdate(t *testing.T) {
	t.Parallel()

	r, g := newRouter(t, map[string]float64{"expansion": 0.75})
	woken := 0
	g.Subscribe(func() { woken++ })

	rec := serve(r, http.MethodPost, routeExpirations, `{"function":"expansion","expiration":0.9}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 0.9, *resp.MinExpiration)
	require.Equal(t, 1, woken)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "malformed", body: `{"function":`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"fn":"expansion"}`, status: http.StatusBadRequest},
		{name: "unknown function", body: `{"function":"rotation","expiration":1}`, status: http.StatusNotFound},
		{name: "decrease", body: `{"function":"expansion","expiration":0.1}`, status: http.StatusConflict},
	}
	for _, tt := range tests {
		rec := serve(r, http.MethodPost, routeExpirations, tt.body)
		require.Equal(t, tt.status, rec.Code, tt.name)
	}
	require.Equal(t, 1, woken)

	rec = serve(r, http.MethodGet, routeExpirations, "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
