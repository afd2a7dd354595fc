package http

// Route patterns for the readiness gate HTTP surface.
const (
	routeGate        = "/v1/gate"
	routeExpirations = "/v1/gate/expirations"
)

// Route names for mux URL building.
const (
	routeNameGate             = "gate_status"
	routeNameUpdateExpiration = "gate_update_expiration"
)
