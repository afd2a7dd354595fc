package http

// Route patterns for the interpolation target HTTP surface.
const (
	routeTargets       = "/v1/targets"
	routeStatus        = "/v1/targets/{name}/status"
	routeCompleted     = "/v1/targets/{name}/completed"
	routeAudit         = "/v1/targets/{name}/audit"
	routeFinalize      = "/v1/targets/{name}/epochs/{id}/finalize"
	routeRequestPoints = "/v1/targets/{name}/epochs/{id}/request-points"
)

// Route names for mux URL building.
const (
	routeNameTargets       = "targets_list"
	routeNameStatus        = "target_status"
	routeNameCompleted     = "target_completed"
	routeNameAudit         = "target_audit"
	routeNameFinalize      = "target_finalize"
	routeNameRequestPoints = "target_request_points"
)
