package rest

const (
	// api
	RouteApiV1 = "/api/v1"

	// stored files
	RouteFiles       = RouteApiV1 + "/files"
	RouteFile        = RouteFiles + "/:file_id"
	RouteFileContent = RouteFile + "/content"

	// ops
	RouteHealth  = RouteApiV1 + "/healthz"
	RouteReady   = RouteApiV1 + "/readyz"
	RouteMetrics = RouteApiV1 + "/metrics"
)
