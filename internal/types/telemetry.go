package types

// Telemetry metric names shared by every MetricsCollector backend.
const (
	MetricAPILatency         = "APILatency"
	MetricAPIRequestCount    = "APIRequestCount"
	MetricPlanEvent          = "PlanEvent"
	MetricExternalAPIFailure = "ExternalAPIFailure"

	// Dimension Keys
	DimMethod   = "Method"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"
	DimPlan     = "Plan"
	DimEvent    = "Event"
	DimProvider = "Provider"

	// Metric Namespace
	MetricNamespace = "SEEP"
)
