package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonLLMGenerate  ReasonCode = "llm_generate"
	ReasonLLMStream    ReasonCode = "llm_stream"
	ReasonLLMRateLimit ReasonCode = "llm_rate_limit"

	ReasonToolExecute ReasonCode = "tool_execute"
	ReasonToolUnknown ReasonCode = "tool_unknown"

	ReasonTenantNotFound ReasonCode = "tenant_not_found"
	ReasonStoreQuery     ReasonCode = "store_query"

	ReasonCRMRequest    ReasonCode = "crm_request"
	ReasonPaymentCreate ReasonCode = "payment_create"

	ReasonSinkClosed      ReasonCode = "sink_closed"
	ReasonDispatchPublish ReasonCode = "dispatch_publish"
	ReasonHandoffUpdate   ReasonCode = "handoff_update"

	ReasonTransportUnauthorized ReasonCode = "transport_unauthorized"
)
