package metrics

import "time"

const (
	EventBreakerOpen   = "breaker_open"
	EventBreakerClose  = "breaker_close"
	EventBreakerDenied = "breaker_denied"
	EventRateLimit     = "rate_limit"

	EventAgentIteration = "agent_iteration"
	EventToolFailed     = "tool_failed"
	EventToolEscalated  = "tool_escalated"
	EventTerminalTool   = "terminal_tool"
	EventMaxIterations  = "max_iterations"
	EventStreamFallback = "stream_fallback"
	EventShortCircuit   = "guard_short_circuit"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
