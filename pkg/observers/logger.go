package observers

import (
	"context"
	"log/slog"
	"sort"

	"github.com/harunnryd/frontdesk/pkg/metrics"
)

// LoggerObserver writes every metrics event to slog. Events that mean a
// caller was handed off or the model was cut short log at warn.
type LoggerObserver struct {
	log *slog.Logger
}

var warnEvents = map[string]bool{
	metrics.EventToolEscalated: true,
	metrics.EventMaxIterations: true,
	metrics.EventBreakerOpen:   true,
	metrics.EventRateLimit:     true,
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log}
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	attrs := make([]slog.Attr, 0, len(ev.Tags)+len(ev.Fields)+1)
	attrs = append(attrs, slog.Float64("value", ev.Value))
	keys := make([]string, 0, len(ev.Tags))
	for k := range ev.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, ev.Tags[k]))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	level := slog.LevelDebug
	if warnEvents[ev.Name] {
		level = slog.LevelWarn
	}
	o.log.LogAttrs(context.Background(), level, "metrics_"+ev.Name, attrs...)
}

type MultiObserver struct {
	list []metrics.Observer
}

func NewMultiObserver(list ...metrics.Observer) *MultiObserver {
	return &MultiObserver{list: list}
}

func (m *MultiObserver) RecordEvent(ev metrics.MetricsEvent) {
	for _, obs := range m.list {
		if obs != nil {
			obs.RecordEvent(ev)
		}
	}
}
