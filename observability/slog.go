package observability

import (
	"context"
	"log/slog"
)

// SlogObserver writes events to a slog.Logger: the event type is the log
// message, the level maps through SlogLevel, and the source plus every Data
// entry become top-level attributes.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates an observer that logs through logger.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	attrs := make([]slog.Attr, 0, 1+len(event.Data))
	attrs = append(attrs, slog.String("source", event.Source))
	for key, value := range event.Data {
		attrs = append(attrs, slog.Any(key, value))
	}
	o.logger.LogAttrs(ctx, event.Level.SlogLevel(), string(event.Type), attrs...)
}
