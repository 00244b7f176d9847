package observability

import "context"

// NoopObserver discards all events.
type NoopObserver struct{}

// NewNoopObserver creates an Observer that does nothing.
func NewNoopObserver() *NoopObserver {
	return &NoopObserver{}
}

func (*NoopObserver) OnEvent(context.Context, Event) {}
