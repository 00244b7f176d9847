package observability

import "context"

// MultiObserver fans each event out to every wrapped observer in order.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver creates an Observer that forwards to all given observers.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	return &MultiObserver{observers: observers}
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, o := range m.observers {
		o.OnEvent(ctx, event)
	}
}
