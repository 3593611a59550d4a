package notify

import "context"

// Dispatcher accepts engine events.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload any)
}

// Fanout forwards every event to each of its dispatchers in order.
type Fanout []Dispatcher

// Dispatch implements Dispatcher.
func (f Fanout) Dispatch(ctx context.Context, eventType string, payload any) {
	for _, d := range f {
		d.Dispatch(ctx, eventType, payload)
	}
}
