package engine

// Notifier is a concurrency primitive for informing a worker routine about
// the arrival of new work unit(s). Notifications are not queued: any number of
// notifications sent before the worker picks them up collapse into one.
// It is safe to pass Notifier by value.
type Notifier struct {
	notifier chan struct{}
}

// NewNotifier instantiates a Notifier. Notifiers essentially behave like
// channels, so they should be passed by value.
func NewNotifier() Notifier {
	return Notifier{make(chan struct{}, 1)}
}

// Notify sends a notification without blocking.
func (n Notifier) Notify() {
	select {
	case n.notifier <- struct{}{}:
	default:
	}
}

// Channel returns a channel for receiving notifications.
func (n Notifier) Channel() <-chan struct{} {
	return n.notifier
}
