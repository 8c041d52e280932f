// Package notice provides an edge-triggered, payload-less wakeup. Senders
// never block and pending wakeups coalesce; receivers re-read shared state
// after waking.
package notice

type Notice struct {
	ch chan struct{}
}

func New() *Notice {
	return &Notice{ch: make(chan struct{}, 1)}
}

// Notify wakes the receiver. It is safe to call from any goroutine.
func (n *Notice) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// C is the channel the receiver selects on.
func (n *Notice) C() <-chan struct{} {
	return n.ch
}
