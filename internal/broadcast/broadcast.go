package broadcast

// Sink is the single MPSC channel carrying Messages from the writer's
// post-commit path (and any other local producer) to the external
// transport. It is bounded (§5): a full channel blocks the producer
// but never the writer itself, since the writer has already returned
// by the time anything is enqueued here.
type Sink struct {
	ch chan Message
}

// NewSink creates a Sink with the given channel capacity.
func NewSink(capacity int) *Sink {
	return &Sink{ch: make(chan Message, capacity)}
}

// Enqueue blocks until there is room. Callers (the writer's post-commit
// path) have no ctx to cancel against at this point, and the sink must
// outlive every producer, so this is a plain blocking send.
func (s *Sink) Enqueue(msg Message) error {
	s.ch <- msg
	return nil
}

// TryEnqueue enqueues without blocking, reporting whether there was
// room. Callers that must not block the calling goroutine (e.g. a
// request handler) should prefer this and fall back to logging a drop.
func (s *Sink) TryEnqueue(msg Message) bool {
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

// Receive returns the receive-only view of the channel for the
// transport/gossip consumer.
func (s *Sink) Receive() <-chan Message {
	return s.ch
}

// Close closes the sink. Must only be called once, after all
// producers have stopped.
func (s *Sink) Close() {
	close(s.ch)
}
