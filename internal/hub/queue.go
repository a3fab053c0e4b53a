package hub

// outMessage is one queued outbound frame. Key is the coalescing key
// (session id) for classCoalesce messages.
type outMessage struct {
	msgType string
	class   class
	key     string
	data    []byte
}

// sendQueue is the bounded per-client outbound buffer implementing the
// backpressure policy: session updates coalesce per session in place,
// telemetry drops oldest first, and never-drop messages force a disconnect
// when no room can be made. Not goroutine safe; the owning client locks.
type sendQueue struct {
	buf []outMessage
	max int
}

func newSendQueue(max int) *sendQueue {
	return &sendQueue{max: max}
}

// push queues a message. The second result is false when the queue is wedged
// and the client must be disconnected.
func (q *sendQueue) push(m outMessage) (queued, ok bool) {
	if m.class == classCoalesce {
		for i := range q.buf {
			if q.buf[i].class == classCoalesce && q.buf[i].key == m.key {
				// Replace in place: the newer update carries the full
				// session state and keeps its slot in the delivery order.
				q.buf[i] = m
				return true, true
			}
		}
	}

	if len(q.buf) < q.max {
		q.buf = append(q.buf, m)
		return true, true
	}

	// Overflow: shed the oldest telemetry frame.
	for i := range q.buf {
		if q.buf[i].class == classTelemetry {
			q.buf = append(q.buf[:i], q.buf[i+1:]...)
			q.buf = append(q.buf, m)
			return true, true
		}
	}

	// No telemetry to shed. New telemetry is itself droppable; anything
	// else means the client is too slow to keep.
	if m.class == classTelemetry {
		return false, true
	}
	return false, false
}

// pop removes and returns the oldest queued message.
func (q *sendQueue) pop() (outMessage, bool) {
	if len(q.buf) == 0 {
		return outMessage{}, false
	}
	m := q.buf[0]
	q.buf = q.buf[1:]
	return m, true
}

func (q *sendQueue) len() int {
	return len(q.buf)
}
