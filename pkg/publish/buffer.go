package publish

// message is a serialized MQTT message held for replay after a reconnect.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog is a fixed-capacity FIFO of messages published while the broker
// was unreachable. When full, the oldest message is overwritten. Not safe
// for concurrent use.
type backlog struct {
	buf     []message
	head    int // next write position
	count   int
	dropped int
}

func newBacklog(capacity int) *backlog {
	if capacity <= 0 {
		capacity = 1
	}
	return &backlog{buf: make([]message, capacity)}
}

func (b *backlog) push(m message) {
	b.buf[b.head] = m
	b.head = (b.head + 1) % len(b.buf)
	if b.count == len(b.buf) {
		b.dropped++
		return
	}
	b.count++
}

// drain returns the held messages oldest first and empties the backlog,
// together with the number of messages lost to overflow.
func (b *backlog) drain() ([]message, int) {
	if b.count == 0 {
		return nil, 0
	}

	out := make([]message, b.count)
	start := (b.head - b.count + len(b.buf)) % len(b.buf)
	for i := range out {
		out[i] = b.buf[(start+i)%len(b.buf)]
	}

	dropped := b.dropped
	b.count, b.head, b.dropped = 0, 0, 0
	return out, dropped
}

func (b *backlog) len() int {
	return b.count
}
