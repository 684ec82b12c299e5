package broadcast

const (
	// EventMessage carries the JSON array of valid slides. It is the SSE default event.
	EventMessage = "message"
	// EventPing is the content-free keep-alive frame.
	EventPing = "ping"
)

// Frame is one message pushed to a totem.
type Frame struct {
	Event string
	Data  []byte

	// seq orders content frames; a session never accepts a content frame older than
	// the newest one it already queued.
	seq uint64
}

// PingFrame is the keep-alive frame sent by the Heartbeat.
var PingFrame = Frame{Event: EventPing}

func contentFrame(seq uint64, data []byte) Frame {
	return Frame{Event: EventMessage, Data: data, seq: seq}
}

// IsKeepAlive reports whether the frame carries no content.
func (f Frame) IsKeepAlive() bool {
	return f.Event == EventPing
}
