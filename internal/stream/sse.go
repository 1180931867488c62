package stream

import (
	"io"
	"iter"

	sse "github.com/tmaxmax/go-sse"
)

// maxEventSize bounds a single event; notification payloads are small.
const maxEventSize = 1 << 20

// Event is one server-sent event.
type Event struct {
	ID   string
	Name string
	Data string
}

// readEvents parses a text/event-stream body. Unnamed events are
// reported as "message". The sequence ends when the body does; a read
// error is yielded once as the final element.
func readEvents(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for ev, err := range sse.Read(r, &sse.ReadConfig{MaxEventSize: maxEventSize}) {
			if err != nil {
				yield(Event{}, err)
				return
			}
			name := ev.Type
			if name == "" {
				name = "message"
			}
			if !yield(Event{ID: ev.LastEventID, Name: name, Data: ev.Data}, nil) {
				return
			}
		}
	}
}
