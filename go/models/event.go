package models

// event tags posted by the emulator
const (
	EVENT_REQUEST_READ_MEMORY_VALUE  = "request_read_memory_value"
	EVENT_REQUEST_WRITE_MEMORY_VALUE = "request_write_memory_value"
)

const SOURCE_EMULATOR = "emulator"

// Event is posted to the system bus. Properties holds the request that triggered it,
// usually a *ReadRequest or *WriteRequest.
type Event struct {
	ID         string
	Source     string
	Tags       []string
	Properties interface{}
}

func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type EventListener interface {
	ProcessEvent(evt *Event)
}
