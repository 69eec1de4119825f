// Package bus provides in-process broadcast of server events to WebSocket
// subscribers. Delivery is lossy for lagging subscribers: each subscription
// has a bounded queue and publishers never block.
package bus

import "encoding/json"

// Server event types (the "server_message" tag on the wire).
const (
	// EventTypeTaskIoChunk carries one chunk of child stdout/stderr.
	EventTypeTaskIoChunk = "TaskIoChunk"
	// EventTypeTaskStatus announces a job status change (Running and terminal).
	EventTypeTaskStatus = "TaskStatus"
)

// IoType identifies which output stream a chunk came from.
type IoType string

const (
	IoStdout IoType = "Stdout"
	IoStderr IoType = "Stderr"
)

// Event is a server-to-client message. On the wire it uses a tagged
// encoding so that clients can ignore variants they do not know:
//
//	{"server_message":"TaskIoChunk","content":{...}}
type Event struct {
	Type    string // one of the EventType* constants
	Content any    // the matching payload struct
}

// MarshalJSON renders the tagged envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ServerMessage string `json:"server_message"`
		Content       any    `json:"content"`
	}{
		ServerMessage: e.Type,
		Content:       e.Content,
	})
}

// TaskIoChunk is the payload of an EventTypeTaskIoChunk event.
type TaskIoChunk struct {
	ID     string `json:"id"`      // job id the chunk belongs to
	Chunk  string `json:"chunk"`   // UTF-8 slice of child output
	IoType IoType `json:"io_type"` // "Stdout" or "Stderr"
}

// TaskStatus is the payload of an EventTypeTaskStatus event. Status holds
// the job's wire-encoded status document.
type TaskStatus struct {
	ID     string          `json:"id"`
	Status json.RawMessage `json:"status"`
}

// NewChunkEvent builds a TaskIoChunk event.
func NewChunkEvent(id, chunk string, ioType IoType) Event {
	return Event{
		Type:    EventTypeTaskIoChunk,
		Content: TaskIoChunk{ID: id, Chunk: chunk, IoType: ioType},
	}
}

// NewStatusEvent builds a TaskStatus event from an already-marshaled status.
func NewStatusEvent(id string, status json.RawMessage) Event {
	return Event{
		Type:    EventTypeTaskStatus,
		Content: TaskStatus{ID: id, Status: status},
	}
}

// ClientMessage is the JSON structure for client-to-server WebSocket frames.
// The tagged encoding mirrors Event; no variants are defined yet, so
// handlers log and ignore everything that parses.
type ClientMessage struct {
	ClientMessage string          `json:"client_message"`
	Content       json.RawMessage `json:"content,omitempty"`
}
