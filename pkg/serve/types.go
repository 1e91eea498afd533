package serve

import (
	"encoding/json"

	"github.com/akernet/logbuddy/pkg/types"
)

// Request represents an incoming NDJSON request
type Request struct {
	Type    string          `json:"type"` // "load" | "cancel" | "files" | "close"
	Payload json.RawMessage `json:"payload,omitempty"`
}

// LoadPayload is the payload for "load" requests
type LoadPayload struct {
	Path string `json:"path"`
}

// CancelPayload is the payload for "cancel" requests
type CancelPayload struct {
	Submission string `json:"submission"`
}

// Response represents an outgoing NDJSON response
type Response struct {
	Success bool            `json:"success"`
	Type    string          `json:"type"` // "ready" | "load" | "cancel" | "files" | "event" | "error"
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ReadyData is the data field for "ready" responses
type ReadyData struct {
	Version string `json:"version"`
}

// LoadData acknowledges a "load" request. The outcome follows later as an
// "event" response with the same submission.
type LoadData struct {
	Submission string `json:"submission"`
	Source     string `json:"source"`
}

// FilesData is the data field for "files" responses
type FilesData struct {
	Files []types.Leaf `json:"files"`
}

// EventData is the data field for "event" responses
type EventData struct {
	Submission string          `json:"submission"`
	Source     string          `json:"source"`
	Summary    string          `json:"summary"`
	Leaves     []types.Leaf    `json:"leaves,omitempty"`
	Failures   []types.Failure `json:"failures,omitempty"`
	Error      string          `json:"error,omitempty"`
	// Files is the total number of files known after this event.
	Files int `json:"files"`
}
