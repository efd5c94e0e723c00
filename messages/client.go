package messages

import "encoding/json"

// Client message types
const (
	TypeStart   = "start"
	TypeSpeech  = "speech"
	TypeControl = "control"
)

// ClientMessage represents a message from a console client
type ClientMessage struct {
	Type    string          `json:"type"` // "start", "speech", "control"
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StartPayload opens a call
type StartPayload struct {
	Caller string `json:"caller,omitempty"`
}

// SpeechPayload carries one recognized utterance
type SpeechPayload struct {
	Text string `json:"text"`
}

// ControlPayload contains control commands
type ControlPayload struct {
	Action string `json:"action"` // "ping", "hangup"
}
