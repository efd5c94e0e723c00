package messages

// Error codes
const (
	ErrCodeInvalidMessage  = "INVALID_MESSAGE"
	ErrCodeSessionFailed   = "SESSION_FAILED"
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeNotStarted      = "NOT_STARTED"
)

// Server message types
const (
	TypeReply  = "reply"
	TypeStatus = "status"
	TypeError  = "error"
)

// Statuses
const (
	StatusConnected = "connected"
	StatusPong      = "pong"
	StatusEnded     = "ended"
)

// ServerMessage represents a message sent to a console client
type ServerMessage struct {
	Type      string      `json:"type"` // "reply", "status", "error"
	SessionID string      `json:"sessionId,omitempty"`
	Payload   interface{} `json:"payload"`
}

// ReplyPayload is what the agent says, and the question it asks next
type ReplyPayload struct {
	Text   string `json:"text"`
	Prompt string `json:"prompt,omitempty"`
	Expect string `json:"expect,omitempty"` // "phone", "query"
	Intent string `json:"intent,omitempty"`
	Action string `json:"action,omitempty"`
	Hangup bool   `json:"hangup,omitempty"`
}

// StatusPayload contains status updates
type StatusPayload struct {
	Status  string `json:"status"` // "connected", "pong", "ended"
	Message string `json:"message,omitempty"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewReplyMessage creates a reply message
func NewReplyMessage(sessionID string, p ReplyPayload) *ServerMessage {
	return &ServerMessage{
		Type:      TypeReply,
		SessionID: sessionID,
		Payload:   p,
	}
}

// NewStatusMessage creates a status message
func NewStatusMessage(sessionID, status, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeStatus,
		SessionID: sessionID,
		Payload: StatusPayload{
			Status:  status,
			Message: message,
		},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(sessionID, code, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeError,
		SessionID: sessionID,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}
