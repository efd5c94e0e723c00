package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound is returned for call ids unknown to the registry.
	ErrSessionNotFound = errors.New("session not found")
	// ErrMaxSessions is returned when the registry is at capacity.
	ErrMaxSessions = errors.New("maximum sessions reached")
	// ErrPhoneAlreadySet is returned when a different phone is set on a session.
	ErrPhoneAlreadySet = errors.New("phone number already captured")
)

// Stage is the position of a call in the conversation flow.
type Stage string

const (
	StageAwaitingPhone  Stage = "awaiting_phone"
	StageAwaitingIntent Stage = "awaiting_intent"
	StageActive         Stage = "active"
	StageEnded          Stage = "ended"
)

// Role identifies who spoke a turn.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
)

// Turn is one utterance within a call.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// CallSession holds the state of one call. Handlers serialize work on a
// session with Lock/Unlock; getters take the lock themselves.
type CallSession struct {
	ID        string
	Caller    string // number reported by the call provider
	CreatedAt time.Time

	phone         string
	stage         Stage
	turns         []Turn
	phoneAttempts int
	silentTurns   int
	lastIntent    string
	escalatedTo   string
	lastActivity  time.Time
	closed        bool

	turnMu sync.Mutex // held for the duration of one turn
	mu     sync.RWMutex
}

// NewCallSession creates a session awaiting phone capture.
func NewCallSession(id, caller string) *CallSession {
	now := time.Now()
	return &CallSession{
		ID:           id,
		Caller:       caller,
		CreatedAt:    now,
		stage:        StageAwaitingPhone,
		lastActivity: now,
	}
}

// Lock serializes turn processing for this call.
func (cs *CallSession) Lock() { cs.turnMu.Lock() }

// Unlock releases the turn lock.
func (cs *CallSession) Unlock() { cs.turnMu.Unlock() }

// Phone returns the captured phone number, empty until set.
func (cs *CallSession) Phone() string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.phone
}

// SetPhone stores the caller-reported phone. A session keeps a single phone
// once captured; setting the same number again is a no-op.
func (cs *CallSession) SetPhone(phone string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.phone != "" && cs.phone != phone {
		return ErrPhoneAlreadySet
	}
	cs.phone = phone
	cs.lastActivity = time.Now()
	return nil
}

// Stage returns the current stage.
func (cs *CallSession) Stage() Stage {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.stage
}

// SetStage moves the session to a new stage.
func (cs *CallSession) SetStage(s Stage) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.stage = s
}

// AppendExchange records a customer utterance and the agent reply.
func (cs *CallSession) AppendExchange(customer, agent string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	now := time.Now()
	cs.turns = append(cs.turns,
		Turn{Role: RoleCustomer, Text: customer, At: now},
		Turn{Role: RoleAgent, Text: agent, At: now},
	)
	cs.lastActivity = now
}

// Turns returns a copy of the history.
func (cs *CallSession) Turns() []Turn {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]Turn, len(cs.turns))
	copy(out, cs.turns)
	return out
}

// HistoryLen returns the number of recorded turns.
func (cs *CallSession) HistoryLen() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.turns)
}

// RecentText joins the text of the last n turns.
func (cs *CallSession) RecentText(n int) string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	start := len(cs.turns) - n
	if start < 0 {
		start = 0
	}
	parts := make([]string, 0, n)
	for _, t := range cs.turns[start:] {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ")
}

// NotePhoneAttempt counts a failed phone capture and returns the total.
func (cs *CallSession) NotePhoneAttempt() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.phoneAttempts++
	cs.lastActivity = time.Now()
	return cs.phoneAttempts
}

// NoteSilence counts a consecutive empty turn and returns the total.
func (cs *CallSession) NoteSilence() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.silentTurns++
	cs.lastActivity = time.Now()
	return cs.silentTurns
}

// ResetSilence clears the consecutive empty-turn counter.
func (cs *CallSession) ResetSilence() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.silentTurns = 0
}

// LastIntent returns the intent recorded for the latest turn.
func (cs *CallSession) LastIntent() string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.lastIntent
}

// SetLastIntent records the intent of the latest turn.
func (cs *CallSession) SetLastIntent(in string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.lastIntent = in
}

// MarkEscalated records that the call was handed to a team.
func (cs *CallSession) MarkEscalated(team string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.escalatedTo = team
}

// EscalatedTo returns the last team the call was handed to, if any.
func (cs *CallSession) EscalatedTo() string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.escalatedTo
}

// LastActivity returns the time of the latest state change.
func (cs *CallSession) LastActivity() time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.lastActivity
}

// Close marks the session ended. It reports false if it was already closed.
func (cs *CallSession) Close() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return false
	}
	cs.closed = true
	cs.stage = StageEnded
	return true
}

// IsClosed returns whether the session is closed
func (cs *CallSession) IsClosed() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.closed
}

// Snapshot is the serializable form of a session, mirrored to Redis.
type Snapshot struct {
	ID            string    `json:"id"`
	Caller        string    `json:"caller"`
	Phone         string    `json:"phone,omitempty"`
	Stage         Stage     `json:"stage"`
	Turns         []Turn    `json:"turns"`
	PhoneAttempts int       `json:"phone_attempts"`
	SilentTurns   int       `json:"silent_turns"`
	LastIntent    string    `json:"last_intent,omitempty"`
	EscalatedTo   string    `json:"escalated_to,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
}

// Snapshot captures the session state.
func (cs *CallSession) Snapshot() Snapshot {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	turns := make([]Turn, len(cs.turns))
	copy(turns, cs.turns)
	return Snapshot{
		ID:            cs.ID,
		Caller:        cs.Caller,
		Phone:         cs.phone,
		Stage:         cs.stage,
		Turns:         turns,
		PhoneAttempts: cs.phoneAttempts,
		SilentTurns:   cs.silentTurns,
		LastIntent:    cs.lastIntent,
		EscalatedTo:   cs.escalatedTo,
		CreatedAt:     cs.CreatedAt,
		LastActivity:  cs.lastActivity,
	}
}

// FromSnapshot rebuilds a session from its mirrored state.
func FromSnapshot(s Snapshot) *CallSession {
	turns := make([]Turn, len(s.Turns))
	copy(turns, s.Turns)
	return &CallSession{
		ID:            s.ID,
		Caller:        s.Caller,
		CreatedAt:     s.CreatedAt,
		phone:         s.Phone,
		stage:         s.Stage,
		turns:         turns,
		phoneAttempts: s.PhoneAttempts,
		silentTurns:   s.SilentTurns,
		lastIntent:    s.LastIntent,
		escalatedTo:   s.EscalatedTo,
		lastActivity:  s.LastActivity,
	}
}

// Summary is the archived outcome of a finished call.
type Summary struct {
	CallID      string
	Caller      string
	Phone       string
	StartedAt   time.Time
	EndedAt     time.Time
	LastIntent  string
	Turns       []Turn
	Resolved    bool
	EscalatedTo string
	Outcome     string
}

// LogSink persists conversation transcripts.
type LogSink interface {
	// UpsertConversation stores the latest transcript for a call; repeated
	// calls with the same call id update a single record.
	UpsertConversation(ctx context.Context, callID, phone string, turns []Turn, lastIntent string) error

	// FinishConversation records the end of a call.
	FinishConversation(ctx context.Context, sum Summary) error
}
