// Package escalation decides when a caller is handed off to a human team
// and describes the handoff records written for those teams.
package escalation

import (
	"context"
	"strings"
)

// Type classifies why a case was escalated.
type Type string

const (
	ExplicitRequest     Type = "explicit_request"
	CancellationRequest Type = "cancellation_request"
	ComplexQuery        Type = "complex_query"
)

// Destination teams.
const (
	SupportTeam = "Support Team"
	FinanceTeam = "Finance Team"
)

// StatusOpen is the initial status of every record.
const StatusOpen = "open"

// UnassignedBooking is used when no booking could be associated with the call.
const UnassignedBooking = "ESCALATED"

// Record is a handoff directing a case to a human team.
type Record struct {
	CallID      string
	BookingID   string
	Type        Type
	Description string
	Destination string
}

// Sink persists escalation records. Failures must not abort the caller's turn.
type Sink interface {
	RecordEscalation(ctx context.Context, rec Record) error
}

// MaxHistory is the number of history entries after which the call is
// treated as a complex query.
const MaxHistory = 7

var (
	endPhrases     = []string{"bye", "goodbye", "thank you", "thanks", "that's all", "nothing else"}
	plainNegations = []string{"no", "nope", "no thanks"}
	humanRequests  = []string{"human", "agent", "manager", "supervisor", "speak to", "connect me", "call back"}
	problemWords   = []string{"warranty", "accident", "damage", "defect", "broken", "not working", "issue", "problem"}
)

// Decision is the outcome of evaluating the policy for one utterance.
type Decision struct {
	Escalate bool
	Type     Type
	Reason   string
}

// Policy evaluates the escalation rules. The zero value is ready to use.
type Policy struct{}

// ShouldEscalate reports whether the utterance should be handed to a human.
func (p Policy) ShouldEscalate(utterance string, historyLen int) bool {
	return p.Evaluate(utterance, historyLen).Escalate
}

// Evaluate applies the ordered rules; the first decisive rule wins.
func (Policy) Evaluate(utterance string, historyLen int) Decision {
	lower := strings.ToLower(utterance)

	if containsAny(lower, endPhrases) {
		return Decision{Reason: "end of call"}
	}
	trimmed := strings.TrimSpace(lower)
	for _, n := range plainNegations {
		if trimmed == n {
			return Decision{Reason: "plain negation"}
		}
	}
	if containsAny(lower, humanRequests) {
		return Decision{Escalate: true, Type: ExplicitRequest, Reason: "human requested"}
	}
	if historyLen > MaxHistory {
		return Decision{Escalate: true, Type: ComplexQuery, Reason: "long conversation"}
	}
	if containsAny(lower, problemWords) {
		return Decision{Escalate: true, Type: ComplexQuery, Reason: "problem reported"}
	}
	return Decision{Reason: "no rule matched"}
}

// IsEndOfCall reports whether the utterance contains call-ending language.
func IsEndOfCall(utterance string) bool {
	return containsAny(strings.ToLower(utterance), endPhrases)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
