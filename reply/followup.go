package reply

import (
	"strings"
	"unicode"
)

// FollowUp classifies a bare yes/no answer to the previous agent turn.
type FollowUp int

const (
	NoFollowUp FollowUp = iota
	Affirmation
	Negation
)

var (
	negations    = []string{"no", "nope", "nah", "no thanks", "not now"}
	affirmations = []string{"yes", "yeah", "yep", "sure", "okay", "ok", "yes please", "go ahead", "proceed"}
)

// DetectFollowUp reports whether the whole utterance is a yes or a no.
func DetectFollowUp(utterance string) FollowUp {
	u := normalize(utterance)
	for _, n := range negations {
		if u == n {
			return Negation
		}
	}
	for _, a := range affirmations {
		if u == a {
			return Affirmation
		}
	}
	return NoFollowUp
}

// FollowUpReply answers a yes/no using the text of the previous two turns
// as context.
func FollowUpReply(f FollowUp, context string) string {
	aboutCancel := strings.Contains(strings.ToLower(context), "cancel")
	switch f {
	case Negation:
		if aboutCancel {
			return "No problem! Your booking remains active. Is there anything else I can help you with?"
		}
		return "Okay, no problem. Is there anything else I can help you with?"
	case Affirmation:
		if aboutCancel {
			return "Great! Your cancellation is being processed. You'll receive a confirmation SMS shortly."
		}
		return "Perfect! I'm here to help. What would you like to know?"
	}
	return ""
}

func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
