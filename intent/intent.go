// Package intent maps recognized caller speech to a booking intent using
// ordered keyword rules, falling back to a remote model for ambiguous input.
package intent

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Intent is the classified purpose of a customer utterance.
type Intent string

const (
	Cancellation Intent = "cancellation"
	Delivery     Intent = "delivery"
	Status       Intent = "status"
	Unknown      Intent = "unknown"
)

// ErrUnparsable is returned by a Fallback whose output names no known intent.
var ErrUnparsable = errors.New("unparsable classifier output")

// DefaultTimeout bounds a single remote classification.
const DefaultTimeout = 2 * time.Second

// Fallback classifies utterances the keyword rules cannot place. It must
// answer with Cancellation, Delivery or Status.
type Fallback interface {
	Classify(ctx context.Context, utterance string) (Intent, error)
}

type rule struct {
	intent   Intent
	keywords []string
}

// Rules are evaluated in order; the first match wins.
var rules = []rule{
	{Cancellation, []string{"cancel", "refund"}},
	{Delivery, []string{"delivery", "when", "arrive", "dispatch", "track"}},
	{Status, []string{"status", "where", "update", "progress", "vehicle", "bike"}},
}

// Labels are the intents a Fallback may return, in precedence order.
var Labels = []Intent{Cancellation, Delivery, Status}

// Classifier combines the keyword rules with an optional remote fallback.
type Classifier struct {
	fallback Fallback
	timeout  time.Duration
	rephrase bool
	log      *zap.Logger
}

// NewClassifier returns a Classifier. Without a fallback, ambiguous
// utterances classify as Status.
func NewClassifier(fallback Fallback, timeout time.Duration, log *zap.Logger) *Classifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{fallback: fallback, timeout: timeout, log: log}
}

// AskToRephrase makes utterances that no rule or fallback can place
// classify as Unknown instead of Status, so the caller is asked to rephrase.
func (c *Classifier) AskToRephrase(on bool) *Classifier {
	c.rephrase = on
	return c
}

// Classify returns the intent of an utterance. It never fails: remote
// errors, timeouts and unusable output all resolve to Status, or Unknown
// after AskToRephrase.
func (c *Classifier) Classify(ctx context.Context, utterance string) Intent {
	if in, ok := MatchKeywords(utterance); ok {
		return in
	}
	if c.fallback == nil {
		return c.unclear()
	}

	c.log.Info("⚠️ Unclear intent, asking remote classifier", zap.String("utterance", utterance))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	in, err := c.fallback.Classify(ctx, utterance)
	if err != nil {
		c.log.Warn("⚠️ Remote classification failed", zap.Error(err))
		return c.unclear()
	}
	if !isLabel(in) {
		c.log.Warn("⚠️ Remote classifier returned unknown label", zap.String("label", string(in)))
		return c.unclear()
	}

	c.log.Info("🤖 Remote classifier result", zap.String("intent", string(in)))
	return in
}

func (c *Classifier) unclear() Intent {
	if c.rephrase {
		return Unknown
	}
	return Status
}

// MatchKeywords applies the ordered keyword rules to an utterance.
func MatchKeywords(utterance string) (Intent, bool) {
	lower := strings.ToLower(utterance)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.intent, true
			}
		}
	}
	return Unknown, false
}

// ParseLabel extracts an intent from free-form model output.
func ParseLabel(output string) (Intent, bool) {
	lower := strings.ToLower(strings.TrimSpace(output))
	for _, label := range Labels {
		if strings.Contains(lower, string(label)) {
			return label, true
		}
	}
	return Unknown, false
}

func isLabel(in Intent) bool {
	for _, label := range Labels {
		if in == label {
			return true
		}
	}
	return false
}
