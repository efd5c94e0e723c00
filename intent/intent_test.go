package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubFallback struct {
	intent Intent
	err    error
	delay  time.Duration
	calls  int
}

func (s *stubFallback) Classify(ctx context.Context, _ string) (Intent, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.intent, s.err
}

func TestCancellationDominates(t *testing.T) {
	c := NewClassifier(nil, 0, nil)
	utterances := []string{
		"I want to cancel my booking",
		"when will my refund arrive",
		"Cancel the delivery, where is my bike?",
		"track my REFUND status",
	}
	for _, u := range utterances {
		assert.Equal(t, Cancellation, c.Classify(context.Background(), u), u)
	}
}

func TestKeywordOrder(t *testing.T) {
	c := NewClassifier(nil, 0, nil)
	cases := map[string]Intent{
		"When will it be delivered":      Delivery,
		"where is my vehicle":            Status,
		"can you track the order status": Delivery,
		"any update on my bike":          Status,
		"has it been dispatched":         Delivery,
		"what's the progress":            Status,
	}
	for u, want := range cases {
		assert.Equal(t, want, c.Classify(context.Background(), u), u)
	}
}

func TestFallbackUsedOnlyForAmbiguousInput(t *testing.T) {
	fb := &stubFallback{intent: Delivery}
	c := NewClassifier(fb, time.Second, nil)

	assert.Equal(t, Status, c.Classify(context.Background(), "where is it"))
	assert.Equal(t, 0, fb.calls)

	assert.Equal(t, Delivery, c.Classify(context.Background(), "hmm I was wondering"))
	assert.Equal(t, 1, fb.calls)
}

func TestFallbackFailuresDefaultToStatus(t *testing.T) {
	cases := map[string]*stubFallback{
		"error":     {err: errors.New("boom")},
		"bad label": {intent: Intent("weather")},
		"timeout":   {intent: Cancellation, delay: time.Second},
	}
	for name, fb := range cases {
		t.Run(name, func(t *testing.T) {
			c := NewClassifier(fb, 20*time.Millisecond, nil)
			assert.Equal(t, Status, c.Classify(context.Background(), "hello there"))
		})
	}
}

func TestNoFallbackDefaultsToStatus(t *testing.T) {
	c := NewClassifier(nil, 0, nil)
	assert.Equal(t, Status, c.Classify(context.Background(), "good morning"))
	assert.Equal(t, Cancellation, c.Classify(context.Background(), "please cancel it"))
}

func TestAskToRephrase(t *testing.T) {
	c := NewClassifier(nil, 0, nil).AskToRephrase(true)
	assert.Equal(t, Unknown, c.Classify(context.Background(), "good morning"))
	assert.Equal(t, Delivery, c.Classify(context.Background(), "when does it arrive"))
}

func TestParseLabel(t *testing.T) {
	in, ok := ParseLabel("  Delivery.\n")
	assert.True(t, ok)
	assert.Equal(t, Delivery, in)

	in, ok = ParseLabel("cancellation")
	assert.True(t, ok)
	assert.Equal(t, Cancellation, in)

	_, ok = ParseLabel("I cannot say")
	assert.False(t, ok)
}
