package escalation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndPhrasesNeverEscalate(t *testing.T) {
	var p Policy
	for _, n := range []int{0, 3, 8, 50} {
		assert.False(t, p.ShouldEscalate("thanks, that's all", n), "history %d", n)
	}
	assert.False(t, p.ShouldEscalate("ok bye, get me a manager", 0))
}

func TestLongHistoryEscalates(t *testing.T) {
	var p Policy
	assert.False(t, p.ShouldEscalate("tell me more", MaxHistory))

	d := p.Evaluate("tell me more", MaxHistory+1)
	assert.True(t, d.Escalate)
	assert.Equal(t, ComplexQuery, d.Type)
}

func TestPlainNegation(t *testing.T) {
	var p Policy
	for _, u := range []string{"no", "  Nope ", "NO THANKS"} {
		assert.False(t, p.ShouldEscalate(u, 20), u)
	}
	// only an exact "no" is shielded from the history rule
	assert.True(t, p.ShouldEscalate("no idea", 20))
}

func TestExplicitRequest(t *testing.T) {
	var p Policy
	for _, u := range []string{"let me speak to a human", "Connect me to your supervisor", "please call back later"} {
		d := p.Evaluate(u, 0)
		assert.True(t, d.Escalate, u)
		assert.Equal(t, ExplicitRequest, d.Type, u)
	}
}

func TestProblemWords(t *testing.T) {
	var p Policy
	d := p.Evaluate("my headlight is not working", 2)
	assert.True(t, d.Escalate)
	assert.Equal(t, ComplexQuery, d.Type)

	assert.False(t, p.ShouldEscalate("where is my bike", 2))
}

func TestIsEndOfCall(t *testing.T) {
	assert.True(t, IsEndOfCall("Thank you so much"))
	assert.True(t, IsEndOfCall("nothing else"))
	assert.False(t, IsEndOfCall("when will it arrive"))
}
