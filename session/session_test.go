package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetPhoneOnce(t *testing.T) {
	cs := NewCallSession("CA1", "+15550001111")
	assert.Empty(t, cs.Phone())

	assert.NoError(t, cs.SetPhone("+919582350455"))
	assert.NoError(t, cs.SetPhone("+919582350455"))
	assert.ErrorIs(t, cs.SetPhone("+919999999999"), ErrPhoneAlreadySet)
	assert.Equal(t, "+919582350455", cs.Phone())
}

func TestRecentText(t *testing.T) {
	cs := NewCallSession("CA1", "")
	assert.Empty(t, cs.RecentText(2))

	cs.AppendExchange("I want to cancel", "A 25% fee applies. Should I proceed?")
	cs.AppendExchange("where is my bike", "It is on the way.")

	assert.Equal(t, "where is my bike It is on the way.", cs.RecentText(2))
	assert.Equal(t, 4, cs.HistoryLen())
}

func TestTurnsIsACopy(t *testing.T) {
	cs := NewCallSession("CA1", "")
	cs.AppendExchange("hi", "hello")

	turns := cs.Turns()
	turns[0].Text = "changed"
	assert.Equal(t, "hi", cs.Turns()[0].Text)
}

func TestCounters(t *testing.T) {
	cs := NewCallSession("CA1", "")
	assert.Equal(t, 1, cs.NotePhoneAttempt())
	assert.Equal(t, 2, cs.NotePhoneAttempt())

	assert.Equal(t, 1, cs.NoteSilence())
	assert.Equal(t, 2, cs.NoteSilence())
	cs.ResetSilence()
	assert.Equal(t, 1, cs.NoteSilence())
}

func TestCloseOnce(t *testing.T) {
	cs := NewCallSession("CA1", "")
	assert.True(t, cs.Close())
	assert.False(t, cs.Close())
	assert.Equal(t, StageEnded, cs.Stage())
}

func TestSnapshotRoundTrip(t *testing.T) {
	cs := NewCallSession("CA1", "+15550001111")
	_ = cs.SetPhone("+919582350455")
	cs.SetStage(StageActive)
	cs.SetLastIntent("delivery")
	cs.MarkEscalated("Support Team")
	cs.AppendExchange("hi", "hello")

	back := FromSnapshot(cs.Snapshot())
	assert.Equal(t, cs.Snapshot(), back.Snapshot())
	assert.False(t, back.IsClosed())
}
