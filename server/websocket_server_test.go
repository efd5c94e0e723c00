package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/bookingline/messages"
	"github.com/room4-2/bookingline/session"
)

type received struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
}

func dialConsole(t *testing.T) (*websocket.Conn, *session.Manager) {
	t.Helper()
	cfg := testConfig()
	cfg.ServerType = "websocket"
	a, sessions := newTestAgent(t)
	srv := NewConsoleServer(cfg, a, sessions, nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/console", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	status := readStatus(t, conn)
	assert.Equal(t, messages.StatusConnected, status.Status)
	return conn, sessions
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(messages.ClientMessage{Type: typ, Payload: raw}))
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func readReply(t *testing.T, conn *websocket.Conn) messages.ReplyPayload {
	t.Helper()
	msg := read(t, conn)
	require.Equal(t, messages.TypeReply, msg.Type, string(msg.Payload))
	var p messages.ReplyPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	return p
}

func readStatus(t *testing.T, conn *websocket.Conn) messages.StatusPayload {
	t.Helper()
	msg := read(t, conn)
	require.Equal(t, messages.TypeStatus, msg.Type, string(msg.Payload))
	var p messages.StatusPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	return p
}

func readError(t *testing.T, conn *websocket.Conn) messages.ErrorPayload {
	t.Helper()
	msg := read(t, conn)
	require.Equal(t, messages.TypeError, msg.Type, string(msg.Payload))
	var p messages.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	return p
}

func TestConsoleCall(t *testing.T) {
	conn, sessions := dialConsole(t)

	send(t, conn, messages.TypeStart, messages.StartPayload{Caller: "tester"})
	r := readReply(t, conn)
	assert.Equal(t, "Hello! Welcome to TVS vehicle booking support.", r.Text)
	assert.Equal(t, "phone", r.Expect)
	assert.Equal(t, 1, sessions.Count())

	send(t, conn, messages.TypeSpeech, messages.SpeechPayload{Text: phoneWords})
	r = readReply(t, conn)
	assert.Contains(t, r.Text, testPhone)
	assert.Equal(t, "query", r.Expect)

	send(t, conn, messages.TypeSpeech, messages.SpeechPayload{Text: "When will it arrive?"})
	r = readReply(t, conn)
	assert.Equal(t, "delivery", r.Intent)
	assert.Contains(t, r.Text, "TVS Showroom Delhi")

	send(t, conn, messages.TypeSpeech, messages.SpeechPayload{Text: "thanks, bye"})
	r = readReply(t, conn)
	assert.True(t, r.Hangup)
	assert.Equal(t, messages.StatusEnded, readStatus(t, conn).Status)
	assert.Zero(t, sessions.Count())
}

func TestConsoleSpeechBeforeStart(t *testing.T) {
	conn, _ := dialConsole(t)

	send(t, conn, messages.TypeSpeech, messages.SpeechPayload{Text: "status"})
	assert.Equal(t, messages.ErrCodeNotStarted, readError(t, conn).Code)
}

func TestConsoleControl(t *testing.T) {
	conn, sessions := dialConsole(t)

	send(t, conn, messages.TypeControl, messages.ControlPayload{Action: "ping"})
	assert.Equal(t, messages.StatusPong, readStatus(t, conn).Status)

	send(t, conn, messages.TypeStart, nil)
	readReply(t, conn)
	assert.Equal(t, 1, sessions.Count())

	send(t, conn, messages.TypeStart, nil)
	assert.Equal(t, messages.ErrCodeInvalidMessage, readError(t, conn).Code)

	send(t, conn, messages.TypeControl, messages.ControlPayload{Action: "hangup"})
	assert.Equal(t, messages.StatusEnded, readStatus(t, conn).Status)
	assert.Zero(t, sessions.Count())
}

func TestConsoleUnknownType(t *testing.T) {
	conn, _ := dialConsole(t)

	send(t, conn, "audio", nil)
	assert.Equal(t, messages.ErrCodeInvalidMessage, readError(t, conn).Code)
}
