package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/room4-2/bookingline/agent"
	"github.com/room4-2/bookingline/config"
	"github.com/room4-2/bookingline/logger"
	"github.com/room4-2/bookingline/messages"
	"github.com/room4-2/bookingline/session"
)

// ConsoleServer drives calls over a websocket with typed text instead of a
// phone line.
type ConsoleServer struct {
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	agent          *agent.Agent
	sessionManager *session.Manager
	config         *config.Config
	log            *zap.Logger
}

func NewConsoleServer(cfg *config.Config, a *agent.Agent, sessionManager *session.Manager, log *zap.Logger) *ConsoleServer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &ConsoleServer{
		agent:          a,
		sessionManager: sessionManager,
		config:         cfg,
		log:            log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Check allowed origins
				origin := r.Header.Get("Origin")
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/console", s.handleConsole)
	mux.HandleFunc("/health", s.handleHealth)

	// Share the main port unless the Twilio server is also running
	port := cfg.Port
	if cfg.ServerType == "both" {
		port = cfg.ConsolePort
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	return s
}

// Handler exposes the mux, mainly for tests.
func (s *ConsoleServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for connections
func (s *ConsoleServer) Start() error {
	s.log.Info("🚀 Console server starting", zap.String("addr", s.httpServer.Addr))
	s.log.Info("📡 Console endpoint", zap.String("url", fmt.Sprintf("ws://localhost%s/console", s.httpServer.Addr)))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *ConsoleServer) Shutdown(ctx context.Context) error {
	s.log.Info("🛑 Shutting down console server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *ConsoleServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_calls": s.sessionManager.Count(),
	})
}

func (s *ConsoleServer) handleConsole(w http.ResponseWriter, r *http.Request) {
	// Upgrade HTTP to WebSocket
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(16 * 1024)

	c := &consoleCall{server: s, conn: conn}
	_ = c.send(messages.NewStatusMessage("", messages.StatusConnected, "Send a start message to place a call"))
	c.run(r.Context())
}

// consoleCall is one websocket connection. It carries at most one call.
type consoleCall struct {
	server *ConsoleServer
	conn   *websocket.Conn
	callID string
	ended  bool
}

func (c *consoleCall) send(msg *messages.ServerMessage) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (c *consoleCall) run(ctx context.Context) {
	log := c.server.log
	defer func() {
		// the client went away mid-call
		if c.callID != "" && !c.ended {
			c.server.agent.OnCallEnd(context.Background(), c.callID, "canceled")
		}
	}()

	for {
		var msg messages.ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		done, err := c.handle(ctx, msg)
		if err != nil {
			log.Warn("Failed to write to console", zap.Error(err))
			return
		}
		if done {
			return
		}
	}
}

// handle processes one client message and reports whether the connection
// should close.
func (c *consoleCall) handle(ctx context.Context, msg messages.ClientMessage) (bool, error) {
	switch msg.Type {
	case messages.TypeStart:
		if c.callID != "" {
			return false, c.send(messages.NewErrorMessage(c.callID, messages.ErrCodeInvalidMessage, "call already started"))
		}
		var p messages.StartPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				return false, c.send(messages.NewErrorMessage("", messages.ErrCodeInvalidMessage, "invalid start payload"))
			}
		}
		if p.Caller == "" {
			p.Caller = "console"
		}

		callID := "console-" + uuid.NewString()
		res, err := c.server.agent.OnCallStart(ctx, callID, p.Caller)
		if err != nil {
			return false, c.send(messages.NewErrorMessage("", messages.ErrCodeSessionFailed, err.Error()))
		}
		c.callID = callID
		c.server.log.Info("✅ Console call started", zap.String("call_id", logger.ShortID(callID)))
		return false, c.reply(res)

	case messages.TypeSpeech:
		if c.callID == "" {
			return false, c.send(messages.NewErrorMessage("", messages.ErrCodeNotStarted, "send a start message first"))
		}
		var p messages.SpeechPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return false, c.send(messages.NewErrorMessage(c.callID, messages.ErrCodeInvalidMessage, "invalid speech payload"))
		}

		res, err := c.server.agent.Respond(ctx, c.callID, p.Text)
		if errors.Is(err, session.ErrSessionNotFound) {
			c.ended = true
			return true, c.send(messages.NewErrorMessage(c.callID, messages.ErrCodeSessionNotFound, sessionExpired))
		}
		if err != nil {
			return false, c.send(messages.NewErrorMessage(c.callID, messages.ErrCodeSessionFailed, err.Error()))
		}
		if err := c.reply(res); err != nil {
			return true, err
		}
		if res.Hangup {
			c.ended = true
			return true, c.send(messages.NewStatusMessage(c.callID, messages.StatusEnded, "Call ended"))
		}
		return false, nil

	case messages.TypeControl:
		var p messages.ControlPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return false, c.send(messages.NewErrorMessage(c.callID, messages.ErrCodeInvalidMessage, "invalid control payload"))
		}
		switch p.Action {
		case "ping":
			return false, c.send(messages.NewStatusMessage(c.callID, messages.StatusPong, ""))
		case "hangup":
			if c.callID != "" && !c.ended {
				c.server.agent.OnCallEnd(ctx, c.callID, "completed")
				c.ended = true
			}
			return true, c.send(messages.NewStatusMessage(c.callID, messages.StatusEnded, "Call ended"))
		}
		return false, c.send(messages.NewErrorMessage(c.callID, messages.ErrCodeInvalidMessage, "unknown control action: "+p.Action))
	}

	return false, c.send(messages.NewErrorMessage(c.callID, messages.ErrCodeInvalidMessage, "unknown message type: "+msg.Type))
}

func (c *consoleCall) reply(res agent.Result) error {
	return c.send(messages.NewReplyMessage(c.callID, messages.ReplyPayload{
		Text:   res.Text,
		Prompt: res.Prompt,
		Expect: res.Expect.String(),
		Intent: string(res.Intent),
		Action: string(res.Action),
		Hangup: res.Hangup,
	}))
}
