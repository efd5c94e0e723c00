package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/room4-2/bookingline/agent"
	"github.com/room4-2/bookingline/config"
	"github.com/room4-2/bookingline/logger"
	"github.com/room4-2/bookingline/messages"
	"github.com/room4-2/bookingline/session"
)

// Webhook paths Twilio posts to.
const (
	PathVoice       = "/voice"
	PathPhoneNumber = "/get-phone-number"
	PathSpeech      = "/process-speech"
	PathCallStatus  = "/call-status"
)

// Spoken when a Gather times out without speech.
const (
	noPhoneFallback = "I didn't hear your number. Please call back. Goodbye!"
	noReplyFallback = "I didn't hear your response. Thank you for calling. Goodbye!"
	sessionExpired  = "Session expired. Please call back."
	troubleMessage  = "I'm having trouble processing your request. Please try again later. Goodbye!"
	busyMessage     = "All our agents are busy right now. Please call back in a few minutes. Goodbye!"
)

const queryHints = "status,delivery,cancel,where,when"

// TwilioServer answers Twilio voice webhooks with TwiML.
type TwilioServer struct {
	httpServer     *http.Server
	router         chi.Router
	agent          *agent.Agent
	sessionManager *session.Manager
	config         *config.Config
	log            *zap.Logger
}

func NewTwilioServer(cfg *config.Config, a *agent.Agent, sessionManager *session.Manager, log *zap.Logger) *TwilioServer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &TwilioServer{
		agent:          a,
		sessionManager: sessionManager,
		config:         cfg,
		log:            log,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLog(log))

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)

	r.Group(func(r chi.Router) {
		if cfg.TwilioAuthToken != "" {
			r.Use(validateSignature(cfg.TwilioAuthToken, cfg.PublicBaseURL, log))
		}
		r.Post(PathVoice, s.handleVoice)
		r.Post(PathPhoneNumber, s.handlePhoneNumber)
		r.Post(PathSpeech, s.handleSpeech)
		r.Post(PathCallStatus, s.handleCallStatus)
	})
	s.router = r

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *TwilioServer) Handler() http.Handler {
	return s.router
}

// Start begins listening for webhooks
func (s *TwilioServer) Start() error {
	s.log.Info("📞 Twilio webhook server starting", zap.String("addr", s.httpServer.Addr))
	s.log.Info("📡 Twilio voice endpoint", zap.String("url", fmt.Sprintf("http://localhost%s%s", s.httpServer.Addr, PathVoice)))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *TwilioServer) Shutdown(ctx context.Context) error {
	s.log.Info("🛑 Shutting down Twilio server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *TwilioServer) voice() *messages.VoiceResponse {
	return messages.NewVoiceResponse(s.config.Voice, s.config.Language)
}

func (s *TwilioServer) handleVoice(w http.ResponseWriter, r *http.Request) {
	callID := r.FormValue("CallSid")
	caller := r.FormValue("From")
	if caller == "" {
		caller = "Unknown"
	}

	res, err := s.agent.OnCallStart(r.Context(), callID, caller)
	if err != nil {
		s.log.Error("❌ Failed to start call", zap.String("call_id", logger.ShortID(callID)), zap.Error(err))
		text := troubleMessage
		if errors.Is(err, session.ErrMaxSessions) {
			text = busyMessage
		}
		s.writeTwiML(w, s.voice().Say(text).Hangup())
		return
	}
	s.writeTwiML(w, s.render(res))
}

func (s *TwilioServer) handlePhoneNumber(w http.ResponseWriter, r *http.Request) {
	callID := r.FormValue("CallSid")
	res, err := s.agent.OnPhoneCandidate(r.Context(), callID, r.FormValue("SpeechResult"))
	if err != nil {
		s.writeError(w, callID, err)
		return
	}
	s.writeTwiML(w, s.render(res))
}

func (s *TwilioServer) handleSpeech(w http.ResponseWriter, r *http.Request) {
	callID := r.FormValue("CallSid")
	res, err := s.agent.OnTurn(r.Context(), callID, r.FormValue("SpeechResult"))
	if err != nil {
		s.writeError(w, callID, err)
		return
	}
	s.writeTwiML(w, s.render(res))
}

func (s *TwilioServer) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	callID := r.FormValue("CallSid")
	status := r.FormValue("CallStatus")
	s.log.Info("📊 Call status", zap.String("call_id", logger.ShortID(callID)), zap.String("status", status))

	s.agent.OnCallEnd(r.Context(), callID, status)

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *TwilioServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_calls": s.sessionManager.Count(),
	})
}

func (s *TwilioServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active_calls": s.sessionManager.Count(),
		"details":      s.sessionManager.Summaries(),
	})
}

// render turns an agent result into the next TwiML document.
func (s *TwilioServer) render(res agent.Result) *messages.VoiceResponse {
	vr := s.voice().Say(res.Text)
	if res.Hangup {
		return vr.Hangup()
	}

	switch res.Expect {
	case agent.ExpectPhone:
		vr.Pause(1).
			GatherSpeech(PathPhoneNumber, res.Prompt, 5, 3, "").
			Say(noPhoneFallback)
	case agent.ExpectQuery:
		vr.Pause(1).
			GatherSpeech(PathSpeech, res.Prompt, 10, 5, queryHints).
			Say(noReplyFallback)
	default:
		vr.Hangup()
	}
	return vr
}

func (s *TwilioServer) writeError(w http.ResponseWriter, callID string, err error) {
	if errors.Is(err, session.ErrSessionNotFound) {
		s.log.Warn("❌ Session not found", zap.String("call_id", logger.ShortID(callID)))
		s.writeTwiML(w, s.voice().Say(sessionExpired).Hangup())
		return
	}
	s.log.Error("❌ Turn failed", zap.String("call_id", logger.ShortID(callID)), zap.Error(err))
	s.writeTwiML(w, s.voice().Say(troubleMessage).Hangup())
}

func (s *TwilioServer) writeTwiML(w http.ResponseWriter, vr *messages.VoiceResponse) {
	body, err := vr.Render()
	if err != nil {
		s.log.Error("❌ Failed to render TwiML", zap.Error(err))
		http.Error(w, "ERROR", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
