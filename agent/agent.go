// Package agent runs the per-call conversation: phone capture, then a turn
// loop where only a goodbye outranks the escalation rules. Bare yes/no
// follow-ups come next, and anything else is classified and answered from
// booking data.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/room4-2/bookingline/booking"
	"github.com/room4-2/bookingline/escalation"
	"github.com/room4-2/bookingline/intent"
	"github.com/room4-2/bookingline/logger"
	"github.com/room4-2/bookingline/reply"
	"github.com/room4-2/bookingline/session"
)

// Expect tells the transport which input the next turn collects.
type Expect int

const (
	ExpectNothing Expect = iota
	ExpectPhone
	ExpectQuery
)

func (e Expect) String() string {
	switch e {
	case ExpectPhone:
		return "phone"
	case ExpectQuery:
		return "query"
	}
	return ""
}

// Call outcomes recorded when a call ends.
const (
	OutcomeResolved  = "resolved"
	OutcomeEscalated = "escalated"
	OutcomeAbandoned = "abandoned"
)

// Prompts.
const (
	PhonePrompt      = "To help you better, please provide your mobile number. Say your 10-digit number."
	PhoneRetryPrompt = "Please say your 10-digit mobile number."
	HelpPrompt       = "Now, how can I help you today? Ask about your vehicle status, delivery updates, or cancellation."
	QueryRetryPrompt = "What would you like to know?"
	AnythingElse     = "Is there anything else I can help you with?"
)

// Result is what the transport should say and do after an event.
type Result struct {
	Text   string // spoken first
	Prompt string // asked while collecting the next input
	Expect Expect
	Hangup bool

	Intent intent.Intent
	Action reply.Action
}

// Options configure an Agent.
type Options struct {
	Brand            string
	CountryCode      string
	MaxPhoneAttempts int
	MaxSilentTurns   int
}

// Agent drives calls through their stages. It is safe for concurrent use;
// turns on the same call are serialized by the session lock.
type Agent struct {
	sessions    *session.Manager
	classifier  *intent.Classifier
	gateway     booking.Gateway
	escalations escalation.Sink
	logs        session.LogSink
	composer    *reply.Composer
	policy      escalation.Policy
	opts        Options
	log         *zap.Logger
}

// New wires an agent. Escalations and logs may be nil when nothing should be
// persisted.
func New(sessions *session.Manager, classifier *intent.Classifier, gateway booking.Gateway,
	escalations escalation.Sink, logs session.LogSink, opts Options, log *zap.Logger) *Agent {
	if opts.CountryCode == "" {
		opts.CountryCode = "+91"
	}
	if opts.MaxPhoneAttempts <= 0 {
		opts.MaxPhoneAttempts = 3
	}
	if opts.MaxSilentTurns <= 0 {
		opts.MaxSilentTurns = 3
	}
	if log == nil {
		log = zap.NewNop()
	}

	a := &Agent{
		sessions:    sessions,
		classifier:  classifier,
		gateway:     gateway,
		escalations: escalations,
		logs:        logs,
		composer:    reply.NewComposer(opts.Brand),
		opts:        opts,
		log:         log,
	}
	sessions.OnEvict(func(ctx context.Context, cs *session.CallSession) {
		a.archive(ctx, cs, OutcomeAbandoned)
	})
	return a
}

// OnCallStart registers the call and returns the greeting and phone prompt.
func (a *Agent) OnCallStart(ctx context.Context, callID, caller string) (Result, error) {
	if _, err := a.sessions.Create(ctx, callID, caller); err != nil {
		return Result{}, err
	}
	a.log.Info("📞 New call", zap.String("call_id", logger.ShortID(callID)), zap.String("caller", caller))

	return Result{
		Text:   fmt.Sprintf("Hello! Welcome to %s vehicle booking support.", a.composer.Brand),
		Prompt: PhonePrompt,
		Expect: ExpectPhone,
	}, nil
}

// OnPhoneCandidate tries to capture the caller's phone number from speech.
func (a *Agent) OnPhoneCandidate(ctx context.Context, callID, speech string) (Result, error) {
	cs, err := a.lockSession(ctx, callID)
	if err != nil {
		return Result{}, err
	}
	defer cs.Unlock()

	a.log.Info("🗣️ Phone candidate", zap.String("call_id", logger.ShortID(callID)), zap.String("speech", speech))

	if strings.TrimSpace(speech) == "" {
		return a.phoneRetry(ctx, cs, "I'm sorry, I didn't catch your number. Please try again.", PhoneRetryPrompt), nil
	}

	digits, ok := ExtractPhone(speech)
	if !ok {
		return a.phoneRetry(ctx, cs, "I'm sorry, I couldn't understand the number. Let me try again.",
			"Please say your 10-digit mobile number clearly."), nil
	}

	phone := NormalizePhone(digits, a.opts.CountryCode)
	if err := cs.SetPhone(phone); err != nil {
		if errors.Is(err, session.ErrPhoneAlreadySet) {
			return Result{
				Text:   fmt.Sprintf("I already have your number as %s.", cs.Phone()),
				Prompt: HelpPrompt,
				Expect: ExpectQuery,
			}, nil
		}
		return Result{}, err
	}
	if cs.Stage() == session.StageAwaitingPhone {
		cs.SetStage(session.StageAwaitingIntent)
	}
	a.sessions.Save(ctx, cs)

	a.log.Info("✅ Customer phone captured", zap.String("call_id", logger.ShortID(callID)), zap.String("phone", phone))

	return Result{
		Text:   fmt.Sprintf("Thank you! I have your number as %s. Let me retrieve your booking details.", phone),
		Prompt: HelpPrompt,
		Expect: ExpectQuery,
	}, nil
}

func (a *Agent) phoneRetry(ctx context.Context, cs *session.CallSession, text, prompt string) Result {
	if n := cs.NotePhoneAttempt(); n >= a.opts.MaxPhoneAttempts {
		a.log.Warn("⚠️ Phone capture failed, ending call", zap.String("call_id", logger.ShortID(cs.ID)), zap.Int("attempts", n))
		a.archive(ctx, cs, OutcomeAbandoned)
		return Result{
			Text:   "I'm sorry, I couldn't get your number. Please call back when you're ready. Goodbye!",
			Hangup: true,
		}
	}
	a.sessions.Save(ctx, cs)
	return Result{Text: text, Prompt: prompt, Expect: ExpectPhone}
}

// OnTurn answers one customer utterance after the phone has been captured.
func (a *Agent) OnTurn(ctx context.Context, callID, speech string) (Result, error) {
	cs, err := a.lockSession(ctx, callID)
	if err != nil {
		return Result{}, err
	}
	defer cs.Unlock()

	if cs.Phone() == "" {
		return Result{
			Text:   "I need to verify your phone number first.",
			Prompt: PhoneRetryPrompt,
			Expect: ExpectPhone,
		}, nil
	}

	if strings.TrimSpace(speech) == "" {
		if n := cs.NoteSilence(); n >= a.opts.MaxSilentTurns {
			a.log.Warn("⚠️ Caller silent, ending call", zap.String("call_id", logger.ShortID(callID)), zap.Int("silent_turns", n))
			a.archive(ctx, cs, OutcomeAbandoned)
			return Result{Text: "I still can't hear you. Please call back. Goodbye!", Hangup: true}, nil
		}
		a.sessions.Save(ctx, cs)
		return Result{
			Text:   "I'm sorry, I didn't catch that. Please speak clearly.",
			Prompt: QueryRetryPrompt,
			Expect: ExpectQuery,
		}, nil
	}
	cs.ResetSilence()
	if cs.Stage() == session.StageAwaitingIntent {
		cs.SetStage(session.StageActive)
	}

	a.log.Info("🗣️ Customer", zap.String("call_id", logger.ShortID(callID)), zap.String("speech", speech))
	res := a.respond(ctx, cs, speech)

	// the provider ended the call while this turn was running
	if cs.IsClosed() {
		a.log.Info("🔚 Call ended mid-turn, reply discarded", zap.String("call_id", logger.ShortID(callID)))
		return Result{Hangup: true}, nil
	}

	cs.AppendExchange(speech, res.Text)
	if res.Intent != "" {
		cs.SetLastIntent(string(res.Intent))
	}
	a.sessions.Save(ctx, cs)
	a.upsert(ctx, cs)

	a.log.Info("🤖 Agent", zap.String("call_id", logger.ShortID(callID)), zap.String("intent", string(res.Intent)), zap.String("reply", res.Text))

	if res.Hangup {
		outcome := OutcomeResolved
		if cs.EscalatedTo() != "" {
			outcome = OutcomeEscalated
		}
		a.archive(ctx, cs, outcome)
		return res, nil
	}

	res.Prompt = AnythingElse
	res.Expect = ExpectQuery
	return res, nil
}

// Respond routes text to phone capture or the turn loop depending on the
// call's stage. It backs transports with a single input channel.
func (a *Agent) Respond(ctx context.Context, callID, text string) (Result, error) {
	cs, err := a.sessions.Get(ctx, callID)
	if err != nil {
		return Result{}, err
	}
	if cs.Stage() == session.StageAwaitingPhone {
		return a.OnPhoneCandidate(ctx, callID, text)
	}
	return a.OnTurn(ctx, callID, text)
}

// OnCallEnd archives the call after the provider reports a final status.
// Non-final statuses are ignored.
func (a *Agent) OnCallEnd(ctx context.Context, callID, status string) {
	if !IsFinalStatus(status) {
		return
	}
	cs, err := a.sessions.Get(ctx, callID)
	if err != nil {
		return
	}

	outcome := OutcomeAbandoned
	switch {
	case cs.EscalatedTo() != "":
		outcome = OutcomeEscalated
	case cs.LastIntent() != "":
		outcome = OutcomeResolved
	}

	a.log.Info("📊 Call finished", zap.String("call_id", logger.ShortID(callID)), zap.String("status", status), zap.Int("turns", cs.HistoryLen()))
	a.archive(ctx, cs, outcome)
}

// IsFinalStatus reports whether a provider call status ends the call.
func IsFinalStatus(status string) bool {
	switch status {
	case "completed", "busy", "failed", "no-answer", "canceled":
		return true
	}
	return false
}

func (a *Agent) lockSession(ctx context.Context, callID string) (*session.CallSession, error) {
	cs, err := a.sessions.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	cs.Lock()
	if cs.IsClosed() {
		cs.Unlock()
		return nil, session.ErrSessionNotFound
	}
	return cs, nil
}

func (a *Agent) respond(ctx context.Context, cs *session.CallSession, speech string) Result {
	if escalation.IsEndOfCall(speech) {
		return Result{Text: a.composer.Goodbye(), Hangup: true}
	}

	if d := a.policy.Evaluate(speech, cs.HistoryLen()); d.Escalate {
		a.log.Info("🙋 Escalating to human", zap.String("call_id", logger.ShortID(cs.ID)), zap.String("reason", d.Reason))
		a.escalate(ctx, escalation.Record{
			CallID:      cs.ID,
			BookingID:   a.bookingRef(ctx, cs.Phone()),
			Type:        d.Type,
			Description: speech,
			Destination: escalation.SupportTeam,
		})
		cs.MarkEscalated(escalation.SupportTeam)
		return Result{Text: reply.HandoffMessage}
	}

	if f := reply.DetectFollowUp(speech); f != reply.NoFollowUp {
		return Result{Text: reply.FollowUpReply(f, cs.RecentText(2))}
	}

	in := a.classifier.Classify(ctx, speech)
	lk := a.lookup(ctx, in, cs.Phone())
	r := a.composer.Compose(in, lk)

	if r.Action == reply.ActionPendingConfirmation && lk.Cancellation != nil {
		a.escalate(ctx, escalation.Record{
			CallID:      cs.ID,
			BookingID:   lk.Cancellation.BookingID,
			Type:        escalation.CancellationRequest,
			Description: fmt.Sprintf("Customer cancellation with %d%% charge", lk.Cancellation.FeePercent),
			Destination: escalation.FinanceTeam,
		})
		cs.MarkEscalated(escalation.FinanceTeam)
	}

	return Result{Text: r.Text, Intent: r.Intent, Action: r.Action}
}

func (a *Agent) lookup(ctx context.Context, in intent.Intent, phone string) reply.Lookup {
	var lk reply.Lookup
	switch in {
	case intent.Status, intent.Delivery:
		lk.Booking, lk.Err = a.gateway.FindActiveBooking(ctx, phone)
	case intent.Cancellation:
		lk.Cancellation, lk.Err = a.gateway.ComputeCancellation(ctx, phone)
	default:
		return lk
	}
	if lk.Err != nil && !errors.Is(lk.Err, booking.ErrNotFound) {
		a.log.Error("❌ Booking lookup failed", zap.String("phone", phone), zap.String("intent", string(in)), zap.Error(lk.Err))
	}
	return lk
}

func (a *Agent) bookingRef(ctx context.Context, phone string) string {
	b, err := a.gateway.FindActiveBooking(ctx, phone)
	if err != nil || b == nil || b.BookingID == "" {
		return escalation.UnassignedBooking
	}
	return b.BookingID
}

func (a *Agent) escalate(ctx context.Context, rec escalation.Record) {
	if a.escalations == nil {
		return
	}
	if err := a.escalations.RecordEscalation(ctx, rec); err != nil {
		a.log.Error("❌ Failed to record escalation", zap.String("call_id", logger.ShortID(rec.CallID)), zap.String("type", string(rec.Type)), zap.Error(err))
	}
}

// upsert mirrors the transcript so far. Closed calls are left to archive.
func (a *Agent) upsert(ctx context.Context, cs *session.CallSession) {
	if a.logs == nil || cs.IsClosed() {
		return
	}
	if err := a.logs.UpsertConversation(ctx, cs.ID, cs.Phone(), cs.Turns(), cs.LastIntent()); err != nil {
		a.log.Warn("⚠️ Failed to save conversation", zap.String("call_id", logger.ShortID(cs.ID)), zap.Error(err))
	}
}

// archive finishes a call exactly once: it closes the session, stores the
// final record and drops the call from the registry.
func (a *Agent) archive(ctx context.Context, cs *session.CallSession, outcome string) {
	if !cs.Close() {
		return
	}

	if a.logs != nil {
		sum := session.Summary{
			CallID:      cs.ID,
			Caller:      cs.Caller,
			Phone:       cs.Phone(),
			StartedAt:   cs.CreatedAt,
			EndedAt:     time.Now(),
			LastIntent:  cs.LastIntent(),
			Turns:       cs.Turns(),
			Resolved:    outcome == OutcomeResolved,
			EscalatedTo: cs.EscalatedTo(),
			Outcome:     outcome,
		}
		if err := a.logs.FinishConversation(ctx, sum); err != nil {
			a.log.Warn("⚠️ Failed to archive conversation", zap.String("call_id", logger.ShortID(cs.ID)), zap.Error(err))
		}
	}
	a.sessions.Remove(ctx, cs.ID)
}
