// Package supabase implements the booking gateway and the conversation and
// escalation sinks over a hosted Supabase project's REST API.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	postgrest "github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/room4-2/bookingline/booking"
	"github.com/room4-2/bookingline/escalation"
	"github.com/room4-2/bookingline/session"
)

var (
	ErrMissingURL = errors.New("supabase url is required")
	ErrMissingKey = errors.New("supabase key is required")
)

const bookingColumns = "id,booking_public_id,vehicle_name,model_variant,color,booking_status,order_status," +
	"booking_date,base_amount,users!inner(full_name,phone_e164),dealerships(name,city)"

// Store talks to the same tables as the gorm store through PostgREST.
type Store struct {
	client     *supa.Client
	baseAmount float64
	log        *zap.Logger
}

// New creates a Supabase-backed store.
func New(url, key string, baseAmount float64, log *zap.Logger) (*Store, error) {
	if url == "" {
		return nil, ErrMissingURL
	}
	if key == "" {
		return nil, ErrMissingKey
	}

	client, err := supa.NewClient(url, key, &supa.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	if baseAmount <= 0 {
		baseAmount = 50000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{client: client, baseAmount: baseAmount, log: log}, nil
}

type userRecord struct {
	FullName  string `json:"full_name"`
	PhoneE164 string `json:"phone_e164"`
}

type dealershipRecord struct {
	Name string `json:"name"`
	City string `json:"city"`
}

type bookingRecord struct {
	ID              int64             `json:"id"`
	BookingPublicID string            `json:"booking_public_id"`
	VehicleName     string            `json:"vehicle_name"`
	ModelVariant    string            `json:"model_variant"`
	Color           string            `json:"color"`
	BookingStatus   string            `json:"booking_status"`
	OrderStatus     string            `json:"order_status"`
	BookingDate     string            `json:"booking_date"`
	BaseAmount      *float64          `json:"base_amount"`
	User            *userRecord       `json:"users"`
	Dealership      *dealershipRecord `json:"dealerships"`
}

func (s *Store) latestBooking(phone string) (*bookingRecord, error) {
	var rows []bookingRecord
	_, err := s.client.From("bookings").
		Select(bookingColumns, "", false).
		Eq("users.phone_e164", phone).
		Eq("is_cancelled", "false").
		Order("booking_date", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("query booking: %w", err)
	}
	if len(rows) == 0 {
		return nil, booking.ErrNotFound
	}
	return &rows[0], nil
}

func (s *Store) amount(rec *bookingRecord) float64 {
	if rec.BaseAmount != nil && *rec.BaseAmount > 0 {
		return *rec.BaseAmount
	}
	return s.baseAmount
}

// toSnapshot maps a REST row onto a booking snapshot.
func toSnapshot(rec *bookingRecord, amount float64) *booking.Snapshot {
	snap := &booking.Snapshot{
		BookingID:     rec.BookingPublicID,
		VehicleName:   rec.VehicleName,
		ModelVariant:  rec.ModelVariant,
		Color:         rec.Color,
		BookingStatus: rec.BookingStatus,
		OrderStatus:   booking.OrderStatus(rec.OrderStatus),
		BaseAmount:    amount,
	}
	if rec.User != nil {
		snap.CustomerName = rec.User.FullName
		snap.CustomerPhone = rec.User.PhoneE164
	}
	if rec.Dealership != nil {
		snap.DealershipName = rec.Dealership.Name
		snap.City = rec.Dealership.City
	}
	snap.BookingDate = parseDate(rec.BookingDate)
	return snap
}

func parseDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// FindActiveBooking returns the most recent non-cancelled booking for a phone.
func (s *Store) FindActiveBooking(_ context.Context, phone string) (*booking.Snapshot, error) {
	rec, err := s.latestBooking(phone)
	if err != nil {
		return nil, err
	}
	return toSnapshot(rec, s.amount(rec)), nil
}

// ComputeCancellation prices cancelling the most recent active booking.
func (s *Store) ComputeCancellation(_ context.Context, phone string) (*booking.CancellationInfo, error) {
	rec, err := s.latestBooking(phone)
	if err != nil {
		return nil, err
	}

	var fees []struct {
		FeePct int `json:"fee_pct"`
	}
	_, err = s.client.From("cancellations").
		Select("fee_pct", "", false).
		Eq("booking_id", strconv.FormatInt(rec.ID, 10)).
		Order("id", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		ExecuteTo(&fees)
	if err != nil {
		return nil, fmt.Errorf("query cancellation: %w", err)
	}

	var override *int
	if len(fees) > 0 {
		override = &fees[0].FeePct
	}
	info := booking.Calculate(rec.BookingPublicID, booking.OrderStatus(rec.OrderStatus), s.amount(rec), override)
	return &info, nil
}

type escalationRecord struct {
	Reference      string `json:"reference"`
	CallSID        string `json:"call_sid"`
	BookingID      string `json:"booking_id"`
	EscalationType string `json:"escalation_type"`
	Description    string `json:"description"`
	EscalatedTo    string `json:"escalated_to"`
	Status         string `json:"status"`
}

// RecordEscalation stores an open handoff.
func (s *Store) RecordEscalation(_ context.Context, rec escalation.Record) error {
	row := escalationRecord{
		Reference:      uuid.New().String(),
		CallSID:        rec.CallID,
		BookingID:      rec.BookingID,
		EscalationType: string(rec.Type),
		Description:    rec.Description,
		EscalatedTo:    rec.Destination,
		Status:         escalation.StatusOpen,
	}
	if _, _, err := s.client.From("escalations").Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("create escalation: %w", err)
	}
	s.log.Info("🚨 Escalation created", zap.String("call_id", rec.CallID), zap.String("type", string(rec.Type)), zap.String("to", rec.Destination))
	return nil
}

type transcript struct {
	Messages []session.Turn `json:"messages"`
}

type conversationRecord struct {
	CallSID       string     `json:"call_sid"`
	CustomerPhone string     `json:"customer_phone"`
	Caller        string     `json:"caller,omitempty"`
	CallStart     *time.Time `json:"call_start,omitempty"`
	CallEnd       *time.Time `json:"call_end,omitempty"`
	CallDuration  *int       `json:"call_duration,omitempty"`
	Transcript    transcript `json:"transcript"`
	Intent        string     `json:"intent"`
	Resolved      *bool      `json:"resolved,omitempty"`
	Escalated     *bool      `json:"escalated,omitempty"`
	EscalatedTo   string     `json:"escalated_to,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (s *Store) upsertConversation(row conversationRecord) error {
	if row.Transcript.Messages == nil {
		row.Transcript.Messages = []session.Turn{}
	}
	_, _, err := s.client.From("conversations").Upsert(row, "call_sid", "minimal", "").Execute()
	return err
}

// UpsertConversation stores the transcript, one row per call id.
func (s *Store) UpsertConversation(_ context.Context, callID, phone string, turns []session.Turn, lastIntent string) error {
	row := conversationRecord{
		CallSID:       callID,
		CustomerPhone: phone,
		Transcript:    transcript{Messages: turns},
		Intent:        lastIntent,
		UpdatedAt:     time.Now(),
	}
	if len(turns) > 0 {
		start := turns[0].At
		row.CallStart = &start
	}
	if err := s.upsertConversation(row); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

type callLogRecord struct {
	CallSID         string    `json:"call_sid"`
	BookingID       string    `json:"booking_id"`
	FromNumber      string    `json:"from_number"`
	Intent          string    `json:"intent"`
	Outcome         string    `json:"outcome"`
	DurationSeconds int       `json:"duration_seconds"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
}

// FinishConversation writes the final transcript and a call log row.
func (s *Store) FinishConversation(_ context.Context, sum session.Summary) error {
	start, end := sum.StartedAt, sum.EndedAt
	duration := int(end.Sub(start).Seconds())
	resolved := sum.Resolved
	escalated := sum.EscalatedTo != ""

	err := s.upsertConversation(conversationRecord{
		CallSID:       sum.CallID,
		CustomerPhone: sum.Phone,
		Caller:        sum.Caller,
		CallStart:     &start,
		CallEnd:       &end,
		CallDuration:  &duration,
		Transcript:    transcript{Messages: sum.Turns},
		Intent:        sum.LastIntent,
		Resolved:      &resolved,
		Escalated:     &escalated,
		EscalatedTo:   sum.EscalatedTo,
		UpdatedAt:     time.Now(),
	})
	if err != nil {
		return fmt.Errorf("finish conversation: %w", err)
	}

	bookingID := ""
	if sum.Phone != "" {
		if rec, err := s.latestBooking(sum.Phone); err == nil {
			bookingID = rec.BookingPublicID
		}
	}

	entry := callLogRecord{
		CallSID:         sum.CallID,
		BookingID:       bookingID,
		FromNumber:      sum.Caller,
		Intent:          sum.LastIntent,
		Outcome:         sum.Outcome,
		DurationSeconds: duration,
		StartedAt:       start,
		EndedAt:         end,
	}
	if _, _, err := s.client.From("call_logs").Insert(entry, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("create call log: %w", err)
	}
	return nil
}
