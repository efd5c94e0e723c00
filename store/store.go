// Package store persists bookings, conversations, escalations and call logs
// in Postgres through gorm. It implements booking.Gateway, escalation.Sink
// and session.LogSink.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/room4-2/bookingline/booking"
	"github.com/room4-2/bookingline/escalation"
	"github.com/room4-2/bookingline/session"
)

// ErrConversationNotFound is returned when no transcript exists for a call id.
var ErrConversationNotFound = errors.New("conversation not found")

// DefaultBaseAmount is used for bookings stored without an amount.
const DefaultBaseAmount = 50000

// Store is the gorm-backed persistence layer.
type Store struct {
	db         *gorm.DB
	baseAmount float64
	log        *zap.Logger
}

// Open connects to Postgres.
func Open(dsn string, baseAmount float64, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db, baseAmount, log), nil
}

// New wraps an open gorm handle.
func New(db *gorm.DB, baseAmount float64, log *zap.Logger) *Store {
	if baseAmount <= 0 {
		baseAmount = DefaultBaseAmount
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, baseAmount: baseAmount, log: log}
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates or updates every table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type bookingRow struct {
	ID              uint      `gorm:"column:id"`
	BookingPublicID string    `gorm:"column:booking_public_id"`
	FullName        string    `gorm:"column:full_name"`
	PhoneE164       string    `gorm:"column:phone_e164"`
	VehicleName     string    `gorm:"column:vehicle_name"`
	ModelVariant    string    `gorm:"column:model_variant"`
	Color           string    `gorm:"column:color"`
	BookingStatus   string    `gorm:"column:booking_status"`
	OrderStatus     string    `gorm:"column:order_status"`
	DealershipName  string    `gorm:"column:dealership_name"`
	City            string    `gorm:"column:city"`
	BookingDate     time.Time `gorm:"column:booking_date"`
	BaseAmount      *float64  `gorm:"column:base_amount"`
}

func (s *Store) latestBooking(ctx context.Context, phone string) (*bookingRow, error) {
	var row bookingRow
	res := s.db.WithContext(ctx).
		Table("bookings AS b").
		Select(`b.id, b.booking_public_id, u.full_name, u.phone_e164, b.vehicle_name, b.model_variant,
			b.color, b.booking_status, b.order_status, COALESCE(d.name, '') AS dealership_name, COALESCE(d.city, '') AS city,
			b.booking_date, b.base_amount`).
		Joins("JOIN users u ON u.id = b.user_id").
		Joins("LEFT JOIN dealerships d ON d.id = b.dealership_id").
		Where("u.phone_e164 = ? AND b.is_cancelled = ?", phone, false).
		Order("b.booking_date DESC").
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("query booking: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, booking.ErrNotFound
	}
	return &row, nil
}

func (s *Store) amount(row *bookingRow) float64 {
	if row.BaseAmount != nil && *row.BaseAmount > 0 {
		return *row.BaseAmount
	}
	return s.baseAmount
}

// FindActiveBooking returns the most recent non-cancelled booking for a phone.
func (s *Store) FindActiveBooking(ctx context.Context, phone string) (*booking.Snapshot, error) {
	row, err := s.latestBooking(ctx, phone)
	if err != nil {
		return nil, err
	}
	return &booking.Snapshot{
		BookingID:      row.BookingPublicID,
		CustomerName:   row.FullName,
		CustomerPhone:  row.PhoneE164,
		VehicleName:    row.VehicleName,
		ModelVariant:   row.ModelVariant,
		Color:          row.Color,
		BookingStatus:  row.BookingStatus,
		OrderStatus:    booking.OrderStatus(row.OrderStatus),
		DealershipName: row.DealershipName,
		City:           row.City,
		BookingDate:    row.BookingDate,
		BaseAmount:     s.amount(row),
	}, nil
}

// ComputeCancellation prices cancelling the most recent active booking. A
// cancellation row already on file for the booking overrides the fee table.
func (s *Store) ComputeCancellation(ctx context.Context, phone string) (*booking.CancellationInfo, error) {
	row, err := s.latestBooking(ctx, phone)
	if err != nil {
		return nil, err
	}

	var override *int
	var c Cancellation
	res := s.db.WithContext(ctx).Where("booking_id = ?", row.ID).Order("id DESC").Limit(1).Find(&c)
	if res.Error != nil {
		return nil, fmt.Errorf("query cancellation: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		override = &c.FeePct
	}

	info := booking.Calculate(row.BookingPublicID, booking.OrderStatus(row.OrderStatus), s.amount(row), override)
	return &info, nil
}

// RecordEscalation stores an open handoff.
func (s *Store) RecordEscalation(ctx context.Context, rec escalation.Record) error {
	e := Escalation{
		Reference:      uuid.New().String(),
		CallSID:        rec.CallID,
		BookingID:      rec.BookingID,
		EscalationType: string(rec.Type),
		Description:    rec.Description,
		EscalatedTo:    rec.Destination,
		Status:         escalation.StatusOpen,
	}
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		return fmt.Errorf("create escalation: %w", err)
	}
	s.log.Info("🚨 Escalation created", zap.String("call_id", rec.CallID), zap.String("type", string(rec.Type)), zap.String("to", rec.Destination))
	return nil
}

func encodeTranscript(turns []session.Turn) (datatypes.JSON, error) {
	if turns == nil {
		turns = []session.Turn{}
	}
	raw, err := sonic.Marshal(map[string]any{"messages": turns})
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// DecodeTranscript reads the turns back out of a stored transcript.
func DecodeTranscript(raw datatypes.JSON) ([]session.Turn, error) {
	var doc struct {
		Messages []session.Turn `json:"messages"`
	}
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return doc.Messages, nil
}

func callStart(turns []session.Turn) time.Time {
	if len(turns) > 0 {
		return turns[0].At
	}
	return time.Now()
}

// UpsertConversation stores the transcript, one row per call id.
func (s *Store) UpsertConversation(ctx context.Context, callID, phone string, turns []session.Turn, lastIntent string) error {
	transcript, err := encodeTranscript(turns)
	if err != nil {
		return err
	}

	conv := Conversation{
		CallSID:       callID,
		CustomerPhone: phone,
		CallStart:     callStart(turns),
		Transcript:    transcript,
		Intent:        lastIntent,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "call_sid"}},
		DoUpdates: clause.AssignmentColumns([]string{"customer_phone", "transcript", "intent", "updated_at"}),
		// archived calls keep their final transcript
		Where: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "conversations.call_end IS NULL"}}},
	}).Create(&conv).Error
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// FinishConversation writes the final transcript with the call outcome and
// appends a call log row.
func (s *Store) FinishConversation(ctx context.Context, sum session.Summary) error {
	transcript, err := encodeTranscript(sum.Turns)
	if err != nil {
		return err
	}

	end := sum.EndedAt
	duration := int(end.Sub(sum.StartedAt).Seconds())

	bookingID := ""
	if sum.Phone != "" {
		if row, err := s.latestBooking(ctx, sum.Phone); err == nil {
			bookingID = row.BookingPublicID
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv := Conversation{
			CallSID:       sum.CallID,
			CustomerPhone: sum.Phone,
			Caller:        sum.Caller,
			CallStart:     sum.StartedAt,
			CallEnd:       &end,
			CallDuration:  duration,
			Transcript:    transcript,
			Intent:        sum.LastIntent,
			Resolved:      sum.Resolved,
			Escalated:     sum.EscalatedTo != "",
			EscalatedTo:   sum.EscalatedTo,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "call_sid"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"customer_phone", "caller", "call_start", "call_end", "call_duration", "transcript",
				"intent", "resolved", "escalated", "escalated_to", "updated_at",
			}),
		}).Create(&conv).Error
		if err != nil {
			return fmt.Errorf("finish conversation: %w", err)
		}

		entry := CallLog{
			CallSID:         sum.CallID,
			BookingID:       bookingID,
			FromNumber:      sum.Caller,
			Intent:          sum.LastIntent,
			Outcome:         sum.Outcome,
			DurationSeconds: duration,
			StartedAt:       sum.StartedAt,
			EndedAt:         end,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("create call log: %w", err)
		}
		return nil
	})
}

// Conversation loads the stored record for a call id.
func (s *Store) Conversation(ctx context.Context, callID string) (*Conversation, error) {
	var conv Conversation
	err := s.db.WithContext(ctx).Where("call_sid = ?", callID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return &conv, nil
}
