package store

import (
	"time"

	"gorm.io/datatypes"
)

// User is a customer who placed a booking.
type User struct {
	ID        uint      `gorm:"primaryKey"`
	FullName  string    `gorm:"column:full_name;size:100"`
	PhoneE164 string    `gorm:"column:phone_e164;size:20;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (User) TableName() string { return "users" }

// Dealership is where a vehicle is delivered.
type Dealership struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"column:name;size:150"`
	City string `gorm:"column:city;size:100"`
}

func (Dealership) TableName() string { return "dealerships" }

// Booking is a vehicle order.
type Booking struct {
	ID              uint      `gorm:"primaryKey"`
	BookingPublicID string    `gorm:"column:booking_public_id;size:50;uniqueIndex"`
	UserID          uint      `gorm:"column:user_id;index"`
	DealershipID    *uint     `gorm:"column:dealership_id"`
	VehicleName     string    `gorm:"column:vehicle_name;size:100"`
	ModelVariant    string    `gorm:"column:model_variant;size:100"`
	Color           string    `gorm:"column:color;size:50"`
	BookingStatus   string    `gorm:"column:booking_status;size:50"`
	OrderStatus     string    `gorm:"column:order_status;size:50"`
	IsCancelled     bool      `gorm:"column:is_cancelled;not null"`
	BookingDate     time.Time `gorm:"column:booking_date;index"`
	BaseAmount      *float64  `gorm:"column:base_amount"`
}

func (Booking) TableName() string { return "bookings" }

// Cancellation holds a fee already agreed for a booking. Its percentage
// overrides the order-status table.
type Cancellation struct {
	ID        uint      `gorm:"primaryKey"`
	BookingID uint      `gorm:"column:booking_id;index"`
	FeePct    int       `gorm:"column:fee_pct"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Cancellation) TableName() string { return "cancellations" }

// Conversation is the transcript of one call, keyed by the provider call id.
type Conversation struct {
	ID            uint           `gorm:"primaryKey"`
	CallSID       string         `gorm:"column:call_sid;size:100;uniqueIndex"`
	CustomerPhone string         `gorm:"column:customer_phone;size:20;index"`
	Caller        string         `gorm:"column:caller;size:20"`
	CallStart     time.Time      `gorm:"column:call_start"`
	CallEnd       *time.Time     `gorm:"column:call_end"`
	CallDuration  int            `gorm:"column:call_duration"` // seconds
	Transcript    datatypes.JSON `gorm:"column:transcript"`
	Intent        string         `gorm:"column:intent;size:50"`
	Resolved      bool           `gorm:"column:resolved"`
	Escalated     bool           `gorm:"column:escalated"`
	EscalatedTo   string         `gorm:"column:escalated_to;size:100"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

// Escalation is a handoff waiting for a human team.
type Escalation struct {
	ID             uint       `gorm:"primaryKey"`
	Reference      string     `gorm:"column:reference;size:36;uniqueIndex"`
	CallSID        string     `gorm:"column:call_sid;size:100;index"`
	BookingID      string     `gorm:"column:booking_id;size:50"`
	EscalationType string     `gorm:"column:escalation_type;size:50"`
	Description    string     `gorm:"column:description;type:text"`
	EscalatedTo    string     `gorm:"column:escalated_to;size:100"`
	Status         string     `gorm:"column:status;size:20;default:open"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	ResolvedAt     *time.Time `gorm:"column:resolved_at"`
}

func (Escalation) TableName() string { return "escalations" }

// CallLog is one row per finished call.
type CallLog struct {
	ID              uint      `gorm:"primaryKey"`
	CallSID         string    `gorm:"column:call_sid;size:100;index"`
	BookingID       string    `gorm:"column:booking_id;size:50"`
	FromNumber      string    `gorm:"column:from_number;size:20"`
	Intent          string    `gorm:"column:intent;size:50"`
	Outcome         string    `gorm:"column:outcome;size:20"`
	DurationSeconds int       `gorm:"column:duration_seconds"`
	StartedAt       time.Time `gorm:"column:started_at"`
	EndedAt         time.Time `gorm:"column:ended_at"`
}

func (CallLog) TableName() string { return "call_logs" }

// Models lists every table managed by Migrate, parents first.
var Models = []any{
	&User{},
	&Dealership{},
	&Booking{},
	&Cancellation{},
	&Conversation{},
	&Escalation{},
	&CallLog{},
}
