// Package booking defines the booking lookup contract consumed by the agent
// and the cancellation fee rules tied to order progress.
package booking

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no active (non-cancelled) booking exists for a phone number.
var ErrNotFound = errors.New("booking not found")

// OrderStatus is a stage of the vehicle order's fulfilment progression.
type OrderStatus string

const (
	StatusReceived     OrderStatus = "order_received"
	StatusConfirmed    OrderStatus = "order_confirmed"
	StatusManufactured OrderStatus = "order_manufactured"
	StatusPacked       OrderStatus = "order_packed"
	StatusDispatched   OrderStatus = "order_dispatched"
	StatusAtDealership OrderStatus = "at_dealership"
)

// Progression lists order statuses in fulfilment order.
var Progression = []OrderStatus{
	StatusReceived,
	StatusConfirmed,
	StatusManufactured,
	StatusPacked,
	StatusDispatched,
	StatusAtDealership,
}

// Snapshot is the latest active booking for a phone number. It is fetched
// per request and never cached by the agent.
type Snapshot struct {
	BookingID      string
	CustomerName   string
	CustomerPhone  string
	VehicleName    string
	ModelVariant   string
	Color          string
	BookingStatus  string
	OrderStatus    OrderStatus
	DealershipName string
	City           string
	BookingDate    time.Time
	BaseAmount     float64 // zero when the store has no amount for the booking
}

// CancellationInfo describes what cancelling the booking would cost.
type CancellationInfo struct {
	BookingID    string
	OrderStatus  OrderStatus
	FeePercent   int
	FeeAmount    float64
	RefundAmount float64
}

// Gateway looks bookings up by the caller-reported phone number.
type Gateway interface {
	// FindActiveBooking returns the most recent non-cancelled booking or ErrNotFound.
	FindActiveBooking(ctx context.Context, phone string) (*Snapshot, error)

	// ComputeCancellation returns fee and refund details for the most recent
	// non-cancelled booking or ErrNotFound.
	ComputeCancellation(ctx context.Context, phone string) (*CancellationInfo, error)
}
