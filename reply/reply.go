// Package reply renders the spoken answers for each intent from booking data.
package reply

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/room4-2/bookingline/booking"
	"github.com/room4-2/bookingline/intent"
)

// Action is the outcome a cancellation reply commits the agent to.
type Action string

const (
	ActionNone                Action = ""
	ActionProcessed           Action = "processed"
	ActionPendingConfirmation Action = "pending_confirmation"
	ActionNotEligible         Action = "not_eligible"
)

// Fixed messages.
const (
	NotFoundMessage    = "I couldn't find a booking under this phone number. Would you like to provide a different phone number or booking ID?"
	LookupErrorMessage = "I'm having trouble retrieving your booking right now. Please try again in a moment."
	RephraseMessage    = "I'm sorry, I didn't quite understand. Could you please rephrase? You can ask about status, delivery, or cancellation."
	HandoffMessage     = "I understand. Let me connect you to one of our support specialists right away."
)

var statusPhrases = map[booking.OrderStatus]string{
	booking.StatusReceived:     "received and being processed",
	booking.StatusConfirmed:    "confirmed and production will begin soon",
	booking.StatusManufactured: "manufactured and being prepared",
	booking.StatusPacked:       "packed and ready for dispatch",
	booking.StatusDispatched:   "dispatched and on the way",
	booking.StatusAtDealership: "ready for collection at your dealership",
}

// StatusPhrase returns the human-readable phrase for an order status.
func StatusPhrase(s booking.OrderStatus) string {
	if p, ok := statusPhrases[s]; ok {
		return p
	}
	return "being processed"
}

// Lookup carries what the gateway returned for one turn. Err takes
// precedence over the data fields.
type Lookup struct {
	Booking      *booking.Snapshot
	Cancellation *booking.CancellationInfo
	Err          error
}

// Reply is a rendered answer.
type Reply struct {
	Text   string
	Intent intent.Intent
	Action Action
}

// Composer renders replies. Brand appears in the goodbye message.
type Composer struct {
	Brand string
}

// NewComposer returns a Composer for the given brand name.
func NewComposer(brand string) *Composer {
	if brand == "" {
		brand = "TVS"
	}
	return &Composer{Brand: brand}
}

// Compose renders the answer for an intent.
func (c *Composer) Compose(in intent.Intent, lk Lookup) Reply {
	r := Reply{Intent: in}

	if in == intent.Unknown {
		r.Text = RephraseMessage
		return r
	}
	if lk.Err != nil {
		if errors.Is(lk.Err, booking.ErrNotFound) {
			r.Text = NotFoundMessage
		} else {
			r.Text = LookupErrorMessage
		}
		return r
	}

	switch in {
	case intent.Status:
		if lk.Booking == nil {
			r.Text = NotFoundMessage
			return r
		}
		r.Text = statusText(lk.Booking)
	case intent.Delivery:
		if lk.Booking == nil {
			r.Text = NotFoundMessage
			return r
		}
		r.Text = deliveryText(lk.Booking)
	case intent.Cancellation:
		if lk.Cancellation == nil {
			r.Text = NotFoundMessage
			return r
		}
		r.Text, r.Action = cancellationText(lk.Cancellation)
	default:
		r.Text = "How can I help you with your vehicle booking?"
	}
	return r
}

// Goodbye is spoken when the caller ends the call.
func (c *Composer) Goodbye() string {
	return fmt.Sprintf("Thank you for choosing %s. Goodbye!", c.Brand)
}

func statusText(b *booking.Snapshot) string {
	vehicle := orDefault(b.VehicleName, "vehicle")
	desc := squeeze(strings.Join([]string{b.Color, vehicle, b.ModelVariant}, " "))
	return fmt.Sprintf("Great! Your %s is %s. Your current status is %s. Would you like to know delivery details or anything else?",
		desc, StatusPhrase(b.OrderStatus), StageTitle(b.OrderStatus))
}

func deliveryText(b *booking.Snapshot) string {
	vehicle := orDefault(b.VehicleName, "Your vehicle")
	place := orDefault(b.DealershipName, "your dealership")
	if b.City != "" {
		place += " in " + b.City
	}

	switch b.OrderStatus {
	case booking.StatusAtDealership:
		return fmt.Sprintf("%s has arrived at %s. It's ready for you to collect. Please visit the showroom during business hours.", vehicle, place)
	case booking.StatusDispatched:
		return fmt.Sprintf("%s is on the way to %s. You will receive an SMS with exact arrival date. Keep an eye on your inbox.", vehicle, place)
	default:
		return fmt.Sprintf("%s will be delivered to %s. You'll get SMS updates as it progresses.", vehicle, place)
	}
}

func cancellationText(ci *booking.CancellationInfo) (string, Action) {
	switch {
	case ci.FeePercent <= 0:
		return fmt.Sprintf("Good news! Your booking is in early stage. You qualify for full refund of %s. Your cancellation will be processed within 5 business days.",
			Rupees(ci.RefundAmount)), ActionProcessed
	case ci.FeePercent < 100:
		return fmt.Sprintf("Your booking is at %s stage. A %d%% cancellation fee of %s applies. You'll receive %s back. Should I proceed?",
			stageWords(ci.OrderStatus), ci.FeePercent, Rupees(ci.FeeAmount), Rupees(ci.RefundAmount)), ActionPendingConfirmation
	default:
		return "Unfortunately, your vehicle has already been dispatched. Cancellation is not possible at this stage. Would you like to know more about your delivery instead?",
			ActionNotEligible
	}
}

// Rupees renders an amount as whole rupees.
func Rupees(amount float64) string {
	return fmt.Sprintf("₹%d", int64(amount))
}

// StageTitle renders an order status for speech, e.g. "Order Dispatched".
func StageTitle(s booking.OrderStatus) string {
	return cases.Title(language.English).String(stageWords(s))
}

func stageWords(s booking.OrderStatus) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

func squeeze(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
