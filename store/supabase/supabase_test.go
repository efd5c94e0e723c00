package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/bookingline/booking"
	"github.com/room4-2/bookingline/escalation"
	"github.com/room4-2/bookingline/session"
)

const bookingJSON = `[{
	"id": 7,
	"booking_public_id": "BTO2025001",
	"vehicle_name": "TVS Apache RTR 160",
	"model_variant": "4V",
	"color": "Racing Red",
	"booking_status": "confirmed",
	"order_status": "order_confirmed",
	"booking_date": "2025-10-01T00:00:00",
	"base_amount": null,
	"users": {"full_name": "Rahul Kumar", "phone_e164": "+919582350455"},
	"dealerships": {"name": "TVS Showroom Delhi", "city": "Delhi"}
}]`

type fakeREST struct {
	mu       sync.Mutex
	bookings string
	fees     string
	queries  map[string]string
	posts    map[string][]map[string]any
}

func newFakeREST(t *testing.T) (*fakeREST, *Store) {
	t.Helper()
	f := &fakeREST{
		bookings: bookingJSON,
		fees:     `[]`,
		queries:  make(map[string]string),
		posts:    make(map[string][]map[string]any),
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	s, err := New(srv.URL, "service-key", 0, nil)
	require.NoError(t, err)
	return f, s
}

func (f *fakeREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	table := r.URL.Path[len("/rest/v1/"):]
	if r.Method == http.MethodGet {
		f.queries[table] = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		switch table {
		case "bookings":
			_, _ = io.WriteString(w, f.bookings)
		case "cancellations":
			_, _ = io.WriteString(w, f.fees)
		default:
			_, _ = io.WriteString(w, `[]`)
		}
		return
	}

	var row map[string]any
	_ = json.NewDecoder(r.Body).Decode(&row)
	f.posts[table] = append(f.posts[table], row)
	w.WriteHeader(http.StatusCreated)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New("", "key", 0, nil)
	assert.ErrorIs(t, err, ErrMissingURL)
	_, err = New("https://example.supabase.co", "", 0, nil)
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestFindActiveBooking(t *testing.T) {
	f, s := newFakeREST(t)

	b, err := s.FindActiveBooking(context.Background(), "+919582350455")
	require.NoError(t, err)
	assert.Equal(t, "BTO2025001", b.BookingID)
	assert.Equal(t, "Rahul Kumar", b.CustomerName)
	assert.Equal(t, "TVS Showroom Delhi", b.DealershipName)
	assert.Equal(t, 50000.0, b.BaseAmount)
	assert.Equal(t, 2025, b.BookingDate.Year())

	q := f.queries["bookings"]
	assert.Contains(t, q, "users.phone_e164=eq.%2B919582350455")
	assert.Contains(t, q, "is_cancelled=eq.false")
	assert.Contains(t, q, "order=booking_date.desc.nullslast")
	assert.Contains(t, q, "limit=1")
}

func TestFindActiveBookingNotFound(t *testing.T) {
	f, s := newFakeREST(t)
	f.bookings = `[]`

	_, err := s.FindActiveBooking(context.Background(), "+910000000000")
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestComputeCancellation(t *testing.T) {
	f, s := newFakeREST(t)

	ci, err := s.ComputeCancellation(context.Background(), "+919582350455")
	require.NoError(t, err)
	assert.Equal(t, 25, ci.FeePercent)
	assert.Equal(t, 37500.0, ci.RefundAmount)
	assert.Contains(t, f.queries["cancellations"], "booking_id=eq.7")

	f.fees = `[{"fee_pct": 40}]`
	ci, err = s.ComputeCancellation(context.Background(), "+919582350455")
	require.NoError(t, err)
	assert.Equal(t, 40, ci.FeePercent)
	assert.Equal(t, 20000.0, ci.FeeAmount)
}

func TestRecordEscalation(t *testing.T) {
	f, s := newFakeREST(t)

	require.NoError(t, s.RecordEscalation(context.Background(), escalation.Record{
		CallID:      "CA1",
		BookingID:   escalation.UnassignedBooking,
		Type:        escalation.ExplicitRequest,
		Description: "speak to a manager",
		Destination: escalation.SupportTeam,
	}))

	require.Len(t, f.posts["escalations"], 1)
	row := f.posts["escalations"][0]
	assert.Equal(t, "open", row["status"])
	assert.Equal(t, "ESCALATED", row["booking_id"])
	assert.Equal(t, "Support Team", row["escalated_to"])
}

func TestConversationLifecycle(t *testing.T) {
	f, s := newFakeREST(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)
	turns := []session.Turn{{Role: session.RoleCustomer, Text: "status", At: start}}

	require.NoError(t, s.UpsertConversation(ctx, "CA2", "+919582350455", turns, "status"))
	require.NoError(t, s.FinishConversation(ctx, session.Summary{
		CallID:     "CA2",
		Phone:      "+919582350455",
		StartedAt:  start,
		EndedAt:    start.Add(time.Minute),
		LastIntent: "status",
		Turns:      turns,
		Resolved:   true,
		Outcome:    "resolved",
	}))

	require.Len(t, f.posts["conversations"], 2)
	first := f.posts["conversations"][0]
	require.Contains(t, first, "call_start")
	got, err := time.Parse(time.RFC3339Nano, first["call_start"].(string))
	require.NoError(t, err)
	assert.True(t, start.Equal(got))
	assert.NotContains(t, first, "call_end")

	final := f.posts["conversations"][1]
	assert.Equal(t, true, final["resolved"])
	assert.EqualValues(t, 60, final["call_duration"])

	require.Len(t, f.posts["call_logs"], 1)
	assert.Equal(t, "BTO2025001", f.posts["call_logs"][0]["booking_id"])
}

func TestToSnapshotWithoutEmbeds(t *testing.T) {
	amount := 80000.0
	snap := toSnapshot(&bookingRecord{BookingPublicID: "B1", OrderStatus: "order_packed", BookingDate: "bad"}, amount)
	assert.Equal(t, booking.StatusPacked, snap.OrderStatus)
	assert.Empty(t, snap.DealershipName)
	assert.True(t, snap.BookingDate.IsZero())
	assert.Equal(t, amount, snap.BaseAmount)
}
