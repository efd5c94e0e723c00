package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeePercentMonotonic(t *testing.T) {
	prev := -1
	for _, status := range Progression {
		pct := FeePercent(status)
		assert.GreaterOrEqual(t, pct, prev, "fee for %s dropped", status)
		prev = pct
	}
}

func TestFeePercentSaturatesFromDispatch(t *testing.T) {
	assert.Equal(t, 100, FeePercent(StatusDispatched))
	assert.Equal(t, 100, FeePercent(StatusAtDealership))
	assert.Equal(t, 0, FeePercent(OrderStatus("order_lost")))
}

func TestCalculateConfirmed(t *testing.T) {
	info := Calculate("BTO2025001", StatusConfirmed, 50000, nil)

	assert.Equal(t, 25, info.FeePercent)
	assert.InDelta(t, 12500, info.FeeAmount, 0.001)
	assert.InDelta(t, 37500, info.RefundAmount, 0.001)
	assert.Equal(t, "BTO2025001", info.BookingID)
}

func TestCalculateOverride(t *testing.T) {
	pct := 10
	info := Calculate("B1", StatusPacked, 80000, &pct)
	assert.Equal(t, 10, info.FeePercent)
	assert.InDelta(t, 72000, info.RefundAmount, 0.001)

	huge := 250
	info = Calculate("B1", StatusReceived, 1000, &huge)
	assert.Equal(t, 100, info.FeePercent)
	assert.InDelta(t, 0, info.RefundAmount, 0.001)
}

func TestCalculateEveryStatus(t *testing.T) {
	want := map[OrderStatus]float64{
		StatusReceived:     100000,
		StatusConfirmed:    75000,
		StatusManufactured: 50000,
		StatusPacked:       25000,
		StatusDispatched:   0,
		StatusAtDealership: 0,
	}
	for status, refund := range want {
		info := Calculate("B", status, 100000, nil)
		assert.InDelta(t, refund, info.RefundAmount, 0.001, string(status))
		assert.InDelta(t, 100000, info.RefundAmount+info.FeeAmount, 0.001)
	}
}
