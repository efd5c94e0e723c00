package booking

// feeTable maps each order status to its cancellation fee percentage.
// Percentages never decrease along Progression.
var feeTable = map[OrderStatus]int{
	StatusReceived:     0,
	StatusConfirmed:    25,
	StatusManufactured: 50,
	StatusPacked:       75,
	StatusDispatched:   100,
	StatusAtDealership: 100,
}

// FeePercent returns the cancellation fee percentage for an order status.
// Unknown statuses carry no fee.
func FeePercent(status OrderStatus) int {
	return feeTable[status]
}

// Calculate derives fee and refund amounts for a booking. A non-nil override
// replaces the table percentage; it comes from a cancellation already on
// file for the booking.
func Calculate(bookingID string, status OrderStatus, baseAmount float64, override *int) CancellationInfo {
	pct := FeePercent(status)
	if override != nil {
		pct = clampPercent(*override)
	}

	fee := baseAmount * float64(pct) / 100
	return CancellationInfo{
		BookingID:    bookingID,
		OrderStatus:  status,
		FeePercent:   pct,
		FeeAmount:    fee,
		RefundAmount: baseAmount - fee,
	}
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
