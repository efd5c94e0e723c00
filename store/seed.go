package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Fixture is sample data loaded by the seed command.
type Fixture struct {
	Customers []FixtureCustomer `yaml:"customers"`
}

// FixtureCustomer is a customer with their bookings.
type FixtureCustomer struct {
	Name     string           `yaml:"name"`
	Phone    string           `yaml:"phone"`
	Bookings []FixtureBooking `yaml:"bookings"`
}

// FixtureBooking is one booking of a fixture customer.
type FixtureBooking struct {
	ID              string   `yaml:"id"`
	Vehicle         string   `yaml:"vehicle"`
	Variant         string   `yaml:"variant"`
	Color           string   `yaml:"color"`
	BookingStatus   string   `yaml:"booking_status"`
	OrderStatus     string   `yaml:"order_status"`
	Date            string   `yaml:"date"` // YYYY-MM-DD
	Amount          *float64 `yaml:"amount"`
	Cancelled       bool     `yaml:"cancelled"`
	Dealership      string   `yaml:"dealership"`
	City            string   `yaml:"city"`
	CancellationFee *int     `yaml:"cancellation_fee"`
}

// LoadFixture decodes a YAML fixture.
func LoadFixture(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	return f, nil
}

// Seed inserts the fixture. Existing customers, dealerships and bookings are
// matched by phone, name and booking id, so seeding twice is harmless.
func (s *Store) Seed(ctx context.Context, f Fixture) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fc := range f.Customers {
			user := User{PhoneE164: fc.Phone}
			if err := tx.Where(User{PhoneE164: fc.Phone}).Attrs(User{FullName: fc.Name}).FirstOrCreate(&user).Error; err != nil {
				return fmt.Errorf("seed customer %s: %w", fc.Phone, err)
			}

			for _, fb := range fc.Bookings {
				if err := seedBooking(tx, user.ID, fb); err != nil {
					return err
				}
			}
			s.log.Info("🌱 Seeded customer", zap.String("phone", fc.Phone), zap.Int("bookings", len(fc.Bookings)))
		}
		return nil
	})
}

func seedBooking(tx *gorm.DB, userID uint, fb FixtureBooking) error {
	var dealershipID *uint
	if fb.Dealership != "" {
		d := Dealership{}
		if err := tx.Where(Dealership{Name: fb.Dealership}).Attrs(Dealership{City: fb.City}).FirstOrCreate(&d).Error; err != nil {
			return fmt.Errorf("seed dealership %s: %w", fb.Dealership, err)
		}
		dealershipID = &d.ID
	}

	date := time.Now()
	if fb.Date != "" {
		parsed, err := time.Parse("2006-01-02", fb.Date)
		if err != nil {
			return fmt.Errorf("booking %s date: %w", fb.ID, err)
		}
		date = parsed
	}

	b := Booking{}
	err := tx.Where(Booking{BookingPublicID: fb.ID}).Attrs(Booking{
		UserID:        userID,
		DealershipID:  dealershipID,
		VehicleName:   fb.Vehicle,
		ModelVariant:  fb.Variant,
		Color:         fb.Color,
		BookingStatus: fb.BookingStatus,
		OrderStatus:   fb.OrderStatus,
		IsCancelled:   fb.Cancelled,
		BookingDate:   date,
		BaseAmount:    fb.Amount,
	}).FirstOrCreate(&b).Error
	if err != nil {
		return fmt.Errorf("seed booking %s: %w", fb.ID, err)
	}

	if fb.CancellationFee != nil {
		c := Cancellation{}
		if err := tx.Where(Cancellation{BookingID: b.ID}).Attrs(Cancellation{FeePct: *fb.CancellationFee}).FirstOrCreate(&c).Error; err != nil {
			return fmt.Errorf("seed cancellation %s: %w", fb.ID, err)
		}
	}
	return nil
}
