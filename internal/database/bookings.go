package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"luxe-booking/internal/booking"
	"luxe-booking/internal/models"

	"github.com/google/uuid"
)

const bookingColumns = `id, user_id, passenger_full_name, passenger_date_of_birth, passenger_contact_details,
	COALESCE(guardian_name, ''), COALESCE(guardian_contact, ''), destination, departure_date,
	preferred_vehicle, allergies_or_requests, is_confirmed, age_at_booking, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (models.ConfirmedBooking, error) {
	var (
		b        models.ConfirmedBooking
		dob, dep time.Time
	)
	err := row.Scan(
		&b.ID,
		&b.OwnerID,
		&b.FullName,
		&dob,
		&b.ContactDetails,
		&b.GuardianName,
		&b.GuardianContact,
		&b.Destination,
		&dep,
		&b.PreferredVehicle,
		&b.AllergiesOrRequests,
		&b.IsConfirmed,
		&b.AgeAtBooking,
		&b.CreatedAt,
	)
	if err != nil {
		return models.ConfirmedBooking{}, err
	}
	b.DateOfBirth = dob.Format(booking.DateLayout)
	b.DepartureDate = dep.Format(booking.DateLayout)
	return b, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateBooking stores a confirmed booking. The guardian rule is checked again here
// against an age computed from the stored date of birth, whatever the caller passed.
func (s *service) CreateBooking(ctx context.Context, d models.BookingDraft, ownerID uuid.UUID, age int) (models.ConfirmedBooking, error) {
	dob, err := booking.ParseDate(d.DateOfBirth)
	if err != nil {
		return models.ConfirmedBooking{}, fmt.Errorf("invalid date of birth: %w", err)
	}
	dep, err := booking.ParseDate(d.DepartureDate)
	if err != nil {
		return models.ConfirmedBooking{}, fmt.Errorf("invalid departure date: %w", err)
	}

	computed := booking.CalculateAge(dob, s.clock.Now())
	if computed != age {
		log.Printf("Age mismatch for owner %s: caller sent %d, stored %d", ownerID, age, computed)
	}
	if !booking.GuardianSatisfied(computed, d.GuardianName, d.GuardianContact) {
		return models.ConfirmedBooking{}, fmt.Errorf("passenger is %d years old: %w", computed, booking.ErrGuardianRequired)
	}

	query := `
		INSERT INTO bookings (
			id, user_id, passenger_full_name, passenger_date_of_birth, passenger_contact_details,
			guardian_name, guardian_contact, destination, departure_date, preferred_vehicle,
			allergies_or_requests, is_confirmed, age_at_booking
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE, $12)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`
	id, retry := booking.SubmissionID(ctx)
	if !retry {
		id = uuid.New()
	}
	b := models.ConfirmedBooking{
		ID:           id,
		OwnerID:      ownerID,
		BookingDraft: d,
		IsConfirmed:  true,
		AgeAtBooking: computed,
	}
	err = s.db.QueryRowContext(ctx, query,
		b.ID,
		ownerID,
		d.FullName,
		dob,
		d.ContactDetails,
		nullIfEmpty(d.GuardianName),
		nullIfEmpty(d.GuardianContact),
		d.Destination,
		dep,
		d.PreferredVehicle,
		d.AllergiesOrRequests,
		computed,
	).Scan(&b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// The id was already used: this is a repeated submission of the same draft.
		existing, err := s.GetBooking(ctx, ownerID, id)
		if errors.Is(err, ErrNotFound) {
			return models.ConfirmedBooking{}, fmt.Errorf("insert booking: id %s belongs to another owner", id)
		}
		if err != nil {
			return models.ConfirmedBooking{}, fmt.Errorf("load repeated booking: %w", err)
		}
		log.Printf("Booking %s already stored; returning the existing row", id)
		return existing, nil
	}
	if err != nil {
		return models.ConfirmedBooking{}, fmt.Errorf("insert booking: %w", err)
	}
	return b, nil
}

func (s *service) GetBooking(ctx context.Context, ownerID, bookingID uuid.UUID) (models.ConfirmedBooking, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND user_id = $2`,
		bookingID, ownerID,
	)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConfirmedBooking{}, ErrNotFound
	}
	if err != nil {
		return models.ConfirmedBooking{}, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// ListConfirmedBookings returns the owner's trips, latest departure first.
func (s *service) ListConfirmedBookings(ctx context.Context, ownerID uuid.UUID) ([]models.ConfirmedBooking, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 AND is_confirmed = TRUE ORDER BY departure_date DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	bookings := []models.ConfirmedBooking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}
