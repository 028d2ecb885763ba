package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"luxe-booking/internal/booking"
	"luxe-booking/internal/models"

	"github.com/google/uuid"
)

const profileColumns = `id, email, full_name, date_of_birth, contact_details,
	preferred_vehicle_type, preferred_temperature, preferred_music_genre, updated_at`

func scanProfile(row rowScanner) (models.Profile, error) {
	var (
		p   models.Profile
		dob sql.NullTime
	)
	err := row.Scan(
		&p.UserID,
		&p.Email,
		&p.FullName,
		&dob,
		&p.ContactDetails,
		&p.PreferredVehicleType,
		&p.PreferredTemperature,
		&p.PreferredMusicGenre,
		&p.UpdatedAt,
	)
	if err != nil {
		return models.Profile{}, err
	}
	if dob.Valid {
		p.DateOfBirth = dob.Time.Format(booking.DateLayout)
	}
	return p, nil
}

func (s *service) GetProfile(ctx context.Context, ownerID uuid.UUID) (models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM users WHERE id = $1`, ownerID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// UpdateProfile writes only the fields set in upd. With nothing to change it
// returns the current profile.
func (s *service) UpdateProfile(ctx context.Context, ownerID uuid.UUID, upd models.ProfileUpdate) (models.Profile, error) {
	if upd.IsEmpty() {
		return s.GetProfile(ctx, ownerID)
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.FullName != nil {
		add("full_name", strings.TrimSpace(*upd.FullName))
	}
	if upd.DateOfBirth != nil {
		var dob sql.NullTime
		if *upd.DateOfBirth != "" {
			t, err := booking.ParseDate(*upd.DateOfBirth)
			if err != nil {
				return models.Profile{}, fmt.Errorf("invalid date of birth: %w", err)
			}
			dob = sql.NullTime{Time: t, Valid: true}
		}
		add("date_of_birth", dob)
	}
	if upd.ContactDetails != nil {
		add("contact_details", strings.TrimSpace(*upd.ContactDetails))
	}
	if upd.PreferredVehicleType != nil {
		add("preferred_vehicle_type", *upd.PreferredVehicleType)
	}
	if upd.PreferredTemperature != nil {
		add("preferred_temperature", *upd.PreferredTemperature)
	}
	if upd.PreferredMusicGenre != nil {
		add("preferred_music_genre", *upd.PreferredMusicGenre)
	}
	add("updated_at", s.clock.Now())

	args = append(args, ownerID)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), profileColumns)

	p, err := scanProfile(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}
