package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// User links an identity-provider UID to the internal owner id used by bookings.
type User struct {
	ID           uuid.UUID `json:"id"`
	ExternalUID  string    `json:"externalUid"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Profile struct {
	UserID               uuid.UUID `json:"userId"`
	Email                string    `json:"email"`
	FullName             string    `json:"fullName"`
	DateOfBirth          string    `json:"dateOfBirth,omitempty"`
	ContactDetails       string    `json:"contactDetails"`
	PreferredVehicleType string    `json:"preferredVehicleType"`
	PreferredTemperature string    `json:"preferredTemperature"`
	PreferredMusicGenre  string    `json:"preferredMusicGenre"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// ProfileUpdate is a partial profile; only non-nil fields are written.
type ProfileUpdate struct {
	FullName             *string `json:"fullName,omitempty" validate:"omitnil,min=2"`
	DateOfBirth          *string `json:"dateOfBirth,omitempty"`
	ContactDetails       *string `json:"contactDetails,omitempty" validate:"omitnil,min=5"`
	PreferredVehicleType *string `json:"preferredVehicleType,omitempty" validate:"omitnil,len=0|oneof=sedan suv van limousine luxury_bus"`
	PreferredTemperature *string `json:"preferredTemperature,omitempty" validate:"omitnil,max=32"`
	PreferredMusicGenre  *string `json:"preferredMusicGenre,omitempty" validate:"omitnil,max=64"`
}

func (u ProfileUpdate) IsEmpty() bool {
	return u == ProfileUpdate{}
}

var profileValidator = validator.New()

// Validate checks the provided fields only. A date of birth, when given, must be a past day.
func (u ProfileUpdate) Validate(now time.Time) error {
	if err := profileValidator.Struct(u); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New(profileMessage(verrs[0].Field()))
		}
		return err
	}
	if u.DateOfBirth != nil && *u.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", *u.DateOfBirth)
		if err != nil {
			return errors.New("Invalid date format.")
		}
		y, m, d := now.Date()
		if !dob.Before(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)) {
			return errors.New("Date of birth must be in the past.")
		}
	}
	return nil
}

func profileMessage(field string) string {
	switch field {
	case "FullName":
		return "Full name must be at least 2 characters."
	case "ContactDetails":
		return "Contact details must be at least 5 characters."
	case "PreferredVehicleType":
		return "Please select a vehicle type."
	}
	return "Invalid value for " + field + "."
}

// Preferences are the three ride settings produced by the suggester.
type Preferences struct {
	PreferredVehicleType string `json:"preferredVehicleType"`
	PreferredTemperature string `json:"preferredTemperature"`
	PreferredMusicGenre  string `json:"preferredMusicGenre"`
}

// AsUpdate turns a suggestion into a profile update touching only the preference fields.
func (p Preferences) AsUpdate() ProfileUpdate {
	return ProfileUpdate{
		PreferredVehicleType: &p.PreferredVehicleType,
		PreferredTemperature: &p.PreferredTemperature,
		PreferredMusicGenre:  &p.PreferredMusicGenre,
	}
}
