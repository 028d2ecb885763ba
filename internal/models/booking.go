package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type VehicleType string

const (
	VehicleSedan     VehicleType = "sedan"
	VehicleSUV       VehicleType = "suv"
	VehicleVan       VehicleType = "van"
	VehicleLimousine VehicleType = "limousine"
	VehicleLuxuryBus VehicleType = "luxury_bus"
)

type VehicleOption struct {
	ID    VehicleType `json:"id"`
	Label string      `json:"label"`
}

// VehicleTypes is the fixed fleet offered by the booking form, in display order.
var VehicleTypes = []VehicleOption{
	{ID: VehicleSedan, Label: "Sedan"},
	{ID: VehicleSUV, Label: "SUV"},
	{ID: VehicleVan, Label: "Van"},
	{ID: VehicleLimousine, Label: "Limousine"},
	{ID: VehicleLuxuryBus, Label: "Luxury Bus"},
}

func (v VehicleType) Valid() bool {
	for _, o := range VehicleTypes {
		if o.ID == v {
			return true
		}
	}
	return false
}

// Label returns the display name, or the raw value for unknown types.
func (v VehicleType) Label() string {
	for _, o := range VehicleTypes {
		if o.ID == v {
			return o.Label
		}
	}
	return string(v)
}

// BookingDraft is the partially filled booking held by the wizard.
// Dates are kept as entered ("2006-01-02" or RFC 3339).
type BookingDraft struct {
	FullName            string `json:"fullName"`
	DateOfBirth         string `json:"dateOfBirth"`
	ContactDetails      string `json:"contactDetails"`
	GuardianName        string `json:"guardianName"`
	GuardianContact     string `json:"guardianContact"`
	Destination         string `json:"destination"`
	DepartureDate       string `json:"departureDate"`
	PreferredVehicle    string `json:"preferredVehicle"`
	AllergiesOrRequests string `json:"allergiesOrRequests"`
}

func (d BookingDraft) IsEmpty() bool {
	return d == BookingDraft{}
}

// DraftPatch carries the values entered on one step. Nil fields leave the draft untouched.
type DraftPatch struct {
	FullName            *string `json:"fullName,omitempty"`
	DateOfBirth         *string `json:"dateOfBirth,omitempty"`
	ContactDetails      *string `json:"contactDetails,omitempty"`
	GuardianName        *string `json:"guardianName,omitempty"`
	GuardianContact     *string `json:"guardianContact,omitempty"`
	Destination         *string `json:"destination,omitempty"`
	DepartureDate       *string `json:"departureDate,omitempty"`
	PreferredVehicle    *string `json:"preferredVehicle,omitempty"`
	AllergiesOrRequests *string `json:"allergiesOrRequests,omitempty"`
}

// Merge returns a copy of d with every non-nil patch field applied.
func (d BookingDraft) Merge(p DraftPatch) BookingDraft {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&d.FullName, p.FullName)
	set(&d.DateOfBirth, p.DateOfBirth)
	set(&d.ContactDetails, p.ContactDetails)
	set(&d.GuardianName, p.GuardianName)
	set(&d.GuardianContact, p.GuardianContact)
	set(&d.Destination, p.Destination)
	set(&d.DepartureDate, p.DepartureDate)
	set(&d.PreferredVehicle, p.PreferredVehicle)
	if p.AllergiesOrRequests != nil {
		d.AllergiesOrRequests = *p.AllergiesOrRequests
	}
	return d
}

// ConfirmedBooking is a booking persisted by the store. It is never modified after creation.
type ConfirmedBooking struct {
	ID      uuid.UUID `json:"id"`
	OwnerID uuid.UUID `json:"userId"`
	BookingDraft
	IsConfirmed  bool      `json:"isConfirmed"`
	AgeAtBooking int       `json:"ageAtBooking"`
	CreatedAt    time.Time `json:"createdAt"`
}
