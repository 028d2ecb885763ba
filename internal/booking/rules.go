package booking

import (
	"strings"
	"time"

	"luxe-booking/internal/models"

	"github.com/go-playground/validator/v10"
)

type Field string

const (
	FieldFullName            Field = "fullName"
	FieldDateOfBirth         Field = "dateOfBirth"
	FieldContactDetails      Field = "contactDetails"
	FieldGuardianName        Field = "guardianName"
	FieldGuardianContact     Field = "guardianContact"
	FieldDestination         Field = "destination"
	FieldDepartureDate       Field = "departureDate"
	FieldPreferredVehicle    Field = "preferredVehicle"
	FieldAllergiesOrRequests Field = "allergiesOrRequests"
)

// AllFields lists every draft field in form order.
var AllFields = []Field{
	FieldFullName,
	FieldDateOfBirth,
	FieldContactDetails,
	FieldGuardianName,
	FieldGuardianContact,
	FieldDestination,
	FieldDepartureDate,
	FieldPreferredVehicle,
	FieldAllergiesOrRequests,
}

func (f Field) valueOf(d models.BookingDraft) string {
	switch f {
	case FieldFullName:
		return d.FullName
	case FieldDateOfBirth:
		return d.DateOfBirth
	case FieldContactDetails:
		return d.ContactDetails
	case FieldGuardianName:
		return d.GuardianName
	case FieldGuardianContact:
		return d.GuardianContact
	case FieldDestination:
		return d.Destination
	case FieldDepartureDate:
		return d.DepartureDate
	case FieldPreferredVehicle:
		return d.PreferredVehicle
	case FieldAllergiesOrRequests:
		return d.AllergiesOrRequests
	}
	return ""
}

// FieldResult is the outcome of validating one field.
type FieldResult struct {
	Field   Field  `json:"field"`
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// rule returns an empty string when value is acceptable, otherwise the message to show.
type rule func(value string, now time.Time) string

var validate = validator.New()

func vehicleTag() string {
	ids := make([]string, 0, len(models.VehicleTypes))
	for _, v := range models.VehicleTypes {
		ids = append(ids, string(v.ID))
	}
	return "required,oneof=" + strings.Join(ids, " ")
}

func tagRule(tag, emptyMsg, invalidMsg string) rule {
	return func(value string, _ time.Time) string {
		value = strings.TrimSpace(value)
		if value == "" && emptyMsg != "" {
			return emptyMsg
		}
		if err := validate.Var(value, tag); err != nil {
			return invalidMsg
		}
		return ""
	}
}

func optional(string, time.Time) string { return "" }

func dateOfBirthRule(value string, now time.Time) string {
	dob, err := ParseDate(value)
	if err != nil {
		return "Invalid date format."
	}
	if !dob.Before(civilDate(now)) {
		return "Date of birth must be in the past."
	}
	return ""
}

func departureDateRule(value string, now time.Time) string {
	dep, err := ParseDate(value)
	if err != nil {
		return "Invalid date format."
	}
	if dep.Before(civilDate(now)) {
		return "Departure date cannot be in the past."
	}
	return ""
}

// Schema is the set of field rules for one value of the under-age flag.
type Schema struct {
	UnderAge bool
	rules    map[Field]rule
}

// NewSchema builds the field rules. Guardian fields are required only when underAge is set.
func NewSchema(underAge bool) Schema {
	rules := map[Field]rule{
		FieldFullName:            tagRule("required,min=2", "", "Full name must be at least 2 characters."),
		FieldDateOfBirth:         dateOfBirthRule,
		FieldContactDetails:      tagRule("required,min=5", "Contact details are required.", "Contact details must be at least 5 characters."),
		FieldGuardianName:        optional,
		FieldGuardianContact:     optional,
		FieldDestination:         tagRule("required,min=3", "", "Destination must be at least 3 characters."),
		FieldDepartureDate:       departureDateRule,
		FieldPreferredVehicle:    tagRule(vehicleTag(), "", "Please select a vehicle type."),
		FieldAllergiesOrRequests: optional,
	}
	if underAge {
		rules[FieldGuardianName] = tagRule("required,min=2", "Guardian name is required.", "Guardian name must be at least 2 characters.")
		rules[FieldGuardianContact] = tagRule("required,min=5", "Guardian contact is required.", "Guardian contact must be at least 5 characters.")
	}
	return Schema{UnderAge: underAge, rules: rules}
}

// DeriveSchema rebuilds the schema from the draft's current date of birth.
// An unparseable or missing date of birth does not make the passenger a minor;
// the date rule itself reports that problem.
func DeriveSchema(d models.BookingDraft, now time.Time) Schema {
	age, err := AgeFromString(d.DateOfBirth, now)
	return NewSchema(err == nil && RequiresGuardian(age))
}

// Validate checks the listed fields and returns one result per field, in order.
func (s Schema) Validate(d models.BookingDraft, fields []Field, now time.Time) []FieldResult {
	results := make([]FieldResult, 0, len(fields))
	for _, f := range fields {
		r, ok := s.rules[f]
		if !ok {
			continue
		}
		msg := r(f.valueOf(d), now)
		results = append(results, FieldResult{Field: f, Valid: msg == "", Message: msg})
	}
	return results
}

// ValidationError collects every failed field of one validation pass.
type ValidationError struct {
	Fields []FieldResult `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, string(f.Field)+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Is reports guardian failures as ErrGuardianRequired so callers can use errors.Is.
func (e *ValidationError) Is(target error) bool {
	if target != ErrGuardianRequired {
		return false
	}
	for _, f := range e.Fields {
		if f.Field == FieldGuardianName || f.Field == FieldGuardianContact {
			return true
		}
	}
	return false
}

func failures(results []FieldResult) error {
	var failed []FieldResult
	for _, r := range results {
		if !r.Valid {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &ValidationError{Fields: failed}
}
