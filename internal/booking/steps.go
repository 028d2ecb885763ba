package booking

// Step is one screen of the booking form and the fields it validates.
type Step struct {
	Number int     `json:"number"`
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

var steps = []Step{
	{Number: 1, Name: "Personal Info", Fields: []Field{FieldFullName, FieldDateOfBirth, FieldContactDetails, FieldGuardianName, FieldGuardianContact}},
	{Number: 2, Name: "Trip Details", Fields: []Field{FieldDestination, FieldDepartureDate, FieldPreferredVehicle}},
	{Number: 3, Name: "Special Requests", Fields: []Field{FieldAllergiesOrRequests}},
	{Number: 4, Name: "Review & Confirm", Fields: []Field{}},
}

func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

// TotalSteps counts the review step too.
func TotalSteps() int {
	return len(steps)
}

// StepAt returns the step with the given 1-based number.
func StepAt(n int) (Step, bool) {
	if n < 1 || n > len(steps) {
		return Step{}, false
	}
	return steps[n-1], true
}

func isReview(n int) bool {
	return n == len(steps)
}
