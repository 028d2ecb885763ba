package booking

import (
	"errors"
	"strings"
)

// MinimumAge is the age below which a passenger must travel with guardian details.
const MinimumAge = 18

const GuardianRequiredMessage = "Guardian details are required for passengers under 18."

var ErrGuardianRequired = errors.New("guardian details are required for passengers under 18")

func RequiresGuardian(age int) bool {
	return age < MinimumAge
}

// GuardianSatisfied is the single guardian rule shared by step validation, the
// submitter and the booking store.
func GuardianSatisfied(age int, guardianName, guardianContact string) bool {
	if !RequiresGuardian(age) {
		return true
	}
	return strings.TrimSpace(guardianName) != "" && strings.TrimSpace(guardianContact) != ""
}
