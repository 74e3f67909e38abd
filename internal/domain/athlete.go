package domain

import (
	"fmt"
	"strings"
	"time"
)

// Athlete is the membership subject. Rows are never hard-deleted.
type Athlete struct {
	ID                    string
	UserID                string
	Name                  string
	Document              string
	Email                 string
	Phone                 *string
	Active                bool
	Category              string
	Modalities            []string
	ClubID                *string
	RegistrationYear      *int
	IsRenewal             bool
	FirstRegistrationDate *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// HasPhone reports whether a non-blank phone number is on file.
func (a *Athlete) HasPhone() bool {
	return a.Phone != nil && strings.TrimSpace(*a.Phone) != ""
}

// Activate marks the athlete as an active member for the year of now.
//
// IsRenewal is true when the athlete was registered in an earlier year.
// RegistrationYear is overwritten on every call.
func (a *Athlete) Activate(now time.Time) {
	year := now.Year()

	a.IsRenewal = a.registeredBefore(year)
	a.Active = true
	a.RegistrationYear = &year
	if a.FirstRegistrationDate == nil {
		first := now
		a.FirstRegistrationDate = &first
	}
}

// ActiveFor reports whether the membership is active for the given year.
func (a *Athlete) ActiveFor(year int) bool {
	return a.Active && a.RegistrationYear != nil && *a.RegistrationYear == year
}

func (a *Athlete) registeredBefore(year int) bool {
	if a.FirstRegistrationDate != nil && a.FirstRegistrationDate.Year() < year {
		return true
	}
	return a.RegistrationYear != nil && *a.RegistrationYear < year
}

func (a *Athlete) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return nil
}
