package models

import (
	"time"

	"gorm.io/gorm"
)

type Participant struct {
	gorm.Model
	Name       string    `json:"name"`
	NationalID string    `json:"national_id" gorm:"uniqueIndex"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	BirthDate  time.Time `json:"birth_date"`
}

// AgeAt returns the participant's age in whole years at t.
func (p *Participant) AgeAt(t time.Time) int {
	if p.BirthDate.IsZero() {
		return 0
	}
	age := t.Year() - p.BirthDate.Year()
	if t.Month() < p.BirthDate.Month() || (t.Month() == p.BirthDate.Month() && t.Day() < p.BirthDate.Day()) {
		age--
	}
	return age
}
