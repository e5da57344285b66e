package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type EventCategory string

const (
	CategorySenior  EventCategory = "senior"
	CategoryYouth   EventCategory = "youth"
	CategoryChild   EventCategory = "child"
	CategoryStaff   EventCategory = "staff"
	CategoryCouples EventCategory = "couples"
	CategoryFamily  EventCategory = "family"
)

func (c EventCategory) Valid() bool {
	switch c {
	case CategorySenior, CategoryYouth, CategoryChild, CategoryStaff, CategoryCouples, CategoryFamily:
		return true
	}
	return false
}

type WindowState string

const (
	WindowUpcoming WindowState = "upcoming"
	WindowOpen     WindowState = "open"
	WindowClosed   WindowState = "closed"
)

type Event struct {
	gorm.Model
	ParishID             uint            `json:"parish_id" gorm:"index"`
	Parish               Parish          `json:"-"`
	Name                 string          `json:"name"`
	Slug                 string          `json:"slug" gorm:"uniqueIndex"`
	Category             EventCategory   `json:"category"`
	RegistrationOpensAt  time.Time       `json:"registration_opens_at"`
	RegistrationClosesAt time.Time       `json:"registration_closes_at"`
	StartsAt             time.Time       `json:"starts_at"`
	Fee                  decimal.Decimal `json:"fee" gorm:"type:decimal(12,2)"`
}

// WindowState tells whether new registrations are accepted at now.
func (e *Event) WindowState(now time.Time) WindowState {
	if now.Before(e.RegistrationOpensAt) {
		return WindowUpcoming
	}
	if !e.RegistrationClosesAt.IsZero() && !now.Before(e.RegistrationClosesAt) {
		return WindowClosed
	}
	return WindowOpen
}

func (e *Event) Pairable() bool {
	return e.Category == CategoryCouples
}
