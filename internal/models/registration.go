package models

import (
	"time"

	"github.com/parish-camps/camp-api/internal/lifecycle"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ContactFields struct {
	GuardianName         string `json:"guardian_name"`
	GuardianPhone        string `json:"guardian_phone"`
	GuardianRelationship string `json:"guardian_relationship"`
	EmergencyName        string `json:"emergency_name"`
	EmergencyPhone       string `json:"emergency_phone"`
}

type Registration struct {
	gorm.Model
	ParticipantID    uint            `json:"participant_id" gorm:"uniqueIndex:idx_participant_event"`
	EventID          uint            `json:"event_id" gorm:"uniqueIndex:idx_participant_event"`
	Participant      Participant     `json:"-" gorm:"foreignKey:ParticipantID"`
	Event            Event           `json:"-" gorm:"foreignKey:EventID"`
	PublicToken      string          `json:"public_token" gorm:"uniqueIndex"`
	Stage            lifecycle.Stage `json:"stage" gorm:"index;default:draft"`
	WizardStep       string          `json:"wizard_step"`
	PairedWithID     *uint           `json:"paired_with_id"`
	SpouseNationalID string          `json:"spouse_national_id"`
	SubmittedAt      *time.Time      `json:"submitted_at"`
	SelectedAt       *time.Time      `json:"selected_at"`
	ConfirmedAt      *time.Time      `json:"confirmed_at"`
	ContactFields    `gorm:"embedded"`
}

type HealthProfile struct {
	gorm.Model
	RegistrationID uint           `json:"registration_id" gorm:"uniqueIndex"`
	Allergies      string         `json:"allergies"`
	Medications    string         `json:"medications"`
	Conditions     string         `json:"conditions"`
	Dietary        string         `json:"dietary"`
	Answers        datatypes.JSON `json:"answers"`
}
