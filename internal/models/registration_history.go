package models

import (
	"github.com/parish-camps/camp-api/internal/lifecycle"
	"gorm.io/gorm"
)

// RegistrationHistory records every applied stage transition.
type RegistrationHistory struct {
	gorm.Model
	RegistrationID uint              `json:"registration_id" gorm:"index"`
	Trigger        lifecycle.Trigger `json:"trigger"`
	FromStage      lifecycle.Stage   `json:"from_stage"`
	ToStage        lifecycle.Stage   `json:"to_stage"`
	Actor          string            `json:"actor"`
}
