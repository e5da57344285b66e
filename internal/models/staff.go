package models

import (
	"gorm.io/gorm"
)

// Staff is a parish member allowed into the staff endpoints.
type Staff struct {
	gorm.Model
	Email    string `json:"email" gorm:"uniqueIndex"`
	Name     string `json:"name"`
	ParishID uint   `json:"parish_id" gorm:"index"`
	Admin    bool   `json:"admin"`
}

// CanManage reports whether the staff member may act on the parish's data.
func (s *Staff) CanManage(parishID uint) bool {
	return s.Admin || s.ParishID == parishID
}
