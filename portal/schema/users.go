package schema

import (
	"github.com/google/uuid"
)

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	Username string `gorm:"unique;size:50;not null" json:"username"`
	Email    string `gorm:"unique;size:254;not null" json:"email"`
	Password []byte `json:"-"`

	IsAdmin bool `gorm:"not null;default:false" json:"is_admin"`

	Registrations []Registration `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Comments      []Comment      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
