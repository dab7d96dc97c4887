package schema

import (
	"github.com/google/uuid"
)

const (
	DefaultRaceResult = "Неизвестен"

	PositiveComment = "positive"
	NegativeComment = "negative"

	MinRating = 1
	MaxRating = 10
)

var CommentTypes = []Choice{
	{Value: PositiveComment, Label: "Положительный"},
	{Value: NegativeComment, Label: "Отрицательный"},
}

type Race struct {
	Base

	Name   string `gorm:"size:200;not null" json:"name"`
	Date   Date   `gorm:"not null" json:"date"`
	Time   Time   `gorm:"not null" json:"time"`
	Result string `gorm:"size:200;not null;default:'Неизвестен'" json:"result"`

	Registrations []Registration `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Comments      []Comment      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// NewRace returns a race carrying the column defaults, used as the base
// that request payloads are decoded onto.
func NewRace() Race {
	return Race{Time: NewTime(12, 0), Result: DefaultRaceResult}
}

type Registration struct {
	Base

	RaceId uint      `gorm:"not null;uniqueIndex:idx_registration_race_user" json:"race"`
	UserId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_registration_race_user" json:"user"`

	Race *Race `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	User *User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type Comment struct {
	Base

	RaceId uint      `gorm:"not null;index" json:"race"`
	UserId uuid.UUID `gorm:"type:uuid;not null;index" json:"user"`

	Date        Date   `gorm:"not null" json:"date"`
	Text        string `gorm:"not null" json:"text"`
	CommentType string `gorm:"size:10;not null" json:"comment_type"`
	Rating      int    `gorm:"not null;check:rating >= 1 AND rating <= 10" json:"rating"`

	Race *Race `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	User *User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
