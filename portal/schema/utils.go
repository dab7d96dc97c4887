package schema

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrRaceNotFound   = errors.New("race not found")
	ErrDbAccessFailed = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetRace(raceId uint, db *gorm.DB) (Race, error) {
	var race Race

	result := db.First(&race, "id = ?", raceId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return race, ErrRaceNotFound
		}
		slog.Error("sql error in get race", "race_id", raceId, "error", result.Error)
		return race, ErrDbAccessFailed
	}

	return race, nil
}

type Violation int

const (
	NoViolation Violation = iota
	UniqueViolation
	ForeignKeyViolation
	CheckViolation
)

// ClassifyViolation reports which storage constraint, if any, rejected a
// write. Drivers with error translation enabled return the gorm sentinels,
// the message checks cover drivers and versions that do not.
func ClassifyViolation(err error) Violation {
	if err == nil {
		return NoViolation
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return UniqueViolation
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return ForeignKeyViolation
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint failed"),
		strings.Contains(msg, "duplicate key value"),
		strings.Contains(msg, "duplicate entry"):
		return UniqueViolation
	case strings.Contains(msg, "foreign key constraint"),
		strings.Contains(msg, "violates foreign key"):
		return ForeignKeyViolation
	case strings.Contains(msg, "check constraint"):
		return CheckViolation
	}
	return NoViolation
}
