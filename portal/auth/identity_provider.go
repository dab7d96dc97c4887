package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"coursework/portal/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFoundWithLogin = errors.New("no user found for given username or email")
	ErrInvalidCredentials    = errors.New("invalid login credentials")
	ErrGeneratingJwt         = errors.New("error generating jwt")
	ErrEmailAlreadyInUse     = errors.New("email is already in use")
	ErrUsernameAlreadyInUse  = errors.New("username is already in use")
	ErrUnauthenticated       = errors.New("authentication required")
)

type LoginResult struct {
	UserId      uuid.UUID
	AccessToken string
	ExpiresAt   time.Time
}

type IdentityProvider interface {
	// AuthMiddleware rejects requests without a valid access token with 401
	// and adds the caller to the request context.
	AuthMiddleware() chi.Middlewares

	// OptionalAuthMiddleware adds the caller to the request context when a
	// valid access token is present and lets anonymous requests through.
	OptionalAuthMiddleware() chi.Middlewares

	AllowDirectSignup() bool

	// LoginWithPassword accepts either the username or the email as login.
	LoginWithPassword(login, password string) (LoginResult, error)

	LoginWithToken(accessToken string) (LoginResult, error)

	CreateUser(username, email, password string) (uuid.UUID, error)

	DeleteUser(userId uuid.UUID) error
}

func addInitialAdminToDb(db *gorm.DB, userId uuid.UUID, username, email string, password []byte) error {
	user := schema.User{
		Id:       userId,
		Username: username,
		Email:    email,
		IsAdmin:  true,
	}
	if password != nil {
		user.Password = password
	}

	err := db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "id = ? or username = ? or email = ?", userId, username, email)
		if result.Error != nil {
			slog.Error("sql error checking if admin has already been added", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			result := txn.Create(&user)
			if result.Error != nil {
				slog.Error("sql error creating initial admin user", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error adding initial admin to db: %w", err)
	}

	return nil
}

// createUserInDb stores a new user unless the username or email is taken.
func createUserInDb(db *gorm.DB, user schema.User) error {
	return db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "username = ? or email = ?", user.Username, user.Email)
		if result.Error != nil {
			slog.Error("sql error checking for existing username/email", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			if existingUser.Username == user.Username {
				return ErrUsernameAlreadyInUse
			}
			return ErrEmailAlreadyInUse
		}

		result = txn.Create(&user)
		if result.Error != nil {
			if schema.ClassifyViolation(result.Error) == schema.UniqueViolation {
				return ErrUsernameAlreadyInUse
			}
			slog.Error("sql error creating new user entry", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		return nil
	})
}

type requestContextKey string

const (
	UserRequestContextKey requestContextKey = "user"
)

func UserFromContext(r *http.Request) (schema.User, error) {
	userUntyped := r.Context().Value(UserRequestContextKey)
	if userUntyped == nil {
		return schema.User{}, ErrUnauthenticated
	}
	user, ok := userUntyped.(schema.User)
	if !ok {
		return schema.User{}, fmt.Errorf("invalid value for user field")
	}
	return user, nil
}

// CallerOrNil returns the caller of the request, or nil for anonymous requests.
func CallerOrNil(r *http.Request) *schema.User {
	user, err := UserFromContext(r)
	if err != nil {
		return nil
	}
	return &user
}
