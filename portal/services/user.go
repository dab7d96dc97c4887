package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"coursework/portal/auth"
	"coursework/portal/schema"
	"coursework/utils"
	"coursework/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if s.userAuth.AllowDirectSignup() {
			r.Post("/signup", s.Signup)
		}

		r.Get("/login", s.Login)
		r.Post("/login-with-token", s.LoginWithToken)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/info", s.Info)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly())

		r.Get("/list", s.List)
		r.Post("/create", s.CreateUser)
		r.Delete("/{user_id}", s.DeleteUser)
		r.Post("/{user_id}/admin", s.PromoteAdmin)
		r.Delete("/{user_id}/admin", s.DemoteAdmin)
	})

	return r
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResponse struct {
	UserId uuid.UUID `json:"user_id"`
}

func createUserResponseCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrEmailAlreadyInUse), errors.Is(err, auth.ErrUsernameAlreadyInUse):
		return http.StatusConflict
	case errors.Is(err, errInvalidSignup):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *UserService) createUser(params signupRequest) (uuid.UUID, error) {
	if err := validateSignup(params.Username, params.Email, params.Password); err != nil {
		return uuid.Nil, err
	}

	userId, err := s.userAuth.CreateUser(params.Username, params.Email, params.Password)
	if err != nil {
		return uuid.Nil, err
	}
	slog.Info("created user", "user_id", userId, "username", params.Username, logging.Code(logging.AUTH_SIGNUP))
	return userId, nil
}

func (s *UserService) Signup(w http.ResponseWriter, r *http.Request) {
	var params signupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	userId, err := s.createUser(params)
	if err != nil {
		http.Error(w, err.Error(), createUserResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, signupResponse{UserId: userId})
}

type loginResponse struct {
	UserId      uuid.UUID `json:"user_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func loginResponseCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrUserNotFoundWithLogin):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// Login expects the username or email and the password as basic auth.
func (s *UserService) Login(w http.ResponseWriter, r *http.Request) {
	login, password, ok := r.BasicAuth()
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}

	result, err := s.userAuth.LoginWithPassword(login, password)
	if err != nil {
		http.Error(w, fmt.Sprintf("login failed: %v", err), loginResponseCode(err))
		return
	}
	slog.Info("user logged in", "user_id", result.UserId, logging.Code(logging.AUTH_LOGIN))

	utils.WriteJsonResponse(w, loginResponse{UserId: result.UserId, AccessToken: result.AccessToken, ExpiresAt: result.ExpiresAt})
}

type loginWithTokenRequest struct {
	AccessToken string `json:"access_token"`
}

func (s *UserService) LoginWithToken(w http.ResponseWriter, r *http.Request) {
	var params loginWithTokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	result, err := s.userAuth.LoginWithToken(params.AccessToken)
	if err != nil {
		http.Error(w, fmt.Sprintf("login failed: %v", err), http.StatusUnauthorized)
		return
	}
	slog.Info("user logged in with token", "user_id", result.UserId, logging.Code(logging.AUTH_LOGIN))

	utils.WriteJsonResponse(w, loginResponse{UserId: result.UserId, AccessToken: result.AccessToken, ExpiresAt: result.ExpiresAt})
}

type UserInfo struct {
	Id       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Admin    bool      `json:"admin"`
}

func convertToUserInfo(user *schema.User) UserInfo {
	return UserInfo{
		Id:       user.Id,
		Username: user.Username,
		Email:    user.Email,
		Admin:    user.IsAdmin,
	}
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	utils.WriteJsonResponse(w, convertToUserInfo(&user))
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	var users []schema.User
	result := s.db.WithContext(r.Context()).Order("username").Find(&users)
	if result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing users: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, convertToUserInfo(&u))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *UserService) CreateUser(w http.ResponseWriter, r *http.Request) {
	var params signupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	userId, err := s.createUser(params)
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating user: %v", err), createUserResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, signupResponse{UserId: userId})
}

// DeleteUser removes the user together with their registrations and comments.
func (s *UserService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return utils.CodedError(err, http.StatusNotFound)
			}
			return utils.CodedError(err, http.StatusInternalServerError)
		}

		if user.IsAdmin {
			if err := ensureOtherAdmin(txn, userId); err != nil {
				return err
			}
		}

		if result := txn.Delete(&user); result.Error != nil {
			slog.Error("sql error deleting user", "user_id", userId, "error", result.Error)
			return utils.CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting user %v: %v", userId, err), utils.GetResponseCode(err))
		return
	}

	if err := s.userAuth.DeleteUser(userId); err != nil {
		http.Error(w, fmt.Sprintf("error deleting user %v: %v", userId, err), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}

func ensureOtherAdmin(txn *gorm.DB, userId uuid.UUID) error {
	var count int64
	result := txn.Model(&schema.User{}).Where("is_admin = ? AND id <> ?", true, userId).Count(&count)
	if result.Error != nil {
		slog.Error("sql error counting existing admins", "error", result.Error)
		return utils.CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	if count == 0 {
		return utils.CodedError(fmt.Errorf("user %v is the last admin", userId), http.StatusUnprocessableEntity)
	}
	return nil
}

func (s *UserService) setAdmin(r *http.Request, isAdmin bool) error {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		return utils.CodedError(err, http.StatusBadRequest)
	}

	return s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return utils.CodedError(err, http.StatusNotFound)
			}
			return utils.CodedError(err, http.StatusInternalServerError)
		}

		if user.IsAdmin == isAdmin {
			return nil
		}
		if !isAdmin {
			if err := ensureOtherAdmin(txn, userId); err != nil {
				return err
			}
		}

		result := txn.Model(&user).Update("is_admin", isAdmin)
		if result.Error != nil {
			slog.Error("sql error updating user role", "user_id", userId, "is_admin", isAdmin, "error", result.Error)
			return utils.CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})
}

func (s *UserService) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	if err := s.setAdmin(r, true); err != nil {
		http.Error(w, fmt.Sprintf("error promoting admin: %v", err), utils.GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}

func (s *UserService) DemoteAdmin(w http.ResponseWriter, r *http.Request) {
	if err := s.setAdmin(r, false); err != nil {
		http.Error(w, fmt.Sprintf("error demoting admin: %v", err), utils.GetResponseCode(err))
		return
	}
	utils.WriteSuccess(w)
}
