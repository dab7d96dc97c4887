package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"coursework/portal/access"
	"coursework/portal/auth"
	"coursework/utils/logging"

	"github.com/go-chi/chi/v5"
)

// AccountService serves the login, logout and signup pages. A successful
// login stores the access token in the cookie read by the auth middleware.
type AccountService struct {
	userAuth      auth.IdentityProvider
	views         access.Renderer
	secureCookies bool
}

func NewAccountService(userAuth auth.IdentityProvider, views access.Renderer, secureCookies bool) AccountService {
	return AccountService{userAuth: userAuth, views: views, secureCookies: secureCookies}
}

const LoginPath = "/accounts/login/"

func (s *AccountService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/login/", s.LoginForm)
	r.Post("/login/", s.Login)
	r.Post("/logout/", s.Logout)

	if s.userAuth.AllowDirectSignup() {
		r.Get("/signup/", s.SignupForm)
		r.Post("/signup/", s.Signup)
	}

	return r
}

func (s *AccountService) setTokenCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *AccountService) renderLogin(w http.ResponseWriter, r *http.Request, status int, username, next, message string) {
	s.views.Render(w, r, status, "login", map[string]interface{}{
		"Title":       "Log in",
		"Error":       message,
		"Next":        next,
		"Username":    username,
		"AllowSignup": s.userAuth.AllowDirectSignup(),
	})
}

func (s *AccountService) LoginForm(w http.ResponseWriter, r *http.Request) {
	s.renderLogin(w, r, http.StatusOK, "", r.URL.Query().Get("next"), "")
}

func (s *AccountService) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("error parsing form: %v", err), http.StatusBadRequest)
		return
	}

	username, next := r.PostForm.Get("username"), r.PostForm.Get("next")
	result, err := s.userAuth.LoginWithPassword(username, r.PostForm.Get("password"))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFoundWithLogin) || errors.Is(err, auth.ErrInvalidCredentials) {
			s.renderLogin(w, r, http.StatusBadRequest, username, next, "Please enter a correct username and password.")
			return
		}
		s.views.Error(w, r, err)
		return
	}
	slog.Info("user logged in", "user_id", result.UserId, logging.Code(logging.AUTH_LOGIN))

	s.setTokenCookie(w, result.AccessToken, result.ExpiresAt)
	http.Redirect(w, r, safeRedirect(next, "/"), http.StatusSeeOther)
}

func (s *AccountService) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	s.views.Flash(w, r, access.FlashSuccess, "You have been logged out.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *AccountService) renderSignup(w http.ResponseWriter, r *http.Request, status int, values map[string]string, verr *access.ValidationError, nonField []string) {
	errs := map[string][]string{}
	if verr != nil {
		errs = verr.Fields
	}
	s.views.Render(w, r, status, "signup", map[string]interface{}{
		"Title":          "Sign up",
		"Values":         values,
		"Errors":         errs,
		"NonFieldErrors": nonField,
	})
}

func (s *AccountService) SignupForm(w http.ResponseWriter, r *http.Request) {
	s.renderSignup(w, r, http.StatusOK, map[string]string{}, nil, nil)
}

func (s *AccountService) Signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("error parsing form: %v", err), http.StatusBadRequest)
		return
	}

	params := signupRequest{
		Username: r.PostForm.Get("username"),
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
	}
	values := map[string]string{"username": params.Username, "email": params.Email}

	if err := validateSignup(params.Username, params.Email, params.Password); err != nil {
		verr, _ := access.AsValidationError(err)
		s.renderSignup(w, r, http.StatusBadRequest, values, verr, nil)
		return
	}

	userId, err := s.userAuth.CreateUser(params.Username, params.Email, params.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailAlreadyInUse) || errors.Is(err, auth.ErrUsernameAlreadyInUse) {
			s.renderSignup(w, r, http.StatusBadRequest, values, nil, []string{err.Error()})
			return
		}
		s.views.Error(w, r, err)
		return
	}
	slog.Info("created user", "user_id", userId, "username", params.Username, logging.Code(logging.AUTH_SIGNUP))

	result, err := s.userAuth.LoginWithPassword(params.Username, params.Password)
	if err != nil {
		s.views.Error(w, r, err)
		return
	}

	s.setTokenCookie(w, result.AccessToken, result.ExpiresAt)
	s.views.Flash(w, r, access.FlashSuccess, fmt.Sprintf("Welcome, %v.", params.Username))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
