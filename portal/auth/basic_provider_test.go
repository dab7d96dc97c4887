package auth

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coursework/portal/schema"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupProvider(t *testing.T) (IdentityProvider, *bytes.Buffer) {
	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDb, err := db.DB()
	require.NoError(t, err)
	sqlDb.SetMaxOpenConns(1)

	require.NoError(t, schema.Migrate(db))

	audit := new(bytes.Buffer)
	provider, err := NewBasicIdentityProvider(db, NewAuditLogger(audit), BasicProviderArgs{
		Secret:        []byte("test-secret"),
		AdminUsername: "admin",
		AdminEmail:    "admin@mail.com",
		AdminPassword: "admin_password",
	})
	require.NoError(t, err)
	return provider, audit
}

func TestBasicProviderLogin(t *testing.T) {
	provider, _ := setupProvider(t)

	admin, err := provider.LoginWithPassword("admin", "admin_password")
	require.NoError(t, err)
	assert.NotEmpty(t, admin.AccessToken)
	assert.True(t, admin.ExpiresAt.After(time.Now()))

	userId, err := provider.CreateUser("abc", "abc@mail.com", "abc_password")
	require.NoError(t, err)

	byEmail, err := provider.LoginWithPassword("abc@mail.com", "abc_password")
	require.NoError(t, err)
	assert.Equal(t, userId, byEmail.UserId)

	byName, err := provider.LoginWithPassword("abc", "abc_password")
	require.NoError(t, err)
	assert.Equal(t, userId, byName.UserId)

	_, err = provider.LoginWithPassword("abc", "wrong")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = provider.LoginWithPassword("xyz", "abc_password")
	assert.True(t, errors.Is(err, ErrUserNotFoundWithLogin))

	_, err = provider.CreateUser("abc", "other@mail.com", "abc_password")
	assert.True(t, errors.Is(err, ErrUsernameAlreadyInUse))

	_, err = provider.CreateUser("other", "abc@mail.com", "abc_password")
	assert.True(t, errors.Is(err, ErrEmailAlreadyInUse))

	assert.True(t, provider.AllowDirectSignup())
}

func whoami(w http.ResponseWriter, r *http.Request) {
	user := CallerOrNil(r)
	if user == nil {
		w.Write([]byte("anonymous"))
		return
	}
	w.Write([]byte(user.Username))
}

func TestMiddleware(t *testing.T) {
	provider, audit := setupProvider(t)

	_, err := provider.CreateUser("abc", "abc@mail.com", "abc_password")
	require.NoError(t, err)

	admin, err := provider.LoginWithPassword("admin", "admin_password")
	require.NoError(t, err)
	user, err := provider.LoginWithPassword("abc", "abc_password")
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(provider.OptionalAuthMiddleware()...)
		r.Get("/public", whoami)
		r.With(RequireLogin("/login/")).Get("/page", whoami)
	})
	r.Group(func(r chi.Router) {
		r.Use(provider.AuthMiddleware()...)
		r.Get("/private", whoami)
		r.With(AdminOnly()).Get("/admin", whoami)
	})

	do := func(path, token string, cookie bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", path, nil)
		if token != "" {
			if cookie {
				req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
			} else {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do("/public", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())

	w = do("/public", "not-a-token", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())

	w = do("/public", user.AccessToken, true)
	assert.Equal(t, "abc", w.Body.String())

	w = do("/page", "", false)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login/?next=%2Fpage", w.Header().Get("Location"))

	w = do("/page", user.AccessToken, true)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do("/private", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do("/private", user.AccessToken, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", w.Body.String())

	w = do("/admin", user.AccessToken, false)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do("/admin", admin.AccessToken, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", w.Body.String())

	assert.Contains(t, audit.String(), "/private")
}
