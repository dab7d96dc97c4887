package tests

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"coursework/portal/schema"
)

func TestUserApi(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()

	signups := []struct {
		username string
		email    string
		password string
		expected error
		message  string
	}{
		{"abc", "not-an-email", "abc_password", ErrBadRequest, "Enter a valid email address."},
		{"abc", "abc@mail.com", "short", ErrBadRequest, "too short"},
		{"", "abc@mail.com", "abc_password", ErrBadRequest, ""},
		{"abc", adminEmail, "abc_password", ErrConflict, ""},
		{adminUsername, "abc@mail.com", "abc_password", ErrConflict, ""},
	}
	for _, tc := range signups {
		_, err := c.signup(tc.username, tc.email, tc.password)
		if !errors.Is(err, tc.expected) || !strings.Contains(err.Error(), tc.message) {
			t.Fatalf("signup %q/%q should fail with %v: %v", tc.username, tc.email, tc.expected, err)
		}
	}

	login, err := c.signup("abc", "abc@mail.com", "abc_password")
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.userInfo()
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("signup alone should not sign the client in: %v", err)
	}

	err = c.login(loginInfo{Login: "nobody@mail.com", Password: "abc_password"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("login of unknown user should fail: %v", err)
	}

	err = c.login(loginInfo{Login: "abc", Password: "wrong_password"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("login with wrong password should fail: %v", err)
	}

	if err := c.login(loginInfo{Login: "abc", Password: "abc_password"}); err != nil {
		t.Fatal(err)
	}
	if err := c.login(login); err != nil {
		t.Fatal(err)
	}

	info, err := c.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Username != "abc" || info.Email != "abc@mail.com" || info.Id.String() != c.userId || info.Admin {
		t.Fatalf("invalid user info %v", info)
	}

	// Exchanging external tokens needs an identity provider that issues them.
	err = c.Post("/api/user/login-with-token").Json(map[string]string{"access_token": c.authToken}).Do(nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("token login should not be available with password accounts: %v", err)
	}
}

func TestUserAdministration(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	user, err := env.newUser("abc")
	if err != nil {
		t.Fatal(err)
	}

	_, err = user.addUser("xyz", "xyz@mail.com", "xyz_password")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("users cannot add users: %v", err)
	}
	if _, err := user.listUsers(); !errors.Is(err, ErrForbidden) {
		t.Fatalf("users cannot list users: %v", err)
	}
	other := env.newClient()
	if _, err := other.listUsers(); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("anonymous callers cannot list users: %v", err)
	}

	login, err := admin.addUser("xyz", "xyz@mail.com", "xyz_password")
	if err != nil {
		t.Fatal(err)
	}
	if err := other.login(login); err != nil {
		t.Fatalf("added user should be able to log in: %v", err)
	}

	users, err := admin.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 3 || users[0].Username != "abc" || users[1].Username != adminUsername || users[2].Username != "xyz" {
		t.Fatalf("invalid user list %v", users)
	}

	// Race administration follows the admin flag.
	if _, err := user.createRace("Spring Cup", "2025-04-12"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("users cannot create races: %v", err)
	}
	if err := user.promoteAdmin(user.userId); !errors.Is(err, ErrForbidden) {
		t.Fatalf("users cannot promote themselves: %v", err)
	}
	if err := admin.promoteAdmin(user.userId); err != nil {
		t.Fatal(err)
	}
	if _, err := user.createRace("Spring Cup", "2025-04-12"); err != nil {
		t.Fatalf("promoted user should manage races: %v", err)
	}
	if err := admin.demoteAdmin(user.userId); err != nil {
		t.Fatal(err)
	}
	if _, err := user.createRace("Autumn Cup", "2025-10-01"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("demoted user cannot create races: %v", err)
	}

	for _, req := range []*httpTestRequest{
		admin.Delete("/api/user/" + admin.userId + "/admin"),
		admin.Delete("/api/user/" + admin.userId),
	} {
		w := req.Raw()
		if w.Code != http.StatusUnprocessableEntity || !strings.Contains(w.Body.String(), "last admin") {
			t.Fatalf("last admin should be kept, got %d: %v", w.Code, w.Body.String())
		}
	}

	info, err := admin.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if !info.Admin {
		t.Fatalf("admin should keep the admin flag: %v", info)
	}
}

func TestDeleteUserRemovesRaceEntries(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	user, err := env.newUser("abc")
	if err != nil {
		t.Fatal(err)
	}

	race, err := admin.createRace("Spring Cup", "2025-04-12")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := user.register(race); err != nil {
		t.Fatal(err)
	}
	if _, err := user.addComment(race, "great track", "positive", 9); err != nil {
		t.Fatal(err)
	}

	if err := admin.deleteUser(user.userId); err != nil {
		t.Fatal(err)
	}

	for _, model := range []interface{}{&schema.Registration{}, &schema.Comment{}} {
		var count int64
		if err := env.db.Model(model).Count(&count).Error; err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Fatalf("%T rows of deleted user should be removed, found %d", model, count)
		}
	}

	w := admin.Delete("/api/user/" + user.userId).Raw()
	if w.Code != http.StatusNotFound {
		t.Fatalf("deleting a missing user should give not found, got %d", w.Code)
	}

	w = admin.Delete("/api/user/not-a-uuid").Raw()
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid user id should be rejected, got %d", w.Code)
	}
}
