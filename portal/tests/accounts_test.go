package tests

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"coursework/portal/auth"
)

func tokenCookie(cookies []*http.Cookie) *http.Cookie {
	for _, c := range cookies {
		if c.Name == auth.TokenCookie {
			return c
		}
	}
	return nil
}

func TestLoginPage(t *testing.T) {
	env := setupTestEnv(t)

	if _, err := env.newUser("abc"); err != nil {
		t.Fatal(err)
	}

	c := env.newClient()

	status, body, _ := c.page(c.Get("/accounts/login/?next=" + url.QueryEscape("/comment/add/")))
	if status != http.StatusOK || !strings.Contains(body, "/comment/add/") {
		t.Fatalf("login form should keep the next page, got %d: %v", status, body)
	}

	status, body, _ = c.page(c.Post("/accounts/login/").Form(form("username", "abc", "password", "wrong_password")))
	if status != http.StatusBadRequest || !strings.Contains(body, "Please enter a correct username and password.") {
		t.Fatalf("bad credentials should be reported, got %d: %v", status, body)
	}

	status, _, _ = c.page(c.Post("/accounts/login/").Form(form("username", "nobody", "password", "abc_password")))
	if status != http.StatusBadRequest {
		t.Fatalf("unknown user should be reported, got %d", status)
	}

	w := c.Post("/accounts/login/").Form(form("username", "abc", "password", "abc_password", "next", "/comment/add/")).Raw()
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/comment/add/" {
		t.Fatalf("login should redirect to the next page, got %d %v", w.Code, w.Header().Get("Location"))
	}

	cookie := tokenCookie(w.Result().Cookies())
	if cookie == nil || cookie.Value == "" || !cookie.HttpOnly {
		t.Fatalf("login should set the token cookie: %v", w.Result().Cookies())
	}

	status, body, _ = c.page(c.Get("/comment/add/").Cookies([]*http.Cookie{cookie}))
	if status != http.StatusOK || !strings.Contains(body, "abc") || !strings.Contains(body, "Log out") {
		t.Fatalf("token cookie should sign the user in, got %d: %v", status, body)
	}

	w = c.Post("/accounts/login/").Form(form("username", "abc", "password", "abc_password", "next", "//evil.example.com/")).Raw()
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Fatalf("login should not redirect to other sites, got %v", w.Header().Get("Location"))
	}

	w = c.Post("/accounts/logout/").Cookies([]*http.Cookie{cookie}).Raw()
	if w.Code != http.StatusSeeOther {
		t.Fatalf("logout should redirect, got %d", w.Code)
	}
	cleared := tokenCookie(w.Result().Cookies())
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Fatalf("logout should clear the token cookie: %v", w.Result().Cookies())
	}
}

func TestSignupPage(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()

	status, body, _ := c.page(c.Post("/accounts/signup/").Form(form("username", "abc", "email", "abc", "password", "short")))
	if status != http.StatusBadRequest || !strings.Contains(body, "Enter a valid email address.") || !strings.Contains(body, "too short") {
		t.Fatalf("invalid signup should be shown again, got %d: %v", status, body)
	}

	w := c.Post("/accounts/signup/").Form(form("username", "abc", "email", "abc@mail.com", "password", "abc_password")).Raw()
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Fatalf("signup should redirect to the race list, got %d", w.Code)
	}
	if cookie := tokenCookie(w.Result().Cookies()); cookie == nil || cookie.Value == "" {
		t.Fatal("signup should sign the user in")
	}

	status, body, _ = c.page(c.Get("/").Cookies(w.Result().Cookies()))
	if status != http.StatusOK || !strings.Contains(body, "Welcome, abc.") {
		t.Fatalf("race list should greet the new user, got %d: %v", status, body)
	}

	status, _, _ = c.page(c.Post("/accounts/signup/").Form(form("username", "abc", "email", "abc2@mail.com", "password", "abc_password")))
	if status != http.StatusBadRequest {
		t.Fatalf("duplicate username should be rejected, got %d", status)
	}

	if err := c.login(loginInfo{Login: "abc@mail.com", Password: "abc_password"}); err != nil {
		t.Fatal(err)
	}
}
