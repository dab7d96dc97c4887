package tests

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"coursework/portal/schema"
)

func TestRaceRegistration(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	user1, err := env.newUser("abc")
	if err != nil {
		t.Fatal(err)
	}
	user2, err := env.newUser("xyz")
	if err != nil {
		t.Fatal(err)
	}

	race, err := admin.createRace("Spring Cup", "2025-04-12")
	if err != nil {
		t.Fatal(err)
	}

	reg1, err := user1.register(race)
	if err != nil {
		t.Fatal(err)
	}

	_, err = user1.register(race)
	if !errors.Is(err, ErrBadRequest) || !strings.Contains(err.Error(), "already registered for this race") {
		t.Fatalf("second registration for the same race should fail: %v", err)
	}

	reg2, err := user2.register(race)
	if err != nil {
		t.Fatal(err)
	}

	regs, err := user1.listRegistrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(regs) != 1 || uint(regs[0]["id"].(float64)) != reg1 || regs[0]["user"] != user1.userId {
		t.Fatalf("user should only see their own registration: %v", regs)
	}

	err = user1.deleteRegistration(reg2)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("registrations of other users should look missing: %v", err)
	}

	if err := user1.deleteRegistration(reg1); err != nil {
		t.Fatal(err)
	}

	regs, err = user2.listRegistrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(regs) != 1 || uint(regs[0]["id"].(float64)) != reg2 {
		t.Fatalf("registration of other user should be untouched: %v", regs)
	}

	// The registration can be made again once cancelled.
	if _, err := user1.register(race); err != nil {
		t.Fatal(err)
	}

	_, err = user1.register(race + 100)
	if !errors.Is(err, ErrBadRequest) || !strings.Contains(err.Error(), "object does not exist") {
		t.Fatalf("registration for missing race should fail: %v", err)
	}

	anon := env.newClient()
	_, err = anon.register(race)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("anonymous registration should fail: %v", err)
	}
}

func TestConcurrentRegistration(t *testing.T) {
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

	const attempts = 16
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = user.register(race)
		}(i)
	}
	wg.Wait()

	registered, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			registered++
		case errors.Is(err, ErrBadRequest) && strings.Contains(err.Error(), "already registered for this race"):
			rejected++
		default:
			t.Fatalf("unexpected registration error: %v", err)
		}
	}
	if registered != 1 || rejected != attempts-1 {
		t.Fatalf("expected one registration, got %d registered and %d rejected", registered, rejected)
	}

	var count int64
	if err := env.db.Model(&schema.Registration{}).Where("race_id = ?", race).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected one stored registration, found %d", count)
	}
}

func TestRaceAdminOnly(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	user, err := env.newUser("abc")
	if err != nil {
		t.Fatal(err)
	}

	_, err = user.createRace("Spring Cup", "2025-04-12")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("users cannot create races: %v", err)
	}

	_, err = admin.createRace("", "2025-04-12")
	if !errors.Is(err, ErrBadRequest) || !strings.Contains(err.Error(), "name") {
		t.Fatalf("race without name should be rejected: %v", err)
	}

	race, err := admin.createRace("Spring Cup", "2025-04-12")
	if err != nil {
		t.Fatal(err)
	}

	var info map[string]interface{}
	if err := user.detail("/api/races/races", race, &info); err != nil {
		t.Fatal(err)
	}
	if info["name"] != "Spring Cup" || info["date"] != "2025-04-12" || info["time"] != "12:00:00" || info["result"] != "Неизвестен" {
		t.Fatalf("invalid race %v", info)
	}

	for _, value := range []string{"garbage", "25:99", "noon"} {
		_, err = admin.create("/api/races/races", map[string]string{"name": "Autumn Cup", "date": "2025-10-01", "time": value})
		if !errors.Is(err, ErrBadRequest) || !strings.Contains(err.Error(), `"time":["Enter a valid time."]`) {
			t.Fatalf("race time %q should be rejected: %v", value, err)
		}
	}

	evening, err := admin.create("/api/races/races", map[string]string{"name": "Night Cup", "date": "2025-10-01", "time": "21:15"})
	if err != nil {
		t.Fatal(err)
	}
	if err := user.detail("/api/races/races", evening, &info); err != nil {
		t.Fatal(err)
	}
	if info["time"] != "21:15:00" {
		t.Fatalf("invalid race time %v", info["time"])
	}
	if err := admin.remove("/api/races/races", evening); err != nil {
		t.Fatal(err)
	}

	anon := env.newClient()
	var races []map[string]interface{}
	if err := anon.list("/api/races/races", &races); err != nil {
		t.Fatal(err)
	}
	if len(races) != 1 {
		t.Fatalf("anyone should see the races: %v", races)
	}

	err = user.remove("/api/races/races", race)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("users cannot delete races: %v", err)
	}

	if err := admin.remove("/api/races/races", race); err != nil {
		t.Fatal(err)
	}

	err = user.detail("/api/races/races", race, &info)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted race should be missing: %v", err)
	}
}

func TestRaceComments(t *testing.T) {
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

	anon := env.newClient()

	rejected := []struct {
		client      client
		text        string
		commentType string
		rating      int
		expected    error
		field       string
	}{
		{user, "great track", "positive", 11, ErrBadRequest, "rating"},
		{user, "great track", "positive", 0, ErrBadRequest, "rating"},
		{user, "great track", "neutral", 5, ErrBadRequest, "comment_type"},
		{user, "", "positive", 5, ErrBadRequest, "text"},
		{anon, "great track", "positive", 5, ErrUnauthorized, ""},
	}
	for _, tc := range rejected {
		_, err := tc.client.addComment(race, tc.text, tc.commentType, tc.rating)
		if !errors.Is(err, tc.expected) || !strings.Contains(err.Error(), tc.field) {
			t.Fatalf("comment %q/%v/%d should be rejected on %q: %v", tc.text, tc.commentType, tc.rating, tc.field, err)
		}

		var count int64
		if err := env.db.Model(&schema.Comment{}).Count(&count).Error; err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Fatalf("rejected comment should not be stored, found %d", count)
		}
	}

	id, err := user.addComment(race, "great track", "positive", 9)
	if err != nil {
		t.Fatal(err)
	}

	var comment map[string]interface{}
	if err := anon.detail("/api/races/comments", id, &comment); err != nil {
		t.Fatal(err)
	}
	if comment["user"] != user.userId || comment["rating"] != float64(9) || comment["date"] == "" {
		t.Fatalf("invalid comment %v", comment)
	}
}

func TestRacePages(t *testing.T) {
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

	anon := env.newClient()
	status, body, _ := anon.page(anon.Get("/"))
	if status != http.StatusOK || !strings.Contains(body, "Spring Cup") || !strings.Contains(body, "Log in") {
		t.Fatalf("race list should be public, got %d: %v", status, body)
	}

	status, _, location := anon.page(anon.Post("/register/").Form(form("race_id", fmt.Sprint(race))))
	if status != http.StatusSeeOther || !strings.HasPrefix(location, "/accounts/login/?next=") {
		t.Fatalf("anonymous registration should redirect to login, got %d %v", status, location)
	}

	w := user.Post("/register/").Form(form("race_id", fmt.Sprint(race))).Raw()
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Fatalf("registration should redirect to the race list, got %d", w.Code)
	}

	status, body, _ = user.page(user.Get("/").Cookies(w.Result().Cookies()))
	if status != http.StatusOK || !strings.Contains(body, "You are registered for") || !strings.Contains(body, "Cancel registration") {
		t.Fatalf("race list should confirm the registration, got %d: %v", status, body)
	}

	w = user.Post("/register/").Form(form("race_id", fmt.Sprint(race))).Raw()
	if w.Code != http.StatusSeeOther {
		t.Fatalf("duplicate registration should redirect, got %d", w.Code)
	}
	_, body, _ = user.page(user.Get("/").Cookies(w.Result().Cookies()))
	if !strings.Contains(body, "already registered for this race") {
		t.Fatalf("duplicate registration should be reported: %v", body)
	}

	regs, err := user.listRegistrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(regs) != 1 {
		t.Fatalf("expected a single registration: %v", regs)
	}
	regId := uint(regs[0]["id"].(float64))

	status, _, _ = admin.page(admin.Post(fmt.Sprintf("/race/%d/delete/", regId)))
	if status != http.StatusNotFound {
		t.Fatalf("registration of other user should be missing, got %d", status)
	}

	status, _, location = user.page(user.Post(fmt.Sprintf("/race/%d/delete/", regId)))
	if status != http.StatusSeeOther || location != "/" {
		t.Fatalf("registration should be cancelled, got %d %v", status, location)
	}

	status, _, _ = user.page(user.Post("/register/").Form(form("race_id", "1000")))
	if status != http.StatusNotFound {
		t.Fatalf("registration for a missing race should fail, got %d", status)
	}

	status, body, _ = user.page(user.Post("/comment/add/").Form(form("race", fmt.Sprint(race), "text", "fun", "comment_type", "positive", "rating", "0")))
	if status != http.StatusBadRequest || !strings.Contains(body, "between 1 and 10") {
		t.Fatalf("invalid comment form should be shown again, got %d: %v", status, body)
	}

	status, _, location = user.page(user.Post("/comment/add/").Form(form("race", fmt.Sprint(race), "text", "fun", "comment_type", "positive", "rating", "7")))
	if status != http.StatusSeeOther || location != fmt.Sprintf("/race/%d/", race) {
		t.Fatalf("comment should redirect to the race, got %d %v", status, location)
	}

	status, body, _ = anon.page(anon.Get(fmt.Sprintf("/race/%d/", race)))
	if status != http.StatusOK || !strings.Contains(body, "fun") || !strings.Contains(body, "abc") {
		t.Fatalf("race detail should show the comment, got %d: %v", status, body)
	}

	status, _, _ = anon.page(anon.Get("/race/1000/"))
	if status != http.StatusNotFound {
		t.Fatalf("missing race should give not found, got %d", status)
	}
}
