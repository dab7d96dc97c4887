package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"

	"coursework/portal/services"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo
	cookies  []*http.Cookie
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
		headers:  nil,
		json:     nil,
		body:     nil,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(login, password string) *httpTestRequest {
	r.login = &loginInfo{Login: login, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Form(values url.Values) *httpTestRequest {
	r.body = strings.NewReader(values.Encode())
	return r.Header("Content-Type", "application/x-www-form-urlencoded")
}

func (r *httpTestRequest) Cookies(cookies []*http.Cookie) *httpTestRequest {
	r.cookies = append(r.cookies, cookies...)
	return r
}

// Raw sends the request and returns the recorded response as is.
func (r *httpTestRequest) Raw() *httptest.ResponseRecorder {
	if r.json != nil {
		body := new(bytes.Buffer)
		if err := json.NewEncoder(body).Encode(r.json); err != nil {
			panic(fmt.Sprintf("error encoding json body for endpoint %v: %v", r.endpoint, err))
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	for k, v := range r.headers {
		req.Header.Add(k, v)
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Login, r.login.Password)
	}

	w := httptest.NewRecorder()
	r.api.ServeHTTP(w, req)
	return w
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	w := r.Raw()

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var sentinel error
		switch res.StatusCode {
		case http.StatusUnauthorized:
			return ErrUnauthorized
		case http.StatusForbidden:
			sentinel = ErrForbidden
		case http.StatusNotFound:
			sentinel = ErrNotFound
		case http.StatusBadRequest:
			sentinel = ErrBadRequest
		case http.StatusConflict:
			sentinel = ErrConflict
		default:
			sentinel = ErrUnexpectedStatus
		}
		return fmt.Errorf("%w: %v request to endpoint %v returned status %d, content '%v'", sentinel, r.method, r.endpoint, res.StatusCode, w.Body.String())
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrBadRequest       = errors.New("bad request")
	ErrConflict         = errors.New("conflict")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

type client struct {
	api       http.Handler
	authToken string
	userId    string
}

func (c *client) request(method, endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, method, endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Get(endpoint string) *httpTestRequest {
	return c.request("GET", endpoint)
}

func (c *client) Post(endpoint string) *httpTestRequest {
	return c.request("POST", endpoint)
}

func (c *client) Put(endpoint string) *httpTestRequest {
	return c.request("PUT", endpoint)
}

func (c *client) Patch(endpoint string) *httpTestRequest {
	return c.request("PATCH", endpoint)
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	return c.request("DELETE", endpoint)
}

type loginInfo struct {
	Login    string
	Password string
}

func (c *client) signup(username, email, password string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password,
	}

	err := c.Post("/api/user/signup").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Login: email, Password: password}, nil
}

func (c *client) login(login loginInfo) error {
	var res map[string]string
	err := c.Get("/api/user/login").Login(login.Login, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res["access_token"]
	c.userId = res["user_id"]

	return nil
}

func (c *client) addUser(username, email, password string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password,
	}

	err := c.Post("/api/user/create").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Login: email, Password: password}, nil
}

func (c *client) deleteUser(userId string) error {
	return c.Delete(fmt.Sprintf("/api/user/%v", userId)).Do(nil)
}

func (c *client) promoteAdmin(userId string) error {
	return c.Post(fmt.Sprintf("/api/user/%v/admin", userId)).Do(nil)
}

func (c *client) demoteAdmin(userId string) error {
	return c.Delete(fmt.Sprintf("/api/user/%v/admin", userId)).Do(nil)
}

func (c *client) listUsers() ([]services.UserInfo, error) {
	var res []services.UserInfo
	err := c.Get("/api/user/list").Do(&res)
	return res, err
}

func (c *client) userInfo() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/api/user/info").Do(&res)
	return res, err
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// create posts body to the create endpoint of an entity and returns the id
// of the new row.
func (c *client) create(prefix string, body interface{}) (uint, error) {
	var res struct {
		Id uint `json:"id"`
	}
	err := c.Post(prefix + "/create/").Json(body).Do(&res)
	return res.Id, err
}

func (c *client) detail(prefix string, id uint, result interface{}) error {
	return c.Get(fmt.Sprintf("%v/%d/", prefix, id)).Do(result)
}

func (c *client) list(prefix string, result interface{}) error {
	return c.Get(prefix + "/").Do(result)
}

func (c *client) remove(prefix string, id uint) error {
	return c.Delete(fmt.Sprintf("%v/%d/delete/", prefix, id)).Do(nil)
}

func (c *client) bulkDelete(prefix string, ids []uint) (int64, error) {
	var res struct {
		Deleted int64 `json:"deleted"`
	}
	err := c.Post(prefix + "/delete/").Json(map[string][]uint{"ids": ids}).Do(&res)
	return res.Deleted, err
}

func (c *client) createRace(name, date string) (uint, error) {
	return c.create("/api/races/races", map[string]string{"name": name, "date": date})
}

func (c *client) register(raceId uint) (uint, error) {
	return c.create("/api/races/registrations", map[string]uint{"race": raceId})
}

func (c *client) listRegistrations() ([]map[string]interface{}, error) {
	var res []map[string]interface{}
	err := c.list("/api/races/registrations", &res)
	return res, err
}

func (c *client) deleteRegistration(regId uint) error {
	return c.remove("/api/races/registrations", regId)
}

func (c *client) addComment(raceId uint, text, commentType string, rating int) (uint, error) {
	return c.create("/api/races/comments", map[string]interface{}{
		"race": raceId, "text": text, "comment_type": commentType, "rating": rating,
	})
}

// page requests a server rendered page and returns its status, body and
// the redirect target, if any.
func (c *client) page(req *httpTestRequest) (int, string, string) {
	w := req.Raw()
	return w.Code, w.Body.String(), w.Header().Get("Location")
}
