package access

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"coursework/utils"

	"github.com/go-chi/chi/v5"
)

type Presenter[T any] func(row T) interface{}

type Op int

const (
	OpList Op = 1 << iota
	OpDetail
	OpCreate
	OpUpdate
	OpDelete
	OpBulkDelete

	OpAll = OpList | OpDetail | OpCreate | OpUpdate | OpDelete | OpBulkDelete
)

// REST exposes a resource as JSON endpoints:
//
//	GET         /              list
//	GET         /{id}/         detail
//	POST        /create/       create
//	PUT, PATCH  /{id}/update/  update (PUT replaces every field, PATCH only the given ones)
//	DELETE,POST /{id}/delete/  delete
//	POST        /delete/       bulk delete, body {"ids": [...]}
type REST[T any, P Model[T]] struct {
	Resource *Resource[T, P]

	// Present renders a row. Rows are returned as stored if unset.
	Present Presenter[T]
	// Scope restricts the rows visible to the caller of a request.
	Scope func(r *http.Request) ([]Scope, error)
	// Prepare is applied to decoded payloads before they are written, e.g. to
	// fill fields that come from the caller rather than the body.
	Prepare func(r *http.Request, row *T) error
	// Ops selects the endpoints to mount, OpAll if zero.
	Ops Op
}

func (s *REST[T, P]) Routes() chi.Router {
	r := chi.NewRouter()

	ops := s.Ops
	if ops == 0 {
		ops = OpAll
	}
	s.Register(r, ops)

	return r
}

// Register adds the selected endpoints to r. Services use it to put read and
// write endpoints of one resource behind different middleware.
func (s *REST[T, P]) Register(r chi.Router, ops Op) {
	if ops&OpList != 0 {
		r.Get("/", s.List)
	}
	if ops&OpCreate != 0 {
		r.Post("/create/", s.Create)
	}
	if ops&OpBulkDelete != 0 {
		r.Post("/delete/", s.BulkDelete)
	}
	if ops&OpDetail != 0 {
		r.Get("/{id}/", s.Detail)
	}
	if ops&OpUpdate != 0 {
		r.Put("/{id}/update/", s.Update)
		r.Patch("/{id}/update/", s.Update)
	}
	if ops&OpDelete != 0 {
		r.Delete("/{id}/delete/", s.Delete)
		r.Post("/{id}/delete/", s.Delete)
	}
}

func (s *REST[T, P]) present(row T) interface{} {
	if s.Present == nil {
		return row
	}
	return s.Present(row)
}

func (s *REST[T, P]) scopes(r *http.Request) ([]Scope, error) {
	if s.Scope == nil {
		return nil, nil
	}
	return s.Scope(r)
}

// WriteError reports err to the client. Validation failures are sent as a
// JSON object of field messages, everything else as plain text.
func WriteError(w http.ResponseWriter, action string, err error) {
	if verr, ok := AsValidationError(err); ok {
		utils.WriteJsonResponseWithStatus(w, http.StatusBadRequest, verr)
		return
	}
	http.Error(w, fmt.Sprintf("error %v: %v", action, err), utils.GetResponseCode(err))
}

func (s *REST[T, P]) List(w http.ResponseWriter, r *http.Request) {
	scopes, err := s.scopes(r)
	if err != nil {
		WriteError(w, "listing "+s.Resource.Name(), err)
		return
	}

	rows, err := s.Resource.List(r.Context(), scopes...)
	if err != nil {
		WriteError(w, "listing "+s.Resource.Name(), err)
		return
	}

	out := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.present(row))
	}
	utils.WriteJsonResponse(w, out)
}

func (s *REST[T, P]) Detail(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamUint(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	scopes, err := s.scopes(r)
	if err != nil {
		WriteError(w, "retrieving "+s.Resource.Name(), err)
		return
	}

	row, err := s.Resource.Detail(r.Context(), id, scopes...)
	if err != nil {
		WriteError(w, "retrieving "+s.Resource.Name(), err)
		return
	}

	utils.WriteJsonResponse(w, s.present(row))
}

func (s *REST[T, P]) decode(w http.ResponseWriter, r *http.Request, row *T) bool {
	if err := json.NewDecoder(r.Body).Decode(row); err != nil {
		slog.Error("error parsing request body", "entity", s.Resource.Name(), "error", err)
		http.Error(w, fmt.Sprintf("error parsing request body: %v", err), http.StatusBadRequest)
		return false
	}
	if s.Prepare != nil {
		if err := s.Prepare(r, row); err != nil {
			if utils.HasResponseCode(err) {
				WriteError(w, "preparing "+s.Resource.Name(), err)
			} else {
				http.Error(w, err.Error(), http.StatusBadRequest)
			}
			return false
		}
	}
	return true
}

func (s *REST[T, P]) Create(w http.ResponseWriter, r *http.Request) {
	row := s.Resource.Template()
	if !s.decode(w, r, &row) {
		return
	}

	if err := s.Resource.Create(r.Context(), &row); err != nil {
		WriteError(w, "creating "+s.Resource.Name(), err)
		return
	}

	created, err := s.Resource.Detail(r.Context(), P(&row).PrimaryKey())
	if err != nil {
		WriteError(w, "retrieving "+s.Resource.Name(), err)
		return
	}

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, s.present(created))
}

func (s *REST[T, P]) Update(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamUint(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	scopes, err := s.scopes(r)
	if err != nil {
		WriteError(w, "updating "+s.Resource.Name(), err)
		return
	}

	var body json.RawMessage
	if !utils.ParseRequestBody(w, r, &body) {
		return
	}

	partial := r.Method == http.MethodPatch
	apply := func(row *T) error {
		if !partial {
			*row = s.Resource.Template()
		}
		if err := json.Unmarshal(body, row); err != nil {
			return fmt.Errorf("error parsing request body: %w", err)
		}
		if s.Prepare != nil {
			return s.Prepare(r, row)
		}
		return nil
	}

	updated, err := s.Resource.Update(r.Context(), id, apply, scopes...)
	if err != nil {
		WriteError(w, "updating "+s.Resource.Name(), err)
		return
	}

	utils.WriteJsonResponse(w, s.present(updated))
}

func (s *REST[T, P]) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamUint(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	scopes, err := s.scopes(r)
	if err != nil {
		WriteError(w, "deleting "+s.Resource.Name(), err)
		return
	}

	if err := s.Resource.Delete(r.Context(), id, scopes...); err != nil {
		WriteError(w, "deleting "+s.Resource.Name(), err)
		return
	}

	utils.WriteSuccess(w)
}

type BulkDeleteRequest struct {
	Ids []uint `json:"ids"`
}

type BulkDeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

func (s *REST[T, P]) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var params BulkDeleteRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	scopes, err := s.scopes(r)
	if err != nil {
		WriteError(w, "deleting "+s.Resource.Name(), err)
		return
	}

	deleted, err := s.Resource.BulkDelete(r.Context(), params.Ids, scopes...)
	if err != nil {
		WriteError(w, "deleting "+s.Resource.Name(), err)
		return
	}

	utils.WriteJsonResponse(w, BulkDeleteResponse{Deleted: deleted})
}
