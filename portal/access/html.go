package access

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"coursework/portal/schema"
	"coursework/utils"

	"github.com/go-chi/chi/v5"
)

// Renderer draws server-side pages and carries flash messages across the
// redirect that follows a successful form submission.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request, status int, page string, data map[string]interface{})
	Flash(w http.ResponseWriter, r *http.Request, kind, message string)
	Error(w http.ResponseWriter, r *http.Request, err error)
}

const (
	FlashSuccess = "success"
	FlashError   = "error"
)

type Column[T any] struct {
	Label string
	Value func(row T) string
}

type Field struct {
	Name     string
	Label    string
	Kind     string // text, date, number or select
	Choices  []schema.Choice
	Required bool
}

type Form[T any] struct {
	Fields []Field
	// Values fills the form from a stored row.
	Values func(row T) FormValues
	// Decode reads a submission onto row, reporting inputs it cannot parse.
	Decode func(form url.Values, row *T) *ValidationError
}

// HTML serves list, detail, create, update, delete and bulk delete pages for
// one resource:
//
//	GET       /              list with a bulk delete form
//	GET       /{id}/         detail
//	GET,POST  /create/       form
//	GET,POST  /{id}/update/  form
//	GET,POST  /{id}/delete/  confirmation
//	GET,POST  /delete/       bulk confirmation, form field SelectField
//
// Everything but the list and detail pages runs behind Writers.
type HTML[T any, P Model[T]] struct {
	Resource *Resource[T, P]
	Renderer Renderer

	Title       string
	BasePath    string
	SelectField string

	Label   func(row T) string
	Columns []Column[T]
	// Details are the rows of the detail page, Columns if unset.
	Details []Column[T]
	Form    Form[T]

	Writers chi.Middlewares
}

func (h *HTML[T, P]) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{id}/", h.Detail)

	r.Group(func(r chi.Router) {
		r.Use(h.Writers...)

		r.Get("/create/", h.CreateForm)
		r.Post("/create/", h.Create)
		r.Get("/delete/", h.BulkDeleteForm)
		r.Post("/delete/", h.BulkDelete)

		r.Get("/{id}/update/", h.UpdateForm)
		r.Post("/{id}/update/", h.Update)
		r.Get("/{id}/delete/", h.DeleteForm)
		r.Post("/{id}/delete/", h.Delete)
	})

	return r
}

type htmlRow struct {
	Id    uint
	Label string
	Cells []string
}

type htmlField struct {
	Field
	Value  string
	Errors []string
}

func (h *HTML[T, P]) path(parts ...interface{}) string {
	path := h.BasePath + "/"
	for _, part := range parts {
		path += fmt.Sprintf("%v/", part)
	}
	return path
}

func (h *HTML[T, P]) headers() []string {
	labels := make([]string, 0, len(h.Columns))
	for _, col := range h.Columns {
		labels = append(labels, col.Label)
	}
	return labels
}

func (h *HTML[T, P]) rows(rows []T) []htmlRow {
	out := make([]htmlRow, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, 0, len(h.Columns))
		for _, col := range h.Columns {
			cells = append(cells, col.Value(row))
		}
		out = append(out, htmlRow{Id: P(&row).PrimaryKey(), Label: h.Label(row), Cells: cells})
	}
	return out
}

func (h *HTML[T, P]) page(extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"Title":    h.Title,
		"BasePath": h.path(),
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func (h *HTML[T, P]) loadRow(w http.ResponseWriter, r *http.Request) (T, bool) {
	var row T
	id, err := utils.URLParamUint(r, "id")
	if err != nil {
		h.Renderer.Error(w, r, utils.CodedError(err, http.StatusNotFound))
		return row, false
	}
	row, err = h.Resource.Detail(r.Context(), id)
	if err != nil {
		h.Renderer.Error(w, r, err)
		return row, false
	}
	return row, true
}

func (h *HTML[T, P]) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Resource.List(r.Context())
	if err != nil {
		h.Renderer.Error(w, r, err)
		return
	}

	h.Renderer.Render(w, r, http.StatusOK, "entity_list", h.page(map[string]interface{}{
		"Headers":     h.headers(),
		"Rows":        h.rows(rows),
		"SelectField": h.SelectField,
	}))
}

func (h *HTML[T, P]) Detail(w http.ResponseWriter, r *http.Request) {
	row, ok := h.loadRow(w, r)
	if !ok {
		return
	}

	columns := h.Details
	if len(columns) == 0 {
		columns = h.Columns
	}
	fields := make([]htmlField, 0, len(columns))
	for _, col := range columns {
		fields = append(fields, htmlField{Field: Field{Label: col.Label}, Value: col.Value(row)})
	}

	id := P(&row).PrimaryKey()
	h.Renderer.Render(w, r, http.StatusOK, "entity_detail", h.page(map[string]interface{}{
		"Label":      h.Label(row),
		"Fields":     fields,
		"UpdatePath": h.path(id, "update"),
		"DeletePath": h.path(id, "delete"),
	}))
}

func (h *HTML[T, P]) renderForm(w http.ResponseWriter, r *http.Request, status int, action string, values url.Values, verr *ValidationError) {
	fields := make([]htmlField, 0, len(h.Form.Fields))
	var nonField []string
	if verr != nil {
		nonField = verr.For(NonFieldErrors)
	}
	for _, f := range h.Form.Fields {
		field := htmlField{Field: f, Value: values.Get(f.Name)}
		if verr != nil {
			field.Errors = verr.For(f.Name)
		}
		fields = append(fields, field)
	}

	h.Renderer.Render(w, r, status, "entity_form", h.page(map[string]interface{}{
		"Action":         action,
		"Fields":         fields,
		"NonFieldErrors": nonField,
	}))
}

func (h *HTML[T, P]) CreateForm(w http.ResponseWriter, r *http.Request) {
	values := url.Values{}
	if h.Form.Values != nil {
		values = url.Values(h.Form.Values(h.Resource.Template()))
	}
	h.renderForm(w, r, http.StatusOK, h.path("create"), values, nil)
}

func (h *HTML[T, P]) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("error parsing form: %v", err), http.StatusBadRequest)
		return
	}

	row := h.Resource.Template()
	if verr := h.Form.Decode(r.PostForm, &row); verr != nil {
		h.renderForm(w, r, http.StatusBadRequest, h.path("create"), r.PostForm, verr)
		return
	}

	if err := h.Resource.Create(r.Context(), &row); err != nil {
		if verr, ok := AsValidationError(err); ok {
			h.renderForm(w, r, http.StatusBadRequest, h.path("create"), r.PostForm, verr)
			return
		}
		h.Renderer.Error(w, r, err)
		return
	}

	h.Renderer.Flash(w, r, FlashSuccess, fmt.Sprintf("%v created.", h.Label(row)))
	http.Redirect(w, r, h.path(), http.StatusSeeOther)
}

func (h *HTML[T, P]) UpdateForm(w http.ResponseWriter, r *http.Request) {
	row, ok := h.loadRow(w, r)
	if !ok {
		return
	}
	h.renderForm(w, r, http.StatusOK, h.path(P(&row).PrimaryKey(), "update"), url.Values(h.Form.Values(row)), nil)
}

func (h *HTML[T, P]) Update(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamUint(r, "id")
	if err != nil {
		h.Renderer.Error(w, r, utils.CodedError(err, http.StatusNotFound))
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("error parsing form: %v", err), http.StatusBadRequest)
		return
	}

	action := h.path(id, "update")
	apply := func(row *T) error {
		*row = h.Resource.Template()
		if verr := h.Form.Decode(r.PostForm, row); verr != nil {
			return verr
		}
		return nil
	}

	updated, err := h.Resource.Update(r.Context(), id, apply)
	if err != nil {
		if verr, ok := AsValidationError(err); ok {
			h.renderForm(w, r, http.StatusBadRequest, action, r.PostForm, verr)
			return
		}
		h.Renderer.Error(w, r, err)
		return
	}

	h.Renderer.Flash(w, r, FlashSuccess, fmt.Sprintf("%v updated.", h.Label(updated)))
	http.Redirect(w, r, h.path(), http.StatusSeeOther)
}

func (h *HTML[T, P]) DeleteForm(w http.ResponseWriter, r *http.Request) {
	row, ok := h.loadRow(w, r)
	if !ok {
		return
	}

	id := P(&row).PrimaryKey()
	h.Renderer.Render(w, r, http.StatusOK, "entity_confirm_delete", h.page(map[string]interface{}{
		"Label":  h.Label(row),
		"Action": h.path(id, "delete"),
		"Cancel": h.path(id),
	}))
}

func (h *HTML[T, P]) Delete(w http.ResponseWriter, r *http.Request) {
	row, ok := h.loadRow(w, r)
	if !ok {
		return
	}

	if err := h.Resource.Delete(r.Context(), P(&row).PrimaryKey()); err != nil {
		h.Renderer.Error(w, r, err)
		return
	}

	h.Renderer.Flash(w, r, FlashSuccess, fmt.Sprintf("%v deleted.", h.Label(row)))
	http.Redirect(w, r, h.path(), http.StatusSeeOther)
}

func (h *HTML[T, P]) BulkDeleteForm(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Resource.List(r.Context())
	if err != nil {
		h.Renderer.Error(w, r, err)
		return
	}

	h.Renderer.Render(w, r, http.StatusOK, "entity_bulk_delete", h.page(map[string]interface{}{
		"Rows":        h.rows(rows),
		"Action":      h.path("delete"),
		"SelectField": h.SelectField,
	}))
}

// BulkDelete removes the selected rows. Selections that are not valid ids are
// ignored, as are ids that no longer exist.
func (h *HTML[T, P]) BulkDelete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("error parsing form: %v", err), http.StatusBadRequest)
		return
	}

	ids := make([]uint, 0, len(r.PostForm[h.SelectField]))
	for _, value := range r.PostForm[h.SelectField] {
		id, err := strconv.ParseUint(value, 10, 64)
		if err != nil || id == 0 {
			continue
		}
		ids = append(ids, uint(id))
	}

	deleted, err := h.Resource.BulkDelete(r.Context(), ids)
	if err != nil {
		h.Renderer.Error(w, r, err)
		return
	}

	if deleted > 0 {
		h.Renderer.Flash(w, r, FlashSuccess, fmt.Sprintf("%d %v deleted.", deleted, h.Title))
	}
	http.Redirect(w, r, h.path(), http.StatusSeeOther)
}
