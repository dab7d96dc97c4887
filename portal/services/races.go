package services

import (
	"fmt"
	"net/http"
	"net/url"

	"coursework/portal/access"
	"coursework/portal/auth"
	"coursework/portal/schema"
	"coursework/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const alreadyRegistered = "already registered for this race"

type RaceService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	views    access.Renderer

	races         *access.Resource[schema.Race, *schema.Race]
	registrations *access.Resource[schema.Registration, *schema.Registration]
	comments      *access.Resource[schema.Comment, *schema.Comment]
}

func NewRaceService(db *gorm.DB, userAuth auth.IdentityProvider, views access.Renderer) RaceService {
	return RaceService{
		db:       db,
		userAuth: userAuth,
		views:    views,
		races: access.New[schema.Race](db, access.Options[schema.Race]{
			Name:     "race",
			Order:    "date, time, id",
			Rules:    []access.Rule[schema.Race]{validateRace},
			Template: schema.NewRace,
		}),
		registrations: access.New[schema.Registration](db, access.Options[schema.Registration]{
			Name:     "registration",
			Preloads: []string{"Race", "User"},
			Rules:    []access.Rule[schema.Registration]{validateRegistration},
			Conflict: alreadyRegistered,
		}),
		comments: access.New[schema.Comment](db, access.Options[schema.Comment]{
			Name:     "comment",
			Order:    "date, id",
			Preloads: []string{"User"},
			Rules:    []access.Rule[schema.Comment]{validateComment},
		}),
	}
}

func validateRace(txn *gorm.DB, race *schema.Race) error {
	v := access.NewValidator()
	v.RequiredString("name", race.Name, 200)
	v.RequiredDate("date", race.Date)
	v.RequiredTime("time", race.Time)
	v.RequiredString("result", race.Result, 200)
	return v.Err()
}

func validateRegistration(txn *gorm.DB, reg *schema.Registration) error {
	v := access.NewValidator()
	if v.RequiredRef("race", reg.RaceId) {
		if err := v.Exists(txn, "race", &schema.Race{}, reg.RaceId); err != nil {
			return err
		}
	}
	if err := v.Err(); err != nil {
		return err
	}

	conditions := map[string]interface{}{"race_id": reg.RaceId, "user_id": reg.UserId}
	if err := v.Unique(txn, access.NonFieldErrors, alreadyRegistered, &schema.Registration{}, reg.Id, conditions); err != nil {
		return err
	}
	return v.Err()
}

func validateComment(txn *gorm.DB, comment *schema.Comment) error {
	v := access.NewValidator()
	if v.RequiredRef("race", comment.RaceId) {
		if err := v.Exists(txn, "race", &schema.Race{}, comment.RaceId); err != nil {
			return err
		}
	}
	v.Required("text", comment.Text)
	v.OneOf("comment_type", comment.CommentType, schema.CommentTypes)
	v.Between("rating", comment.Rating, schema.MinRating, schema.MaxRating)
	return v.Err()
}

// ownedBy limits registrations to those of the caller, so registrations of
// other users look the same as missing ones.
func ownedBy(r *http.Request) ([]access.Scope, error) {
	user, err := caller(r)
	if err != nil {
		return nil, err
	}
	return []access.Scope{access.Where("user_id = ?", user.Id)}, nil
}

func setCaller(r *http.Request, reg *schema.Registration) error {
	user, err := caller(r)
	if err != nil {
		return err
	}
	reg.UserId = user.Id
	return nil
}

func prepareComment(r *http.Request, comment *schema.Comment) error {
	user, err := caller(r)
	if err != nil {
		return err
	}
	comment.UserId = user.Id
	comment.Date = schema.Today()
	return nil
}

// Routes serves the JSON API. Races are read by anyone and written by admins,
// registrations are private to their owner and comments are added by any
// signed-in user.
func (s *RaceService) Routes() chi.Router {
	r := chi.NewRouter()

	races := access.REST[schema.Race, *schema.Race]{Resource: s.races}
	r.Route("/races", func(r chi.Router) {
		races.Register(r, access.OpList|access.OpDetail)

		r.Group(func(r chi.Router) {
			r.Use(s.userAuth.AuthMiddleware()...)
			r.Use(auth.AdminOnly())

			races.Register(r, access.OpCreate|access.OpUpdate|access.OpDelete|access.OpBulkDelete)
		})
	})

	registrations := access.REST[schema.Registration, *schema.Registration]{
		Resource: s.registrations,
		Scope:    ownedBy,
		Prepare:  setCaller,
	}
	r.Route("/registrations", func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		registrations.Register(r, access.OpList|access.OpDetail|access.OpCreate|access.OpDelete)
	})

	comments := access.REST[schema.Comment, *schema.Comment]{Resource: s.comments, Prepare: prepareComment}
	r.Route("/comments", func(r chi.Router) {
		comments.Register(r, access.OpList|access.OpDetail)

		r.Group(func(r chi.Router) {
			r.Use(s.userAuth.AuthMiddleware()...)

			comments.Register(r, access.OpCreate)
		})
	})

	return r
}

// PageRoutes serves the server-rendered race pages.
func (s *RaceService) PageRoutes(loginPath string) chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.OptionalAuthMiddleware()...)

	r.Get("/", s.RaceList)
	r.Get("/race/{id}/", s.RaceDetail)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireLogin(loginPath))

		r.Post("/register/", s.Register)
		r.Get("/race/{id}/delete/", s.DeleteRegistrationForm)
		r.Post("/race/{id}/delete/", s.DeleteRegistration)
		r.Get("/comment/add/", s.CommentForm)
		r.Post("/comment/add/", s.AddComment)
	})

	return r
}

func (s *RaceService) RaceList(w http.ResponseWriter, r *http.Request) {
	races, err := s.races.List(r.Context())
	if err != nil {
		s.views.Error(w, r, err)
		return
	}

	registrations := map[uint]schema.Registration{}
	if user := auth.CallerOrNil(r); user != nil {
		own, err := s.registrations.List(r.Context(), access.Where("user_id = ?", user.Id))
		if err != nil {
			s.views.Error(w, r, err)
			return
		}
		for _, reg := range own {
			registrations[reg.RaceId] = reg
		}
	}

	s.views.Render(w, r, http.StatusOK, "race_list", map[string]interface{}{
		"Title":         "Races",
		"Races":         races,
		"Registrations": registrations,
	})
}

func (s *RaceService) RaceDetail(w http.ResponseWriter, r *http.Request) {
	raceId, err := utils.URLParamUint(r, "id")
	if err != nil {
		s.views.Error(w, r, utils.CodedError(err, http.StatusNotFound))
		return
	}

	race, err := s.races.Detail(r.Context(), raceId)
	if err != nil {
		s.views.Error(w, r, err)
		return
	}

	registrations, err := s.registrations.List(r.Context(), access.Where("race_id = ?", raceId))
	if err != nil {
		s.views.Error(w, r, err)
		return
	}

	comments, err := s.comments.List(r.Context(), access.Where("race_id = ?", raceId))
	if err != nil {
		s.views.Error(w, r, err)
		return
	}

	s.views.Render(w, r, http.StatusOK, "race_detail", map[string]interface{}{
		"Title":         race.Name,
		"Race":          race,
		"Registrations": registrations,
		"Comments":      comments,
		"CommentTypes":  schema.CommentTypes,
	})
}

func (s *RaceService) Register(w http.ResponseWriter, r *http.Request) {
	user, err := caller(r)
	if err != nil {
		s.views.Error(w, r, err)
		return
	}

	raceId, err := utils.ParseId(r.PostFormValue("race_id"))
	if err != nil {
		s.views.Error(w, r, utils.CodedError(err, http.StatusNotFound))
		return
	}

	race, err := s.races.Detail(r.Context(), raceId)
	if err != nil {
		s.views.Error(w, r, err)
		return
	}

	reg := schema.Registration{RaceId: race.Id, UserId: user.Id}
	if err := s.registrations.Create(r.Context(), &reg); err != nil {
		if !isAlreadyRegistered(err) {
			s.views.Error(w, r, err)
			return
		}
		s.views.Flash(w, r, access.FlashError, fmt.Sprintf("You are %v \"%v\".", alreadyRegistered, race.Name))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	s.views.Flash(w, r, access.FlashSuccess, fmt.Sprintf("You are registered for \"%v\".", race.Name))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *RaceService) ownRegistration(r *http.Request) (schema.Registration, error) {
	scopes, err := ownedBy(r)
	if err != nil {
		return schema.Registration{}, err
	}

	regId, err := utils.URLParamUint(r, "id")
	if err != nil {
		return schema.Registration{}, utils.CodedError(err, http.StatusNotFound)
	}

	return s.registrations.Detail(r.Context(), regId, scopes...)
}

func (s *RaceService) DeleteRegistrationForm(w http.ResponseWriter, r *http.Request) {
	reg, err := s.ownRegistration(r)
	if err != nil {
		s.views.Error(w, r, err)
		return
	}

	s.views.Render(w, r, http.StatusOK, "registration_delete", map[string]interface{}{
		"Title":        "Cancel registration",
		"Registration": reg,
	})
}

func (s *RaceService) DeleteRegistration(w http.ResponseWriter, r *http.Request) {
	scopes, err := ownedBy(r)
	if err != nil {
		s.views.Error(w, r, err)
		return
	}

	regId, err := utils.URLParamUint(r, "id")
	if err != nil {
		s.views.Error(w, r, utils.CodedError(err, http.StatusNotFound))
		return
	}

	if err := s.registrations.Delete(r.Context(), regId, scopes...); err != nil {
		s.views.Error(w, r, err)
		return
	}

	s.views.Flash(w, r, access.FlashSuccess, "Your registration was cancelled.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *RaceService) renderCommentForm(w http.ResponseWriter, r *http.Request, status int, values url.Values, verr *access.ValidationError) {
	races, err := s.races.List(r.Context())
	if err != nil {
		s.views.Error(w, r, err)
		return
	}

	flat := map[string]string{}
	for _, field := range []string{"race", "text", "comment_type", "rating"} {
		flat[field] = values.Get(field)
	}
	errs := map[string][]string{}
	if verr != nil {
		errs = verr.Fields
	}

	s.views.Render(w, r, status, "comment_form", map[string]interface{}{
		"Title":          "Add a comment",
		"Races":          races,
		"CommentTypes":   schema.CommentTypes,
		"Values":         flat,
		"Errors":         errs,
		"NonFieldErrors": errs[access.NonFieldErrors],
	})
}

func (s *RaceService) CommentForm(w http.ResponseWriter, r *http.Request) {
	values := url.Values{}
	values.Set("race", r.URL.Query().Get("race"))
	values.Set("comment_type", schema.PositiveComment)
	s.renderCommentForm(w, r, http.StatusOK, values, nil)
}

func decodeComment(form url.Values, comment *schema.Comment) *access.ValidationError {
	f := access.NewFormReader(form)
	comment.RaceId = f.Ref("race")
	comment.Text = f.String("text")
	comment.CommentType = f.String("comment_type")
	comment.Rating = f.Int("rating")
	return f.Err()
}

func (s *RaceService) AddComment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("error parsing form: %v", err), http.StatusBadRequest)
		return
	}

	var comment schema.Comment
	if verr := decodeComment(r.PostForm, &comment); verr != nil {
		s.renderCommentForm(w, r, http.StatusBadRequest, r.PostForm, verr)
		return
	}
	if err := prepareComment(r, &comment); err != nil {
		s.views.Error(w, r, err)
		return
	}

	if err := s.comments.Create(r.Context(), &comment); err != nil {
		if verr, ok := access.AsValidationError(err); ok {
			s.renderCommentForm(w, r, http.StatusBadRequest, r.PostForm, verr)
			return
		}
		s.views.Error(w, r, err)
		return
	}

	http.Redirect(w, r, fmt.Sprintf("/race/%d/", comment.RaceId), http.StatusSeeOther)
}

// isAlreadyRegistered reports whether err is the duplicate registration
// failure, from either the pre-check or the unique index.
func isAlreadyRegistered(err error) bool {
	verr, ok := access.AsValidationError(err)
	if !ok {
		return false
	}
	for _, msg := range verr.For(access.NonFieldErrors) {
		if msg == alreadyRegistered {
			return true
		}
	}
	return false
}
