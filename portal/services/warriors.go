package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"coursework/portal/access"
	"coursework/portal/auth"
	"coursework/portal/schema"
	"coursework/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// WarriorService serves the warrior catalog: the envelope endpoints of the
// catalog API and plain CRUD for every warriors entity under /resources.
type WarriorService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider

	warriors      *access.Resource[schema.Warrior, *schema.Warrior]
	skills        *access.Resource[schema.Skill, *schema.Skill]
	occupations   *access.Resource[schema.Occupation, *schema.Occupation]
	warriorSkills *access.Resource[schema.SkillOfWarrior, *schema.SkillOfWarrior]
}

func NewWarriorService(db *gorm.DB, userAuth auth.IdentityProvider) WarriorService {
	return WarriorService{
		db:       db,
		userAuth: userAuth,
		warriors: access.New[schema.Warrior](db, access.Options[schema.Warrior]{
			Name:     "warrior",
			Preloads: []string{"Skills"},
			Rules:    []access.Rule[schema.Warrior]{validateWarrior},
			Nested:   []string{"Skills"},
		}),
		skills: access.New[schema.Skill](db, access.Options[schema.Skill]{
			Name:  "skill",
			Rules: []access.Rule[schema.Skill]{validateSkill},
		}),
		occupations: access.New[schema.Occupation](db, access.Options[schema.Occupation]{
			Name:  "occupation",
			Rules: []access.Rule[schema.Occupation]{validateOccupation},
		}),
		warriorSkills: access.New[schema.SkillOfWarrior](db, access.Options[schema.SkillOfWarrior]{
			Name:  "warrior skill",
			Rules: []access.Rule[schema.SkillOfWarrior]{validateSkillOfWarrior},
		}),
	}
}

func validateWarrior(txn *gorm.DB, w *schema.Warrior) error {
	v := access.NewValidator()
	v.OneOf("race", w.Race, schema.WarriorRaces)
	v.RequiredString("name", w.Name, 120)
	if w.Level < 0 {
		v.Fail("level", "Ensure this value is greater than or equal to 0.")
	}
	if err := v.ExistsOptional(txn, "profession", &schema.Occupation{}, w.ProfessionId); err != nil {
		return err
	}

	for i := range w.Skills {
		skill := &w.Skills[i]
		// Skill rows are always rewritten as a whole for their warrior.
		skill.Id = 0
		skill.WarriorId = w.Id
		if v.RequiredRef("skills", skill.SkillId) {
			if err := v.Exists(txn, "skills", &schema.Skill{}, skill.SkillId); err != nil {
				return err
			}
		}
		if skill.Level < 0 {
			v.Fail("skills", "Ensure every skill level is greater than or equal to 0.")
		}
	}
	return v.Err()
}

func validateSkill(txn *gorm.DB, s *schema.Skill) error {
	v := access.NewValidator()
	v.RequiredString("title", s.Title, 120)
	return v.Err()
}

func validateOccupation(txn *gorm.DB, o *schema.Occupation) error {
	v := access.NewValidator()
	v.RequiredString("title", o.Title, 120)
	v.Required("description", o.Description)
	return v.Err()
}

func validateSkillOfWarrior(txn *gorm.DB, s *schema.SkillOfWarrior) error {
	v := access.NewValidator()
	if v.RequiredRef("warrior", s.WarriorId) {
		if err := v.Exists(txn, "warrior", &schema.Warrior{}, s.WarriorId); err != nil {
			return err
		}
	}
	if v.RequiredRef("skill", s.SkillId) {
		if err := v.Exists(txn, "skill", &schema.Skill{}, s.SkillId); err != nil {
			return err
		}
	}
	if s.Level < 0 {
		v.Fail("level", "Ensure this value is greater than or equal to 0.")
	}
	return v.Err()
}

type WarriorInfo struct {
	Id         uint        `json:"id"`
	Race       string      `json:"race"`
	Name       string      `json:"name"`
	Level      int         `json:"level"`
	Profession interface{} `json:"profession"`
	Skill      interface{} `json:"skill"`
}

func skillIds(w schema.Warrior) []uint {
	ids := make([]uint, 0, len(w.Skills))
	for _, s := range w.Skills {
		ids = append(ids, s.SkillId)
	}
	return ids
}

func skillRows(w schema.Warrior) []schema.Skill {
	skills := make([]schema.Skill, 0, len(w.Skills))
	for _, s := range w.Skills {
		if s.Skill != nil {
			skills = append(skills, *s.Skill)
		}
	}
	return skills
}

func presentWarrior(w schema.Warrior) interface{} {
	return WarriorInfo{
		Id: w.Id, Race: w.Race, Name: w.Name, Level: w.Level,
		Profession: w.ProfessionId,
		Skill:      skillIds(w),
	}
}

// presentWarriorWithOccupation shows the profession by its title.
func presentWarriorWithOccupation(w schema.Warrior) interface{} {
	info := presentWarrior(w).(WarriorInfo)
	if w.Profession != nil {
		info.Profession = w.Profession.Title
	} else {
		info.Profession = nil
	}
	return info
}

func presentWarriorWithSkillTitles(w schema.Warrior) interface{} {
	info := presentWarrior(w).(WarriorInfo)
	titles := make([]string, 0, len(w.Skills))
	for _, s := range skillRows(w) {
		titles = append(titles, s.Title)
	}
	info.Skill = titles
	return info
}

func presentWarriorWithSkills(w schema.Warrior) interface{} {
	info := presentWarrior(w).(WarriorInfo)
	info.Skill = skillRows(w)
	return info
}

func presentWarriorNested(w schema.Warrior) interface{} {
	info := presentWarriorWithSkills(w).(WarriorInfo)
	if label, ok := schema.ChoiceLabel(schema.WarriorRaces, w.Race); ok {
		info.Race = label
	}
	info.Profession = w.Profession
	return info
}

func (s *WarriorService) Routes() chi.Router {
	r := chi.NewRouter()

	warriors := access.REST[schema.Warrior, *schema.Warrior]{Resource: s.warriors, Present: presentWarrior}

	r.Get("/warriors/", s.listWarriors(presentWarrior))
	r.Get("/warriors_and_occupations/", s.listWarriors(presentWarriorWithOccupation, "Profession"))
	r.Get("/warriors_and_skill_titles/", s.listWarriors(presentWarriorWithSkillTitles, "Skills.Skill"))
	r.Get("/warriors_and_skills/", s.listWarriors(presentWarriorWithSkills, "Skills.Skill"))
	r.Get("/warriors_and_skills_and_occupations/", s.listWarriors(presentWarriorNested, "Skills.Skill", "Profession"))
	r.Get("/skills/", s.ListSkills)

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Put("/warrior/update/{id}/", warriors.Update)
		r.Patch("/warrior/update/{id}/", warriors.Update)
		r.Delete("/warrior/delete/{id}/", s.DeleteWarrior)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly())

		r.Post("/occupation/create/", s.CreateOccupation)
		r.Post("/skill/create/", s.CreateSkill)
	})

	r.Mount("/resources", s.resourceRoutes())

	return r
}

func (s *WarriorService) resourceRoutes() chi.Router {
	r := chi.NewRouter()

	warriors := access.REST[schema.Warrior, *schema.Warrior]{Resource: s.warriors, Present: presentWarrior}
	warriorSkills := access.REST[schema.SkillOfWarrior, *schema.SkillOfWarrior]{Resource: s.warriorSkills}
	skills := access.REST[schema.Skill, *schema.Skill]{Resource: s.skills}
	occupations := access.REST[schema.Occupation, *schema.Occupation]{Resource: s.occupations}

	writes := access.OpCreate | access.OpUpdate | access.OpDelete | access.OpBulkDelete
	mount := func(path string, register func(r chi.Router, ops access.Op), adminOnly bool) {
		r.Route(path, func(r chi.Router) {
			register(r, access.OpList|access.OpDetail)
			r.Group(func(r chi.Router) {
				r.Use(s.userAuth.AuthMiddleware()...)
				if adminOnly {
					r.Use(auth.AdminOnly())
				}
				register(r, writes)
			})
		})
	}

	mount("/warriors", warriors.Register, false)
	mount("/warriorskills", warriorSkills.Register, false)
	mount("/skills", skills.Register, true)
	mount("/occupations", occupations.Register, true)

	return r
}

func (s *WarriorService) listWarriors(present access.Presenter[schema.Warrior], preloads ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		warriors, err := s.warriors.List(r.Context(), access.Preload(preloads...))
		if err != nil {
			access.WriteError(w, "listing warriors", err)
			return
		}

		out := make([]interface{}, 0, len(warriors))
		for _, warrior := range warriors {
			out = append(out, present(warrior))
		}
		utils.WriteJsonResponse(w, map[string]interface{}{"Warriors": out})
	}
}

func (s *WarriorService) DeleteWarrior(w http.ResponseWriter, r *http.Request) {
	warriorId, err := utils.URLParamUint(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.warriors.Delete(r.Context(), warriorId); err != nil {
		access.WriteError(w, "deleting warrior", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *WarriorService) ListSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := s.skills.List(r.Context())
	if err != nil {
		access.WriteError(w, "listing skills", err)
		return
	}

	utils.WriteJsonResponse(w, map[string]interface{}{"Skills": skills})
}

// envelope reads a create request of the form {"<key>": {...}}.
func envelope(w http.ResponseWriter, r *http.Request, key string, dest interface{}) bool {
	var body map[string]json.RawMessage
	if !utils.ParseRequestBody(w, r, &body) {
		return false
	}

	raw, ok := body[key]
	if !ok || string(raw) == "null" {
		access.WriteError(w, "parsing request body", access.NewValidationError(key, "This field is required."))
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		slog.Error("error parsing request body", "key", key, "error", err)
		http.Error(w, fmt.Sprintf("error parsing request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

type successResponse struct {
	Success string `json:"Success"`
}

func (s *WarriorService) CreateOccupation(w http.ResponseWriter, r *http.Request) {
	var occupation schema.Occupation
	if !envelope(w, r, "occupation", &occupation) {
		return
	}

	if err := s.occupations.Create(r.Context(), &occupation); err != nil {
		access.WriteError(w, "creating occupation", err)
		return
	}

	utils.WriteJsonResponse(w, successResponse{Success: fmt.Sprintf("Occupation '%v' created successfully.", occupation.Title)})
}

func (s *WarriorService) CreateSkill(w http.ResponseWriter, r *http.Request) {
	var skill schema.Skill
	if !envelope(w, r, "skill", &skill) {
		return
	}

	if err := s.skills.Create(r.Context(), &skill); err != nil {
		access.WriteError(w, "creating skill", err)
		return
	}

	utils.WriteJsonResponse(w, successResponse{Success: fmt.Sprintf("Skill '%v' created successfully.", skill.Title)})
}
