package services

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"coursework/portal/access"
	"coursework/portal/auth"
	"coursework/portal/schema"
	"coursework/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var entityRowsMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "portal_entity_rows",
	Help: "Number of stored rows per entity",
}, []string{"entity"})

// Portal aggregates every service of the coursework portal behind one router.
type Portal struct {
	user     UserService
	accounts AccountService
	races    RaceService
	clinic   ClinicService
	cars     CarService
	warriors WarriorService

	userAuth auth.IdentityProvider
	db       *gorm.DB
	stop     chan bool
}

func NewPortal(db *gorm.DB, userAuth auth.IdentityProvider, views access.Renderer, secureCookies bool) Portal {
	return Portal{
		user:     UserService{db: db, userAuth: userAuth},
		accounts: NewAccountService(userAuth, views, secureCookies),
		races:    NewRaceService(db, userAuth, views),
		clinic:   NewClinicService(db, userAuth),
		cars:     NewCarService(db, userAuth, views),
		warriors: NewWarriorService(db, userAuth),
		userAuth: userAuth,
		db:       db,
		stop:     make(chan bool, 1),
	}
}

func (p *Portal) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Mount("/user", p.user.Routes())
		r.Mount("/races", p.races.Routes())
		r.Mount("/clinic", p.clinic.Routes())
		r.Mount("/cars", p.cars.Routes())
		r.Mount("/warriors", p.warriors.Routes())
	})

	// Server rendered pages show the signed in user when there is one.
	pages := chi.Chain(p.userAuth.OptionalAuthMiddleware()...)
	r.Mount("/accounts", pages.Handler(p.accounts.Routes()))
	r.Mount("/cars", pages.Handler(p.cars.CarPages().Routes()))
	r.Mount("/owners", pages.Handler(p.cars.OwnerPages().Routes()))
	r.Mount("/", p.races.PageRoutes(LoginPath))

	return r
}

var countedEntities = map[string]interface{}{
	"user":         &schema.User{},
	"race":         &schema.Race{},
	"registration": &schema.Registration{},
	"comment":      &schema.Comment{},
	"patient":      &schema.Patient{},
	"visit":        &schema.Visit{},
	"car":          &schema.Car{},
	"owner":        &schema.Owner{},
	"warrior":      &schema.Warrior{},
}

func (p *Portal) countEntities() {
	for entity, model := range countedEntities {
		var count int64
		if result := p.db.Model(model).Count(&count); result.Error != nil {
			slog.Error("entity count: sql error counting rows", "entity", entity, "error", result.Error)
			continue
		}
		entityRowsMetric.WithLabelValues(entity).Set(float64(count))
	}
}

// EntityCountSync refreshes the row count gauges every interval until
// StopEntityCountSync is called.
func (p *Portal) EntityCountSync(interval time.Duration) {
	slog.Info("entity count: starting")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.countEntities()
	for {
		select {
		case <-ticker.C:
			p.countEntities()
		case <-p.stop:
			slog.Info("entity count: process stopped")
			return
		}
	}
}

func (p *Portal) StopEntityCountSync() {
	close(p.stop)
}
