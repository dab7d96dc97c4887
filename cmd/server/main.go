package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"coursework/portal/auth"
	"coursework/portal/fixtures"
	"coursework/portal/schema"
	"coursework/portal/services"
	"coursework/portal/views"
	"coursework/utils/logging"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type KeycloakEnv struct {
	ServerUrl     string `env:"KEYCLOAK_SERVER_URL"`
	Realm         string `env:"KEYCLOAK_REALM" envDefault:"coursework"`
	ClientId      string `env:"KEYCLOAK_CLIENT_ID" envDefault:"coursework-portal"`
	AdminUsername string `env:"KEYCLOAK_ADMIN_USER"`
	AdminPassword string `env:"KEYCLOAK_ADMIN_PASSWORD"`
	SkipTlsVerify bool   `env:"KEYCLOAK_SKIP_TLS_VERIFY"`
}

type PortalEnv struct {
	DbDialect   string `env:"DB_DIALECT" envDefault:"sqlite"`
	DatabaseUri string `env:"DATABASE_URI,required"`

	JwtSecret     string `env:"JWT_SECRET,required"`
	SessionSecret string `env:"SESSION_SECRET,required"`
	SecureCookies bool   `env:"SECURE_COOKIES"`

	AdminUsername string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminEmail    string `env:"ADMIN_MAIL,required"`
	AdminPassword string `env:"ADMIN_PASSWORD,required"`

	IdentityProvider string      `env:"IDENTITY_PROVIDER" envDefault:"basic"`
	Keycloak         KeycloakEnv `env:""`

	LogDir         string   `env:"LOG_DIR" envDefault:"logs"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

/**
 * ==========================================================================
 * ==== All variables that are used by the portal must be loaded here.   ====
 * ==== This is to make the data flow clear so that a user can see what  ====
 * ==== variables are exposed, and how the values are propagated through ====
 * ==== the system.                                                      ====
 * ==========================================================================
 */
func loadEnv() (*PortalEnv, error) {
	cfg := &PortalEnv{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	switch cfg.IdentityProvider {
	case "basic":
	case "keycloak":
		if cfg.Keycloak.ServerUrl == "" || cfg.Keycloak.AdminUsername == "" || cfg.Keycloak.AdminPassword == "" {
			return nil, fmt.Errorf("KEYCLOAK_SERVER_URL, KEYCLOAK_ADMIN_USER and KEYCLOAK_ADMIN_PASSWORD must be specified when using the keycloak identity provider")
		}
	default:
		return nil, fmt.Errorf("invalid IDENTITY_PROVIDER '%v', expected basic or keycloak", cfg.IdentityProvider)
	}

	return cfg, nil
}

func (env *PortalEnv) postgresDsn() (string, error) {
	parts, err := url.Parse(env.DatabaseUri)
	if err != nil {
		return "", fmt.Errorf("error parsing db uri: %w", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port()), nil
}

func withParam(dsn, param string) string {
	if strings.Contains(dsn, param) {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}

func (env *PortalEnv) dialector() (gorm.Dialector, error) {
	switch env.DbDialect {
	case "sqlite":
		return sqlite.Open(withParam(env.DatabaseUri, "_foreign_keys=on")), nil
	case "postgres":
		dsn, err := env.postgresDsn()
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(withParam(env.DatabaseUri, "parseTime=true")), nil
	}
	return nil, fmt.Errorf("invalid DB_DIALECT '%v', expected sqlite, postgres or mysql", env.DbDialect)
}

func initLogging(logFile *os.File) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	slog.SetDefault(slog.New(slog.NewJSONHandler(io.MultiWriter(logFile, os.Stderr), logging.GetVictoriaLogsOptions(false))))
	slog.Info("logging initialized", "log_file", logFile.Name(), logging.Code(logging.SYSTEM))
}

func initDb(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	if err := schema.Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func initIdentityProvider(db *gorm.DB, env *PortalEnv, auditLog io.Writer) (auth.IdentityProvider, error) {
	if env.IdentityProvider == "keycloak" {
		return auth.NewKeycloakIdentityProvider(
			db,
			auth.NewAuditLogger(auditLog),
			auth.KeycloakArgs{
				KeycloakServerUrl:     env.Keycloak.ServerUrl,
				Realm:                 env.Keycloak.Realm,
				ClientId:              env.Keycloak.ClientId,
				KeycloakAdminUsername: env.Keycloak.AdminUsername,
				KeycloakAdminPassword: env.Keycloak.AdminPassword,
				AdminUsername:         env.AdminUsername,
				AdminEmail:            env.AdminEmail,
				AdminPassword:         env.AdminPassword,
				SkipTlsVerify:         env.Keycloak.SkipTlsVerify,
			},
		)
	}

	return auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(auditLog),
		auth.BasicProviderArgs{
			Secret:        []byte(env.JwtSecret),
			AdminUsername: env.AdminUsername,
			AdminEmail:    env.AdminEmail,
			AdminPassword: env.AdminPassword,
		},
	)
}

// The reason we have a separate runApp function is because the defer calls don't
// run if we exit with log.Fatalf, so instead we return an err here and fail outside
func runApp() error {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")
	loadFixtures := flag.Bool("fixtures", false, "If specified the seed fixtures are inserted at startup.")
	fixturesFile := flag.String("fixtures_file", "", "YAML file with the fixtures to insert, the bundled seed is used if not specified.")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}
	env, err := loadEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := os.MkdirAll(env.LogDir, 0777); err != nil {
		return fmt.Errorf("error creating log dir: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(env.LogDir, "portal.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(env.LogDir, "audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return fmt.Errorf("error opening audit log file: %w", err)
	}
	defer auditLog.Close()

	initLogging(logFile)

	dialector, err := env.dialector()
	if err != nil {
		return err
	}
	db, err := initDb(dialector)
	if err != nil {
		return err
	}

	if *loadFixtures {
		seed, err := fixtures.Load(*fixturesFile)
		if err != nil {
			return err
		}
		if _, err := fixtures.Apply(db, seed); err != nil {
			return fmt.Errorf("error applying fixtures: %w", err)
		}
	}

	identityProvider, err := initIdentityProvider(db, env, auditLog)
	if err != nil {
		return fmt.Errorf("error creating %v identity provider: %w", env.IdentityProvider, err)
	}

	renderer, err := views.NewRenderer([]byte(env.SessionSecret), env.SecureCookies)
	if err != nil {
		return fmt.Errorf("error loading page templates: %w", err)
	}

	portal := services.NewPortal(db, identityProvider, renderer, env.SecureCookies)

	go portal.EntityCountSync(time.Minute)
	defer portal.StopEntityCountSync()

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   env.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/", portal.Routes())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("HTTP server Shutdown", "err", err)
		}
		close(idleConnsClosed)
	}()

	slog.Info("starting server", "port", *port, logging.Code(logging.SYSTEM))
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve returned error: %w", err)
	}

	<-idleConnsClosed
	slog.Info("server stopped")
	return nil
}

func main() {
	if err := runApp(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}
