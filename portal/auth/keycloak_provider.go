package auth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"coursework/portal/schema"

	"github.com/Nerzal/gocloak/v13"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type KeycloakIdentityProvider struct {
	keycloak *gocloak.GoCloak
	db       *gorm.DB
	auditLog AuditLogger

	realm                        string
	clientId                     string
	adminUsername, adminPassword string
}

func isConflict(err error) bool {
	apiErr, ok := err.(*gocloak.APIError)
	// Keycloak returns 409 if the user, realm or client already exists.
	return ok && apiErr.Code == http.StatusConflict
}

func pArg[T any](value T) *T {
	p := new(T)
	*p = value
	return p
}

var boolArg = pArg[bool]
var intArg = pArg[int]
var strArg = pArg[string]

func adminLogin(client *gocloak.GoCloak, adminUsername, adminPassword string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// The "master" realm is the default admin realm in Keycloak.
	adminToken, err := client.LoginAdmin(ctx, adminUsername, adminPassword, "master")
	if err != nil {
		return "", fmt.Errorf("error during keycloak admin login: %w", err)
	}
	return adminToken.AccessToken, nil
}

func getUserID(ctx context.Context, client *gocloak.GoCloak, adminToken, username, realmName string) (*string, error) {
	users, err := client.GetUsers(ctx, adminToken, realmName, gocloak.GetUsersParams{
		Username: &username,
		Max:      intArg(1),
		Exact:    boolArg(true),
	})
	if err != nil {
		return nil, fmt.Errorf("error retrieving user id: %w", err)
	}
	if len(users) == 1 {
		return users[0].ID, nil
	}
	return nil, nil
}

func createRealm(client *gocloak.GoCloak, adminToken, realmName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.CreateRealm(ctx, adminToken, gocloak.RealmRepresentation{
		Realm:                 &realmName,
		Enabled:               boolArg(true),
		RegistrationAllowed:   boolArg(true),
		LoginWithEmailAllowed: boolArg(true),
		AccessTokenLifespan:   intArg(int(userTokenExpiry.Seconds())),
		BruteForceProtected:   boolArg(true),
	})
	if err != nil {
		if isConflict(err) {
			slog.Info(fmt.Sprintf("KEYCLOAK: realm '%v' has already been created", realmName))
			return nil
		}
		return fmt.Errorf("error creating realm: %w", err)
	}
	return nil
}

// createClient registers the public client used for password logins from the
// portal's own login form.
func createClient(client *gocloak.GoCloak, adminToken, realm, clientId string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	clients, err := client.GetClients(ctx, adminToken, realm, gocloak.GetClientsParams{
		ClientID: &clientId,
	})
	if err != nil {
		return fmt.Errorf("error listing existing clients for realm: %w", err)
	}
	if len(clients) == 1 {
		slog.Info(fmt.Sprintf("KEYCLOAK: client '%v' already exists for realm '%v'", clientId, realm))
		return nil
	}

	_, err = client.CreateClient(ctx, adminToken, realm, gocloak.Client{
		ClientID:                  &clientId,
		Enabled:                   boolArg(true),
		PublicClient:              boolArg(true),
		DirectAccessGrantsEnabled: boolArg(true),
		StandardFlowEnabled:       boolArg(true),
		ImplicitFlowEnabled:       boolArg(false),
		ServiceAccountsEnabled:    boolArg(false),
		DefaultClientScopes:       &[]string{"profile", "email", "openid"},
	})
	if err != nil {
		if isConflict(err) {
			slog.Info(fmt.Sprintf("KEYCLOAK: client '%v' has already been created for realm '%v'", clientId, realm))
			return nil
		}
		return fmt.Errorf("error creating realm client: %w", err)
	}
	return nil
}

func createUserIfNotExists(client *gocloak.GoCloak, adminToken, username, email, password, realmName string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	existingUserId, err := getUserID(ctx, client, adminToken, username, realmName)
	if err != nil {
		return "", fmt.Errorf("error checking for existing user: %w", err)
	}
	if existingUserId != nil {
		return *existingUserId, nil
	}

	userId, err := client.CreateUser(ctx, adminToken, realmName, gocloak.User{
		Username:      &username,
		Email:         &email,
		Enabled:       boolArg(true),
		EmailVerified: boolArg(true),
		Credentials: &[]gocloak.CredentialRepresentation{
			{
				Type:      strArg("password"),
				Value:     &password,
				Temporary: boolArg(false),
			},
		},
	})
	if err != nil {
		if isConflict(err) {
			userId, err := getUserID(ctx, client, adminToken, username, realmName)
			if err != nil {
				return "", fmt.Errorf("error retrieving existing user after conflict: %w", err)
			}
			if userId == nil {
				return "", fmt.Errorf("no user found after conflict creating user")
			}
			return *userId, nil
		}
		return "", fmt.Errorf("error creating new user: %w", err)
	}

	return userId, nil
}

type KeycloakArgs struct {
	KeycloakServerUrl string
	Realm             string
	ClientId          string

	KeycloakAdminUsername string
	KeycloakAdminPassword string

	AdminUsername string
	AdminEmail    string
	AdminPassword string

	SkipTlsVerify bool
	Verbose       bool
}

func NewKeycloakIdentityProvider(db *gorm.DB, auditLog AuditLogger, args KeycloakArgs) (IdentityProvider, error) {
	client := gocloak.NewClient(args.KeycloakServerUrl)
	restyClient := client.RestyClient()
	restyClient.SetDebug(args.Verbose)
	if args.SkipTlsVerify {
		restyClient.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	adminToken, err := adminLogin(client, args.KeycloakAdminUsername, args.KeycloakAdminPassword)
	if err != nil {
		slog.Error("KEYCLOAK: admin login failed", "error", err)
		return nil, err
	}
	slog.Info("KEYCLOAK: admin login successful")

	if err := createRealm(client, adminToken, args.Realm); err != nil {
		slog.Error("KEYCLOAK: realm creation failed", "error", err)
		return nil, err
	}

	if err := createClient(client, adminToken, args.Realm, args.ClientId); err != nil {
		slog.Error("KEYCLOAK: client creation failed", "error", err)
		return nil, err
	}

	userId, err := createUserIfNotExists(client, adminToken, args.AdminUsername, args.AdminEmail, args.AdminPassword, args.Realm)
	if err != nil {
		slog.Error("KEYCLOAK: admin creation failed", "realm", args.Realm, "error", err)
		return nil, err
	}

	userUUID, err := uuid.Parse(userId)
	if err != nil {
		return nil, fmt.Errorf("invalid uuid '%v' returned from keycloak: %w", userId, err)
	}

	if err := addInitialAdminToDb(db, userUUID, args.AdminUsername, args.AdminEmail, nil); err != nil {
		slog.Error("KEYCLOAK: adding admin to db failed", "error", err)
		return nil, err
	}
	slog.Info("KEYCLOAK: identity provider initialized", "realm", args.Realm, "client", args.ClientId)

	return &KeycloakIdentityProvider{
		keycloak:      client,
		db:            db,
		auditLog:      auditLog,
		realm:         args.Realm,
		clientId:      args.ClientId,
		adminUsername: args.KeycloakAdminUsername,
		adminPassword: args.KeycloakAdminPassword,
	}, nil
}

func getToken(r *http.Request) (string, error) {
	if token := jwtauth.TokenFromHeader(r); token != "" {
		return token, nil
	}
	if token := jwtauth.TokenFromCookie(r); token != "" {
		return token, nil
	}
	return "", ErrUnauthenticated
}

// syncUser returns the local row for the keycloak identity behind the access
// token, creating it on first sight.
func (auth *KeycloakIdentityProvider) syncUser(ctx context.Context, accessToken string) (schema.User, error) {
	userInfo, err := auth.keycloak.GetUserInfo(ctx, accessToken, auth.realm)
	if err != nil {
		return schema.User{}, fmt.Errorf("unable to verify token with keycloak: %w", err)
	}

	if userInfo.Sub == nil || userInfo.Email == nil || userInfo.PreferredUsername == nil {
		slog.Error("invalid user info from keycloak, missing required fields", "userInfo", userInfo)
		return schema.User{}, fmt.Errorf("invalid user info from keycloak, missing required fields")
	}

	userId, err := uuid.Parse(*userInfo.Sub)
	if err != nil {
		return schema.User{}, fmt.Errorf("invalid uuid '%v' returned from keycloak: %w", *userInfo.Sub, err)
	}

	var user schema.User
	err = auth.db.Transaction(func(txn *gorm.DB) error {
		result := txn.Limit(1).Find(&user, "id = ? or email = ?", userId, *userInfo.Email)
		if result.Error != nil {
			slog.Error("sql error checking for existing user in keycloak identity provider", "email", *userInfo.Email, "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		if result.RowsAffected != 1 {
			user = schema.User{
				Id:       userId,
				Username: *userInfo.PreferredUsername,
				Email:    *userInfo.Email,
				IsAdmin:  false,
			}

			if result := txn.Create(&user); result.Error != nil {
				slog.Error("sql error creating new user in keycloak identity provider", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}
		return nil
	})
	if err != nil {
		return schema.User{}, err
	}

	return user, nil
}

func (auth *KeycloakIdentityProvider) middleware(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			token, err := getToken(r)
			if err != nil {
				if required {
					http.Error(w, err.Error(), http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()

			user, err := auth.syncUser(ctx, token)
			if err != nil {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				if errors.Is(err, schema.ErrDbAccessFailed) {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			reqCtx := context.WithValue(r.Context(), UserRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *KeycloakIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.middleware(true), auth.auditLog.Middleware}
}

func (auth *KeycloakIdentityProvider) OptionalAuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.middleware(false), auth.auditLog.OptionalMiddleware}
}

func (auth *KeycloakIdentityProvider) AllowDirectSignup() bool {
	return false
}

func tokenExpiration(claims *jwt.MapClaims) (time.Time, error) {
	if claims == nil {
		return time.Time{}, fmt.Errorf("no claims found in access token")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("error getting token expiration: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("no token expiration found")
	}
	return exp.Time, nil
}

func (auth *KeycloakIdentityProvider) loginResult(ctx context.Context, accessToken string) (LoginResult, error) {
	user, err := auth.syncUser(ctx, accessToken)
	if err != nil {
		return LoginResult{}, fmt.Errorf("error logging in user: %w", err)
	}

	_, claims, err := auth.keycloak.DecodeAccessToken(ctx, accessToken, auth.realm)
	if err != nil {
		return LoginResult{}, fmt.Errorf("unable to decode access token: %w", err)
	}

	expiresAt, err := tokenExpiration(claims)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{UserId: user.Id, AccessToken: accessToken, ExpiresAt: expiresAt}, nil
}

func (auth *KeycloakIdentityProvider) LoginWithPassword(login, password string) (LoginResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	token, err := auth.keycloak.Login(ctx, auth.clientId, "", auth.realm, login, password)
	if err != nil {
		slog.Info("keycloak password login failed", "login", login, "error", err)
		return LoginResult{}, ErrInvalidCredentials
	}

	return auth.loginResult(ctx, token.AccessToken)
}

func (auth *KeycloakIdentityProvider) LoginWithToken(accessToken string) (LoginResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return auth.loginResult(ctx, accessToken)
}

func (auth *KeycloakIdentityProvider) CreateUser(username, email, password string) (uuid.UUID, error) {
	adminToken, err := adminLogin(auth.keycloak, auth.adminUsername, auth.adminPassword)
	if err != nil {
		return uuid.Nil, err
	}

	userId, err := createUserIfNotExists(auth.keycloak, adminToken, username, email, password, auth.realm)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error creating new user in keycloak: %w", err)
	}

	userUUID, err := uuid.Parse(userId)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid '%v' returned from keycloak: %w", userId, err)
	}

	user := schema.User{Id: userUUID, Username: username, Email: email, IsAdmin: false}
	if err := createUserInDb(auth.db, user); err != nil {
		return uuid.Nil, fmt.Errorf("error creating new user: %w", err)
	}

	return userUUID, nil
}

func (auth *KeycloakIdentityProvider) DeleteUser(userId uuid.UUID) error {
	adminToken, err := adminLogin(auth.keycloak, auth.adminUsername, auth.adminPassword)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = auth.keycloak.DeleteUser(ctx, adminToken, auth.realm, userId.String())
	if err != nil {
		slog.Error("failed to delete user with keycloak", "user_id", userId, "error", err)
		return fmt.Errorf("failed to delete user with keycloak: %w", err)
	}

	return nil
}
