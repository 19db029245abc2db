// Package auth owns credentials, token issuance, and permission grants.
// Mutating service operations require a Grant value; grants can only be
// produced by Manager.Authorize, so a call site cannot fabricate one.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/agastya71/mysl-pos-project-sub005/internal/domain"
	"github.com/agastya71/mysl-pos-project-sub005/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
)

type Permission string

const (
	PermSaleCreate        Permission = "sale.create"
	PermSaleVoid          Permission = "sale.void"
	PermPOEdit            Permission = "po.edit"
	PermPOApprove         Permission = "po.approve"
	PermPOReceive         Permission = "po.receive"
	PermInventoryAdjust   Permission = "inventory.adjust"
	PermStoredValueAdjust Permission = "storedvalue.adjust"
	PermCatalogManage     Permission = "catalog.manage"
	PermUserManage        Permission = "user.manage"
	PermAuditRead         Permission = "audit.read"
)

const (
	RoleCashier = "cashier"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

var rolePermissions = map[string][]Permission{
	RoleCashier: {PermSaleCreate},
	RoleManager: {
		PermSaleCreate, PermSaleVoid,
		PermPOEdit, PermPOApprove, PermPOReceive,
		PermInventoryAdjust, PermStoredValueAdjust,
		PermCatalogManage, PermAuditRead,
	},
	RoleAdmin: {
		PermSaleCreate, PermSaleVoid,
		PermPOEdit, PermPOApprove, PermPOReceive,
		PermInventoryAdjust, PermStoredValueAdjust,
		PermCatalogManage, PermUserManage, PermAuditRead,
	},
}

// Grant is proof that an authenticated actor holds a set of permissions.
// The fields are unexported on purpose: code outside this package cannot
// build a Grant that Permits anything, it has to come from Authorize.
type Grant struct {
	actor domain.Actor
	perms map[Permission]bool
}

func (g Grant) Actor() domain.Actor { return g.actor }

func (g Grant) Permits(p Permission) bool { return g.perms[p] }

// Require returns ErrForbidden naming the missing permission, for callers
// that want an error rather than a bool.
func (g Grant) Require(p Permission) error {
	if g.perms[p] {
		return nil
	}
	return fmt.Errorf("%w: %s requires %s", ErrForbidden, g.actor.Username, p)
}

type Manager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	users     map[string]credential
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	password string
	role     string
	active   bool
	created  time.Time
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewManager(secret string, tokenTTL time.Duration, userStore UserStore) *Manager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	manager := &Manager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
	}
	// Startup load runs before any request context exists.
	manager.bootstrapUsers(context.Background())
	return manager
}

func (m *Manager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	m.bootstrapUsers(context.Background())
	username := strings.ToLower(strings.TrimSpace(req.Username))
	m.mu.RLock()
	cred, ok := m.users[username]
	m.mu.RUnlock()
	if !ok {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, fmt.Errorf("%w: account is inactive", ErrInvalidCredentials)
	}

	expiresAt := time.Now().UTC().Add(m.tokenTTL)
	token, err := m.sign(username, cred.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (m *Manager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

// Authorize turns an authenticated actor into a Grant carrying the
// permissions of the actor's role. Unknown roles get an empty grant.
func (m *Manager) Authorize(actor domain.Actor) Grant {
	perms := make(map[Permission]bool)
	for _, p := range rolePermissions[actor.Role] {
		perms[p] = true
	}
	return Grant{actor: actor, perms: perms}
}

func (m *Manager) sign(username, role string, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "pos-backend",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) CreateUser(req domain.UserCreateRequest) (domain.UserAccount, error) {
	m.bootstrapUsers(context.Background())
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.UserAccount{}, fmt.Errorf("%w: username must be at least 4 characters", store.ErrValidation)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.UserAccount{}, fmt.Errorf("%w: username must not contain spaces", store.ErrValidation)
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return domain.UserAccount{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrValidation)
	}
	if _, ok := rolePermissions[req.Role]; !ok {
		return domain.UserAccount{}, fmt.Errorf("%w: unknown role %q", store.ErrValidation, req.Role)
	}

	m.mu.RLock()
	_, exists := m.users[username]
	m.mu.RUnlock()
	if exists {
		return domain.UserAccount{}, fmt.Errorf("%w: username %s already exists", store.ErrDuplicate, username)
	}

	now := time.Now().UTC()
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("failed to hash password")
	}

	account := domain.UserAccount{
		Username:  username,
		Password:  passwordHash,
		Role:      req.Role,
		Active:    true,
		CreatedAt: now,
	}
	if m.userStore != nil {
		if err := m.userStore.CreateUser(context.Background(), account); err != nil {
			return domain.UserAccount{}, err
		}
	}

	m.mu.Lock()
	m.users[username] = credential{
		password: passwordHash,
		role:     req.Role,
		active:   true,
		created:  now,
	}
	m.mu.Unlock()

	account.Password = ""
	return account, nil
}

func (m *Manager) ListUsers() []domain.UserAccount {
	m.bootstrapUsers(context.Background())
	m.mu.RLock()
	result := make([]domain.UserAccount, 0, len(m.users))
	for username, user := range m.users {
		result = append(result, domain.UserAccount{
			Username:  username,
			Role:      user.role,
			Active:    user.active,
			CreatedAt: user.created,
		})
	}
	m.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

// bootstrapUsers loads accounts from the user store into the in-memory
// credential cache, upgrading any legacy plain-text passwords to bcrypt
// hashes in the store as it goes.
func (m *Manager) bootstrapUsers(ctx context.Context) {
	if m.userStore == nil {
		return
	}
	users, err := m.userStore.ListUsers(ctx)
	if err != nil || len(users) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				_ = m.userStore.UpdateUserPassword(ctx, username, hashed)
			}
		}
		m.users[username] = credential{
			password: password,
			role:     user.Role,
			active:   user.Active,
			created:  user.CreatedAt,
		}
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
