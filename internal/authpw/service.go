// Package authpw provides username/password accounts: credential hashing,
// the one-shot first-admin bootstrap, and admin-only user management.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"leaddesk/api/internal/rbac"
	"leaddesk/api/internal/store"
	"leaddesk/api/internal/util"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrAdminExists        = errors.New("an admin user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("role must be admin or member")
	ErrMissingFields      = errors.New("username and password are required")
)

// UserStore defines the storage interface for accounts
type UserStore interface {
	CreateUser(ctx context.Context, user store.User) error
	// CreateFirstAdmin inserts the bootstrap admin only while no admin row
	// exists yet, reporting false once one does. The check and the insert
	// must be atomic so two concurrent bootstraps cannot both land.
	CreateFirstAdmin(ctx context.Context, user store.User) (bool, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	UpdateUser(ctx context.Context, user store.User) (bool, error)
	DeleteUser(ctx context.Context, id string) (bool, error)
	AdminExists(ctx context.Context) (bool, error)
}

type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// AdminRegistered reports whether the first-admin bootstrap path has closed.
func (s *Service) AdminRegistered(ctx context.Context) (bool, error) {
	return s.store.AdminExists(ctx)
}

// RegisterFirstAdmin creates the initial admin account. The path closes
// permanently once any admin exists, regardless of username.
func (s *Service) RegisterFirstAdmin(ctx context.Context, username, password string) (store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return store.User{}, ErrMissingFields
	}

	exists, err := s.store.AdminExists(ctx)
	if err != nil {
		return store.User{}, err
	}
	if exists {
		return store.User{}, ErrAdminExists
	}

	user, err := s.buildUser(ctx, username, password, string(rbac.RoleAdmin))
	if err != nil {
		return store.User{}, err
	}
	// The existence check above is only a fast path. The store performs the
	// check again atomically with the insert, so a concurrent bootstrap that
	// slipped past the read still loses here.
	created, err := s.store.CreateFirstAdmin(ctx, user)
	if err != nil {
		return store.User{}, fmt.Errorf("create admin: %w", err)
	}
	if !created {
		return store.User{}, ErrAdminExists
	}
	return user, nil
}

// CreateUser creates an account with an explicit role. Caller must already
// hold the manage-users permission.
func (s *Service) CreateUser(ctx context.Context, username, password, role string) (store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return store.User{}, ErrMissingFields
	}
	if !rbac.ValidRole(role) {
		return store.User{}, ErrInvalidRole
	}
	return s.createUser(ctx, username, password, role)
}

func (s *Service) createUser(ctx context.Context, username, password, role string) (store.User, error) {
	user, err := s.buildUser(ctx, username, password, role)
	if err != nil {
		return store.User{}, err
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// buildUser checks username availability, hashes the password, and assembles
// the row without writing it.
func (s *Service) buildUser(ctx context.Context, username, password, role string) (store.User, error) {
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return store.User{}, ErrUsernameTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("lookup username: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	return store.User{
		ID:           util.NewID("usr"),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}, nil
}

// Authenticate verifies a username/password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (store.User, error) {
	if username == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// UpdateUserInput carries a partial account update; empty fields are left
// unchanged, matching the lead-patch convention.
type UpdateUserInput struct {
	Username string
	Password string
	Role     string
}

func (s *Service) UpdateUser(ctx context.Context, userID string, input UpdateUserInput) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return store.User{}, err
	}

	if username := strings.TrimSpace(input.Username); username != "" && username != user.Username {
		if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
			return store.User{}, ErrUsernameTaken
		} else if !errors.Is(err, sql.ErrNoRows) {
			return store.User{}, fmt.Errorf("lookup username: %w", err)
		}
		user.Username = username
	}
	if input.Role != "" {
		if !rbac.ValidRole(input.Role) {
			return store.User{}, ErrInvalidRole
		}
		user.Role = input.Role
	}

	hash := ""
	if input.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return store.User{}, fmt.Errorf("hash password: %w", err)
		}
		hash = string(hashed)
	}
	user.PasswordHash = hash

	changed, err := s.store.UpdateUser(ctx, user)
	if err != nil {
		return store.User{}, err
	}
	if !changed {
		return store.User{}, sql.ErrNoRows
	}
	return s.store.GetUserByID(ctx, userID)
}

func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	changed, err := s.store.DeleteUser(ctx, userID)
	if err != nil {
		return err
	}
	if !changed {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]store.User, error) {
	return s.store.ListUsers(ctx)
}

func (s *Service) GetUser(ctx context.Context, userID string) (store.User, error) {
	return s.store.GetUserByID(ctx, userID)
}
