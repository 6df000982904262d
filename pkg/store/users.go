package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned by Authenticate for an unknown
	// login or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned by CreateUser for a taken login.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned by GetUser.
	ErrUserNotFound = errors.New("user not found")
)

// User is an account that owns projects. The password hash never leaves
// the store.
type User struct {
	ID        string    `json:"id"`
	Login     string    `json:"login"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateUser adds an account with a bcrypt-hashed password.
func (s *Store) CreateUser(ctx context.Context, login, password string) (*User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, errors.New("login and password required")
	}
	if _, _, err := s.userByLogin(ctx, login); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{ID: uuid.NewString(), Login: login, CreatedAt: s.now().UTC()}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO users (id, login, password_hash, created_at)
        VALUES (?, ?, ?, ?)
    `, u.ID, u.Login, string(hash), formatTime(u.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// EnsureUser returns the account for login, creating it with password if
// it does not exist yet. An existing password is left unchanged.
func (s *Store) EnsureUser(ctx context.Context, login, password string) (*User, bool, error) {
	u, _, err := s.userByLogin(ctx, strings.TrimSpace(login))
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}
	u, err = s.CreateUser(ctx, login, password)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// Authenticate checks a login and password pair.
func (s *Store) Authenticate(ctx context.Context, login, password string) (*User, error) {
	u, hash, err := s.userByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// GetUser returns the account with the given ID.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, login, password_hash, created_at FROM users WHERE id = ?`, id)
	u, _, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *Store) userByLogin(ctx context.Context, login string) (*User, string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, login, password_hash, created_at FROM users WHERE login = ?`, login)
	return scanUser(row)
}

func scanUser(row scanner) (*User, string, error) {
	var (
		u             User
		hash, created string
	)
	if err := row.Scan(&u.ID, &u.Login, &hash, &created); err != nil {
		return nil, "", err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, "", err
	}
	u.CreatedAt = t
	return &u, hash, nil
}
