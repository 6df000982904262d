// Package store keeps users and their floor plan projects in SQLite.
// Every project read or removed through the API is scoped to its owner.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"golang.org/x/crypto/bcrypt"
)

// ErrNotFound is returned when no project has the requested ID, or the
// project belongs to another user.
var ErrNotFound = errors.New("project not found")

// ErrNameTooLong is returned by Create for names over MaxNameLength.
var ErrNameTooLong = fmt.Errorf("project name cannot exceed %d characters", MaxNameLength)

// MaxNameLength is the longest project name in characters.
const MaxNameLength = 50

// Project states.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Project is one uploaded floor plan and its generated outputs.
type Project struct {
	ID           string    `json:"id"`
	Owner        string    `json:"userId"`
	Name         string    `json:"name"`
	ImagePath    string    `json:"imagePath"`
	Status       string    `json:"status"`
	ModelPath    string    `json:"modelPath,omitempty"`
	FeaturesPath string    `json:"featuresPath,omitempty"`
	Degraded     bool      `json:"degraded"`
	Message      string    `json:"message,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Outcome is what UpdateStatus records once processing ends.
type Outcome struct {
	Status       string
	ModelPath    string
	FeaturesPath string
	Degraded     bool
	Message      string
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    login         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS projects (
    id            TEXT PRIMARY KEY,
    owner         TEXT NOT NULL,
    name          TEXT NOT NULL,
    image_path    TEXT NOT NULL,
    status        TEXT NOT NULL,
    model_path    TEXT NOT NULL DEFAULT '',
    features_path TEXT NOT NULL DEFAULT '',
    degraded      INTEGER NOT NULL DEFAULT 0,
    message       TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS projects_owner_created_at ON projects (owner, created_at);
`

const columns = `id, owner, name, image_path, status, model_path, features_path, degraded, message, created_at, updated_at`

// Store is a user and project repository backed by a *sql.DB.
type Store struct {
	db       *sql.DB
	now      func() time.Time
	hashCost int
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file::memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?mode=rwc&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := New(db)
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. Call Init before use.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now, hashCost: bcrypt.DefaultCost}
}

// Init applies the schema.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new project owned by owner in the processing state.
// A blank name becomes "Project <unix millis>".
func (s *Store) Create(ctx context.Context, owner, name, imagePath string) (*Project, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, ErrNameTooLong
	}
	now := s.now().UTC()
	p := &Project{
		ID:        uuid.NewString(),
		Owner:     owner,
		Name:      name,
		ImagePath: imagePath,
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.Name == "" {
		p.Name = fmt.Sprintf("Project %d", now.UnixMilli())
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO projects (`+columns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, p.ID, p.Owner, p.Name, p.ImagePath, p.Status, p.ModelPath, p.FeaturesPath,
		p.Degraded, p.Message, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

// Get returns owner's project with the given ID or ErrNotFound.
func (s *Store) Get(ctx context.Context, owner, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM projects WHERE id = ? AND owner = ?`, id, owner)
	p, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns owner's projects, newest first.
func (s *Store) List(ctx context.Context, owner string) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+columns+` FROM projects
        WHERE owner = ?
        ORDER BY created_at DESC, rowid DESC
    `, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateStatus records the outcome of processing a project. It is not
// owner scoped; only the background job calls it.
func (s *Store) UpdateStatus(ctx context.Context, id string, o Outcome) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE projects
        SET status = ?, model_path = ?, features_path = ?, degraded = ?, message = ?, updated_at = ?
        WHERE id = ?
    `, o.Status, o.ModelPath, o.FeaturesPath, o.Degraded, o.Message, formatTime(s.now().UTC()), id)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return affected(res)
}

// Delete removes owner's project. The caller owns any files it
// references.
func (s *Store) Delete(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return affected(res)
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*Project, error) {
	var (
		p                Project
		created, updated string
	)
	if err := row.Scan(&p.ID, &p.Owner, &p.Name, &p.ImagePath, &p.Status, &p.ModelPath, &p.FeaturesPath,
		&p.Degraded, &p.Message, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &p, nil
}

// Fixed-width so that lexical order in SQL matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
