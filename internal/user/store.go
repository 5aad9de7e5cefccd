// Package user manages accounts in a SQLite database and authenticates
// callers. A user id is the isolation key for the whole retrieval side:
// one collection, one engine per id.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var (
	ErrUsernameTaken      = errors.New("username already registered")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create users db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open users db: %w", err)
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS users (
            id            TEXT PRIMARY KEY,
            username      TEXT NOT NULL UNIQUE,
            email         TEXT NOT NULL DEFAULT '',
            password_hash TEXT NOT NULL,
            created_at    TIMESTAMP NOT NULL,
            is_active     INTEGER NOT NULL DEFAULT 1
        );
    `)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create users table: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Create registers a new user with a bcrypt-hashed password.
func (s *Store) Create(ctx context.Context, username, email, password string) (User, error) {
	if _, err := s.GetByUsername(ctx, username); err == nil {
		return User{}, ErrUsernameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	u := User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at, is_active)
         VALUES (?, ?, ?, ?, ?, 1)`,
		u.ID, u.Username, u.Email, string(hash), u.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	slog.Info("user registered", "username", username)
	return u, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (User, error) {
	return s.get(ctx, `SELECT id, username, email, created_at, is_active FROM users WHERE id = ?`, id)
}

func (s *Store) GetByUsername(ctx context.Context, username string) (User, error) {
	return s.get(ctx, `SELECT id, username, email, created_at, is_active FROM users WHERE username = ?`, username)
}

func (s *Store) get(ctx context.Context, query, arg string) (User, error) {
	var u User
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email, &createdAt, &u.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return u, nil
}

// Authenticate verifies the password for an active account. The same
// error comes back for unknown users and wrong passwords.
func (s *Store) Authenticate(ctx context.Context, username, password string) (User, error) {
	var u User
	var createdAt, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at, is_active FROM users WHERE username = ?`,
		username,
	).Scan(&u.ID, &u.Username, &u.Email, &hash, &createdAt, &u.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	if !u.IsActive {
		return User{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return u, nil
}
