package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateUser registers an account and assigns its ID.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, phone, email, avatar, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		u.Username, u.PasswordHash, u.Phone, u.Email, u.Avatar, u.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var created string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Phone, &u.Email, &u.Avatar, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &u, nil
}

// UserByID fetches one account.
func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, phone, email, avatar, created_at FROM users WHERE id = ?", id)
	return scanUser(row)
}

// UserByLogin fetches an account by username or phone, matching the
// sign-in form which accepts either.
func (s *Store) UserByLogin(ctx context.Context, usernameOrPhone string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, phone, email, avatar, created_at FROM users WHERE username = ? OR (phone != '' AND phone = ?)",
		usernameOrPhone, usernameOrPhone)
	return scanUser(row)
}

// UpdateUserProfile rewrites the mutable profile fields.
func (s *Store) UpdateUserProfile(ctx context.Context, id int64, phone, email, avatar string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET phone = ?, email = ?, avatar = ? WHERE id = ?",
		phone, email, avatar, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePasswordHash replaces the stored credential.
func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ? WHERE id = ?", hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
