package db

import (
	"context"
	"fmt"
	"strings"
)

func (p *Pool) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	const query = `
INSERT INTO users (username, password_hash, created_at)
VALUES ($1, $2, now())
RETURNING user_id, username, created_at`

	var user User
	err := p.QueryRow(ctx, query, strings.TrimSpace(username), passwordHash).Scan(&user.UserID, &user.Username, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("create user %q: %w", username, err)
	}
	user.PasswordHash = passwordHash
	return user, nil
}

func (p *Pool) GetUserByUsername(ctx context.Context, username string) (User, error) {
	const query = `
SELECT user_id, username, password_hash, created_at
FROM users WHERE username = $1`

	var user User
	err := p.QueryRow(ctx, query, strings.TrimSpace(username)).Scan(&user.UserID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}
