package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no active participant matches the lookup.
	ErrNotFound = errors.New("user: not found")
	// ErrNicknameTaken signals an active participant already holds the nickname.
	ErrNicknameTaken = errors.New("user: nickname already registered")
)

const userColumns = `id, nickname, role, status, chat_id, bot_state, tariff_id, paid, created_at`

// Repository provides pgx-backed access to the participant directory.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Nickname,
		&u.Role,
		&u.Status,
		&u.ChatID,
		&u.BotState,
		&u.TariffID,
		&u.Paid,
		&u.CreatedAt,
	)
	return u, err
}

// GetByID fetches one participant regardless of status.
func (r *Repository) GetByID(ctx context.Context, id string) (User, error) {
	query := fmt.Sprintf(`SELECT %s FROM bot_users WHERE id = $1`, userColumns)
	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("user: query by id: %w", err)
	}
	return u, nil
}

// GetActiveByChatID looks an active participant up by messaging channel id.
func (r *Repository) GetActiveByChatID(ctx context.Context, chatID int64) (User, error) {
	query := fmt.Sprintf(`SELECT %s FROM bot_users WHERE chat_id = $1 AND status = 'active'`, userColumns)
	u, err := scanUser(r.pool.QueryRow(ctx, query, chatID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("user: query by chat id: %w", err)
	}
	return u, nil
}

// GetActiveByNickname looks an active participant up by nickname.
func (r *Repository) GetActiveByNickname(ctx context.Context, nickname string) (User, error) {
	query := fmt.Sprintf(`SELECT %s FROM bot_users WHERE nickname = $1 AND status = 'active'`, userColumns)
	u, err := scanUser(r.pool.QueryRow(ctx, query, nickname))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("user: query by nickname: %w", err)
	}
	return u, nil
}

// ListActiveByRole returns active participants of one role, oldest first.
func (r *Repository) ListActiveByRole(ctx context.Context, role Role) ([]User, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM bot_users WHERE role = $1 AND status = 'active' ORDER BY created_at ASC`,
		userColumns,
	)
	rows, err := r.pool.Query(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("user: list by role: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0, 8)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("user: scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user: iterate: %w", err)
	}
	return users, nil
}

// CreateParams enumerates the fields an administrative insert needs.
type CreateParams struct {
	ID       string
	Nickname string
	Role     Role
	TariffID *string
	Paid     bool
}

// Create inserts an active participant. The partial unique index on active
// nicknames turns duplicates into ErrNicknameTaken.
func (r *Repository) Create(ctx context.Context, params CreateParams) (User, error) {
	query := fmt.Sprintf(`
		INSERT INTO bot_users (id, nickname, role, status, tariff_id, paid)
		VALUES ($1, $2, $3, 'active', $4, $5)
		RETURNING %s
	`, userColumns)

	u, err := scanUser(r.pool.QueryRow(ctx, query, params.ID, params.Nickname, params.Role, params.TariffID, params.Paid))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrNicknameTaken
		}
		return User{}, fmt.Errorf("user: insert: %w", err)
	}
	return u, nil
}

// Deactivate flips an active participant of the given role to inactive and
// returns the affected row.
func (r *Repository) Deactivate(ctx context.Context, nickname string, role Role) (User, error) {
	query := fmt.Sprintf(`
		UPDATE bot_users
		SET status = 'inactive'
		WHERE nickname = $1 AND role = $2 AND status = 'active'
		RETURNING %s
	`, userColumns)

	u, err := scanUser(r.pool.QueryRow(ctx, query, nickname, role))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("user: deactivate: %w", err)
	}
	return u, nil
}

// UpdateNickname persists a drifted nickname observed on an inbound event.
func (r *Repository) UpdateNickname(ctx context.Context, id, nickname string) error {
	if _, err := r.pool.Exec(ctx, `UPDATE bot_users SET nickname = $1 WHERE id = $2`, nickname, id); err != nil {
		return fmt.Errorf("user: update nickname: %w", err)
	}
	return nil
}

// UpdateChatID persists the channel id learned from an inbound event.
func (r *Repository) UpdateChatID(ctx context.Context, id string, chatID int64) error {
	if _, err := r.pool.Exec(ctx, `UPDATE bot_users SET chat_id = $1 WHERE id = $2`, chatID, id); err != nil {
		return fmt.Errorf("user: update chat id: %w", err)
	}
	return nil
}

// SetBotState persists the conversation state label after a handled turn.
func (r *Repository) SetBotState(ctx context.Context, id, state string) error {
	if _, err := r.pool.Exec(ctx, `UPDATE bot_users SET bot_state = $1 WHERE id = $2`, state, id); err != nil {
		return fmt.Errorf("user: set bot state: %w", err)
	}
	return nil
}
