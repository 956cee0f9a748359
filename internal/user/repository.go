package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Repository interface {
	Create(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, id uuid.UUID, patch Patch) error
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
}

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	db DB
}

func NewRepository(db DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, user *User) (*User, error) {
	query := `
		INSERT INTO users (id, name, phone, password)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, phone, password
	`

	var created User
	err := r.db.QueryRow(ctx, query, user.ID, user.Name, user.Phone, user.PasswordHash).Scan(
		&created.ID,
		&created.Name,
		&created.Phone,
		&created.PasswordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrPhoneExists
		}
		return nil, fmt.Errorf("repository: failed to insert user: %w", err)
	}

	return &created, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, name, phone, password
		FROM users
		WHERE id = $1
	`

	return r.getOne(ctx, query, id)
}

func (r *repository) GetByPhone(ctx context.Context, phone string) (*User, error) {
	query := `
		SELECT id, name, phone, password
		FROM users
		WHERE phone = $1
	`

	return r.getOne(ctx, query, phone)
}

func (r *repository) getOne(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Phone, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select user by %v: %w", arg, err)
	}

	return &u, nil
}

func (r *repository) List(ctx context.Context) ([]User, error) {
	query := `
		SELECT id, name, phone, password
		FROM users
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Phone, &u.PasswordHash); err != nil {
			return nil, fmt.Errorf("repository: failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating users: %w", err)
	}

	return users, nil
}

// Update merges the patch in a single statement so concurrent partial
// updates cannot overwrite each other's untouched columns.
func (r *repository) Update(ctx context.Context, id uuid.UUID, patch Patch) error {
	query := `
		UPDATE users
		SET name = COALESCE($1, name),
			phone = COALESCE($2, phone),
			password = COALESCE($3, password)
		WHERE id = $4
	`

	cmdTag, err := r.db.Exec(ctx, query, patch.Name, patch.Phone, patch.PasswordHash, id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPhoneExists
		}
		return fmt.Errorf("repository: failed to update user %s: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete returns the number of removed rows; zero is not an error.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to delete user %s: %w", id, err)
	}

	return cmdTag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
