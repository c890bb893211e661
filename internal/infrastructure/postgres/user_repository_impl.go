package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/go-ddd-friendship/internal/domain/entity"
	"github.com/oksasatya/go-ddd-friendship/internal/domain/repository"
)

const userColumns = `id, email, username, password_hash, name, gender, phone_number, avatar_url,
	is_staff, is_superuser, is_admin, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*entity.User, error) {
	u := &entity.User{}
	var gender string
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Password, &u.Name, &gender, &u.PhoneNumber, &u.AvatarURL,
		&u.IsStaff, &u.IsSuperuser, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Gender = entity.Gender(gender)
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	u.Touch()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, username, password_hash, name, gender, phone_number, avatar_url, is_staff, is_superuser, is_admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`, u.Email, u.Username, u.Password, u.Name, string(u.Gender), u.PhoneNumber, u.AvatarURL, u.IsStaff, u.IsSuperuser, u.IsAdmin)

	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	u.Touch()
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET email = $1, username = $2, password_hash = $3, name = $4, gender = $5, phone_number = $6,
		    avatar_url = $7, is_staff = $8, is_superuser = $9, is_admin = $10, updated_at = now()
		WHERE id = $11
		RETURNING created_at, updated_at
	`, u.Email, u.Username, u.Password, u.Name, string(u.Gender), u.PhoneNumber, u.AvatarURL,
		u.IsStaff, u.IsSuperuser, u.IsAdmin, u.ID)

	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return repository.ErrNotFound
		case isUniqueViolation(err):
			return repository.ErrConflict
		}
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *UserRepository) Search(ctx context.Context, query string) ([]entity.User, error) {
	q := strings.TrimSpace(query)
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE $1::text = ''
		   OR email = lower($1)
		   OR name ILIKE '%' || $2 || '%' ESCAPE '\'
		ORDER BY id
	`, q, likeEscaper.Replace(q))
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	out := make([]entity.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

var _ repository.UserRepository = (*UserRepository)(nil)
