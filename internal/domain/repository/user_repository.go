package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/go-ddd-friendship/internal/domain/entity"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("unique constraint violation")
	// ErrIndexTruncated is returned by a UserIndex whose result would be
	// cut short; callers answer from the database instead.
	ErrIndexTruncated = errors.New("search index result truncated")
)

// UserRepository defines the interface for user-related database operations.
// Create and Update call User.Touch before writing; a duplicate email yields
// ErrConflict.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	Update(ctx context.Context, u *entity.User) error
	// Search returns users whose email equals query (case-normalized) or whose
	// name contains it case-insensitively, ordered by id. An empty query
	// matches everyone.
	Search(ctx context.Context, query string) ([]entity.User, error)
}

// UserIndex is an optional secondary search index over users. Index must
// make the document visible to the next Search.
type UserIndex interface {
	Index(ctx context.Context, u *entity.User) error
	Search(ctx context.Context, query string) ([]entity.User, error)
}
