package repository

import (
	"context"

	"github.com/oksasatya/go-ddd-friendship/internal/domain/entity"
)

// FriendshipFilter narrows ListWhere. Zero fields are ignored; EitherUserID
// matches an edge where the user is on either side.
type FriendshipFilter struct {
	FromUserID   int64
	ToUserID     int64
	EitherUserID int64
	Accepted     *bool
}

// FriendshipRepository stores directed friendship edges. Every method is a
// single statement that is atomic on its own; the pair (from, to) is unique
// at the storage layer. WithinTx groups several calls into one transaction.
type FriendshipRepository interface {
	// WithinTx runs fn with a repository bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx FriendshipRepository) error) error

	// FindByPair returns the edge from→to or ErrNotFound.
	FindByPair(ctx context.Context, fromUserID, toUserID int64) (*entity.Friendship, error)

	// InsertIfAbsent inserts f as a pending edge and fills ID and CreatedAt.
	// An existing row for the pair yields ErrConflict and nothing is written.
	InsertIfAbsent(ctx context.Context, f *entity.Friendship) error

	// UpdateAccepted flips a pending edge with the given id addressed to
	// toUserID to accepted and returns it. Any other case yields ErrNotFound.
	UpdateAccepted(ctx context.Context, id, toUserID int64) (*entity.Friendship, error)

	// DeleteByPair removes the edge from→to. With pendingOnly an accepted edge
	// is left alone and reported as ErrNotFound.
	DeleteByPair(ctx context.Context, fromUserID, toUserID int64, pendingOnly bool) error

	// ListWhere returns matching edges ordered by id.
	ListWhere(ctx context.Context, filter FriendshipFilter) ([]entity.Friendship, error)
}

// Bool returns a pointer to b for FriendshipFilter.Accepted.
func Bool(b bool) *bool { return &b }
