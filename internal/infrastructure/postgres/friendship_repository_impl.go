package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/go-ddd-friendship/internal/domain/entity"
	"github.com/oksasatya/go-ddd-friendship/internal/domain/repository"
)

const friendshipColumns = `id, from_user_id, to_user_id, created_at, accepted`

// FriendshipRepository runs against the pool, or against a single
// transaction when obtained through WithinTx (pool is then nil).
type FriendshipRepository struct {
	pool *pgxpool.Pool
	db   querier
}

func NewFriendshipRepository(pool *pgxpool.Pool) *FriendshipRepository {
	return &FriendshipRepository{pool: pool, db: pool}
}

func scanFriendship(row pgx.Row) (*entity.Friendship, error) {
	f := &entity.Friendship{}
	if err := row.Scan(&f.ID, &f.FromUserID, &f.ToUserID, &f.CreatedAt, &f.Accepted); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *FriendshipRepository) WithinTx(ctx context.Context, fn func(tx repository.FriendshipRepository) error) error {
	if r.pool == nil {
		return fn(r)
	}
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&FriendshipRepository{db: tx})
	})
}

func (r *FriendshipRepository) FindByPair(ctx context.Context, fromUserID, toUserID int64) (*entity.Friendship, error) {
	f, err := scanFriendship(r.db.QueryRow(ctx, `
		SELECT `+friendshipColumns+` FROM friendships WHERE from_user_id = $1 AND to_user_id = $2
	`, fromUserID, toUserID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find friendship %d->%d: %w", fromUserID, toUserID, err)
	}
	return f, nil
}

// InsertIfAbsent relies on ON CONFLICT DO NOTHING so a clash with either
// unique index leaves the surrounding transaction usable.
func (r *FriendshipRepository) InsertIfAbsent(ctx context.Context, f *entity.Friendship) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO friendships (from_user_id, to_user_id, accepted)
		VALUES ($1, $2, false)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, accepted
	`, f.FromUserID, f.ToUserID)
	if err := row.Scan(&f.ID, &f.CreatedAt, &f.Accepted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert friendship %d->%d: %w", f.FromUserID, f.ToUserID, err)
	}
	return nil
}

func (r *FriendshipRepository) UpdateAccepted(ctx context.Context, id, toUserID int64) (*entity.Friendship, error) {
	f, err := scanFriendship(r.db.QueryRow(ctx, `
		UPDATE friendships SET accepted = true
		WHERE id = $1 AND to_user_id = $2 AND NOT accepted
		RETURNING `+friendshipColumns, id, toUserID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("accept friendship %d: %w", id, err)
	}
	return f, nil
}

func (r *FriendshipRepository) DeleteByPair(ctx context.Context, fromUserID, toUserID int64, pendingOnly bool) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM friendships
		WHERE from_user_id = $1 AND to_user_id = $2 AND (NOT $3::boolean OR NOT accepted)
	`, fromUserID, toUserID, pendingOnly)
	if err != nil {
		return fmt.Errorf("delete friendship %d->%d: %w", fromUserID, toUserID, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *FriendshipRepository) ListWhere(ctx context.Context, filter repository.FriendshipFilter) ([]entity.Friendship, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.FromUserID != 0 {
		conds = append(conds, "from_user_id = "+arg(filter.FromUserID))
	}
	if filter.ToUserID != 0 {
		conds = append(conds, "to_user_id = "+arg(filter.ToUserID))
	}
	if filter.EitherUserID != 0 {
		p := arg(filter.EitherUserID)
		conds = append(conds, "(from_user_id = "+p+" OR to_user_id = "+p+")")
	}
	if filter.Accepted != nil {
		conds = append(conds, "accepted = "+arg(*filter.Accepted))
	}

	sql := `SELECT ` + friendshipColumns + ` FROM friendships`
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY id"

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list friendships: %w", err)
	}
	defer rows.Close()

	out := make([]entity.Friendship, 0)
	for rows.Next() {
		f, err := scanFriendship(rows)
		if err != nil {
			return nil, fmt.Errorf("scan friendship: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

var _ repository.FriendshipRepository = (*FriendshipRepository)(nil)
