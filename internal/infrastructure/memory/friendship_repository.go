package memory

import (
	"context"
	"sort"

	"github.com/oksasatya/go-ddd-friendship/internal/domain/entity"
	"github.com/oksasatya/go-ddd-friendship/internal/domain/repository"
)

// FriendshipRepository serializes all access on the store's friendship
// mutex. A repository handed out by WithinTx already holds it.
type FriendshipRepository struct {
	store *Store
	inTx  bool
}

func (r *FriendshipRepository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.friendMu.Lock()
	return r.store.friendMu.Unlock
}

func (r *FriendshipRepository) WithinTx(ctx context.Context, fn func(tx repository.FriendshipRepository) error) error {
	if r.inTx {
		return fn(r)
	}
	s := r.store
	s.friendMu.Lock()
	defer s.friendMu.Unlock()

	snapshot := make(map[int64]entity.Friendship, len(s.friendships))
	for id, f := range s.friendships {
		snapshot[id] = f
	}
	nextID := s.nextFriendID

	err := fn(&FriendshipRepository{store: s, inTx: true})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.friendships = snapshot
		s.nextFriendID = nextID
	}
	return err
}

func (r *FriendshipRepository) FindByPair(_ context.Context, fromUserID, toUserID int64) (*entity.Friendship, error) {
	defer r.lock()()

	for _, f := range r.store.friendships {
		if f.FromUserID == fromUserID && f.ToUserID == toUserID {
			return &f, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *FriendshipRepository) InsertIfAbsent(_ context.Context, f *entity.Friendship) error {
	defer r.lock()()

	s := r.store
	for _, existing := range s.friendships {
		// mirrors both the directed and the unordered unique index
		same := existing.FromUserID == f.FromUserID && existing.ToUserID == f.ToUserID
		reverse := existing.FromUserID == f.ToUserID && existing.ToUserID == f.FromUserID
		if same || reverse {
			return repository.ErrConflict
		}
	}
	s.nextFriendID++
	f.ID = s.nextFriendID
	f.CreatedAt = s.now()
	f.Accepted = false
	s.friendships[f.ID] = *f
	return nil
}

func (r *FriendshipRepository) UpdateAccepted(_ context.Context, id, toUserID int64) (*entity.Friendship, error) {
	defer r.lock()()

	f, ok := r.store.friendships[id]
	if !ok || f.ToUserID != toUserID || f.Accepted {
		return nil, repository.ErrNotFound
	}
	f.Accepted = true
	r.store.friendships[id] = f
	return &f, nil
}

func (r *FriendshipRepository) DeleteByPair(_ context.Context, fromUserID, toUserID int64, pendingOnly bool) error {
	defer r.lock()()

	for id, f := range r.store.friendships {
		if f.FromUserID != fromUserID || f.ToUserID != toUserID {
			continue
		}
		if pendingOnly && f.Accepted {
			return repository.ErrNotFound
		}
		delete(r.store.friendships, id)
		return nil
	}
	return repository.ErrNotFound
}

func (r *FriendshipRepository) ListWhere(_ context.Context, filter repository.FriendshipFilter) ([]entity.Friendship, error) {
	defer r.lock()()

	out := make([]entity.Friendship, 0)
	for _, f := range r.store.friendships {
		if matches(f, filter) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matches(f entity.Friendship, filter repository.FriendshipFilter) bool {
	if filter.FromUserID != 0 && f.FromUserID != filter.FromUserID {
		return false
	}
	if filter.ToUserID != 0 && f.ToUserID != filter.ToUserID {
		return false
	}
	if filter.EitherUserID != 0 && !f.Involves(filter.EitherUserID) {
		return false
	}
	if filter.Accepted != nil && f.Accepted != *filter.Accepted {
		return false
	}
	return true
}

var _ repository.FriendshipRepository = (*FriendshipRepository)(nil)
