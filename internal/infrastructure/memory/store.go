// Package memory keeps users and friendships in process memory. It honours
// the same uniqueness rules as the Postgres schema and serves local runs
// (STORE_DRIVER=memory) and tests.
package memory

import (
	"sync"
	"time"

	"github.com/oksasatya/go-ddd-friendship/internal/domain/entity"
)

type Store struct {
	userMu     sync.Mutex
	nextUserID int64
	users      map[int64]entity.User

	friendMu     sync.Mutex
	nextFriendID int64
	friendships  map[int64]entity.Friendship

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:       make(map[int64]entity.User),
		friendships: make(map[int64]entity.Friendship),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for created_at/updated_at.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) Users() *UserRepository {
	return &UserRepository{store: s}
}

func (s *Store) Friendships() *FriendshipRepository {
	return &FriendshipRepository{store: s}
}
