package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/oksasatya/go-ddd-friendship/internal/domain/entity"
	"github.com/oksasatya/go-ddd-friendship/internal/domain/repository"
)

type UserRepository struct {
	store *Store
}

func (r *UserRepository) Create(_ context.Context, u *entity.User) error {
	s := r.store
	s.userMu.Lock()
	defer s.userMu.Unlock()

	u.Touch()
	if r.emailTaken(u.Email, 0) {
		return repository.ErrConflict
	}
	s.nextUserID++
	now := s.now()
	u.ID = s.nextUserID
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = *u
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id int64) (*entity.User, error) {
	s := r.store
	s.userMu.Lock()
	defer s.userMu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	s := r.store
	s.userMu.Lock()
	defer s.userMu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) Update(_ context.Context, u *entity.User) error {
	s := r.store
	s.userMu.Lock()
	defer s.userMu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Touch()
	if r.emailTaken(u.Email, u.ID) {
		return repository.ErrConflict
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = s.now()
	s.users[u.ID] = *u
	return nil
}

func (r *UserRepository) Search(_ context.Context, query string) ([]entity.User, error) {
	s := r.store
	s.userMu.Lock()
	defer s.userMu.Unlock()

	q := strings.TrimSpace(query)
	lq := strings.ToLower(q)
	out := make([]entity.User, 0)
	for _, u := range s.users {
		if q == "" || u.Email == lq || strings.Contains(strings.ToLower(u.Name), lq) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// emailTaken must be called with userMu held.
func (r *UserRepository) emailTaken(email string, exceptID int64) bool {
	for id, u := range r.store.users {
		if id != exceptID && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

var _ repository.UserRepository = (*UserRepository)(nil)
