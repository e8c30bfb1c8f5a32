package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/StevenEgasJ/HomeworkOrders/internal/domain"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
)

// UserRepository is a process-local user directory.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
	clock func() time.Time
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository seeds the directory with users.
func NewUserRepository(users ...domain.User) *UserRepository {
	repo := &UserRepository{
		users: make(map[string]domain.User, len(users)),
		clock: time.Now,
	}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *UserRepository) Exists(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[strings.TrimSpace(userID)]
	return ok, nil
}

func (r *UserRepository) FindMany(ctx context.Context, userIDs []string) (map[string]domain.UserDisplay, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]domain.UserDisplay, len(userIDs))
	for _, id := range userIDs {
		user, ok := r.users[strings.TrimSpace(id)]
		if !ok {
			continue
		}
		result[user.ID] = domain.UserDisplay{ID: user.ID, DisplayName: user.DisplayName(), Email: user.Email}
	}
	return result, nil
}

func (r *UserRepository) UpsertByEmail(ctx context.Context, user domain.User) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" {
		return domain.User{}, errors.New("memory user repository: email is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().UTC()
	user.Email = email
	user.UpdatedAt = now
	for id, existing := range r.users {
		if existing.Email == email {
			user.ID = id
			user.CreatedAt = existing.CreatedAt
			r.users[id] = user
			return user, nil
		}
	}
	if strings.TrimSpace(user.ID) == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = now
	r.users[user.ID] = user
	return user, nil
}
