package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
)

type usersRepo struct {
	q *queries
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := r.q.GetUserByID(ctx, id)
	return u, mapNotFound(err)
}

func (r *usersRepo) FindByEmailOrPhone(ctx context.Context, email, phone string) (domain.User, error) {
	if email == "" && phone == "" {
		return domain.User{}, store.ErrNotFound
	}
	u, err := r.q.GetUserByEmailOrPhone(ctx, email, phone)
	return u, mapNotFound(err)
}

func (r *usersRepo) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := r.q.GetUserByEmail(ctx, email)
	return u, mapNotFound(err)
}

func (r *usersRepo) FindByProvider(ctx context.Context, provider, providerID string) (domain.User, error) {
	u, err := r.q.GetUserByProvider(ctx, provider, providerID)
	return u, mapNotFound(err)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	return mapConstraint(r.q.CreateUser(ctx, u))
}

func (r *usersRepo) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (domain.User, error) {
	n, err := r.q.UpdateUser(ctx, id, patch, time.Now().UTC())
	if err != nil {
		return domain.User{}, mapConstraint(err)
	}
	if n == 0 {
		return domain.User{}, store.ErrNotFound
	}
	return r.GetUserByID(ctx, id)
}
