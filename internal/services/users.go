package services

import (
	"context"
	"errors"

	"github.com/openmem/openmem-server/internal/model"
	"github.com/openmem/openmem-server/internal/store"
)

// Users manages identity rows keyed by the external user handle.
type Users struct {
	store store.Store
}

func NewUsers(s store.Store) *Users {
	return &Users{store: s}
}

// CreateOrGet returns the user with the given handle, creating the row on
// first sight. A lost create race resolves by re-reading.
func (u *Users) CreateOrGet(ctx context.Context, handle string) (*model.User, error) {
	if handle == "" {
		return nil, model.ErrValidation
	}
	existing, err := u.store.Users().GetByHandle(ctx, handle)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	created, err := u.store.Users().Create(ctx, &model.User{Handle: handle})
	if errors.Is(err, model.ErrConflict) {
		return u.store.Users().GetByHandle(ctx, handle)
	}
	return created, err
}

func (u *Users) Get(ctx context.Context, id string) (*model.User, error) {
	return u.store.Users().Get(ctx, id)
}

func (u *Users) GetByHandle(ctx context.Context, handle string) (*model.User, error) {
	return u.store.Users().GetByHandle(ctx, handle)
}

// UpdateMetadata replaces the user's metadata document.
func (u *Users) UpdateMetadata(ctx context.Context, id string, metadata map[string]interface{}) (*model.User, error) {
	user, err := u.store.Users().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Metadata = metadata
	return u.store.Users().Update(ctx, user)
}

func (u *Users) Stats(ctx context.Context, id string) (*model.UserStats, error) {
	if _, err := u.store.Users().Get(ctx, id); err != nil {
		return nil, err
	}
	return u.store.Users().Stats(ctx, id)
}
