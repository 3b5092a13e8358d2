package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"playroom/internal/docstore"
)

const (
	usersCollection   = "users"
	emailsCollection  = "user_emails"
	revokedCollection = "revoked_tokens"
)

// DocstoreRepo keeps accounts and token revocations in the document store.
type DocstoreRepo struct {
	store docstore.Store
}

func NewDocstoreRepo(store docstore.Store) *DocstoreRepo {
	return &DocstoreRepo{store: store}
}

// Create stores u. The email is claimed first under its own key so two
// accounts can never share one; a taken email yields ErrEmailTaken.
func (r *DocstoreRepo) Create(ctx context.Context, u *User) error {
	id := uuid.NewString()
	err := r.store.Insert(ctx, emailsCollection, u.Email, docstore.Fields{"userId": id})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("claim email: %w", err)
	}

	err = r.store.Insert(ctx, usersCollection, id, docstore.Fields{
		"email":        u.Email,
		"passwordHash": u.PasswordHash,
		"displayName":  u.DisplayName,
		"avatarUrl":    u.AvatarURL,
		"roles":        roleStrings(u.Roles),
		"createdAt":    u.CreatedAt,
	})
	if err != nil {
		if derr := r.store.Delete(ctx, emailsCollection, u.Email); derr != nil {
			err = errors.Join(err, derr)
		}
		return fmt.Errorf("create user: %w", err)
	}
	u.ID = id
	return nil
}

func (r *DocstoreRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	claim, err := r.store.Get(ctx, emailsCollection, email)
	if errors.Is(err, docstore.ErrNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find user by email: %w", err)
	}
	return r.GetByID(ctx, claim.String("userId"))
}

func (r *DocstoreRepo) GetByID(ctx context.Context, id string) (User, error) {
	doc, err := r.store.Get(ctx, usersCollection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return userFromDoc(doc), nil
}

func (r *DocstoreRepo) SetRoles(ctx context.Context, id string, roles []Role) error {
	err := r.store.Update(ctx, usersCollection, id, docstore.Fields{"roles": roleStrings(roles)})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *DocstoreRepo) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	return r.store.Set(ctx, revokedCollection, jti, docstore.Fields{
		"expiresAt": expiresAt.UnixMilli(),
	})
}

func (r *DocstoreRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := r.store.Get(ctx, revokedCollection, jti)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *DocstoreRepo) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	docs, err := r.store.Query(ctx, docstore.Query{Collection: revokedCollection})
	if err != nil {
		return 0, fmt.Errorf("list revoked tokens: %w", err)
	}
	cutoff := now.UnixMilli()
	purged := 0
	for _, d := range docs {
		if d.Int64("expiresAt") > cutoff {
			continue
		}
		if err := r.store.Delete(ctx, revokedCollection, d.ID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return purged, fmt.Errorf("purge revoked token: %w", err)
		}
		purged++
	}
	return purged, nil
}

func userFromDoc(d docstore.Document) User {
	return User{
		ID:           d.ID,
		Email:        d.String("email"),
		PasswordHash: d.String("passwordHash"),
		DisplayName:  d.String("displayName"),
		AvatarURL:    d.String("avatarUrl"),
		Roles:        parseRoles(d.Strings("roles")),
		CreatedAt:    d.Int64("createdAt"),
	}
}
