package identity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"playroom/internal/feed"
	"playroom/internal/platform/crypto"
)

// Change payloads published on an identity topic.
const (
	changeSignedIn  = "signed-in"
	changeSignedOut = "signed-out"
	changeRoles     = "roles"
)

// Topic is the feed topic carrying changes for one account.
func Topic(userID string) string {
	return "identity." + userID
}

type Service struct {
	users   Repository
	revoked RevocationRepository
	broker  feed.Broker
	secret  string
	ttl     time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func NewService(users Repository, revoked RevocationRepository, broker feed.Broker, secret string, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{
		users:   users,
		revoked: revoked,
		broker:  broker,
		secret:  secret,
		ttl:     ttl,
		log:     log.Named("identity"),
		now:     time.Now,
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	AvatarURL   string
	Roles       []Role
}

// Register creates an account. Accounts start with the user role unless
// roles are given explicitly.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Identity, error) {
	email := normalizeEmail(in.Email)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return Identity{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return Identity{}, err
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}

	roles := in.Roles
	if len(roles) == 0 {
		roles = []Role{RoleUser}
	}
	u := &User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  in.DisplayName,
		AvatarURL:    in.AvatarURL,
		Roles:        roles,
		CreatedAt:    s.now().UnixMilli(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return Identity{}, err
	}
	return u.Identity(), nil
}

// SignIn checks credentials and issues an access token.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil || !crypto.VerifyPassword(u.PasswordHash, password) {
		return Session{}, ErrUnauthorized
	}

	token, _, err := crypto.GenerateToken(s.secret, u.ID, u.Email, roleStrings(u.Roles), s.ttl)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	s.publish(ctx, u.ID, changeSignedIn)

	return Session{
		Identity:    u.Identity(),
		AccessToken: token,
		ExpiresIn:   int(s.ttl.Seconds()),
	}, nil
}

// SignOut revokes token until it would have expired anyway.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := crypto.ParseToken(s.secret, token)
	if err != nil {
		return ErrUnauthorized
	}
	expiresAt := s.now().Add(s.ttl)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.revoked.Revoke(ctx, claims.ID, expiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.publish(ctx, claims.Sub, changeSignedOut)
	return nil
}

// Resolve maps an access token to the current identity. Expired, revoked
// or orphaned tokens yield ErrUnauthorized.
func (s *Service) Resolve(ctx context.Context, token string) (*Identity, error) {
	claims, err := crypto.ParseToken(s.secret, token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrUnauthorized
	}
	u, err := s.users.GetByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	id := u.Identity()
	return &id, nil
}

// GrantRole adds role to an account and notifies its live sessions.
func (s *Service) GrantRole(ctx context.Context, userID string, role Role) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if slices.Contains(u.Roles, role) {
		return nil
	}
	if err := s.users.SetRoles(ctx, userID, append(u.Roles, role)); err != nil {
		return err
	}
	s.publish(ctx, userID, changeRoles)
	return nil
}

// PurgeRevoked drops revocations whose tokens have expired.
func (s *Service) PurgeRevoked(ctx context.Context) (int, error) {
	n, err := s.revoked.PurgeExpired(ctx, s.now())
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.log.Info("purged revoked tokens", zap.Int("count", n))
	}
	return n, nil
}

// OnIdentityChange calls fn with the identity behind token, then again
// every time that identity changes: nil once the token is signed out, the
// refreshed identity after role changes or a new sign-in. Calls happen on
// one goroutine in order. The returned func stops the subscription and
// waits for an in-flight call to finish.
func (s *Service) OnIdentityChange(ctx context.Context, token string, fn func(*Identity)) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	var sub *feed.Subscription
	if claims, err := crypto.ParseToken(s.secret, token); err == nil {
		sub = s.broker.Subscribe(Topic(claims.Sub))
	}

	current := func() *Identity {
		id, err := s.Resolve(ctx, token)
		if err != nil {
			if !errors.Is(err, ErrUnauthorized) && ctx.Err() == nil {
				s.log.Error("resolve identity failed", zap.Error(err))
			}
			return nil
		}
		return id
	}

	go func() {
		defer close(done)
		if sub == nil {
			fn(nil)
			return
		}
		defer sub.Close()

		fn(current())
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C():
				if !ok {
					return
				}
				next := current()
				if ctx.Err() != nil {
					return
				}
				fn(next)
				if next == nil {
					// The token is dead for good once it resolves to nobody.
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (s *Service) publish(ctx context.Context, userID, change string) {
	if err := s.broker.Publish(ctx, Topic(userID), change); err != nil {
		s.log.Warn("identity change notification failed", zap.String("user_id", userID), zap.Error(err))
	}
}
