package identity

import (
	"errors"
	"slices"
	"strings"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrEmailTaken   = errors.New("email already registered")
	ErrNotFound     = errors.New("user not found")
)

// Role is a capability granted to an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the authenticated principal as seen by the rest of the app.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Roles       []Role `json:"roles"`
}

// HasRole reports whether i holds role. A nil identity holds nothing.
func (i *Identity) HasRole(role Role) bool {
	if i == nil {
		return false
	}
	return slices.Contains(i.Roles, role)
}

// IsAdmin is shorthand for HasRole(RoleAdmin).
func (i *Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}

// AuthorLabel names the identity on content it creates: the email, or the
// account id when no email is known.
func (i *Identity) AuthorLabel() string {
	if i.Email != "" {
		return i.Email
	}
	return i.ID
}

// User is the stored account record.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	AvatarURL    string
	Roles        []Role
	CreatedAt    int64
}

func (u User) Identity() Identity {
	return Identity{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Roles:       slices.Clone(u.Roles),
	}
}

// Session is a successful sign-in.
type Session struct {
	Identity    Identity `json:"identity"`
	AccessToken string   `json:"access_token"`
	ExpiresIn   int      `json:"expires_in"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func roleStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func parseRoles(values []string) []Role {
	out := make([]Role, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, Role(v))
		}
	}
	return out
}
