package provider

import (
	"context"
	"encoding/json"
)

// Admin is the subset of the Keycloak admin API the gateway uses. *Client
// implements it over HTTP and providertest.Fake implements it in memory.
type Admin interface {
	ListUsers(ctx context.Context, first, max int) ([]User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	// CreateUser returns the provider-assigned id.
	CreateUser(ctx context.Context, user User) (string, error)
	UpdateUser(ctx context.Context, id string, user User) error
	DeleteUser(ctx context.Context, id string) error

	ListRealmRoles(ctx context.Context) ([]Role, error)
	// ListUserRealmRoles returns the realm roles mapped directly to the user.
	ListUserRealmRoles(ctx context.Context, id string) ([]Role, error)
	// ListEffectiveUserRealmRoles also includes roles inherited through composites.
	ListEffectiveUserRealmRoles(ctx context.Context, id string) ([]Role, error)
	AddUserRealmRoles(ctx context.Context, id string, roles []Role) error
	RemoveUserRealmRoles(ctx context.Context, id string, roles []Role) error
}

// PasswordCredential is the credential representation sent on user creation.
type PasswordCredential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// NewPassword returns a permanent password credential.
func NewPassword(value string) PasswordCredential {
	return PasswordCredential{Type: "password", Value: value, Temporary: false}
}

// User is the Keycloak user representation. Fields the gateway does not model
// are kept in Extra and written back unchanged on update.
type User struct {
	ID               string               `json:"id,omitempty"`
	Username         string               `json:"username,omitempty"`
	Email            string               `json:"email,omitempty"`
	Enabled          bool                 `json:"enabled"`
	EmailVerified    *bool                `json:"emailVerified,omitempty"`
	FirstName        string               `json:"firstName,omitempty"`
	LastName         string               `json:"lastName,omitempty"`
	Attributes       map[string][]string  `json:"attributes,omitempty"`
	CreatedTimestamp int64                `json:"createdTimestamp,omitempty"`
	Credentials      []PasswordCredential `json:"credentials,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownUserFields = []string{
	"id", "username", "email", "enabled", "emailVerified", "firstName",
	"lastName", "attributes", "createdTimestamp", "credentials",
}

// UnmarshalJSON decodes the modelled fields and stashes the rest in Extra.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownUserFields {
		delete(all, k)
	}
	*u = User(p)
	u.Extra = nil
	if len(all) > 0 {
		u.Extra = all
	}
	return nil
}

// MarshalJSON encodes the modelled fields plus Extra. Modelled fields win.
// email is always present: Keycloak ignores absent fields on PUT, so an
// empty email must be sent explicitly to clear it.
func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	data, err := json.Marshal(plain(u))
	if err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	if _, ok := all["email"]; !ok {
		all["email"] = json.RawMessage(`""`)
	}
	for k, v := range u.Extra {
		if _, ok := all[k]; !ok {
			all[k] = v
		}
	}
	return json.Marshal(all)
}

// Role is a Keycloak realm role representation.
type Role struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Composite   bool   `json:"composite"`
	ClientRole  bool   `json:"clientRole"`
	ContainerID string `json:"containerId,omitempty"`
}
