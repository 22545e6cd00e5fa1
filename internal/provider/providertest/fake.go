// Package providertest provides an in-memory provider.Admin for tests.
package providertest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drago-vuckovic/sso/internal/provider"
)

// Fake is an in-memory Keycloak realm. It records every call, can inject
// per-method failures and simulates latency. Safe for concurrent use.
type Fake struct {
	// Latency is slept (honouring ctx) before every call.
	Latency time.Duration
	// DefaultRoles are mapped to every created user, like Keycloak's
	// default-roles-<realm>.
	DefaultRoles []string

	mu         sync.Mutex
	users      map[string]provider.User
	order      []string
	roles      map[string]provider.Role
	composites map[string][]string
	mappings   map[string]map[string]struct{}
	failures   map[string][]error
	calls      map[string]int
	added      [][]string
	removed    [][]string
}

var _ provider.Admin = (*Fake)(nil)

// New returns a Fake whose realm holds the given role names.
func New(roleNames ...string) *Fake {
	f := &Fake{
		users:      map[string]provider.User{},
		roles:      map[string]provider.Role{},
		composites: map[string][]string{},
		mappings:   map[string]map[string]struct{}{},
		failures:   map[string][]error{},
		calls:      map[string]int{},
	}
	for _, name := range roleNames {
		f.AddRole(name)
	}
	return f
}

// AddRole creates a realm role.
func (f *Fake) AddRole(name string, composites ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[name] = provider.Role{ID: uuid.NewString(), Name: name, Composite: len(composites) > 0}
	if len(composites) > 0 {
		f.composites[name] = composites
	}
}

// SeedUser stores user with the given direct role mappings and returns its id.
func (f *Fake) SeedUser(user provider.User, roles ...string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Credentials = nil
	f.users[user.ID] = user
	f.order = append(f.order, user.ID)
	set := map[string]struct{}{}
	for _, r := range roles {
		set[r] = struct{}{}
	}
	f.mappings[user.ID] = set
	return user.ID
}

// FailNext makes the next call to method return err. Calls queue up.
func (f *Fake) FailNext(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = append(f.failures[method], err)
}

// Calls returns how often method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// MutatingCalls returns the number of add and remove role-mapping calls.
func (f *Fake) MutatingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added) + len(f.removed)
}

// Added returns the sorted role names of every add call, in call order.
func (f *Fake) Added() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.added...)
}

// Removed returns the sorted role names of every remove call, in call order.
func (f *Fake) Removed() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.removed...)
}

// ResetCalls clears call counters and recorded mutations.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = map[string]int{}
	f.added = nil
	f.removed = nil
}

// User returns the stored user, if any.
func (f *Fake) User(id string) (provider.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	return u, ok
}

// RoleNames returns the sorted direct role mappings of id.
func (f *Fake) RoleNames(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.mappings[id])
}

// enter records the call, applies latency and pops an injected failure.
func (f *Fake) enter(ctx context.Context, method string) error {
	if f.Latency > 0 {
		select {
		case <-time.After(f.Latency):
		case <-ctx.Done():
			return provider.Unavailable(method, ctx.Err())
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if queued := f.failures[method]; len(queued) > 0 {
		f.failures[method] = queued[1:]
		return queued[0]
	}
	return nil
}

func notFound(op, what string) error {
	return &provider.Error{Kind: provider.ErrNotFound, Op: op, StatusCode: 404, Message: what + " not found"}
}

func (f *Fake) ListUsers(ctx context.Context, first, max int) ([]provider.User, error) {
	if err := f.enter(ctx, "ListUsers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []provider.User{}
	for i := first; i < len(f.order) && len(out) < max; i++ {
		out = append(out, f.users[f.order[i]])
	}
	return out, nil
}

func (f *Fake) GetUser(ctx context.Context, id string) (*provider.User, error) {
	if err := f.enter(ctx, "GetUser"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, notFound("GetUser", "user")
	}
	return &u, nil
}

func (f *Fake) CreateUser(ctx context.Context, user provider.User) (string, error) {
	if err := f.enter(ctx, "CreateUser"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(existing.Username, user.Username) ||
			(user.Email != "" && strings.EqualFold(existing.Email, user.Email)) {
			return "", &provider.Error{Kind: provider.ErrConflict, Op: "CreateUser", StatusCode: 409, Message: "User exists with same username or email"}
		}
	}
	user.ID = uuid.NewString()
	user.Credentials = nil
	f.users[user.ID] = user
	f.order = append(f.order, user.ID)
	set := map[string]struct{}{}
	for _, r := range f.DefaultRoles {
		set[r] = struct{}{}
	}
	f.mappings[user.ID] = set
	return user.ID, nil
}

func (f *Fake) UpdateUser(ctx context.Context, id string, user provider.User) error {
	if err := f.enter(ctx, "UpdateUser"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.users[id]
	if !ok {
		return notFound("UpdateUser", "user")
	}
	merged, err := overlay(existing, user)
	if err != nil {
		return &provider.Error{Kind: provider.ErrValidation, Op: "UpdateUser", StatusCode: 400, Err: err}
	}
	merged.ID = id
	merged.Credentials = nil
	f.users[id] = merged
	return nil
}

// overlay applies the JSON representation of update onto existing the way
// Keycloak does on PUT: fields absent from the body keep their stored value.
func overlay(existing, update provider.User) (provider.User, error) {
	base, err := json.Marshal(existing)
	if err != nil {
		return provider.User{}, err
	}
	patch, err := json.Marshal(update)
	if err != nil {
		return provider.User{}, err
	}
	var fields, changes map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return provider.User{}, err
	}
	if err := json.Unmarshal(patch, &changes); err != nil {
		return provider.User{}, err
	}
	for k, v := range changes {
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return provider.User{}, err
	}
	var out provider.User
	err = json.Unmarshal(merged, &out)
	return out, err
}

func (f *Fake) DeleteUser(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteUser"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return notFound("DeleteUser", "user")
	}
	delete(f.users, id)
	delete(f.mappings, id)
	for i, v := range f.order {
		if v == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *Fake) ListRealmRoles(ctx context.Context) ([]provider.Role, error) {
	if err := f.enter(ctx, "ListRealmRoles"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]provider.Role, 0, len(f.roles))
	for _, name := range sortedKeys(f.roles) {
		out = append(out, f.roles[name])
	}
	return out, nil
}

func (f *Fake) ListUserRealmRoles(ctx context.Context, id string) ([]provider.Role, error) {
	if err := f.enter(ctx, "ListUserRealmRoles"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.mappings[id]
	if !ok {
		return nil, notFound("ListUserRealmRoles", "user")
	}
	return f.rolesFor(sortedKeys(set)), nil
}

func (f *Fake) ListEffectiveUserRealmRoles(ctx context.Context, id string) ([]provider.Role, error) {
	if err := f.enter(ctx, "ListEffectiveUserRealmRoles"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.mappings[id]
	if !ok {
		return nil, notFound("ListEffectiveUserRealmRoles", "user")
	}
	effective := map[string]struct{}{}
	var expand func(name string)
	expand = func(name string) {
		if _, seen := effective[name]; seen {
			return
		}
		effective[name] = struct{}{}
		for _, child := range f.composites[name] {
			expand(child)
		}
	}
	for name := range set {
		expand(name)
	}
	return f.rolesFor(sortedKeys(effective)), nil
}

func (f *Fake) AddUserRealmRoles(ctx context.Context, id string, roles []provider.Role) error {
	if err := f.enter(ctx, "AddUserRealmRoles"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.mappings[id]
	if !ok {
		return notFound("AddUserRealmRoles", "user")
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if _, ok := f.roles[r.Name]; !ok {
			return notFound("AddUserRealmRoles", "role "+r.Name)
		}
		names = append(names, r.Name)
	}
	for _, n := range names {
		set[n] = struct{}{}
	}
	sort.Strings(names)
	f.added = append(f.added, names)
	return nil
}

func (f *Fake) RemoveUserRealmRoles(ctx context.Context, id string, roles []provider.Role) error {
	if err := f.enter(ctx, "RemoveUserRealmRoles"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.mappings[id]
	if !ok {
		return notFound("RemoveUserRealmRoles", "user")
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		delete(set, r.Name)
		names = append(names, r.Name)
	}
	sort.Strings(names)
	f.removed = append(f.removed, names)
	return nil
}

// rolesFor returns role representations for names. Unknown names (mappings
// seeded without a realm role) get a synthetic representation.
func (f *Fake) rolesFor(names []string) []provider.Role {
	out := make([]provider.Role, 0, len(names))
	for _, n := range names {
		if r, ok := f.roles[n]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, provider.Role{Name: n})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
