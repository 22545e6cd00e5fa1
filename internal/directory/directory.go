package directory

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/drago-vuckovic/sso/internal/provider"
	"github.com/drago-vuckovic/sso/internal/telemetry"
)

const tracerName = "sso/directory"

// Directory exposes user operations backed by the provider. It holds no user
// or role state of its own; every call reads through to the provider.
type Directory struct {
	admin      provider.Admin
	reconciler *Reconciler
	filters    *filterCache
	logger     *slog.Logger
}

// Option configures a Directory.
type Option func(*Directory)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) { d.logger = logger }
}

// WithReconciler replaces the default Reconciler over the same admin client.
func WithReconciler(r *Reconciler) Option {
	return func(d *Directory) { d.reconciler = r }
}

// New creates a Directory.
func New(admin provider.Admin, opts ...Option) *Directory {
	d := &Directory{
		admin:   admin,
		filters: newFilterCache(filterCacheSize),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.reconciler == nil {
		d.reconciler = NewReconciler(admin, WithReconcilerLogger(d.logger))
	}
	return d
}

// List returns one page of user summaries in provider order.
func (d *Directory) List(ctx context.Context, opts ListOptions) ([]UserSummary, error) {
	const op = "List"
	if opts.First < 0 {
		return nil, provider.Validation(op, "first must not be negative")
	}
	if opts.Max < 0 {
		return nil, provider.Validation(op, "max must not be negative")
	}
	if opts.Max == 0 {
		opts.Max = DefaultPageSize
	}
	if opts.Max > MaxPageSize {
		opts.Max = MaxPageSize
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "directory.List",
		attribute.Int(telemetry.AttrPageFirst, opts.First),
		attribute.Int(telemetry.AttrPageMax, opts.Max),
	)
	defer span.End()

	filter := strings.TrimSpace(opts.Filter)
	var match func(UserSummary) (bool, error)
	if filter != "" {
		ev, err := d.filters.evaluator(filter)
		if err != nil {
			return nil, provider.Validation(op, "invalid filter: "+err.Error())
		}
		match = func(s UserSummary) (bool, error) { return ev.Evaluate(s.fields()) }
	}

	users, err := d.admin.ListUsers(ctx, opts.First, opts.Max)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		s := summarize(u)
		if match != nil {
			ok, err := match(s)
			if err != nil {
				return nil, provider.Validation(op, "filter evaluation: "+err.Error())
			}
			if !ok {
				continue
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// Get returns the user with its effective realm roles.
func (d *Directory) Get(ctx context.Context, id string) (*User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, provider.Validation("Get", "user id is required")
	}
	ctx, span := telemetry.StartSpan(ctx, tracerName, "directory.Get",
		attribute.String(telemetry.AttrUserID, id),
	)
	defer span.End()

	user, err := d.admin.GetUser(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	roles, err := d.admin.ListEffectiveUserRealmRoles(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("fetch roles: %w", err)
	}

	return &User{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Enabled:  user.Enabled,
		Roles:    RoleSetFromRoles(roles).Sorted(),
	}, nil
}

// Create creates an enabled account with a permanent password and assigns the
// initial roles. An error means no account was created. A role assignment
// failure after creation is reported in CreateResult.RolesErr instead.
func (d *Directory) Create(ctx context.Context, in NewUser) (*CreateResult, error) {
	const op = "Create"
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, provider.Validation(op, "username is required")
	}
	if in.Password == "" {
		return nil, provider.Validation(op, "password is required")
	}
	if in.Email != "" {
		if err := validateEmail(in.Email); err != nil {
			return nil, provider.Validation(op, err.Error())
		}
	}
	if err := validateRoleNames(in.Roles); err != nil {
		return nil, provider.Validation(op, err.Error())
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "directory.Create",
		attribute.String(telemetry.AttrUsername, username),
	)
	defer span.End()

	id, err := d.admin.CreateUser(ctx, provider.User{
		Username:    username,
		Email:       in.Email,
		Enabled:     true,
		Credentials: []provider.PasswordCredential{provider.NewPassword(in.Password)},
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String(telemetry.AttrUserID, id))
	d.logger.Info("user created", "user_id", id, "username", username)

	result := &CreateResult{ID: id}
	if len(in.Roles) == 0 {
		return result, nil
	}

	changes, err := d.reconciler.Assign(ctx, id, NewRoleSet(in.Roles...))
	result.Roles = changes
	if err != nil {
		result.RolesErr = err
		telemetry.AddEvent(span, "roles.assignment_failed")
		d.logger.Warn("user created but initial roles failed",
			"user_id", id,
			"roles", in.Roles,
			"error", err,
		)
	}
	return result, nil
}

// Update overwrites only the supplied fields. Everything else, including
// fields this service does not model, is written back as fetched.
func (d *Directory) Update(ctx context.Context, id string, upd UserUpdate) error {
	const op = "Update"
	if strings.TrimSpace(id) == "" {
		return provider.Validation(op, "user id is required")
	}
	if upd.Username != nil && strings.TrimSpace(*upd.Username) == "" {
		return provider.Validation(op, "username must not be empty")
	}
	if upd.Email != nil && *upd.Email != "" {
		if err := validateEmail(*upd.Email); err != nil {
			return provider.Validation(op, err.Error())
		}
	}
	if upd.Roles != nil {
		if err := validateRoleNames(*upd.Roles); err != nil {
			return provider.Validation(op, err.Error())
		}
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "directory.Update",
		attribute.String(telemetry.AttrUserID, id),
	)
	defer span.End()

	existing, err := d.admin.GetUser(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if upd.touchesProfile() {
		merged := *existing
		if upd.Username != nil {
			merged.Username = strings.TrimSpace(*upd.Username)
		}
		if upd.Email != nil {
			merged.Email = *upd.Email
		}
		if upd.Enabled != nil {
			merged.Enabled = *upd.Enabled
		}
		if merged.EmailVerified == nil {
			verified := true
			merged.EmailVerified = &verified
		}
		if err := d.admin.UpdateUser(ctx, id, merged); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
	}

	if upd.Roles != nil {
		changes, err := d.reconciler.Reconcile(ctx, id, NewRoleSet(*upd.Roles...))
		if err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		span.SetAttributes(
			attribute.StringSlice(telemetry.AttrRolesAdded, changes.Added),
			attribute.StringSlice(telemetry.AttrRolesRemoved, changes.Removed),
		)
	}
	return nil
}

// Delete removes the account.
func (d *Directory) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return provider.Validation("Delete", "user id is required")
	}
	ctx, span := telemetry.StartSpan(ctx, tracerName, "directory.Delete",
		attribute.String(telemetry.AttrUserID, id),
	)
	defer span.End()

	if err := d.admin.DeleteUser(ctx, id); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	d.logger.Info("user deleted", "user_id", id)
	return nil
}

// ListRoles returns the realm roles sorted by name.
func (d *Directory) ListRoles(ctx context.Context) ([]Role, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "directory.ListRoles")
	defer span.End()

	roles, err := d.admin.ListRealmRoles(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, Role{Name: r.Name, Description: r.Description, Composite: r.Composite})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email %q", email)
	}
	return nil
}

func validateRoleNames(names []string) error {
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("role names must not be empty")
		}
	}
	return nil
}
