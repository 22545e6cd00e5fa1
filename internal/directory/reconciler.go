package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/drago-vuckovic/sso/internal/provider"
	"github.com/drago-vuckovic/sso/internal/telemetry"
)

// Changes lists the role names a reconcile call added and removed.
type Changes struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// Empty reports whether nothing was changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// Reconciler converges a user's direct realm-role mappings to a desired set
// with at most one remove call followed by at most one add call.
//
// Names to add are resolved against the realm before anything is mutated, so
// an unknown name fails the call with ErrUnresolvedRole and no changes. The
// remove and add calls are not atomic; a failed add leaves the removals in
// place and a retry with the same desired set converges.
type Reconciler struct {
	admin     provider.Admin
	unmanaged RoleSet
	logger    *slog.Logger
	metrics   telemetry.Recorder
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithUnmanagedRoles excludes names from reconciliation. They are never
// removed and requests to add them are ignored.
func WithUnmanagedRoles(names ...string) ReconcilerOption {
	return func(r *Reconciler) { r.unmanaged = NewRoleSet(names...) }
}

func WithReconcilerLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = logger }
}

func WithReconcilerMetrics(m telemetry.Recorder) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

// NewReconciler creates a Reconciler over admin.
func NewReconciler(admin provider.Admin, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		admin:     admin,
		unmanaged: RoleSet{},
		logger:    slog.Default(),
		metrics:   telemetry.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile fetches the user's current direct mappings and converges them to desired.
func (r *Reconciler) Reconcile(ctx context.Context, userID string, desired RoleSet) (Changes, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "directory.Reconcile",
		attribute.String(telemetry.AttrUserID, userID),
		attribute.StringSlice(telemetry.AttrRolesDesired, desired.Sorted()),
	)
	defer span.End()

	current, err := r.admin.ListUserRealmRoles(ctx, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		return Changes{}, fmt.Errorf("fetch current roles: %w", err)
	}
	changes, err := r.apply(ctx, userID, current, desired)
	telemetry.RecordError(span, err)
	return changes, err
}

// Assign adds desired to a user known to hold no managed roles, such as one
// that was just created. It never removes.
func (r *Reconciler) Assign(ctx context.Context, userID string, desired RoleSet) (Changes, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "directory.Assign",
		attribute.String(telemetry.AttrUserID, userID),
		attribute.StringSlice(telemetry.AttrRolesDesired, desired.Sorted()),
	)
	defer span.End()

	changes, err := r.apply(ctx, userID, nil, desired)
	telemetry.RecordError(span, err)
	return changes, err
}

func (r *Reconciler) apply(ctx context.Context, userID string, currentRoles []provider.Role, desired RoleSet) (Changes, error) {
	current := RoleSetFromRoles(currentRoles).Difference(r.unmanaged)
	desired = desired.Difference(r.unmanaged)

	if current.Equal(desired) {
		return Changes{}, nil
	}
	toRemove := current.Difference(desired)
	toAdd := desired.Difference(current)

	var addRoles []provider.Role
	if toAdd.Len() > 0 {
		var err error
		if addRoles, err = r.resolve(ctx, toAdd); err != nil {
			return Changes{}, err
		}
	}

	var changes Changes
	if toRemove.Len() > 0 {
		var removeRoles []provider.Role
		for _, role := range currentRoles {
			if toRemove.Has(role.Name) {
				removeRoles = append(removeRoles, role)
			}
		}
		if err := r.admin.RemoveUserRealmRoles(ctx, userID, removeRoles); err != nil {
			return changes, fmt.Errorf("remove roles: %w", err)
		}
		changes.Removed = toRemove.Sorted()
	}
	if len(addRoles) > 0 {
		if err := r.admin.AddUserRealmRoles(ctx, userID, addRoles); err != nil {
			r.record(userID, changes)
			return changes, fmt.Errorf("add roles: %w", err)
		}
		changes.Added = toAdd.Sorted()
	}

	r.record(userID, changes)
	return changes, nil
}

// resolve maps names to realm role representations with one listing call.
func (r *Reconciler) resolve(ctx context.Context, names RoleSet) ([]provider.Role, error) {
	realm, err := r.admin.ListRealmRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list realm roles: %w", err)
	}
	byName := make(map[string]provider.Role, len(realm))
	for _, role := range realm {
		byName[role.Name] = role
	}

	var (
		resolved []provider.Role
		missing  []string
	)
	for _, name := range names.Sorted() {
		role, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		resolved = append(resolved, role)
	}
	if len(missing) > 0 {
		return nil, &provider.Error{
			Kind:    provider.ErrUnresolvedRole,
			Op:      "Reconcile",
			Message: "no realm role named " + strings.Join(missing, ", "),
		}
	}
	return resolved, nil
}

func (r *Reconciler) record(userID string, changes Changes) {
	if changes.Empty() {
		return
	}
	r.metrics.RecordRoleChanges(len(changes.Added), len(changes.Removed))
	r.logger.Info("roles reconciled",
		"user_id", userID,
		"added", changes.Added,
		"removed", changes.Removed,
	)
}
