package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Subjects are role names prefixed with "role:"; "*" in a policy matches any
// object or action.
const casbinModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// NewEnforcer builds an in-memory enforcer loaded with DefaultPolicy and extra.
// Each line has the form "p, role:NAME, object, action".
func NewEnforcer(extra []string) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(casbinModel)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	lines := append(append([]string(nil), DefaultPolicy...), extra...)
	for _, line := range lines {
		rule, err := parsePolicyLine(line)
		if err != nil {
			return nil, err
		}
		if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
			return nil, fmt.Errorf("add policy %q: %w", line, err)
		}
	}
	return enforcer, nil
}

func parsePolicyLine(line string) ([3]string, error) {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) != 4 || parts[0] != "p" || parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return [3]string{}, fmt.Errorf("invalid policy line %q: want \"p, subject, object, action\"", line)
	}
	return [3]string{parts[1], parts[2], parts[3]}, nil
}

// Authorize reports whether any of roles may perform act on obj.
func Authorize(enforcer casbin.IEnforcer, roles []string, obj, act string) (bool, error) {
	for _, role := range roles {
		allowed, err := enforcer.Enforce("role:"+role, obj, act)
		if err != nil {
			return false, fmt.Errorf("enforce role %s: %w", role, err)
		}
		if allowed {
			return true, nil
		}
	}
	return false, nil
}

// RequirePermission rejects callers whose roles do not allow act on obj.
func RequirePermission(enforcer casbin.IEnforcer, obj, act string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			allowed, err := Authorize(enforcer, principal.Roles, obj, act)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "authorization failed")
				return
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
