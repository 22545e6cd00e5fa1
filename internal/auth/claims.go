package auth

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ExtractRoles reads role names from claims. claimPath may be a flat claim
// ("roles") or a dotted path into nested objects ("realm_access.roles").
// A missing claim yields no roles.
func ExtractRoles(claims map[string]any, claimPath string) ([]string, error) {
	segments := strings.Split(claimPath, ".")
	var current any = claims
	for i, segment := range segments {
		var obj map[string]any
		if err := mapstructure.Decode(current, &obj); err != nil || obj == nil {
			return nil, fmt.Errorf("claim %s is not an object", strings.Join(segments[:i], "."))
		}
		value, ok := obj[segment]
		if !ok {
			return []string{}, nil
		}
		current = value
	}

	if single, ok := current.(string); ok {
		return []string{single}, nil
	}
	var roles []string
	if err := mapstructure.Decode(current, &roles); err != nil {
		return nil, fmt.Errorf("claim %s is not a list of strings: %w", claimPath, err)
	}
	return roles, nil
}

// claimString returns a string claim or "".
func claimString(claims map[string]any, field string) string {
	s, _ := claims[field].(string)
	return s
}
