package server

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/drago-vuckovic/sso/internal/provider"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Request body schemas.
const (
	schemaCreateUser = "create_user.json"
	schemaUpdateUser = "update_user.json"
)

// Validator checks request bodies against the embedded JSON Schemas.
// Compiled schemas are kept in an LRU cache keyed by file name.
type Validator struct {
	cache *lru.Cache[string, *jsonschema.Schema]
}

// NewValidator creates a validator and compiles every embedded schema once so
// a broken schema fails at startup.
func NewValidator() (*Validator, error) {
	cache, err := lru.New[string, *jsonschema.Schema](8)
	if err != nil {
		return nil, fmt.Errorf("create schema cache: %w", err)
	}
	v := &Validator{cache: cache}
	for _, name := range []string{schemaCreateUser, schemaUpdateUser} {
		if _, err := v.schema(name); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Validate checks body against the named schema. Violations are
// provider.ErrValidation errors naming the offending JSON path.
func (v *Validator) Validate(name string, body []byte) error {
	schema, err := v.schema(name)
	if err != nil {
		return err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return provider.Validation("DecodeBody", "request body is not valid JSON")
	}
	if err := schema.Validate(doc); err != nil {
		return provider.Validation("ValidateBody", formatValidationError(err))
	}
	return nil
}

func (v *Validator) schema(name string) (*jsonschema.Schema, error) {
	if s, ok := v.cache.Get(name); ok {
		return s, nil
	}

	raw, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)
	if err := compiler.AddResource(name, parsed); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	s, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	v.cache.Add(name, s)
	return s, nil
}

// formatValidationError reports the deepest failing location followed by the
// library's description of the failure.
func formatValidationError(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}

	path := "$"
	for _, part := range ve.InstanceLocation {
		if part != "" {
			path += "." + part
		}
	}

	return path + ": " + truncate(strings.Join(strings.Fields(ve.Error()), " "), 200)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
