package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/drago-vuckovic/sso/internal/telemetry"
)

// Credentials supplies and invalidates the admin bearer credential.
// *CredentialCache implements it.
type Credentials interface {
	Credential(ctx context.Context) (Credential, error)
	Invalidate(stale Credential)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// AdminURL is the realm admin root, e.g. http://kc:8080/admin/realms/demo.
	AdminURL string

	HTTPClient *http.Client
	// Limiter, when set, throttles outbound admin requests.
	Limiter *rate.Limiter
	Logger  *slog.Logger
	Metrics telemetry.Recorder
}

// Client talks to the Keycloak admin REST API.
//
// Every request carries the current admin credential. A 401 invalidates that
// credential and the request is retried once with a fresh one; a second 401 is
// returned as ErrAuthentication.
type Client struct {
	adminURL   string
	creds      Credentials
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    telemetry.Recorder
}

var _ Admin = (*Client)(nil)

// NewClient creates a Client.
func NewClient(creds Credentials, cfg ClientConfig) *Client {
	c := &Client{
		adminURL:   strings.TrimRight(cfg.AdminURL, "/"),
		creds:      creds,
		httpClient: cfg.HTTPClient,
		limiter:    cfg.Limiter,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = telemetry.Nop{}
	}
	return c
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
}

func userPath(id string, rest ...string) string {
	return "/users/" + url.PathEscape(id) + strings.Join(rest, "")
}

// ListUsers returns the page [first, first+max) in provider order.
func (c *Client) ListUsers(ctx context.Context, first, max int) ([]User, error) {
	q := url.Values{}
	q.Set("first", strconv.Itoa(first))
	q.Set("max", strconv.Itoa(max))

	var users []User
	_, err := c.do(ctx, request{op: "ListUsers", method: http.MethodGet, path: "/users", query: q}, &users)
	return users, err
}

// GetUser fetches one user.
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	if _, err := c.do(ctx, request{op: "GetUser", method: http.MethodGet, path: userPath(id)}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates user and returns the id from the Location header.
func (c *Client) CreateUser(ctx context.Context, user User) (string, error) {
	const op = "CreateUser"
	header, err := c.do(ctx, request{op: op, method: http.MethodPost, path: "/users", body: user}, nil)
	if err != nil {
		return "", err
	}
	id := idFromLocation(header.Get("Location"))
	if id == "" {
		return "", &Error{Kind: ErrUnavailable, Op: op, Message: "response has no usable Location header"}
	}
	return id, nil
}

// UpdateUser replaces the user representation.
func (c *Client) UpdateUser(ctx context.Context, id string, user User) error {
	_, err := c.do(ctx, request{op: "UpdateUser", method: http.MethodPut, path: userPath(id), body: user}, nil)
	return err
}

// DeleteUser removes the user.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{op: "DeleteUser", method: http.MethodDelete, path: userPath(id)}, nil)
	return err
}

// ListRealmRoles returns every realm role.
func (c *Client) ListRealmRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	_, err := c.do(ctx, request{op: "ListRealmRoles", method: http.MethodGet, path: "/roles"}, &roles)
	return roles, err
}

func (c *Client) ListUserRealmRoles(ctx context.Context, id string) ([]Role, error) {
	var roles []Role
	_, err := c.do(ctx, request{
		op:     "ListUserRealmRoles",
		method: http.MethodGet,
		path:   userPath(id, "/role-mappings/realm"),
	}, &roles)
	return roles, err
}

func (c *Client) ListEffectiveUserRealmRoles(ctx context.Context, id string) ([]Role, error) {
	var roles []Role
	_, err := c.do(ctx, request{
		op:     "ListEffectiveUserRealmRoles",
		method: http.MethodGet,
		path:   userPath(id, "/role-mappings/realm/composite"),
	}, &roles)
	return roles, err
}

func (c *Client) AddUserRealmRoles(ctx context.Context, id string, roles []Role) error {
	_, err := c.do(ctx, request{
		op:     "AddUserRealmRoles",
		method: http.MethodPost,
		path:   userPath(id, "/role-mappings/realm"),
		body:   roles,
	}, nil)
	return err
}

func (c *Client) RemoveUserRealmRoles(ctx context.Context, id string, roles []Role) error {
	_, err := c.do(ctx, request{
		op:     "RemoveUserRealmRoles",
		method: http.MethodDelete,
		path:   userPath(id, "/role-mappings/realm"),
		body:   roles,
	}, nil)
	return err
}

// do executes r, retrying once after a 401, and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, r request, out any) (http.Header, error) {
	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return nil, &Error{Kind: ErrValidation, Op: r.op, Message: "encode request body", Err: err}
		}
	}

	cred, err := c.creds.Credential(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, r, payload, cred)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		c.logger.Info("provider rejected admin credential, refreshing", "op", r.op)
		c.creds.Invalidate(cred)

		if cred, err = c.creds.Credential(ctx); err != nil {
			return nil, err
		}
		if resp, err = c.send(ctx, r, payload, cred); err != nil {
			return nil, err
		}
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(r.op, resp.StatusCode, errorMessage(resp.Body))
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, &Error{Kind: ErrUnavailable, Op: r.op, Message: "decode response", Err: err}
		}
	}
	return resp.Header, nil
}

func (c *Client) send(ctx context.Context, r request, payload []byte, cred Credential) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, Unavailable(r.op, err)
		}
	}

	target := c.adminURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, &Error{Kind: ErrValidation, Op: r.op, Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.RecordProviderRequest(r.op, 0, elapsed)
		c.logger.Warn("provider request failed", "op", r.op, "error", err)
		return nil, Unavailable(r.op, err)
	}
	c.metrics.RecordProviderRequest(r.op, resp.StatusCode, elapsed)
	c.logger.Debug("provider request",
		"op", r.op,
		"method", r.method,
		"path", r.path,
		"status", resp.StatusCode,
		"duration", elapsed,
	)
	return resp, nil
}

// errorMessage extracts Keycloak's error text from a failed response.
func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		ErrorMessage     string `json:"errorMessage"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(data, &payload) != nil {
		return ""
	}
	switch {
	case payload.ErrorMessage != "":
		return payload.ErrorMessage
	case payload.ErrorDescription != "":
		return payload.ErrorDescription
	default:
		return payload.Error
	}
}

func idFromLocation(location string) string {
	if location == "" {
		return ""
	}
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	id := path.Base(strings.TrimRight(u.Path, "/"))
	if id == "." || id == "/" || id == "users" {
		return ""
	}
	return id
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
