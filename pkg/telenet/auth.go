package telenet

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/raterudder/telenet-exporter/pkg/log"
	"github.com/raterudder/telenet-exporter/pkg/tree"
)

// AuthState is the state of the portal session.
type AuthState int

const (
	Unauthenticated AuthState = iota
	ChallengeIssued
	Authenticated
)

func (s AuthState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case ChallengeIssued:
		return "challenge issued"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

const authorizeClaims = `{"id_token":{"http://telenet.be/claims/roles":null,"http://telenet.be/claims/licenses":null}}`

// Login makes sure the session is authenticated. When the portal still
// accepts the session cookies no login form is submitted.
func (c *Client) Login(ctx context.Context) error {
	log.Ctx(ctx).DebugContext(ctx, "telenet login start")

	state, nonce, done, err := c.challenge(ctx)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	authorize, err := url.Parse(c.env.OpenID)
	if err != nil {
		return &ServiceError{Caller: "login authorize", Msg: "invalid openid url", Err: err}
	}
	authorize = authorize.JoinPath("oauth", "authorize")
	q := url.Values{}
	q.Set("client_id", "ocapi")
	q.Set("response_type", "code")
	q.Set("claims", authorizeClaims)
	q.Set("lang", c.creds.Language)
	q.Set("state", state)
	q.Set("nonce", nonce)
	q.Set("prompt", "login")
	authorize.RawQuery = q.Encode()

	resp, err := c.do(ctx, request{
		caller:   "login authorize",
		url:      authorize.String(),
		expected: expectAny,
		strict:   true,
		auth:     true,
	})
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK || !strings.Contains(finalURL(resp), "openid/login") {
		return &ServiceError{
			Caller: "login authorize",
			Status: resp.StatusCode(),
			Msg:    "authorize did not land on the login page: " + finalURL(resp),
		}
	}

	resp, err = c.do(ctx, request{
		caller: "login form",
		url:    strings.TrimSuffix(c.env.OpenID, "/") + "/login.do",
		form: map[string]string{
			"j_username": c.creds.Username,
			"j_password": c.creds.Password,
			"rememberme": "true",
		},
		expected: http.StatusOK,
		strict:   true,
		auth:     true,
	})
	if err != nil {
		return err
	}
	if strings.Contains(finalURL(resp), "authentication_error") {
		c.setState(Unauthenticated)
		return &CredentialsError{Msg: "portal reported authentication_error for " + c.creds.Username}
	}

	resp, err = c.do(ctx, request{
		caller:   "login user details",
		url:      c.userDetailsURL(),
		expected: http.StatusOK,
		strict:   true,
		auth:     true,
	})
	if err != nil {
		return err
	}
	user, err := tree.Parse(resp.Body())
	if err != nil {
		return &ServiceError{Caller: "login user details", Status: resp.StatusCode(), Msg: "invalid user details", Err: err}
	}
	if !user.Has("customer_number") {
		c.setState(Unauthenticated)
		return &CredentialsError{Msg: "missing customer number"}
	}
	c.authenticated(user)
	log.Ctx(ctx).InfoContext(ctx, "telenet login success", slog.String("username", c.creds.Username))
	return nil
}

// challenge polls the user details endpoint. It returns done when the session
// is already authenticated, otherwise the state and nonce of the login
// challenge.
func (c *Client) challenge(ctx context.Context) (state, nonce string, done bool, err error) {
	for attempt := 0; attempt <= ConnectionRetry; attempt++ {
		resp, err := c.do(ctx, request{
			caller:   "login",
			url:      c.userDetailsURL(),
			expected: expectAny,
			strict:   true,
			auth:     true,
		})
		if err != nil {
			return "", "", false, err
		}
		status := resp.StatusCode()
		switch {
		case status == http.StatusOK:
			user, err := tree.Parse(resp.Body())
			if err != nil {
				return "", "", false, &ServiceError{Caller: "login", Status: status, Msg: "invalid user details", Err: err}
			}
			if user.Has("customer_number") {
				c.authenticated(user)
			} else {
				c.setState(Authenticated)
			}
			log.Ctx(ctx).DebugContext(ctx, "telenet session still authenticated")
			return "", "", true, nil
		case status > http.StatusNotFound:
			return "", "", false, &ServiceError{Caller: "login", Status: status, Msg: resp.String()}
		case status != http.StatusUnauthorized && status != http.StatusForbidden:
			return "", "", false, &ServiceError{
				Caller: "login",
				Status: status,
				Msg:    "unexpected status while authenticating " + finalURL(resp),
			}
		}

		tokens := strings.SplitN(strings.TrimSpace(resp.String()), ",", 3)
		if len(tokens) == 2 {
			c.setState(ChallengeIssued)
			return tokens[0], tokens[1], false, nil
		}
		log.Ctx(ctx).DebugContext(ctx, "telenet challenge without state and nonce", slog.Int("attempt", attempt))
	}
	return "", "", false, &ServiceError{
		Caller: "login",
		Status: http.StatusUnauthorized,
		Msg:    "portal did not return the state and nonce tokens",
	}
}

func (c *Client) authenticated(user tree.Value) {
	details := user.Map()
	delete(details, "scopes")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = tree.Of(details)
	c.state = Authenticated
}

func (c *Client) userDetailsURL() string {
	return strings.TrimSuffix(c.env.OCAPIOAuth, "/") + "/userdetails"
}
