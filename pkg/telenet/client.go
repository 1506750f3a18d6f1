// Package telenet talks to the Telenet customer portal: it keeps one
// authenticated session, calls the portal endpoints and turns the answers
// into products.
package telenet

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/raterudder/telenet-exporter/pkg/catalog"
	"github.com/raterudder/telenet-exporter/pkg/tree"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

// ConnectionRetry is the retry budget of a single request and of the login
// challenge.
const ConnectionRetry = 5

// Client is a single-account portal session. It is not safe for concurrent
// refreshes; callers run at most one Products call at a time.
type Client struct {
	env    types.Environment
	creds  types.Credentials
	tracer trace.Tracer

	session *session

	mu        sync.Mutex
	state     AuthState
	user      tree.Value
	addresses map[string]tree.Value
	lastError tree.Value
}

// NewClient creates a client with a fresh, unauthenticated session.
func NewClient(creds types.Credentials, env types.Environment) (*Client, error) {
	if creds.Language == "" {
		creds.Language = types.DefaultLanguage
	}
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	s, err := newSession(env)
	if err != nil {
		return nil, err
	}
	return &Client{
		env:       env,
		creds:     creds,
		tracer:    otel.Tracer("github.com/raterudder/telenet-exporter/pkg/telenet"),
		session:   s,
		addresses: make(map[string]tree.Value),
	}, nil
}

// State returns the current authentication state.
func (c *Client) State() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s AuthState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// UserDetails returns the details of the logged in user.
func (c *Client) UserDetails() tree.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// LastRequestError returns the body of the last soft-absent answer.
func (c *Client) LastRequestError() tree.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Products logs in when needed and rebuilds the whole product catalog. It
// returns either every product or a single error, never partial data.
func (c *Client) Products(ctx context.Context) ([]*types.Product, error) {
	res, err := c.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return res.Catalog.List(), nil
}

// Refresh is Products but also returns the computed cost total.
func (c *Client) Refresh(ctx context.Context) (catalog.BuildResult, error) {
	ctx, span := c.tracer.Start(ctx, "telenet.Refresh")
	defer span.End()

	if err := c.Login(ctx); err != nil {
		span.RecordError(err)
		return catalog.BuildResult{}, err
	}
	b := catalog.NewBuilder(c, c.creds.Language)
	res, err := b.Build(ctx, c.UserDetails())
	if err != nil {
		span.RecordError(err)
		return catalog.BuildResult{}, err
	}
	return res, nil
}
