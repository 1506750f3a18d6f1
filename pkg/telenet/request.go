package telenet

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/raterudder/telenet-exporter/pkg/log"
	"github.com/raterudder/telenet-exporter/pkg/tree"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

// expectAny accepts any status code.
const expectAny = 0

// fatalForbiddenCodes are 403 error codes that must fail the refresh. Every
// other coded 403 means the account has no access to that feature.
var fatalForbiddenCodes = map[string]bool{
	"OCAPI-ERR-667": true,
}

type request struct {
	caller   string
	url      string
	form     map[string]string
	expected int
	// strict requests return every status >= 404 to the caller instead of
	// collapsing it into ErrNoData.
	strict bool
	// auth requests are part of the login flow and never trigger a re-login.
	auth bool
}

// do sends the request. On an unexpected status it logs in again and
// retries until the retry budget is spent.
func (c *Client) do(ctx context.Context, req request) (*resty.Response, error) {
	return c.send(ctx, req, ConnectionRetry, false)
}

func (c *Client) send(ctx context.Context, req request, retriesLeft int, retrying bool) (*resty.Response, error) {
	method := http.MethodGet
	if req.form != nil {
		method = http.MethodPost
	}
	ctx, span := c.tracer.Start(ctx, req.caller, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", req.url),
		attribute.Int("telenet.retries_left", retriesLeft),
	))
	defer span.End()

	log.Ctx(ctx).DebugContext(ctx, "calling telenet",
		slog.String("caller", req.caller),
		slog.String("method", method),
		slog.String("url", req.url),
	)

	r := c.session.http.R().SetContext(ctx)
	if req.form != nil {
		r.SetFormData(req.form)
	}
	resp, err := r.Execute(method, req.url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, &ConnectionError{Caller: req.caller, URL: req.url, Err: err}
	}

	status := resp.StatusCode()
	span.SetAttributes(attribute.Int("http.status_code", status))
	log.Ctx(ctx).DebugContext(ctx, "telenet responded",
		slog.String("caller", req.caller),
		slog.Int("status", status),
		slog.Int("expected", req.expected),
	)

	if req.expected != expectAny && status != req.expected {
		switch {
		case status == http.StatusNotFound:
			c.setLastError(resp.Body())
			return nil, types.ErrNoData
		case !retryable(status) && !retrying:
			return nil, &ServiceError{
				Caller: req.caller,
				Status: status,
				Msg:    fmt.Sprintf("expected HTTP %d, url %s, response %s", req.expected, finalURL(resp), resp.String()),
			}
		case status == http.StatusForbidden && bytes.Contains(resp.Body(), []byte("code")):
			body, _ := tree.Parse(resp.Body())
			code := body.Get("code").Str()
			if !fatalForbiddenCodes[code] {
				log.Ctx(ctx).DebugContext(ctx, "telenet access forbidden",
					slog.String("caller", req.caller),
					slog.String("code", code),
				)
				c.setLastError(resp.Body())
				return nil, types.ErrNoData
			}
			return nil, &ServiceError{
				Caller: req.caller,
				Status: status,
				Msg:    body.Get("cause").Str() + " for " + c.creds.Username,
			}
		}

		if req.auth {
			return nil, &ServiceError{
				Caller: req.caller,
				Status: status,
				Msg:    "unexpected status during login, url " + finalURL(resp),
			}
		}
		if retriesLeft <= 0 {
			return nil, &ServiceError{
				Caller: req.caller,
				Status: status,
				Msg:    "retry budget exhausted, url " + finalURL(resp),
			}
		}

		log.Ctx(ctx).DebugContext(ctx, "unexpected status, logging in again",
			slog.String("caller", req.caller),
			slog.Int("status", status),
			slog.Int("retriesLeft", retriesLeft),
		)
		c.setState(Unauthenticated)
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
		return c.send(ctx, req, retriesLeft-1, true)
	}

	if !req.strict && status >= http.StatusNotFound {
		c.setLastError(resp.Body())
		return nil, types.ErrNoData
	}
	return resp, nil
}

// retryable statuses mean the session expired or the portal hiccupped.
func retryable(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

func (c *Client) setLastError(body []byte) {
	v, err := tree.Parse(body)
	if err != nil {
		v = tree.Of(string(body))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = v
}
