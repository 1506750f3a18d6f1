package telenet

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/publicsuffix"

	"github.com/raterudder/telenet-exporter/pkg/common"
	"github.com/raterudder/telenet-exporter/pkg/log"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

const (
	// RequestTimeout bounds every single upstream request.
	RequestTimeout = 10 * time.Second

	xsrfCookie = "TOKEN-XSRF"
	xsrfHeader = "X-TOKEN-XSRF"
)

// session is the cookie and header state shared by every request of a
// client. It lives as long as the client and is never persisted.
type session struct {
	http *resty.Client
	jar  http.CookieJar
	// hosts whose cookies may carry the xsrf token
	hosts []*url.URL
}

func newSession(env types.Environment) (*session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	hc := common.HTTPClient(RequestTimeout, map[string]string{
		"Referer":       env.Referer,
		"x-alt-referer": env.AltReferer,
	})
	hc.Jar = jar
	hc.Transport = otelhttp.NewTransport(hc.Transport)

	s := &session{
		jar: jar,
	}
	for _, raw := range []string{env.OCAPIOAuth, env.OCAPIPublicAPI, env.OCAPIPublic, env.OpenID} {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse environment url (%s): %w", raw, err)
		}
		s.hosts = append(s.hosts, u)
	}

	s.http = resty.NewWithClient(hc).
		SetLogger(restyLogger{}).
		SetHeader("User-Agent", common.BrowserUserAgent).
		OnAfterResponse(func(_ *resty.Client, _ *resty.Response) error {
			s.refreshXSRF()
			return nil
		})
	return s, nil
}

// Cookie returns the value of the named cookie from any of the portal
// hosts, or "" when no host has it.
func (s *session) Cookie(name string) string {
	for _, u := range s.hosts {
		for _, c := range s.jar.Cookies(u) {
			if c.Name == name {
				return c.Value
			}
		}
	}
	return ""
}

// refreshXSRF copies the xsrf cookie into the header sent with every
// following request.
func (s *session) refreshXSRF() {
	if token := s.Cookie(xsrfCookie); token != "" {
		s.http.SetHeader(xsrfHeader, token)
	}
}

// finalURL is the URL of the last request after following redirects.
func finalURL(resp *resty.Response) string {
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		return resp.RawResponse.Request.URL.String()
	}
	return resp.Request.URL
}

// restyLogger sends resty's own warnings to slog.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	log.Ctx(context.Background()).Error(fmt.Sprintf(format, v...), slog.String("component", "resty"))
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	log.Ctx(context.Background()).Warn(fmt.Sprintf(format, v...), slog.String("component", "resty"))
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	log.Ctx(context.Background()).Debug(fmt.Sprintf(format, v...), slog.String("component", "resty"))
}
