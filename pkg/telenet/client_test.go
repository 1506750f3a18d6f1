package telenet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/raterudder/telenet-exporter/pkg/catalog"
	"github.com/raterudder/telenet-exporter/pkg/log"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

const apiPrefix = "/ocapi/public/api/"

// fakePortal mimics the login hosts and the public api on one server.
type fakePortal struct {
	t *testing.T

	mu        sync.Mutex
	loggedIn  bool
	challenge string
	user      map[string]any
	// userStatus overrides the status of the user details endpoint
	userStatus int
	hits       map[string]int
	form       map[string]string
	referer    string
	xsrf       string
	api        map[string]http.HandlerFunc
}

func newFakePortal(t *testing.T) (*fakePortal, *httptest.Server) {
	p := &fakePortal{
		t:         t,
		challenge: "state1,nonce1",
		user: map[string]any{
			"customer_number": "C1",
			"first_name":      "Jan",
			"scopes":          []any{"a"},
		},
		hits: make(map[string]int),
		api:  make(map[string]http.HandlerFunc),
	}
	ts := httptest.NewServer(p)
	t.Cleanup(ts.Close)
	return p, ts
}

func (p *fakePortal) count(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[path]
}

// seen returns the last login form, referer and xsrf header received.
func (p *fakePortal) seen() (map[string]string, string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.form, p.referer, p.xsrf
}

func (p *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.hits[r.URL.Path]++
	p.referer = r.Header.Get("Referer")
	if h := r.Header.Get(xsrfHeader); h != "" {
		p.xsrf = h
	}
	loggedIn := p.loggedIn
	p.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: xsrfCookie, Value: "xsrf-1", Path: "/"})

	switch {
	case r.URL.Path == "/ocapi/oauth/userdetails":
		p.mu.Lock()
		status := p.userStatus
		p.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		if !loggedIn {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, p.challenge)
			return
		}
		json.NewEncoder(w).Encode(p.user)
	case r.URL.Path == "/openid/oauth/authorize":
		assert.Equal(p.t, "state1", r.URL.Query().Get("state"))
		assert.Equal(p.t, "nonce1", r.URL.Query().Get("nonce"))
		assert.Equal(p.t, "ocapi", r.URL.Query().Get("client_id"))
		http.Redirect(w, r, "/openid/login", http.StatusFound)
	case r.URL.Path == "/openid/login":
		fmt.Fprint(w, "<html>login</html>")
	case r.URL.Path == "/openid/login.do":
		require.NoError(p.t, r.ParseForm())
		p.mu.Lock()
		p.form = map[string]string{
			"j_username": r.Form.Get("j_username"),
			"j_password": r.Form.Get("j_password"),
			"rememberme": r.Form.Get("rememberme"),
		}
		p.mu.Unlock()
		if r.Form.Get("j_password") == "bad" {
			http.Redirect(w, r, "/openid/login?authentication_error=true", http.StatusFound)
			return
		}
		p.mu.Lock()
		p.loggedIn = true
		p.mu.Unlock()
		fmt.Fprint(w, "ok")
	case strings.HasPrefix(r.URL.Path, apiPrefix):
		h, ok := p.api[strings.TrimPrefix(r.URL.Path, apiPrefix)]
		if !ok {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		h(w, r)
	default:
		http.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
	}
}

func testEnvironment(base string) types.Environment {
	return types.Environment{
		OCAPI:          base + "/ocapi",
		OCAPIPublic:    base + "/ocapi/public",
		OCAPIPublicAPI: base + "/ocapi/public/api",
		OCAPIOAuth:     base + "/ocapi/oauth",
		OpenID:         base + "/openid",
		Referer:        "https://portal.example/",
	}
}

func newTestClient(t *testing.T, base, password string) *Client {
	c, err := NewClient(types.Credentials{Username: "user@example.com", Password: password}, testEnvironment(base))
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(types.Credentials{Username: "u"}, types.DefaultEnvironment)
	assert.Error(t, err)

	_, err = NewClient(types.Credentials{Username: "u", Password: "p", Language: "de"}, types.DefaultEnvironment)
	assert.Error(t, err)

	c, err := NewClient(types.Credentials{Username: "u", Password: "p"}, types.DefaultEnvironment)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultLanguage, c.creds.Language)
	assert.Equal(t, Unauthenticated, c.State())
}

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
	})

	_, ts := newFakePortal(t)
	c := newTestClient(t, ts.URL, "pass")
	require.NoError(t, c.Login(context.Background()))

	names := make(map[string]int)
	var clientSpans int
	for _, span := range recorder.Ended() {
		names[span.Name()]++
		if span.SpanKind() == oteltrace.SpanKindClient {
			clientSpans++
		}
	}
	assert.Equal(t, 1, names["login"])
	assert.Equal(t, 1, names["login authorize"])
	assert.Equal(t, 1, names["login form"])
	assert.Equal(t, 1, names["login user details"])
	assert.Positive(t, clientSpans, "the transport records the outgoing requests")
}

func TestLogin(t *testing.T) {
	t.Run("session still valid", func(t *testing.T) {
		p, ts := newFakePortal(t)
		p.loggedIn = true
		c := newTestClient(t, ts.URL, "pass")

		require.NoError(t, c.Login(context.Background()))
		assert.Equal(t, Authenticated, c.State())
		assert.Equal(t, 1, p.count("/ocapi/oauth/userdetails"))
		assert.Equal(t, 0, p.count("/openid/login.do"))
		assert.Equal(t, "C1", c.UserDetails().Get("customer_number").Str())
		assert.False(t, c.UserDetails().Has("scopes"))
	})

	t.Run("full login", func(t *testing.T) {
		p, ts := newFakePortal(t)
		c := newTestClient(t, ts.URL, "pass")

		require.NoError(t, c.Login(context.Background()))
		assert.Equal(t, Authenticated, c.State())
		assert.Equal(t, 2, p.count("/ocapi/oauth/userdetails"))
		assert.Equal(t, 1, p.count("/openid/oauth/authorize"))
		form, referer, _ := p.seen()
		assert.Equal(t, map[string]string{
			"j_username": "user@example.com",
			"j_password": "pass",
			"rememberme": "true",
		}, form)
		assert.Equal(t, "https://portal.example/", referer)
		assert.Equal(t, "Jan", c.UserDetails().Get("first_name").Str())
	})

	t.Run("rejected credentials", func(t *testing.T) {
		_, ts := newFakePortal(t)
		c := newTestClient(t, ts.URL, "bad")

		err := c.Login(context.Background())
		var credErr *CredentialsError
		require.ErrorAs(t, err, &credErr)
		assert.Equal(t, KindCredentials, Classify(err))
		assert.Equal(t, Unauthenticated, c.State())
	})

	t.Run("missing customer number", func(t *testing.T) {
		p, ts := newFakePortal(t)
		p.user = map[string]any{"first_name": "Jan"}
		c := newTestClient(t, ts.URL, "pass")

		err := c.Login(context.Background())
		var credErr *CredentialsError
		require.ErrorAs(t, err, &credErr)
	})

	t.Run("challenge without tokens", func(t *testing.T) {
		p, ts := newFakePortal(t)
		p.challenge = "garbage"
		c := newTestClient(t, ts.URL, "pass")

		err := c.Login(context.Background())
		var svcErr *ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, ConnectionRetry+1, p.count("/ocapi/oauth/userdetails"))
		assert.Equal(t, 0, p.count("/openid/oauth/authorize"))
	})

	t.Run("challenge server error", func(t *testing.T) {
		p, ts := newFakePortal(t)
		p.userStatus = http.StatusBadGateway
		c := newTestClient(t, ts.URL, "pass")

		err := c.Login(context.Background())
		var svcErr *ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, http.StatusBadGateway, svcErr.Status)
		assert.Equal(t, 1, p.count("/ocapi/oauth/userdetails"))
	})

	t.Run("connection refused", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		ts.Close()
		c := newTestClient(t, ts.URL, "pass")

		err := c.Login(context.Background())
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, KindConnection, Classify(err))
	})
}

func TestRequests(t *testing.T) {
	setup := func(t *testing.T) (*fakePortal, *Client) {
		p, ts := newFakePortal(t)
		p.loggedIn = true
		return p, newTestClient(t, ts.URL, "pass")
	}

	t.Run("xsrf header", func(t *testing.T) {
		p, c := setup(t)
		p.api["customer-service/v1/customers"] = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"accountNumber":"ACC1"}`)
		}
		require.NoError(t, c.Login(context.Background()))
		v, err := c.Customer(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ACC1", v.Get("accountNumber").Str())
		_, _, xsrf := p.seen()
		assert.Equal(t, "xsrf-1", xsrf)
		assert.Equal(t, "xsrf-1", c.session.Cookie(xsrfCookie))
	})

	t.Run("not found is no data", func(t *testing.T) {
		_, c := setup(t)
		_, err := c.Customer(context.Background())
		assert.ErrorIs(t, err, types.ErrNoData)
		assert.Equal(t, "not found", c.LastRequestError().Get("message").Str())

		_, err = c.ProductsList(context.Background())
		assert.ErrorIs(t, err, types.ErrNoData)
	})

	t.Run("forbidden feature is no data", func(t *testing.T) {
		p, c := setup(t)
		p.api["mailbox-mgmt-service/v1/mailboxesandaliases"] = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"code":"OCAPI-ERR-123","cause":"no mailbox"}`)
		}
		_, err := c.MailboxesAndAliases(context.Background())
		assert.ErrorIs(t, err, types.ErrNoData)
		assert.Equal(t, 1, p.count(apiPrefix+"mailbox-mgmt-service/v1/mailboxesandaliases"))
	})

	t.Run("fatal forbidden code", func(t *testing.T) {
		p, c := setup(t)
		p.api["customer-service/v1/customers"] = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"code":"OCAPI-ERR-667","cause":"account blocked"}`)
		}
		_, err := c.Customer(context.Background())
		var svcErr *ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Contains(t, svcErr.Msg, "account blocked")
		assert.Equal(t, KindService, Classify(err))
	})

	t.Run("server error retried after login", func(t *testing.T) {
		p, c := setup(t)
		p.api["customer-service/v1/customers"] = func(w http.ResponseWriter, r *http.Request) {
			if p.count(r.URL.Path) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, `{"accountNumber":"ACC1"}`)
		}
		v, err := c.Customer(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ACC1", v.Get("accountNumber").Str())
		assert.Equal(t, 2, p.count(apiPrefix+"customer-service/v1/customers"))
		assert.Equal(t, 1, p.count("/ocapi/oauth/userdetails"))
		assert.Equal(t, Authenticated, c.State())
	})

	t.Run("retry budget", func(t *testing.T) {
		p, c := setup(t)
		p.api["customer-service/v1/customers"] = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}
		_, err := c.Customer(context.Background())
		var svcErr *ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, http.StatusInternalServerError, svcErr.Status)
		assert.Equal(t, ConnectionRetry+1, p.count(apiPrefix+"customer-service/v1/customers"))
	})

	t.Run("unexpected status", func(t *testing.T) {
		p, c := setup(t)
		p.api["customer-service/v1/customers"] = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}
		_, err := c.Customer(context.Background())
		var svcErr *ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, 1, p.count(apiPrefix+"customer-service/v1/customers"))
		assert.Equal(t, 0, p.count("/ocapi/oauth/userdetails"))
	})

	t.Run("address cache", func(t *testing.T) {
		p, c := setup(t)
		p.api["contact-service/v1/contact/addresses/A1"] = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"street":"Main"}`)
		}
		for i := 0; i < 2; i++ {
			v, err := c.Address(context.Background(), "A1")
			require.NoError(t, err)
			assert.Equal(t, "Main", v.Get("street").Str())
		}
		assert.Equal(t, 1, p.count(apiPrefix+"contact-service/v1/contact/addresses/A1"))

		v, err := c.Address(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, 0, v.Len())
	})

	t.Run("bill cycles", func(t *testing.T) {
		p, c := setup(t)
		p.api["billing-service/v1/account/products/INT1/billcycle-details"] = func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "2", r.URL.Query().Get("count"))
			fmt.Fprint(w, `{"billCycles":[
				{"billCycle":"CURRENT","startDate":"2026-10-01","endDate":"2026-10-31"},
				{"billCycle":"PREVIOUS","startDate":"2026-09-01","endDate":"2026-09-30"}
			]}`)
		}
		p.api["billing-service/v1/account/products/DTV1/billcycle-details"] = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"billCycles":[{"billCycle":"CURRENT","startDate":"2026-10-01","endDate":"2026-10-31"}]}`)
		}
		p.api["billing-service/v1/account/products/EMPTY/billcycle-details"] = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"billCycles":[]}`)
		}

		bc, err := c.BillCycles(context.Background(), "internet", "INT1", 2)
		require.NoError(t, err)
		assert.Equal(t, types.BillCycle{
			StartDate: "2026-10-01",
			EndDate:   "2026-10-31",
			Cycles: []types.BillSubCycle{
				{BillCycle: "CURRENT", StartDate: "2026-10-01", EndDate: "2026-10-31"},
				{BillCycle: "PREVIOUS", StartDate: "2026-09-01", EndDate: "2026-09-30"},
			},
		}, bc)

		bc, err = c.BillCycles(context.Background(), "dtv", "DTV1", 1)
		require.NoError(t, err)
		assert.Empty(t, bc.Cycles)
		assert.Equal(t, "2026-10-01", bc.StartDate)

		_, err = c.BillCycles(context.Background(), "dtv", "EMPTY", 1)
		assert.ErrorIs(t, err, types.ErrNoData)
	})

	t.Run("daily usage without content", func(t *testing.T) {
		p, c := setup(t)
		p.api["product-service/v1/products/internet/INT1/dailyusage"] = func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "CURRENT", r.URL.Query().Get("billcycle"))
			w.WriteHeader(http.StatusAccepted)
		}
		v, err := c.ProductDailyUsage(context.Background(), "internet", "INT1", "CURRENT", "2026-10-01", "2026-10-31")
		require.NoError(t, err)
		assert.Equal(t, 0, v.Len())
	})

	t.Run("invalid body", func(t *testing.T) {
		p, c := setup(t)
		p.api["customer-service/v1/customers"] = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"accountNumber"`)
		}
		_, err := c.Customer(context.Background())
		var svcErr *ServiceError
		require.ErrorAs(t, err, &svcErr)
	})
}

func TestProducts(t *testing.T) {
	t.Run("empty account", func(t *testing.T) {
		p, ts := newFakePortal(t)
		p.api["product-service/v1/products"] = func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "ACTIVE", r.URL.Query().Get("status"))
			fmt.Fprint(w, `[]`)
		}
		p.api["customer-service/v1/customers"] = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"accountNumber":"ACC1"}`)
		}
		c := newTestClient(t, ts.URL, "pass")

		products, err := c.Products(context.Background())
		require.NoError(t, err)
		ids := make([]string, 0, len(products))
		for _, p := range products {
			ids = append(ids, p.Identifier)
		}
		assert.ElementsMatch(t, []string{"C1 current invoice", "user details", "customer"}, ids)
		assert.Equal(t, Authenticated, c.State())
	})

	t.Run("no products anywhere", func(t *testing.T) {
		_, ts := newFakePortal(t)
		c := newTestClient(t, ts.URL, "pass")

		_, err := c.Products(context.Background())
		assert.ErrorIs(t, err, catalog.ErrNoProducts)
		assert.Equal(t, KindService, Classify(err))
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"credentials", fmt.Errorf("wrapped: %w", &CredentialsError{Msg: "x"}), KindCredentials},
		{"service", &ServiceError{Caller: "c", Status: 500}, KindService},
		{"connection", &ConnectionError{Caller: "c", Err: errors.New("refused")}, KindConnection},
		{"service wrapping connection", &ServiceError{Caller: "c", Err: &ConnectionError{}}, KindService},
		{"no data", fmt.Errorf("x: %w", types.ErrNoData), KindService},
		{"no products", catalog.ErrNoProducts, KindService},
		{"unknown", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
	assert.Equal(t, "credentials", KindCredentials.String())
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "[customer] HTTP 500: boom", (&ServiceError{Caller: "customer", Status: 500, Msg: "boom"}).Error())
	assert.Equal(t, "[login] bad: cause", (&ServiceError{Caller: "login", Msg: "bad", Err: errors.New("cause")}).Error())
	assert.Equal(t, "invalid credentials: nope", (&CredentialsError{Msg: "nope"}).Error())
}
