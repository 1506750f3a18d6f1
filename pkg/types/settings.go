package types

import (
	"fmt"
	"net/url"
)

// Languages that the portal serves localized content in.
var Languages = []string{"nl", "fr", "en"}

// DefaultLanguage is used when no language was configured.
const DefaultLanguage = "nl"

// Credentials are the portal login credentials.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"-"`
	Language string `json:"language"`
}

// Validate checks that the credentials are usable.
func (c Credentials) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("missing username")
	}
	if c.Password == "" {
		return fmt.Errorf("missing password")
	}
	for _, l := range Languages {
		if l == c.Language {
			return nil
		}
	}
	return fmt.Errorf("unsupported language: %q", c.Language)
}

// Environment holds the base URLs of the upstream hosts.
type Environment struct {
	OCAPI          string `json:"ocapi"`
	OCAPIPublic    string `json:"ocapiPublic"`
	OCAPIPublicAPI string `json:"ocapiPublicAPI"`
	OCAPIOAuth     string `json:"ocapiOAuth"`
	OpenID         string `json:"openID"`
	Referer        string `json:"referer"`
	AltReferer     string `json:"altReferer"`
}

// DefaultEnvironment is the production environment.
var DefaultEnvironment = Environment{
	OCAPI:          "https://api.prd.telenet.be/ocapi",
	OCAPIPublic:    "https://api.prd.telenet.be/ocapi/public",
	OCAPIPublicAPI: "https://api.prd.telenet.be/ocapi/public/api",
	OCAPIOAuth:     "https://api.prd.telenet.be/ocapi/oauth",
	OpenID:         "https://login.prd.telenet.be/openid",
	Referer:        "https://www2.telenet.be/residential/nl/mijn-telenet",
	AltReferer:     "https://www2.telenet.be/",
}

// Validate ensures every base URL parses.
func (e Environment) Validate() error {
	for name, raw := range map[string]string{
		"ocapi":            e.OCAPI,
		"ocapi public":     e.OCAPIPublic,
		"ocapi public api": e.OCAPIPublicAPI,
		"ocapi oauth":      e.OCAPIOAuth,
		"openid":           e.OpenID,
	} {
		if raw == "" {
			return fmt.Errorf("%s url is required", name)
		}
		if _, err := url.Parse(raw); err != nil {
			return fmt.Errorf("failed to parse %s url (%s): %w", name, raw, err)
		}
	}
	return nil
}
