package telenet

import (
	"fmt"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/telenet-exporter/pkg/types"
)

// Config holds the settings needed to open a portal session.
type Config struct {
	Credentials types.Credentials
	Environment types.Environment
}

// Configured registers the portal flags and returns the config they fill in
// once lflag.Configure has run.
func Configured() *Config {
	cfg := &Config{}
	username := lflag.RequiredString("telenet-username", "Username (e-mail) of the Telenet account")
	password := lflag.RequiredString("telenet-password", "Password of the Telenet account")
	language := lflag.String("telenet-language", types.DefaultLanguage, "Language of localized content (nl, fr or en)")

	def := types.DefaultEnvironment
	ocapi := lflag.String("telenet-ocapi-url", def.OCAPI, "Base URL of the ocapi host")
	ocapiPublic := lflag.String("telenet-ocapi-public-url", def.OCAPIPublic, "Base URL of the legacy public API")
	ocapiPublicAPI := lflag.String("telenet-ocapi-public-api-url", def.OCAPIPublicAPI, "Base URL of the public API")
	ocapiOAuth := lflag.String("telenet-ocapi-oauth-url", def.OCAPIOAuth, "Base URL of the OAuth API")
	openID := lflag.String("telenet-openid-url", def.OpenID, "Base URL of the OpenID login host")
	referer := lflag.String("telenet-referer", def.Referer, "Referer header sent with every request")
	altReferer := lflag.String("telenet-alt-referer", def.AltReferer, "x-alt-referer header sent with every request")

	lflag.Do(func() {
		cfg.Credentials = types.Credentials{
			Username: *username,
			Password: *password,
			Language: *language,
		}
		cfg.Environment = types.Environment{
			OCAPI:          *ocapi,
			OCAPIPublic:    *ocapiPublic,
			OCAPIPublicAPI: *ocapiPublicAPI,
			OCAPIOAuth:     *ocapiOAuth,
			OpenID:         *openID,
			Referer:        *referer,
			AltReferer:     *altReferer,
		}
	})
	return cfg
}

// Validate checks the credentials and every URL.
func (c *Config) Validate() error {
	if err := c.Credentials.Validate(); err != nil {
		return fmt.Errorf("invalid telenet credentials: %w", err)
	}
	if err := c.Environment.Validate(); err != nil {
		return fmt.Errorf("invalid telenet environment: %w", err)
	}
	return nil
}

// NewClient opens a new, unauthenticated session.
func (c *Config) NewClient() (*Client, error) {
	return NewClient(c.Credentials, c.Environment)
}
