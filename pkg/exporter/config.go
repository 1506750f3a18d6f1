package exporter

import (
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
)

// Config holds the exporter settings.
type Config struct {
	ListenAddr   string
	PollInterval time.Duration
}

// Configured registers the exporter flags.
func Configured() *Config {
	cfg := &Config{}

	port := os.Getenv("PORT")
	if port == "" {
		port = "9207"
	}
	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	interval := lflag.Duration("poll-interval", DefaultPollInterval, "How often the Telenet portal is scraped")

	lflag.Do(func() {
		cfg.ListenAddr = *listenAddr
		cfg.PollInterval = *interval
		if cfg.PollInterval < time.Minute {
			panic("poll-interval must be at least 1m")
		}
	})
	return cfg
}
