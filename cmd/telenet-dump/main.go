package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/telenet-exporter/pkg/log"
	"github.com/raterudder/telenet-exporter/pkg/telenet"
)

func main() {
	tc := telenet.Configured()
	pretty := lflag.Bool("pretty", true, "Indent the JSON output")
	timeout := lflag.Duration("timeout", 5*time.Minute, "Maximum duration of the whole fetch")
	lflag.Configure()

	level, err := log.LevelFromLLog()
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, err := tc.NewClient()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	log.Ctx(ctx).InfoContext(ctx, "fetching products")
	res, err := c.Refresh(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch products",
			slog.String("kind", telenet.Classify(err).String()),
			slog.Any("error", err),
		)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	out := struct {
		User      any    `json:"user"`
		TotalCost string `json:"totalCost"`
		Products  any    `json:"products"`
	}{
		User:      c.UserDetails(),
		TotalCost: res.TotalCost.StringFixed(2),
		Products:  res.Catalog.List(),
	}
	if err := enc.Encode(out); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to write products", slog.Any("error", err))
		os.Exit(1)
	}
}
