// Package exporter runs the portal refresh loop on behalf of a host and
// exposes the result as Prometheus metrics and JSON.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raterudder/telenet-exporter/pkg/catalog"
	"github.com/raterudder/telenet-exporter/pkg/changes"
	"github.com/raterudder/telenet-exporter/pkg/log"
	"github.com/raterudder/telenet-exporter/pkg/telenet"
	"github.com/raterudder/telenet-exporter/pkg/tree"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

// DefaultPollInterval is how often the portal is scraped.
const DefaultPollInterval = 15 * time.Minute

// ErrRefreshInFlight is returned when a refresh is requested while another
// one is still running.
var ErrRefreshInFlight = errors.New("a refresh is already in flight")

// Fetcher is one portal session.
type Fetcher interface {
	Refresh(ctx context.Context) (catalog.BuildResult, error)
}

var (
	_ Fetcher         = (*telenet.Client)(nil)
	_ sessionReporter = (*telenet.Client)(nil)
)

// sessionReporter is implemented by fetchers that expose their login state.
type sessionReporter interface {
	State() telenet.AuthState
	LastRequestError() tree.Value
}

// ClientFactory opens a new portal session.
type ClientFactory func() (Fetcher, error)

// Snapshot is the last published state.
type Snapshot struct {
	Products    []*types.Product `json:"products"`
	TotalCost   float64          `json:"totalCost"`
	LastSuccess time.Time        `json:"lastSuccess"`
	LastError   string           `json:"lastError,omitempty"`
	ErrorKind   string           `json:"errorKind,omitempty"`
	// Session is the login state of the current portal session.
	Session string `json:"session,omitempty"`
	// LastRequestError is the body of the last answer treated as missing data.
	LastRequestError any `json:"lastRequestError,omitempty"`
}

// Poller refreshes the products periodically. At most one refresh runs at
// a time.
type Poller struct {
	factory  ClientFactory
	registry Registry
	detector *changes.Detector
	metrics  *Collector
	interval time.Duration
	now      func() time.Time

	refreshing atomic.Bool
	cycle      atomic.Int64

	mu       sync.RWMutex
	fetcher  Fetcher
	snapshot Snapshot
}

// NewPoller creates a poller. The first session is opened on the first
// refresh.
func NewPoller(factory ClientFactory, registry Registry, metrics *Collector, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		factory:  factory,
		registry: registry,
		detector: changes.NewDetector(),
		metrics:  metrics,
		interval: interval,
		now:      time.Now,
	}
}

// Snapshot returns the last published state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// Run refreshes immediately and then on every tick until ctx is done.
// Failed refreshes are retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Refresh(ctx); errors.Is(err, ErrRefreshInFlight) {
			log.Ctx(ctx).WarnContext(ctx, "skipping tick, refresh still running")
		}
		select {
		case <-ctx.Done():
			log.Ctx(ctx).InfoContext(ctx, "poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Poller) session() (Fetcher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetcher != nil {
		return p.fetcher, nil
	}
	f, err := p.factory()
	if err != nil {
		return nil, fmt.Errorf("failed to open telenet session: %w", err)
	}
	p.fetcher = f
	return f, nil
}

// Refresh fetches the products once, applies plan removals and publishes
// the result. When new plans show up the session is dropped and the refresh
// is repeated right away with a new session.
func (p *Poller) Refresh(ctx context.Context) error {
	if !p.refreshing.CompareAndSwap(false, true) {
		return ErrRefreshInFlight
	}
	defer p.refreshing.Store(false)

	ctx = log.WithAttrs(ctx, slog.Int64("cycle", p.cycle.Add(1)))
	reload, err := p.refresh(ctx)
	if err != nil || !reload {
		return err
	}
	// previous products were cleared so this pass cannot ask for another reload
	_, err = p.refresh(ctx)
	return err
}

func (p *Poller) refresh(ctx context.Context) (bool, error) {
	start := p.now()

	f, err := p.session()
	if err != nil {
		p.fail(ctx, nil, err)
		return false, err
	}
	res, err := f.Refresh(ctx)
	if err != nil {
		p.fail(ctx, f, err)
		return false, err
	}

	p.mu.RLock()
	previous := p.snapshot.Products
	p.mu.RUnlock()

	fetched := res.Catalog.List()
	result := p.detector.Detect(ctx, p.registry.PlanIDs(), previous, fetched)
	for _, plan := range result.Remove {
		p.registry.Remove(plan)
	}
	if result.Reload {
		p.mu.Lock()
		p.fetcher = nil
		p.snapshot.Products = nil
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.ClearProducts()
		}
		log.Ctx(ctx).InfoContext(ctx, "telenet session dropped for reload", slog.Any("plans", result.NewPlans))
		return true, nil
	}

	for _, product := range result.Products {
		if product.PlanIdentifier != "" {
			p.registry.Ensure(product.PlanIdentifier, product.PlanLabel)
		}
	}

	totalCost := res.TotalCost.InexactFloat64()
	snap := Snapshot{
		Products:    result.Products,
		TotalCost:   totalCost,
		LastSuccess: p.now(),
	}
	reportSession(&snap, f)
	p.mu.Lock()
	p.snapshot = snap
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.RecordSuccess(result.Products, totalCost, p.now())
	}

	log.Ctx(ctx).InfoContext(ctx, "telenet refresh succeeded",
		slog.Int("products", len(result.Products)),
		slog.Float64("totalCost", totalCost),
		slog.Duration("duration", p.now().Sub(start)),
	)
	return false, nil
}

func reportSession(snap *Snapshot, f Fetcher) {
	r, ok := f.(sessionReporter)
	if !ok {
		return
	}
	snap.Session = r.State().String()
	snap.LastRequestError = r.LastRequestError().Raw()
}

func (p *Poller) fail(ctx context.Context, f Fetcher, err error) {
	kind := telenet.Classify(err)
	p.mu.Lock()
	p.snapshot.LastError = err.Error()
	p.snapshot.ErrorKind = kind.String()
	if f != nil {
		reportSession(&p.snapshot, f)
	}
	if kind == telenet.KindCredentials {
		// start over with a new session
		p.fetcher = nil
	}
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.RecordFailure(kind)
	}
	log.Ctx(ctx).ErrorContext(ctx, "telenet refresh failed",
		slog.String("kind", kind.String()),
		slog.Any("error", err),
	)
}
