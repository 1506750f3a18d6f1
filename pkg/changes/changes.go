// Package changes compares a freshly fetched product list with what the
// host already knows about.
package changes

import (
	"context"
	"log/slog"

	"github.com/raterudder/telenet-exporter/pkg/log"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

// Result is the outcome of comparing a fetch with the known state.
type Result struct {
	// Remove lists registered plans that are gone upstream.
	Remove []string
	// NewPlans lists plans that were not part of the previous products.
	NewPlans []string
	// Reload asks for a new session. Products is nil when it is set.
	Reload bool
	// Products is the fetched list to publish.
	Products []*types.Product
}

// Detector compares fetches with the device registry and the previous
// in-memory products.
type Detector struct {
}

// NewDetector creates a new Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect compares fetched against the plans of the registered devices and
// the previously published products. An empty fetch is always published as
// is. A plan missing from previous discards the fetch and asks for a reload;
// nothing is compared against previous when it is empty.
func (d *Detector) Detect(ctx context.Context, registered []string, previous, fetched []*types.Product) Result {
	if len(fetched) == 0 {
		return Result{Products: []*types.Product{}}
	}

	fetchedPlans := types.PlanIdentifiers(fetched)
	var res Result
	res.Remove = difference(registered, fetchedPlans)
	for _, plan := range res.Remove {
		log.Ctx(ctx).InfoContext(ctx, "plan removed upstream", slog.String("plan", plan))
	}

	if len(previous) > 0 {
		res.NewPlans = difference(fetchedPlans, types.PlanIdentifiers(previous))
	}
	if len(res.NewPlans) > 0 {
		log.Ctx(ctx).InfoContext(ctx, "new products discovered, reloading",
			slog.Any("plans", res.NewPlans),
		)
		res.Reload = true
		return res
	}

	res.Products = fetched
	return res
}

// difference returns the entries of a that are not in b, in the order of a.
func difference(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, s := range b {
		in[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := in[s]; ok {
			continue
		}
		out = append(out, s)
	}
	return out
}
