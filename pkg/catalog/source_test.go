package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/raterudder/telenet-exporter/pkg/log"
	"github.com/raterudder/telenet-exporter/pkg/tree"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

// fakeSource answers lookups from JSON documents keyed by call. Missing
// documents are soft absences.
type fakeSource struct {
	mu     sync.Mutex
	docs   map[string]string
	cycles map[string]types.BillCycle
	errs   map[string]error
	calls  map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		docs:   make(map[string]string),
		cycles: make(map[string]types.BillCycle),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeSource) get(key string) (tree.Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	if err, ok := f.errs[key]; ok {
		return tree.Value{}, err
	}
	doc, ok := f.docs[key]
	if !ok {
		return tree.Value{}, types.ErrNoData
	}
	v, err := tree.Parse([]byte(doc))
	if err != nil {
		panic(fmt.Errorf("invalid fixture %s: %w", key, err))
	}
	return v, nil
}

func (f *fakeSource) ProductsList(ctx context.Context) (tree.Value, error) {
	return f.get("products")
}

func (f *fakeSource) ProductDetails(ctx context.Context, specURL string) (tree.Value, error) {
	return f.get("details:" + specURL)
}

func (f *fakeSource) PlanInfo(ctx context.Context) (tree.Value, error) {
	return f.get("plans")
}

func (f *fakeSource) ProductSubscriptions(ctx context.Context, productType string) (tree.Value, error) {
	return f.get("subscriptions:" + productType)
}

func (f *fakeSource) BillCycles(ctx context.Context, productType, identifier string, count int) (types.BillCycle, error) {
	key := "billcycles:" + productType + ":" + identifier + ":" + strconv.Itoa(count)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	if err, ok := f.errs[key]; ok {
		return types.BillCycle{}, err
	}
	bc, ok := f.cycles[key]
	if !ok {
		return types.BillCycle{}, types.ErrNoData
	}
	return bc, nil
}

func (f *fakeSource) ProductUsage(ctx context.Context, productType, identifier, from, to string) (tree.Value, error) {
	return f.get("usage:" + productType + ":" + identifier)
}

func (f *fakeSource) ProductDailyUsage(ctx context.Context, productType, identifier, billCycle, from, to string) (tree.Value, error) {
	return f.get("daily:" + identifier + ":" + billCycle)
}

func (f *fakeSource) SimDetails(ctx context.Context) (tree.Value, error) {
	return f.get("sims")
}

func (f *fakeSource) MobileUsage(ctx context.Context, identifier string) (tree.Value, error) {
	return f.get("mobile:" + identifier)
}

func (f *fakeSource) MobileBundleUsage(ctx context.Context, bundle, line string) (tree.Value, error) {
	return f.get("bundle:" + bundle + ":" + line)
}

func (f *fakeSource) MailboxesAndAliases(ctx context.Context) (tree.Value, error) {
	return f.get("mailboxes")
}

func (f *fakeSource) Modems(ctx context.Context, identifier string) (tree.Value, error) {
	return f.get("modems:" + identifier)
}

func (f *fakeSource) ModemSettings(ctx context.Context, mac string) (tree.Value, error) {
	return f.get("modemsettings:" + mac)
}

func (f *fakeSource) NetworkTopology(ctx context.Context, mac string) (tree.Value, error) {
	return f.get("topology:" + mac)
}

func (f *fakeSource) WirelessSettings(ctx context.Context, mac, identifier string) (tree.Value, error) {
	return f.get("wireless:" + mac)
}

func (f *fakeSource) DeviceDetails(ctx context.Context, productType, identifier string) (tree.Value, error) {
	return f.get("devices:" + identifier)
}

func (f *fakeSource) Address(ctx context.Context, id string) (tree.Value, error) {
	if id == "" {
		return tree.Of(map[string]any{}), nil
	}
	return f.get("address:" + id)
}

func (f *fakeSource) Customer(ctx context.Context) (tree.Value, error) {
	return f.get("customer")
}

func (f *fakeSource) LegacyBundle(ctx context.Context) (tree.Value, error) {
	return f.get("legacy")
}

// currentInvoice returns the cost total reported by the invoice product.
func currentInvoice(products []*types.Product) (float64, bool) {
	for _, p := range products {
		if p.Type != types.ProductTypeInvoice || p.Name != CurrentInvoiceSuffix {
			continue
		}
		return p.NumericState()
	}
	return 0, false
}
