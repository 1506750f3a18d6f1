// Package catalog turns the portal's plan, usage and account documents into
// a flat list of products, including the derived usage and cost sensors.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/raterudder/telenet-exporter/pkg/log"
	"github.com/raterudder/telenet-exporter/pkg/tree"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

// ErrNoProducts is returned when neither the product service nor the legacy
// API returned any product for the account.
var ErrNoProducts = errors.New("no products found: the API is down or the account is not migrated to the new Telenet IT system yet")

const customerPlanLabel = "Customer"

// Builder builds a catalog from a Source.
type Builder struct {
	Source   Source
	Language string
	Now      func() time.Time
}

// NewBuilder returns a builder reading from src and selecting localized
// content in language.
func NewBuilder(src Source, language string) *Builder {
	return &Builder{
		Source:   src,
		Language: language,
		Now:      time.Now,
	}
}

// BuildResult is the outcome of one build.
type BuildResult struct {
	Catalog *types.Catalog
	// TotalCost is the sum of every price and usage cost in the catalog.
	TotalCost decimal.Decimal
}

// run is the state of a single build.
type run struct {
	*Builder
	ctx  context.Context
	user tree.Value

	catalog *types.Catalog
	cost    decimal.Decimal

	specs          map[string]tree.Value
	simDetails     []tree.Value
	simLoaded      bool
	plans          map[string]map[string]any
	bundlesEmitted map[string]bool
}

func (b *Builder) newRun(ctx context.Context, user tree.Value) *run {
	if b.Now == nil {
		b.Now = time.Now
	}
	if b.Language == "" {
		b.Language = types.DefaultLanguage
	}
	return &run{
		Builder:        b,
		ctx:            ctx,
		user:           user,
		catalog:        types.NewCatalog(),
		cost:           decimal.Zero,
		specs:          make(map[string]tree.Value),
		plans:          make(map[string]map[string]any),
		bundlesEmitted: make(map[string]bool),
	}
}

// Build fetches every active product and derives the extra sensors. When
// the product service has nothing for the account the legacy API is used.
// A soft absence only drops the feature it concerns; any other error aborts
// the build.
func (b *Builder) Build(ctx context.Context, user tree.Value) (BuildResult, error) {
	r := b.newRun(ctx, user)

	list, err := b.Source.ProductsList(ctx)
	if errors.Is(err, types.ErrNoData) {
		log.Ctx(ctx).InfoContext(ctx, "product service returned nothing, trying the legacy api")
		payload, err := b.Source.LegacyBundle(ctx)
		if errors.Is(err, types.ErrNoData) {
			return BuildResult{}, ErrNoProducts
		}
		if err != nil {
			return BuildResult{}, fmt.Errorf("failed to fetch legacy products: %w", err)
		}
		if payload.Get("customerproductholding").Len() == 0 {
			return BuildResult{}, ErrNoProducts
		}
		return b.BuildLegacy(ctx, payload, user)
	}
	if err != nil {
		return BuildResult{}, fmt.Errorf("failed to fetch products: %w", err)
	}

	for _, plan := range list.Array() {
		if err := r.addPlan(plan); err != nil {
			return BuildResult{}, err
		}
	}
	if err := r.addSubscriptions(); err != nil {
		return BuildResult{}, err
	}
	if err := r.loadPlanInfo(); err != nil {
		return BuildResult{}, err
	}
	if err := r.addExtras(); err != nil {
		return BuildResult{}, err
	}
	r.applyAllowList()

	log.Ctx(ctx).DebugContext(ctx, "catalog built",
		slog.Int("products", r.catalog.Len()),
		slog.String("totalCost", r.cost.String()),
	)
	return BuildResult{Catalog: r.catalog, TotalCost: r.cost}, nil
}

// addPlan registers a plan, its children and their options under the plan.
func (r *run) addPlan(plan tree.Value) error {
	planID := plan.Get("identifier").Str()
	planLabel := plan.Get("label").Str()
	if err := r.register(plan, planID, planLabel); err != nil {
		return err
	}

	dtvFound := false
	for _, child := range plan.Get("children").Array() {
		if child.Get("productType").Str() == string(types.ProductTypeDTV) {
			dtvFound = true
		}
		for _, option := range child.Get("options").Array() {
			if !option.Has("identifier") {
				continue
			}
			if err := r.register(option, planID, planLabel); err != nil {
				return err
			}
		}
		if err := r.register(child, planID, planLabel); err != nil {
			return err
		}
	}
	if dtvFound && plan.Get("productType").Str() == string(types.ProductTypeDTV) {
		if p, ok := r.catalog.Get(planID); ok {
			p.IgnoreExtra = true
		}
	}
	return nil
}

// register adds a fetched product unless its identifier is already known.
func (r *run) register(raw tree.Value, planID, planLabel string) error {
	id := raw.Get("identifier").Str()
	if _, ok := r.catalog.Get(id); ok {
		return nil
	}
	typ := raw.Get("productType").Str()

	var info tree.Value
	var price *types.Price
	specURL := raw.Get("specurl").Str()
	if specURL != "" {
		spec, err := r.spec(specURL)
		if err != nil {
			return err
		}
		info = spec
		price = parsePrice(info.Path("characteristics.salespricevatincl"))
	}

	var state any = raw.Get("label").Str()
	if name := tree.Localized(r.Language, info.Get("localizedcontent")).Get("name"); !name.IsNull() {
		state = name.Raw()
	}

	var attributes map[string]any
	if typ == string(types.ProductTypeMobile) {
		sim, err := r.simDetail(id)
		if err != nil {
			return err
		}
		attributes = sim.Map()
	}

	address, err := r.Source.Address(r.ctx, raw.Get("addressId").Str())
	if err != nil && !errors.Is(err, types.ErrNoData) {
		return fmt.Errorf("failed to fetch address of %s: %w", id, err)
	}

	log.Ctx(r.ctx).DebugContext(r.ctx, "registering product",
		slog.String("identifier", id),
		slog.String("productType", typ),
		slog.String("plan", planLabel),
	)
	r.catalog.Add(&types.Product{
		Identifier:     id,
		Key:            types.FormatKey(id + " " + typ + " product"),
		Type:           types.ProductType(typ),
		DescriptionKey: types.DescriptionKey(typ),
		PlanIdentifier: planID,
		PlanLabel:      planLabel,
		Name:           id,
		State:          state,
		Attributes:     attributes,
		Price:          price,
		Address:        address.Map(),
		SpecURL:        specURL,
		Info:           info,
	})
	return nil
}

// spec returns the catalog specification behind a spec URL, fetched once per
// build. A missing specification is an empty one.
func (r *run) spec(specURL string) (tree.Value, error) {
	if specURL == "" {
		return tree.Value{}, nil
	}
	if v, ok := r.specs[specURL]; ok {
		return v, nil
	}
	details, err := r.Source.ProductDetails(r.ctx, specURL)
	if err != nil && !errors.Is(err, types.ErrNoData) {
		return tree.Value{}, fmt.Errorf("failed to fetch product details: %w", err)
	}
	v := details.Get("product")
	r.specs[specURL] = v
	return v, nil
}

func (r *run) simDetail(mobile string) (tree.Value, error) {
	if !r.simLoaded {
		sims, err := r.Source.SimDetails(r.ctx)
		if err != nil && !errors.Is(err, types.ErrNoData) {
			return tree.Value{}, fmt.Errorf("failed to fetch sim details: %w", err)
		}
		r.simDetails = sims.Array()
		r.simLoaded = true
	}
	for _, sim := range r.simDetails {
		if sim.Get("mobile").Str() == mobile {
			return sim, nil
		}
	}
	return tree.Value{}, nil
}

// parsePrice reads a sales price. Non-positive prices are absent.
func parsePrice(v tree.Value) *types.Price {
	if v.IsNull() {
		return nil
	}
	value := decimalOf(v.Get("value"))
	if !value.IsPositive() {
		return nil
	}
	return &types.Price{
		Value: value,
		Unit:  v.Get("unit").Str(),
		Raw:   v.Map(),
	}
}

// addSubscriptions attaches the subscription of every known product, one
// lookup per discovered product type.
func (r *run) addSubscriptions() error {
	for _, t := range r.catalog.Types() {
		subs, err := r.Source.ProductSubscriptions(r.ctx, string(t))
		if errors.Is(err, types.ErrNoData) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to fetch %s subscriptions: %w", t, err)
		}
		for _, sub := range subs.Array() {
			if p, ok := r.catalog.Get(sub.Get("identifier").Str()); ok {
				p.SubscriptionInfo = sub.Map()
			}
		}
	}
	return nil
}

func (r *run) loadPlanInfo() error {
	plans, err := r.Source.PlanInfo(r.ctx)
	if errors.Is(err, types.ErrNoData) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch plan info: %w", err)
	}
	for _, plan := range plans.Array() {
		r.plans[plan.Get("identifier").Str()] = plan.Map()
	}
	return nil
}

// applyAllowList copies the allowed subscription (or plan) fields onto every
// fetched product.
func (r *run) applyAllowList() {
	for _, p := range r.catalog.List() {
		if p.Extra {
			continue
		}
		info := p.SubscriptionInfo
		if len(info) == 0 {
			info = r.plans[p.Identifier]
		}
		extra := filterAttributes(p.Type, info)
		if len(extra) == 0 {
			continue
		}
		p.Attributes = merge(p.Attributes, extra)
	}
}

// customerID is the pseudo plan of account level products.
func (r *run) customerID() string {
	return r.user.Get("customer_number").Str()
}
