package catalog

import (
	"context"

	"github.com/raterudder/telenet-exporter/pkg/tree"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

// Source is the set of portal lookups the builder needs. Every method returns
// types.ErrNoData when the data is absent for the account.
type Source interface {
	ProductsList(ctx context.Context) (tree.Value, error)
	ProductDetails(ctx context.Context, specURL string) (tree.Value, error)
	PlanInfo(ctx context.Context) (tree.Value, error)
	ProductSubscriptions(ctx context.Context, productType string) (tree.Value, error)
	BillCycles(ctx context.Context, productType, identifier string, count int) (types.BillCycle, error)
	ProductUsage(ctx context.Context, productType, identifier, from, to string) (tree.Value, error)
	ProductDailyUsage(ctx context.Context, productType, identifier, billCycle, from, to string) (tree.Value, error)
	SimDetails(ctx context.Context) (tree.Value, error)
	MobileUsage(ctx context.Context, identifier string) (tree.Value, error)
	MobileBundleUsage(ctx context.Context, bundle, line string) (tree.Value, error)
	MailboxesAndAliases(ctx context.Context) (tree.Value, error)
	Modems(ctx context.Context, identifier string) (tree.Value, error)
	ModemSettings(ctx context.Context, mac string) (tree.Value, error)
	NetworkTopology(ctx context.Context, mac string) (tree.Value, error)
	WirelessSettings(ctx context.Context, mac, identifier string) (tree.Value, error)
	DeviceDetails(ctx context.Context, productType, identifier string) (tree.Value, error)
	Address(ctx context.Context, id string) (tree.Value, error)
	Customer(ctx context.Context) (tree.Value, error)
	LegacyBundle(ctx context.Context) (tree.Value, error)
}
