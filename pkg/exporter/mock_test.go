package exporter

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/raterudder/telenet-exporter/pkg/catalog"
	"github.com/raterudder/telenet-exporter/pkg/telenet"
	"github.com/raterudder/telenet-exporter/pkg/tree"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Refresh(ctx context.Context) (catalog.BuildResult, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(catalog.BuildResult)
	return res, args.Error(1)
}

// reportingFetcher also exposes a login state.
type reportingFetcher struct {
	mockFetcher
	state     telenet.AuthState
	lastError tree.Value
}

func (r *reportingFetcher) State() telenet.AuthState {
	return r.state
}

func (r *reportingFetcher) LastRequestError() tree.Value {
	return r.lastError
}

// blockingFetcher blocks every refresh until release is closed.
type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingFetcher) Refresh(ctx context.Context) (catalog.BuildResult, error) {
	close(b.started)
	<-b.release
	return result("0"), nil
}

// plan returns a plan product with a price sensor.
func plan(id string) []*types.Product {
	return []*types.Product{
		{
			Identifier:     id,
			Key:            id + "_bundle_product",
			Type:           types.ProductTypeBundle,
			PlanIdentifier: id,
			PlanLabel:      "Plan " + id,
			State:          "Plan " + id,
		},
		{
			Identifier:     id + " price",
			Key:            id + "_bundle_price",
			Type:           types.ProductTypeBundle,
			DescriptionKey: types.DescriptionEuro,
			PlanIdentifier: id,
			PlanLabel:      "Plan " + id,
			State:          10.0,
			Extra:          true,
		},
	}
}

func result(cost string, plans ...string) catalog.BuildResult {
	c := types.NewCatalog()
	for _, id := range plans {
		for _, p := range plan(id) {
			c.Add(p)
		}
	}
	return catalog.BuildResult{Catalog: c, TotalCost: decimal.RequireFromString(cost)}
}
