package telenet

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/raterudder/telenet-exporter/pkg/catalog"
	"github.com/raterudder/telenet-exporter/pkg/tree"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

var _ catalog.Source = (*Client)(nil)

// legacyParts are the sections requested from the v1 combined endpoint.
var legacyParts = []string{
	"accounts",
	"bills",
	"customerproductholding",
	"eligibleproducts",
	"contactdetails",
	"modems",
	"modemdetails",
	"internetusage",
	"internetusagereminder",
	"digitaltvdetails",
	"digitaltvlimits",
	"digitaltvbilledusage",
	"digitaltvunbilledusage",
	"mobilesubscriptions",
}

func (c *Client) api(path string, params url.Values) string {
	u := strings.TrimSuffix(c.env.OCAPIPublicAPI, "/") + "/" + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (c *Client) getJSON(ctx context.Context, caller, u string, expected int) (tree.Value, error) {
	resp, err := c.do(ctx, request{
		caller:   caller,
		url:      u,
		expected: expected,
	})
	if err != nil {
		return tree.Value{}, err
	}
	v, err := tree.Parse(resp.Body())
	if err != nil {
		return tree.Value{}, &ServiceError{Caller: caller, Status: resp.StatusCode(), Msg: "invalid response body", Err: err}
	}
	return v, nil
}

// ProductsList returns the active plans with their children and options.
func (c *Client) ProductsList(ctx context.Context) (tree.Value, error) {
	return c.getJSON(ctx, "products", c.api("product-service/v1/products", url.Values{"status": {"ACTIVE"}}), expectAny)
}

// ProductDetails fetches the catalog specification behind a product spec URL.
func (c *Client) ProductDetails(ctx context.Context, specURL string) (tree.Value, error) {
	if specURL == "" {
		return tree.Value{}, types.ErrNoData
	}
	return c.getJSON(ctx, "product details", specURL, http.StatusOK)
}

// PlanInfo returns the PLAN subscriptions.
func (c *Client) PlanInfo(ctx context.Context) (tree.Value, error) {
	return c.ProductSubscriptions(ctx, "plan")
}

// ProductSubscriptions returns the subscriptions of one product type.
func (c *Client) ProductSubscriptions(ctx context.Context, productType string) (tree.Value, error) {
	return c.getJSON(ctx, "product subscriptions",
		c.api("product-service/v1/product-subscriptions", url.Values{"producttypes": {strings.ToUpper(productType)}}),
		expectAny,
	)
}

// BillCycles returns the current bill cycle of a product. Internet products
// also get every requested cycle for the daily usage lookups.
func (c *Client) BillCycles(ctx context.Context, productType, identifier string, count int) (types.BillCycle, error) {
	v, err := c.getJSON(ctx, "bill cycles",
		c.api(
			"billing-service/v1/account/products/"+url.PathEscape(identifier)+"/billcycle-details",
			url.Values{"producttype": {productType}, "count": {strconv.Itoa(count)}},
		),
		expectAny,
	)
	if err != nil {
		return types.BillCycle{}, err
	}
	cycles := v.Get("billCycles").Array()
	if len(cycles) == 0 {
		return types.BillCycle{}, types.ErrNoData
	}
	bc := types.BillCycle{
		StartDate: cycles[0].Get("startDate").Str(),
		EndDate:   cycles[0].Get("endDate").Str(),
	}
	if productType == string(types.ProductTypeInternet) {
		for _, cycle := range cycles {
			bc.Cycles = append(bc.Cycles, types.BillSubCycle{
				BillCycle: cycle.Get("billCycle").Str(),
				StartDate: cycle.Get("startDate").Str(),
				EndDate:   cycle.Get("endDate").Str(),
			})
		}
	}
	return bc, nil
}

// ProductUsage returns the usage of a product within a date window.
func (c *Client) ProductUsage(ctx context.Context, productType, identifier, from, to string) (tree.Value, error) {
	return c.getJSON(ctx, "product usage",
		c.api(
			fmt.Sprintf("product-service/v1/products/%s/%s/usage", productType, url.PathEscape(identifier)),
			url.Values{"fromDate": {from}, "toDate": {to}},
		),
		expectAny,
	)
}

// ProductDailyUsage returns the per day usage of one bill cycle. Any non-200
// answer yields an empty document.
func (c *Client) ProductDailyUsage(ctx context.Context, productType, identifier, billCycle, from, to string) (tree.Value, error) {
	resp, err := c.do(ctx, request{
		caller: "product daily usage",
		url: c.api(
			fmt.Sprintf("product-service/v1/products/%s/%s/dailyusage", productType, url.PathEscape(identifier)),
			url.Values{"billcycle": {billCycle}, "fromDate": {from}, "toDate": {to}},
		),
		expected: expectAny,
	})
	if err != nil {
		return tree.Value{}, err
	}
	if resp.StatusCode() != http.StatusOK {
		return tree.Of(map[string]any{}), nil
	}
	v, err := tree.Parse(resp.Body())
	if err != nil {
		return tree.Value{}, &ServiceError{Caller: "product daily usage", Status: resp.StatusCode(), Msg: "invalid response body", Err: err}
	}
	return v, nil
}

// SimDetails returns the sim cards of the account.
func (c *Client) SimDetails(ctx context.Context) (tree.Value, error) {
	return c.getJSON(ctx, "sim details",
		c.api("mobile-service/v2/simdetails", url.Values{"status": {"ACTIVATION_IN_PROGRESS"}}),
		http.StatusOK,
	)
}

// MobileUsage returns the usage of a standalone mobile subscription.
func (c *Client) MobileUsage(ctx context.Context, identifier string) (tree.Value, error) {
	return c.getJSON(ctx, "mobile usage",
		c.api("mobile-service/v3/mobilesubscriptions/"+url.PathEscape(identifier)+"/usages", nil),
		http.StatusOK,
	)
}

// MobileBundleUsage returns the usage of a shared bundle, restricted to one
// line when line is not empty.
func (c *Client) MobileBundleUsage(ctx context.Context, bundle, line string) (tree.Value, error) {
	params := url.Values{"type": {"bundle"}}
	if line != "" {
		params.Set("lineIdentifier", line)
	}
	return c.getJSON(ctx, "mobile bundle usage",
		c.api("mobile-service/v3/mobilesubscriptions/"+url.PathEscape(bundle)+"/usages", params),
		http.StatusOK,
	)
}

// MailboxesAndAliases returns the mailboxes of the account.
func (c *Client) MailboxesAndAliases(ctx context.Context) (tree.Value, error) {
	return c.getJSON(ctx, "mailboxes and aliases", c.api("mailbox-mgmt-service/v1/mailboxesandaliases", nil), http.StatusOK)
}

// Modems returns the modem serving an internet product.
func (c *Client) Modems(ctx context.Context, identifier string) (tree.Value, error) {
	return c.getJSON(ctx, "modems",
		c.api("resource-service/v1/modems", url.Values{"productIdentifier": {identifier}}),
		http.StatusOK,
	)
}

// ModemSettings returns the advanced settings of a modem.
func (c *Client) ModemSettings(ctx context.Context, mac string) (tree.Value, error) {
	return c.getJSON(ctx, "modem settings",
		c.api("resource-service/v1/modems/"+url.PathEscape(mac)+"/advance-settings", nil),
		expectAny,
	)
}

// NetworkTopology returns the devices behind a modem.
func (c *Client) NetworkTopology(ctx context.Context, mac string) (tree.Value, error) {
	return c.getJSON(ctx, "network topology",
		c.api("resource-service/v1/network-topology/"+url.PathEscape(mac), url.Values{"withClients": {"true"}}),
		http.StatusOK,
	)
}

// WirelessSettings returns the wi-fi configuration of a modem.
func (c *Client) WirelessSettings(ctx context.Context, mac, identifier string) (tree.Value, error) {
	return c.getJSON(ctx, "wireless settings",
		c.api("resource-service/v1/modems/"+url.PathEscape(mac)+"/wireless-settings", url.Values{
			"withmetadata":        {"true"},
			"withwirelessservice": {"true"},
			"productidentifier":   {identifier},
		}),
		expectAny,
	)
}

// DeviceDetails returns the devices (decoders) attached to a product.
func (c *Client) DeviceDetails(ctx context.Context, productType, identifier string) (tree.Value, error) {
	return c.getJSON(ctx, "device details",
		c.api(fmt.Sprintf("product-service/v1/products/%s/%s/devicedetails", productType, url.PathEscape(identifier)), nil),
		http.StatusOK,
	)
}

// Address returns a contact address. Addresses are cached for the lifetime
// of the client and an empty id yields an empty document.
func (c *Client) Address(ctx context.Context, id string) (tree.Value, error) {
	if id == "" {
		return tree.Of(map[string]any{}), nil
	}
	c.mu.Lock()
	cached, ok := c.addresses[id]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	v, err := c.getJSON(ctx, "address", c.api("contact-service/v1/contact/addresses/"+url.PathEscape(id), nil), http.StatusOK)
	if err != nil {
		return tree.Value{}, err
	}
	c.mu.Lock()
	c.addresses[id] = v
	c.mu.Unlock()
	return v, nil
}

// Customer returns the customer account.
func (c *Client) Customer(ctx context.Context) (tree.Value, error) {
	return c.getJSON(ctx, "customer", c.api("customer-service/v1/customers", nil), http.StatusOK)
}

// LegacyBundle returns the combined payload of the v1 API used by accounts
// that were not migrated to the product service.
func (c *Client) LegacyBundle(ctx context.Context) (tree.Value, error) {
	u := strings.TrimSuffix(c.env.OCAPIPublic, "/") + "/?p=" + strings.Join(legacyParts, ",")
	return c.getJSON(ctx, "legacy bundle", u, http.StatusOK)
}
