package types

import (
	"regexp"
	"strings"

	"github.com/raterudder/telenet-exporter/pkg/tree"
	"github.com/shopspring/decimal"
)

// ProductType is the kind of a product as reported upstream, or the kind of
// a derived product.
type ProductType string

const (
	ProductTypeInternet  ProductType = "internet"
	ProductTypeMobile    ProductType = "mobile"
	ProductTypeDTV       ProductType = "dtv"
	ProductTypeTelephone ProductType = "telephone"
	ProductTypeBundle    ProductType = "bundle"
	ProductTypeModem     ProductType = "modem"
	ProductTypeNetwork   ProductType = "network"
	ProductTypeWifi      ProductType = "wifi"
	ProductTypeQR        ProductType = "qr"
	ProductTypeUser      ProductType = "user"
	ProductTypeMailbox   ProductType = "mailbox"
	ProductTypeCustomer  ProductType = "customer"
	ProductTypeInvoice   ProductType = "invoice"
	ProductTypeUsage     ProductType = "usage"
)

// DescriptionKey selects how a product is rendered (icon, unit, rounding).
type DescriptionKey string

const (
	DescriptionInternet        DescriptionKey = "internet"
	DescriptionMobile          DescriptionKey = "mobile"
	DescriptionDTV             DescriptionKey = "dtv"
	DescriptionTelephone       DescriptionKey = "telephone"
	DescriptionBundle          DescriptionKey = "bundle"
	DescriptionModem           DescriptionKey = "modem"
	DescriptionNetwork         DescriptionKey = "network"
	DescriptionWifi            DescriptionKey = "wifi"
	DescriptionQR              DescriptionKey = "qr"
	DescriptionUser            DescriptionKey = "user"
	DescriptionMailbox         DescriptionKey = "mailbox"
	DescriptionCustomer        DescriptionKey = "customer"
	DescriptionEuro            DescriptionKey = "euro"
	DescriptionDataUsage       DescriptionKey = "data_usage"
	DescriptionUsagePercentage DescriptionKey = "usage_percentage"
	DescriptionMobilePercent   DescriptionKey = "usage_percentage_mobile"
	DescriptionMobileVoice     DescriptionKey = "mobile_voice"
	DescriptionMobileData      DescriptionKey = "mobile_data"
	DescriptionMobileSMS       DescriptionKey = "mobile_sms"
)

// DefaultUnit returns the unit of measurement for products rendered with
// this key, or "" when they have none.
func (k DescriptionKey) DefaultUnit() string {
	switch k {
	case DescriptionEuro:
		return "EUR"
	case DescriptionDataUsage:
		return "GB"
	case DescriptionUsagePercentage, DescriptionMobilePercent:
		return "%"
	default:
		return ""
	}
}

// Price is the monthly sales price (VAT included) of a product.
type Price struct {
	Value decimal.Decimal `json:"value"`
	Unit  string          `json:"unit,omitempty"`
	Raw   map[string]any  `json:"raw,omitempty"`
}

// Product is a single normalized record, either fetched directly or derived
// from another product ("extra" sensors).
type Product struct {
	Identifier       string         `json:"identifier"`
	Key              string         `json:"key"`
	Type             ProductType    `json:"type"`
	DescriptionKey   DescriptionKey `json:"descriptionKey"`
	PlanIdentifier   string         `json:"planIdentifier"`
	PlanLabel        string         `json:"planLabel"`
	Name             string         `json:"name"`
	State            any            `json:"state"`
	Attributes       map[string]any `json:"attributes,omitempty"`
	Price            *Price         `json:"price,omitempty"`
	Address          map[string]any `json:"address,omitempty"`
	SpecURL          string         `json:"specURL,omitempty"`
	Info             tree.Value     `json:"-"`
	SubscriptionInfo map[string]any `json:"subscriptionInfo,omitempty"`
	Extra            bool           `json:"extra"`
	// IgnoreExtra suppresses usage sensors for a plan whose child already
	// reports them.
	IgnoreExtra bool   `json:"ignoreExtra,omitempty"`
	Unit        string `json:"unit,omitempty"`
}

// UnitOfMeasurement returns the explicit unit or the description default.
func (p *Product) UnitOfMeasurement() string {
	if p.Unit != "" {
		return p.Unit
	}
	return p.DescriptionKey.DefaultUnit()
}

// NumericState returns the state as a float when it is numeric.
func (p *Product) NumericState() (float64, bool) {
	switch s := p.State.(type) {
	case float64:
		return s, true
	case int:
		return float64(s), true
	case decimal.Decimal:
		return s.InexactFloat64(), true
	case bool:
		if s {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// ExtraIdentifier derives the identifier of a synthetic product from the
// product it was derived from.
func ExtraIdentifier(identifier, suffix string) string {
	return identifier + " " + suffix
}

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	nonWordRE    = regexp.MustCompile(`\W+`)
)

// FormatKey turns free text into a stable entity key: whitespace becomes
// "_", other non-word characters are dropped and the result is lowercased.
func FormatKey(s string) string {
	s = strings.TrimSpace(s)
	s = whitespaceRE.ReplaceAllString(s, "_")
	s = nonWordRE.ReplaceAllString(s, "")
	return strings.ToLower(s)
}

// BillCycle is a billing period window for a product.
type BillCycle struct {
	StartDate string         `json:"startDate"`
	EndDate   string         `json:"endDate"`
	Cycles    []BillSubCycle `json:"cycles,omitempty"`
}

// BillSubCycle is one of the windows returned when several cycles are requested.
type BillSubCycle struct {
	BillCycle string `json:"billCycle"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}
