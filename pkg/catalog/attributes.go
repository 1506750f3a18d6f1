package catalog

import "github.com/raterudder/telenet-exporter/pkg/types"

var baseAttributes = []string{
	"activationDate",
	"identifier",
	"label",
	"status",
	"productType",
	"specurl",
}

// allowedAttributes lists, per product type, the subscription fields copied
// onto a product. Types without an entry get no subscription attributes.
var allowedAttributes = map[types.ProductType][]string{
	types.ProductTypeInternet:  withBase("internetType"),
	types.ProductTypeMobile:    withBase("isDataOnlyPlan", "bundleIdentifier", "hasVoiceMail", "bundleType"),
	types.ProductTypeDTV:       withBase("bundleIdentifier", "isInteractive", "lineType"),
	types.ProductTypeTelephone: withBase("hasVoiceMail"),
	types.ProductTypeBundle:    withBase("products", "bundleFamily", "hasActiveMyBill"),
}

func withBase(fields ...string) []string {
	out := make([]string, 0, len(baseAttributes)+len(fields))
	out = append(out, baseAttributes...)
	return append(out, fields...)
}

// filterAttributes copies the allowed fields present in info.
func filterAttributes(t types.ProductType, info map[string]any) map[string]any {
	fields, ok := allowedAttributes[t]
	if !ok || len(info) == 0 {
		return nil
	}
	out := make(map[string]any)
	for _, f := range fields {
		if v, ok := info[f]; ok {
			out[f] = v
		}
	}
	return out
}
