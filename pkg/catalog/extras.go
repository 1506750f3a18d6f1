package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raterudder/telenet-exporter/pkg/log"
	"github.com/raterudder/telenet-exporter/pkg/tree"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

const dateLayout = "2006-01-02"

// dateTimeLayouts are the accepted timestamp formats, with and without a
// colon in the zone offset.
var dateTimeLayouts = []string{"2006-01-02T15:04:05-0700", time.RFC3339}

func parseDateTime(s string) (time.Time, error) {
	var err error
	for _, layout := range dateTimeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// extra derives a synthetic product from p. With onPlan the identifier of
// the plan is used instead of the product's own.
func extra(p *types.Product, suffix string, key types.DescriptionKey, state any, attributes map[string]any, onPlan bool) *types.Product {
	id := p.Identifier
	if onPlan {
		id = p.PlanIdentifier
	}
	return &types.Product{
		Identifier:     types.ExtraIdentifier(id, suffix),
		Key:            types.FormatKey(id + " " + string(p.Type) + " " + suffix),
		Type:           p.Type,
		DescriptionKey: key,
		PlanIdentifier: p.PlanIdentifier,
		PlanLabel:      p.PlanLabel,
		Name:           types.ExtraIdentifier(id, suffix),
		State:          state,
		Attributes:     attributes,
		Extra:          true,
	}
}

// addExtras derives the sensors of every fetched product followed by the
// account level ones.
func (r *run) addExtras() error {
	var extras []*types.Product
	for _, p := range r.catalog.List() {
		derived, err := r.productExtras(p)
		if errors.Is(err, types.ErrNoData) {
			log.Ctx(r.ctx).WarnContext(r.ctx, "skipping extra sensors",
				slog.String("identifier", p.Identifier),
				slog.String("productType", string(p.Type)),
				slog.Any("error", err),
			)
		} else if err != nil {
			return fmt.Errorf("failed to build extra sensors for %s: %w", p.Identifier, err)
		}
		extras = append(extras, derived...)
	}

	customer, err := r.customerExtras()
	if err != nil {
		return err
	}
	extras = append(extras, customer...)

	for _, e := range extras {
		r.catalog.Set(e)
	}
	return nil
}

// productExtras returns the sensors derived from p. The sensors built before
// a soft absence are returned along with it.
func (r *run) productExtras(p *types.Product) ([]*types.Product, error) {
	spec, err := r.spec(p.SpecURL)
	if err != nil {
		return nil, err
	}
	typeAttr := map[string]any{
		"product type": tree.Localized(r.Language, spec.Get("localizedcontent")).Get("name").Raw(),
	}

	var out []*types.Product
	if p.Price != nil {
		r.cost = r.cost.Add(p.Price.Value)
		e := extra(p, "price", types.DescriptionEuro, p.Price.Value.InexactFloat64(), merge(p.Price.Raw, typeAttr), false)
		out = append(out, e)
	}

	var derived []*types.Product
	switch p.Type {
	case types.ProductTypeInternet:
		derived, err = r.internetExtras(p, spec)
	case types.ProductTypeDTV:
		derived, err = r.dtvExtras(p, typeAttr)
	case types.ProductTypeMobile:
		if p.PlanIdentifier != p.Identifier {
			derived, err = r.bundleLineExtras(p, typeAttr)
		} else {
			derived, err = r.mobileExtras(p, typeAttr)
		}
	}
	return append(out, derived...), err
}

func (r *run) internetExtras(p *types.Product, spec tree.Value) ([]*types.Product, error) {
	typ := string(p.Type)
	bc, err := r.Source.BillCycles(r.ctx, typ, p.Identifier, 2)
	if err != nil {
		return nil, err
	}
	doc, err := r.Source.ProductUsage(r.ctx, typ, p.Identifier, bc.StartDate, bc.EndDate)
	if err != nil {
		return nil, err
	}
	usage := doc.Get(typ)
	category := usage.Get("category").Str()

	var dailyPeak, dailyOffPeak, dailyTotal, dailyDate []any
	daily := make(map[string]tree.Value)
	for _, cycle := range bc.Cycles {
		du, err := r.Source.ProductDailyUsage(r.ctx, typ, p.Identifier, cycle.BillCycle, cycle.StartDate, cycle.EndDate)
		if errors.Is(err, types.ErrNoData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if du.Len() == 0 {
			continue
		}
		daily[cycle.BillCycle] = du
		for _, day := range du.Path("internetUsage.0.dailyUsages").Array() {
			if category == "CAP" {
				dailyTotal = append(dailyTotal, day.Get("bucketUsage").Raw())
			} else {
				dailyPeak = append(dailyPeak, day.Get("peak").Raw())
				dailyOffPeak = append(dailyOffPeak, day.Get("offPeak").Raw())
				dailyTotal = append(dailyTotal, day.Get("total").Raw())
			}
			dailyDate = append(dailyDate, day.Get("date").Raw())
		}
	}

	usagePct := UsagePercentage(
		category,
		usage.Path("totalUsage.units").FloatOr(0),
		usage.Path("allocatedUsage.units").FloatOr(0),
		usage.Path("extendedUsage.volume").FloatOr(0),
	)

	periodLength, periodUsedPct := r.period(bc.StartDate, bc.EndDate)
	localized := tree.Localized(r.Language, spec.Get("localizedcontent"))
	salesPrice := spec.Path("characteristics.salespricevatincl")
	attributes := map[string]any{
		"identifier":                  p.Identifier,
		"category":                    category,
		"last_update":                 usage.Path("totalUsage.lastUsageDate").Str() + "+0200",
		"start_date":                  bc.StartDate,
		"end_date":                    bc.EndDate,
		"days_until":                  usage.Get("daysUntil").Raw(),
		"total_usage":                 usage.Path("totalUsage.units").Str() + " " + usage.Path("totalUsage.unitType").Str(),
		"wifree_usage":                usage.Path("wifreeUsage.usedUnits").Str() + " " + usage.Path("wifreeUsage.unitType").Str(),
		"allocated_usage":             usage.Path("allocatedUsage.units").Str() + " " + usage.Path("allocatedUsage.unitType").Str(),
		"extended_usage":              usage.Path("extendedUsage.volume").Str() + " " + usage.Path("extendedUsage.unit").Str(),
		"extended_usage_price":        usage.Path("extendedUsage.price").Str() + " " + usage.Path("extendedUsage.currency").Str(),
		"peak_usage":                  usage.Path("peakUsage.usedUnits").Raw(),
		"used_percentage":             round(usagePct, 2),
		"period_used_percentage":      periodUsedPct,
		"period_remaining_percentage": 100 - periodUsedPct,
		"squeezed":                    usagePct >= 100,
		"period_length":               periodLength,
		"product_label":               localized.Get("name").Raw(),
		"sales_price":                 salesPrice.Get("value").Str() + " " + salesPrice.Get("unit").Str(),
	}

	current, hasCurrent := daily["CURRENT"]
	if hasCurrent {
		offPeak := round(current.Path("internetUsage.0.totalUsage.offPeak").FloatOr(0), 1)
		attributes["offpeak_usage"] = offPeak
		attributes["total_usage_with_offpeak"] = usage.Path("peakUsage.usedUnits").FloatOr(0) + offPeak
	}

	var service strings.Builder
	for _, svc := range spec.Get("services").Array() {
		for _, s := range svc.Get("specifications").Array() {
			switch s.Get("labelkey").Str() {
			case "spec.fixedinternet.speed.download":
				attributes["download_speed"] = s.Get("value").Str() + " " + s.Get("unit").Str()
			case "spec.fixedinternet.speed.upload":
				attributes["upload_speed"] = s.Get("value").Str() + " " + s.Get("unit").Str()
			}
			if !s.Get("visible").Bool() {
				continue
			}
			service.WriteString(tree.Localized(r.Language, s.Get("localizedcontent")).Get("name").Str())
			if v := s.Get("value"); !v.IsNull() {
				service.WriteString(" " + v.Str())
			}
			if u := s.Get("unit"); !u.IsNull() {
				service.WriteString(" " + u.Str())
			}
			service.WriteString("\n")
		}
	}
	if usagePct >= 100 {
		attributes["download_speed"] = "1 Mbps"
		attributes["upload_speed"] = "256 Kbps"
	}
	attributes["service"] = service.String()

	out := []*types.Product{
		extra(p, "usage", types.DescriptionUsagePercentage, usagePct, attributes, false),
	}

	if hasCurrent {
		totals := current.Path("internetUsage.0.totalUsage")
		if category == "CAP" {
			out = append(out, extra(p, "daily usage", types.DescriptionDataUsage,
				round(totals.Get("totalNonThrottle").FloatOr(0), 1),
				merge(totals.Map(), map[string]any{
					"daily_total": dailyTotal,
					"daily_date":  dailyDate,
				}), false))
		} else {
			out = append(out, extra(p, "daily usage", types.DescriptionDataUsage,
				round(totals.Get("total").FloatOr(0), 1),
				merge(totals.Map(), map[string]any{
					"daily_peak":     dailyPeak,
					"daily_off_peak": dailyOffPeak,
					"daily_total":    dailyTotal,
					"daily_date":     dailyDate,
				}), false))
		}
	}

	modem, err := r.Source.Modems(r.ctx, p.Identifier)
	if errors.Is(err, types.ErrNoData) {
		log.Ctx(r.ctx).DebugContext(r.ctx, "no modem found", slog.String("identifier", p.Identifier))
		return out, nil
	}
	if err != nil {
		return out, err
	}
	if modem.Kind() == tree.Array {
		modem = modem.Index(0)
	}
	modemExtras, err := r.modemExtras(p, modem)
	return append(out, modemExtras...), err
}

// modemExtras derives the modem, network and wi-fi sensors of an internet
// product. Each of them is skipped on its own when absent.
func (r *run) modemExtras(p *types.Product, modem tree.Value) ([]*types.Product, error) {
	var out []*types.Product
	mac := modem.Get("mac").Str()

	settings, err := r.Source.ModemSettings(r.ctx, mac)
	switch {
	case err == nil:
		out = append(out, extra(p, "modem", types.DescriptionModem, modem.Get("name").Raw(), merge(modem.Map(), settings.Map()), false))
	case !errors.Is(err, types.ErrNoData):
		return out, err
	}

	topology, err := r.Source.NetworkTopology(r.ctx, mac)
	switch {
	case err == nil:
		topology = tree.ScrubIPv6(topology)
		out = append(out, extra(p, "network", types.DescriptionNetwork, topology.Get("model").Raw(), topology.Map(), false))
	case !errors.Is(err, types.ErrNoData):
		return out, err
	}

	wireless, err := r.Source.WirelessSettings(r.ctx, mac, p.Identifier)
	if errors.Is(err, types.ErrNoData) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	out = append(out, extra(p, "wi-fi", types.DescriptionWifi, wireless.Get("wirelessEnabled").Raw(), wireless.Map(), false))

	roaming := wireless.Get("singleSSIDRoamingSettings")
	if !roaming.Has("networkKey") {
		return out, nil
	}
	payload := WifiQR(roaming.Get("name").Str(), roaming.Get("networkKey").Str())
	var attributes map[string]any
	if img, err := qrImage(payload); err != nil {
		log.Ctx(r.ctx).WarnContext(r.ctx, "failed to render wi-fi qr code", slog.Any("error", err))
	} else {
		attributes = map[string]any{"qr_image": img}
	}
	return append(out, extra(p, "wi-fi qr", types.DescriptionQR, payload, attributes, false)), nil
}

func (r *run) dtvExtras(p *types.Product, typeAttr map[string]any) ([]*types.Product, error) {
	if p.IgnoreExtra {
		return nil, nil
	}
	typ := string(p.Type)
	bc, err := r.Source.BillCycles(r.ctx, typ, p.Identifier, 1)
	if err != nil {
		return nil, err
	}
	usage, err := r.Source.ProductUsage(r.ctx, typ, p.Identifier, bc.StartDate, bc.EndDate)
	if err != nil {
		return nil, err
	}
	devices, err := r.Source.DeviceDetails(r.ctx, typ, p.Identifier)
	if err != nil {
		return nil, err
	}

	cost := decimalOf(usage.Path("dtv.totalUsage.currentUsage"))
	r.cost = r.cost.Add(cost)
	out := []*types.Product{
		extra(p, "usage", types.DescriptionEuro, cost.InexactFloat64(), merge(usage.Get("dtv").Map(), typeAttr), false),
	}
	for i, device := range devices.Get("dtv").Array() {
		suffix := "dtv device"
		if i > 0 {
			suffix = fmt.Sprintf("dtv device %d", i+1)
		}
		out = append(out, extra(p, suffix, types.DescriptionDTV, device.Get("boxName").Raw(), device.Map(), false))
	}
	return out, nil
}

// billingAttributes reads the next billing date of a mobile usage document.
func (r *run) billingAttributes(usage tree.Value) (map[string]any, error) {
	next := usage.Get("nextBillingDate").Str()
	if next == "" {
		return nil, fmt.Errorf("missing next billing date: %w", types.ErrNoData)
	}
	t, err := parseDateTime(next)
	if err != nil {
		return nil, fmt.Errorf("invalid next billing date %q: %w", next, types.ErrNoData)
	}
	return map[string]any{
		"days_until":        int(t.Sub(r.Now()).Hours() / 24),
		"next_billing_date": next,
	}, nil
}

// buckets returns the shared buckets of a usage document, or the included
// ones when nothing is shared.
func buckets(usage tree.Value) tree.Value {
	if usage.Has("shared") {
		return usage.Get("shared")
	}
	return usage.Get("included")
}

// bundleLineExtras derives the sensors of a line in a shared bundle. The
// bundle's own sensors are emitted once per plan.
func (r *run) bundleLineExtras(p *types.Product, typeAttr map[string]any) ([]*types.Product, error) {
	usage, err := r.Source.MobileBundleUsage(r.ctx, p.PlanIdentifier, p.Identifier)
	if err != nil {
		return nil, err
	}
	billing, err := r.billingAttributes(usage)
	if err != nil {
		return nil, err
	}
	bundle, err := r.Source.MobileBundleUsage(r.ctx, p.PlanIdentifier, "")
	if err != nil {
		return nil, err
	}

	var out []*types.Product
	if !r.bundlesEmitted[p.PlanIdentifier] {
		r.bundlesEmitted[p.PlanIdentifier] = true
		log.Ctx(r.ctx).DebugContext(r.ctx, "creating bundle sensors", slog.String("bundle", p.PlanIdentifier))

		cost := decimalOf(bundle.Path("outOfBundle.usedUnits"))
		r.cost = r.cost.Add(cost)
		out = append(out, extra(p, "out of bundle", types.DescriptionEuro, cost.InexactFloat64(),
			merge(bundle.Get("outOfBundle").Map(), billing, typeAttr), true))

		b := buckets(bundle)
		for _, data := range b.Get("data").Array() {
			out = append(out, extra(p, data.Get("bucketType").Str(), types.DescriptionMobilePercent,
				number(data.Get("usedPercentage")),
				merge(map[string]any{
					"usage": fmt.Sprintf("%s/%s %s", data.Get("usedUnits").Str(), data.Get("startUnits").Str(), data.Get("unitType").Str()),
				}, data.Map(), billing), true))
		}
		for _, text := range b.Get("text").Array() {
			out = append(out, extra(p, "sms", types.DescriptionMobileSMS,
				number(text.Get("usedUnits")),
				merge(map[string]any{
					"usage": text.Get("usedUnits").Str() + " SMSes",
				}, text.Map()), true))
		}
		for _, voice := range b.Get("voice").Array() {
			d := FormatDuration(voice.Get("usedUnits").FloatOr(0), voice.Get("unitType").Str())
			out = append(out, extra(p, "voice", types.DescriptionMobileVoice, d,
				merge(map[string]any{"usage": d}, voice.Map(), billing), true))
		}
	}

	cost := decimalOf(usage.Path("outOfBundle.usedUnits"))
	r.cost = r.cost.Add(cost)
	out = append(out, extra(p, "out of bundle", types.DescriptionEuro, cost.InexactFloat64(),
		merge(usage.Get("outOfBundle").Map(), billing, typeAttr), false))

	b := buckets(usage)
	for _, data := range b.Get("data").Array() {
		e := extra(p, strings.ToLower(data.Get("name").Str()), types.DescriptionMobileData,
			data.Get("usedUnits").FloatOr(0),
			merge(map[string]any{
				"usage": data.Get("usedUnits").Str() + " " + data.Get("unitType").Str(),
			}, data.Map(), billing), false)
		e.Unit = data.Get("unitType").Str()
		out = append(out, e)
	}
	for _, text := range b.Get("text").Array() {
		name := strings.ReplaceAll(strings.ToLower(text.Get("name").Str()), "text", "sms")
		out = append(out, extra(p, name, types.DescriptionMobileSMS,
			number(text.Get("usedUnits")),
			merge(map[string]any{
				"usage": text.Get("usedUnits").Str() + " SMSes",
			}, text.Map(), billing), false))
	}
	for _, voice := range b.Get("voice").Array() {
		d := FormatDuration(voice.Get("usedUnits").FloatOr(0), voice.Get("unitType").Str())
		out = append(out, extra(p, strings.ToLower(voice.Get("name").Str()), types.DescriptionMobileVoice, d,
			merge(map[string]any{"usage": d}, voice.Map(), billing), false))
	}
	return out, nil
}

// hasUnits reports whether any counter of a usage bucket is set.
func hasUnits(bucket tree.Value) bool {
	for _, k := range []string{"startUnits", "remainingUnits", "usedUnits"} {
		if bucket.Get(k).FloatOr(0) > 0 {
			return true
		}
	}
	return false
}

// mobileExtras derives the sensors of a standalone mobile subscription.
func (r *run) mobileExtras(p *types.Product, typeAttr map[string]any) ([]*types.Product, error) {
	usage, err := r.Source.MobileUsage(r.ctx, p.Identifier)
	if err != nil {
		return nil, err
	}
	billing, err := r.billingAttributes(usage)
	if err != nil {
		return nil, err
	}

	cost := decimalOf(usage.Path("outOfBundle.usedUnits"))
	r.cost = r.cost.Add(cost)
	out := []*types.Product{
		extra(p, "out of bundle", types.DescriptionEuro, cost.InexactFloat64(),
			merge(usage.Get("outOfBundle").Map(), billing, typeAttr), true),
	}

	if data := usage.Path("total.data"); hasUnits(data) {
		e := extra(p, "data", types.DescriptionMobileData, data.Get("usedUnits").FloatOr(0),
			merge(map[string]any{
				"usage": data.Get("usedUnits").Str() + " " + data.Get("unitType").Str(),
			}, data.Map(), billing), false)
		e.Unit = data.Get("unitType").Str()
		out = append(out, e)
	}
	if text := usage.Path("total.text"); hasUnits(text) {
		out = append(out, extra(p, "sms", types.DescriptionMobileSMS, number(text.Get("usedUnits")),
			merge(map[string]any{
				"usage": text.Get("usedUnits").Str() + " / " + text.Get("startUnits").Str() + " SMSes",
			}, text.Map(), billing), false))
	}
	if voice := usage.Path("total.voice"); hasUnits(voice) {
		out = append(out, extra(p, "voice", types.DescriptionMobileVoice,
			FormatDuration(voice.Get("usedUnits").FloatOr(0), voice.Get("unitType").Str()),
			merge(map[string]any{
				"usage": voice.Get("usedUnits").Str() + " / " + voice.Get("startUnits").Str() + " " + strings.ToLower(voice.Get("unitType").Str()),
			}, voice.Map(), billing), false))
	}
	return out, nil
}

// UsagePercentage is the share of the allocated plus extended volume that
// was used. Unlimited plans always report 0.
func UsagePercentage(category string, used, allocated, extended float64) float64 {
	if category == "UNLIMITED" {
		return 0
	}
	total := allocated + extended
	if total == 0 {
		return 0
	}
	return 100 * used / total
}

// period returns the length in days of a bill cycle and the share of it
// that has passed.
func (r *run) period(start, end string) (int, float64) {
	s, err := time.ParseInLocation(dateLayout, start, time.Local)
	if err != nil {
		return 0, 0
	}
	e, err := time.ParseInLocation(dateLayout, end, time.Local)
	if err != nil || !e.After(s) {
		return 0, 0
	}
	length := e.Sub(s)
	used := r.Now().Sub(s)
	return int(length.Hours() / 24), round(100*used.Seconds()/length.Seconds(), 1)
}
