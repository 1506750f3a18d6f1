package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/raterudder/telenet-exporter/pkg/tree"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

const legacyPeriodLayout = "2006-01-02T15:04:05.0-0700"

// BuildLegacy builds the coarser catalog of accounts still served by the v1
// API from its combined payload. Every product lives on the customer plan.
func (b *Builder) BuildLegacy(ctx context.Context, payload, user tree.Value) (BuildResult, error) {
	r := b.newRun(ctx, user)

	for _, account := range payload.Get("accounts").Array() {
		r.catalog.Set(r.accountProduct("customer", "customer", r.customerID()+" customer",
			types.ProductTypeCustomer, types.DescriptionCustomer, account.Get("accountnumber").Raw(), account.Map()))
	}
	r.catalog.Set(r.userDetailsProduct())

	for _, iu := range payload.Get("internetusage").Array() {
		if err := r.legacyInternet(iu); err != nil {
			return BuildResult{}, err
		}
	}

	for _, modem := range payload.Get("modems").Array() {
		line := modem.Get("internetlineidentifier").Str()
		r.catalog.Set(r.accountProduct(types.ExtraIdentifier(line, "modem"), "modem", line+" modem",
			types.ProductTypeModem, types.DescriptionModem, modem.Get("hardware").Raw(), modem.Map()))
	}

	for _, dtv := range payload.Get("digitaltvdetails").Array() {
		for _, device := range dtv.Get("devices").Array() {
			id := dtv.Get("identifier").Str() + " " + device.Get("serialnumber").Str()
			r.catalog.Set(r.accountProduct(id, id, r.customerID()+" "+id,
				types.ProductTypeDTV, types.DescriptionDTV, device.Get("type").Raw(), dtv.Map()))
		}
	}

	for _, dtv := range payload.Get("digitaltvunbilledusage").Array() {
		cost := decimalOf(dtv.Path("dtvusage.total")).Add(decimalOf(dtv.Path("tvodusage.total")))
		r.cost = r.cost.Add(cost)
		id := types.ExtraIdentifier(dtv.Get("identifier").Str(), "usage")
		r.catalog.Set(r.accountProduct(id, id, r.customerID()+" "+id,
			types.ProductTypeDTV, types.DescriptionEuro, cost.InexactFloat64(), dtv.Map()))
	}

	if bills := payload.Get("bills"); bills.Len() > 0 {
		amount := decimal.Zero
		unpaid := 0
		for _, group := range bills.Array() {
			for _, bill := range group.Get("bills").Array() {
				if bill.Get("paid").Bool() {
					continue
				}
				unpaid++
				amount = amount.Add(decimalOf(bill.Path("billamount.amount")))
			}
		}
		r.catalog.Set(r.accountProduct("open invoices", "open invoices", r.customerID()+" open invoices",
			types.ProductTypeInvoice, types.DescriptionEuro, amount.InexactFloat64(), map[string]any{"unpaid": unpaid}))
	}

	return BuildResult{Catalog: r.catalog, TotalCost: r.cost}, nil
}

// LegacyVolume returns the volume of a legacy internet usage in bytes: the
// extended volume plus, in order of priority, the service category limit,
// the internet_usage_limit elementary characteristic or the included volume.
func LegacyVolume(usage, characteristics tree.Value) float64 {
	total := usage.Path("extendedvolume.volume").FloatOr(0)
	if limit := characteristics.Get("service_category_limit"); limit.Kind() == tree.Object {
		return total + math.Trunc(limit.Get("value").FloatOr(0))*Mega
	}
	if elems := characteristics.Get("elementarycharacteristics"); elems.Kind() == tree.Array {
		for _, elem := range elems.Array() {
			if elem.Get("key").Str() == "internet_usage_limit" {
				return total + math.Trunc(elem.Get("value").FloatOr(0))*Mega
			}
		}
		return total
	}
	return total + usage.Get("includedvolume").FloatOr(0)
}

func (r *run) legacyInternet(iu tree.Value) error {
	usage := iu.Path("availableperiods.0.usages.0")
	details, err := r.Source.ProductDetails(r.ctx, usage.Get("specurl").Str())
	if err != nil && !errors.Is(err, types.ErrNoData) {
		return fmt.Errorf("failed to fetch legacy product details: %w", err)
	}
	volume := LegacyVolume(usage, details.Path("product.characteristics"))

	totals := usage.Get("totalusage")
	wifree := totals.Get("wifree").FloatOr(0)
	var usagePct, totalUsage, withOffPeak, peak, offPeak float64
	if totals.Has("peak") {
		totalUsage = wifree + totals.Get("peak").FloatOr(0)
		if volume > 0 {
			usagePct = 100 * totalUsage / volume
		}
		withOffPeak = math.Round((totalUsage + totals.Get("offpeak").FloatOr(0)) / Mega)
		peak = math.Round(totals.Get("peak").FloatOr(0) / Mega)
		offPeak = math.Round(totals.Get("offpeak").FloatOr(0) / Mega)
	} else {
		usagePct = usage.Get("usedpercentage").FloatOr(0)
		totalUsage = totals.Get("includedvolume").FloatOr(0) + totals.Get("extendedvolume").FloatOr(0)
		withOffPeak = totalUsage / Mega
	}

	periodStart := usage.Get("periodstart").Str()
	periodEnd := usage.Get("periodend").Str()
	var periodDays int
	var periodUsedPct float64
	start, errStart := time.Parse(legacyPeriodLayout, periodStart)
	end, errEnd := time.Parse(legacyPeriodLayout, periodEnd)
	if errStart == nil && errEnd == nil && end.After(start) {
		length := end.Sub(start)
		periodDays = int(length.Hours() / 24)
		periodUsedPct = math.Min(round(100*r.Now().Sub(start).Seconds()/length.Seconds(), 1), 100)
	}

	business := iu.Get("businessidentifier").Str()
	id := types.ExtraIdentifier(business, "internet usage")
	r.catalog.Set(r.accountProduct(id, "internet usage", id,
		types.ProductTypeUsage, types.DescriptionUsagePercentage, round(usagePct, 2), map[string]any{
			"last_update":                 iu.Get("lastupdated").Raw(),
			"identifier":                  business,
			"start_date":                  periodStart,
			"end_date":                    periodEnd,
			"days_until":                  periodDays,
			"total_volume":                fmt.Sprintf("%v GB", volume/Mega),
			"wifree_usage":                fmt.Sprintf("%v GB", math.Round(wifree/Mega)),
			"total_usage":                 fmt.Sprintf("%v GB", math.Round(totalUsage/Mega)),
			"total_usage_with_offpeak":    fmt.Sprintf("%v GB", math.Round(withOffPeak)),
			"peak_usage":                  fmt.Sprintf("%v GB", peak),
			"offpeak_usage":               fmt.Sprintf("%v GB", offPeak),
			"used_percentage":             round(usagePct, 2),
			"period_used_percentage":      periodUsedPct,
			"period_remaining_percentage": 100 - periodUsedPct,
			"squeezed":                    usagePct >= 100,
			"period_length":               periodDays,
		}))

	var dailyPeak, dailyOffPeak, dailyVolume []float64
	var dailyDate []any
	for _, day := range totals.Get("dailyusages").Array() {
		if day.Has("peak") {
			dailyPeak = append(dailyPeak, day.Get("peak").FloatOr(0)/Mega)
			dailyOffPeak = append(dailyOffPeak, day.Get("offpeak").FloatOr(0)/Mega)
		} else {
			dailyVolume = append(dailyVolume, (day.Get("included").FloatOr(0)+day.Get("extended").FloatOr(0))/Mega)
		}
		dailyDate = append(dailyDate, day.Get("date").Raw())
	}
	if len(dailyPeak) == 0 && len(dailyVolume) == 0 {
		return nil
	}
	state := totalUsage / Mega
	if totals.Has("peak") {
		state = totals.Get("peak").FloatOr(0) / Mega
	}
	dailyID := types.ExtraIdentifier(business, "internet daily usage")
	r.catalog.Set(r.accountProduct(dailyID, "internet daily usage", dailyID,
		types.ProductTypeUsage, types.DescriptionDataUsage, state, map[string]any{
			"daily_peak":     dailyPeak,
			"daily_off_peak": dailyOffPeak,
			"daily_volume":   dailyVolume,
			"daily_date":     dailyDate,
		}))
	return nil
}
