package catalog

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/raterudder/telenet-exporter/pkg/tree"
)

// Mega is the number of bytes in a megabyte as the legacy API counts them.
const Mega = 1048576

// FormatDuration renders a voice usage counter as "01u 02 min 03 sec".
// Counters tagged MINUTES are minutes and counters tagged SECONDS are
// reported in hours by the portal. Anything else is taken as seconds.
func FormatDuration(value float64, unit string) string {
	switch strings.ToLower(unit) {
	case "seconds":
		value *= 60 * 60
	case "minutes":
		value *= 60
	}
	hours := math.Floor(value / 3600)
	rest := value - hours*3600
	minutes := math.Floor(rest / 60)
	seconds := rest - minutes*60

	var parts []string
	if hours != 0 {
		parts = append(parts, fmt.Sprintf("%02.0fu", hours))
	}
	if minutes != 0 {
		parts = append(parts, fmt.Sprintf("%02.0f min", minutes))
	}
	if seconds != 0 {
		parts = append(parts, fmt.Sprintf("%02.0f sec", seconds))
	}
	if len(parts) == 0 {
		return "0 sec"
	}
	return strings.Join(parts, " ")
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// decimalOf reads a money amount that may be a number or a string with a
// comma decimal separator. Anything else is zero.
func decimalOf(v tree.Value) decimal.Decimal {
	switch v.Kind() {
	case tree.Number:
		f, _ := v.Float()
		return decimal.NewFromFloat(f)
	case tree.String:
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(v.Str()), ",", "."))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// number returns numeric strings as float64 and everything else unchanged.
func number(v tree.Value) any {
	if f, ok := v.Float(); ok {
		return f
	}
	return v.Raw()
}

// merge returns a new map holding every map in order, later keys winning.
func merge(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
