// Package pricing computes order amounts. All arithmetic goes through
// models.Money so repeated additions never drift the way floats do.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"storefront/internal/models"
)

// Rules holds the rate table used to price an order. Tax regions are matched
// by substring against the shipping region, first match wins.
type Rules struct {
	DefaultTaxRate  decimal.Decimal
	RegionTaxRates  []RegionRate
	FlatShipping    models.Money
	FreeShippingMin models.Money
	RemoteRegions   []string
	RemoteSurcharge decimal.Decimal
}

type RegionRate struct {
	Region string
	Rate   decimal.Decimal
}

// DefaultRules returns the built-in rate table: 8% default tax with three
// regional overrides, 15.00 flat shipping waived at a 100.00 subtotal, and a
// 1.5x surcharge for remote regions.
func DefaultRules() Rules {
	return Rules{
		DefaultTaxRate: decimal.RequireFromString("0.08"),
		RegionTaxRates: []RegionRate{
			{Region: "Istanbul", Rate: decimal.RequireFromString("0.10")},
			{Region: "Ankara", Rate: decimal.RequireFromString("0.09")},
			{Region: "Izmir", Rate: decimal.RequireFromString("0.085")},
		},
		FlatShipping:    models.MustMoney("15.00"),
		FreeShippingMin: models.MustMoney("100.00"),
		RemoteRegions:   []string{"Hakkari", "Ardahan", "Igdir"},
		RemoteSurcharge: decimal.RequireFromString("1.5"),
	}
}

// Subtotal sums unitPrice x quantity across lines at full precision and
// rounds the sum half-up to 2 decimals once. Per-line discounts do not reduce
// the subtotal; they feed the order-level discount amount instead.
func (r Rules) Subtotal(lines []models.OrderLine) models.Money {
	total := models.ZeroMoney()
	for _, line := range lines {
		total = total.Add(line.UnitPrice.MulInt(line.Quantity))
	}
	return total.Round()
}

// Tax applies the first matching regional rate, or the default rate when the
// region matches no override.
func (r Rules) Tax(subtotal models.Money, region string) models.Money {
	rate := r.DefaultTaxRate
	for _, override := range r.RegionTaxRates {
		if containsFold(region, override.Region) {
			rate = override.Rate
			break
		}
	}
	return subtotal.MulRate(rate).Round()
}

// Shipping is the flat rate, waived entirely once the subtotal reaches the
// free-shipping threshold. Remote regions pay the surcharge multiple.
func (r Rules) Shipping(subtotal models.Money, region string) models.Money {
	if subtotal.GreaterThanOrEqual(r.FreeShippingMin) {
		return models.ZeroMoney()
	}
	rate := r.FlatShipping
	for _, remote := range r.RemoteRegions {
		if containsFold(region, remote) {
			return rate.MulRate(r.RemoteSurcharge).Round()
		}
	}
	return rate
}

// Total is subtotal + tax + shipping - discount. The discount is capped at
// subtotal by the discount-application rule, so the result is never negative.
func (r Rules) Total(subtotal, tax, shipping, discount models.Money) models.Money {
	return subtotal.Add(tax).Add(shipping).Sub(discount)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
