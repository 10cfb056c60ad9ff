package templates

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"ecommerce-dashboard/internal/models"
)

const (
	Title    = "E-commerce Transactions Dashboard"
	Subtitle = "Revenue, customers and products by year and country"
)

// Element ids patched by the report stream.
const (
	FiltersID   = "filters"
	KPIsID      = "kpis"
	MonthlyID   = "monthly"
	ProductsID  = "products"
	CountriesID = "countries"
	GeoID       = "geo"
	AlertID     = "alert"
)

// MaxCountryRows caps the country table; the full table is available from
// the JSON API.
const MaxCountryRows = 50

func money(v float32) string {
	return "£" + humanize.CommafWithDigits(float64(v), 2)
}

func count(v int) string {
	return humanize.Comma(int64(v))
}

func quantity(v float32) string {
	return humanize.Commaf(float64(v))
}

func peakRevenue(rows []models.MonthlyRevenue) float32 {
	var peak float32
	for _, row := range rows {
		peak = max(peak, row.Revenue)
	}
	return peak
}

// barWidth is v as a percentage of peak. Negative months draw empty.
func barWidth(v, peak float32) string {
	width := 0.0
	if peak > 0 && v > 0 {
		width = float64(v / peak * 100)
	}
	return fmt.Sprintf("%.1f", width)
}

func headCountries(rows []models.CountryRevenue) []models.CountryRevenue {
	if len(rows) > MaxCountryRows {
		return rows[:MaxCountryRows]
	}
	return rows
}
