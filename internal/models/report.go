package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AllOption is the selector value meaning "no predicate" for a dimension.
const AllOption = "All"

// Stable table names exposed to the presentation layer.
const (
	TableKPIs         = "kpis"
	TableMonthlyTrend = "monthly_trend"
	TableTopProducts  = "top_products"
	TableCountries    = "country_table"
	TableGeo          = "geo_table"
)

var TableNames = []string{TableKPIs, TableMonthlyTrend, TableTopProducts, TableCountries, TableGeo}

// FilterState is the current selection. Year 0 and an empty Country mean All.
type FilterState struct {
	Year    int    `json:"year,omitempty"`
	Country string `json:"country,omitempty"`
}

func (f FilterState) HasYear() bool    { return f.Year != 0 }
func (f FilterState) HasCountry() bool { return f.Country != "" }

// Key is the cache fingerprint of the selection.
func (f FilterState) Key() string {
	return fmt.Sprintf("y=%d|c=%s", f.Year, f.Country)
}

// ParseFilterState builds a FilterState from selector values where "" and
// "All" mean no predicate.
func ParseFilterState(year, country string) (FilterState, error) {
	var fs FilterState

	year = strings.TrimSpace(year)
	if year != "" && !strings.EqualFold(year, AllOption) {
		y, err := strconv.Atoi(year)
		if err != nil || y <= 0 {
			return FilterState{}, fmt.Errorf("invalid year %q", year)
		}
		fs.Year = y
	}

	country = strings.TrimSpace(country)
	if country != "" && !strings.EqualFold(country, AllOption) {
		fs.Country = country
	}

	return fs, nil
}

type FilterOptions struct {
	Years     []int    `json:"years"`
	Countries []string `json:"countries"`
}

type KPIs struct {
	Invoices  int     `json:"invoices"`
	Revenue   float32 `json:"revenue"`
	Quantity  float32 `json:"quantity"`
	Customers int     `json:"customers"`
}

type MonthlyRevenue struct {
	Month   string  `json:"month"`
	Revenue float32 `json:"revenue"`
}

type ProductRevenue struct {
	Description string  `json:"description"`
	Revenue     float32 `json:"revenue"`
}

type CountryRevenue struct {
	Country  string  `json:"country"`
	Revenue  float32 `json:"revenue"`
	Invoices int     `json:"invoices"`
}

type GeoRevenue struct {
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Revenue     float32 `json:"revenue"`
}

// ReportBundle packages every view computed for one selection.
type ReportBundle struct {
	Filter       FilterState      `json:"filter"`
	Options      FilterOptions    `json:"options"`
	RecordCount  int              `json:"record_count"`
	KPIs         KPIs             `json:"kpis"`
	MonthlyTrend []MonthlyRevenue `json:"monthly_trend"`
	TopProducts  []ProductRevenue `json:"top_products"`
	Countries    []CountryRevenue `json:"country_table"`
	Geo          []GeoRevenue     `json:"geo_table"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// Table returns the named table, or false for an unknown name.
func (b *ReportBundle) Table(name string) (any, bool) {
	switch name {
	case TableKPIs:
		return b.KPIs, true
	case TableMonthlyTrend:
		return b.MonthlyTrend, true
	case TableTopProducts:
		return b.TopProducts, true
	case TableCountries:
		return b.Countries, true
	case TableGeo:
		return b.Geo, true
	default:
		return nil, false
	}
}
