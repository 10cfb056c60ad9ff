package services

import (
	"cmp"
	"slices"

	"ecommerce-dashboard/internal/models"
)

// DefaultTopProducts is the length of the top products table.
const DefaultTopProducts = 10

// sum32 accumulates float32 values with Neumaier compensation so long
// columns keep the precision of their declared type.
type sum32 struct {
	sum, comp float32
}

func (s *sum32) add(x float32) {
	t := s.sum + x
	if abs32(s.sum) >= abs32(x) {
		s.comp += (s.sum - t) + x
	} else {
		s.comp += (x - t) + s.sum
	}
	s.sum = t
}

func (s sum32) value() float32 { return s.sum + s.comp }

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func ComputeKPIs(sel Selection) models.KPIs {
	invoices := make(map[string]struct{})
	customers := make(map[string]struct{})
	var revenue, quantity sum32

	sel.each(func(r *models.Record) {
		invoices[r.InvoiceNo] = struct{}{}
		if r.HasCustomer() {
			customers[r.CustomerID] = struct{}{}
		}
		revenue.add(r.TotalPrice)
		quantity.add(r.Quantity)
	})

	return models.KPIs{
		Invoices:  len(invoices),
		Revenue:   revenue.value(),
		Quantity:  quantity.value(),
		Customers: len(customers),
	}
}

// MonthlyTrend sums revenue per Month, ascending by month.
func MonthlyTrend(sel Selection) []models.MonthlyRevenue {
	sums := make(map[string]*sum32)
	sel.each(func(r *models.Record) {
		if r.Month == "" {
			return
		}
		s, ok := sums[r.Month]
		if !ok {
			s = &sum32{}
			sums[r.Month] = s
		}
		s.add(r.TotalPrice)
	})

	out := make([]models.MonthlyRevenue, 0, len(sums))
	for month, s := range sums {
		out = append(out, models.MonthlyRevenue{Month: month, Revenue: s.value()})
	}
	slices.SortFunc(out, func(a, b models.MonthlyRevenue) int {
		return cmp.Compare(a.Month, b.Month)
	})
	return out
}

// TopProducts returns the n descriptions with the highest revenue. Equal
// revenues keep first-encounter order. n <= 0 returns every product.
func TopProducts(sel Selection, n int) []models.ProductRevenue {
	groups := newGroups[string]()
	sel.each(func(r *models.Record) {
		groups.get(r.Description).revenue.add(r.TotalPrice)
	})

	out := make([]models.ProductRevenue, 0, len(groups.order))
	for _, g := range groups.order {
		out = append(out, models.ProductRevenue{Description: g.key, Revenue: g.revenue.value()})
	}
	slices.SortStableFunc(out, func(a, b models.ProductRevenue) int {
		return cmp.Compare(b.Revenue, a.Revenue)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// CountryTable sums revenue and counts distinct invoices per country,
// descending by revenue.
func CountryTable(sel Selection) []models.CountryRevenue {
	groups := newGroups[string]()
	sel.each(func(r *models.Record) {
		g := groups.get(r.Country)
		g.revenue.add(r.TotalPrice)
		g.invoices[r.InvoiceNo] = struct{}{}
	})

	out := make([]models.CountryRevenue, 0, len(groups.order))
	for _, g := range groups.order {
		out = append(out, models.CountryRevenue{Country: g.key, Revenue: g.revenue.value(), Invoices: len(g.invoices)})
	}
	slices.SortStableFunc(out, func(a, b models.CountryRevenue) int {
		return cmp.Compare(b.Revenue, a.Revenue)
	})
	return out
}

type geoKey struct {
	country, code string
}

// GeoTable sums revenue per (country, code) pair, skipping records whose
// country did not resolve, descending by revenue.
func GeoTable(sel Selection) []models.GeoRevenue {
	groups := newGroups[geoKey]()
	sel.each(func(r *models.Record) {
		if r.CountryCode == "" {
			return
		}
		groups.get(geoKey{r.Country, r.CountryCode}).revenue.add(r.TotalPrice)
	})

	out := make([]models.GeoRevenue, 0, len(groups.order))
	for _, g := range groups.order {
		out = append(out, models.GeoRevenue{Country: g.key.country, CountryCode: g.key.code, Revenue: g.revenue.value()})
	}
	slices.SortStableFunc(out, func(a, b models.GeoRevenue) int {
		return cmp.Compare(b.Revenue, a.Revenue)
	})
	return out
}

type group[K comparable] struct {
	key      K
	revenue  sum32
	invoices map[string]struct{}
}

// groups keeps groups in first-encounter order.
type groups[K comparable] struct {
	byKey map[K]*group[K]
	order []*group[K]
}

func newGroups[K comparable]() *groups[K] {
	return &groups[K]{byKey: make(map[K]*group[K])}
}

func (g *groups[K]) get(key K) *group[K] {
	if existing, ok := g.byKey[key]; ok {
		return existing
	}
	created := &group[K]{key: key, invoices: make(map[string]struct{})}
	g.byKey[key] = created
	g.order = append(g.order, created)
	return created
}
