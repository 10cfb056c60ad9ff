package services

import (
	"time"

	"ecommerce-dashboard/internal/models"
)

type ReportOptions struct {
	TopProducts int
	Now         func() time.Time
}

// AssembleReport filters ds and computes every table for fs.
func AssembleReport(ds *models.Dataset, fs models.FilterState, opts ReportOptions) *models.ReportBundle {
	if opts.TopProducts == 0 {
		opts.TopProducts = DefaultTopProducts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	sel := Filter(ds, fs)
	return &models.ReportBundle{
		Filter:       fs,
		Options:      Options(ds, fs),
		RecordCount:  sel.Len(),
		KPIs:         ComputeKPIs(sel),
		MonthlyTrend: MonthlyTrend(sel),
		TopProducts:  TopProducts(sel, opts.TopProducts),
		Countries:    CountryTable(sel),
		Geo:          GeoTable(sel),
		GeneratedAt:  opts.Now(),
	}
}
