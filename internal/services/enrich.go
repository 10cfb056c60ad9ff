package services

import (
	"slices"

	"ecommerce-dashboard/internal/geo"
	"ecommerce-dashboard/internal/models"
)

// MonthLayout is the calendar month format of the Month column.
const MonthLayout = "2006-01"

// Enrich returns ds with the Month, Year and CountryCode columns populated.
// Columns already present are left as they are, and when none is missing ds
// itself is returned. ds is never modified.
func Enrich(ds *models.Dataset, resolver geo.Resolver) *models.Dataset {
	if ds == nil {
		return nil
	}

	needMonth := !ds.HasColumn(models.ColMonth)
	needYear := !ds.HasColumn(models.ColYear)
	needCode := !ds.HasColumn(models.ColCountryCode)
	if !needMonth && !needYear && !needCode {
		return ds
	}

	records := slices.Clone(ds.Records)
	months := make(map[int]string)
	codes := make(map[string]string)

	for i := range records {
		r := &records[i]
		if needMonth {
			key := r.InvoiceDate.Year()*100 + int(r.InvoiceDate.Month())
			m, ok := months[key]
			if !ok {
				m = r.InvoiceDate.Format(MonthLayout)
				months[key] = m
			}
			r.Month = m
		}
		if needYear {
			r.Year = r.InvoiceDate.Year()
		}
		if needCode {
			code, ok := codes[r.Country]
			if !ok {
				code = resolveCode(resolver, r.Country)
				codes[r.Country] = code
			}
			r.CountryCode = code
		}
	}

	columns := slices.Clone(ds.Columns)
	for _, c := range models.DerivedColumns {
		if !slices.Contains(columns, c) {
			columns = append(columns, c)
		}
	}

	return &models.Dataset{
		Records:     records,
		Columns:     columns,
		Fingerprint: ds.Fingerprint,
		LoadedAt:    ds.LoadedAt,
	}
}

func resolveCode(resolver geo.Resolver, country string) string {
	if resolver == nil || country == "" {
		return ""
	}
	code, ok := resolver.Resolve(country)
	if !ok {
		return ""
	}
	return code
}
