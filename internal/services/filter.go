package services

import (
	"slices"

	"ecommerce-dashboard/internal/models"
)

// Selection is a read-only view of the records of a Dataset that match a
// FilterState. It shares the Dataset's storage.
type Selection struct {
	records []models.Record
	index   []int // nil selects every record
}

// Filter applies the Year predicate, then the Country predicate. Unset
// dimensions select everything. A country that does not occur in the
// selected year yields an empty selection.
func Filter(ds *models.Dataset, fs models.FilterState) Selection {
	if ds == nil {
		return Selection{index: []int{}}
	}
	if !fs.HasYear() && !fs.HasCountry() {
		return Selection{records: ds.Records}
	}

	index := make([]int, 0)
	for i := range ds.Records {
		r := &ds.Records[i]
		if fs.HasYear() && r.Year != fs.Year {
			continue
		}
		if fs.HasCountry() && r.Country != fs.Country {
			continue
		}
		index = append(index, i)
	}
	return Selection{records: ds.Records, index: index}
}

func (s Selection) Len() int {
	if s.index == nil {
		return len(s.records)
	}
	return len(s.index)
}

// At returns a copy of the i-th selected record.
func (s Selection) At(i int) models.Record {
	return *s.at(i)
}

func (s Selection) at(i int) *models.Record {
	if s.index == nil {
		return &s.records[i]
	}
	return &s.records[s.index[i]]
}

// Records materializes the selection into a new slice.
func (s Selection) Records() []models.Record {
	out := make([]models.Record, s.Len())
	for i := range out {
		out[i] = *s.at(i)
	}
	return out
}

// Each calls fn for every selected record in dataset order.
func (s Selection) Each(fn func(models.Record)) {
	s.each(func(r *models.Record) { fn(*r) })
}

// each passes records by pointer; fn must not modify them.
func (s Selection) each(fn func(*models.Record)) {
	n := s.Len()
	for i := 0; i < n; i++ {
		fn(s.at(i))
	}
}

// YearOptions returns the distinct years present, ascending.
func YearOptions(ds *models.Dataset) []int {
	years := []int{}
	if ds == nil {
		return years
	}
	seen := make(map[int]struct{})
	for i := range ds.Records {
		y := ds.Records[i].Year
		if y == 0 {
			continue
		}
		if _, ok := seen[y]; !ok {
			seen[y] = struct{}{}
			years = append(years, y)
		}
	}
	slices.Sort(years)
	return years
}

// CountryOptions returns the distinct countries, ascending. With a year set
// only countries occurring within that year are listed.
func CountryOptions(ds *models.Dataset, year int) []string {
	countries := []string{}
	if ds == nil {
		return countries
	}
	seen := make(map[string]struct{})
	for i := range ds.Records {
		r := &ds.Records[i]
		if year != 0 && r.Year != year {
			continue
		}
		if r.Country == "" {
			continue
		}
		if _, ok := seen[r.Country]; !ok {
			seen[r.Country] = struct{}{}
			countries = append(countries, r.Country)
		}
	}
	slices.Sort(countries)
	return countries
}

func Options(ds *models.Dataset, fs models.FilterState) models.FilterOptions {
	return models.FilterOptions{
		Years:     YearOptions(ds),
		Countries: CountryOptions(ds, fs.Year),
	}
}
