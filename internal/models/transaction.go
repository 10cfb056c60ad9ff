package models

import (
	"slices"
	"time"
)

// Source columns, in the order they appear in the bundled dataset.
const (
	ColInvoiceNo   = "InvoiceNo"
	ColStockCode   = "StockCode"
	ColDescription = "Description"
	ColQuantity    = "Quantity"
	ColUnitPrice   = "UnitPrice"
	ColCustomerID  = "CustomerID"
	ColCountry     = "Country"
	ColInvoiceDate = "InvoiceDate"
	ColTotalPrice  = "TotalPrice"
)

// Derived columns appended by enrichment.
const (
	ColMonth       = "Month"
	ColYear        = "Year"
	ColCountryCode = "CountryCode"
)

var SourceColumns = []string{
	ColInvoiceNo,
	ColStockCode,
	ColDescription,
	ColQuantity,
	ColUnitPrice,
	ColCustomerID,
	ColCountry,
	ColInvoiceDate,
	ColTotalPrice,
}

var DerivedColumns = []string{ColMonth, ColYear, ColCountryCode}

// Record is one transaction row. An empty CustomerID is a missing customer and
// an empty CountryCode means the country name did not resolve.
type Record struct {
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    float32
	UnitPrice   float32
	CustomerID  string
	Country     string
	InvoiceDate time.Time
	TotalPrice  float32

	Month       string
	Year        int
	CountryCode string
}

func (r Record) HasCustomer() bool {
	return r.CustomerID != ""
}

// Dataset is an ordered, immutable collection of records. Columns lists the
// populated columns; only derived columns are ever appended to it.
type Dataset struct {
	Records     []Record
	Columns     []string
	Fingerprint string
	LoadedAt    time.Time
}

func NewDataset(records []Record, columns []string, fingerprint string) *Dataset {
	return &Dataset{
		Records:     records,
		Columns:     slices.Clone(columns),
		Fingerprint: fingerprint,
		LoadedAt:    time.Now(),
	}
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

func (d *Dataset) HasColumn(name string) bool {
	if d == nil {
		return false
	}
	return slices.Contains(d.Columns, name)
}
