// Command gendata writes a zip archive holding one synthetic transactions CSV
// in the dashboard's input schema.
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/joho/godotenv"
	"github.com/klauspost/compress/zip"

	"ecommerce-dashboard/internal/config"
	"ecommerce-dashboard/internal/dataset"
	"ecommerce-dashboard/internal/models"
	"ecommerce-dashboard/internal/observability"
)

type options struct {
	rows     int
	products int
	seed     uint64
	from     time.Time
	to       time.Time
}

// Country names as they appear in the source data, weighted towards the
// home market. A few deliberately do not resolve to an ISO code.
var countryWeights = []struct {
	name   string
	weight int
}{
	{"United Kingdom", 80},
	{"Germany", 4},
	{"France", 4},
	{"EIRE", 3},
	{"Spain", 2},
	{"Netherlands", 2},
	{"Belgium", 1},
	{"Switzerland", 1},
	{"USA", 1},
	{"RSA", 1},
	{"Unspecified", 1},
	{"European Community", 1},
}

type product struct {
	stockCode   string
	description string
	price       float64
}

func pickCountry(f *gofakeit.Faker) string {
	total := 0
	for _, c := range countryWeights {
		total += c.weight
	}
	n := f.IntRange(1, total)
	for _, c := range countryWeights {
		n -= c.weight
		if n <= 0 {
			return c.name
		}
	}
	return countryWeights[0].name
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func catalog(f *gofakeit.Faker, n int) []product {
	products := make([]product, n)
	for i := range products {
		products[i] = product{
			stockCode:   f.Numerify("#####") + strings.ToUpper(f.Letter()),
			description: strings.ToUpper(f.ProductName()),
			price:       round2(f.Float64Range(0.29, 49.95)),
		}
	}
	return products
}

// generate builds opts.rows records grouped into invoices of one to five
// lines. Roughly one invoice in forty is a cancellation and one in five has
// no customer.
func generate(opts options) []models.Record {
	f := gofakeit.New(opts.seed)
	products := catalog(f, max(opts.products, 1))

	records := make([]models.Record, 0, opts.rows)
	invoice := 536365
	for len(records) < opts.rows {
		invoice++
		cancelled := f.IntRange(1, 40) == 1
		invoiceNo := fmt.Sprint(invoice)
		if cancelled {
			invoiceNo = "C" + invoiceNo
		}

		customer := ""
		if f.IntRange(1, 5) > 1 {
			customer = fmt.Sprint(f.IntRange(12346, 18287))
		}
		country := pickCountry(f)
		date := f.DateRange(opts.from, opts.to).UTC().Truncate(time.Minute)

		lines := min(f.IntRange(1, 5), opts.rows-len(records))
		for range lines {
			p := products[f.IntRange(0, len(products)-1)]
			qty := f.IntRange(1, 24)
			if cancelled {
				qty = -qty
			}
			records = append(records, models.Record{
				InvoiceNo:   invoiceNo,
				StockCode:   p.stockCode,
				Description: p.description,
				Quantity:    float32(qty),
				UnitPrice:   float32(p.price),
				CustomerID:  customer,
				Country:     country,
				InvoiceDate: date,
				TotalPrice:  float32(round2(float64(qty) * p.price)),
			})
		}
	}
	return records
}

// writeArchive stores records as a single CSV entry named entry.
func writeArchive(w io.Writer, entry string, records []models.Record) error {
	zw := zip.NewWriter(w)
	f, err := zw.Create(entry)
	if err != nil {
		return fmt.Errorf("create %s: %w", entry, err)
	}
	if err := dataset.WriteCSV(f, records, models.SourceColumns); err != nil {
		return fmt.Errorf("write %s: %w", entry, err)
	}
	return zw.Close()
}

func writeFile(path string, records []models.Record) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	entry := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".csv"
	if err := writeArchive(f, entry, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	_ = godotenv.Load()

	defaultOut := os.Getenv("DATA_SOURCE")
	if defaultOut == "" || strings.HasPrefix(defaultOut, "s3://") {
		defaultOut = "ecommerce_data.zip"
	}

	var (
		out      string
		opts     options
		seed     int64
		from, to string
		logLevel string
	)
	flag.StringVar(&out, "out", defaultOut, "Output zip archive")
	flag.IntVar(&opts.rows, "rows", 50000, "Number of transaction lines")
	flag.IntVar(&opts.products, "products", 500, "Size of the product catalogue")
	flag.Int64Var(&seed, "seed", 0, "Random seed (0 picks one)")
	flag.StringVar(&from, "from", "2010-12-01", "First invoice date")
	flag.StringVar(&to, "to", "2011-12-09", "Last invoice date")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := observability.NewLogger(config.LoggerConfig{Level: logLevel, Format: "text"})

	var err error
	if opts.from, err = time.Parse(time.DateOnly, from); err != nil {
		logger.Error("invalid -from date", "error", err)
		os.Exit(2)
	}
	if opts.to, err = time.Parse(time.DateOnly, to); err != nil {
		logger.Error("invalid -to date", "error", err)
		os.Exit(2)
	}
	if opts.rows <= 0 || !opts.to.After(opts.from) {
		logger.Error("rows must be positive and -to after -from")
		os.Exit(2)
	}
	opts.seed = uint64(seed)

	start := time.Now()
	records := generate(opts)
	if err := writeFile(out, records); err != nil {
		logger.Error("failed to write archive", "path", out, "error", err)
		os.Exit(1)
	}

	logger.Info("archive written",
		"path", out,
		"rows", len(records),
		"duration", time.Since(start),
	)
}
