package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ecommerce-dashboard/internal/cache"
	"ecommerce-dashboard/internal/dataset"
	"ecommerce-dashboard/internal/models"
)

const testCSV = `InvoiceNo,StockCode,Description,Quantity,UnitPrice,CustomerID,Country,InvoiceDate,TotalPrice
1001,A1,Widget A,1,10,c1,France,2019-03-05 10:30:00,10
1002,A1,Widget A,2,10,c2,France,2019-04-01 10:30:00,20
1003,B1,Widget B,1,5,,Germany,2020-01-10 10:30:00,5
1004,D1,Gadget,3,4,c1,Unspecified,2020-02-14 10:30:00,12
`

func createTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type countingSource struct {
	dataset.Source
	opens atomic.Int32
}

func (c *countingSource) Open(ctx context.Context) (*dataset.Blob, error) {
	c.opens.Add(1)
	return c.Source.Open(ctx)
}

type recorder struct {
	mu        sync.Mutex
	loads     []string
	pipelines int
}

func (r *recorder) DatasetLoad(result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, result)
}

func (r *recorder) PipelineRun(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines++
}

func TestNewAnalytics(t *testing.T) {
	a := NewAnalytics()
	if a == nil {
		t.Fatal("NewAnalytics() returned nil")
	}
	if a.loader == nil || a.resolver == nil || a.datasets == nil {
		t.Error("defaults should be initialized")
	}
	if a.logger == nil {
		t.Error("logger should be initialized")
	}
	if _, err := a.Dataset(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
}

func TestAnalytics_SetData(t *testing.T) {
	a := NewAnalytics(WithResolver(testResolver))
	a.SetData(createTestRecords())

	bundle, err := a.Report(context.Background(), models.FilterState{})
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if bundle.RecordCount != 6 {
		t.Errorf("RecordCount = %d, want 6", bundle.RecordCount)
	}
	if len(bundle.Geo) != 2 {
		t.Errorf("geo rows = %d, want 2", len(bundle.Geo))
	}
	if stats := a.Stats(); stats["record_count"] != 6 {
		t.Errorf("stats record_count = %v", stats["record_count"])
	}
}

func TestAnalytics_LoadFromSource(t *testing.T) {
	src := &countingSource{Source: dataset.NewFileSource(createTempCSV(t, testCSV))}
	rec := &recorder{}
	a := NewAnalytics(WithSource(src), WithResolver(testResolver), WithMetrics(rec))

	if err := a.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	bundle, err := a.Report(context.Background(), models.FilterState{Year: 2020})
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if bundle.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2", bundle.RecordCount)
	}
	if got := bundle.Options.Countries; len(got) != 2 || got[0] != "Germany" || got[1] != "Unspecified" {
		t.Errorf("2020 countries = %v", got)
	}

	if _, err := a.Report(context.Background(), models.FilterState{}); err != nil {
		t.Fatal(err)
	}
	if n := src.opens.Load(); n != 1 {
		t.Errorf("source opened %d times, want 1", n)
	}
	if len(rec.loads) != 1 || rec.loads[0] != "ok" {
		t.Errorf("loads = %v", rec.loads)
	}
	if rec.pipelines != 2 {
		t.Errorf("pipelines = %d, want 2", rec.pipelines)
	}
}

// versionedSource reports a new fingerprint on every call, like a file
// rewritten between reads.
type versionedSource struct {
	dataset.Source
	calls atomic.Int32
}

func (v *versionedSource) Fingerprint(context.Context) (string, error) {
	return fmt.Sprintf("v%d", v.calls.Add(1)), nil
}

func TestAnalytics_DatasetKeepsFingerprintOfItsLoad(t *testing.T) {
	src := &versionedSource{Source: dataset.NewFileSource(createTempCSV(t, testCSV))}
	a := NewAnalytics(WithSource(src), WithResolver(testResolver), WithSnapshots(dataset.NewSnapshotStore(t.TempDir())))

	ds, err := a.Dataset(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ds.Fingerprint != "v1" {
		t.Errorf("Fingerprint = %q, want v1", ds.Fingerprint)
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("fingerprint computed %d times for one load, want 1", n)
	}
}

func TestAnalytics_ReloadsWhenSourceChanges(t *testing.T) {
	path := createTempCSV(t, testCSV)
	src := &countingSource{Source: dataset.NewFileSource(path)}
	a := NewAnalytics(WithSource(src), WithResolver(testResolver))

	ds, err := a.Dataset(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 4 {
		t.Fatalf("Len() = %d", ds.Len())
	}

	extra := "1005,E1,Lamp,1,3,c4,France,2020-03-01 09:00:00,3\n"
	if err := os.WriteFile(path, []byte(testCSV+extra), 0o644); err != nil {
		t.Fatal(err)
	}

	ds, err = a.Dataset(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 5 {
		t.Errorf("Len() after change = %d, want 5", ds.Len())
	}
	if n := src.opens.Load(); n != 2 {
		t.Errorf("source opened %d times, want 2", n)
	}
}

func TestAnalytics_LoadFailures(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{name: "empty file", csv: ""},
		{name: "missing columns", csv: "InvoiceNo,Country\n1,France\n"},
		{name: "invalid date", csv: "InvoiceNo,StockCode,Description,Quantity,UnitPrice,CustomerID,Country,InvoiceDate,TotalPrice\n1,A,W,1,1,c,France,invalid-date,1\n"},
		{name: "invalid price", csv: "InvoiceNo,StockCode,Description,Quantity,UnitPrice,CustomerID,Country,InvoiceDate,TotalPrice\n1,A,W,1,cheap,c,France,2020-01-01,1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			a := NewAnalytics(WithSource(dataset.NewFileSource(createTempCSV(t, tt.csv))), WithMetrics(rec))

			_, err := a.Report(context.Background(), models.FilterState{})
			if !errors.Is(err, dataset.ErrDataSource) {
				t.Errorf("Report() error = %v, want DataSourceError", err)
			}
			if len(rec.loads) != 1 || rec.loads[0] != "error" {
				t.Errorf("loads = %v", rec.loads)
			}
			last := a.Stats()["last_load"].(map[string]any)
			if last["error"] == "" {
				t.Error("stats should carry the load error")
			}
		})
	}
}

func TestAnalytics_FailedReloadKeepsPreviousDataset(t *testing.T) {
	path := createTempCSV(t, testCSV)
	a := NewAnalytics(WithSource(dataset.NewFileSource(path)), WithResolver(testResolver))
	if err := a.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("garbage\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Dataset(context.Background()); err == nil {
		t.Fatal("expected reload failure")
	}
	if a.datasets.Size() != 1 {
		t.Errorf("dataset cache entries = %d, want the earlier load kept", a.datasets.Size())
	}
}

func TestAnalytics_ReportCache(t *testing.T) {
	reports := cache.NewLRUCache[*models.ReportBundle](16, time.Minute)
	rec := &recorder{}
	a := NewAnalytics(
		WithSource(dataset.NewFileSource(createTempCSV(t, testCSV))),
		WithResolver(testResolver),
		WithReportCache(reports),
		WithMetrics(rec),
	)

	first, err := a.Report(context.Background(), models.FilterState{Country: "France"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Report(context.Background(), models.FilterState{Country: "France"})
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second report should come from the cache")
	}
	if rec.pipelines != 1 {
		t.Errorf("pipelines = %d, want 1", rec.pipelines)
	}
	if reports.Size() != 1 {
		t.Errorf("report cache size = %d", reports.Size())
	}
}

func TestAnalytics_Snapshots(t *testing.T) {
	path := createTempCSV(t, testCSV)
	snapshots := dataset.NewSnapshotStore(t.TempDir())

	first := NewAnalytics(WithSource(dataset.NewFileSource(path)), WithResolver(testResolver), WithSnapshots(snapshots))
	if err := first.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	src := &countingSource{Source: dataset.NewFileSource(path)}
	rec := &recorder{}
	second := NewAnalytics(WithSource(src), WithResolver(testResolver), WithSnapshots(snapshots), WithMetrics(rec))
	ds, err := second.Dataset(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 4 || ds.Records[0].CountryCode != "FRA" {
		t.Errorf("unexpected snapshot dataset: %d records", ds.Len())
	}
	if n := src.opens.Load(); n != 0 {
		t.Errorf("source opened %d times, want snapshot hit", n)
	}
	if len(rec.loads) != 1 || rec.loads[0] != "snapshot" {
		t.Errorf("loads = %v", rec.loads)
	}
}

func TestAnalytics_Sample(t *testing.T) {
	a := NewAnalytics(WithResolver(testResolver))
	a.SetData(createTestRecords())

	sample, err := a.Sample(context.Background(), models.FilterState{Country: "Germany"}, 2, rand.New(rand.NewPCG(7, 7)))
	if err != nil {
		t.Fatal(err)
	}
	if sample.Len() != 2 {
		t.Errorf("sample size = %d, want 2", sample.Len())
	}
	for _, r := range sample.Records {
		if r.Country != "Germany" {
			t.Errorf("sampled %s outside the selection", r.Country)
		}
	}
	if !sample.HasColumn(models.ColCountryCode) {
		t.Error("sample should keep derived columns")
	}
}

func TestAnalytics_ConcurrentAccess(t *testing.T) {
	a := NewAnalytics(
		WithSource(dataset.NewFileSource(createTempCSV(t, testCSV))),
		WithResolver(testResolver),
		WithReportCache(cache.NewLRUCache[*models.ReportBundle](8, time.Minute)),
	)

	filters := []models.FilterState{{}, {Year: 2019}, {Year: 2020, Country: "Germany"}}
	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(fs models.FilterState) {
			defer wg.Done()
			if _, err := a.Report(context.Background(), fs); err != nil {
				errs <- err
			}
			_ = a.Stats()
		}(filters[i%len(filters)])
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Report() error = %v", err)
	}
}

func TestAnalytics_EmptyData(t *testing.T) {
	a := NewAnalytics()
	a.SetData(nil)

	bundle, err := a.Report(context.Background(), models.FilterState{})
	if err != nil {
		t.Fatal(err)
	}
	if bundle.MonthlyTrend == nil || len(bundle.MonthlyTrend) != 0 {
		t.Errorf("MonthlyTrend should be an empty slice, got %#v", bundle.MonthlyTrend)
	}
	if len(bundle.TopProducts) != 0 || len(bundle.Countries) != 0 || len(bundle.Geo) != 0 {
		t.Error("tables should be empty")
	}
	if len(bundle.Options.Years) != 0 {
		t.Errorf("years = %v", bundle.Options.Years)
	}
}

func BenchmarkAnalytics_Report(b *testing.B) {
	a := NewAnalytics(WithResolver(testResolver))
	records := make([]models.Record, 0, 60000)
	for i := 0; i < 10000; i++ {
		records = append(records, createTestRecords()...)
	}
	a.SetData(records)
	ctx := context.Background()

	for b.Loop() {
		if _, err := a.Report(ctx, models.FilterState{Country: "France"}); err != nil {
			b.Fatal(err)
		}
	}
}
