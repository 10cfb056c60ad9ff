package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"

	"ecommerce-dashboard/internal/models"
)

const (
	defaultBatchSize = 10000
	defaultWorkers   = 10
)

var zipMagic = []byte("PK\x03\x04")

// Loader turns a Source into a typed Dataset.
type Loader struct {
	batchSize int
	workers   int
	delimiter rune
	logger    *slog.Logger
}

type LoaderOption func(*Loader)

func WithBatchSize(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

func WithWorkers(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

func WithDelimiter(d rune) LoaderOption {
	return func(l *Loader) {
		l.delimiter = d
	}
}

func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		batchSize: defaultBatchSize,
		workers:   defaultWorkers,
		delimiter: ',',
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the single table held by src. Every failure is a
// *DataSourceError and no dataset is returned with it.
func (l *Loader) Load(ctx context.Context, src Source) (*models.Dataset, error) {
	fingerprint, err := src.Fingerprint(ctx)
	if err != nil {
		return nil, err
	}
	return l.LoadVersion(ctx, src, fingerprint)
}

// LoadVersion is Load for a caller that already holds the fingerprint of
// src. The dataset carries that fingerprint.
func (l *Loader) LoadVersion(ctx context.Context, src Source, fingerprint string) (*models.Dataset, error) {
	start := time.Now()

	blob, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	r, tableName, err := openTable(blob)
	if err != nil {
		return nil, l.wrap(src, err)
	}
	defer r.Close()

	t, err := readTable(r, l.delimiter)
	if err != nil {
		return nil, l.wrap(src, err)
	}

	records, err := l.parseRows(ctx, t)
	if err != nil {
		return nil, l.wrap(src, err)
	}

	l.logger.Info("dataset loaded",
		"source", src.Name(),
		"table", tableName,
		"records", len(records),
		"duration", time.Since(start),
	)

	return models.NewDataset(records, t.columns, fingerprint), nil
}

func (l *Loader) wrap(src Source, err error) error {
	var dsErr *DataSourceError
	if errors.As(err, &dsErr) {
		return err
	}

	var schemaErr *SchemaError
	switch {
	case errors.As(err, &schemaErr), errors.Is(err, ErrMissingHeader):
		return newError(KindSchema, src.Name(), err)
	case errors.Is(err, ErrNoTable):
		return newError(KindNoTable, src.Name(), err)
	case errors.Is(err, ErrMultipleTables):
		return newError(KindMultipleTables, src.Name(), err)
	default:
		return newError(KindIO, src.Name(), err)
	}
}

// openTable returns the delimited table inside blob: the only csv entry of a
// zip archive, or the blob itself for a loose file.
func openTable(blob *Blob) (io.ReadCloser, string, error) {
	if !isZip(blob) {
		return io.NopCloser(blob.Reader()), blob.Name, nil
	}

	zr, err := zip.NewReader(blob, blob.Size)
	if err != nil {
		return nil, "", fmt.Errorf("open archive: %w", err)
	}

	var tables []*zip.File
	for _, f := range zr.File {
		if isTableEntry(f) {
			tables = append(tables, f)
		}
	}

	switch len(tables) {
	case 0:
		return nil, "", ErrNoTable
	case 1:
	default:
		names := make([]string, len(tables))
		for i, f := range tables {
			names[i] = f.Name
		}
		return nil, "", fmt.Errorf("%w: %s", ErrMultipleTables, strings.Join(names, ", "))
	}

	rc, err := tables[0].Open()
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", tables[0].Name, err)
	}
	return rc, tables[0].Name, nil
}

func isZip(blob *Blob) bool {
	if strings.EqualFold(path.Ext(blob.Name), ".zip") {
		return true
	}
	head := make([]byte, len(zipMagic))
	if _, err := blob.ReadAt(head, 0); err != nil {
		return false
	}
	return bytes.Equal(head, zipMagic)
}

func isTableEntry(f *zip.File) bool {
	name := f.Name
	if f.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
		return false
	}
	if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._") {
		return false
	}
	return strings.EqualFold(path.Ext(name), ".csv")
}

// parseRows types every raw row. Batches are parsed concurrently into their
// own slots so the dataset keeps file order.
func (l *Loader) parseRows(ctx context.Context, t *table) ([]models.Record, error) {
	records := make([]models.Record, len(t.rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

	for start := 0; start < len(t.rows); start += l.batchSize {
		end := min(start+l.batchSize, len(t.rows))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				rec, err := t.parseRow(t.rows[i])
				if err != nil {
					return err
				}
				records[i] = rec
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
