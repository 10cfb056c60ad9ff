package dataset

import (
	"errors"
	"fmt"
)

// ErrDataSource matches every DataSourceError via errors.Is.
var ErrDataSource = errors.New("data source error")

var (
	ErrNoTable        = errors.New("archive contains no csv table")
	ErrMultipleTables = errors.New("archive contains more than one csv table")
	ErrMissingHeader  = errors.New("csv file missing header row")
)

type ErrorKind string

const (
	KindIO             ErrorKind = "io"
	KindMissing        ErrorKind = "missing"
	KindNoTable        ErrorKind = "no_table"
	KindMultipleTables ErrorKind = "multiple_tables"
	KindSchema         ErrorKind = "schema"
)

// DataSourceError is returned for every failure to produce a Dataset. The
// pipeline must stop when it sees one; no partial dataset accompanies it.
type DataSourceError struct {
	Kind   ErrorKind
	Source string
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

func (e *DataSourceError) Is(target error) bool {
	return target == ErrDataSource
}

func newError(kind ErrorKind, source string, err error) *DataSourceError {
	return &DataSourceError{Kind: kind, Source: source, Err: err}
}

// SchemaError points at the first cell that does not match the schema.
type SchemaError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d, column %s: invalid value %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
