package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Source is where the bundled dataset lives.
type Source interface {
	Name() string
	// Fingerprint identifies the current content; it changes when the
	// underlying bytes change.
	Fingerprint(ctx context.Context) (string, error)
	Open(ctx context.Context) (*Blob, error)
}

// Blob is a random-access view of a source, as required by zip archives.
type Blob struct {
	io.ReaderAt
	Name   string
	Size   int64
	closer io.Closer
}

func (b *Blob) Reader() io.Reader {
	return io.NewSectionReader(b.ReaderAt, 0, b.Size)
}

func (b *Blob) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// NewBlob wraps in-memory content.
func NewBlob(name string, data []byte) *Blob {
	return &Blob{ReaderAt: bytes.NewReader(data), Name: name, Size: int64(len(data))}
}

type FileSource struct {
	Path string
}

func NewFileSource(path string) FileSource {
	return FileSource{Path: path}
}

func (s FileSource) Name() string {
	return s.Path
}

func (s FileSource) Fingerprint(ctx context.Context) (string, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return "", s.statError(err)
	}
	return fmt.Sprintf("file:%s:%d:%d", s.Path, info.Size(), info.ModTime().UnixNano()), nil
}

func (s FileSource) Open(ctx context.Context) (*Blob, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, s.statError(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, newError(KindIO, s.Path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, newError(KindIO, s.Path, fmt.Errorf("%s is a directory", s.Path))
	}
	return &Blob{ReaderAt: f, Name: filepath.Base(s.Path), Size: info.Size(), closer: f}, nil
}

func (s FileSource) statError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return newError(KindMissing, s.Path, err)
	}
	return newError(KindIO, s.Path, err)
}

// ParseS3URI splits "s3://bucket/key" into its parts.
func ParseS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
