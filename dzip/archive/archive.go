// Package archive opens a ZIP container once and serves positional, per-member reads
// to any number of concurrent workers.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Kind classifies an archive failure
type Kind string

const (
	KindOpen   Kind = "open"   // the container file could not be opened or read
	KindFormat Kind = "format" // the bytes are not a readable ZIP central directory
	KindIndex  Kind = "index"  // a member index is out of range
	KindMember Kind = "member" // a member could not be decompressed
)

// Error is returned for every archive-level failure
type Error struct {
	Kind  Kind
	Path  string
	Index int
	Err   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindIndex, KindMember:
		return fmt.Sprintf("archive %s: member %d: %s: %v", e.Path, e.Index, e.Kind, e.Err)
	default:
		return fmt.Sprintf("archive %s: %s: %v", e.Path, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsArchiveError reports whether err carries an *Error
func IsArchiveError(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}

// Member is the identity of one entry in the container directory
type Member struct {
	Index            int
	Name             string
	CompressedSize   uint64
	UncompressedSize uint64
}

// IsDir reports whether the entry is a directory placeholder
func (m Member) IsDir() bool {
	return strings.HasSuffix(m.Name, "/")
}

// Reader exposes by-index reads over one opened container.
// It is safe for concurrent use; every read goes through io.ReaderAt.
type Reader struct {
	path    string
	zr      *zip.Reader
	closer  io.Closer
	size    int64
	members []Member
}

// Open opens the ZIP file at path without loading it into memory
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: KindOpen, Path: path, Index: -1, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &Error{Kind: KindOpen, Path: path, Index: -1, Err: err}
	}
	r, err := newReader(path, f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// OpenInMemory reads the whole container into memory and serves members from the buffer
func OpenInMemory(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: KindOpen, Path: path, Index: -1, Err: err}
	}
	return OpenBytes(path, data)
}

// OpenBytes serves members from an in-memory container; name is only used in errors
func OpenBytes(name string, data []byte) (*Reader, error) {
	return newReader(name, bytes.NewReader(data), int64(len(data)))
}

func newReader(path string, ra io.ReaderAt, size int64) (*Reader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, &Error{Kind: KindFormat, Path: path, Index: -1, Err: err}
	}

	members := make([]Member, len(zr.File))
	for i, f := range zr.File {
		members[i] = Member{
			Index:            i,
			Name:             f.Name,
			CompressedSize:   f.CompressedSize64,
			UncompressedSize: f.UncompressedSize64,
		}
	}

	return &Reader{
		path:    path,
		zr:      zr,
		size:    size,
		members: members,
	}, nil
}

// Path returns the path or name the reader was opened with
func (r *Reader) Path() string { return r.path }

// Size returns the container size in bytes
func (r *Reader) Size() int64 { return r.size }

// Len returns the number of members in the container
func (r *Reader) Len() int { return len(r.members) }

// Members returns a copy of the member directory
func (r *Reader) Members() []Member {
	out := make([]Member, len(r.members))
	copy(out, r.members)
	return out
}

// Member returns the identity of member i
func (r *Reader) Member(i int) (Member, error) {
	if i < 0 || i >= len(r.members) {
		return Member{}, r.indexError(i)
	}
	return r.members[i], nil
}

// Open returns a streaming reader over the decompressed body of member i.
// The caller must close it.
func (r *Reader) Open(i int) (io.ReadCloser, error) {
	if i < 0 || i >= len(r.members) {
		return nil, r.indexError(i)
	}
	rc, err := r.zr.File[i].Open()
	if err != nil {
		return nil, &Error{Kind: KindMember, Path: r.path, Index: i, Err: err}
	}
	return rc, nil
}

// ReadPrefix decompresses at most n bytes from the start of member i.
// A member shorter than n yields a short slice, not an error.
func (r *Reader) ReadPrefix(i, n int) ([]byte, error) {
	rc, err := r.Open(i)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(rc, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, &Error{Kind: KindMember, Path: r.path, Index: i, Err: err}
	}
	return buf[:read], nil
}

// ReadAll decompresses the full body of member i
func (r *Reader) ReadAll(i int) ([]byte, error) {
	rc, err := r.Open(i)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &Error{Kind: KindMember, Path: r.path, Index: i, Err: err}
	}
	return data, nil
}

// Close releases the underlying file, if any
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

func (r *Reader) indexError(i int) error {
	return &Error{
		Kind:  KindIndex,
		Path:  r.path,
		Index: i,
		Err:   fmt.Errorf("index out of range [0,%d)", len(r.members)),
	}
}
