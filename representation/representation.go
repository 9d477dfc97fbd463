// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package representation provides the entity bodies carried by
// requests and responses.  A Representation couples a byte stream
// with the metadata needed to negotiate and serialize it.
package representation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/ioutil"
	"strings"
	"sync"

	"github.com/diffeo/go-restlet/metadata"
)

// ErrUnavailable is returned from Open on a transient representation
// whose content has already been consumed or released.
var ErrUnavailable = errors.New("representation content is no longer available")

// Representation is an entity body.
type Representation interface {
	// Variant returns the media type, character set, languages and
	// encodings of the content.
	Variant() metadata.Variant

	// Size returns the content length in bytes, or -1 if unknown.
	Size() int64

	// Disposition returns the Content-Disposition, or nil.
	Disposition() *Disposition

	// Open returns a reader over the content.  Transient
	// representations can only be opened once.
	Open(ctx context.Context) (io.ReadCloser, error)

	// Available returns false once a transient representation has
	// been opened or released.
	Available() bool

	// Transient returns true if the content can be read only once.
	Transient() bool

	// Release frees any underlying resources.
	Release()
}

// Info holds the descriptive fields shared by the representations in
// this package.  Embed it to implement the metadata half of
// Representation.
type Info struct {
	Metadata           metadata.Variant
	Length             int64
	ContentDisposition *Disposition
}

// Variant returns the declared metadata.
func (i *Info) Variant() metadata.Variant {
	return i.Metadata
}

// Size returns the declared length.
func (i *Info) Size() int64 {
	return i.Length
}

// Disposition returns the declared disposition.
func (i *Info) Disposition() *Disposition {
	return i.ContentDisposition
}

// SetDisposition sets the Content-Disposition.
func (i *Info) SetDisposition(d *Disposition) {
	i.ContentDisposition = d
}

// Bytes is an in-memory, reusable representation.
type Bytes struct {
	Info
	data []byte
}

// NewBytes creates a representation over a byte slice.
func NewBytes(data []byte, mediaType metadata.MediaType) *Bytes {
	return &Bytes{
		Info: Info{
			Metadata: metadata.Variant{MediaType: mediaType},
			Length:   int64(len(data)),
		},
		data: data,
	}
}

// NewString creates a representation from text.  Textual media types
// without a charset parameter are declared as UTF-8.
func NewString(s string, mediaType metadata.MediaType) *Bytes {
	b := NewBytes([]byte(s), mediaType)
	if mediaType.Main() == "text" || mediaType.IsZero() {
		b.Metadata.CharacterSet = metadata.UTF8
	}
	return b
}

// Data returns the underlying bytes.
func (b *Bytes) Data() []byte {
	return b.data
}

// Open returns a fresh reader each time.
func (b *Bytes) Open(ctx context.Context) (io.ReadCloser, error) {
	return ioutil.NopCloser(bytes.NewReader(b.data)), nil
}

// Available is always true.
func (b *Bytes) Available() bool {
	return true
}

// Transient is always false.
func (b *Bytes) Transient() bool {
	return false
}

// Release does nothing.
func (b *Bytes) Release() {}

// Reader is a one-shot representation over an existing stream, such
// as an HTTP request body.
type Reader struct {
	Info
	lock   sync.Mutex
	reader io.ReadCloser
}

// NewReader wraps a stream.  size may be -1 if unknown.
func NewReader(r io.ReadCloser, variant metadata.Variant, size int64) *Reader {
	return &Reader{
		Info:   Info{Metadata: variant, Length: size},
		reader: r,
	}
}

// Open hands out the stream exactly once.
func (r *Reader) Open(ctx context.Context) (io.ReadCloser, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.reader == nil {
		return nil, ErrUnavailable
	}
	result := r.reader
	r.reader = nil
	return result, nil
}

// Available returns true until the stream is opened or released.
func (r *Reader) Available() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.reader != nil
}

// Transient is always true.
func (r *Reader) Transient() bool {
	return true
}

// Release closes the stream if it was never opened.
func (r *Reader) Release() {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.reader != nil {
		_ = r.reader.Close()
		r.reader = nil
	}
}

// ReadAll opens rep and returns its entire content.
func ReadAll(ctx context.Context, rep Representation) (data []byte, err error) {
	reader, err := rep.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := reader.Close(); err == nil {
			err = cerr
		}
	}()
	return ioutil.ReadAll(reader)
}

// Text opens rep and returns its content as a string.
func Text(ctx context.Context, rep Representation) (string, error) {
	data, err := ReadAll(ctx, rep)
	return string(data), err
}

// Copy opens rep and writes its content to w.
func Copy(ctx context.Context, w io.Writer, rep Representation) (n int64, err error) {
	reader, err := rep.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := reader.Close(); err == nil {
			err = cerr
		}
	}()
	return io.Copy(w, reader)
}

// Describe returns a short human-readable summary, used in logs.
func Describe(rep Representation) string {
	if rep == nil {
		return "none"
	}
	parts := []string{}
	v := rep.Variant()
	if !v.MediaType.IsZero() {
		parts = append(parts, v.MediaType.String())
	}
	for _, lang := range v.Languages {
		parts = append(parts, lang.Name())
	}
	for _, enc := range v.Encodings {
		parts = append(parts, enc.Name())
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, " ")
}
