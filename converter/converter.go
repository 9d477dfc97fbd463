// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package converter turns Go values into representations and back.
// The stock converters speak JSON and CBOR through the ugorji codec
// library.
package converter

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
)

// Converter converts between objects and one family of media types.
type Converter interface {
	// Variants returns the variants obj can be written as, most
	// preferred first.
	Variants(obj interface{}) []metadata.Variant

	// CanRead returns true if representations of mt can be decoded.
	CanRead(mt metadata.MediaType) bool

	// ToRepresentation encodes obj in variant.
	ToRepresentation(obj interface{}, variant metadata.Variant) (representation.Representation, error)

	// ToObject decodes rep into out, which must be a pointer.
	ToObject(ctx context.Context, rep representation.Representation, out interface{}) error
}

// ErrUnsupportedMediaType is returned when no converter can read an
// entity.
type ErrUnsupportedMediaType struct {
	Type string
}

func (e ErrUnsupportedMediaType) Error() string {
	return fmt.Sprintf("Unsupported media type %q", e.Type)
}

// HTTPStatus returns a fixed 415 Unsupported Media Type error code.
func (e ErrUnsupportedMediaType) HTTPStatus() int {
	return http.StatusUnsupportedMediaType
}

// ErrNotAcceptable is returned when no converter can write any
// variant the client accepts.
type ErrNotAcceptable struct{}

func (e ErrNotAcceptable) Error() string {
	return "No acceptable representation for response"
}

// HTTPStatus returns a fixed 406 Not Acceptable error code.
func (e ErrNotAcceptable) HTTPStatus() int {
	return http.StatusNotAcceptable
}

// Service holds an ordered list of converters.  Converters may be
// added while calls are in flight.
type Service struct {
	lock       sync.Mutex
	converters atomic.Value // []Converter
}

// NewService creates a converter service with JSON and CBOR.
func NewService() *Service {
	s := &Service{}
	s.Register(NewJSON())
	s.Register(NewCBOR())
	return s
}

// Register appends a converter.
func (s *Service) Register(c Converter) {
	s.lock.Lock()
	defer s.lock.Unlock()
	old := s.Converters()
	next := make([]Converter, len(old), len(old)+1)
	copy(next, old)
	s.converters.Store(append(next, c))
}

// Converters returns the registered converters.  The caller must not
// modify the result.
func (s *Service) Converters() []Converter {
	list, _ := s.converters.Load().([]Converter)
	return list
}

// Variants lists every variant any converter offers for obj.
func (s *Service) Variants(obj interface{}) []metadata.Variant {
	var result []metadata.Variant
	for _, c := range s.Converters() {
		result = append(result, c.Variants(obj)...)
	}
	return result
}

// ToRepresentation negotiates a variant of obj against conneg and
// encodes it.  Returns ErrNotAcceptable if no variant is acceptable.
func (s *Service) ToRepresentation(obj interface{}, conneg *metadata.Conneg) (representation.Representation, error) {
	type candidate struct {
		converter Converter
		variant   metadata.Variant
	}
	var candidates []candidate
	var variants []metadata.Variant
	for _, c := range s.Converters() {
		for _, v := range c.Variants(obj) {
			candidates = append(candidates, candidate{c, v})
			variants = append(variants, v)
		}
	}
	best := conneg.PreferredVariant(variants)
	if best < 0 {
		return nil, ErrNotAcceptable{}
	}
	chosen := candidates[best]
	return chosen.converter.ToRepresentation(obj, chosen.variant)
}

// ToObject decodes rep into out with the first converter that can
// read its media type.  An entity without a media type is taken as
// application/octet-stream, which no stock converter reads.
func (s *Service) ToObject(ctx context.Context, rep representation.Representation, out interface{}) error {
	mt := rep.Variant().MediaType
	if mt.IsZero() {
		mt = metadata.ApplicationOctetStream
	}
	for _, c := range s.Converters() {
		if c.CanRead(mt) {
			return c.ToObject(ctx, rep, out)
		}
	}
	return ErrUnsupportedMediaType{Type: mt.Name()}
}

// Encode writes obj as variant with the first converter offering
// that variant's media type.
func (s *Service) Encode(obj interface{}, variant metadata.Variant) (representation.Representation, error) {
	for _, c := range s.Converters() {
		for _, v := range c.Variants(obj) {
			if v.MediaType.Equals(variant.MediaType) {
				return c.ToRepresentation(obj, variant)
			}
		}
	}
	return nil, ErrNotAcceptable{}
}
