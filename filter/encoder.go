// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package filter

import (
	"context"
	"io"
	"io/ioutil"

	"github.com/andybalholm/brotli"
	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/diffeo/go-restlet/routing"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/sirupsen/logrus"
)

// Codec compresses and decompresses one content encoding.
type Codec struct {
	Encoding   metadata.Encoding
	Compress   func(w io.Writer) (io.WriteCloser, error)
	Decompress func(r io.Reader) (io.ReadCloser, error)
}

// Codecs returns the stock codecs in order of preference: br, gzip,
// then deflate.
func Codecs() []Codec {
	return []Codec{
		{
			Encoding: metadata.Brotli,
			Compress: func(w io.Writer) (io.WriteCloser, error) {
				return brotli.NewWriterLevel(w, brotli.DefaultCompression), nil
			},
			Decompress: func(r io.Reader) (io.ReadCloser, error) {
				return ioutil.NopCloser(brotli.NewReader(r)), nil
			},
		},
		{
			Encoding: metadata.GZip,
			Compress: func(w io.Writer) (io.WriteCloser, error) {
				return gzip.NewWriterLevel(w, gzip.DefaultCompression)
			},
			Decompress: func(r io.Reader) (io.ReadCloser, error) {
				return gzip.NewReader(r)
			},
		},
		{
			// HTTP "deflate" is the zlib format
			Encoding: metadata.Deflate,
			Compress: func(w io.Writer) (io.WriteCloser, error) {
				return zlib.NewWriterLevel(w, zlib.DefaultCompression)
			},
			Decompress: func(r io.Reader) (io.ReadCloser, error) {
				return zlib.NewReader(r)
			},
		},
	}
}

// Encoder compresses response entities the client accepts compressed
// and decompresses compressed request entities.
type Encoder struct {
	Context *restlet.Context
	Codecs  []Codec

	// MinimumSize is the smallest entity of known size that gets
	// compressed.
	MinimumSize int64

	// Ignore lists media types that are already compressed.
	Ignore []metadata.MediaType

	// DecodeRequest enables decompression of request entities.
	DecodeRequest bool
}

// NewEncoderHooks creates an encoder with the stock codecs.
func NewEncoderHooks(ctx *restlet.Context) *Encoder {
	return &Encoder{
		Context:     ctx,
		Codecs:      Codecs(),
		MinimumSize: 1000,
		Ignore: []metadata.MediaType{
			metadata.ImageAll,
			metadata.ApplicationGzip,
			metadata.ApplicationZip,
		},
		DecodeRequest: true,
	}
}

// NewEncoder creates an encoding filter.
func NewEncoder(ctx *restlet.Context, next restlet.Handler) *routing.Filter {
	return routing.NewFilter(ctx, NewEncoderHooks(ctx), next)
}

func (e *Encoder) codec(enc metadata.Encoding) *Codec {
	for i := range e.Codecs {
		if e.Codecs[i].Encoding.Equals(enc) {
			return &e.Codecs[i]
		}
	}
	return nil
}

// isEncoded returns true if a variant carries any real encoding.
func isEncoded(v metadata.Variant) bool {
	for _, enc := range v.Encodings {
		if !enc.Equals(metadata.Identity) {
			return true
		}
	}
	return false
}

// BeforeHandle replaces a compressed request entity with a
// decompressing one.
func (e *Encoder) BeforeHandle(req *restlet.Request, resp *restlet.Response) routing.Action {
	if !e.DecodeRequest || req.Entity == nil {
		return routing.Continue
	}
	variant := req.Entity.Variant()
	if len(variant.Encodings) != 1 {
		return routing.Continue
	}
	codec := e.codec(variant.Encodings[0])
	if codec == nil {
		return routing.Continue
	}
	source := req.Entity
	variant.Encodings = nil
	req.Entity = representation.NewWriter(variant, func(ctx context.Context, w io.Writer) error {
		r, err := source.Open(ctx)
		if err != nil {
			return err
		}
		defer r.Close()
		dr, err := codec.Decompress(r)
		if err != nil {
			return err
		}
		defer dr.Close()
		_, err = io.Copy(w, dr)
		return err
	})
	return routing.Continue
}

// Choose returns the codec to compress a response with, or nil.
func (e *Encoder) Choose(req *restlet.Request, rep representation.Representation) *Codec {
	if rep == nil {
		return nil
	}
	if size := rep.Size(); size >= 0 && size < e.MinimumSize {
		return nil
	}
	variant := rep.Variant()
	if isEncoded(variant) {
		return nil
	}
	for _, mt := range e.Ignore {
		if mt.Includes(variant.MediaType) {
			return nil
		}
	}
	conneg := req.ClientInfo.Conneg(nil)
	best := conneg.ScoreEncodings([]metadata.Encoding{metadata.Identity})
	var chosen *Codec
	for i := range e.Codecs {
		if score := conneg.ScoreEncodings([]metadata.Encoding{e.Codecs[i].Encoding}); score > best {
			best = score
			chosen = &e.Codecs[i]
		}
	}
	return chosen
}

// AfterHandle compresses the response entity.
func (e *Encoder) AfterHandle(req *restlet.Request, resp *restlet.Response) {
	codec := e.Choose(req, resp.Entity)
	if codec == nil {
		return
	}
	source := resp.Entity
	variant := source.Variant()
	variant.Encodings = []metadata.Encoding{codec.Encoding}
	encoded := representation.NewWriter(variant, func(ctx context.Context, w io.Writer) error {
		r, err := source.Open(ctx)
		if err != nil {
			return err
		}
		defer r.Close()
		cw, err := codec.Compress(w)
		if err != nil {
			return err
		}
		if _, err = io.Copy(cw, r); err != nil {
			cw.Close()
			return err
		}
		return cw.Close()
	})
	encoded.SetDisposition(source.Disposition())
	e.Context.Log().WithFields(logrus.Fields{
		"encoding": codec.Encoding.Name(),
		"type":     variant.MediaType.Name(),
	}).Debug("Compressing response")
	resp.Entity = encoded
}
