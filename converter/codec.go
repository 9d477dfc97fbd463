// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package converter

import (
	"context"

	"github.com/diffeo/go-restlet/metadata"
	"github.com/diffeo/go-restlet/representation"
	"github.com/ugorji/go/codec"
)

// Codec is a converter backed by a ugorji codec handle.
type Codec struct {
	// Handle does the encoding.
	Handle codec.Handle
	// Writes lists the media types written, most preferred first.
	Writes []metadata.MediaType
	// Reads lists the media types read, which may include
	// wildcards.
	Reads []metadata.MediaType
	// CharacterSet is set on written variants of textual formats.
	CharacterSet metadata.CharacterSet
}

// NewJSON creates the JSON converter.  It writes application/json and
// reads the common JSON media types.
func NewJSON() *Codec {
	return &Codec{
		Handle:       &codec.JsonHandle{},
		Writes:       []metadata.MediaType{metadata.ApplicationJSON, metadata.TextJSON},
		Reads:        []metadata.MediaType{metadata.ApplicationJSON, metadata.TextJSON},
		CharacterSet: metadata.UTF8,
	}
}

// NewCBOR creates the CBOR converter.
func NewCBOR() *Codec {
	return &Codec{
		Handle: &codec.CborHandle{},
		Writes: []metadata.MediaType{metadata.ApplicationCBOR},
		Reads:  []metadata.MediaType{metadata.ApplicationCBOR},
	}
}

// Variants returns one variant per written media type.  nil objects
// have no representation.
func (c *Codec) Variants(obj interface{}) []metadata.Variant {
	if obj == nil {
		return nil
	}
	result := make([]metadata.Variant, len(c.Writes))
	for i, mt := range c.Writes {
		result[i] = metadata.Variant{MediaType: mt, CharacterSet: c.CharacterSet}
	}
	return result
}

// CanRead checks mt against the readable media types, ignoring
// parameters.
func (c *Codec) CanRead(mt metadata.MediaType) bool {
	base := mt.WithoutParams()
	for _, r := range c.Reads {
		if r.Includes(base) {
			return true
		}
	}
	return false
}

// ToRepresentation encodes obj.
func (c *Codec) ToRepresentation(obj interface{}, variant metadata.Variant) (representation.Representation, error) {
	var out []byte
	encoder := codec.NewEncoderBytes(&out, c.Handle)
	if err := encoder.Encode(obj); err != nil {
		return nil, err
	}
	rep := representation.NewBytes(out, variant.MediaType)
	rep.Metadata = variant
	return rep, nil
}

// ToObject decodes rep's content.
func (c *Codec) ToObject(ctx context.Context, rep representation.Representation, out interface{}) error {
	r, err := rep.Open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	decoder := codec.NewDecoder(r, c.Handle)
	return decoder.Decode(out)
}
