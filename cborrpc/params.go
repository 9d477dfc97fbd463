// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package cborrpc

import (
	"errors"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/satori/go.uuid"
	"github.com/ugorji/go/codec"
)

// IDAttribute carries the call id across the connection, as a UUID
// when the id is one.
const IDAttribute = "org.restlet.request.id"

// CallParams are the positional parameters of a call.
type CallParams struct {
	Ref        string
	Attributes map[string]interface{}
	MediaType  string
	Entity     []byte
}

// List returns the parameters in wire order.
func (p CallParams) List() []interface{} {
	var attrs interface{}
	if p.Attributes != nil {
		attrs = p.Attributes
	}
	var entity interface{}
	if p.Entity != nil {
		entity = p.Entity
	}
	return []interface{}{p.Ref, attrs, p.MediaType, entity}
}

// DecodeParams reads the parameter list of a request.  Only the
// reference is required.
func DecodeParams(params []interface{}) (CallParams, error) {
	var p CallParams
	if len(params) < 1 || len(params) > 4 {
		return p, errors.New("wrong number of parameters")
	}
	out := []interface{}{&p.Ref, &p.Attributes, &p.MediaType, &p.Entity}
	for i, param := range params {
		if err := decode(param, out[i]); err != nil {
			return p, err
		}
	}
	if p.Ref == "" {
		return p, errors.New("missing resource reference")
	}
	return p, nil
}

// CallResult is the result of a call.
type CallResult struct {
	Status    int      `mapstructure:"status"`
	MediaType string   `mapstructure:"mediaType"`
	Entity    []byte   `mapstructure:"entity"`
	Location  string   `mapstructure:"location"`
	Allow     []string `mapstructure:"allow"`
}

// Map returns the result as it goes on the wire.
func (r CallResult) Map() map[string]interface{} {
	m := map[string]interface{}{"status": r.Status}
	if r.MediaType != "" {
		m["mediaType"] = r.MediaType
		m["entity"] = r.Entity
	}
	if r.Location != "" {
		m["location"] = r.Location
	}
	if len(r.Allow) > 0 {
		m["allow"] = r.Allow
	}
	return m
}

// DecodeResult reads the result of a response.
func DecodeResult(obj interface{}) (CallResult, error) {
	var r CallResult
	m := StringKeyedMap(obj)
	if m == nil {
		return r, errors.New("result is not a map")
	}
	if err := decode(m, &r); err != nil {
		return r, err
	}
	if r.Status == 0 {
		return r, errors.New("result has no status")
	}
	return r, nil
}

func decode(in, out interface{}) error {
	config := mapstructure.DecoderConfig{
		DecodeHook:       DecodeBytesAsString,
		WeaklyTypedInput: true,
		Result:           out,
	}
	decoder, err := mapstructure.NewDecoder(&config)
	if err != nil {
		return err
	}
	return decoder.Decode(in)
}

// SloppyString converts a string or []byte to a string, or returns nil.
func SloppyString(obj interface{}) *string {
	switch str := obj.(type) {
	case string:
		return &str
	case []byte:
		s := string(str)
		return &s
	default:
		return nil
	}
}

// DecodeBytesAsString is a mapstructure decode hook that accepts a
// byte slice where a string is expected.
func DecodeBytesAsString(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to.Kind() == reflect.String && from.Kind() == reflect.Slice && from.Elem().Kind() == reflect.Uint8 {
		return string(data.([]uint8)), nil
	}
	return data, nil
}

// StringKeyedMap tries to convert an arbitrary object to a string-keyed
// map.  Byte-string keys are accepted.  If this fails (because obj
// isn't a map or because any of its keys aren't strings) returns nil
// without further explanation.
func StringKeyedMap(obj interface{}) map[string]interface{} {
	switch m := obj.(type) {
	case map[string]interface{}:
		return m
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(m))
		for key, value := range m {
			s := SloppyString(key)
			if s == nil {
				// some key isn't a string
				return nil
			}
			result[*s] = value
		}
		return result
	}
	return nil
}

// encodeID sends an id as a UUID if it is one.
func encodeID(id string) interface{} {
	if u, err := uuid.FromString(id); err == nil {
		return u
	}
	return id
}

// decodeID reverses encodeID, accepting the raw 16 bytes of a UUID
// from peers without the tag extension.
func decodeID(v interface{}) string {
	switch id := v.(type) {
	case uuid.UUID:
		return id.String()
	case *uuid.UUID:
		return id.String()
	case []byte:
		if u, err := uuid.FromBytes(id); err == nil {
			return u.String()
		}
		return string(id)
	case string:
		return id
	case codec.RawExt:
		if id.Value != nil {
			return decodeID(id.Value)
		}
		return decodeID(id.Data)
	}
	return ""
}
