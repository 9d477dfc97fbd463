// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package cborrpc carries calls over CBOR-RPC, the request/response
// format of the Python Coordinate daemon: one CBOR message per
// request on a persistent TCP connection.
//
// A call travels as a request whose method is the call method and
// whose positional parameters are the resource reference, a map of
// attributes, the entity media type, and the entity bytes.  The
// result is a map with the status, media type, entity and location
// of the response.
package cborrpc

import (
	"errors"
	"reflect"

	"github.com/diffeo/go-restlet/connector"
	"github.com/diffeo/go-restlet/restlet"
	"github.com/satori/go.uuid"
	"github.com/ugorji/go/codec"
)

// Request defines the fields of a CBOR-RPC request.
type Request struct {
	// Name of the RPC method to invoke.
	Method string
	// Sequential, non-unique identifier for this request.
	ID uint
	// List of arbitrary parameters.
	Params []interface{}
}

// Response defines the fields of a CBOR-RPC response
type Response struct {
	// Sequential, non-unique identifier for this response.  This should
	// always match the identifier from the corresponding Request.
	ID uint
	// Arbitrary response object; should be nil on error.
	Result interface{}
	// Error message on failure; should be empty on success.
	Error string
}

// Actual "wire format" representation for top-level CBOR-RPC messages.
type wireFormat []interface{}

// MapBySlice is a marker for the codec library to indicate this is
// actually a map.
func (w wireFormat) MapBySlice() {}

// errBadMessage is panicked by the extensions on a malformed
// message; the codec library turns it into a decode error.
var errBadMessage = errors.New("malformed CBOR-RPC message")

// Codec extension plugin to convert Request.
type reqExt struct {
	cbor *codec.CborHandle
}

// Encode Request as a byte string.
func (x reqExt) WriteExt(v interface{}) (resp []byte) {
	var request Request
	switch r := v.(type) {
	case Request:
		request = r
	case *Request:
		request = *r
	}

	// Keys are byte strings, as Python 2 sends them
	wire := wireFormat{
		[]byte("method"),
		[]byte(request.Method),
		[]byte("id"),
		uint64(request.ID),
		[]byte("params"),
		request.Params,
	}

	encoder := codec.NewEncoderBytes(&resp, x.cbor)
	encoder.MustEncode(wire)
	return
}

// Decode a byte string into a Request.
func (x reqExt) ReadExt(v interface{}, data []byte) {
	decoder := codec.NewDecoderBytes(data, x.cbor)
	var wire map[string]interface{}
	decoder.MustDecode(&wire)

	result := v.(*Request)
	method := SloppyString(wire["method"])
	id, ok := wire["id"].(uint64)
	if method == nil || !ok {
		panic(errBadMessage)
	}
	result.Method = *method
	result.ID = uint(id)
	result.Params, _ = wire["params"].([]interface{})
}

// Export a Request in some format.
func (x reqExt) ConvertExt(v interface{}) interface{} {
	return x.WriteExt(v)
}

// Unpackage some format into a Request.
func (x reqExt) UpdateExt(dest interface{}, v interface{}) {
	data, ok := v.([]byte)
	if !ok {
		panic(errBadMessage)
	}
	x.ReadExt(dest, data)
}

// Codec extension plugin to convert Response.
type respExt struct {
	cbor *codec.CborHandle
}

// Encode Response as a byte string.
func (x respExt) WriteExt(v interface{}) (resp []byte) {
	var response Response
	switch r := v.(type) {
	case Response:
		response = r
	case *Response:
		response = *r
	}

	wire := wireFormat{
		[]byte("id"),
		uint64(response.ID),
	}
	if response.Result != nil {
		wire = append(wire, []byte("result"), response.Result)
	}
	if response.Error != "" {
		errorDict := make(map[string]string)
		errorDict["message"] = response.Error
		wire = append(wire, []byte("error"), errorDict)
	}

	encoder := codec.NewEncoderBytes(&resp, x.cbor)
	encoder.MustEncode(wire)
	return
}

// Decode a byte string into a Response.
func (x respExt) ReadExt(v interface{}, data []byte) {
	decoder := codec.NewDecoderBytes(data, x.cbor)
	var wire map[string]interface{}
	decoder.MustDecode(&wire)
	id, ok := wire["id"].(uint64)
	if !ok {
		panic(errBadMessage)
	}
	response := v.(*Response)
	response.ID = uint(id)
	response.Result = wire["result"]
	response.Error = ""
	if errorDict := StringKeyedMap(wire["error"]); errorDict != nil {
		if msg := SloppyString(errorDict["message"]); msg != nil {
			response.Error = *msg
		} else {
			response.Error = "unknown error"
		}
	}
}

// Export a Response in some format.
func (x respExt) ConvertExt(v interface{}) interface{} {
	return x.WriteExt(v)
}

// Unpackage some format into a Response.
func (x respExt) UpdateExt(dest interface{}, v interface{}) {
	data, ok := v.([]byte)
	if !ok {
		panic(errBadMessage)
	}
	x.ReadExt(dest, data)
}

// uuidExt is a codec extension plugin to encode and decode UUID
// objects.
type uuidExt struct {
	cbor *codec.CborHandle
}

func (x uuidExt) WriteExt(v interface{}) []byte {
	return x.ConvertExt(v).([]byte)
}

func (x uuidExt) ReadExt(v interface{}, data []byte) {
	x.UpdateExt(v, data)
}

func (x uuidExt) ConvertExt(v interface{}) interface{} {
	switch u := v.(type) {
	case uuid.UUID:
		return u.Bytes()
	case *uuid.UUID:
		return u.Bytes()
	}
	panic(errBadMessage)
}

func (x uuidExt) UpdateExt(dest interface{}, v interface{}) {
	bytes, ok := v.([]byte)
	if !ok || len(bytes) != uuid.Size {
		panic("encoded UUID must have 16 bytes")
	}
	uuidp := dest.(*uuid.UUID)
	*uuidp = uuid.UUID{}
	copy(uuidp[:], bytes)
}

// SetExts sets up the CBOR codec to understand the other objects in
// this package.
func SetExts(cbor *codec.CborHandle) error {
	if err := cbor.SetExt(reflect.TypeOf(Request{}), 24, &reqExt{cbor}); err != nil {
		return err
	}
	if err := cbor.SetExt(reflect.TypeOf(Response{}), 24, &respExt{cbor}); err != nil {
		return err
	}
	return cbor.SetExt(reflect.TypeOf(uuid.UUID{}), 37, &uuidExt{cbor})
}

// NewHandle returns a CBOR handle with the extensions set.
func NewHandle() (*codec.CborHandle, error) {
	cbor := new(codec.CborHandle)
	if err := SetExts(cbor); err != nil {
		return nil, err
	}
	return cbor, nil
}

// Protocols is the protocol set of both helpers.
var Protocols = []restlet.Protocol{restlet.CBORRPC}

// Register adds the CBOR-RPC client and server helpers to a registry.
func Register(registry *connector.Registry) {
	registry.RegisterClient(Protocols, NewClientHelper)
	registry.RegisterServer(Protocols, NewServerHelper)
}
