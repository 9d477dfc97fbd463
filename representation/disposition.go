// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package representation

import (
	"strings"
	"time"

	"github.com/diffeo/go-restlet/metadata"
)

// Disposition types.
const (
	DispositionAttachment = "attachment"
	DispositionInline     = "inline"
	DispositionNone       = "none"
)

// Disposition parameter names from RFC 2183.
const (
	ParamFilename         = "filename"
	ParamCreationDate     = "creation-date"
	ParamModificationDate = "modification-date"
	ParamReadDate         = "read-date"
	ParamSize             = "size"
)

// Disposition is the value of a Content-Disposition header.
type Disposition struct {
	Type   string
	Params []metadata.Parameter
}

// NewAttachment returns an attachment disposition with a file name.
func NewAttachment(filename string) *Disposition {
	d := &Disposition{Type: DispositionAttachment}
	if filename != "" {
		d.Set(ParamFilename, filename)
	}
	return d
}

// Get returns a parameter value, or "".
func (d *Disposition) Get(name string) string {
	for _, p := range d.Params {
		if strings.EqualFold(p.Name, name) {
			return p.Value
		}
	}
	return ""
}

// Set replaces or appends a parameter.
func (d *Disposition) Set(name, value string) {
	for i, p := range d.Params {
		if strings.EqualFold(p.Name, name) {
			d.Params[i].Value = value
			return
		}
	}
	d.Params = append(d.Params, metadata.Parameter{Name: name, Value: value})
}

// SetDate sets one of the date parameters in RFC 822 format.
func (d *Disposition) SetDate(name string, t time.Time) {
	d.Set(name, t.UTC().Format(time.RFC1123))
}

// Filename returns the file name parameter.
func (d *Disposition) Filename() string {
	return d.Get(ParamFilename)
}

// Format writes the header value.  File names and dates are always
// quoted, with embedded quotes and backslashes escaped; other values
// are quoted only when they are not tokens.
func (d *Disposition) Format() string {
	if d == nil || d.Type == "" || d.Type == DispositionNone {
		return ""
	}
	var b strings.Builder
	b.WriteString(d.Type)
	for _, p := range d.Params {
		b.WriteString("; ")
		b.WriteString(p.Name)
		b.WriteString("=")
		switch strings.ToLower(p.Name) {
		case ParamFilename, ParamCreationDate, ParamModificationDate, ParamReadDate:
			b.WriteString(metadata.Quote(p.Value))
		default:
			b.WriteString(metadata.QuoteIfNeeded(p.Value))
		}
	}
	return b.String()
}

// ParseDisposition reads a Content-Disposition header value.
func ParseDisposition(s string) (*Disposition, error) {
	value, params, err := metadata.ParseElement(s)
	if err != nil {
		return nil, err
	}
	return &Disposition{Type: strings.ToLower(value), Params: params}, nil
}
