// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package metadata

import (
	"mime"
	"strings"
	"sync"
)

// Service holds the defaults used when a representation does not
// declare some facet, and the mapping between file extensions and
// metadata.  A Service is safe for concurrent use.
type Service struct {
	// DefaultMediaType is assumed for entities without a media type.
	DefaultMediaType Metadata
	// DefaultLanguage is offered to clients at a low quality.
	DefaultLanguage Metadata
	// DefaultCharacterSet is assumed for textual entities.
	DefaultCharacterSet Metadata
	// DefaultEncoding is assumed for entities without an encoding.
	DefaultEncoding Metadata

	lock     sync.RWMutex
	mappings []extensionMapping
}

type extensionMapping struct {
	extension string
	metadata  Metadata
}

// NewService creates a metadata service with the usual defaults and
// extension table.
func NewService() *Service {
	s := &Service{
		DefaultMediaType:    ApplicationOctetStream,
		DefaultCharacterSet: UTF8,
		DefaultEncoding:     Identity,
	}
	for _, m := range []struct {
		ext string
		m   Metadata
	}{
		{"cbor", ApplicationCBOR},
		{"css", TextCSS},
		{"gif", ImageGIF},
		{"gz", ApplicationGzip},
		{"htm", TextHTML},
		{"html", TextHTML},
		{"jpeg", ImageJPEG},
		{"jpg", ImageJPEG},
		{"js", ApplicationJavaScript},
		{"json", ApplicationJSON},
		{"pdf", ApplicationPDF},
		{"png", ImagePNG},
		{"txt", TextPlain},
		{"xml", TextXML},
		{"zip", ApplicationZip},
		{"en", English},
		{"en-us", EnglishUS},
		{"en-gb", EnglishGB},
		{"fr", French},
		{"de", German},
		{"es", Spanish},
		{"it", Italian},
		{"ja", Japanese},
		{"ascii", USASCII},
		{"latin1", ISO88591},
		{"utf8", UTF8},
		{"utf16", UTF16},
		{"gzip", GZip},
		{"deflate", Deflate},
		{"br", Brotli},
	} {
		s.Add(m.ext, m.m)
	}
	return s
}

// Add maps an extension to a metadata value.  Earlier mappings win
// on lookup.
func (s *Service) Add(extension string, m Metadata) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.mappings = append(s.mappings, extensionMapping{
		extension: strings.ToLower(extension),
		metadata:  m,
	})
}

// Lookup returns the metadata mapped to an extension, or nil.  Media
// types not in the table fall back to the system MIME table.
func (s *Service) Lookup(extension string) Metadata {
	extension = strings.ToLower(extension)
	s.lock.RLock()
	for _, mapping := range s.mappings {
		if mapping.extension == extension {
			s.lock.RUnlock()
			return mapping.metadata
		}
	}
	s.lock.RUnlock()
	if system := mime.TypeByExtension("." + extension); system != "" {
		if mt, err := ParseMediaType(system); err == nil {
			return mt
		}
	}
	return nil
}

// Extension returns the first extension mapped to m, or "".
func (s *Service) Extension(m Metadata) string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, mapping := range s.mappings {
		if Equal(mapping.metadata, m) {
			return mapping.extension
		}
	}
	return ""
}

// Variant builds a variant from a list of extensions, such as the
// "fr", "html" of "index.fr.html".  Unknown extensions are ignored;
// unmentioned facets are left zero, except that a textual media type
// gets the default character set.
func (s *Service) Variant(extensions []string) Variant {
	var v Variant
	for _, ext := range extensions {
		switch m := s.Lookup(ext).(type) {
		case MediaType:
			if v.MediaType.IsZero() {
				v.MediaType = m
			}
		case Language:
			v.Languages = append(v.Languages, m)
		case CharacterSet:
			if v.CharacterSet.IsZero() {
				v.CharacterSet = m
			}
		case Encoding:
			v.Encodings = append(v.Encodings, m)
		}
	}
	if v.MediaType.Main() == "text" && v.CharacterSet.IsZero() {
		if cs, ok := s.DefaultCharacterSet.(CharacterSet); ok {
			v.CharacterSet = cs
		}
	}
	return v
}
