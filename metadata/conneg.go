// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package metadata

// Variant describes one available form of a resource.  A zero field
// means the variant does not declare that facet.
type Variant struct {
	MediaType    MediaType
	CharacterSet CharacterSet
	Languages    []Language
	Encodings    []Encoding
}

// Conneg scores variants against a client's preferences.  The
// preference lists are "enriched" at construction time so that, for
// instance, a client asking for text/html will still accept text/*
// and finally anything at all, at a tiny quality.  A value the client
// refused with q=0 is never added back, nor is anything it includes,
// so "*/*;q=0" really does make unlisted types unacceptable.
type Conneg struct {
	mediaTypes    []Preference
	languages     []Preference
	characterSets []Preference
	encodings     []Preference
}

// NewConneg builds the enriched preferences.  service supplies the
// default value for each facet and may be nil.
func NewConneg(prefs Preferences, service *Service) *Conneg {
	if service == nil {
		service = &Service{}
	}
	return &Conneg{
		mediaTypes:    enrich(prefs.MediaTypes, service.DefaultMediaType, AllMediaTypes),
		languages:     enrich(prefs.Languages, service.DefaultLanguage, AllLanguages),
		characterSets: enrich(prefs.CharacterSets, service.DefaultCharacterSet, AllCharacterSets),
		encodings:     enrich(prefs.Encodings, service.DefaultEncoding, AllEncodings),
	}
}

func enrich(user []Preference, defaultValue, allValue Metadata) []Preference {
	var undesired Set
	for _, pref := range user {
		if pref.Quality == 0 {
			undesired = append(undesired, pref.Metadata)
		}
	}

	result := make([]Preference, 0, 2*len(user)+3)
	result = append(result, user...)

	// Parents of user preferences, including parents of parents as
	// they are appended
	for i := 0; i < len(result); i++ {
		pref := result[i]
		if pref.Metadata == nil || pref.Quality == 0 {
			continue
		}
		parent := pref.Metadata.Parent()
		if parent != nil && !undesired.includes(parent) {
			result = append(result, Preference{
				Metadata: parent,
				Quality:  0.005 + 0.001*pref.Quality,
			})
		}
	}

	if defaultValue != nil && !undesired.includes(defaultValue) {
		result = append(result, Preference{Metadata: defaultValue, Quality: 0.003})
		parent := defaultValue.Parent()
		if parent != nil && !undesired.includes(parent) {
			result = append(result, Preference{Metadata: parent, Quality: 0.002})
		}
	}

	if undesired.includes(allValue) {
		return result
	}
	trimmed := result[:0]
	for _, pref := range result {
		if !Equal(pref.Metadata, allValue) {
			trimmed = append(trimmed, pref)
		}
	}
	return append(trimmed, Preference{Metadata: allValue, Quality: 0.001})
}

// includes returns true if some member of s includes m.
func (s Set) includes(m Metadata) bool {
	for _, mm := range s {
		if mm != nil && mm.Includes(m) {
			return true
		}
	}
	return false
}

// score returns the best quality of a preference that includes m,
// or -1 if none does.  A refusal (q=0) that includes m makes it
// unacceptable unless a more specific positive preference also
// includes m, so "image/png, */*;q=0" still accepts image/png.
func score(m Metadata, prefs []Preference) float64 {
	for _, r := range prefs {
		if r.Quality > 0 || r.Metadata == nil || !r.Metadata.Includes(m) {
			continue
		}
		overridden := false
		for _, p := range prefs {
			if p.Quality > 0 && p.Metadata != nil && r.Metadata.Includes(p.Metadata) && p.Metadata.Includes(m) {
				overridden = true
				break
			}
		}
		if !overridden {
			return -1.0
		}
	}
	result := -1.0
	for _, pref := range prefs {
		if pref.Quality > 0 && pref.Metadata != nil && pref.Metadata.Includes(m) && pref.Quality > result {
			result = pref.Quality
		}
	}
	return result
}

// ScoreMediaType scores a single media type; a zero media type
// scores 0.
func (c *Conneg) ScoreMediaType(mt MediaType) float64 {
	if mt.IsZero() {
		return 0.0
	}
	return score(mt, c.mediaTypes)
}

// ScoreCharacterSet scores a single character set; a zero character
// set scores 0.
func (c *Conneg) ScoreCharacterSet(cs CharacterSet) float64 {
	if cs.IsZero() {
		return 0.0
	}
	return score(cs, c.characterSets)
}

// ScoreLanguages returns the best score of any of the languages; an
// empty list scores 0.
func (c *Conneg) ScoreLanguages(langs []Language) float64 {
	if len(langs) == 0 {
		return 0.0
	}
	result := -1.0
	for _, lang := range langs {
		if s := score(lang, c.languages); s > result {
			result = s
		}
	}
	return result
}

// ScoreEncodings returns the best score of any of the encodings; an
// empty list scores 0.
func (c *Conneg) ScoreEncodings(encodings []Encoding) float64 {
	if len(encodings) == 0 {
		return 0.0
	}
	result := -1.0
	for _, enc := range encodings {
		if s := score(enc, c.encodings); s > result {
			result = s
		}
	}
	return result
}

// ScoreVariant combines the four facet scores.  If any facet is
// unacceptable the variant scores -1; otherwise the result is the
// weighted average (4*language + 3*media + 2*charset + encoding)/9.
func (c *Conneg) ScoreVariant(v Variant) float64 {
	lang := c.ScoreLanguages(v.Languages)
	if lang < 0 {
		return -1.0
	}
	media := c.ScoreMediaType(v.MediaType)
	if media < 0 {
		return -1.0
	}
	charset := c.ScoreCharacterSet(v.CharacterSet)
	if charset < 0 {
		return -1.0
	}
	encoding := c.ScoreEncodings(v.Encodings)
	if encoding < 0 {
		return -1.0
	}
	return (lang*4.0 + media*3.0 + charset*2.0 + encoding) / 9.0
}

// PreferredVariant returns the index of the best-scoring variant, or
// -1 if there are none or none is acceptable.  The first of several
// equally good variants wins.
func (c *Conneg) PreferredVariant(variants []Variant) int {
	best := -1
	bestScore := -1.0
	for i, v := range variants {
		if s := c.ScoreVariant(v); s > bestScore {
			best = i
			bestScore = s
		}
	}
	return best
}
