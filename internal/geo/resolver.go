// Package geo maps free-text country names to ISO 3166-1 alpha-3 codes.
package geo

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/biter777/countries"
)

// DefaultThreshold is the minimum similarity for an approximate match.
const DefaultThreshold = 0.8

// minContainment is the shortest normalized name tried for whole-word containment.
const minContainment = 4

// Resolver maps a country name to an alpha-3 code. ok is false when there is
// no confident match.
type Resolver interface {
	Resolve(name string) (code string, ok bool)
}

// Entry is one registry country.
type Entry struct {
	Name   string
	Alpha2 string
	Alpha3 string
}

// defaultAliases covers spellings common in retail exports that the ISO
// registry does not carry. Keys are normalized.
var defaultAliases = map[string]string{
	"eire":                "IRL",
	"ireland":             "IRL",
	"republic of ireland": "IRL",
	"rsa":                 "ZAF",
	"usa":                 "USA",
	"us":                  "USA",
	"united states":       "USA",
	"america":             "USA",
	"uk":                  "GBR",
	"united kingdom":      "GBR",
	"great britain":       "GBR",
	"england":             "GBR",
	"scotland":            "GBR",
	"wales":               "GBR",
	"northern ireland":    "GBR",
	"czech republic":      "CZE",
	"czechia":             "CZE",
	"holland":             "NLD",
	"the netherlands":     "NLD",
	"russia":              "RUS",
	"south korea":         "KOR",
	"north korea":         "PRK",
	"taiwan":              "TWN",
	"vietnam":             "VNM",
	"iran":                "IRN",
	"syria":               "SYR",
	"laos":                "LAO",
	"bolivia":             "BOL",
	"venezuela":           "VEN",
	"tanzania":            "TZA",
	"moldova":             "MDA",
	"macedonia":           "MKD",
	"ivory coast":         "CIV",
	"hong kong":           "HKG",
	"macau":               "MAC",
	"vatican":             "VAT",
}

type registryEntry struct {
	name string // normalized
	code string
}

// FuzzyResolver resolves names against a country registry: aliases first,
// then exact name or code, then unique whole-word containment, then
// Levenshtein similarity. Matches that tie between different codes are
// treated as ambiguous.
type FuzzyResolver struct {
	threshold float64
	aliases   map[string]string
	exact     map[string]string
	codes     map[string]string
	entries   []registryEntry
}

type Option func(*options)

type options struct {
	registry  []Entry
	aliases   map[string]string
	threshold float64
}

// WithRegistry replaces the built-in ISO registry.
func WithRegistry(entries []Entry) Option {
	return func(o *options) { o.registry = entries }
}

// WithAliases adds alias spellings. Keys are normalized before use.
func WithAliases(aliases map[string]string) Option {
	return func(o *options) {
		for k, v := range aliases {
			o.aliases[normalize(k)] = strings.ToUpper(v)
		}
	}
}

func WithThreshold(threshold float64) Option {
	return func(o *options) { o.threshold = threshold }
}

func NewFuzzyResolver(opts ...Option) *FuzzyResolver {
	o := &options{threshold: DefaultThreshold, aliases: make(map[string]string, len(defaultAliases))}
	for k, v := range defaultAliases {
		o.aliases[k] = v
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = isoRegistry()
	}

	r := &FuzzyResolver{
		threshold: o.threshold,
		aliases:   make(map[string]string, len(o.aliases)),
		exact:     make(map[string]string, len(o.registry)),
		codes:     make(map[string]string, 2*len(o.registry)),
		entries:   make([]registryEntry, 0, len(o.registry)),
	}

	known := make(map[string]bool, len(o.registry))
	for _, e := range o.registry {
		code := strings.ToUpper(e.Alpha3)
		name := normalize(e.Name)
		if code == "" || name == "" {
			continue
		}
		known[code] = true
		r.exact[name] = code
		r.codes[strings.ToLower(code)] = code
		if e.Alpha2 != "" {
			r.codes[strings.ToLower(e.Alpha2)] = code
		}
		r.entries = append(r.entries, registryEntry{name: name, code: code})
	}
	for k, v := range o.aliases {
		if known[v] {
			r.aliases[k] = v
		}
	}
	return r
}

func isoRegistry() []Entry {
	all := countries.All()
	entries := make([]Entry, 0, len(all))
	for _, c := range all {
		if !c.IsValid() || c == countries.Unknown {
			continue
		}
		alpha3 := c.Alpha3()
		if len(alpha3) != 3 {
			continue
		}
		entries = append(entries, Entry{Name: c.String(), Alpha2: c.Alpha2(), Alpha3: alpha3})
	}
	return entries
}

func (r *FuzzyResolver) Resolve(name string) (string, bool) {
	n := normalize(name)
	if n == "" {
		return "", false
	}

	if code, ok := r.aliases[n]; ok {
		return code, true
	}
	if code, ok := r.exact[n]; ok {
		return code, true
	}
	if code, ok := r.codes[n]; ok {
		return code, true
	}
	if code, ok := r.contained(n); ok {
		return code, true
	}
	return r.nearest(n)
}

// contained matches when the query and a registry name contain one another as
// whole words, and exactly one code qualifies.
func (r *FuzzyResolver) contained(n string) (string, bool) {
	if len(n) < minContainment {
		return "", false
	}
	query := " " + n + " "
	var found string
	for _, e := range r.entries {
		candidate := " " + e.name + " "
		if !strings.Contains(candidate, query) && !(len(e.name) >= minContainment && strings.Contains(query, candidate)) {
			continue
		}
		if found != "" && found != e.code {
			return "", false
		}
		found = e.code
	}
	return found, found != ""
}

func (r *FuzzyResolver) nearest(n string) (string, bool) {
	best := 0.0
	var code string
	ambiguous := false
	for _, e := range r.entries {
		score := similarity(n, e.name)
		switch {
		case score > best:
			best, code, ambiguous = score, e.code, false
		case score == best && e.code != code:
			ambiguous = true
		}
	}
	if code == "" || ambiguous || best < r.threshold {
		return "", false
	}
	return code, true
}

func similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
