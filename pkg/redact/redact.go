package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

type Category string

const (
	CategoryEmail      Category = "email"
	CategoryPhone      Category = "phone"
	CategoryAddress    Category = "address"
	CategoryURL        Category = "url"
	CategoryCard       Category = "card"
	CategoryNationalID Category = "national_id"
)

const (
	PlaceholderEmail      = "[E-MAIL ENTFERNT]"
	PlaceholderPhone      = "[TELEFON ENTFERNT]"
	PlaceholderAddress    = "[ADRESSE ENTFERNT]"
	PlaceholderURL        = "[URL ENTFERNT]"
	PlaceholderCard       = "[KARTE ENTFERNT]"
	PlaceholderNationalID = "[AUSWEIS ENTFERNT]"
)

const streetSuffix = `(?:straße|strasse|str\.|weg|gasse|platz|allee|ring|damm|ufer|chaussee)`

// streetWord is a suffix standing alone as the street name. It must be
// capitalised since "weg" and "ring" are everyday words.
const streetWord = `(?:Straße|Strasse|Str\.|Weg|Gasse|Platz|Allee|Ring|Damm|Ufer|Chaussee)`

// trailingURLPunct is sentence punctuation that usually closes a sentence
// rather than belonging to the URL.
const trailingURLPunct = ".,;:!?)'"

type rule struct {
	category    Category
	placeholder string
	re          *regexp.Regexp
	// tail is the index of a capture group that only marks the end of the
	// match and is kept verbatim.
	tail     int
	trimPunc bool
}

var rules = buildRules()

func buildRules() []rule {
	addressNumberFirst := regexp.MustCompile(`\b\d{1,5}[a-zA-Z]?\s+(?:[\p{L}\-]+(?i:` + streetSuffix + `)|` + streetWord + `)(?P<tail>[^\p{L}]|$)`)
	return []rule{
		{
			category:    CategoryEmail,
			placeholder: PlaceholderEmail,
			re:          regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9\-]+(?:\.[a-z0-9\-]+)*\.[a-z]{2,}`),
		},
		{
			category:    CategoryPhone,
			placeholder: PlaceholderPhone,
			re:          regexp.MustCompile(`\+\d{1,3}[\s\-/]?(?:\(0\)[\s\-/]?)?\(?\d{2,4}\)?[\s\-/]?\d{3,8}(?:-\d{1,5})?\b`),
		},
		{
			category:    CategoryPhone,
			placeholder: PlaceholderPhone,
			re:          regexp.MustCompile(`(?:\(0\d{2,4}\)|\b0\d{2,4})[\s\-/]?\d{3,8}(?:-\d{1,5})?\b`),
		},
		{
			category:    CategoryAddress,
			placeholder: PlaceholderAddress,
			re:          addressNumberFirst,
			tail:        addressNumberFirst.SubexpIndex("tail"),
		},
		{
			category:    CategoryAddress,
			placeholder: PlaceholderAddress,
			re:          regexp.MustCompile(`(?i)\p{L}[\p{L}\-]*` + streetSuffix + `\s+\d{1,5}[a-z]?\b`),
		},
		{
			category:    CategoryURL,
			placeholder: PlaceholderURL,
			re:          regexp.MustCompile(`(?i)https?://[a-z0-9\-._~:/?#@!$&'()*+,;=%]+`),
			trimPunc:    true,
		},
		{
			category:    CategoryCard,
			placeholder: PlaceholderCard,
			re:          regexp.MustCompile(`\b\d{4}[\s\-]?\d{4}[\s\-]?\d{4}[\s\-]?\d{4}\b`),
		},
		{
			category:    CategoryNationalID,
			placeholder: PlaceholderNationalID,
			re:          regexp.MustCompile(`\b\d{2}[\s\-]?\d{6}[\s\-]?\d{4}\b`),
		},
	}
}

// Counts maps a category to the number of spans replaced.
type Counts map[Category]int

// Total returns the number of spans replaced across all categories.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Text removes personal information from in. Empty input is returned as is.
func Text(in string) string {
	out, _ := Apply(in)
	return out
}

// Apply is Text that also reports how many spans each category replaced.
// Rules run in a fixed order: later rules see the placeholders written by
// earlier ones, and no placeholder can be matched again. A placeholder can
// open a word boundary an earlier rule needed, so the rules are repeated
// until a pass changes nothing. Every match holds a digit, an "@" or a
// "://" and placeholders hold none, so the passes always end.
func Apply(in string) (string, Counts) {
	counts := Counts{}
	if strings.TrimSpace(in) == "" {
		return in, counts
	}
	out := in
	for {
		changed := false
		for _, r := range rules {
			var n int
			out, n = r.apply(out)
			if n > 0 {
				counts[r.category] += n
				changed = true
			}
		}
		if !changed {
			return out, counts
		}
	}
}

func (r rule) apply(in string) (string, int) {
	matches := r.re.FindAllStringSubmatchIndex(in, -1)
	if len(matches) == 0 {
		return in, 0
	}
	var b strings.Builder
	b.Grow(len(in))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if r.tail > 0 && m[2*r.tail] >= 0 {
			end = m[2*r.tail]
		}
		if r.trimPunc {
			for end > start && strings.IndexByte(trailingURLPunct, in[end-1]) >= 0 {
				end--
			}
		}
		b.WriteString(in[last:start])
		b.WriteString(r.placeholder)
		last = end
	}
	b.WriteString(in[last:])
	return b.String(), len(matches)
}

// Categories lists the categories in the order they are applied.
func Categories() []Category {
	seen := make(map[Category]bool, len(rules))
	out := make([]Category, 0, len(rules))
	for _, r := range rules {
		if seen[r.category] {
			continue
		}
		seen[r.category] = true
		out = append(out, r.category)
	}
	return out
}

// Placeholder returns the token written in place of a category match.
func Placeholder(c Category) string {
	for _, r := range rules {
		if r.category == c {
			return r.placeholder
		}
	}
	return ""
}

var logScrub atomic.Bool

func init() {
	logScrub.Store(true)
}

// SetEnabled toggles scrubbing of text written to logs. The pipeline stage
// always redacts regardless of this flag.
func SetEnabled(v bool) {
	logScrub.Store(v)
}

// Enabled returns true when log scrubbing is active.
func Enabled() bool {
	return logScrub.Load()
}

// ForLog returns text that is safe to attach to a log record.
func ForLog(in string) string {
	if !logScrub.Load() {
		return in
	}
	return Text(in)
}
