package matcher

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// characterReplacer holds the literal substitutions of the character
// replacement profile. strings.Replacer applies them in a single pass, so
// the order of the pairs does not change the result.
var characterReplacer = strings.NewReplacer(
	"’", "'", // right single quotation mark
	"‘", "'", // left single quotation mark
	"&", "and",
	"‐", " ", // hyphen
	"–", " ", // en dash
	"—", " ", // em dash
	"-", " ",
	"(", "",
	")", "",
	".", "",
)

// ReplaceCharacters applies the character replacement profile: diacritics
// are folded to their base letters and typographic punctuation is replaced
// by plain ASCII or removed.
func ReplaceCharacters(s string) string {
	return characterReplacer.Replace(foldDiacritics(s))
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// SectionRule removes one class of parenthesised annotation.
type SectionRule struct {
	Name string
	re   *regexp.Regexp
}

// Apply removes every section matched by the rule.
func (r SectionRule) Apply(s string) string {
	return r.re.ReplaceAllString(s, "")
}

// sectionRules are ordered from most specific to the catch-all.
var sectionRules = []SectionRule{
	{Name: "featuring", re: regexp.MustCompile(`\(feat[^)]*\)`)},
	{Name: "remix", re: regexp.MustCompile(`\([^)]*?remix\)`)},
	{Name: "version", re: regexp.MustCompile(`\([^)]*?version\)`)},
	{Name: "radio edit", re: regexp.MustCompile(`\([^)]*?radio edit\)`)},
	{Name: "remastered", re: regexp.MustCompile(`\([^)]*?remastered\)`)},
	{Name: "mix", re: regexp.MustCompile(`\([^)]*?mix\)`)},
	{Name: "any", re: regexp.MustCompile(`\([^)]*\)`)},
}

// SectionRules returns the section stripping rules in the order they are
// attempted.
func SectionRules() []SectionRule {
	out := make([]SectionRule, len(sectionRules))
	copy(out, sectionRules)
	return out
}

// StripSections applies every section rule, which leaves no parenthesised
// annotation behind.
func StripSections(s string) string {
	return stripThrough(s, len(sectionRules)-1)
}

// stripThrough applies rules 0..last in order and collapses the whitespace
// left behind.
func stripThrough(s string, last int) string {
	for _, r := range sectionRules[:last+1] {
		s = r.Apply(s)
	}
	return collapseSpaces(s)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
