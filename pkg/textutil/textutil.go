// Package textutil holds Turkish-aware text helpers shared by the extraction
// and merge stages.
package textutil

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Lower folds s with Turkish casing rules (I → ı, İ → i).
// A Caser is not safe for concurrent use, so each call builds its own.
func Lower(s string) string {
	return cases.Lower(language.Turkish).String(s)
}

// Key normalizes a de-duplication key: Turkish lowercase, trimmed, inner
// whitespace collapsed.
func Key(s string) string {
	return strings.Join(strings.Fields(Lower(s)), " ")
}

// ContainsAny reports whether text contains any of the hints, case-insensitively.
// Hints are expected to be lowercase already.
func ContainsAny(text string, hints []string) bool {
	if len(hints) == 0 {
		return false
	}
	lowered := Lower(text)
	for _, h := range hints {
		if h != "" && strings.Contains(lowered, Lower(h)) {
			return true
		}
	}
	return false
}

var numberRe = regexp.MustCompile(`-?\d[\d.,]*`)

// ParseNumber reads the first number in s, accepting Turkish formatting
// ("1.234.567,89 TL", "2.500 kişi", "%6") as well as plain "1234.5".
func ParseNumber(s string) (float64, bool) {
	m := numberRe.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	m = strings.TrimRight(m, ".,")

	dots := strings.Count(m, ".")
	commas := strings.Count(m, ",")
	switch {
	case dots > 0 && commas > 0:
		// whichever separator comes last is the decimal one
		if strings.LastIndex(m, ",") > strings.LastIndex(m, ".") {
			m = strings.ReplaceAll(m, ".", "")
			m = strings.Replace(m, ",", ".", 1)
		} else {
			m = strings.ReplaceAll(m, ",", "")
		}
	case commas == 1:
		m = strings.Replace(m, ",", ".", 1)
	case commas > 1:
		m = strings.ReplaceAll(m, ",", "")
	case dots > 1:
		m = strings.ReplaceAll(m, ".", "")
	case dots == 1:
		// "2.500" is a thousands separator, "2.5" a decimal point
		if idx := strings.Index(m, "."); len(m)-idx-1 == 3 {
			m = strings.Replace(m, ".", "", 1)
		}
	}

	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Number coerces a JSON value into a float64.
func Number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		return ParseNumber(t)
	default:
		return 0, false
	}
}

// String renders a scalar JSON value as trimmed text.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// CleanText collapses runs of blank lines and trailing spaces left by extractors.
func CleanText(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, l := range lines {
		l = strings.TrimRightFunc(l, unicode.IsSpace)
		if l == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
