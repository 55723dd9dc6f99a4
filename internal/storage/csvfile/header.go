package csvfile

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const utf8BOM = "\uFEFF"

// NormalizeHeader folds a header cell into a column name: BOM and edge
// spaces are dropped, diacritics removed, letters lowercased and every run
// of other characters collapsed to "_".
//
//	"Identifikační číslo" -> "identifikacni_cislo"
func NormalizeHeader(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, h); err == nil {
		h = folded
	}

	var sb strings.Builder
	sb.Grow(len(h))
	pendingSep := false
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pendingSep = false
			sb.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return sb.String()
}

// headerNames maps raw header cells to record keys. header_map entries win
// over normalization; normalization is skipped when disabled.
func headerNames(raw []string, headerMap map[string]string, normalize bool) []string {
	out := make([]string, len(raw))
	for i, h := range raw {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		h = strings.TrimSpace(h)
		switch mapped, ok := headerMap[h]; {
		case ok:
			out[i] = mapped
		case normalize:
			out[i] = NormalizeHeader(h)
		default:
			out[i] = h
		}
		if out[i] == "" {
			out[i] = "column_" + strconv.Itoa(i+1)
		}
	}
	return out
}
