package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var lowerCaser = cases.Lower(language.Und)

// Source catalog names are Russian; transliterate so slugs stay URL-safe
// ASCII, matching the filenames already present in the asset store.
var cyrillicTranslit = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "j", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "c", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug normalizes a product name into a lowercase URL-safe identifier:
// Cyrillic transliterated, diacritics stripped, every other non-alphanumeric
// run collapsed into a single hyphen. Transliteration runs before diacritic
// stripping so letters like й keep their distinct romanization instead of
// decomposing into и plus a discarded breve.
func Slug(s string) string {
	s = lowerCaser.String(s)

	var translit strings.Builder
	for _, r := range s {
		if tr, ok := cyrillicTranslit[r]; ok {
			translit.WriteString(tr)
		} else {
			translit.WriteRune(r)
		}
	}
	s = translit.String()

	if out, _, err := transform.String(deaccent, s); err == nil {
		s = out
	}

	var b strings.Builder
	lastHyphen := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
