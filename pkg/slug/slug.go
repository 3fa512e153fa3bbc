package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// DefaultMaxLen bounds slugs used as upload filenames.
const DefaultMaxLen = 80

var folder = strings.NewReplacer(
	"à", "a", "á", "a", "â", "a", "ã", "a", "ä", "a", "å", "a", "æ", "ae",
	"ç", "c", "è", "e", "é", "e", "ê", "e", "ë", "e",
	"ì", "i", "í", "i", "î", "i", "ï", "i", "ı", "i", "i\u0307", "i",
	"ñ", "n", "ò", "o", "ó", "o", "ô", "o", "õ", "o", "ö", "o", "ø", "o", "œ", "oe",
	"ù", "u", "ú", "u", "û", "u", "ü", "u", "ý", "y", "ÿ", "y",
	"ğ", "g", "ş", "s", "ß", "ss", "&", " and ",
)

// Generate creates a URL and filename friendly slug from name. Common Latin
// diacritics are folded to ASCII; everything else that is not a letter or
// digit becomes a single hyphen.
//
//   - "Ergonomic Office Chair (Black)" → "ergonomic-office-chair-black"
//   - "Café Crème" → "cafe-creme"
func Generate(name string) string {
	s := folder.Replace(strings.ToLower(strings.TrimSpace(name)))
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// GenerateMax is Generate truncated to at most maxLen bytes, cutting at the
// last hyphen when possible. It returns fallback when the result is empty.
func GenerateMax(name string, maxLen int, fallback string) string {
	s := Generate(name)
	if maxLen > 0 && len(s) > maxLen {
		s = s[:maxLen]
		if i := strings.LastIndexByte(s, '-'); i > 0 {
			s = s[:i]
		}
		s = strings.Trim(s, "-")
	}
	if s == "" {
		return fallback
	}
	return s
}
