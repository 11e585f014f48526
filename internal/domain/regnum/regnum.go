package regnum

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// MaxLength bounds a normalized registration number; upstream feeds have
// produced garbage rows where free text leaked into the number column.
const MaxLength = 64

var (
	ErrEmpty   = errors.New("registration number is empty")
	ErrTooLong = errors.New("registration number too long")
)

// Normalize folds a raw registration number into the one canonical textual
// form used as the anchor key everywhere downstream: full-width characters
// folded to ASCII, letters upper-cased, spaces and punctuation variants
// stripped. CJK characters are kept as-is.
func Normalize(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))

	for _, r := range raw {
		r = foldWidth(r)

		switch {
		case unicode.IsSpace(r):
			continue
		case isDroppedPunct(r):
			continue
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}

	normalized := b.String()
	if normalized == "" {
		return "", ErrEmpty
	}
	if len(normalized) > MaxLength {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLong, len(normalized))
	}
	return normalized, nil
}

// foldWidth maps full-width ASCII variants (ＦＦ０１-ＦＦ５Ｅ) to their
// half-width counterparts. Chinese registry exports mix both freely.
func foldWidth(r rune) rune {
	if r >= 0xFF01 && r <= 0xFF5E {
		return r - 0xFEE0
	}
	if r == 0x3000 { // ideographic space
		return ' '
	}
	return r
}

func isDroppedPunct(r rune) bool {
	switch r {
	case '-', '_', '.', ',', '/', '\\', '(', ')', '[', ']', '{', '}', '"', '\'', ';', ':':
		return true
	case '（', '）', '【', '】', '《', '》', '、', '。', '，', '；', '：':
		return true
	}
	return false
}

// Equal reports whether two raw registration numbers normalize to the same
// anchor key. Either side failing normalization compares unequal.
func Equal(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}
