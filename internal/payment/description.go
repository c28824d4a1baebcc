package payment

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Translator looks up UI strings in the patron's language.
type Translator interface {
	Translate(lang, key string) (string, bool)
}

func fineTypeLabel(tr Translator, lang, fineType string) string {
	if tr != nil {
		for _, key := range []string{"fine_status_" + fineType, "status_" + fineType} {
			if s, ok := tr.Translate(lang, key); ok {
				return s
			}
		}
	}
	return fineType
}

// fineDescription renders "<fine type> (<title>)" within maxLen characters.
func fineDescription(tr Translator, lang string, f Fine, limits Limits) string {
	label := fineTypeLabel(tr, lang, f.Type)
	title := f.Title
	if limits.Latin1Only {
		label = latin1Safe(label)
		title = latin1Safe(title)
	}
	label = truncateRunes(label, limits.DescriptionMax)

	title = strings.TrimSpace(strings.ToValidUTF8(title, ""))
	if title == "" {
		return label
	}

	room := limits.DescriptionMax - utf8.RuneCountInString(label) - len(" ()")
	if room <= 0 {
		return label
	}
	return label + " (" + truncateRunes(title, room) + ")"
}

func feeDescription(tr Translator, lang string, limits Limits) string {
	label := "Transaction fee"
	if tr != nil {
		if s, ok := tr.Translate(lang, "Payment::transaction_fee"); ok {
			label = s
		}
	}
	if limits.Latin1Only {
		label = latin1Safe(label)
	}
	return truncateRunes(label, limits.DescriptionMax)
}

// latin1Safe drops everything ISO-8859-1 cannot represent and apostrophes,
// which the legacy Paytrail form interface mangles.
func latin1Safe(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToValidUTF8(s, "") {
		if r == '\'' {
			continue
		}
		c, ok := charmap.ISO8859_1.EncodeRune(r)
		if !ok {
			continue
		}
		b.WriteRune(charmap.ISO8859_1.DecodeByte(c))
	}
	return b.String()
}
