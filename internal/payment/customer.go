package payment

import (
	"strings"

	"golang.org/x/text/language"
)

// splitName splits "Lastname, Firstname" on the first comma; otherwise the
// last word is the last name and everything before it the first name.
func splitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	if i := strings.Index(name, ","); i > 0 {
		return strings.TrimSpace(name[i+1:]), strings.TrimSpace(name[:i])
	}
	parts := strings.Fields(name)
	if len(parts) == 1 {
		return "", parts[0]
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

func customerFor(user User, patron Patron) Customer {
	c := Customer{
		Firstname: user.Firstname,
		Lastname:  user.Lastname,
		Email:     user.Email,
	}
	if c.Firstname == "" && c.Lastname == "" {
		c.Firstname, c.Lastname = patron.Firstname, patron.Lastname
	}
	if c.Firstname == "" && c.Lastname == "" {
		c.Firstname, c.Lastname = splitName(patron.Name)
	}
	if c.Email == "" {
		c.Email = patron.Email
	}
	return c
}

// languageMap maps UI locales to the codes a gateway expects.
type languageMap struct {
	codes   []string
	matcher language.Matcher
}

func newLanguageMap(setting, fallback string) languageMap {
	if strings.TrimSpace(setting) == "" {
		setting = fallback
	}

	var (
		tags  []language.Tag
		codes []string
	)
	for _, pair := range strings.Split(setting, ":") {
		locale, code, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		tag, err := language.Parse(strings.TrimSpace(locale))
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		codes = append(codes, strings.TrimSpace(code))
	}

	m := languageMap{codes: codes}
	if len(tags) > 0 {
		m.matcher = language.NewMatcher(tags)
	}
	return m
}

// code returns the gateway code for locale, defaulting to the first
// configured language.
func (m languageMap) code(locale string) string {
	if m.matcher == nil {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return m.codes[0]
	}
	_, idx, conf := m.matcher.Match(tag)
	if conf == language.No {
		return m.codes[0]
	}
	return m.codes[idx]
}
